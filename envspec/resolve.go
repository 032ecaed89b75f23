package envspec

type options struct {
	global Table
	strict bool
}

// Option configures Resolve.
type Option func(*options)

// WithGlobal makes declarations of global available to trigger
// dependents not declared in the table being resolved.
func WithGlobal(global Table) Option {
	return func(o *options) {
		o.global = global
	}
}

// Strict makes a trigger dependent declared nowhere an error.
// Otherwise it is treated as a required variable without default.
func Strict() Option {
	return func(o *options) {
		o.strict = true
	}
}

type pending struct {
	spec       VariableSpec
	requiredBy string
}

// Resolve walks table against env. Values set in env win over
// defaults; variables with neither are returned as missing. Triggers
// of every resolved variable are followed until no new variable is
// required. Missing variables never cause an error: all of them are
// returned so the caller can decide. The only error is an
// *UnknownReferenceError, in strict mode.
func Resolve(table Table, env Snapshot, opts ...Option) (Resolved, []MissingVariable, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	resolved := Resolved{}
	var missing []MissingVariable

	queued := map[string]bool{}
	var queue []pending
	for _, name := range table.order {
		spec := table.specs[name]
		if spec.Conditional {
			continue
		}
		queued[name] = true
		queue = append(queue, pending{spec: spec})
	}

	// queue grows while iterating; it is bounded by the number
	// of distinct names, since a name is never queued twice.
	for i := 0; i < len(queue); i++ {
		item := queue[i]
		spec := item.spec

		value, ok := env.Lookup(spec.Name)
		if !ok {
			if !spec.HasDefault() {
				missing = append(missing, MissingVariable{
					Name:        spec.Name,
					Description: spec.Description,
					RequiredBy:  item.requiredBy,
					Table:       table.name,
				})
				continue
			}
			value = *spec.Default
		}
		resolved[spec.Name] = value

		for _, dep := range Evaluate(spec, value) {
			if queued[dep] {
				continue
			}
			depSpec, found := table.Lookup(dep)
			if !found {
				depSpec, found = o.global.Lookup(dep)
			}
			if !found {
				if o.strict {
					return nil, nil, &UnknownReferenceError{Table: table.name, Owner: spec.Name, Name: dep}
				}
				depSpec = VariableSpec{Name: dep}
			}
			queued[dep] = true
			queue = append(queue, pending{spec: depSpec, requiredBy: spec.Name})
		}
	}

	return resolved, missing, nil
}

// MustResolve resolves table and turns missing variables into
// a *MissingVariablesError.
func MustResolve(table Table, env Snapshot, opts ...Option) (Resolved, error) {
	resolved, missing, err := Resolve(table, env, opts...)
	if err != nil {
		return nil, err
	}
	if len(missing) > 0 {
		return resolved, &MissingVariablesError{Missing: missing}
	}
	return resolved, nil
}
