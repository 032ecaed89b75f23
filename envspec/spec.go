// Package envspec declares the environment variables each model
// component needs, and resolves those declarations against a
// snapshot of the process environment.
package envspec

import (
	"os"
	"sort"
	"strings"
)

// VariableSpec declares a single environment variable.
// A nil Default means the variable is required. A Conditional
// variable is only checked once a trigger asks for it.
type VariableSpec struct {
	Name        string
	Default     *string
	Description string
	Triggers    []TriggerRule
	Conditional bool
}

// HasDefault reports whether the variable carries a default value.
func (spec VariableSpec) HasDefault() bool {
	return spec.Default != nil
}

// TriggerRule makes Dependents required when Predicate holds
// on the value of the owning variable.
type TriggerRule struct {
	Predicate  Predicate
	Dependents []string
}

// Required declares a variable with no default.
func Required(name, description string, triggers ...TriggerRule) VariableSpec {
	return VariableSpec{Name: name, Description: description, Triggers: triggers}
}

// Optional declares a variable falling back to def when unset.
func Optional(name, def, description string, triggers ...TriggerRule) VariableSpec {
	d := def
	return VariableSpec{Name: name, Default: &d, Description: description, Triggers: triggers}
}

// Conditional declares a variable required only when a trigger
// of another variable fires.
func Conditional(name, description string) VariableSpec {
	return VariableSpec{Name: name, Description: description, Conditional: true}
}

// OnlyWhenTriggered returns a copy of spec that is only checked
// once a trigger asks for it.
func (spec VariableSpec) OnlyWhenTriggered() VariableSpec {
	spec.Conditional = true
	return spec
}

// When builds a TriggerRule.
func When(pred Predicate, dependents ...string) TriggerRule {
	return TriggerRule{Predicate: pred, Dependents: dependents}
}

// Table is an ordered set of variable declarations for one
// component phase. The zero value is an empty table.
type Table struct {
	name  string
	order []string
	specs map[string]VariableSpec
}

// NewTable builds a table. A repeated name replaces the earlier
// declaration but keeps its position.
func NewTable(name string, specs ...VariableSpec) Table {
	t := Table{name: name, specs: make(map[string]VariableSpec, len(specs))}
	for _, spec := range specs {
		t.put(spec)
	}
	return t
}

func (t *Table) put(spec VariableSpec) {
	if _, ok := t.specs[spec.Name]; !ok {
		t.order = append(t.order, spec.Name)
	}
	t.specs[spec.Name] = spec
}

// Name of the table, e.g. "nemo initial".
func (t Table) Name() string {
	return t.name
}

// Len returns the number of declared variables.
func (t Table) Len() int {
	return len(t.order)
}

// Names returns variable names in declaration order.
func (t Table) Names() []string {
	res := make([]string, len(t.order))
	copy(res, t.order)
	return res
}

// Lookup returns the declaration for name.
func (t Table) Lookup(name string) (VariableSpec, bool) {
	spec, ok := t.specs[name]
	return spec, ok
}

// Merge layers tables over base. Later layers override earlier ones
// on duplicate names; the result is a new table.
func Merge(base Table, layers ...Table) Table {
	var names []string
	if base.name != "" {
		names = append(names, base.name)
	}
	res := Table{name: base.name, specs: make(map[string]VariableSpec, base.Len())}
	for _, name := range base.order {
		res.put(base.specs[name])
	}
	for _, layer := range layers {
		if layer.name != "" {
			names = append(names, layer.name)
		}
		for _, name := range layer.order {
			res.put(layer.specs[name])
		}
	}
	res.name = strings.Join(names, "+")
	return res
}

// Validate lists trigger dependents declared neither in t nor in global.
// The result is sorted and free of duplicates.
func (t Table) Validate(global Table) []UnknownReferenceError {
	var res []UnknownReferenceError
	seen := map[string]bool{}
	for _, name := range t.order {
		for _, rule := range t.specs[name].Triggers {
			for _, dep := range rule.Dependents {
				if _, ok := t.specs[dep]; ok {
					continue
				}
				if _, ok := global.specs[dep]; ok {
					continue
				}
				key := name + "\x00" + dep
				if seen[key] {
					continue
				}
				seen[key] = true
				res = append(res, UnknownReferenceError{Table: t.name, Owner: name, Name: dep})
			}
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].Owner != res[j].Owner {
			return res[i].Owner < res[j].Owner
		}
		return res[i].Name < res[j].Name
	})
	return res
}

// Snapshot is a read-only view of environment variables.
type Snapshot map[string]string

// SnapshotFromEnviron parses NAME=VALUE entries as returned by os.Environ.
func SnapshotFromEnviron(environ []string) Snapshot {
	res := make(Snapshot, len(environ))
	for _, entry := range environ {
		name, value, found := strings.Cut(entry, "=")
		if !found || name == "" {
			continue
		}
		res[name] = value
	}
	return res
}

// SnapshotFromOS captures the current process environment.
func SnapshotFromOS() Snapshot {
	return SnapshotFromEnviron(os.Environ())
}

// Over returns a new snapshot where the values of env take
// precedence over those of base.
func (env Snapshot) Over(base map[string]string) Snapshot {
	res := make(Snapshot, len(env)+len(base))
	for name, value := range base {
		res[name] = value
	}
	for name, value := range env {
		res[name] = value
	}
	return res
}

// Lookup returns the value of name and whether it is set.
func (env Snapshot) Lookup(name string) (string, bool) {
	v, ok := env[name]
	return v, ok
}

// Resolved holds the values of resolved variables.
type Resolved map[string]string

// Get returns the value of name, or "" when it was not resolved.
func (r Resolved) Get(name string) string {
	return r[name]
}

// Has reports whether name was resolved.
func (r Resolved) Has(name string) bool {
	_, ok := r[name]
	return ok
}

// Names returns resolved names in sorted order.
func (r Resolved) Names() []string {
	res := make([]string, 0, len(r))
	for name := range r {
		res = append(res, name)
	}
	sort.Strings(res)
	return res
}

// With returns a copy of r extended with others. On duplicate
// names the value from the last argument wins.
func (r Resolved) With(others ...Resolved) Resolved {
	res := make(Resolved, len(r))
	for name, value := range r {
		res[name] = value
	}
	for _, other := range others {
		for name, value := range other {
			res[name] = value
		}
	}
	return res
}
