package envspec

import (
	"fmt"
	"strconv"
	"strings"
)

// PredicateKind enumerates the predicates a trigger can use.
type PredicateKind string

const (
	// KindEquals fires when the value equals Value.
	KindEquals PredicateKind = "equals"
	// KindNotEquals fires when the value differs from Value.
	KindNotEquals PredicateKind = "not-equals"
	// KindNonEmpty fires when the value is not the empty string.
	KindNonEmpty PredicateKind = "non-empty"
	// KindOneOf fires when the value is one of Values.
	KindOneOf PredicateKind = "one-of"
	// KindContains fires when Value is a substring of the value.
	KindContains PredicateKind = "contains"
	// KindIntAbove fires when the value is an integer greater than Value.
	KindIntAbove PredicateKind = "int-above"
	// KindCustom delegates to a Go function. Custom predicates
	// cannot be serialised.
	KindCustom PredicateKind = "custom"
)

// Predicate is a test on the resolved value of one variable.
type Predicate struct {
	Kind   PredicateKind
	Value  string
	Values []string
	Func   func(value string) (bool, error)
	// Label describes a custom predicate in messages.
	Label string
}

// Equals fires when the value is exactly v.
func Equals(v string) Predicate { return Predicate{Kind: KindEquals, Value: v} }

// NotEquals fires when the value differs from v.
func NotEquals(v string) Predicate { return Predicate{Kind: KindNotEquals, Value: v} }

// NonEmpty fires when the value is set to anything but "".
func NonEmpty() Predicate { return Predicate{Kind: KindNonEmpty} }

// OneOf fires when the value is one of values.
func OneOf(values ...string) Predicate { return Predicate{Kind: KindOneOf, Values: values} }

// Contains fires when the value contains the substring v.
func Contains(v string) Predicate { return Predicate{Kind: KindContains, Value: v} }

// IntAbove fires when the value is an integer greater than n.
func IntAbove(n int) Predicate { return Predicate{Kind: KindIntAbove, Value: strconv.Itoa(n)} }

// Custom wraps fn, labelled for messages.
func Custom(label string, fn func(value string) (bool, error)) Predicate {
	return Predicate{Kind: KindCustom, Func: fn, Label: label}
}

// Test evaluates the predicate on value. An error means the
// predicate could not be evaluated on that input.
func (p Predicate) Test(value string) (res bool, err error) {
	switch p.Kind {
	case KindEquals:
		return value == p.Value, nil
	case KindNotEquals:
		return value != p.Value, nil
	case KindNonEmpty:
		return value != "", nil
	case KindOneOf:
		for _, v := range p.Values {
			if v == value {
				return true, nil
			}
		}
		return false, nil
	case KindContains:
		return strings.Contains(value, p.Value), nil
	case KindIntAbove:
		limit, err := strconv.Atoi(p.Value)
		if err != nil {
			return false, fmt.Errorf("int-above: malformed limit `%s`: %w", p.Value, err)
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return false, fmt.Errorf("int-above: malformed value `%s`: %w", value, err)
		}
		return n > limit, nil
	case KindCustom:
		if p.Func == nil {
			return false, fmt.Errorf("custom predicate %s has no function", p.Label)
		}
		defer func() {
			if r := recover(); r != nil {
				res = false
				err = fmt.Errorf("custom predicate %s panicked: %v", p.Label, r)
			}
		}()
		return p.Func(value)
	}
	return false, fmt.Errorf("unknown predicate kind `%s`", p.Kind)
}

func (p Predicate) String() string {
	switch p.Kind {
	case KindNonEmpty:
		return string(p.Kind)
	case KindOneOf:
		return fmt.Sprintf("%s %s", p.Kind, strings.Join(p.Values, "|"))
	case KindCustom:
		return fmt.Sprintf("%s %s", p.Kind, p.Label)
	}
	return fmt.Sprintf("%s %q", p.Kind, p.Value)
}

// Evaluate returns the variables that become required once spec
// has resolved to value. Rules are checked in declaration order;
// a rule whose predicate cannot be evaluated does not fire.
func Evaluate(spec VariableSpec, value string) []string {
	var res []string
	seen := map[string]bool{}
	for _, rule := range spec.Triggers {
		fired, err := rule.Predicate.Test(value)
		if err != nil || !fired {
			continue
		}
		for _, dep := range rule.Dependents {
			if seen[dep] {
				continue
			}
			seen[dep] = true
			res = append(res, dep)
		}
	}
	return res
}
