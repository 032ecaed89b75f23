package envspec

import (
	"fmt"
	"strings"
)

// MissingVariable is a required variable with neither a value
// nor a default.
type MissingVariable struct {
	Name        string
	Description string
	// RequiredBy is the variable whose trigger made Name required,
	// empty when Name is required by its own declaration.
	RequiredBy string
	Table      string
}

func (m MissingVariable) String() string {
	var b strings.Builder
	b.WriteString(m.Name)
	var notes []string
	if m.Table != "" {
		notes = append(notes, "table "+m.Table)
	}
	if m.RequiredBy != "" {
		notes = append(notes, "required by "+m.RequiredBy)
	}
	if len(notes) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(notes, ", "))
	}
	if m.Description != "" {
		fmt.Fprintf(&b, ": %s", m.Description)
	}
	return b.String()
}

// MissingVariablesError reports every missing variable at once.
type MissingVariablesError struct {
	Missing []MissingVariable
}

func (e *MissingVariablesError) Error() string {
	lines := make([]string, 0, len(e.Missing)+1)
	lines = append(lines, fmt.Sprintf("%d required environment variable(s) not set:", len(e.Missing)))
	for _, m := range e.Missing {
		lines = append(lines, "\t"+m.String())
	}
	return strings.Join(lines, "\n")
}

// Names of the missing variables, in the order they were found.
func (e *MissingVariablesError) Names() []string {
	res := make([]string, len(e.Missing))
	for i, m := range e.Missing {
		res[i] = m.Name
	}
	return res
}

// Add appends the missing variables of other, skipping those
// already reported for the same table.
func (e *MissingVariablesError) Add(other *MissingVariablesError) {
	if other == nil {
		return
	}
	seen := map[string]bool{}
	for _, m := range e.Missing {
		seen[m.Table+"\x00"+m.Name] = true
	}
	for _, m := range other.Missing {
		if seen[m.Table+"\x00"+m.Name] {
			continue
		}
		seen[m.Table+"\x00"+m.Name] = true
		e.Missing = append(e.Missing, m)
	}
}

// UnknownReferenceError is a trigger naming a variable that no
// table declares.
type UnknownReferenceError struct {
	Table string
	Owner string
	Name  string
}

func (e *UnknownReferenceError) Error() string {
	return fmt.Sprintf("table `%s`: trigger of %s requires undeclared variable %s", e.Table, e.Owner, e.Name)
}
