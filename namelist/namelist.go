// Package namelist reads and writes Fortran namelist files
// made of `&group ... /` blocks of `key=value,` lines.
package namelist

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
)

// ErrNotFound is returned by ReadFile when the file does not exist.
var ErrNotFound = errors.New("namelist file not found")

// SyntaxError reports a line that does not fit the namelist grammar.
type SyntaxError struct {
	File string
	Line int
	Msg  string
}

func (e *SyntaxError) Error() string {
	if e.File == "" {
		return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
	}
	return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Msg)
}

// Group is one `&name ... /` block. Keys are lower case.
type Group struct {
	Name   string
	keys   []string
	values map[string]string
}

// NewGroup returns an empty group.
func NewGroup(name string) *Group {
	return &Group{Name: strings.ToLower(name), values: map[string]string{}}
}

// Header returns the section header synthesised for the group,
// e.g. `[namelist:namrun]`.
func (g *Group) Header() string {
	return SectionHeader(g.Name)
}

// SectionHeader returns the section header of group.
func SectionHeader(group string) string {
	return fmt.Sprintf("[namelist:%s]", strings.ToLower(group))
}

// Get returns the value of key.
func (g *Group) Get(key string) (string, bool) {
	v, ok := g.values[strings.ToLower(key)]
	return v, ok
}

// Set assigns key. New keys are appended.
func (g *Group) Set(key, value string) {
	key = strings.ToLower(key)
	if _, ok := g.values[key]; !ok {
		g.keys = append(g.keys, key)
	}
	g.values[key] = value
}

// Delete removes key, if present.
func (g *Group) Delete(key string) {
	key = strings.ToLower(key)
	if _, ok := g.values[key]; !ok {
		return
	}
	delete(g.values, key)
	for i, k := range g.keys {
		if k == key {
			g.keys = append(g.keys[:i], g.keys[i+1:]...)
			break
		}
	}
}

// Keys in file order.
func (g *Group) Keys() []string {
	res := make([]string, len(g.keys))
	copy(res, g.keys)
	return res
}

// Map returns a copy of the group values.
func (g *Group) Map() map[string]string {
	res := make(map[string]string, len(g.values))
	for k, v := range g.values {
		res[k] = v
	}
	return res
}

// File is an ordered set of groups.
type File struct {
	groups []*Group
}

// Groups in file order.
func (f *File) Groups() []*Group {
	return f.groups
}

// Len is the number of groups.
func (f *File) Len() int {
	return len(f.groups)
}

// Group returns the first group named name.
func (f *File) Group(name string) (*Group, bool) {
	name = strings.ToLower(name)
	for _, g := range f.groups {
		if g.Name == name {
			return g, true
		}
	}
	return nil, false
}

// Section returns the group addressed by a `[namelist:name]` header.
func (f *File) Section(header string) (*Group, bool) {
	name := strings.TrimSuffix(strings.TrimPrefix(header, "[namelist:"), "]")
	return f.Group(name)
}

// Ensure returns the group named name, appending an empty one
// when the file has none.
func (f *File) Ensure(name string) *Group {
	if g, ok := f.Group(name); ok {
		return g
	}
	g := NewGroup(name)
	f.groups = append(f.groups, g)
	return g
}

// Get returns the value of key in group.
func (f *File) Get(group, key string) (string, bool) {
	g, ok := f.Group(group)
	if !ok {
		return "", false
	}
	return g.Get(key)
}

// Map returns the file as group name -> key -> value.
func (f *File) Map() map[string]map[string]string {
	res := make(map[string]map[string]string, len(f.groups))
	for _, g := range f.groups {
		res[g.Name] = g.Map()
	}
	return res
}

// Parse reads namelist text. Blank lines and `!` comments are
// skipped, trailing commas are stripped, and a line may hold several
// comma separated assignments. Values without `=` continue the
// previous key. Groups close with `/`, `&end` or `$end`.
// On error the returned file is empty.
func Parse(r io.Reader) (*File, error) {
	res := &File{}
	var current *Group
	var lastKey string

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(stripComment(scanner.Text()))
		if line == "" {
			continue
		}

		if isEnd(line) {
			if current == nil {
				return &File{}, &SyntaxError{Line: lineNo, Msg: fmt.Sprintf("`%s` outside of a group", line)}
			}
			res.groups = append(res.groups, current)
			current = nil
			continue
		}

		if strings.HasPrefix(line, "&") {
			if current != nil {
				return &File{}, &SyntaxError{Line: lineNo, Msg: fmt.Sprintf("group `%s` opened before `%s` was closed", line, current.Name)}
			}
			fields := strings.Fields(line[1:])
			if len(fields) == 0 {
				return &File{}, &SyntaxError{Line: lineNo, Msg: "group without a name"}
			}
			current = NewGroup(fields[0])
			lastKey = ""
			rest := strings.TrimSpace(strings.TrimPrefix(line[1:], fields[0]))
			closed := false
			if strings.HasSuffix(rest, "/") {
				rest = strings.TrimSpace(strings.TrimSuffix(rest, "/"))
				closed = true
			}
			if rest != "" {
				if err := parseAssignment(current, rest, &lastKey); err != nil {
					return &File{}, &SyntaxError{Line: lineNo, Msg: err.Error()}
				}
			}
			if closed {
				res.groups = append(res.groups, current)
				current = nil
			}
			continue
		}

		if current == nil {
			return &File{}, &SyntaxError{Line: lineNo, Msg: fmt.Sprintf("`%s` outside of a group", line)}
		}

		if line == "/" {
			res.groups = append(res.groups, current)
			current = nil
			continue
		}

		closed := false
		if strings.HasSuffix(line, "/") && !strings.HasSuffix(line, "'/") && !strings.HasSuffix(line, "\"/") {
			line = strings.TrimSpace(strings.TrimSuffix(line, "/"))
			closed = true
		}
		if err := parseAssignment(current, line, &lastKey); err != nil {
			return &File{}, &SyntaxError{Line: lineNo, Msg: err.Error()}
		}
		if closed {
			res.groups = append(res.groups, current)
			current = nil
		}
	}
	if err := scanner.Err(); err != nil {
		return &File{}, err
	}
	if current != nil {
		return &File{}, &SyntaxError{Line: lineNo, Msg: fmt.Sprintf("group `%s` is not closed", current.Name)}
	}
	return res, nil
}

func isEnd(line string) bool {
	return strings.EqualFold(line, "&end") || strings.EqualFold(line, "$end")
}

// parseAssignment reads the assignments of line into g. Items
// without `=` are appended to the value of the key before them,
// which is lastKey for a line continuing the previous one.
func parseAssignment(g *Group, line string, lastKey *string) error {
	// some models put the separating comma at the start of the line
	line = strings.TrimSpace(strings.TrimLeft(line, ","))
	items := splitItems(line)
	for len(items) > 0 && strings.TrimSpace(items[len(items)-1]) == "" {
		items = items[:len(items)-1]
	}
	if len(items) == 0 {
		return nil
	}

	key := ""
	var values []string
	flush := func() {
		if len(values) == 0 {
			return
		}
		value := trimValue(strings.Join(values, ","))
		if key == "" {
			prev, _ := g.Get(*lastKey)
			g.Set(*lastKey, prev+","+value)
		} else {
			g.Set(key, value)
			*lastKey = strings.ToLower(key)
		}
		values = nil
	}

	for _, item := range items {
		k, v, found := cutUnquoted(item, '=')
		if !found {
			if key == "" && *lastKey == "" {
				return fmt.Errorf("expected key=value, got `%s`", line)
			}
			values = append(values, item)
			continue
		}
		flush()
		key = strings.TrimSpace(k)
		if key == "" {
			return fmt.Errorf("missing key in `%s`", line)
		}
		values = []string{v}
	}
	flush()
	return nil
}

// splitItems splits line on the commas outside quoted strings
// and parentheses.
func splitItems(line string) []string {
	var res []string
	var quote rune
	depth, start := 0, 0
	for i, c := range line {
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '(':
			depth++
		case c == ')' && depth > 0:
			depth--
		case c == ',' && depth == 0:
			res = append(res, line[start:i])
			start = i + 1
		}
	}
	return append(res, line[start:])
}

// cutUnquoted is strings.Cut on the first sep outside quoted strings.
func cutUnquoted(s string, sep rune) (before, after string, found bool) {
	var quote rune
	for i, c := range s {
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == sep:
			return s[:i], s[i+1:], true
		}
	}
	return s, "", false
}

func trimValue(v string) string {
	return strings.TrimSpace(strings.TrimRight(strings.TrimSpace(v), ","))
}

// stripComment drops a `!` comment that is not inside a quoted string.
func stripComment(line string) string {
	var quote rune
	for i, c := range line {
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '!':
			return line[:i]
		}
	}
	return line
}

// ReadFile parses the namelist file at path. The returned file is
// never nil: on error it is empty, so a caller may fall back to
// defaults. A missing file yields an error matching ErrNotFound.
func ReadFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &File{}, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return &File{}, fmt.Errorf("ReadFile `%s`: Open error: %w", path, err)
	}
	defer f.Close()

	res, err := Parse(f)
	var synErr *SyntaxError
	if errors.As(err, &synErr) {
		synErr.File = path
	}
	return res, err
}

// Write renders f as namelist text.
func Write(w io.Writer, f *File) error {
	bw := bufio.NewWriter(w)
	for _, g := range f.groups {
		fmt.Fprintf(bw, "&%s\n", g.Name)
		for _, k := range g.keys {
			fmt.Fprintf(bw, "%s=%s,\n", k, g.values[k])
		}
		fmt.Fprint(bw, "/\n")
	}
	return bw.Flush()
}

// String renders f as namelist text.
func (f *File) String() string {
	var b strings.Builder
	_ = Write(&b, f)
	return b.String()
}

// WriteFile writes f to path.
func WriteFile(path string, f *File) error {
	return os.WriteFile(path, []byte(f.String()), 0644)
}
