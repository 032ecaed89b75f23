package fsutil

import (
	"fmt"
	"path"
)

// Path is a slash separated file path, relative to
// the Root of a Transaction unless absolute.
type Path string

// Join appends part to the path.
func (pt Path) Join(part string) Path {
	return Path(path.Join(string(pt), part))
}

// JoinP appends part to the path, unless part is absolute.
func (pt Path) JoinP(part Path) Path {
	if part.IsAbs() {
		return part
	}
	return Path(path.Join(string(pt), string(part)))
}

// JoinF appends the formatted part to the path.
func (pt Path) JoinF(part string, args ...interface{}) Path {
	partF := fmt.Sprintf(part, args...)
	return Path(path.Join(string(pt), partF))
}

// PathF returns the formatted path.
func PathF(format string, args ...interface{}) Path {
	p := fmt.Sprintf(format, args...)
	return Path(p)
}

// IsAbs reports whether the path is absolute.
func (pt Path) IsAbs() bool {
	return path.IsAbs(string(pt))
}

// Dir returns all but the last element of the path.
func (pt Path) Dir() Path {
	return Path(path.Dir(string(pt)))
}

// Base returns the last element of the path.
func (pt Path) Base() string {
	return path.Base(string(pt))
}

func (pt Path) String() string {
	return string(pt)
}
