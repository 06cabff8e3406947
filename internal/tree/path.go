package tree

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrNotContainer = errors.New("not an object")
	ErrEmptyPath    = errors.New("empty path")
	ErrInvalidPath  = errors.New("invalid path")
)

// Path addresses a location under the tree root as an ordered list of keys.
type Path []string

// ParsePath parses the dot-delimited wire form of a path.
//
// The first segment is a root label and is discarded, so "root.todos.2" and
// ".todos.2" both address [todos 2]. Empty interior segments are rejected.
func ParsePath(s string) (Path, error) {
	if s == "" {
		return Path{}, nil
	}
	parts := strings.Split(s, ".")
	parts = parts[1:]
	for i, p := range parts {
		if p == "" {
			return nil, &PathError{Op: "parse", Path: Path(parts), Depth: i, Err: ErrInvalidPath}
		}
	}
	return Path(parts), nil
}

// At builds a path from keys.
func At(keys ...string) Path {
	return Path(append([]string(nil), keys...))
}

// String renders the wire form with an empty root label.
func (p Path) String() string {
	if len(p) == 0 {
		return ""
	}
	return "." + strings.Join(p, ".")
}

func (p Path) Parent() Path {
	if len(p) == 0 {
		return nil
	}
	return p[:len(p)-1]
}

func (p Path) Last() string {
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1]
}

// PathError records a failed path resolution. Depth is the index of the
// segment that could not be resolved.
type PathError struct {
	Op    string
	Path  Path
	Depth int
	Err   error
}

func (e *PathError) Error() string {
	seg := ""
	if e.Depth >= 0 && e.Depth < len(e.Path) {
		seg = e.Path[e.Depth]
	}
	if seg == "" {
		return fmt.Sprintf("%s %q: %v", e.Op, e.Path.String(), e.Err)
	}
	return fmt.Sprintf("%s %q: segment %q: %v", e.Op, e.Path.String(), seg, e.Err)
}

func (e *PathError) Unwrap() error { return e.Err }
