package tree

import "encoding/json"

// Tree is a nested mapping from string keys to JSON values.
//
// Values are the shapes encoding/json produces for `any`: nil, bool,
// float64, string, []any and map[string]any. A Tree is not safe for
// concurrent use; see Store.
type Tree struct {
	root map[string]any
}

func New() *Tree {
	return &Tree{root: map[string]any{}}
}

// FromMap returns a tree holding a deep copy of m.
func FromMap(m map[string]any) *Tree {
	t := New()
	for k, v := range m {
		t.root[k] = cloneValue(v)
	}
	return t
}

// Get returns the value at p. The empty path yields a copy of the root mapping.
func (t *Tree) Get(p Path) (any, error) {
	if len(p) == 0 {
		return t.Map(), nil
	}
	parent, err := t.parent("get", p)
	if err != nil {
		return nil, err
	}
	v, ok := parent[p.Last()]
	if !ok {
		return nil, &PathError{Op: "get", Path: p, Depth: len(p) - 1, Err: ErrNotFound}
	}
	return cloneValue(v), nil
}

// Set assigns v at p, creating or overwriting the final key. Every
// intermediate segment must already exist and hold a mapping.
func (t *Tree) Set(p Path, v any) error {
	if len(p) == 0 {
		return &PathError{Op: "set", Path: p, Err: ErrEmptyPath}
	}
	parent, err := t.parent("set", p)
	if err != nil {
		return err
	}
	parent[p.Last()] = cloneValue(v)
	return nil
}

// Delete removes the final key of p. A missing final key under an existing
// parent is not an error.
func (t *Tree) Delete(p Path) error {
	if len(p) == 0 {
		return &PathError{Op: "delete", Path: p, Err: ErrEmptyPath}
	}
	parent, err := t.parent("delete", p)
	if err != nil {
		return err
	}
	delete(parent, p.Last())
	return nil
}

// Merge shallow-assigns the keys of m onto the root. Keys of the root that
// are absent from m are kept.
func (t *Tree) Merge(m map[string]any) {
	for k, v := range m {
		t.root[k] = cloneValue(v)
	}
}

// Map returns a deep copy of the root mapping.
func (t *Tree) Map() map[string]any {
	return cloneValue(t.root).(map[string]any)
}

func (t *Tree) Len() int { return len(t.root) }

func (t *Tree) Clone() *Tree {
	return FromMap(t.root)
}

func (t *Tree) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.root)
}

func (t *Tree) UnmarshalJSON(b []byte) error {
	m := map[string]any{}
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	t.root = m
	return nil
}

// parent walks all but the last segment of p.
func (t *Tree) parent(op string, p Path) (map[string]any, error) {
	cur := t.root
	for i, key := range p.Parent() {
		next, ok := cur[key]
		if !ok {
			return nil, &PathError{Op: op, Path: p, Depth: i, Err: ErrNotFound}
		}
		m, ok := next.(map[string]any)
		if !ok {
			return nil, &PathError{Op: op, Path: p, Depth: i, Err: ErrNotContainer}
		}
		cur = m
	}
	return cur, nil
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, x := range t {
			out[k] = cloneValue(x)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, x := range t {
			out[i] = cloneValue(x)
		}
		return out
	default:
		return v
	}
}
