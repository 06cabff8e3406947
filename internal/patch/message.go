// Package patch defines the messages a backend pushes to mirror its data
// tree on a client, and how they apply to a tree.Tree.
package patch

import (
	"fmt"

	"livetodo/internal/tree"
)

type Kind string

const (
	KindLoad   Kind = "load"
	KindAdd    Kind = "add"
	KindUpdate Kind = "update"
	KindRemove Kind = "remove"
)

// Message is one of Load, Add, Update or Remove.
type Message interface {
	Kind() Kind
	// Apply mutates t. On error t is left as it was.
	Apply(t *tree.Tree) error
}

// Load merges Data into the tree root.
type Load struct {
	Data map[string]any
}

// Add assigns Data at Path.
type Add struct {
	Path tree.Path
	Data any
}

// Update assigns Data at Path. It behaves exactly like Add.
type Update struct {
	Path tree.Path
	Data any
}

// Remove deletes the key at Path. Data is the removed value when the sender
// includes it; it is informational only.
type Remove struct {
	Path tree.Path
	Data any
}

func (Load) Kind() Kind   { return KindLoad }
func (Add) Kind() Kind    { return KindAdd }
func (Update) Kind() Kind { return KindUpdate }
func (Remove) Kind() Kind { return KindRemove }

func (m Load) Apply(t *tree.Tree) error {
	t.Merge(m.Data)
	return nil
}

func (m Add) Apply(t *tree.Tree) error {
	return t.Set(m.Path, m.Data)
}

func (m Update) Apply(t *tree.Tree) error {
	return t.Set(m.Path, m.Data)
}

func (m Remove) Apply(t *tree.Tree) error {
	return t.Delete(m.Path)
}

// ApplyTo applies m to the tree owned by s.
func ApplyTo(s *tree.Store, m Message) error {
	if m == nil {
		return fmt.Errorf("apply: nil message")
	}
	if err := s.Update(m.Apply); err != nil {
		return fmt.Errorf("apply %s: %w", m.Kind(), err)
	}
	return nil
}

// Describe returns a short human-readable summary of m for logs and status lines.
func Describe(m Message) string {
	switch m := m.(type) {
	case Load:
		return fmt.Sprintf("load (%d keys)", len(m.Data))
	case Add:
		return "add " + m.Path.String()
	case Update:
		return "update " + m.Path.String()
	case Remove:
		return "remove " + m.Path.String()
	default:
		return "unknown"
	}
}
