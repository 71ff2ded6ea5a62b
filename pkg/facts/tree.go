// Package facts holds the attribute tree produced by a fact collection and
// the reverse index recording which plugins wrote where.
package facts

import (
	"fmt"
	"strings"
)

// Separator delimits segments of an attribute path.
const Separator = "/"

// Tree is the nested, insertion-ordered attribute store for one process.
// It is not safe for concurrent writers.
type Tree struct {
	root *Mash
}

// NewTree creates an empty tree.
func NewTree() *Tree {
	return &Tree{root: NewMash()}
}

// Root returns the top-level mapping.
func (t *Tree) Root() *Mash {
	return t.root
}

// SplitPath splits an attribute path into segments. Leading, trailing and
// repeated separators are ignored, so "" and "/" both address the root.
func SplitPath(path string) []string {
	raw := strings.Split(path, Separator)
	parts := make([]string, 0, len(raw))
	for _, p := range raw {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

// JoinPath is the inverse of SplitPath.
func JoinPath(parts []string) string {
	return strings.Join(parts, Separator)
}

// CleanPath returns path in canonical form.
func CleanPath(path string) string {
	return JoinPath(SplitPath(path))
}

// Lookup navigates to path. It reports false if any segment is missing or
// an intermediate value is not a mapping.
func (t *Tree) Lookup(path string) (any, bool) {
	var cur any = t.root
	for _, part := range SplitPath(path) {
		m, ok := cur.(*Mash)
		if !ok {
			return nil, false
		}
		next, ok := m.Get(part)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// Set stores value at path, creating intermediate mappings as needed.
func (t *Tree) Set(path string, value any) error {
	parts := SplitPath(path)
	if len(parts) == 0 {
		return fmt.Errorf("cannot replace the tree root")
	}

	normalized, err := Normalize(value)
	if err != nil {
		return fmt.Errorf("attribute %s: %w", JoinPath(parts), err)
	}

	cur := t.root
	for i, part := range parts[:len(parts)-1] {
		next, ok := cur.Get(part)
		if !ok {
			child := NewMash()
			cur.Set(part, child)
			cur = child
			continue
		}
		child, ok := next.(*Mash)
		if !ok {
			return fmt.Errorf("attribute %s is a %T, not a mapping", JoinPath(parts[:i+1]), next)
		}
		cur = child
	}

	cur.Set(parts[len(parts)-1], normalized)
	return nil
}

// Delete removes the value at path. It reports whether anything was removed.
func (t *Tree) Delete(path string) bool {
	parts := SplitPath(path)
	if len(parts) == 0 {
		return false
	}
	parent, ok := t.Lookup(JoinPath(parts[:len(parts)-1]))
	if !ok {
		return false
	}
	m, ok := parent.(*Mash)
	if !ok {
		return false
	}
	if _, exists := m.Get(parts[len(parts)-1]); !exists {
		return false
	}
	m.Delete(parts[len(parts)-1])
	return true
}
