// Package vikingfile decodes the section-delimited text format produced by
// Viking acquisition hardware into a tree of named sections and key/value
// leaves. The package performs no semantic validation, that is left to the
// extraction step consuming the tree.
package vikingfile

// Node is one element of the parsed document tree: either a leaf carrying a
// raw string value or a section holding named children in insertion order.
type Node struct {
	value    string
	leaf     bool
	keys     []string
	children map[string]*Node
}

// NewSection returns an empty section node.
func NewSection() *Node {
	return &Node{children: make(map[string]*Node)}
}

// NewLeaf returns a leaf node holding the given raw value.
func NewLeaf(value string) *Node {
	return &Node{value: value, leaf: true}
}

// IsLeaf reports whether the node is a leaf.
func (n *Node) IsLeaf() bool {
	return n.leaf
}

// Value returns the raw string value of a leaf node. Sections return "".
func (n *Node) Value() string {
	return n.value
}

// Keys returns the child keys of a section in insertion order.
func (n *Node) Keys() []string {
	return n.keys
}

// Set inserts or replaces a child. Insertion order is kept for new keys,
// replacing an existing key keeps its original position (last value wins).
func (n *Node) Set(key string, child *Node) {
	if n.children == nil {
		n.children = make(map[string]*Node)
	}
	if _, exists := n.children[key]; !exists {
		n.keys = append(n.keys, key)
	}
	n.children[key] = child
}

// Get returns the child node for key.
func (n *Node) Get(key string) (*Node, bool) {
	child, ok := n.children[key]
	return child, ok
}

// Section returns the child section for key, or false if the key is absent
// or names a leaf.
func (n *Node) Section(key string) (*Node, bool) {
	child, ok := n.children[key]
	if !ok || child.leaf {
		return nil, false
	}
	return child, true
}

// Leaf returns the raw value of the child leaf for key, or false if the key
// is absent or names a section.
func (n *Node) Leaf(key string) (string, bool) {
	child, ok := n.children[key]
	if !ok || !child.leaf {
		return "", false
	}
	return child.value, true
}

// ensureSection returns the existing child section for key, creating it when
// missing. A leaf occupying the key is replaced, a re-occurring section path
// merges into the existing node.
func (n *Node) ensureSection(key string) *Node {
	if child, ok := n.children[key]; ok && !child.leaf {
		return child
	}
	child := NewSection()
	n.Set(key, child)
	return child
}

// Document is the parsed tree of a Viking export file. It is built once per
// imported file and not mutated afterwards.
type Document struct {
	Root *Node
}
