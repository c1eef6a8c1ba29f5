// Copyright (c) 2026, Ravenhammer Research.
//
// SPDX-License-Identifier: LGPL-2.1-only

// Package datatree implements C2: the schema-validated data tree and its
// XML codec. A tree is owned by a single Root; Node.Detach is the only way
// to remove a subtree, and a detached Node becomes the root of its own
// tree rather than leaving a dangling parent pointer, so ownership is
// always single-rooted (spec §9, "Tree ownership").
package datatree

import (
	"fmt"

	"github.com/ravenhammer-research/netd/schema"
)

// Kind mirrors schema.NodeKind plus Opaque, for nodes that aren't linked
// to any schema node (protocol envelopes only — spec §3).
type Kind int

const (
	Container Kind = iota
	Leaf
	LeafList
	List
	Opaque
)

func (k Kind) String() string {
	switch k {
	case Container:
		return "container"
	case Leaf:
		return "leaf"
	case LeafList:
		return "leaf-list"
	case List:
		return "list"
	case Opaque:
		return "opaque"
	default:
		return "unknown"
	}
}

// Node is one element of a data tree. Children are kept in insertion order
// because NETCONF replies must roundtrip byte-stably (spec §4.2).
type Node struct {
	Name      string
	Namespace string
	Kind      Kind

	// Schema is nil for Opaque nodes and non-nil for every schema-linked
	// node (invariant, spec §3).
	Schema *schema.Node

	Value    string  // Leaf / LeafList value
	Key      string  // for List children, the value of the key leaf
	Attrs    map[string]string
	children []*Node
	parent   *Node
}

// NewOpaque creates an envelope-only node (hello, rpc, rpc-reply, data,
// filter, ok, rpc-error and their unrecognised descendants).
func NewOpaque(name, namespace string) *Node {
	return &Node{Name: name, Namespace: namespace, Kind: Opaque, Attrs: map[string]string{}}
}

// NewSchemaNode creates a node linked to a schema.Node.
func NewSchemaNode(sn *schema.Node, namespace string) *Node {
	var kind Kind
	switch sn.Kind {
	case schema.KindContainer:
		kind = Container
	case schema.KindLeaf:
		kind = Leaf
	case schema.KindLeafList:
		kind = LeafList
	case schema.KindList:
		kind = List
	default:
		kind = Opaque
	}
	return &Node{Name: sn.Name, Namespace: namespace, Kind: kind, Schema: sn, Attrs: map[string]string{}}
}

// IsOpaque reports whether n is not linked to a schema node.
func (n *Node) IsOpaque() bool { return n.Schema == nil }

// Parent returns n's parent, or nil if n is a root.
func (n *Node) Parent() *Node { return n.parent }

// Children returns n's children in document order. The returned slice must
// not be mutated by callers; use AddChild/Detach.
func (n *Node) Children() []*Node { return n.children }

// AddChild appends child to n, taking ownership of it. child must not
// already have a parent (detach it first).
func (n *Node) AddChild(child *Node) error {
	if child.parent != nil {
		return fmt.Errorf("datatree: node %q already has a parent", child.Name)
	}
	if n.Kind != List && n.Kind != Container && n.Kind != Opaque {
		return fmt.Errorf("datatree: cannot add children to a %s node", n.Kind)
	}
	child.parent = n
	n.children = append(n.children, child)
	return nil
}

// Detach removes n from its parent's child list; n becomes the root of its
// own (possibly single-node) tree. Returns false if n had no parent.
func (n *Node) Detach() bool {
	if n.parent == nil {
		return false
	}
	siblings := n.parent.children
	for i, c := range siblings {
		if c == n {
			n.parent.children = append(siblings[:i], siblings[i+1:]...)
			break
		}
	}
	n.parent = nil
	return true
}

// Child returns the first direct child named name, or nil.
func (n *Node) Child(name string) *Node {
	for _, c := range n.children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// ListEntry returns the List child entry whose key leaf equals key, or nil.
func (n *Node) ListEntry(key string) *Node {
	for _, c := range n.children {
		if c.Kind == List && c.Key == key {
			return c
		}
	}
	return nil
}

// Path renders the absolute path from the tree root to n, e.g.
// "/interfaces/interface[name='eth0']".
func (n *Node) Path() string {
	var segs []string
	for cur := n; cur != nil; cur = cur.parent {
		seg := cur.Name
		if cur.Kind == List && cur.Key != "" {
			seg = fmt.Sprintf("%s[name='%s']", cur.Name, cur.Key)
		}
		segs = append([]string{seg}, segs...)
	}
	out := ""
	for _, s := range segs {
		out += "/" + s
	}
	return out
}

// DistinctSiblingNames reports whether every direct child of n has a
// distinct schema-node name among Container/Leaf/LeafList siblings
// (invariant, spec §3); List entries are allowed to repeat the list's own
// name since they are distinguished by key, not by sibling name.
func (n *Node) DistinctSiblingNames() bool {
	seen := map[string]bool{}
	for _, c := range n.children {
		if c.Kind == List {
			continue
		}
		if seen[c.Name] {
			return false
		}
		seen[c.Name] = true
	}
	return true
}

// Clone deep-copies the subtree rooted at n, detached from any parent. Used
// by discard-changes and copy-config, which both need an independent
// snapshot rather than a shared reference (spec §4.8).
func (n *Node) Clone() *Node {
	cp := &Node{
		Name: n.Name, Namespace: n.Namespace, Kind: n.Kind,
		Schema: n.Schema, Value: n.Value, Key: n.Key,
		Attrs: make(map[string]string, len(n.Attrs)),
	}
	for k, v := range n.Attrs {
		cp.Attrs[k] = v
	}
	for _, c := range n.children {
		childCopy := c.Clone()
		childCopy.parent = cp
		cp.children = append(cp.children, childCopy)
	}
	return cp
}

// Equal reports deep structural equality. A List entry child is matched
// against the other node's List entry with the same key, so the order of
// List entries does not matter; every other child is compared in order
// (matching the roundtrip invariant in spec §8).
func (n *Node) Equal(other *Node) bool {
	if n == nil || other == nil {
		return n == other
	}
	if n.Name != other.Name || n.Namespace != other.Namespace || n.Kind != other.Kind {
		return false
	}
	if n.Value != other.Value || n.Key != other.Key {
		return false
	}
	if len(n.children) != len(other.children) {
		return false
	}
	for i, c := range n.children {
		oc := other.children[i]
		if c.Kind == List {
			oc = other.ListEntry(c.Key)
		}
		if oc == nil || !c.Equal(oc) {
			return false
		}
	}
	return true
}
