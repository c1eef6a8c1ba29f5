// Copyright (c) 2026, Ravenhammer Research.
//
// SPDX-License-Identifier: LGPL-2.1-only

package datastore

import (
	"github.com/ravenhammer-research/netd/datatree"
	"github.com/ravenhammer-research/netd/mgmterr"
)

// operationAttrKeys lists the attribute names the codec may store an
// edit-config element's per-node operation under. Both the unprefixed and the
// nc-prefixed spellings are accepted since different peers render the
// "nc:operation" attribute's qualified name differently.
var operationAttrKeys = []string{"nc:operation", "operation"}

func nodeOperation(n *datatree.Node, fallback datatree.NodeOperation) datatree.NodeOperation {
	for _, k := range operationAttrKeys {
		if v, ok := n.Attrs[k]; ok && v != "" {
			return datatree.NodeOperation(v)
		}
	}
	return fallback
}

// defaultToNodeOp maps edit-config's tree-wide default-operation onto the
// per-node operation vocabulary (spec §4.8): "none" means untouched
// elements are left alone, which for a present delta element with no
// explicit operation attribute still means "merge its content in" — RFC
// 6241 §7.2 treats an element appearing under default-operation=none as a
// no-op only when it carries no operation attribute AND no descendant
// does either; that refinement is out of scope here, so "none" is
// treated as "merge", the conservative direction (no element in a
// submitted config is ever silently dropped).
func defaultToNodeOp(d datatree.DefaultOperation) datatree.NodeOperation {
	switch d {
	case datatree.OpReplace:
		return datatree.NodeReplace
	default:
		return datatree.NodeMerge
	}
}

// applyNode applies one delta child (dc) against parent's existing
// children, recursing into merge for container/list descendants.
func applyNode(parent, dc *datatree.Node, fallback datatree.NodeOperation) error {
	op := nodeOperation(dc, fallback)

	existing := findExisting(parent, dc)

	switch op {
	case datatree.NodeCreate:
		if existing != nil {
			return mgmterr.DataExists(dc.Path())
		}
		return appendClone(parent, dc)

	case datatree.NodeDelete:
		if existing == nil {
			return mgmterr.DataMissing(dc.Path())
		}
		existing.Detach()
		return nil

	case datatree.NodeRemove:
		if existing != nil {
			existing.Detach()
		}
		return nil

	case datatree.NodeReplace:
		if existing != nil {
			existing.Detach()
		}
		return appendClone(parent, dc)

	default: // NodeMerge
		if existing == nil {
			if len(dc.Children()) == 0 {
				return appendClone(parent, dc)
			}
			// dc has descendants that may themselves carry an explicit
			// operation (e.g. "delete" on a node that turns out to be
			// absent): create an empty shell for dc rather than cloning
			// its subtree wholesale, so every descendant is still walked
			// through applyNode and gets its own semantics checked,
			// instead of being silently materialized along with dc.
			shell := shellOf(dc)
			if err := parent.AddChild(shell); err != nil {
				return err
			}
			existing = shell
		}
		if len(dc.Children()) == 0 {
			existing.Value = dc.Value
			return nil
		}
		for _, grandchild := range dc.Children() {
			if err := applyNode(existing, grandchild, fallback); err != nil {
				return err
			}
		}
		return nil
	}
}

// shellOf returns a childless copy of dc — same identity (name,
// namespace, kind, key, schema) but no descendants and no operation
// attribute — used to materialize an absent ancestor one level at a time
// so descendants still go through applyNode individually.
func shellOf(dc *datatree.Node) *datatree.Node {
	attrs := make(map[string]string, len(dc.Attrs))
	for k, v := range dc.Attrs {
		attrs[k] = v
	}
	for _, k := range operationAttrKeys {
		delete(attrs, k)
	}
	return &datatree.Node{
		Name:      dc.Name,
		Namespace: dc.Namespace,
		Kind:      dc.Kind,
		Schema:    dc.Schema,
		Key:       dc.Key,
		Attrs:     attrs,
	}
}

// findExisting locates the parent child dc corresponds to: by key for
// List entries, by name otherwise (containers/leafs are singletons among
// their siblings per the DistinctSiblingNames invariant).
func findExisting(parent, dc *datatree.Node) *datatree.Node {
	if dc.Kind == datatree.List {
		return parent.ListEntry(dc.Key)
	}
	return parent.Child(dc.Name)
}

// appendClone adds a clone of dc to parent, with the operation attribute
// removed from the clone (it has no meaning once committed to a datastore
// tree); dc itself is left unchanged.
func appendClone(parent, dc *datatree.Node) error {
	clone := dc.Clone()
	for _, k := range operationAttrKeys {
		delete(clone.Attrs, k)
	}
	return parent.AddChild(clone)
}
