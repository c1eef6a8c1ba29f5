// Copyright (c) 2026, Ravenhammer Research.
//
// SPDX-License-Identifier: LGPL-2.1-only

package datatree_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ravenhammer-research/netd/datatree"
)

func buildInterfacesTree() *datatree.Node {
	root := datatree.NewOpaque("interfaces", "")
	for _, name := range []string{"eth0", "eth1"} {
		entry := datatree.NewOpaque("interface", "")
		entry.Key = name
		nameLeaf := datatree.NewOpaque("name", "")
		nameLeaf.Value = name
		_ = entry.AddChild(nameLeaf)
		_ = root.AddChild(entry)
	}
	return root
}

func TestSubtreeFilterMatchesSelectedEntry(t *testing.T) {
	tree := buildInterfacesTree()

	filterTree := datatree.NewOpaque("interfaces", "")
	entry := datatree.NewOpaque("interface", "")
	nameLeaf := datatree.NewOpaque("name", "")
	nameLeaf.Value = "eth0"
	_ = entry.AddChild(nameLeaf)
	_ = filterTree.AddChild(entry)

	f := &datatree.Filter{Type: datatree.FilterSubtree, Subtree: filterTree}
	pruned := f.Apply(tree)

	require.Len(t, pruned.Children(), 1)
	assert.Equal(t, "eth0", pruned.Children()[0].Key)
}

func TestNilFilterReturnsWholeTree(t *testing.T) {
	tree := buildInterfacesTree()
	var f *datatree.Filter
	pruned := f.Apply(tree)
	assert.Len(t, pruned.Children(), 2)
}

func TestXPathFilterRoundtrip(t *testing.T) {
	f := &datatree.Filter{Type: datatree.FilterXPath, Select: "/interfaces/interface[name='eth0']"}
	n := f.ToNode()
	got := datatree.ParseFilter(n)
	require.Equal(t, datatree.FilterXPath, got.Type)
	assert.Equal(t, f.Select, got.Select)
}
