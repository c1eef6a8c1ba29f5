// Copyright (c) 2026, Ravenhammer Research.
//
// SPDX-License-Identifier: LGPL-2.1-only

package schema_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ravenhammer-research/netd/schema"
)

func ifaceModule() (schema.Module, *schema.Node) {
	root := schema.NewContainer("interfaces", "ietf-interfaces",
		schema.NewList("interface", "ietf-interfaces", []string{"name"},
			schema.NewLeaf("name", "ietf-interfaces"),
			schema.NewLeaf("type", "ietf-interfaces"),
			schema.NewLeaf("enabled", "ietf-interfaces"),
		),
	)
	mod := schema.Module{
		Name:      "ietf-interfaces",
		Namespace: "urn:ietf:params:xml:ns:yang:ietf-interfaces",
		Revision:  "2018-02-20",
	}
	return mod, root
}

func TestLoadAndResolve(t *testing.T) {
	r := schema.NewRegistry()
	mod, root := ifaceModule()
	require.NoError(t, r.Load(mod, root))

	n, err := r.Resolve("/interfaces")
	require.NoError(t, err)
	assert.Equal(t, schema.KindContainer, n.Kind)

	n, err = r.Resolve("/interfaces/interface/name")
	require.NoError(t, err)
	assert.Equal(t, schema.KindLeaf, n.Kind)

	_, err = r.Resolve("/interfaces/interface/mtu")
	assert.Error(t, err)
	var notFound *schema.ErrSchemaNotFound
	assert.ErrorAs(t, err, &notFound)
}

func TestLoadConflictingRevision(t *testing.T) {
	r := schema.NewRegistry()
	mod, root := ifaceModule()
	require.NoError(t, r.Load(mod, root))

	mod2 := mod
	mod2.Revision = "2019-01-01"
	err := r.Load(mod2, root)
	require.Error(t, err)
	var conflict *schema.ErrSchemaConflict
	assert.ErrorAs(t, err, &conflict)
}

func TestLoadSameRevisionIsNoop(t *testing.T) {
	r := schema.NewRegistry()
	mod, root := ifaceModule()
	require.NoError(t, r.Load(mod, root))
	require.NoError(t, r.Load(mod, root))
}

func TestCapabilitiesSortedAndFormatted(t *testing.T) {
	r := schema.NewRegistry()
	mod, root := ifaceModule()
	require.NoError(t, r.Load(mod, root))

	routeMod := schema.Module{
		Name:      "ietf-routing",
		Namespace: "urn:ietf:params:xml:ns:yang:ietf-routing",
		Revision:  "2018-03-13",
	}
	require.NoError(t, r.Load(routeMod, schema.NewContainer("routing", "ietf-routing")))

	caps := r.Capabilities()
	require.Len(t, caps, 2)
	assert.Contains(t, caps[0], "module=ietf-interfaces")
	assert.Contains(t, caps[1], "module=ietf-routing")
}
