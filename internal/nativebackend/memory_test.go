// Copyright (c) 2026, Ravenhammer Research.
//
// SPDX-License-Identifier: LGPL-2.1-only

package nativebackend_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ravenhammer-research/netd/datatree"
	"github.com/ravenhammer-research/netd/internal/nativebackend"
)

func TestOperationalStateReflectsLastApplied(t *testing.T) {
	m := nativebackend.New()
	ctx := context.Background()

	state, err := m.OperationalState(ctx)
	require.NoError(t, err)
	commits := state.Child("commit-count")
	require.NotNil(t, commits)
	assert.Equal(t, "0", commits.Value)
	assert.Nil(t, state.Child("interfaces-configured"))

	cfg := datatree.NewOpaque("data", "")
	ifaces := datatree.NewOpaque("interfaces", "")
	iface := datatree.NewOpaque("interface", "")
	iface.Kind = datatree.List
	iface.Key = "eth0"
	require.NoError(t, ifaces.AddChild(iface))
	require.NoError(t, cfg.AddChild(ifaces))

	require.NoError(t, m.ApplyDiff(ctx, nil, cfg))

	state, err = m.OperationalState(ctx)
	require.NoError(t, err)
	commits = state.Child("commit-count")
	require.NotNil(t, commits)
	assert.Equal(t, "1", commits.Value)
	count := state.Child("interfaces-configured")
	require.NotNil(t, count)
	assert.Equal(t, "1", count.Value)
}

func TestStartupRoundtrips(t *testing.T) {
	m := nativebackend.New()
	ctx := context.Background()

	tree := datatree.NewOpaque("data", "")
	hostname := datatree.NewOpaque("hostname", "")
	hostname.Value = "router1"
	require.NoError(t, tree.AddChild(hostname))

	require.NoError(t, m.SaveStartup(ctx, tree))

	loaded, err := m.LoadStartup(ctx)
	require.NoError(t, err)
	got := loaded.Child("hostname")
	require.NotNil(t, got)
	assert.Equal(t, "router1", got.Value)

	// Mutating the loaded tree must not affect the stored copy.
	got.Value = "router2"
	reloaded, err := m.LoadStartup(ctx)
	require.NoError(t, err)
	assert.Equal(t, "router1", reloaded.Child("hostname").Value)
}
