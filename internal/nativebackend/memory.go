// Copyright (c) 2026, Ravenhammer Research.
//
// SPDX-License-Identifier: LGPL-2.1-only

// Package nativebackend is a deterministic in-memory stand-in for the
// host-OS commit target (spec §6 "NativeBackend"), analogous to
// original_source/freebsd being one concrete implementation behind the
// same interface. It applies nothing to the real host: ApplyDiff just
// records the tree it was handed, and OperationalState reports a small
// synthetic state tree built from that record, so `cmd/netd -backend=memory`
// can run end to end without root privileges or a live network stack.
package nativebackend

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/ravenhammer-research/netd/datatree"
)

// Memory is a NativeBackend + PersistentStore pair that keeps both the
// last-applied config and the startup datastore in process memory.
type Memory struct {
	mu      sync.Mutex
	applied *datatree.Node
	startup *datatree.Node
	commits int

	bootedAt time.Time
}

// New returns a Memory backend with an empty startup datastore.
func New() *Memory {
	return &Memory{
		startup:  datatree.NewOpaque("data", ""),
		bootedAt: time.Now(),
	}
}

// ApplyDiff records next as the new applied tree. previous is unused here
// (a real backend would use it to compute a minimal delta); the memory
// backend always takes the whole next tree since it has no underlying
// resource to diff against.
func (m *Memory) ApplyDiff(ctx context.Context, previous, next *datatree.Node) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applied = next.Clone()
	m.commits++
	return nil
}

// OperationalState reports a small state tree: an interfaces-count leaf
// derived from the last applied config, plus an uptime leaf, under a
// "state" container — enough to exercise <get>'s config+state merge (spec
// §4.6) without modeling a real device.
func (m *Memory) OperationalState(ctx context.Context) (*datatree.Node, error) {
	m.mu.Lock()
	applied := m.applied
	commits := m.commits
	uptime := time.Since(m.bootedAt)
	m.mu.Unlock()

	state := datatree.NewOpaque("state", "")

	commitsLeaf := datatree.NewOpaque("commit-count", "")
	commitsLeaf.Value = strconv.Itoa(commits)
	if err := state.AddChild(commitsLeaf); err != nil {
		return nil, err
	}

	uptimeLeaf := datatree.NewOpaque("uptime-seconds", "")
	uptimeLeaf.Value = strconv.Itoa(int(uptime.Seconds()))
	if err := state.AddChild(uptimeLeaf); err != nil {
		return nil, err
	}

	if applied != nil {
		if ifaces := applied.Child("interfaces"); ifaces != nil {
			countLeaf := datatree.NewOpaque("interfaces-configured", "")
			countLeaf.Value = strconv.Itoa(len(ifaces.Children()))
			if err := state.AddChild(countLeaf); err != nil {
				return nil, err
			}
		}
	}

	return state, nil
}

// LoadStartup returns the persisted startup datastore (spec §4.8
// "copy-config"). The memory backend keeps it as a plain in-process value,
// so the returned tree survives only as long as this process runs.
func (m *Memory) LoadStartup(ctx context.Context) (*datatree.Node, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startup.Clone(), nil
}

// SaveStartup replaces the persisted startup datastore with tree.
func (m *Memory) SaveStartup(ctx context.Context, tree *datatree.Node) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startup = tree.Clone()
	return nil
}
