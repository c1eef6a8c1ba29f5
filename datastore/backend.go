// Copyright (c) 2026, Ravenhammer Research.
//
// SPDX-License-Identifier: LGPL-2.1-only

package datastore

import (
	"context"

	"github.com/ravenhammer-research/netd/datatree"
)

// NativeBackend is the external collaborator commit hands the
// running-candidate diff to for OS application (spec §4.8 "commit
// contract"), and answers the operational-state half of <get>. Grounded
// on the teacher's `session/commitmgr.go` pattern of handing the
// merged/committed tree to `sctx.CompMgr.ComponentSetRunningWithLog`
// rather than touching the kernel directly from the commit path itself —
// the same narrow-interface-to-an-external-system shape, generalized
// from "component manager" to "native backend".
type NativeBackend interface {
	// ApplyDiff pushes the move from previous to next to the OS. An error
	// return means nothing was applied, or was only partially applied and
	// has already been rolled back by the backend itself; the datastore
	// manager treats any error as "running must revert to previous".
	ApplyDiff(ctx context.Context, previous, next *datatree.Node) error

	// OperationalState returns read-only state data to merge into <get>
	// responses alongside running config (spec §4.6, the `get` handler).
	OperationalState(ctx context.Context) (*datatree.Node, error)
}

// PersistentStore is where copy-config writes/reads the startup
// datastore through to durable storage (spec §4.8 "copy-config").
type PersistentStore interface {
	LoadStartup(ctx context.Context) (*datatree.Node, error)
	SaveStartup(ctx context.Context, tree *datatree.Node) error
}
