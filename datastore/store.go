// Copyright (c) 2026, Ravenhammer Research.
//
// SPDX-License-Identifier: LGPL-2.1-only

// Package datastore implements C8: the three-datastore manager (startup,
// running, candidate), lock discipline, edit-config/copy-config/commit
// semantics, and confirmed-commit expiry. Locking and the commit
// serialization pattern below are modeled on the teacher's
// session.CommitMgr (commitmgr.go): a single actor goroutine accepting
// requests over a channel so at most one commit is ever in flight,
// combined here with golang.org/x/sync/errgroup for the confirmed-commit
// revert timer and google/uuid for persist-ids.
package datastore

import (
	"sync"

	"github.com/ravenhammer-research/netd/datatree"
	"github.com/ravenhammer-research/netd/mgmterr"
)

// store holds one datastore's tree plus its lock state. Reads take the
// shared lock; writes take the exclusive lock only for as long as it
// takes to read or swap the tree pointer — never across a suspension
// point (spec §4.8 "Serialization").
type store struct {
	mu   sync.RWMutex
	tree *datatree.Node

	lockMu   sync.Mutex
	lockedBy int64 // 0 = unlocked
}

func newStore(root *datatree.Node) *store {
	return &store{tree: root}
}

// snapshot returns a deep copy of the current tree, safe for the caller
// to mutate or hold onto across suspension points.
func (s *store) snapshot() *datatree.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree.Clone()
}

// replace atomically swaps in a new tree.
func (s *store) replace(tree *datatree.Node) {
	s.mu.Lock()
	s.tree = tree
	s.mu.Unlock()
}

// lock acquires the datastore lock for sessionID, or fails with
// lock-denied if another session already holds it.
func (s *store) lock(sessionID int64) error {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	if s.lockedBy != 0 && s.lockedBy != sessionID {
		return mgmterr.LockDenied(s.lockedBy)
	}
	s.lockedBy = sessionID
	return nil
}

// unlock releases the lock, which must be held by sessionID.
func (s *store) unlock(sessionID int64) error {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	if s.lockedBy == 0 {
		return mgmterr.OperationFailed(mgmterr.KindApplication).WithMessage("datastore is not locked")
	}
	if s.lockedBy != sessionID {
		return mgmterr.LockDenied(s.lockedBy)
	}
	s.lockedBy = 0
	return nil
}

// unlockIfHeldBy releases the lock unconditionally if sessionID holds it;
// used when a session closes without an explicit unlock.
func (s *store) unlockIfHeldBy(sessionID int64) {
	s.lockMu.Lock()
	if s.lockedBy == sessionID {
		s.lockedBy = 0
	}
	s.lockMu.Unlock()
}

// requireWritable fails with lock-denied if the store is locked by a
// session other than sessionID. Reads never call this (spec §4.8 "reads
// are always permitted").
func (s *store) requireWritable(sessionID int64) error {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	if s.lockedBy != 0 && s.lockedBy != sessionID {
		return mgmterr.LockDenied(s.lockedBy)
	}
	return nil
}
