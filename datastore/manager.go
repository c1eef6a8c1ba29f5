// Copyright (c) 2026, Ravenhammer Research.
//
// SPDX-License-Identifier: LGPL-2.1-only

package datastore

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ravenhammer-research/netd/datatree"
	"github.com/ravenhammer-research/netd/mgmterr"
)

const defaultConfirmTimeout = 600 * time.Second

// commitReq is one request to the commit actor goroutine, the same
// shape as the teacher's commitmgrreq (commitmgr.go): everything the
// actor needs plus a private reply channel.
type commitReq struct {
	sessionID int64
	confirmed bool
	timeout   time.Duration
	persistID string
	resp      chan commitResp
}

type commitResp struct {
	err error
}

// pendingConfirm tracks an armed confirmed-commit revert timer.
type pendingConfirm struct {
	cancel    context.CancelFunc
	preImage  *datatree.Node
	sessionID int64
	persistID string
}

// Manager owns the three datastores and serializes commits through a
// single actor goroutine, the same "one request channel, one worker"
// shape as the teacher's CommitMgr.run() — at most one commit is ever
// applying against the native backend at a time.
type Manager struct {
	startup   *store
	running   *store
	candidate *store

	backend    NativeBackend
	persistent PersistentStore

	commitCh chan commitReq
	inCommit chan struct{} // capacity 1, acts as a commit-in-progress mutex

	mu      sync.Mutex // guards pending, below
	pending *pendingConfirm

	group *errgroup.Group

	// onConfirmExpire, if set, is called (off the timer goroutine) after
	// an unconfirmed confirmed-commit reverts running, so the dispatcher
	// can emit the notification spec §9 describes as conditional on
	// :notification being advertised — the manager itself knows nothing
	// about sessions or capabilities.
	onConfirmExpire func(sessionID int64)
}

// OnConfirmExpire registers fn to run whenever a confirmed commit's timer
// fires without a confirming commit arriving first.
func (m *Manager) OnConfirmExpire(fn func(sessionID int64)) {
	m.onConfirmExpire = fn
}

// NewManager seeds startup, running and candidate each with its own clone
// of boot. It does not read persistent itself; cmd/netd loads boot from
// the PersistentStore before calling it.
func NewManager(ctx context.Context, backend NativeBackend, persistent PersistentStore, boot *datatree.Node) *Manager {
	m := &Manager{
		backend:    backend,
		persistent: persistent,
		commitCh:   make(chan commitReq),
		inCommit:   make(chan struct{}, 1),
		group:      &errgroup.Group{},
	}
	m.startup = newStore(boot.Clone())
	m.running = newStore(boot.Clone())
	m.candidate = newStore(boot.Clone())
	go m.runCommitActor()
	return m
}

// Close stops the commit actor goroutine and waits for any in-flight
// confirm-timer goroutines to finish, for use during daemon shutdown
// (cmd/netd). Safe to call once; a Commit call racing with Close may see
// its request go unserved if Close wins the race.
func (m *Manager) Close() error {
	close(m.commitCh)
	return m.group.Wait()
}

func (m *Manager) storeFor(ds datatree.Datastore) *store {
	switch ds {
	case datatree.Startup:
		return m.startup
	case datatree.Running:
		return m.running
	case datatree.Candidate:
		return m.candidate
	default:
		return nil
	}
}

// Lock acquires ds's lock for sessionID.
func (m *Manager) Lock(sessionID int64, ds datatree.Datastore) error {
	s := m.storeFor(ds)
	if s == nil {
		return mgmterr.BadElement(string(ds))
	}
	return s.lock(sessionID)
}

// Unlock releases ds's lock, which sessionID must hold.
func (m *Manager) Unlock(sessionID int64, ds datatree.Datastore) error {
	s := m.storeFor(ds)
	if s == nil {
		return mgmterr.BadElement(string(ds))
	}
	return s.unlock(sessionID)
}

// ReleaseSessionLocks drops every lock sessionID holds, called when a
// session closes without an explicit unlock (spec §4.5 "active ... peer_eof").
func (m *Manager) ReleaseSessionLocks(sessionID int64) {
	m.startup.unlockIfHeldBy(sessionID)
	m.running.unlockIfHeldBy(sessionID)
	m.candidate.unlockIfHeldBy(sessionID)
}

// Get answers <get>: running config merged with operational state from
// the native backend.
func (m *Manager) Get(ctx context.Context, filter *datatree.Filter) (*datatree.Node, error) {
	tree := m.running.snapshot()
	if m.backend != nil {
		state, err := m.backend.OperationalState(ctx)
		if err != nil {
			return nil, mgmterr.OperationFailed(mgmterr.KindApplication).WithMessage("%s", err)
		}
		if state != nil {
			for _, c := range state.Children() {
				detached := c.Clone()
				if existing := tree.Child(detached.Name); existing != nil {
					existing.Detach()
				}
				_ = tree.AddChild(detached)
			}
		}
	}
	return filter.Apply(tree), nil
}

// GetConfig answers <get-config>.
func (m *Manager) GetConfig(sessionID int64, ds datatree.Datastore, filter *datatree.Filter) (*datatree.Node, error) {
	s := m.storeFor(ds)
	if s == nil {
		return nil, mgmterr.BadElement(string(ds))
	}
	return filter.Apply(s.snapshot()), nil
}

// EditConfig applies req against its target datastore per spec §4.8.
func (m *Manager) EditConfig(sessionID int64, req datatree.EditConfig) error {
	s := m.storeFor(req.Target)
	if s == nil {
		return mgmterr.BadElement(string(req.Target))
	}
	if err := s.requireWritable(sessionID); err != nil {
		return err
	}

	// working is always an independent clone (store.snapshot deep-copies);
	// the store itself is untouched until we explicitly s.replace it, so
	// "rollback" on a failed rollback-on-error edit is simply "don't".
	working := s.snapshot()

	fallback := defaultToNodeOp(req.DefaultOperation)
	err := m.applyEditConfigWithErrorOption(working, req.Config, fallback, req.ErrorOption)

	if req.TestOption == datatree.TestOnly {
		return err
	}
	if err != nil && req.ErrorOption == datatree.RollbackOnError {
		return err
	}
	// stop-on-error / continue-on-error: whatever succeeded before the
	// failure (if any) is published even though the overall edit reports
	// an error, per RFC 6241 — only rollback-on-error guarantees atomicity.
	s.replace(working)
	return err
}

// applyEditConfigWithErrorOption loops top-level delta elements, honoring
// continue-on-error's "keep going, report all failures" contract; every
// other error option stops at the first failing element.
func (m *Manager) applyEditConfigWithErrorOption(target, delta *datatree.Node, fallback datatree.NodeOperation, errOpt datatree.ErrorOption) error {
	var errs mgmterr.List
	for _, dc := range delta.Children() {
		if err := applyNode(target, dc, fallback); err != nil {
			errs = append(errs, mgmterr.AsList(err)...)
			if errOpt != datatree.ContinueOnError {
				return errs
			}
		}
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// CopyConfig replaces target wholesale with source (spec §4.8).
func (m *Manager) CopyConfig(ctx context.Context, sessionID int64, req datatree.CopyConfig) error {
	target := m.storeFor(req.Target)
	if target == nil {
		return mgmterr.BadElement(string(req.Target))
	}
	if err := target.requireWritable(sessionID); err != nil {
		return err
	}

	var src *datatree.Node
	switch {
	case req.SourceConfig != nil:
		src = req.SourceConfig.Clone()
	case req.Source == datatree.Startup:
		if m.persistent == nil {
			return mgmterr.OperationNotSupported(mgmterr.KindApplication)
		}
		loaded, err := m.persistent.LoadStartup(ctx)
		if err != nil {
			return mgmterr.OperationFailed(mgmterr.KindApplication).WithMessage("%s", err)
		}
		src = loaded
	default:
		s := m.storeFor(req.Source)
		if s == nil {
			return mgmterr.BadElement(string(req.Source))
		}
		src = s.snapshot()
	}

	target.replace(src)

	if req.Target == datatree.Startup && m.persistent != nil {
		if err := m.persistent.SaveStartup(ctx, src.Clone()); err != nil {
			return mgmterr.OperationFailed(mgmterr.KindApplication).WithMessage("%s", err)
		}
	}
	return nil
}

// DeleteConfig empties target; running may never be the target (spec
// §4.8: "candidate and startup only").
func (m *Manager) DeleteConfig(sessionID int64, ds datatree.Datastore) error {
	if ds == datatree.Running {
		return mgmterr.OperationNotSupported(mgmterr.KindApplication).WithMessage("running cannot be deleted")
	}
	s := m.storeFor(ds)
	if s == nil {
		return mgmterr.BadElement(string(ds))
	}
	if err := s.requireWritable(sessionID); err != nil {
		return err
	}
	cur := s.snapshot()
	s.replace(datatree.NewOpaque(cur.Name, cur.Namespace))
	return nil
}

// DiscardChanges replaces candidate with a deep copy of running.
func (m *Manager) DiscardChanges(sessionID int64) error {
	if err := m.candidate.requireWritable(sessionID); err != nil {
		return err
	}
	m.candidate.replace(m.running.snapshot())
	return nil
}

// Validate checks ds without modifying anything. It walks the tree and
// fails with operation-failed on two things a tree built through
// copy-config can contain: two List entries of the same list sharing a
// key under one parent, and two non-List siblings with the same name.
func (m *Manager) Validate(ds datatree.Datastore) error {
	s := m.storeFor(ds)
	if s == nil {
		return mgmterr.BadElement(string(ds))
	}
	return validateTree(s.snapshot())
}

func validateTree(n *datatree.Node) error {
	seen := map[string]bool{}
	for _, c := range n.Children() {
		if c.Kind != datatree.List {
			continue
		}
		id := c.Name + "\x00" + c.Key
		if seen[id] {
			return mgmterr.OperationFailed(mgmterr.KindApplication).
				WithMessage("duplicate list key %q at %s", c.Key, c.Path())
		}
		seen[id] = true
	}
	if !n.DistinctSiblingNames() {
		return mgmterr.OperationFailed(mgmterr.KindApplication).
			WithMessage("duplicate sibling element under %s", n.Path())
	}
	for _, c := range n.Children() {
		if err := validateTree(c); err != nil {
			return err
		}
	}
	return nil
}
