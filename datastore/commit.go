// Copyright (c) 2026, Ravenhammer Research.
//
// SPDX-License-Identifier: LGPL-2.1-only

package datastore

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ravenhammer-research/netd/datatree"
	"github.com/ravenhammer-research/netd/mgmterr"
)

// runCommitActor is the single goroutine every Commit call funnels
// through, the same channel-serialized shape as the teacher's
// CommitMgr.run(): at most one commit applies against the native
// backend at a time. The loop handles one request at a time, so a Commit
// call made while another commit is applying waits on the unbuffered
// commitCh until that commit has finished; inCommit is therefore always
// free when a request arrives here, and the resource-denied branch is
// not taken.
func (m *Manager) runCommitActor() {
	for req := range m.commitCh {
		select {
		case m.inCommit <- struct{}{}:
		default:
			req.resp <- commitResp{err: mgmterr.ResourceDenied(mgmterr.KindProtocol).
				WithMessage("a commit is already in progress")}
			continue
		}
		err := m.doCommit(context.Background(), req)
		<-m.inCommit
		req.resp <- commitResp{err: err}
	}
}

// Commit promotes candidate to running and asks the native backend to
// apply the diff (spec §4.8 "commit contract").
func (m *Manager) Commit(ctx context.Context, sessionID int64, req datatree.Commit) error {
	timeout := defaultConfirmTimeout
	if req.TimeoutSeconds > 0 {
		timeout = secondsToDuration(req.TimeoutSeconds)
	}

	persistID := req.PersistID
	if req.Confirmed && persistID == "" {
		persistID = uuid.NewString()
	}

	respCh := make(chan commitResp, 1)
	m.commitCh <- commitReq{
		sessionID: sessionID,
		confirmed: req.Confirmed,
		timeout:   timeout,
		persistID: persistID,
		resp:      respCh,
	}
	resp := <-respCh
	return resp.err
}

func (m *Manager) doCommit(ctx context.Context, req commitReq) error {
	if err := m.candidate.requireWritable(req.sessionID); err != nil {
		return err
	}
	if err := m.running.requireWritable(req.sessionID); err != nil {
		return err
	}

	// A bare (non-confirming) commit while a confirmed-commit window is
	// open is itself the confirmation; a persist-id on that commit must
	// match the one the timer was armed with (spec §4.8: "a persistence
	// id may be supplied to make the confirm survive session loss").
	m.mu.Lock()
	prior := m.pending
	if prior != nil && req.persistID != "" && prior.persistID != req.persistID {
		m.mu.Unlock()
		return mgmterr.InvalidValue(mgmterr.KindApplication).
			WithMessage("persist-id does not match the pending confirmed commit")
	}
	m.pending = nil
	m.mu.Unlock()
	if prior != nil {
		prior.cancel()
	}

	previous := m.running.snapshot()
	next := m.candidate.snapshot()

	// Promote candidate to running before asking the backend to apply,
	// per spec §4.8: "commit copies candidate to running, then asks the
	// native backend ... to apply the diff". If apply fails, running is
	// reverted to previous.
	m.running.replace(next)

	if m.backend != nil {
		if err := m.backend.ApplyDiff(ctx, previous, next); err != nil {
			m.running.replace(previous)
			return mgmterr.OperationFailed(mgmterr.KindApplication).WithMessage("%s", err)
		}
	}

	if req.confirmed {
		m.armConfirmTimer(req.sessionID, req.persistID, previous, req.timeout)
	}
	return nil
}

// armConfirmTimer starts the revert-unless-confirmed countdown (spec
// §4.8 "confirmed commits arm a timer"). It runs on its own goroutine
// rather than inside the commit actor loop so the actor stays free to
// process the confirming bare commit (or a superseding confirmed commit)
// while the timer is still ticking.
func (m *Manager) armConfirmTimer(sessionID int64, persistID string, preImage *datatree.Node, timeout time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	m.mu.Lock()
	m.pending = &pendingConfirm{cancel: cancel, preImage: preImage, sessionID: sessionID, persistID: persistID}
	m.mu.Unlock()

	m.group.Go(func() error {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
			m.mu.Lock()
			if m.pending != nil && m.pending.persistID == persistID {
				m.pending = nil
				m.mu.Unlock()
				m.running.replace(preImage)
				if m.onConfirmExpire != nil {
					m.onConfirmExpire(sessionID)
				}
				return nil
			}
			m.mu.Unlock()
			return nil
		}
	})
}

func secondsToDuration(s int64) time.Duration {
	return time.Duration(s) * time.Second
}
