// Copyright (c) 2026, Ravenhammer Research.
//
// SPDX-License-Identifier: LGPL-2.1-only

package ncsession

import (
	"sync"
	"sync/atomic"

	"github.com/ravenhammer-research/netd/mgmterr"
)

// Registry tracks every active session by id, the server-side counterpart
// to the teacher's SessionMgr (sessionmgr.go) keyed by session-id instead
// of CLI session token, guarding the map with the same RWMutex discipline.
type Registry struct {
	mu      sync.RWMutex
	byID    map[int64]*Session
	nextID  int64
}

func NewRegistry() *Registry {
	return &Registry{byID: make(map[int64]*Session)}
}

// Register assigns the next session-id to s (overwriting s.ID, which must
// be 0 coming in) and adds it to the registry.
func (r *Registry) Register(s *Session) int64 {
	id := atomic.AddInt64(&r.nextID, 1)
	s.ID = id
	r.mu.Lock()
	r.byID[id] = s
	r.mu.Unlock()
	return id
}

func (r *Registry) Get(id int64) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byID[id]
	if !ok {
		return nil, mgmterr.OperationFailed(mgmterr.KindApplication).
			WithMessage("session %d does not exist", id)
	}
	return s, nil
}

func (r *Registry) Remove(id int64) {
	r.mu.Lock()
	delete(r.byID, id)
	r.mu.Unlock()
}

// All returns a snapshot of every registered session.
func (r *Registry) All() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.byID))
	for _, s := range r.byID {
		out = append(out, s)
	}
	return out
}
