// Copyright (c) 2026, Ravenhammer Research.
//
// SPDX-License-Identifier: LGPL-2.1-only

// Package expect implements C7: the client-side expectation registry.
// register/deliver/cancel track one outstanding request per (session,
// message-id) pair and resolve it either with the matching reply or,
// once its TTL elapses, with a timeout error (spec §4.7).
//
// Grounded on github.com/jellydator/ttlcache/v3, already part of the
// teacher's dependency set: its own reaper (Cache.Start) runs a janitor
// goroutine that wakes for the next expiring item rather than polling a
// fixed interval, which satisfies spec §4.7's "wakes at a bounded
// interval" more precisely than a hand-rolled ticker would, and its
// OnEviction hook is exactly the "an expired expectation with a waiter
// resolves with timeout" callback point the spec calls for.
package expect

import (
	"context"
	"fmt"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/ravenhammer-research/netd/datatree"
	"github.com/ravenhammer-research/netd/mgmterr"
)

// Handle identifies one registered expectation for Cancel.
type Handle struct {
	key string
}

// Result is what an expectation resolves to: exactly one of Reply or
// Err is set.
type Result struct {
	Reply *datatree.Reply
	Err   error
}

type expectation struct {
	sessionID int64
	messageID string
	ch        chan Result
}

// Registry is the shared, internally-synchronized expectation table
// (spec §5 "Shared resources").
type Registry struct {
	cache *ttlcache.Cache[string, *expectation]
}

// NewRegistry starts the background reaper and returns a ready Registry.
func NewRegistry() *Registry {
	cache := ttlcache.New[string, *expectation]()
	cache.OnEviction(func(ctx context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[string, *expectation]) {
		if reason != ttlcache.EvictionReasonExpired {
			return
		}
		exp := item.Value()
		select {
		case exp.ch <- Result{Err: mgmterr.Timeout()}:
		default:
		}
	})
	go cache.Start()
	return &Registry{cache: cache}
}

// Stop shuts the reaper down. Called when the owning client disconnects.
func (r *Registry) Stop() {
	r.cache.Stop()
}

func compositeKey(sessionID int64, messageID string) string {
	return fmt.Sprintf("%d/%s", sessionID, messageID)
}

// Register records an outstanding request, returning a Handle for
// Cancel and a channel that receives exactly one Result: the matching
// reply (Deliver), a timeout (ttl elapses with nobody delivering), or
// nothing at all if Cancel is called first.
func (r *Registry) Register(sessionID int64, messageID string, ttl time.Duration) (Handle, <-chan Result) {
	ch := make(chan Result, 1)
	k := compositeKey(sessionID, messageID)
	r.cache.Set(k, &expectation{sessionID: sessionID, messageID: messageID, ch: ch}, ttl)
	return Handle{key: k}, ch
}

// Deliver resolves the expectation for (sessionID, messageID) with
// reply, reporting whether one was outstanding. A reply whose
// expectation has already been canceled or has expired returns false;
// the caller logs and drops it (spec §4.7 "Cancellation").
func (r *Registry) Deliver(sessionID int64, messageID string, reply *datatree.Reply) bool {
	k := compositeKey(sessionID, messageID)
	item := r.cache.Get(k)
	if item == nil {
		return false
	}
	exp := item.Value()
	r.cache.Delete(k)
	select {
	case exp.ch <- Result{Reply: reply}:
		return true
	default:
		return false
	}
}

// Cancel removes the expectation immediately without resolving its
// channel; a reply that arrives afterward has nowhere to go and is
// dropped by Deliver returning false.
func (r *Registry) Cancel(h Handle) {
	r.cache.Delete(h.key)
}

// CancelSession removes every outstanding expectation belonging to
// sessionID, the "no expectation outlives its session" invariant (spec
// §4.7) applied when a session closes.
func (r *Registry) CancelSession(sessionID int64) {
	for k, item := range r.cache.Items() {
		if item.Value().sessionID == sessionID {
			r.cache.Delete(k)
		}
	}
}
