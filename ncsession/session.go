// Copyright (c) 2026, Ravenhammer Research.
//
// SPDX-License-Identifier: LGPL-2.1-only

// Package ncsession implements the NETCONF protocol session state machine
// (spec §4.5): hello exchange, capability intersection, message-id
// allocation, and the state transitions that gate which messages may be
// sent or received. This is distinct from the config-editing sessions the
// candidate/running/startup datastore manager tracks — see the datastore
// package for that.
package ncsession

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ravenhammer-research/netd/framing"
	"github.com/ravenhammer-research/netd/mgmterr"
	"github.com/ravenhammer-research/netd/transport"
)

// State is one node of the state machine in spec §4.5.
type State int

const (
	Initializing State = iota
	HelloSent
	HelloReceived
	Active
	Closing
	Closed
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case HelloSent:
		return "hello_sent"
	case HelloReceived:
		return "hello_received"
	case Active:
		return "active"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Capability URIs this implementation understands and may negotiate.
const (
	CapBase10             = "urn:ietf:params:netconf:base:1.0"
	CapBase11              = "urn:ietf:params:netconf:base:1.1"
	CapCandidate            = "urn:ietf:params:netconf:capability:candidate:1.0"
	CapConfirmedCommit      = "urn:ietf:params:netconf:capability:confirmed-commit:1.1"
	CapRollbackOnError      = "urn:ietf:params:netconf:capability:rollback-on-error:1.0"
	CapValidate             = "urn:ietf:params:netconf:capability:validate:1.1"
	CapStartup              = "urn:ietf:params:netconf:capability:startup:1.0"
	CapXPath                = "urn:ietf:params:netconf:capability:xpath:1.0"
	CapWritableRunning       = "urn:ietf:params:netconf:capability:writable-running:1.0"
	CapNotification          = "urn:ietf:params:netconf:capability:notification:1.0"
	CapNetconfMonitoring     = "urn:ietf:params:netconf:capability:monitoring:1.0"
)

// NegotiatedCaps is the capability intersection computed once both hellos
// have been exchanged (spec §4.5 "Hello exchange").
type NegotiatedCaps struct {
	Base11            bool
	Candidate         bool
	ConfirmedCommit   bool
	RollbackOnError   bool
	Validate          bool
	Startup           bool
	XPath             bool
	WritableRunning   bool
	Notification      bool
	NetconfMonitoring bool
}

func intersect(local, peer []string) NegotiatedCaps {
	peerSet := make(map[string]bool, len(peer))
	for _, c := range peer {
		peerSet[c] = true
	}
	has := func(uri string) bool {
		for _, c := range local {
			if c == uri {
				return peerSet[uri]
			}
		}
		return false
	}
	return NegotiatedCaps{
		Base11:            has(CapBase11),
		Candidate:         has(CapCandidate),
		ConfirmedCommit:   has(CapConfirmedCommit),
		RollbackOnError:   has(CapRollbackOnError),
		Validate:          has(CapValidate),
		Startup:           has(CapStartup),
		XPath:             has(CapXPath),
		WritableRunning:   has(CapWritableRunning),
		Notification:      has(CapNotification),
		NetconfMonitoring: has(CapNetconfMonitoring),
	}
}

// Session is one NETCONF protocol session, wrapping a transport.Handle and
// the Framer negotiated onto it.
type Session struct {
	ID       int64
	IsServer bool

	handle transport.Handle
	framer *framing.Framer

	mu              sync.Mutex
	state           State
	localCaps       []string
	peerCaps        []string
	negotiated      NegotiatedCaps
	lastMessageID   int64
	outstanding     map[string]bool
}

// New creates a session in Initializing state. id is 0 for a client
// session before the server assigns one in its hello.
func New(id int64, isServer bool, handle transport.Handle, localCaps []string) *Session {
	return &Session{
		ID:          id,
		IsServer:    isServer,
		handle:      handle,
		framer:      framing.NewFramer(handle),
		state:       Initializing,
		localCaps:   localCaps,
		outstanding: make(map[string]bool),
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Negotiated() NegotiatedCaps {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.negotiated
}

func (s *Session) PeerCapabilities() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.peerCaps...)
}

// transition enforces the directed-graph of spec §4.5; an illegal move is
// a programming error in the caller, not a protocol error, so it panics —
// every call site below only ever requests a move the state machine
// allows.
func (s *Session) transition(from, to State) {
	if s.state != from {
		panic(fmt.Sprintf("ncsession: illegal transition %s -> %s from state %s", from, to, s.state))
	}
	s.state = to
}

// SentHello records that this side has sent its hello, advancing out of
// Initializing (or completing the handshake if the peer's hello already
// arrived).
func (s *Session) SentHello(caps []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.localCaps = caps
	switch s.state {
	case Initializing:
		s.transition(Initializing, HelloSent)
	case HelloReceived:
		s.transition(HelloReceived, Active)
		s.afterHandshakeLocked()
	default:
		panic(fmt.Sprintf("ncsession: SentHello in state %s", s.state))
	}
}

// ReceivedHello records the peer's capability list, completing the
// handshake if this side already sent its own hello.
func (s *Session) ReceivedHello(peerCaps []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peerCaps = peerCaps
	switch s.state {
	case Initializing:
		s.transition(Initializing, HelloReceived)
	case HelloSent:
		s.transition(HelloSent, Active)
		s.afterHandshakeLocked()
	default:
		panic(fmt.Sprintf("ncsession: ReceivedHello in state %s", s.state))
	}
}

// afterHandshakeLocked computes the capability intersection and upgrades
// framing to chunked when both sides advertised base 1.1 (spec §4.5).
// Caller holds s.mu.
func (s *Session) afterHandshakeLocked() {
	s.negotiated = intersect(s.localCaps, s.peerCaps)
	if s.negotiated.Base11 {
		s.framer.SetMode(framing.Chunked)
	}
}

// RequireActive returns a protocol/operation-failed error unless the
// session is Active — the only state generic RPCs may flow in (spec
// §4.5).
func (s *Session) RequireActive() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Active {
		return mgmterr.OperationFailed(mgmterr.KindProtocol).
			WithMessage("session not active (state %s)", s.state)
	}
	return nil
}

// BeginClosing moves the session to Closing; Closed is reached once the
// transport handle is actually torn down (Close).
func (s *Session) BeginClosing() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Closing || s.state == Closed {
		return
	}
	s.state = Closing
}

func (s *Session) Close() error {
	s.mu.Lock()
	s.state = Closed
	s.mu.Unlock()
	return s.handle.Close()
}

// NextMessageID allocates a strictly monotonic outbound message-id and
// marks it outstanding.
func (s *Session) NextMessageID() string {
	id := atomic.AddInt64(&s.lastMessageID, 1)
	mid := fmt.Sprintf("%d", id)
	s.mu.Lock()
	s.outstanding[mid] = true
	s.mu.Unlock()
	return mid
}

// ResolveOutstanding reports whether id was outstanding, removing it
// either way. A reply whose id was never outstanding must be logged and
// discarded by the caller (spec §4.5).
func (s *Session) ResolveOutstanding(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	was := s.outstanding[id]
	delete(s.outstanding, id)
	return was
}

// Recv reads the next framed message, blocking until one arrives or ctx
// ends.
func (s *Session) Recv(ctx context.Context) ([]byte, error) {
	return s.framer.NextMessage(ctx)
}

// Send frames and writes msg.
func (s *Session) Send(ctx context.Context, msg []byte) error {
	return s.framer.WriteMessage(ctx, msg)
}

// DefaultCapabilities is the capability set this implementation advertises
// in its own hello (spec §6).
func DefaultCapabilities(monitoringEnabled bool) []string {
	caps := []string{
		CapBase10,
		CapBase11,
		CapCandidate,
		CapConfirmedCommit,
		CapRollbackOnError,
		CapValidate,
		CapStartup,
		CapXPath,
		CapWritableRunning,
	}
	if monitoringEnabled {
		caps = append(caps, CapNetconfMonitoring)
	}
	return caps
}
