// Copyright (c) 2026, Ravenhammer Research.
//
// SPDX-License-Identifier: LGPL-2.1-only

package datatree

// Datastore names one of the three configuration datastores (spec §3, §4.8).
type Datastore string

const (
	Startup   Datastore = "startup"
	Running   Datastore = "running"
	Candidate Datastore = "candidate"
)

// DefaultOperation is edit-config's tree-wide merge strategy (spec §4.8).
type DefaultOperation string

const (
	OpMerge   DefaultOperation = "merge"
	OpReplace DefaultOperation = "replace"
	OpNone    DefaultOperation = "none"
)

// ErrorOption controls edit-config's behavior on a per-node failure.
type ErrorOption string

const (
	StopOnError     ErrorOption = "stop-on-error"
	ContinueOnError ErrorOption = "continue-on-error"
	RollbackOnError ErrorOption = "rollback-on-error"
)

// TestOption controls whether edit-config validates, applies, or both.
type TestOption string

const (
	TestThenSet TestOption = "test-then-set"
	SetOnly     TestOption = "set"
	TestOnly    TestOption = "test-only"
)

// NodeOperation is the per-element "operation" attribute inside an
// edit-config config tree (spec §4.8).
type NodeOperation string

const (
	NodeMerge   NodeOperation = "merge"
	NodeReplace NodeOperation = "replace"
	NodeCreate  NodeOperation = "create"
	NodeDelete  NodeOperation = "delete"
	NodeRemove  NodeOperation = "remove"
)

// Hello is the capability-exchange message exchanged before any RPC.
type Hello struct {
	Capabilities []string
	SessionID    int64 // server -> client only; 0 when absent
}

// HelloFromNode extracts a Hello from a parsed <hello> envelope.
func HelloFromNode(n *Node) *Hello {
	h := &Hello{}
	if caps := n.Child("capabilities"); caps != nil {
		for _, c := range caps.Children() {
			h.Capabilities = append(h.Capabilities, c.Value)
		}
	}
	if sid := n.Child("session-id"); sid != nil {
		var v int64
		for _, ch := range sid.Value {
			if ch < '0' || ch > '9' {
				v = 0
				break
			}
			v = v*10 + int64(ch-'0')
		}
		h.SessionID = v
	}
	return h
}

// ToNode renders a Hello back to its envelope.
func (h *Hello) ToNode() *Node {
	n := NewOpaque("hello", baseNS)
	caps := NewOpaque("capabilities", baseNS)
	for _, c := range h.Capabilities {
		capNode := NewOpaque("capability", baseNS)
		capNode.Value = c
		_ = caps.AddChild(capNode)
	}
	_ = n.AddChild(caps)
	if h.SessionID != 0 {
		sid := NewOpaque("session-id", baseNS)
		sid.Value = itoa(h.SessionID)
		_ = n.AddChild(sid)
	}
	return n
}

func itoa(v int64) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Get is the <get> request: read running merged with operational state.
type Get struct {
	Filter *Filter
}

// GetConfig is the <get-config> request.
type GetConfig struct {
	Source Datastore
	Filter *Filter
}

// EditConfig is the <edit-config> request.
type EditConfig struct {
	Target           Datastore
	Config           *Node
	DefaultOperation DefaultOperation
	ErrorOption      ErrorOption
	TestOption       TestOption
}

// CopyConfig is the <copy-config> request. Source/Target are either a
// Datastore name or an inline config tree (for Source only, per RFC 6241).
type CopyConfig struct {
	Source       Datastore
	SourceConfig *Node // set instead of Source when copying from an inline tree
	Target       Datastore
}

// DeleteConfig is the <delete-config> request. Target must not be running.
type DeleteConfig struct {
	Target Datastore
}

// Lock / Unlock request the named datastore's lock.
type Lock struct{ Target Datastore }
type Unlock struct{ Target Datastore }

// Commit is the <commit> request, with optional confirmed-commit fields.
type Commit struct {
	Confirmed      bool
	TimeoutSeconds int64 // 0 => default 600s
	PersistID      string
}

// DiscardChanges is the <discard-changes> request (no arguments).
type DiscardChanges struct{}

// Validate is the <validate> request.
type Validate struct {
	Source Datastore
}

// CloseSession is the <close-session> request (no arguments).
type CloseSession struct{}

// KillSession is the <kill-session> request.
type KillSession struct {
	SessionID int64
}

// GetSchema is the RFC 6022 <get-schema> request.
type GetSchema struct {
	Identifier string
	Version    string
	Format     string
}
