// Copyright (c) 2026, Ravenhammer Research.
//
// SPDX-License-Identifier: LGPL-2.1-only

// Package transport provides the four wire bindings a session can run over:
// a local unix-domain socket authenticated by peer credentials, a TLS
// stream, a DTLS datagram channel, and an HTTP(S) duplex stream. All four
// satisfy the same Handle/Listener contract and each has its own Dial
// function, so the framing and session layers above never know which one
// they're talking to (spec §4.3). No binding implements the Dialer
// interface.
package transport

import (
	"context"
	"fmt"
)

// Kind names one of the four required bindings.
type Kind string

const (
	Local        Kind = "local"
	StreamTLS    Kind = "stream-tls"
	DatagramDTLS Kind = "datagram-dtls"
	HTTP         Kind = "http"
)

// Identity describes who is on the other end of a Handle. For Local it's a
// numeric uid rendered as a string; for the TLS-backed bindings it's the
// peer certificate's subject common name.
type Identity struct {
	Kind  Kind
	Value string
}

func (id Identity) String() string {
	if id.Value == "" {
		return fmt.Sprintf("%s:unknown", id.Kind)
	}
	return fmt.Sprintf("%s:%s", id.Kind, id.Value)
}

// Handle is one established connection, in either direction. Recv and Send
// carry undifferentiated bytes — it's the framing layer's job to find
// message boundaries inside them. A closed peer surfaces as io.EOF from
// Recv; a handle whose Cancel has been called unblocks any in-flight Recv
// or Send with context.Canceled.
type Handle interface {
	Recv(ctx context.Context) ([]byte, error)
	Send(ctx context.Context, b []byte) error
	Close() error
	Cancel()
	Identity() Identity
}

// Listener accepts inbound connections on one binding.
type Listener interface {
	Accept(ctx context.Context) (Handle, error)
	Close() error
	Addr() string
}

// Dialer establishes outbound connections on one binding.
type Dialer interface {
	Connect(ctx context.Context, address string) (Handle, error)
}

// recvBufferSize is the buffer size of every binding's Recv, since all
// four (Local, StreamTLS, DatagramDTLS, HTTP) hand out a streamHandle.
// It bounds a single Recv call, not a whole NETCONF message — the
// framing layer reassembles messages out of however many Recv calls it
// takes.
const recvBufferSize = 32 * 1024
