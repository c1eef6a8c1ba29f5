// Copyright (c) 2026, Ravenhammer Research.
//
// SPDX-License-Identifier: LGPL-2.1-only

package dispatcher_test

import (
	"context"
	"io"
	"sync"

	"github.com/ravenhammer-research/netd/transport"
)

// pipeHandle is an in-memory transport.Handle backed by a pair of
// channels, standing in for the real unix-socket/TLS bindings in
// dispatcher tests: each Send delivers exactly one message-shaped byte
// slice to the peer's Recv, so the framer's one-Recv-per-message
// assumption holds without needing net.Pipe's stream semantics.
type pipeHandle struct {
	recv <-chan []byte
	send chan<- []byte

	closeOnce sync.Once
	closed    chan struct{}
}

// newPipePair returns two connected handles; writes on one arrive as
// reads on the other.
func newPipePair() (a, b *pipeHandle) {
	ab := make(chan []byte, 64)
	ba := make(chan []byte, 64)
	a = &pipeHandle{recv: ba, send: ab, closed: make(chan struct{})}
	b = &pipeHandle{recv: ab, send: ba, closed: make(chan struct{})}
	return a, b
}

func (h *pipeHandle) Recv(ctx context.Context) ([]byte, error) {
	select {
	case b := <-h.recv:
		return b, nil
	case <-h.closed:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *pipeHandle) Send(ctx context.Context, b []byte) error {
	cp := append([]byte(nil), b...)
	select {
	case h.send <- cp:
		return nil
	case <-h.closed:
		return io.ErrClosedPipe
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *pipeHandle) Close() error {
	h.closeOnce.Do(func() { close(h.closed) })
	return nil
}

func (h *pipeHandle) Cancel() { h.Close() }

func (h *pipeHandle) Identity() transport.Identity {
	return transport.Identity{Kind: transport.Local, Value: "test"}
}
