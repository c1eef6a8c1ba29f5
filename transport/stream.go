// Copyright (c) 2026, Ravenhammer Research.
//
// SPDX-License-Identifier: LGPL-2.1-only

package transport

import (
	"context"
	"net"
	"os"
	"sync"
)

func readFile(path string) ([]byte, error) { return os.ReadFile(path) }

// streamHandle adapts any net.Conn (unix socket, TLS stream, DTLS
// connection, hijacked HTTP connection) to Handle. It's shared by all four
// bindings since each is a net.Conn once the handshake/upgrade is done.
type streamHandle struct {
	kind   Kind
	conn   net.Conn
	id     Identity
	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
}

func newStreamHandle(kind Kind, conn net.Conn, id Identity) *streamHandle {
	ctx, cancel := context.WithCancel(context.Background())
	h := &streamHandle{kind: kind, conn: conn, id: id, ctx: ctx, cancel: cancel}
	go func() {
		<-ctx.Done()
		conn.SetDeadline(pastDeadline)
	}()
	return h
}

func (h *streamHandle) Identity() Identity { return h.id }

func (h *streamHandle) Recv(ctx context.Context) ([]byte, error) {
	if err := h.armDeadline(ctx); err != nil {
		return nil, err
	}
	buf := make([]byte, recvBufferSize)
	n, err := h.conn.Read(buf)
	if err != nil {
		return nil, h.cancelOr(err)
	}
	return buf[:n], nil
}

func (h *streamHandle) Send(ctx context.Context, b []byte) error {
	if err := h.armDeadline(ctx); err != nil {
		return err
	}
	_, err := h.conn.Write(b)
	return h.cancelOr(err)
}

func (h *streamHandle) armDeadline(ctx context.Context) error {
	select {
	case <-h.ctx.Done():
		return h.ctx.Err()
	default:
	}
	if dl, ok := ctx.Deadline(); ok {
		return h.conn.SetDeadline(dl)
	}
	return h.conn.SetDeadline(noDeadline)
}

func (h *streamHandle) cancelOr(err error) error {
	if err == nil {
		return nil
	}
	select {
	case <-h.ctx.Done():
		return h.ctx.Err()
	default:
		return err
	}
}

func (h *streamHandle) Close() error {
	h.cancel()
	return h.conn.Close()
}

func (h *streamHandle) Cancel() { h.cancel() }
