// Copyright (c) 2026, Ravenhammer Research.
//
// SPDX-License-Identifier: LGPL-2.1-only

package transport

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"syscall"
)

// LocalListener serves a unix-domain socket, deriving each peer's identity
// from SO_PEERCRED before the connection is handed back to the caller
// (spec §4.3 "peer credentials ... read before the first byte is
// processed"), the same sequence as the teacher's SrvConn.getCreds.
type LocalListener struct {
	ln *net.UnixListener

	// AllowedUIDs, when non-nil, restricts Accept to peers whose
	// SO_PEERCRED uid is a member (spec §4.3 peer-credential gate); nil
	// means every uid is accepted. Set via AuthorizedUIDs.
	AllowedUIDs map[string]bool
}

// ListenLocal binds a unix-domain socket at path, removing any stale socket
// file left by a previous instance and setting permissive rendezvous
// permissions — ownership and ACLs are the caller's concern (cmd/netd).
func ListenLocal(path string) (*LocalListener, error) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("transport: removing stale socket %s: %w", path, err)
	}
	addr, err := net.ResolveUnixAddr("unix", path)
	if err != nil {
		return nil, fmt.Errorf("transport: resolving %s: %w", path, err)
	}
	ln, err := net.ListenUnix("unix", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: listening on %s: %w", path, err)
	}
	if err := os.Chmod(path, 0666); err != nil {
		ln.Close()
		return nil, fmt.Errorf("transport: chmod %s: %w", path, err)
	}
	return &LocalListener{ln: ln}, nil
}

// NewLocalListener wraps an already-bound unix listener, e.g. one handed
// to the process by systemd socket activation (cmd/netd), in a
// LocalListener so it gets the same peer-credential handling as one
// opened by ListenLocal.
func NewLocalListener(ln *net.UnixListener) *LocalListener {
	return &LocalListener{ln: ln}
}

func (l *LocalListener) Addr() string { return l.ln.Addr().String() }

func (l *LocalListener) Close() error { return l.ln.Close() }

func (l *LocalListener) Accept(ctx context.Context) (Handle, error) {
	for {
		conn, uid, err := l.acceptOne(ctx)
		if err != nil {
			return nil, err
		}
		idStr := strconv.Itoa(uid)
		if l.AllowedUIDs != nil && !l.AllowedUIDs[idStr] {
			conn.Close()
			continue
		}
		id := Identity{Kind: Local, Value: idStr}
		return newStreamHandle(Local, conn, id), nil
	}
}

func (l *LocalListener) acceptOne(ctx context.Context) (*net.UnixConn, int, error) {
	type result struct {
		conn *net.UnixConn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		c, err := l.ln.AcceptUnix()
		ch <- result{c, err}
	}()
	select {
	case <-ctx.Done():
		return nil, 0, ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return nil, 0, r.err
		}
		uid, err := peerUID(r.conn)
		if err != nil {
			r.conn.Close()
			return nil, 0, fmt.Errorf("transport: reading peer credentials: %w", err)
		}
		return r.conn, uid, nil
	}
}

// DialLocal connects to a unix-domain socket as a client.
func DialLocal(ctx context.Context, path string) (Handle, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, err
	}
	id := Identity{Kind: Local, Value: strconv.Itoa(os.Getuid())}
	return newStreamHandle(Local, conn, id), nil
}

func peerUID(conn *net.UnixConn) (int, error) {
	f, err := conn.File()
	if err != nil {
		return 0, err
	}
	defer f.Close()
	cred, err := syscall.GetsockoptUcred(int(f.Fd()), syscall.SOL_SOCKET, syscall.SO_PEERCRED)
	if err != nil {
		return 0, err
	}
	return int(cred.Uid), nil
}
