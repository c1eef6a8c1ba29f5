// Copyright (c) 2026, Ravenhammer Research.
//
// SPDX-License-Identifier: LGPL-2.1-only

package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
)

// HTTPListener serves the HTTP(S) binding by running an http.Server whose
// single handler hijacks the underlying connection on the first request
// and hands it back as a plain duplex stream — after that point NETCONF
// framing runs directly over the raw socket, the same way the stream+TLS
// binding does once its handshake completes.
type HTTPListener struct {
	ln     net.Listener
	accept chan acceptResult
	srv    *http.Server
}

type acceptResult struct {
	conn net.Conn
	id   Identity
	err  error
}

// ListenHTTP serves address, either in cleartext or (when tlsCfg is
// non-nil) behind mutual TLS.
func ListenHTTP(address string, tlsCfg *TLSConfig) (*HTTPListener, error) {
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("transport: listening on %s: %w", address, err)
	}
	if tlsCfg != nil {
		cfg, err := tlsCfg.build(true)
		if err != nil {
			ln.Close()
			return nil, err
		}
		ln = tls.NewListener(ln, cfg)
	}

	l := &HTTPListener{ln: ln, accept: make(chan acceptResult, 16)}
	l.srv = &http.Server{Handler: http.HandlerFunc(l.handle)}
	go l.srv.Serve(ln)
	return l, nil
}

func (l *HTTPListener) handle(w http.ResponseWriter, r *http.Request) {
	hj, ok := w.(http.Hijacker)
	if !ok {
		http.Error(w, "hijack not supported", http.StatusInternalServerError)
		return
	}
	conn, _, err := hj.Hijack()
	if err != nil {
		l.accept <- acceptResult{err: fmt.Errorf("transport: hijack: %w", err)}
		return
	}
	id := Identity{Kind: HTTP}
	if tlsConn, ok := conn.(*tls.Conn); ok {
		id = subjectIdentity(tlsConn)
	}
	// Hijack takes the connection before any response is written, and
	// DialHTTP does not wait for one; the raw conn is now free for NETCONF
	// framing in both directions.
	l.accept <- acceptResult{conn: conn, id: id}
}

func (l *HTTPListener) Addr() string { return l.ln.Addr().String() }

func (l *HTTPListener) Close() error {
	l.srv.Close()
	return l.ln.Close()
}

func (l *HTTPListener) Accept(ctx context.Context) (Handle, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-l.accept:
		if r.err != nil {
			return nil, r.err
		}
		return newStreamHandle(HTTP, r.conn, r.id), nil
	}
}

// DialHTTP connects to a NETCONF-over-HTTP(S) endpoint by issuing a POST
// whose connection is then hijacked for the duration of the session — the
// client side of the same upgrade-then-stream handshake the listener
// performs.
func DialHTTP(ctx context.Context, address string, tlsCfg *TLSConfig) (Handle, error) {
	var conn net.Conn
	var err error
	var d net.Dialer
	if tlsCfg != nil {
		cfg, cfgErr := tlsCfg.build(false)
		if cfgErr != nil {
			return nil, cfgErr
		}
		rawConn, dialErr := d.DialContext(ctx, "tcp", address)
		if dialErr != nil {
			return nil, dialErr
		}
		tlsConn := tls.Client(rawConn, cfg)
		if hsErr := tlsConn.HandshakeContext(ctx); hsErr != nil {
			tlsConn.Close()
			return nil, fmt.Errorf("transport: TLS handshake: %w", hsErr)
		}
		conn = tlsConn
	} else {
		conn, err = d.DialContext(ctx, "tcp", address)
		if err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://"+address+"/netconf", nil)
	if err != nil {
		conn.Close()
		return nil, err
	}
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "netconf")
	if err := req.Write(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("transport: writing upgrade request: %w", err)
	}

	id := Identity{Kind: HTTP}
	if tlsConn, ok := conn.(*tls.Conn); ok {
		id = subjectIdentity(tlsConn)
	}
	return newStreamHandle(HTTP, conn, id), nil
}
