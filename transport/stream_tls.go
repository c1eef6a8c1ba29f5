// Copyright (c) 2026, Ravenhammer Research.
//
// SPDX-License-Identifier: LGPL-2.1-only

package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
)

// TLSConfig names the certificate material for the stream+TLS binding.
// CAFile is required: mutual TLS is the only mode this binding supports
// (spec §4.3 "mutual TLS handshake").
type TLSConfig struct {
	CertFile string
	KeyFile  string
	CAFile   string
}

func (c TLSConfig) build(forServer bool) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("transport: loading keypair: %w", err)
	}
	pool, err := loadCAPool(c.CAFile)
	if err != nil {
		return nil, err
	}
	cfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}
	if forServer {
		cfg.ClientCAs = pool
		cfg.ClientAuth = tls.RequireAndVerifyClientCert
	} else {
		cfg.RootCAs = pool
	}
	return cfg, nil
}

func loadCAPool(caFile string) (*x509.CertPool, error) {
	pem, err := readFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("transport: reading CA file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("transport: no certificates found in %s", caFile)
	}
	return pool, nil
}

// TLSListener serves the stream+TLS binding.
type TLSListener struct {
	ln net.Listener
}

func ListenStreamTLS(address string, cfg TLSConfig) (*TLSListener, error) {
	tlsCfg, err := cfg.build(true)
	if err != nil {
		return nil, err
	}
	ln, err := tls.Listen("tcp", address, tlsCfg)
	if err != nil {
		return nil, fmt.Errorf("transport: listening on %s: %w", address, err)
	}
	return &TLSListener{ln: ln}, nil
}

func (l *TLSListener) Addr() string { return l.ln.Addr().String() }
func (l *TLSListener) Close() error { return l.ln.Close() }

func (l *TLSListener) Accept(ctx context.Context) (Handle, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		c, err := l.ln.Accept()
		ch <- result{c, err}
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return nil, r.err
		}
		tlsConn := r.conn.(*tls.Conn)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			tlsConn.Close()
			return nil, fmt.Errorf("transport: TLS handshake: %w", err)
		}
		return newStreamHandle(StreamTLS, tlsConn, subjectIdentity(tlsConn)), nil
	}
}

// DialStreamTLS connects to address as a client over mutual TLS.
func DialStreamTLS(ctx context.Context, address string, cfg TLSConfig) (Handle, error) {
	tlsCfg, err := cfg.build(false)
	if err != nil {
		return nil, err
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	tlsConn := tls.Client(conn, tlsCfg)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		tlsConn.Close()
		return nil, fmt.Errorf("transport: TLS handshake: %w", err)
	}
	return newStreamHandle(StreamTLS, tlsConn, subjectIdentity(tlsConn)), nil
}

func subjectIdentity(conn *tls.Conn) Identity {
	state := conn.ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return Identity{Kind: StreamTLS}
	}
	return Identity{Kind: StreamTLS, Value: state.PeerCertificates[0].Subject.CommonName}
}
