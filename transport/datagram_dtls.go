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

	"github.com/pion/dtls/v3"
)

// DTLSConfig names the certificate material and MTU for the datagram+DTLS
// binding (spec §4.3).
type DTLSConfig struct {
	CertFile string
	KeyFile  string
	CAFile   string
	MTU      int
}

const defaultDTLSMTU = 1200

func (c DTLSConfig) build(forServer bool) (*dtls.Config, error) {
	cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("transport: loading keypair: %w", err)
	}
	pool, err := loadCAPool(c.CAFile)
	if err != nil {
		return nil, err
	}
	mtu := c.MTU
	if mtu <= 0 {
		mtu = defaultDTLSMTU
	}
	cfg := &dtls.Config{
		Certificates: []tls.Certificate{cert},
		MTU:          mtu,
	}
	if forServer {
		cfg.ClientCAs = pool
		cfg.ClientAuth = dtls.RequireAndVerifyClientCert
	} else {
		cfg.RootCAs = pool
	}
	return cfg, nil
}

// DTLSListener serves the datagram+DTLS binding.
type DTLSListener struct {
	ln net.Listener
}

func ListenDatagramDTLS(address string, cfg DTLSConfig) (*DTLSListener, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, fmt.Errorf("transport: resolving %s: %w", address, err)
	}
	dtlsCfg, err := cfg.build(true)
	if err != nil {
		return nil, err
	}
	ln, err := dtls.Listen("udp", udpAddr, dtlsCfg)
	if err != nil {
		return nil, fmt.Errorf("transport: listening on %s: %w", address, err)
	}
	return &DTLSListener{ln: ln}, nil
}

func (l *DTLSListener) Addr() string { return l.ln.Addr().String() }
func (l *DTLSListener) Close() error { return l.ln.Close() }

func (l *DTLSListener) Accept(ctx context.Context) (Handle, error) {
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
		return newStreamHandle(DatagramDTLS, r.conn, dtlsIdentity(r.conn)), nil
	}
}

// DialDatagramDTLS connects to address as a client, performing the DTLS
// handshake (with pion's optional HelloVerifyRequest cookie exchange)
// before returning.
func DialDatagramDTLS(ctx context.Context, address string, cfg DTLSConfig) (Handle, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, fmt.Errorf("transport: resolving %s: %w", address, err)
	}
	dtlsCfg, err := cfg.build(false)
	if err != nil {
		return nil, err
	}
	conn, err := dtls.DialWithContext(ctx, "udp", udpAddr, dtlsCfg)
	if err != nil {
		return nil, fmt.Errorf("transport: DTLS handshake: %w", err)
	}
	return newStreamHandle(DatagramDTLS, conn, dtlsIdentity(conn)), nil
}

func dtlsIdentity(conn net.Conn) Identity {
	dc, ok := conn.(*dtls.Conn)
	if !ok {
		return Identity{Kind: DatagramDTLS}
	}
	state, err := dc.ConnectionState()
	if err != nil || len(state.PeerCertificates) == 0 {
		return Identity{Kind: DatagramDTLS}
	}
	cert, err := x509.ParseCertificate(state.PeerCertificates[0])
	if err != nil {
		return Identity{Kind: DatagramDTLS}
	}
	return Identity{Kind: DatagramDTLS, Value: cert.Subject.CommonName}
}
