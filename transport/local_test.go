// Copyright (c) 2026, Ravenhammer Research.
//
// SPDX-License-Identifier: LGPL-2.1-only

package transport_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ravenhammer-research/netd/transport"
)

func TestLocalRoundtrip(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "netd.sock")

	ln, err := transport.ListenLocal(sock)
	require.NoError(t, err)
	defer ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	serverHandles := make(chan transport.Handle, 1)
	go func() {
		h, err := ln.Accept(ctx)
		require.NoError(t, err)
		serverHandles <- h
	}()

	client, err := transport.DialLocal(ctx, sock)
	require.NoError(t, err)
	defer client.Close()

	server := <-serverHandles
	defer server.Close()

	require.Equal(t, transport.Local, server.Identity().Kind)

	require.NoError(t, client.Send(ctx, []byte("hello")))
	got, err := server.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}

func TestLocalCancelUnblocksRecv(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "netd.sock")
	ln, err := transport.ListenLocal(sock)
	require.NoError(t, err)
	defer ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	serverHandles := make(chan transport.Handle, 1)
	go func() {
		h, _ := ln.Accept(ctx)
		serverHandles <- h
	}()

	client, err := transport.DialLocal(ctx, sock)
	require.NoError(t, err)
	defer client.Close()

	server := <-serverHandles
	require.NotNil(t, server)

	done := make(chan error, 1)
	go func() {
		_, err := server.Recv(context.Background())
		done <- err
	}()

	server.Cancel()

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Recv did not unblock after Cancel")
	}
}
