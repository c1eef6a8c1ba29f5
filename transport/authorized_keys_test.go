// Copyright (c) 2026, Ravenhammer Research.
//
// SPDX-License-Identifier: LGPL-2.1-only

package transport_test

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/ravenhammer-research/netd/transport"
)

func writeAuthorizedKeysFile(t *testing.T, comments ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "authorized_keys")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	f.WriteString("# comment line, skipped\n\n")
	for _, comment := range comments {
		pub, _, err := ed25519.GenerateKey(rand.Reader)
		require.NoError(t, err)
		sshPub, err := ssh.NewPublicKey(pub)
		require.NoError(t, err)
		line := ssh.MarshalAuthorizedKey(sshPub)
		// MarshalAuthorizedKey appends a trailing newline; splice the
		// comment in before it.
		f.Write(line[:len(line)-1])
		f.WriteString(" " + comment + "\n")
	}
	return path
}

func TestAuthorizedUIDsResolvesKnownUserSkipsUnknown(t *testing.T) {
	me, err := user.Current()
	require.NoError(t, err)

	path := writeAuthorizedKeysFile(t, me.Username, "no-such-user-xyz")

	allowed, err := transport.AuthorizedUIDs(path)
	require.NoError(t, err)
	assert.True(t, allowed[me.Uid])
	assert.Len(t, allowed, 1)
}

func TestAuthorizedUIDsRejectsMalformedLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "authorized_keys")
	require.NoError(t, os.WriteFile(path, []byte("not-a-key-line\n"), 0600))

	_, err := transport.AuthorizedUIDs(path)
	assert.Error(t, err)
}

func TestLocalListenerRejectsUnlistedUID(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "netd.sock")
	ln, err := transport.ListenLocal(sock)
	require.NoError(t, err)
	defer ln.Close()

	ln.AllowedUIDs = map[string]bool{"nonexistent-uid": true}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	go func() {
		client, err := transport.DialLocal(context.Background(), sock)
		if err == nil {
			client.Close()
		}
	}()

	_, err = ln.Accept(ctx)
	assert.Error(t, err)
}

func TestLocalListenerAcceptsListedUID(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "netd.sock")
	ln, err := transport.ListenLocal(sock)
	require.NoError(t, err)
	defer ln.Close()

	ln.AllowedUIDs = map[string]bool{strconv.Itoa(os.Getuid()): true}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go func() {
		client, err := transport.DialLocal(ctx, sock)
		require.NoError(t, err)
		defer client.Close()
	}()

	handle, err := ln.Accept(ctx)
	require.NoError(t, err)
	defer handle.Close()
	assert.Equal(t, strconv.Itoa(os.Getuid()), handle.Identity().Value)
}
