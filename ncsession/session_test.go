// Copyright (c) 2026, Ravenhammer Research.
//
// SPDX-License-Identifier: LGPL-2.1-only

package ncsession_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ravenhammer-research/netd/ncsession"
	"github.com/ravenhammer-research/netd/transport"
)

type nopHandle struct{}

func (nopHandle) Recv(ctx context.Context) ([]byte, error) { return nil, nil }
func (nopHandle) Send(ctx context.Context, b []byte) error  { return nil }
func (nopHandle) Close() error                              { return nil }
func (nopHandle) Cancel()                                   {}
func (nopHandle) Identity() transport.Identity               { return transport.Identity{} }

func TestHandshakeServerSendsThenReceives(t *testing.T) {
	s := ncsession.New(1, true, nopHandle{}, ncsession.DefaultCapabilities(false))
	assert.Equal(t, ncsession.Initializing, s.State())

	s.SentHello(ncsession.DefaultCapabilities(false))
	assert.Equal(t, ncsession.HelloSent, s.State())

	s.ReceivedHello([]string{ncsession.CapBase10, ncsession.CapBase11})
	assert.Equal(t, ncsession.Active, s.State())
	assert.True(t, s.Negotiated().Base11)
}

func TestHandshakeReceivesThenSends(t *testing.T) {
	s := ncsession.New(1, false, nopHandle{}, ncsession.DefaultCapabilities(false))
	s.ReceivedHello([]string{ncsession.CapBase10})
	assert.Equal(t, ncsession.HelloReceived, s.State())

	s.SentHello(ncsession.DefaultCapabilities(false))
	assert.Equal(t, ncsession.Active, s.State())
	assert.False(t, s.Negotiated().Base11)
}

func TestRequireActiveRejectsBeforeHandshake(t *testing.T) {
	s := ncsession.New(1, true, nopHandle{}, ncsession.DefaultCapabilities(false))
	require.Error(t, s.RequireActive())

	s.SentHello(ncsession.DefaultCapabilities(false))
	require.Error(t, s.RequireActive())

	s.ReceivedHello([]string{ncsession.CapBase10})
	require.NoError(t, s.RequireActive())
}

func TestMessageIDsAreMonotonicAndUnique(t *testing.T) {
	s := ncsession.New(1, true, nopHandle{}, ncsession.DefaultCapabilities(false))
	ids := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := s.NextMessageID()
		require.False(t, ids[id], "duplicate message-id %s", id)
		ids[id] = true
	}
}

func TestResolveOutstandingRejectsUnknownID(t *testing.T) {
	s := ncsession.New(1, true, nopHandle{}, ncsession.DefaultCapabilities(false))
	id := s.NextMessageID()

	assert.True(t, s.ResolveOutstanding(id))
	assert.False(t, s.ResolveOutstanding(id))
	assert.False(t, s.ResolveOutstanding("not-a-real-id"))
}

func TestRegistryAssignsSequentialIDs(t *testing.T) {
	reg := ncsession.NewRegistry()
	s1 := ncsession.New(0, true, nopHandle{}, nil)
	s2 := ncsession.New(0, true, nopHandle{}, nil)

	id1 := reg.Register(s1)
	id2 := reg.Register(s2)
	assert.NotEqual(t, id1, id2)

	got, err := reg.Get(id1)
	require.NoError(t, err)
	assert.Same(t, s1, got)

	reg.Remove(id1)
	_, err = reg.Get(id1)
	assert.Error(t, err)
}
