// Copyright (c) 2026, Ravenhammer Research.
//
// SPDX-License-Identifier: LGPL-2.1-only

package expect_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ravenhammer-research/netd/datatree"
	"github.com/ravenhammer-research/netd/expect"
)

func TestDeliverResolvesWaiter(t *testing.T) {
	r := expect.NewRegistry()
	defer r.Stop()

	_, ch := r.Register(1, "42", time.Second)
	ok := r.Deliver(1, "42", datatree.OkReply())
	require.True(t, ok)

	select {
	case res := <-ch:
		require.NoError(t, res.Err)
		assert.True(t, res.Reply.Ok)
	case <-time.After(time.Second):
		t.Fatal("expectation never resolved")
	}
}

func TestDeliverUnknownIDReturnsFalse(t *testing.T) {
	r := expect.NewRegistry()
	defer r.Stop()

	assert.False(t, r.Deliver(1, "no-such-id", datatree.OkReply()))
}

func TestCancelPreventsLateDelivery(t *testing.T) {
	r := expect.NewRegistry()
	defer r.Stop()

	h, _ := r.Register(1, "7", time.Second)
	r.Cancel(h)

	assert.False(t, r.Deliver(1, "7", datatree.OkReply()))
}

func TestExpirationResolvesWithTimeout(t *testing.T) {
	r := expect.NewRegistry()
	defer r.Stop()

	_, ch := r.Register(1, "99", 50*time.Millisecond)

	select {
	case res := <-ch:
		require.Error(t, res.Err)
		assert.Nil(t, res.Reply)
	case <-time.After(2 * time.Second):
		t.Fatal("expectation never expired")
	}
}

func TestCancelSessionRemovesOnlyThatSessionsExpectations(t *testing.T) {
	r := expect.NewRegistry()
	defer r.Stop()

	_, chA := r.Register(1, "1", time.Second)
	_, chB := r.Register(2, "1", time.Second)

	r.CancelSession(1)

	assert.False(t, r.Deliver(1, "1", datatree.OkReply()))
	assert.True(t, r.Deliver(2, "1", datatree.OkReply()))

	select {
	case <-chA:
		t.Fatal("session-1 expectation should not resolve")
	default:
	}
	select {
	case res := <-chB:
		assert.True(t, res.Reply.Ok)
	case <-time.After(time.Second):
		t.Fatal("session-2 expectation never resolved")
	}
}

func TestSessionIDsDoNotCollideOnMessageID(t *testing.T) {
	r := expect.NewRegistry()
	defer r.Stop()

	_, chA := r.Register(1, "shared", time.Second)
	_, chB := r.Register(2, "shared", time.Second)

	require.True(t, r.Deliver(2, "shared", datatree.OkReply()))

	select {
	case <-chB:
	case <-time.After(time.Second):
		t.Fatal("session-2 expectation never resolved")
	}
	select {
	case <-chA:
		t.Fatal("session-1 expectation must not have been resolved by session 2's delivery")
	default:
	}
}
