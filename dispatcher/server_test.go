// Copyright (c) 2026, Ravenhammer Research.
//
// SPDX-License-Identifier: LGPL-2.1-only

package dispatcher_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ravenhammer-research/netd/datastore"
	"github.com/ravenhammer-research/netd/datatree"
	"github.com/ravenhammer-research/netd/dispatcher"
	"github.com/ravenhammer-research/netd/mgmterr"
	"github.com/ravenhammer-research/netd/ncsession"
	"github.com/ravenhammer-research/netd/schema"
)

type fakeBackend struct {
	applyErr error
	applied  int
}

func (b *fakeBackend) ApplyDiff(ctx context.Context, previous, next *datatree.Node) error {
	b.applied++
	return b.applyErr
}

func (b *fakeBackend) OperationalState(ctx context.Context) (*datatree.Node, error) {
	return nil, nil
}

// harness wires one dispatcher.Server and one dispatcher.Client over a
// pipeHandle pair, running both sides' loops in the background, ready for
// a test to drive RPCs through the client once Dial has completed.
type harness struct {
	t      *testing.T
	server *dispatcher.Server
	client *dispatcher.Client
	mgr    *datastore.Manager
	done   chan error

	serverHandle, clientHandle *pipeHandle
}

func newHarness(t *testing.T, backend datastore.NativeBackend, monitoring bool) *harness {
	t.Helper()
	reg := schema.NewRegistry()
	mgr := datastore.NewManager(context.Background(), backend, nil, datatree.NewOpaque("data", ""))
	sessions := ncsession.NewRegistry()
	srv := dispatcher.NewServer(reg, mgr, sessions, monitoring)

	serverHandle, clientHandle := newPipePair()

	serverSess := ncsession.New(0, true, serverHandle, ncsession.DefaultCapabilities(monitoring))
	sessions.Register(serverSess)
	serverCodec := datatree.NewCodec(reg)

	clientSess := ncsession.New(0, false, clientHandle, ncsession.DefaultCapabilities(monitoring))
	clientCodec := datatree.NewCodec(reg)
	client := dispatcher.NewClient(clientSess, clientCodec)

	h := &harness{
		t: t, server: srv, client: client, mgr: mgr, done: make(chan error, 1),
		serverHandle: serverHandle, clientHandle: clientHandle,
	}

	ctx := context.Background()
	go func() {
		h.done <- srv.ServeSession(ctx, serverSess, serverCodec)
	}()

	require.NoError(t, client.Dial(ctx, ncsession.DefaultCapabilities(monitoring)))
	go client.Run(ctx)

	t.Cleanup(func() {
		serverHandle.Close()
		clientHandle.Close()
	})

	return h
}

func TestHelloExchangeNegotiatesBase11(t *testing.T) {
	h := newHarness(t, nil, false)
	assert.True(t, h.client.Session().Negotiated().Base11)
}

func TestGetConfigEmptyCandidate(t *testing.T) {
	h := newHarness(t, nil, false)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	tree, err := h.client.GetConfig(ctx, datatree.Candidate, nil)
	require.NoError(t, err)
	assert.Equal(t, "data", tree.Name)
	assert.Empty(t, tree.Children())
}

func TestEditConfigThenGetConfigRoundtrips(t *testing.T) {
	h := newHarness(t, nil, false)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	cfg := datatree.NewOpaque("data", "")
	iface := datatree.NewOpaque("hostname", "")
	iface.Value = "router1"
	require.NoError(t, cfg.AddChild(iface))

	err := h.client.EditConfig(ctx, datatree.EditConfig{
		Target:           datatree.Candidate,
		Config:           cfg,
		DefaultOperation: datatree.OpMerge,
		ErrorOption:      datatree.StopOnError,
		TestOption:       datatree.TestThenSet,
	})
	require.NoError(t, err)

	tree, err := h.client.GetConfig(ctx, datatree.Candidate, nil)
	require.NoError(t, err)
	got := tree.Child("hostname")
	require.NotNil(t, got)
	assert.Equal(t, "router1", got.Value)
}

func TestLockDeniedCarriesHoldingSessionID(t *testing.T) {
	h := newHarness(t, nil, false)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// Take the lock out from under the client directly through the
	// manager, simulating a second, already-connected session.
	require.NoError(t, h.mgr.Lock(999, datatree.Running))

	err := h.client.Lock(ctx, datatree.Running)
	require.Error(t, err)
	var list mgmterr.List
	require.ErrorAs(t, err, &list)
	require.Len(t, list, 1)
	assert.Equal(t, mgmterr.TagLockDenied, list[0].Tag)
	assert.Contains(t, list[0].Info, "999")
}

func TestCommitRevertsRunningOnBackendApplyFailure(t *testing.T) {
	backend := &fakeBackend{applyErr: assertErr{}}
	h := newHarness(t, backend, false)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	cfg := datatree.NewOpaque("data", "")
	leafNode := datatree.NewOpaque("hostname", "")
	leafNode.Value = "router2"
	require.NoError(t, cfg.AddChild(leafNode))
	require.NoError(t, h.client.EditConfig(ctx, datatree.EditConfig{
		Target:           datatree.Candidate,
		Config:           cfg,
		DefaultOperation: datatree.OpMerge,
		ErrorOption:      datatree.StopOnError,
		TestOption:       datatree.TestThenSet,
	}))

	err := h.client.Commit(ctx, datatree.Commit{})
	require.Error(t, err)

	running, err := h.client.GetConfig(ctx, datatree.Running, nil)
	require.NoError(t, err)
	assert.Nil(t, running.Child("hostname"))
}

func TestKillSessionRejectsTargetingSelf(t *testing.T) {
	h := newHarness(t, nil, false)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := h.client.KillSession(ctx, h.client.Session().ID)
	require.Error(t, err)
	var list mgmterr.List
	require.ErrorAs(t, err, &list)
	assert.Equal(t, mgmterr.TagOperationFailed, list[0].Tag)
}

func TestGetSchemaRequiresMonitoringCapability(t *testing.T) {
	h := newHarness(t, nil, false)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := h.client.GetSchema(ctx, datatree.GetSchema{Identifier: "ietf-interfaces"})
	require.Error(t, err)
	var list mgmterr.List
	require.ErrorAs(t, err, &list)
	assert.Equal(t, mgmterr.TagOperationNotSupported, list[0].Tag)
}

func TestConfirmedCommitExpiryPushesNotification(t *testing.T) {
	reg := schema.NewRegistry()
	mgr := datastore.NewManager(context.Background(), nil, nil, datatree.NewOpaque("data", ""))
	sessions := ncsession.NewRegistry()
	srv := dispatcher.NewServer(reg, mgr, sessions, false)

	caps := append(append([]string{}, ncsession.DefaultCapabilities(false)...), ncsession.CapNotification)

	serverHandle, clientHandle := newPipePair()
	t.Cleanup(func() { serverHandle.Close(); clientHandle.Close() })

	serverSess := ncsession.New(0, true, serverHandle, caps)
	sessions.Register(serverSess)
	serverCodec := datatree.NewCodec(reg)

	clientSess := ncsession.New(0, false, clientHandle, caps)
	clientCodec := datatree.NewCodec(reg)
	client := dispatcher.NewClient(clientSess, clientCodec)

	notified := make(chan *datatree.Node, 1)
	client.OnNotification = func(n *datatree.Node) { notified <- n }

	ctx := context.Background()
	go srv.ServeSession(ctx, serverSess, serverCodec)
	require.NoError(t, client.Dial(ctx, caps))
	go client.Run(ctx)

	require.True(t, client.Session().Negotiated().Notification)
	require.NoError(t, client.Commit(ctx, datatree.Commit{Confirmed: true, TimeoutSeconds: 1}))

	select {
	case n := <-notified:
		assert.Equal(t, "notification", n.Name)
		assert.NotNil(t, n.Child("netconf-confirmed-commit-expired"))
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for confirmed-commit-expired notification")
	}
}

type assertErr struct{}

func (assertErr) Error() string { return "apply rejected" }
