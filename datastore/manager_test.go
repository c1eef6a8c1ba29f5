// Copyright (c) 2026, Ravenhammer Research.
//
// SPDX-License-Identifier: LGPL-2.1-only

package datastore_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ravenhammer-research/netd/datastore"
	"github.com/ravenhammer-research/netd/datatree"
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

func newEmptyManager(backend datastore.NativeBackend) *datastore.Manager {
	boot := datatree.NewOpaque("data", "")
	return datastore.NewManager(context.Background(), backend, nil, boot)
}

func interfaceEditConfig(target datatree.Datastore, name, op string) datatree.EditConfig {
	cfg := datatree.NewOpaque("data", "")
	ifaces := datatree.NewOpaque("interfaces", "")
	iface := datatree.NewOpaque("interface", "")
	iface.Kind = datatree.List
	iface.Key = name
	if op != "" {
		iface.Attrs["operation"] = op
	}
	nameLeaf := datatree.NewOpaque("name", "")
	nameLeaf.Value = name
	_ = iface.AddChild(nameLeaf)
	_ = ifaces.AddChild(iface)
	_ = cfg.AddChild(ifaces)
	return datatree.EditConfig{
		Target:           target,
		Config:           cfg,
		DefaultOperation: datatree.OpMerge,
		ErrorOption:      datatree.StopOnError,
	}
}

func TestLockDeniedForNonHolder(t *testing.T) {
	m := newEmptyManager(nil)
	require.NoError(t, m.Lock(1, datatree.Running))
	require.Error(t, m.Lock(2, datatree.Running))
	require.NoError(t, m.Unlock(1, datatree.Running))
	require.NoError(t, m.Lock(2, datatree.Running))
}

func TestReleaseSessionLocksFreesAll(t *testing.T) {
	m := newEmptyManager(nil)
	require.NoError(t, m.Lock(1, datatree.Running))
	require.NoError(t, m.Lock(1, datatree.Candidate))
	m.ReleaseSessionLocks(1)
	require.NoError(t, m.Lock(2, datatree.Running))
	require.NoError(t, m.Lock(2, datatree.Candidate))
}

func TestEditConfigMergeThenGetConfig(t *testing.T) {
	m := newEmptyManager(nil)
	req := interfaceEditConfig(datatree.Candidate, "eth0", "")
	require.NoError(t, m.EditConfig(1, req))

	tree, err := m.GetConfig(1, datatree.Candidate, nil)
	require.NoError(t, err)
	ifaces := tree.Child("interfaces")
	require.NotNil(t, ifaces)
	entry := ifaces.ListEntry("eth0")
	require.NotNil(t, entry)
}

func TestEditConfigCreateOnExistingFails(t *testing.T) {
	m := newEmptyManager(nil)
	require.NoError(t, m.EditConfig(1, interfaceEditConfig(datatree.Candidate, "eth0", "")))

	err := m.EditConfig(1, interfaceEditConfig(datatree.Candidate, "eth0", "create"))
	require.Error(t, err)
}

func TestEditConfigDeleteOnAbsentFails(t *testing.T) {
	m := newEmptyManager(nil)
	err := m.EditConfig(1, interfaceEditConfig(datatree.Candidate, "eth0", "delete"))
	require.Error(t, err)
}

func TestEditConfigRemoveOnAbsentSucceeds(t *testing.T) {
	m := newEmptyManager(nil)
	require.NoError(t, m.EditConfig(1, interfaceEditConfig(datatree.Candidate, "eth0", "remove")))
}

func TestEditConfigTestOnlyDoesNotModifyStore(t *testing.T) {
	m := newEmptyManager(nil)
	req := interfaceEditConfig(datatree.Candidate, "eth0", "")
	req.TestOption = datatree.TestOnly
	require.NoError(t, m.EditConfig(1, req))

	tree, err := m.GetConfig(1, datatree.Candidate, nil)
	require.NoError(t, err)
	assert.Nil(t, tree.Child("interfaces"))
}

func TestCommitPromotesCandidateToRunning(t *testing.T) {
	backend := &fakeBackend{}
	m := newEmptyManager(backend)
	require.NoError(t, m.EditConfig(1, interfaceEditConfig(datatree.Candidate, "eth0", "")))

	require.NoError(t, m.Commit(context.Background(), 1, datatree.Commit{}))
	assert.Equal(t, 1, backend.applied)

	tree, err := m.GetConfig(1, datatree.Running, nil)
	require.NoError(t, err)
	require.NotNil(t, tree.Child("interfaces"))
}

func TestCommitRevertsRunningOnApplyFailure(t *testing.T) {
	backend := &fakeBackend{applyErr: assertErr{}}
	m := newEmptyManager(backend)
	require.NoError(t, m.EditConfig(1, interfaceEditConfig(datatree.Candidate, "eth0", "")))

	err := m.Commit(context.Background(), 1, datatree.Commit{})
	require.Error(t, err)

	tree, err := m.GetConfig(1, datatree.Running, nil)
	require.NoError(t, err)
	assert.Nil(t, tree.Child("interfaces"))
}

func TestDiscardChangesRestoresCandidateFromRunning(t *testing.T) {
	m := newEmptyManager(&fakeBackend{})
	require.NoError(t, m.EditConfig(1, interfaceEditConfig(datatree.Candidate, "eth0", "")))
	require.NoError(t, m.Commit(context.Background(), 1, datatree.Commit{}))

	require.NoError(t, m.EditConfig(1, interfaceEditConfig(datatree.Candidate, "eth1", "")))
	require.NoError(t, m.DiscardChanges(1))

	tree, err := m.GetConfig(1, datatree.Candidate, nil)
	require.NoError(t, err)
	ifaces := tree.Child("interfaces")
	require.NotNil(t, ifaces)
	assert.NotNil(t, ifaces.ListEntry("eth0"))
	assert.Nil(t, ifaces.ListEntry("eth1"))
}

func TestConfirmedCommitRevertsAfterTimeoutWithoutConfirmation(t *testing.T) {
	backend := &fakeBackend{}
	m := newEmptyManager(backend)
	require.NoError(t, m.EditConfig(1, interfaceEditConfig(datatree.Candidate, "eth0", "")))

	require.NoError(t, m.Commit(context.Background(), 1, datatree.Commit{
		Confirmed:      true,
		TimeoutSeconds: 1,
	}))

	tree, err := m.GetConfig(1, datatree.Running, nil)
	require.NoError(t, err)
	require.NotNil(t, tree.Child("interfaces"))

	time.Sleep(1500 * time.Millisecond)

	tree, err = m.GetConfig(1, datatree.Running, nil)
	require.NoError(t, err)
	assert.Nil(t, tree.Child("interfaces"))
}

func TestConfirmedCommitConfirmedByBareCommit(t *testing.T) {
	backend := &fakeBackend{}
	m := newEmptyManager(backend)
	require.NoError(t, m.EditConfig(1, interfaceEditConfig(datatree.Candidate, "eth0", "")))

	require.NoError(t, m.Commit(context.Background(), 1, datatree.Commit{
		Confirmed:      true,
		TimeoutSeconds: 1,
	}))
	require.NoError(t, m.Commit(context.Background(), 1, datatree.Commit{}))

	time.Sleep(1500 * time.Millisecond)

	tree, err := m.GetConfig(1, datatree.Running, nil)
	require.NoError(t, err)
	require.NotNil(t, tree.Child("interfaces"))
}

func TestValidateDetectsDuplicateListKey(t *testing.T) {
	m := newEmptyManager(nil)
	require.NoError(t, m.EditConfig(1, interfaceEditConfig(datatree.Candidate, "eth0", "")))
	require.NoError(t, m.Validate(datatree.Candidate))

	dup := interfaceEditConfig(datatree.Candidate, "eth0", "").Config
	second := interfaceEditConfig(datatree.Candidate, "eth0", "").Config.Child("interfaces").Children()[0]
	second.Detach()
	require.NoError(t, dup.Child("interfaces").AddChild(second))
	require.NoError(t, m.CopyConfig(context.Background(), 1, datatree.CopyConfig{Target: datatree.Candidate, SourceConfig: dup}))
	require.Error(t, m.Validate(datatree.Candidate))
}

type assertErr struct{}

func (assertErr) Error() string { return "apply rejected" }
