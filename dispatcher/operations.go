// Copyright (c) 2026, Ravenhammer Research.
//
// SPDX-License-Identifier: LGPL-2.1-only

package dispatcher

import (
	"github.com/ravenhammer-research/netd/datatree"
	"github.com/ravenhammer-research/netd/mgmterr"
)

// datastoreSelector reads a <source>/<target> wrapper whose single child
// names the datastore (e.g. <source><running/></source>), as opposed to
// an inline <config> body that copy-config's <source> may carry instead.
func datastoreSelector(wrapper *datatree.Node) (datatree.Datastore, error) {
	if wrapper == nil || len(wrapper.Children()) == 0 {
		return "", mgmterr.MissingElement("rpc", "source-or-target")
	}
	name := wrapper.Children()[0].Name
	switch datatree.Datastore(name) {
	case datatree.Startup, datatree.Running, datatree.Candidate:
		return datatree.Datastore(name), nil
	default:
		return "", mgmterr.BadElement(name)
	}
}

func parseGet(op *datatree.Node) datatree.Get {
	return datatree.Get{Filter: datatree.ParseFilter(op.Child("filter"))}
}

func parseGetConfig(op *datatree.Node) (datatree.GetConfig, error) {
	ds, err := datastoreSelector(op.Child("source"))
	if err != nil {
		return datatree.GetConfig{}, err
	}
	return datatree.GetConfig{Source: ds, Filter: datatree.ParseFilter(op.Child("filter"))}, nil
}

func parseEditConfig(op *datatree.Node) (datatree.EditConfig, error) {
	ds, err := datastoreSelector(op.Child("target"))
	if err != nil {
		return datatree.EditConfig{}, err
	}
	config := op.Child("config")
	if config == nil {
		return datatree.EditConfig{}, mgmterr.MissingElement("edit-config", "config")
	}

	req := datatree.EditConfig{
		Target:           ds,
		Config:           config,
		DefaultOperation: datatree.OpMerge,
		ErrorOption:      datatree.StopOnError,
		TestOption:       datatree.TestThenSet,
	}
	if n := op.Child("default-operation"); n != nil && n.Value != "" {
		req.DefaultOperation = datatree.DefaultOperation(n.Value)
	}
	if n := op.Child("error-option"); n != nil && n.Value != "" {
		req.ErrorOption = datatree.ErrorOption(n.Value)
	}
	if n := op.Child("test-option"); n != nil && n.Value != "" {
		req.TestOption = datatree.TestOption(n.Value)
	}
	return req, nil
}

func parseCopyConfig(op *datatree.Node) (datatree.CopyConfig, error) {
	target, err := datastoreSelector(op.Child("target"))
	if err != nil {
		return datatree.CopyConfig{}, err
	}
	sourceWrapper := op.Child("source")
	if sourceWrapper == nil || len(sourceWrapper.Children()) == 0 {
		return datatree.CopyConfig{}, mgmterr.MissingElement("copy-config", "source")
	}
	first := sourceWrapper.Children()[0]
	if first.Name == "config" {
		return datatree.CopyConfig{Target: target, SourceConfig: first}, nil
	}
	src, err := datastoreSelector(sourceWrapper)
	if err != nil {
		return datatree.CopyConfig{}, err
	}
	return datatree.CopyConfig{Target: target, Source: src}, nil
}

func parseDeleteConfig(op *datatree.Node) (datatree.DeleteConfig, error) {
	ds, err := datastoreSelector(op.Child("target"))
	if err != nil {
		return datatree.DeleteConfig{}, err
	}
	return datatree.DeleteConfig{Target: ds}, nil
}

func parseLock(op *datatree.Node) (datatree.Lock, error) {
	ds, err := datastoreSelector(op.Child("target"))
	if err != nil {
		return datatree.Lock{}, err
	}
	return datatree.Lock{Target: ds}, nil
}

func parseUnlock(op *datatree.Node) (datatree.Unlock, error) {
	ds, err := datastoreSelector(op.Child("target"))
	if err != nil {
		return datatree.Unlock{}, err
	}
	return datatree.Unlock{Target: ds}, nil
}

func parseCommit(op *datatree.Node) datatree.Commit {
	req := datatree.Commit{}
	if op.Child("confirmed") != nil {
		req.Confirmed = true
	}
	if n := op.Child("confirm-timeout"); n != nil {
		req.TimeoutSeconds = parseInt64(n.Value)
	}
	if n := op.Child("persist"); n != nil && n.Value != "" {
		req.PersistID = n.Value
	}
	if n := op.Child("persist-id"); n != nil && n.Value != "" {
		req.PersistID = n.Value
	}
	return req
}

func parseValidate(op *datatree.Node) (datatree.Validate, error) {
	source := op.Child("source")
	if source == nil {
		// A <validate> with no <source> validates the candidate
		// datastore.
		return datatree.Validate{Source: datatree.Candidate}, nil
	}
	ds, err := datastoreSelector(source)
	if err != nil {
		return datatree.Validate{}, err
	}
	return datatree.Validate{Source: ds}, nil
}

func parseKillSession(op *datatree.Node) (datatree.KillSession, error) {
	n := op.Child("session-id")
	if n == nil || n.Value == "" {
		return datatree.KillSession{}, mgmterr.MissingElement("kill-session", "session-id")
	}
	return datatree.KillSession{SessionID: parseInt64(n.Value)}, nil
}

func parseGetSchema(op *datatree.Node) (datatree.GetSchema, error) {
	id := op.Child("identifier")
	if id == nil || id.Value == "" {
		return datatree.GetSchema{}, mgmterr.MissingElement("get-schema", "identifier")
	}
	req := datatree.GetSchema{Identifier: id.Value}
	if v := op.Child("version"); v != nil {
		req.Version = v.Value
	}
	if f := op.Child("format"); f != nil {
		req.Format = f.Value
	}
	return req, nil
}

func parseInt64(s string) int64 {
	var v int64
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0
		}
		v = v*10 + int64(c-'0')
	}
	return v
}
