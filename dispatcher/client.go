// Copyright (c) 2026, Ravenhammer Research.
//
// SPDX-License-Identifier: LGPL-2.1-only

package dispatcher

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ravenhammer-research/netd/common"
	"github.com/ravenhammer-research/netd/datatree"
	"github.com/ravenhammer-research/netd/expect"
	"github.com/ravenhammer-research/netd/mgmterr"
	"github.com/ravenhammer-research/netd/ncsession"
)

// DefaultExpectationTTL is how long a client waits for a reply before its
// expectation resolves with a timeout error (spec §4.7 default).
const DefaultExpectationTTL = 8 * time.Second

// Client is the client role of C6: it owns one ncsession.Session, builds
// and sends requests, and resolves them against an expectation registry
// as replies arrive off a background receive loop.
type Client struct {
	sess  *ncsession.Session
	codec *datatree.Codec
	exp   *expect.Registry
	log   *logrus.Logger

	// OnNotification, if set, is called for every inbound <notification>
	// (e.g. the confirmed-commit-expired event) instead of being dropped.
	OnNotification func(*datatree.Node)
}

// NewClient wraps sess, ready for Dial (hello exchange) and Run (receive
// loop). codec must share the session's schema registry.
func NewClient(sess *ncsession.Session, codec *datatree.Codec) *Client {
	return &Client{
		sess:  sess,
		codec: codec,
		exp:   expect.NewRegistry(),
		log:   common.NewStructuredLogger(),
	}
}

// Session returns the underlying protocol session, e.g. so a caller can
// read its server-assigned session-id after Dial.
func (c *Client) Session() *ncsession.Session { return c.sess }

// Dial performs the client side of the hello exchange (spec §4.5).
func (c *Client) Dial(ctx context.Context, localCaps []string) error {
	raw, err := c.sess.Recv(ctx)
	if err != nil {
		return err
	}
	n, shape, err := c.codec.Parse(raw)
	if err != nil || shape != datatree.ShapeHello {
		return mgmterr.MalformedMessage().WithMessage("expected server hello")
	}
	peer := datatree.HelloFromNode(n)
	if peer.SessionID != 0 {
		c.sess.ID = peer.SessionID
	}
	c.sess.ReceivedHello(peer.Capabilities)

	hello := &datatree.Hello{Capabilities: localCaps}
	out, err := c.codec.Serialize(hello.ToNode())
	if err != nil {
		return err
	}
	if err := c.sess.Send(ctx, out); err != nil {
		return err
	}
	c.sess.SentHello(localCaps)
	return nil
}

// Run drives the inbound receive loop until ctx ends or the transport
// fails; every reply is classified and delivered to its waiter, every
// notification goes to OnNotification, anything else is logged and
// dropped (spec §4.6 "classify as reply vs ... notification vs ... hello").
func (c *Client) Run(ctx context.Context) error {
	defer c.exp.Stop()
	for {
		raw, err := c.sess.Recv(ctx)
		if err != nil {
			c.exp.CancelSession(c.sess.ID)
			return err
		}
		n, shape, err := c.codec.Parse(raw)
		if err != nil {
			common.LogError(c.log, logrus.Fields{"session_id": c.sess.ID}, "dropping malformed inbound message")
			continue
		}
		switch shape {
		case datatree.ShapeRPCReply:
			c.handleReply(n)
		case datatree.ShapeNotification:
			if c.OnNotification != nil {
				c.OnNotification(n)
			}
		default:
			common.LogAt(c.log, common.TypeState, logrus.Fields{"session_id": c.sess.ID, "shape": int(shape)},
				"dropping unexpected inbound shape")
		}
	}
}

func (c *Client) handleReply(envelope *datatree.Node) {
	messageID := datatree.MessageID(envelope)
	if !c.sess.ResolveOutstanding(messageID) {
		common.LogAt(c.log, common.TypeState, logrus.Fields{"session_id": c.sess.ID, "message_id": messageID},
			"reply id was not outstanding, dropping")
		return
	}
	reply := replyFromEnvelope(envelope)
	if !c.exp.Deliver(c.sess.ID, messageID, reply) {
		common.LogAt(c.log, common.TypeState, logrus.Fields{"session_id": c.sess.ID, "message_id": messageID},
			"reply arrived with no matching expectation, dropping")
	}
}

// replyFromEnvelope decodes an <rpc-reply>'s children back into a typed
// Reply. One or more direct <rpc-error> children (the wire shape
// dispatcher.replyEnvelope flattens onto, server-side) take priority over
// anything else, matching RFC 6241's "an rpc-error may appear alongside
// other rpc-error elements but nothing else" framing.
func replyFromEnvelope(envelope *datatree.Node) *datatree.Reply {
	children := envelope.Children()
	if len(children) == 0 {
		return datatree.OkReply()
	}
	if children[0].Name == "rpc-error" {
		var errs mgmterr.List
		for _, c := range children {
			if c.Name == "rpc-error" {
				errs = append(errs, errorFromNode(c))
			}
		}
		return &datatree.Reply{Errors: errs}
	}
	body := children[0]
	switch body.Name {
	case "ok":
		return datatree.OkReply()
	case "data":
		if len(body.Children()) == 0 {
			return datatree.DataReply(body)
		}
		return datatree.DataReply(body.Children()[0])
	default:
		return datatree.DataReply(body)
	}
}

func errorFromNode(n *datatree.Node) *mgmterr.Error {
	e := &mgmterr.Error{}
	if k := n.Child("error-type"); k != nil {
		e.Kind = mgmterr.Kind(k.Value)
	}
	if t := n.Child("error-tag"); t != nil {
		e.Tag = mgmterr.Tag(t.Value)
	}
	if sv := n.Child("error-severity"); sv != nil {
		e.Severity = mgmterr.Severity(sv.Value)
	}
	if at := n.Child("error-app-tag"); at != nil {
		e.AppTag = at.Value
	}
	if p := n.Child("error-path"); p != nil {
		e.Path = p.Value
	}
	if m := n.Child("error-message"); m != nil {
		e.Message = m.Value
	}
	if info := n.Child("error-info"); info != nil {
		e.Info = info.Value
	}
	return e
}

// send builds the <rpc> envelope, allocates a message-id, registers an
// expectation, frames and sends, then blocks for the reply (or ttl).
func (c *Client) send(ctx context.Context, ttl time.Duration, op *datatree.Node) (*datatree.Reply, error) {
	messageID := c.sess.NextMessageID()
	_, ch := c.exp.Register(c.sess.ID, messageID, ttl)

	envelope := datatree.WrapRPC(messageID, op)
	out, err := c.codec.Serialize(envelope)
	if err != nil {
		c.sess.ResolveOutstanding(messageID)
		return nil, err
	}
	if err := c.sess.Send(ctx, out); err != nil {
		c.sess.ResolveOutstanding(messageID)
		return nil, err
	}

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Reply, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func replyToError(r *datatree.Reply) error {
	if len(r.Errors) > 0 {
		return r.Errors
	}
	return nil
}

// Get issues <get>.
func (c *Client) Get(ctx context.Context, filter *datatree.Filter) (*datatree.Node, error) {
	op := datatree.NewOpaque("get", "urn:ietf:params:xml:ns:netconf:base:1.0")
	if filter != nil {
		_ = op.AddChild(filter.ToNode())
	}
	r, err := c.send(ctx, DefaultExpectationTTL, op)
	if err != nil {
		return nil, err
	}
	if err := replyToError(r); err != nil {
		return nil, err
	}
	return r.Data, nil
}

// GetConfig issues <get-config>.
func (c *Client) GetConfig(ctx context.Context, source datatree.Datastore, filter *datatree.Filter) (*datatree.Node, error) {
	op := datatree.NewOpaque("get-config", "urn:ietf:params:xml:ns:netconf:base:1.0")
	_ = op.AddChild(datastoreWrapper("source", source))
	if filter != nil {
		_ = op.AddChild(filter.ToNode())
	}
	r, err := c.send(ctx, DefaultExpectationTTL, op)
	if err != nil {
		return nil, err
	}
	if err := replyToError(r); err != nil {
		return nil, err
	}
	return r.Data, nil
}

// EditConfig issues <edit-config>.
func (c *Client) EditConfig(ctx context.Context, req datatree.EditConfig) error {
	op := datatree.NewOpaque("edit-config", "urn:ietf:params:xml:ns:netconf:base:1.0")
	_ = op.AddChild(datastoreWrapper("target", req.Target))
	if req.DefaultOperation != "" {
		_ = op.AddChild(leaf("default-operation", string(req.DefaultOperation)))
	}
	if req.ErrorOption != "" {
		_ = op.AddChild(leaf("error-option", string(req.ErrorOption)))
	}
	if req.TestOption != "" {
		_ = op.AddChild(leaf("test-option", string(req.TestOption)))
	}
	config := datatree.NewOpaque("config", "urn:ietf:params:xml:ns:netconf:base:1.0")
	for _, c2 := range req.Config.Children() {
		_ = config.AddChild(c2.Clone())
	}
	_ = op.AddChild(config)

	r, err := c.send(ctx, DefaultExpectationTTL, op)
	if err != nil {
		return err
	}
	return replyToError(r)
}

// CopyConfig issues <copy-config>.
func (c *Client) CopyConfig(ctx context.Context, req datatree.CopyConfig) error {
	op := datatree.NewOpaque("copy-config", "urn:ietf:params:xml:ns:netconf:base:1.0")
	_ = op.AddChild(datastoreWrapper("target", req.Target))
	if req.SourceConfig != nil {
		wrapper := datatree.NewOpaque("source", "urn:ietf:params:xml:ns:netconf:base:1.0")
		_ = wrapper.AddChild(req.SourceConfig.Clone())
		_ = op.AddChild(wrapper)
	} else {
		_ = op.AddChild(datastoreWrapper("source", req.Source))
	}
	r, err := c.send(ctx, DefaultExpectationTTL, op)
	if err != nil {
		return err
	}
	return replyToError(r)
}

// DeleteConfig issues <delete-config>.
func (c *Client) DeleteConfig(ctx context.Context, target datatree.Datastore) error {
	op := datatree.NewOpaque("delete-config", "urn:ietf:params:xml:ns:netconf:base:1.0")
	_ = op.AddChild(datastoreWrapper("target", target))
	r, err := c.send(ctx, DefaultExpectationTTL, op)
	if err != nil {
		return err
	}
	return replyToError(r)
}

// Lock issues <lock>.
func (c *Client) Lock(ctx context.Context, target datatree.Datastore) error {
	op := datatree.NewOpaque("lock", "urn:ietf:params:xml:ns:netconf:base:1.0")
	_ = op.AddChild(datastoreWrapper("target", target))
	r, err := c.send(ctx, DefaultExpectationTTL, op)
	if err != nil {
		return err
	}
	return replyToError(r)
}

// Unlock issues <unlock>.
func (c *Client) Unlock(ctx context.Context, target datatree.Datastore) error {
	op := datatree.NewOpaque("unlock", "urn:ietf:params:xml:ns:netconf:base:1.0")
	_ = op.AddChild(datastoreWrapper("target", target))
	r, err := c.send(ctx, DefaultExpectationTTL, op)
	if err != nil {
		return err
	}
	return replyToError(r)
}

// Commit issues <commit>, with optional confirmed-commit fields.
func (c *Client) Commit(ctx context.Context, req datatree.Commit) error {
	op := datatree.NewOpaque("commit", "urn:ietf:params:xml:ns:netconf:base:1.0")
	if req.Confirmed {
		_ = op.AddChild(datatree.NewOpaque("confirmed", "urn:ietf:params:xml:ns:netconf:base:1.0"))
	}
	if req.TimeoutSeconds > 0 {
		_ = op.AddChild(leaf("confirm-timeout", fmt.Sprintf("%d", req.TimeoutSeconds)))
	}
	if req.PersistID != "" {
		if req.Confirmed {
			_ = op.AddChild(leaf("persist", req.PersistID))
		} else {
			_ = op.AddChild(leaf("persist-id", req.PersistID))
		}
	}
	ttl := DefaultExpectationTTL
	if req.TimeoutSeconds > 0 {
		ttl = time.Duration(req.TimeoutSeconds)*time.Second + DefaultExpectationTTL
	}
	r, err := c.send(ctx, ttl, op)
	if err != nil {
		return err
	}
	return replyToError(r)
}

// DiscardChanges issues <discard-changes>.
func (c *Client) DiscardChanges(ctx context.Context) error {
	op := datatree.NewOpaque("discard-changes", "urn:ietf:params:xml:ns:netconf:base:1.0")
	r, err := c.send(ctx, DefaultExpectationTTL, op)
	if err != nil {
		return err
	}
	return replyToError(r)
}

// Validate issues <validate>.
func (c *Client) Validate(ctx context.Context, source datatree.Datastore) error {
	op := datatree.NewOpaque("validate", "urn:ietf:params:xml:ns:netconf:base:1.0")
	_ = op.AddChild(datastoreWrapper("source", source))
	r, err := c.send(ctx, DefaultExpectationTTL, op)
	if err != nil {
		return err
	}
	return replyToError(r)
}

// CloseSession issues <close-session>.
func (c *Client) CloseSession(ctx context.Context) error {
	op := datatree.NewOpaque("close-session", "urn:ietf:params:xml:ns:netconf:base:1.0")
	r, err := c.send(ctx, DefaultExpectationTTL, op)
	if err != nil {
		return err
	}
	return replyToError(r)
}

// KillSession issues <kill-session>.
func (c *Client) KillSession(ctx context.Context, sessionID int64) error {
	op := datatree.NewOpaque("kill-session", "urn:ietf:params:xml:ns:netconf:base:1.0")
	_ = op.AddChild(leaf("session-id", fmt.Sprintf("%d", sessionID)))
	r, err := c.send(ctx, DefaultExpectationTTL, op)
	if err != nil {
		return err
	}
	return replyToError(r)
}

// GetSchema issues the RFC 6022 <get-schema> operation.
func (c *Client) GetSchema(ctx context.Context, req datatree.GetSchema) (string, error) {
	op := datatree.NewOpaque("get-schema", "urn:ietf:params:xml:ns:yang:ietf-netconf-monitoring")
	_ = op.AddChild(leaf("identifier", req.Identifier))
	if req.Version != "" {
		_ = op.AddChild(leaf("version", req.Version))
	}
	if req.Format != "" {
		_ = op.AddChild(leaf("format", req.Format))
	}
	r, err := c.send(ctx, DefaultExpectationTTL, op)
	if err != nil {
		return "", err
	}
	if err := replyToError(r); err != nil {
		return "", err
	}
	if r.Data == nil {
		return "", nil
	}
	return r.Data.Value, nil
}

func datastoreWrapper(wrapperName string, ds datatree.Datastore) *datatree.Node {
	w := datatree.NewOpaque(wrapperName, "urn:ietf:params:xml:ns:netconf:base:1.0")
	_ = w.AddChild(datatree.NewOpaque(string(ds), "urn:ietf:params:xml:ns:netconf:base:1.0"))
	return w
}

func leaf(name, value string) *datatree.Node {
	n := datatree.NewOpaque(name, "urn:ietf:params:xml:ns:netconf:base:1.0")
	n.Value = value
	return n
}
