// Copyright (c) 2026, Ravenhammer Research.
//
// SPDX-License-Identifier: LGPL-2.1-only

// Package dispatcher implements C6: the RPC dispatcher's server and
// client roles. The server role receives a framed message, parses it,
// branches on operation name, and turns the handler's result into an
// rpc-reply or rpc-error envelope; the client role builds requests,
// allocates message-ids, registers expectations, and classifies inbound
// traffic as reply, notification, or hello. Grounded on the teacher's
// server/dispatcher.go Disp type — one struct holding the collaborators
// (there: SessionMgr/CommitMgr/ModelSet; here: datastore.Manager,
// schema.Registry, ncsession.Registry) with one method per RPC name —
// generalized from Disp's JSON-RPC method-per-call shape to this
// project's XML operation-element-per-call shape.
package dispatcher

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ravenhammer-research/netd/common"
	"github.com/ravenhammer-research/netd/datastore"
	"github.com/ravenhammer-research/netd/datatree"
	"github.com/ravenhammer-research/netd/mgmterr"
	"github.com/ravenhammer-research/netd/ncsession"
	"github.com/ravenhammer-research/netd/schema"
)

// notificationSendTimeout bounds the best-effort push of a
// confirmed-commit-expired event; a session that can't accept it inside
// this window is treated the same as one that never advertised
// :notification (spec §9).
const notificationSendTimeout = 5 * time.Second

// Server holds the collaborators every handler needs: the schema
// registry (capabilities, get-schema), the datastore manager, and the
// session registry (kill-session needs to reach another session).
type Server struct {
	Schema    *schema.Registry
	Datastore *datastore.Manager
	Sessions  *ncsession.Registry
	Log       *logrus.Logger

	// MonitoringEnabled gates get-schema per spec §9: implemented only
	// when :ietf-netconf-monitoring is advertised, operation-not-supported
	// otherwise.
	MonitoringEnabled bool

	// codec serializes the confirmed-commit-expired notification, which
	// is pushed outside the normal request/reply flow and so needs its
	// own codec rather than borrowing the one ServeSession was handed.
	codec *datatree.Codec
}

// NewServer wires a Server with a fresh logger, and registers with mgr so
// an unconfirmed confirmed-commit's expiry turns into a notification on
// the owning session (spec §9) when that session negotiated
// :notification. Log may be overwritten by the caller before serving any
// session.
func NewServer(reg *schema.Registry, mgr *datastore.Manager, sessions *ncsession.Registry, monitoringEnabled bool) *Server {
	s := &Server{
		Schema:            reg,
		Datastore:         mgr,
		Sessions:          sessions,
		Log:               common.NewStructuredLogger(),
		MonitoringEnabled: monitoringEnabled,
		codec:             datatree.NewCodec(reg),
	}
	mgr.OnConfirmExpire(s.emitConfirmExpired)
	return s
}

// emitConfirmExpired runs off the datastore manager's confirm-timer
// goroutine, not a session's own receive loop, so it looks the target
// session up by id and pushes straight to its handle rather than going
// through dispatch/sendReply.
func (s *Server) emitConfirmExpired(sessionID int64) {
	sess, err := s.Sessions.Get(sessionID)
	if err != nil {
		return
	}
	if !sess.Negotiated().Notification {
		return
	}
	event := datatree.ConfirmedCommitExpiredEvent()
	notif := datatree.WrapNotification(time.Now().UTC().Format(time.RFC3339), event)
	out, err := s.codec.Serialize(notif)
	if err != nil {
		common.LogError(s.Log, logrus.Fields{"session_id": sessionID}, "failed to serialize confirmed-commit-expired notification")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), notificationSendTimeout)
	defer cancel()
	if err := sess.Send(ctx, out); err != nil {
		common.LogError(s.Log, logrus.Fields{"session_id": sessionID}, "failed to send confirmed-commit-expired notification")
	}
}

// ServeSession runs one session end to end: hello exchange, then the
// receive loop until the peer closes or the session ends (spec §4.5,
// §4.6). The caller is expected to run this in its own goroutine per
// accepted connection (spec §5 "each accepted session runs as an
// independent task").
func (s *Server) ServeSession(ctx context.Context, sess *ncsession.Session, codec *datatree.Codec) error {
	defer s.Datastore.ReleaseSessionLocks(sess.ID)
	defer s.Sessions.Remove(sess.ID)

	if err := s.exchangeHello(ctx, sess, codec); err != nil {
		return err
	}

	for {
		raw, err := sess.Recv(ctx)
		if err != nil {
			return err
		}
		if err := s.handleMessage(ctx, sess, codec, raw); err != nil {
			if _, ok := err.(*closeRequested); ok {
				return nil
			}
			return err
		}
	}
}

func (s *Server) exchangeHello(ctx context.Context, sess *ncsession.Session, codec *datatree.Codec) error {
	local := ncsession.DefaultCapabilities(s.MonitoringEnabled)
	local = append(local, s.Schema.Capabilities()...)
	hello := &datatree.Hello{Capabilities: local, SessionID: sess.ID}
	out, err := codec.Serialize(hello.ToNode())
	if err != nil {
		return err
	}
	if err := sess.Send(ctx, out); err != nil {
		return err
	}
	sess.SentHello(local)

	raw, err := sess.Recv(ctx)
	if err != nil {
		return err
	}
	n, shape, err := codec.Parse(raw)
	if err != nil || shape != datatree.ShapeHello {
		return mgmterr.MalformedMessage().WithMessage("expected client hello")
	}
	peer := datatree.HelloFromNode(n)
	sess.ReceivedHello(peer.Capabilities)
	return nil
}

// closeRequested unwinds ServeSession's loop after a close-session reply
// has already been sent, without treating the shutdown as a transport
// failure.
type closeRequested struct{}

func (*closeRequested) Error() string { return "close-session requested" }

func (s *Server) handleMessage(ctx context.Context, sess *ncsession.Session, codec *datatree.Codec, raw []byte) error {
	n, shape, err := codec.Parse(raw)
	if err != nil {
		return err
	}
	if shape != datatree.ShapeRPC {
		return mgmterr.OperationFailed(mgmterr.KindProtocol).WithMessage("unexpected message shape")
	}
	messageID := datatree.MessageID(n)

	if err := sess.RequireActive(); err != nil {
		return s.sendReply(ctx, sess, codec, messageID, datatree.ErrorReply(mgmterr.AsList(err)...))
	}

	if len(n.Children()) == 0 {
		return s.sendReply(ctx, sess, codec, messageID,
			datatree.ErrorReply(mgmterr.MissingElement("rpc", "operation")))
	}
	op := n.Children()[0]

	reply, closing := s.dispatch(ctx, sess, op)
	if err := s.sendReply(ctx, sess, codec, messageID, reply); err != nil {
		return err
	}
	if closing {
		sess.BeginClosing()
		return &closeRequested{}
	}
	return nil
}

func (s *Server) sendReply(ctx context.Context, sess *ncsession.Session, codec *datatree.Codec, messageID string, reply *datatree.Reply) error {
	out, err := codec.Serialize(replyEnvelope(messageID, reply))
	if err != nil {
		return err
	}
	return sess.Send(ctx, out)
}

// replyEnvelope builds the <rpc-reply> envelope for reply, flattening
// Reply.ToNode's synthetic "rpc-errors" grouping node (an in-memory
// convenience for holding more than one error under one Node) into
// sibling <rpc-error> elements directly under <rpc-reply>, which is how
// RFC 6241 actually puts more than one error on the wire.
func replyEnvelope(messageID string, reply *datatree.Reply) *datatree.Node {
	body := reply.ToNode()
	envelope := datatree.NewOpaque("rpc-reply", "urn:ietf:params:xml:ns:netconf:base:1.0")
	envelope.Attrs["message-id"] = messageID
	if body.Name == "rpc-errors" {
		for _, e := range append([]*datatree.Node(nil), body.Children()...) {
			e.Detach()
			_ = envelope.AddChild(e)
		}
		return envelope
	}
	_ = envelope.AddChild(body)
	return envelope
}

// dispatch routes op to its handler. The second return is true only for
// close-session, telling the caller to stop the receive loop after the
// reply goes out.
func (s *Server) dispatch(ctx context.Context, sess *ncsession.Session, op *datatree.Node) (*datatree.Reply, bool) {
	common.LogAt(s.Log, common.TypeState, logrus.Fields{"session_id": sess.ID, "operation": op.Name}, "operation dispatched")

	switch op.Name {
	case "get":
		return s.handleGet(ctx, op), false
	case "get-config":
		return s.handleGetConfig(sess, op), false
	case "edit-config":
		return s.handleEditConfig(sess, op), false
	case "copy-config":
		return s.handleCopyConfig(ctx, sess, op), false
	case "delete-config":
		return s.handleDeleteConfig(sess, op), false
	case "lock":
		return s.handleLock(sess, op), false
	case "unlock":
		return s.handleUnlock(sess, op), false
	case "commit":
		return s.handleCommit(ctx, sess, op), false
	case "discard-changes":
		return s.handleDiscardChanges(sess), false
	case "validate":
		return s.handleValidate(op), false
	case "close-session":
		return datatree.OkReply(), true
	case "kill-session":
		return s.handleKillSession(sess, op), false
	case "get-schema":
		return s.handleGetSchema(op), false
	default:
		return datatree.ErrorReply(mgmterr.OperationNotSupported(mgmterr.KindProtocol).
			WithMessage("unknown operation %q", op.Name)), false
	}
}

func (s *Server) handleGet(ctx context.Context, op *datatree.Node) *datatree.Reply {
	req := parseGet(op)
	tree, err := s.Datastore.Get(ctx, req.Filter)
	if err != nil {
		return datatree.ErrorReply(mgmterr.AsList(err)...)
	}
	return datatree.DataReply(tree)
}

func (s *Server) handleGetConfig(sess *ncsession.Session, op *datatree.Node) *datatree.Reply {
	req, err := parseGetConfig(op)
	if err != nil {
		return datatree.ErrorReply(mgmterr.AsList(err)...)
	}
	tree, err := s.Datastore.GetConfig(sess.ID, req.Source, req.Filter)
	if err != nil {
		return datatree.ErrorReply(mgmterr.AsList(err)...)
	}
	return datatree.DataReply(tree)
}

func (s *Server) handleEditConfig(sess *ncsession.Session, op *datatree.Node) *datatree.Reply {
	req, err := parseEditConfig(op)
	if err != nil {
		return datatree.ErrorReply(mgmterr.AsList(err)...)
	}
	if err := s.Datastore.EditConfig(sess.ID, req); err != nil {
		return datatree.ErrorReply(mgmterr.AsList(err)...)
	}
	return datatree.OkReply()
}

func (s *Server) handleCopyConfig(ctx context.Context, sess *ncsession.Session, op *datatree.Node) *datatree.Reply {
	req, err := parseCopyConfig(op)
	if err != nil {
		return datatree.ErrorReply(mgmterr.AsList(err)...)
	}
	if err := s.Datastore.CopyConfig(ctx, sess.ID, req); err != nil {
		return datatree.ErrorReply(mgmterr.AsList(err)...)
	}
	return datatree.OkReply()
}

func (s *Server) handleDeleteConfig(sess *ncsession.Session, op *datatree.Node) *datatree.Reply {
	req, err := parseDeleteConfig(op)
	if err != nil {
		return datatree.ErrorReply(mgmterr.AsList(err)...)
	}
	if err := s.Datastore.DeleteConfig(sess.ID, req.Target); err != nil {
		return datatree.ErrorReply(mgmterr.AsList(err)...)
	}
	return datatree.OkReply()
}

func (s *Server) handleLock(sess *ncsession.Session, op *datatree.Node) *datatree.Reply {
	req, err := parseLock(op)
	if err != nil {
		return datatree.ErrorReply(mgmterr.AsList(err)...)
	}
	if err := s.Datastore.Lock(sess.ID, req.Target); err != nil {
		return datatree.ErrorReply(mgmterr.AsList(err)...)
	}
	return datatree.OkReply()
}

func (s *Server) handleUnlock(sess *ncsession.Session, op *datatree.Node) *datatree.Reply {
	req, err := parseUnlock(op)
	if err != nil {
		return datatree.ErrorReply(mgmterr.AsList(err)...)
	}
	if err := s.Datastore.Unlock(sess.ID, req.Target); err != nil {
		return datatree.ErrorReply(mgmterr.AsList(err)...)
	}
	return datatree.OkReply()
}

func (s *Server) handleCommit(ctx context.Context, sess *ncsession.Session, op *datatree.Node) *datatree.Reply {
	req := parseCommit(op)
	if err := s.Datastore.Commit(ctx, sess.ID, req); err != nil {
		return datatree.ErrorReply(mgmterr.AsList(err)...)
	}
	return datatree.OkReply()
}

func (s *Server) handleDiscardChanges(sess *ncsession.Session) *datatree.Reply {
	if err := s.Datastore.DiscardChanges(sess.ID); err != nil {
		return datatree.ErrorReply(mgmterr.AsList(err)...)
	}
	return datatree.OkReply()
}

func (s *Server) handleValidate(op *datatree.Node) *datatree.Reply {
	req, err := parseValidate(op)
	if err != nil {
		return datatree.ErrorReply(mgmterr.AsList(err)...)
	}
	if err := s.Datastore.Validate(req.Source); err != nil {
		return datatree.ErrorReply(mgmterr.AsList(err)...)
	}
	return datatree.OkReply()
}

// handleKillSession force-closes another session. A session targeting
// its own session-id is rejected with operation-failed rather than
// closing itself out from under the handler that's still replying —
// supplemented from original_source's session.cpp (see DESIGN.md).
func (s *Server) handleKillSession(sess *ncsession.Session, op *datatree.Node) *datatree.Reply {
	req, err := parseKillSession(op)
	if err != nil {
		return datatree.ErrorReply(mgmterr.AsList(err)...)
	}
	if req.SessionID == sess.ID {
		return datatree.ErrorReply(mgmterr.OperationFailed(mgmterr.KindProtocol).
			WithMessage("a session cannot kill itself; use close-session"))
	}
	target, err := s.Sessions.Get(req.SessionID)
	if err != nil {
		return datatree.ErrorReply(mgmterr.AsList(err)...)
	}
	s.Datastore.ReleaseSessionLocks(target.ID)
	target.BeginClosing()
	_ = target.Close()
	s.Sessions.Remove(target.ID)
	return datatree.OkReply()
}

// handleGetSchema implements RFC 6022, conditional on :ietf-netconf-monitoring
// being advertised (spec §9 open question, resolved: serve registered
// module text when monitoring is enabled, operation-not-supported
// otherwise).
func (s *Server) handleGetSchema(op *datatree.Node) *datatree.Reply {
	if !s.MonitoringEnabled {
		return datatree.ErrorReply(mgmterr.OperationNotSupported(mgmterr.KindProtocol).
			WithMessage("get-schema requires :ietf-netconf-monitoring"))
	}
	req, err := parseGetSchema(op)
	if err != nil {
		return datatree.ErrorReply(mgmterr.AsList(err)...)
	}
	text, err := s.Schema.Source(req.Identifier, req.Version)
	if err != nil {
		return datatree.ErrorReply(mgmterr.InvalidValue(mgmterr.KindApplication).
			WithMessage("%s", err))
	}
	// RFC 6022's <data> element carries the module text directly; Reply's
	// Data field always nests one element deeper (ToNode wraps it in its
	// own <data>), so the child here is a single opaque "schema" leaf
	// rather than the raw text itself.
	schemaText := datatree.NewOpaque("schema", "urn:ietf:params:xml:ns:yang:ietf-netconf-monitoring")
	schemaText.Value = text
	return datatree.DataReply(schemaText)
}
