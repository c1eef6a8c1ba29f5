// Copyright (c) 2026, Ravenhammer Research.
//
// SPDX-License-Identifier: LGPL-2.1-only

package datatree

import "github.com/ravenhammer-research/netd/mgmterr"

const notificationNS = "urn:ietf:params:xml:ns:netconf:notification:1.0"

// WrapNotification builds a `<notification>` envelope carrying eventTime
// and a single event body, used for the confirmed-commit-expired event
// (spec §9 "confirmed-commit notifications") when a session has
// advertised `:notification`.
func WrapNotification(eventTime string, event *Node) *Node {
	n := NewOpaque("notification", notificationNS)
	et := NewOpaque("eventTime", notificationNS)
	et.Value = eventTime
	_ = n.AddChild(et)
	_ = n.AddChild(event)
	return n
}

// ConfirmedCommitExpiredEvent builds the <netconf-confirmed-commit-expired>
// event body named in RFC 6241bis for the window §9 flags.
func ConfirmedCommitExpiredEvent() *Node {
	return NewOpaque("netconf-confirmed-commit-expired", baseNS)
}

// Reply is the decoded, typed form of an <rpc-reply>: exactly one of Ok,
// Data or Errors is set.
type Reply struct {
	Ok     bool
	Data   *Node
	Errors mgmterr.List
}

// OkReply builds a bare <ok/> reply.
func OkReply() *Reply { return &Reply{Ok: true} }

// DataReply builds a <data> reply wrapping tree.
func DataReply(tree *Node) *Reply { return &Reply{Data: tree} }

// ErrorReply builds an <rpc-error> (or list thereof) reply.
func ErrorReply(errs ...*mgmterr.Error) *Reply { return &Reply{Errors: mgmterr.List(errs)} }

// ToNode renders the reply body (the content that goes inside
// <rpc-reply message-id="...">...</rpc-reply>, built by WrapReply).
func (r *Reply) ToNode() *Node {
	switch {
	case len(r.Errors) > 0:
		// Multiple <rpc-error> elements are siblings directly under
		// rpc-reply; represent that with a synthetic container the
		// dispatcher flattens when framing (see dispatcher.replyEnvelope).
		wrap := NewOpaque("rpc-errors", baseNS)
		for _, e := range r.Errors {
			errNode := NewOpaque("rpc-error", baseNS)
			set := func(name, val string) {
				if val == "" {
					return
				}
				child := NewOpaque(name, baseNS)
				child.Value = val
				_ = errNode.AddChild(child)
			}
			set("error-type", string(e.Kind))
			set("error-tag", string(e.Tag))
			set("error-severity", string(e.Severity))
			set("error-app-tag", e.AppTag)
			set("error-path", e.Path)
			set("error-message", e.Message)
			set("error-info", e.Info)
			_ = wrap.AddChild(errNode)
		}
		return wrap
	case r.Data != nil:
		data := NewOpaque("data", baseNS)
		_ = data.AddChild(r.Data.Clone())
		return data
	default:
		return NewOpaque("ok", baseNS)
	}
}
