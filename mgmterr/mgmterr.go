// Copyright (c) 2026, Ravenhammer Research.
//
// SPDX-License-Identifier: LGPL-2.1-only

// Package mgmterr implements the RFC 6241 <rpc-error> taxonomy: the four
// error kinds, the standard error-tag set, and the two severities. It is
// modeled on the tag-per-constructor pattern of github.com/danos/mgmterror
// (one constructor per error-tag, Protocol/Application suffix selecting the
// error-type) but implemented in-repo because the tag set is itself part of
// this project's wire contract rather than an ambient concern.
package mgmterr

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// Kind is the NETCONF <error-type>.
type Kind string

const (
	KindTransport  Kind = "transport"
	KindRPC        Kind = "rpc"
	KindProtocol   Kind = "protocol"
	KindApplication Kind = "application"
)

// Tag is the NETCONF <error-tag>.
type Tag string

const (
	TagInUse                Tag = "in-use"
	TagInvalidValue         Tag = "invalid-value"
	TagTooBig               Tag = "too-big"
	TagMissingAttribute     Tag = "missing-attribute"
	TagBadAttribute         Tag = "bad-attribute"
	TagUnknownAttribute     Tag = "unknown-attribute"
	TagMissingElement       Tag = "missing-element"
	TagBadElement           Tag = "bad-element"
	TagUnknownElement       Tag = "unknown-element"
	TagUnknownNamespace     Tag = "unknown-namespace"
	TagAccessDenied         Tag = "access-denied"
	TagLockDenied           Tag = "lock-denied"
	TagResourceDenied       Tag = "resource-denied"
	TagRollbackFailed       Tag = "rollback-failed"
	TagDataExists           Tag = "data-exists"
	TagDataMissing          Tag = "data-missing"
	TagOperationNotSupported Tag = "operation-not-supported"
	TagOperationFailed      Tag = "operation-failed"
	TagPartialOperation     Tag = "partial-operation"
	TagMalformedMessage     Tag = "malformed-message"
)

// Severity is the NETCONF <error-severity>.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Error is a single <rpc-error> element.
type Error struct {
	XMLName xml.Name `xml:"urn:ietf:params:xml:ns:netconf:base:1.0 rpc-error"`

	Kind     Kind     `xml:"error-type"`
	Tag      Tag      `xml:"error-tag"`
	Severity Severity `xml:"error-severity"`
	AppTag   string   `xml:"error-app-tag,omitempty"`
	Path     string   `xml:"error-path,omitempty"`
	Message  string   `xml:"error-message,omitempty"`
	Info     string   `xml:"error-info,omitempty"`
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Kind, e.Tag)
	if e.Path != "" {
		fmt.Fprintf(&b, " (%s)", e.Path)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	return b.String()
}

// WithPath returns a copy of e with Path set, for errors raised before the
// offending path is known (e.g. schema resolution bubbling up the tree).
func (e *Error) WithPath(path string) *Error {
	ne := *e
	ne.Path = path
	return &ne
}

// WithMessage returns a copy of e with a human-readable message attached.
func (e *Error) WithMessage(format string, args ...interface{}) *Error {
	ne := *e
	ne.Message = fmt.Sprintf(format, args...)
	return &ne
}

// WithInfo attaches free-form <error-info> detail, e.g. a native backend's
// rejection reason on a failed commit apply.
func (e *Error) WithInfo(info string) *Error {
	ne := *e
	ne.Info = info
	return &ne
}

func newErr(kind Kind, tag Tag, sev Severity) *Error {
	return &Error{Kind: kind, Tag: tag, Severity: sev}
}

// List aggregates multiple Errors, as produced by edit-config's
// continue-on-error mode or by a multi-node validate pass. It implements
// error so it composes with go.uber.org/multierr at call sites that also
// need to combine mgmterr failures with plain Go errors.
type List []*Error

func (l List) Error() string {
	if len(l) == 1 {
		return l[0].Error()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d errors:", len(l))
	for _, e := range l {
		b.WriteString("\n  ")
		b.WriteString(e.Error())
	}
	return b.String()
}

// AsList normalizes err into a List: nil stays nil, a *Error becomes a
// one-element list, an existing List passes through, anything else is
// wrapped as an operation-failed application error carrying the original
// message.
func AsList(err error) List {
	switch v := err.(type) {
	case nil:
		return nil
	case List:
		return v
	case *Error:
		return List{v}
	default:
		return List{OperationFailed(KindApplication).WithMessage("%s", v)}
	}
}

// --- per-tag constructors, Kind supplied by caller where RFC 6241 allows
// the error to be reported at more than one layer ---

func InUse(kind Kind) *Error { return newErr(kind, TagInUse, SeverityError) }

func InvalidValue(kind Kind) *Error { return newErr(kind, TagInvalidValue, SeverityError) }

func TooBig(kind Kind) *Error { return newErr(kind, TagTooBig, SeverityError) }

func MissingAttribute(element, attribute string) *Error {
	return newErr(KindProtocol, TagMissingAttribute, SeverityError).
		WithMessage("element %q is missing required attribute %q", element, attribute)
}

func BadAttribute(element, attribute string) *Error {
	return newErr(KindProtocol, TagBadAttribute, SeverityError).
		WithMessage("element %q has a bad value for attribute %q", element, attribute)
}

func UnknownAttribute(element, attribute string) *Error {
	return newErr(KindProtocol, TagUnknownAttribute, SeverityError).
		WithMessage("element %q has unrecognised attribute %q", element, attribute)
}

func MissingElement(parent, element string) *Error {
	return newErr(KindProtocol, TagMissingElement, SeverityError).
		WithMessage("expected element %q inside %q", element, parent)
}

func BadElement(element string) *Error {
	return newErr(KindProtocol, TagBadElement, SeverityError).
		WithMessage("element %q has a bad value", element)
}

func UnknownElement(kind Kind, element string) *Error {
	return newErr(kind, TagUnknownElement, SeverityError).
		WithMessage("unknown element %q", element)
}

func UnknownNamespace(kind Kind, element, namespace string) *Error {
	return newErr(kind, TagUnknownNamespace, SeverityError).
		WithMessage("element %q uses unrecognised namespace %q", element, namespace)
}

func AccessDenied(kind Kind) *Error { return newErr(kind, TagAccessDenied, SeverityError) }

// LockDenied reports that a datastore lock is already held by holder.
func LockDenied(holder int64) *Error {
	return newErr(KindProtocol, TagLockDenied, SeverityError).
		WithInfo(fmt.Sprintf(`<session-id>%d</session-id>`, holder))
}

func ResourceDenied(kind Kind) *Error { return newErr(kind, TagResourceDenied, SeverityError) }

func RollbackFailed(kind Kind) *Error { return newErr(kind, TagRollbackFailed, SeverityError) }

func DataExists(path string) *Error {
	return newErr(KindApplication, TagDataExists, SeverityError).WithPath(path)
}

func DataMissing(path string) *Error {
	return newErr(KindApplication, TagDataMissing, SeverityError).WithPath(path)
}

func OperationNotSupported(kind Kind) *Error {
	return newErr(kind, TagOperationNotSupported, SeverityError)
}

func OperationFailed(kind Kind) *Error { return newErr(kind, TagOperationFailed, SeverityError) }

func PartialOperation() *Error {
	return newErr(KindApplication, TagPartialOperation, SeverityError)
}

// MalformedMessage is always a transport/rpc-layer failure; a session that
// cannot recover a message-id closes on this error rather than replying.
func MalformedMessage() *Error {
	return newErr(KindRPC, TagMalformedMessage, SeverityError)
}

// Timeout is not an RFC 6241 tag; it is the client-local failure an
// expectation resolves to when its TTL elapses (spec §4.7, §7).
func Timeout() *Error {
	return newErr(KindApplication, "timeout", SeverityError).
		WithMessage("expectation expired before a reply arrived")
}

// Canceled is the client-local failure used when a transport handle's
// cancellation signal fires while an I/O or datastore operation is
// outstanding (spec §5).
func Canceled() *Error {
	return newErr(KindTransport, "canceled", SeverityError)
}
