// Copyright (c) 2026, Ravenhammer Research.
//
// SPDX-License-Identifier: LGPL-2.1-only

// Package framing implements the two RFC 6242 message-delimiting schemes —
// end-of-message (base 1.0) and chunked (base 1.1) — over a transport.Handle.
// A Framer starts in end-of-message mode and is switched to chunked once
// both peers' hello capabilities have been intersected, mirroring the
// codec.EnableChunkedFraming upgrade point the netconf implementations in
// the pack perform right after decoding <hello> (spec §4.4).
package framing

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/ravenhammer-research/netd/mgmterr"
	"github.com/ravenhammer-research/netd/transport"
)

// Mode selects which delimiting scheme is active.
type Mode int

const (
	EndOfMessage Mode = iota
	Chunked
)

// MaxMessageSize bounds a single message (spec §4.4 "recommended 16 MiB").
const MaxMessageSize = 16 * 1024 * 1024

const eomTerminator = "]]>]]>"

// Framer reads and writes whole NETCONF messages over a transport.Handle,
// hiding the wire-level framing from callers (the session and dispatcher
// only ever see complete message bytes).
type Framer struct {
	h    transport.Handle
	hr   *handleReader
	r    *bufio.Reader
	mode Mode
}

// handleReader adapts transport.Handle.Recv to io.Reader. ctx is set by
// NextMessage right before each read, since Recv takes a per-call context
// but io.Reader.Read does not. Bytes from one Recv that do not fit in p
// are kept in pending and returned by the following Reads.
type handleReader struct {
	h       transport.Handle
	ctx     context.Context
	pending []byte
}

func (r *handleReader) Read(p []byte) (int, error) {
	if len(r.pending) == 0 {
		b, err := r.h.Recv(r.ctx)
		if err != nil {
			return 0, err
		}
		r.pending = b
	}
	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}

// NewFramer wraps h, starting in end-of-message mode per RFC 6242 — a
// session always begins there and upgrades after the hello exchange.
func NewFramer(h transport.Handle) *Framer {
	hr := &handleReader{h: h, ctx: context.Background()}
	return &Framer{h: h, hr: hr, r: bufio.NewReaderSize(hr, 4096), mode: EndOfMessage}
}

// SetMode switches the active scheme. Callers invoke this once after
// intersecting hello capabilities; it never switches back.
func (f *Framer) SetMode(m Mode) { f.mode = m }

func (f *Framer) Mode() Mode { return f.mode }

// NextMessage blocks until one full message has been read, or ctx is done,
// or the underlying handle errors/closes.
func (f *Framer) NextMessage(ctx context.Context) ([]byte, error) {
	f.hr.ctx = ctx
	switch f.mode {
	case Chunked:
		return f.nextChunkedMessage()
	default:
		return f.nextEndOfMessageMessage()
	}
}

func (f *Framer) nextEndOfMessageMessage() ([]byte, error) {
	var buf bytes.Buffer
	tail := make([]byte, 0, len(eomTerminator))
	for {
		b, err := f.r.ReadByte()
		if err != nil {
			return nil, err
		}
		buf.WriteByte(b)
		if buf.Len() > MaxMessageSize {
			return nil, mgmterr.TooBig(mgmterr.KindTransport)
		}

		tail = append(tail, b)
		if len(tail) > len(eomTerminator) {
			tail = tail[1:]
		}
		if string(tail) == eomTerminator {
			return buf.Bytes()[:buf.Len()-len(eomTerminator)], nil
		}
	}
}

func (f *Framer) nextChunkedMessage() ([]byte, error) {
	var msg bytes.Buffer
	for {
		if err := f.expectByte('\n'); err != nil {
			return nil, err
		}
		if err := f.expectByte('#'); err != nil {
			return nil, err
		}

		b, err := f.r.ReadByte()
		if err != nil {
			return nil, err
		}
		if b == '#' {
			if err := f.expectByte('\n'); err != nil {
				return nil, err
			}
			return msg.Bytes(), nil
		}

		length, err := f.readChunkLength(b)
		if err != nil {
			return nil, err
		}
		if msg.Len()+int(length) > MaxMessageSize {
			return nil, mgmterr.TooBig(mgmterr.KindTransport)
		}
		if _, err := io.CopyN(&msg, f.r, int64(length)); err != nil {
			return nil, err
		}
	}
}

func (f *Framer) expectByte(want byte) error {
	b, err := f.r.ReadByte()
	if err != nil {
		return err
	}
	if b != want {
		return mgmterr.MalformedMessage().WithMessage("expected %q, got %q", want, b)
	}
	return nil
}

// readChunkLength reads the decimal chunk-size digits that follow the
// already-consumed first digit, terminated by '\n', and validates it
// against ParseChunkLength's range (spec §4.4: 1..4294967295).
func (f *Framer) readChunkLength(firstDigit byte) (uint32, error) {
	digits := []byte{firstDigit}
	for {
		b, err := f.r.ReadByte()
		if err != nil {
			return 0, err
		}
		if b == '\n' {
			break
		}
		digits = append(digits, b)
	}
	return ParseChunkLength(string(digits))
}

// ParseChunkLength validates a chunk-size field: decimal digits only, no
// sign, in range 1..4294967295. Exported so tests can exercise the
// boundary behaviors in spec §8 without allocating gigabyte buffers.
func ParseChunkLength(s string) (uint32, error) {
	if s == "" {
		return 0, mgmterr.MalformedMessage().WithMessage("empty chunk length")
	}
	var v uint64
	for _, c := range []byte(s) {
		if c < '0' || c > '9' {
			return 0, mgmterr.MalformedMessage().WithMessage("non-decimal chunk length %q", s)
		}
		v = v*10 + uint64(c-'0')
		if v > 4294967295 {
			return 0, mgmterr.MalformedMessage().WithMessage("chunk length %q out of range", s)
		}
	}
	if v == 0 {
		return 0, mgmterr.MalformedMessage().WithMessage("chunk length must be >= 1")
	}
	return uint32(v), nil
}

// WriteMessage frames and writes a whole message in the active mode.
func (f *Framer) WriteMessage(ctx context.Context, msg []byte) error {
	var out []byte
	switch f.mode {
	case Chunked:
		out = append(out, fmt.Sprintf("\n#%d\n", len(msg))...)
		out = append(out, msg...)
		out = append(out, "\n##\n"...)
	default:
		out = append(out, msg...)
		out = append(out, eomTerminator...)
	}
	return f.h.Send(ctx, out)
}
