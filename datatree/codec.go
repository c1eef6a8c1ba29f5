// Copyright (c) 2026, Ravenhammer Research.
//
// SPDX-License-Identifier: LGPL-2.1-only

package datatree

import (
	"sort"
	"strings"

	"github.com/beevik/etree"

	"github.com/ravenhammer-research/netd/mgmterr"
	"github.com/ravenhammer-research/netd/schema"
)

const baseNS = "urn:ietf:params:xml:ns:netconf:base:1.0"

// MessageShape classifies the top-level element of a parsed message.
type MessageShape int

const (
	ShapeUnknown MessageShape = iota
	ShapeHello
	ShapeRPC
	ShapeRPCReply
	ShapeNotification
)

// Codec parses and serializes data trees against a schema registry.
type Codec struct {
	reg *schema.Registry
}

func NewCodec(reg *schema.Registry) *Codec { return &Codec{reg: reg} }

// Parse decodes XML bytes into a Node tree rooted at the document element.
// Inside operation bodies, elements are resolved against the schema
// registry when a module is known; the envelope itself is always opaque
// (spec §4.2).
func (c *Codec) Parse(xmlBytes []byte) (*Node, MessageShape, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(xmlBytes); err != nil {
		return nil, ShapeUnknown, mgmterr.MalformedMessage().WithMessage("%s", err)
	}
	root := doc.Root()
	if root == nil {
		return nil, ShapeUnknown, mgmterr.MalformedMessage().WithMessage("empty document")
	}

	shape := ShapeUnknown
	switch root.Tag {
	case "hello":
		shape = ShapeHello
	case "rpc":
		shape = ShapeRPC
	case "rpc-reply":
		shape = ShapeRPCReply
	case "notification":
		shape = ShapeNotification
	default:
		return nil, ShapeUnknown, mgmterr.MalformedMessage().
			WithMessage("unrecognised top-level element %q", root.Tag)
	}

	if shape == ShapeRPC && root.SelectAttr("message-id") == nil {
		return nil, shape, mgmterr.MissingAttribute("rpc", "message-id")
	}

	node := c.elementToNode(root, "", false)
	return node, shape, nil
}

// dataBoundary names the elements whose CHILDREN are actual schema data —
// a <config> body in edit-config/copy-config, or a <data> body in a get
// reply. The boundary element itself is always opaque (it's a protocol
// wrapper); entering it switches the recursion into schema mode with a
// fresh, root-relative path (spec §4.2, §9 "opaque envelopes").
func isDataBoundary(tag string) bool { return tag == "config" || tag == "data" }

// elementToNode converts one etree.Element into a Node, recursing into
// children. dataMode is false while walking protocol-control structure
// (rpc/rpc-reply/hello, operation names, datastore selectors like
// <source><running/></source>) — those stay opaque regardless of the
// schema registry. dataMode becomes true, with the path reset to root,
// once a <config> or <data> boundary is crossed, so operation bodies are
// validated strictly while the envelope around them stays lenient.
func (c *Codec) elementToNode(el *etree.Element, pathPrefix string, dataMode bool) *Node {
	var path string
	if dataMode {
		path = pathPrefix + "/" + el.Tag
	}

	var n *Node
	if dataMode && c.reg != nil {
		if sn, err := c.reg.Resolve(path); err == nil {
			n = NewSchemaNode(sn, el.NamespaceURI())
		}
	}
	if n == nil {
		n = NewOpaque(el.Tag, el.NamespaceURI())
	}

	for _, a := range el.Attr {
		if a.Space == "xmlns" || a.Key == "xmlns" {
			continue
		}
		n.Attrs[a.FullKey()] = a.Value
	}

	if len(el.ChildElements()) == 0 {
		n.Value = strings.TrimSpace(el.Text())
		return n
	}

	childDataMode := dataMode
	childPrefix := path
	if isDataBoundary(el.Tag) {
		childDataMode = true
		childPrefix = ""
	}
	for _, ce := range el.ChildElements() {
		childNode := c.elementToNode(ce, childPrefix, childDataMode)
		if n.Kind == List {
			if len(n.Schema.Keys) > 0 && childNode.Name == n.Schema.Keys[0] {
				n.Key = childNode.Value
			}
		}
		_ = n.AddChild(childNode)
	}
	return n
}

// Serialize renders root back to XML. Namespaces are declared at the
// shallowest node that introduces them, and output is byte-stable for
// identical input trees (spec §4.2 roundtrip invariant).
func (c *Codec) Serialize(root *Node) ([]byte, error) {
	doc := etree.NewDocument()
	c.nodeToElement(doc.Element, root, "")
	b, err := doc.WriteToBytes()
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (c *Codec) nodeToElement(parent *etree.Element, n *Node, inheritedNS string) {
	el := parent.CreateElement(n.Name)
	if n.Namespace != "" && n.Namespace != inheritedNS {
		el.CreateAttr("xmlns", n.Namespace)
		inheritedNS = n.Namespace
	}
	keys := make([]string, 0, len(n.Attrs))
	for k := range n.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		el.CreateAttr(k, n.Attrs[k])
	}
	if len(n.children) == 0 {
		if n.Value != "" {
			el.SetText(n.Value)
		}
		return
	}
	for _, c2 := range n.children {
		c.nodeToElement(el, c2, inheritedNS)
	}
}

// Roundtrip is a test/diagnostic helper: parse then reserialize, returning
// the canonical bytes. Used by codec_test.go to assert the byte-stability
// invariant.
func (c *Codec) Roundtrip(xmlBytes []byte) ([]byte, error) {
	n, _, err := c.Parse(xmlBytes)
	if err != nil {
		return nil, err
	}
	return c.Serialize(n)
}

// WrapRPC builds the `<rpc message-id="...">` envelope around an opaque or
// schema-linked operation node.
func WrapRPC(messageID string, op *Node) *Node {
	rpc := NewOpaque("rpc", baseNS)
	rpc.Attrs["message-id"] = messageID
	_ = rpc.AddChild(op)
	return rpc
}

// WrapReply builds the `<rpc-reply message-id="...">` envelope.
func WrapReply(messageID string, body *Node) *Node {
	reply := NewOpaque("rpc-reply", baseNS)
	reply.Attrs["message-id"] = messageID
	_ = reply.AddChild(body)
	return reply
}

// MessageID extracts the message-id attribute from an <rpc> or <rpc-reply>
// node, or "" if absent (used when recovering enough of a malformed
// message to still address an error to the right waiter — spec §7).
func MessageID(envelope *Node) string {
	return envelope.Attrs["message-id"]
}
