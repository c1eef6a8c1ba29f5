// Copyright (c) 2026, Ravenhammer Research.
//
// SPDX-License-Identifier: LGPL-2.1-only

package datatree_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ravenhammer-research/netd/datatree"
	"github.com/ravenhammer-research/netd/schema"
)

func interfacesRegistry() *schema.Registry {
	r := schema.NewRegistry()
	root := schema.NewContainer("interfaces", "ietf-interfaces",
		schema.NewList("interface", "ietf-interfaces", []string{"name"},
			schema.NewLeaf("name", "ietf-interfaces"),
			schema.NewLeaf("type", "ietf-interfaces"),
		),
	)
	_ = r.Load(schema.Module{Name: "ietf-interfaces", Namespace: "urn:ietf:params:xml:ns:yang:ietf-interfaces"}, root)
	return r
}

func TestParseRPCRequiresMessageID(t *testing.T) {
	c := datatree.NewCodec(nil)
	_, _, err := c.Parse([]byte(`<rpc xmlns="urn:ietf:params:xml:ns:netconf:base:1.0"><get/></rpc>`))
	require.Error(t, err)
}

func TestParseHelloShape(t *testing.T) {
	c := datatree.NewCodec(nil)
	xml := `<hello xmlns="urn:ietf:params:xml:ns:netconf:base:1.0">
		<capabilities><capability>urn:ietf:params:netconf:base:1.1</capability></capabilities>
		<session-id>7</session-id>
	</hello>`
	n, shape, err := c.Parse([]byte(xml))
	require.NoError(t, err)
	assert.Equal(t, datatree.ShapeHello, shape)

	h := datatree.HelloFromNode(n)
	assert.Equal(t, int64(7), h.SessionID)
	assert.Equal(t, []string{"urn:ietf:params:netconf:base:1.1"}, h.Capabilities)
}

func TestRoundtripByteStable(t *testing.T) {
	c := datatree.NewCodec(interfacesRegistry())
	xml := `<rpc xmlns="urn:ietf:params:xml:ns:netconf:base:1.0" message-id="1">` +
		`<get-config><source><running/></source></get-config></rpc>`

	first, err := c.Roundtrip([]byte(xml))
	require.NoError(t, err)
	second, err := c.Roundtrip(first)
	require.NoError(t, err)
	if diff := cmp.Diff(string(first), string(second)); diff != "" {
		t.Errorf("roundtrip not byte-stable (-first +second):\n%s", diff)
	}
}

func TestUnrecognisedTopLevelIsMalformed(t *testing.T) {
	c := datatree.NewCodec(nil)
	_, _, err := c.Parse([]byte(`<banana/>`))
	require.Error(t, err)
}

func TestSchemaLinkedElementInsideOperationBody(t *testing.T) {
	reg := interfacesRegistry()
	c := datatree.NewCodec(reg)
	xml := `<rpc xmlns="urn:ietf:params:xml:ns:netconf:base:1.0" message-id="2">
		<edit-config><target><candidate/></target><config>
			<interfaces><interface><name>eth0</name><type>ethernetCsmacd</type></interface></interfaces>
		</config></edit-config></rpc>`
	n, _, err := c.Parse([]byte(xml))
	require.NoError(t, err)

	editConfig := n.Child("edit-config")
	require.NotNil(t, editConfig)
	config := editConfig.Child("config")
	require.NotNil(t, config)
	ifaces := config.Child("interfaces")
	require.NotNil(t, ifaces)
	assert.False(t, ifaces.IsOpaque())
}
