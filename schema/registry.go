// Copyright (c) 2026, Ravenhammer Research.
//
// SPDX-License-Identifier: LGPL-2.1-only

// Package schema implements C1: the process-wide registry of loaded YANG
// modules. It is intentionally a thin catalog — module identity, namespace,
// and a path index — not a YANG compiler; the full constraint language
// (must/when/leafref/augment) that github.com/danos/yang implements is out
// of scope for this spec's "schema registry" (see DESIGN.md).
package schema

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
)

// NodeKind classifies a schema-linked data node (spec §3).
type NodeKind int

const (
	KindContainer NodeKind = iota
	KindLeaf
	KindLeafList
	KindList
	KindRPC
)

func (k NodeKind) String() string {
	switch k {
	case KindContainer:
		return "container"
	case KindLeaf:
		return "leaf"
	case KindLeafList:
		return "leaf-list"
	case KindList:
		return "list"
	case KindRPC:
		return "rpc"
	default:
		return "unknown"
	}
}

// Module identifies one loaded YANG module.
type Module struct {
	Name      string
	Namespace string
	Revision  string
	Features  []string
}

// CapabilityURI renders the module as a NETCONF capability URI of the form
// <namespace>?module=<name>&revision=<date>[&features=...] (spec §4.1).
func (m Module) CapabilityURI() string {
	v := url.Values{}
	v.Set("module", m.Name)
	if m.Revision != "" {
		v.Set("revision", m.Revision)
	}
	if len(m.Features) > 0 {
		v.Set("features", strings.Join(m.Features, ","))
	}
	sep := "?"
	if strings.Contains(m.Namespace, "?") {
		sep = "&"
	}
	return m.Namespace + sep + v.Encode()
}

// Node is a schema-tree node: the definition a data-tree node is linked to.
type Node struct {
	Name     string
	Module   string
	Kind     NodeKind
	Keys     []string // list key leaf names, only meaningful for KindList
	Children map[string]*Node
}

func newNode(name, module string, kind NodeKind) *Node {
	return &Node{Name: name, Module: module, Kind: kind, Children: map[string]*Node{}}
}

// ErrSchemaNotFound is returned when a referenced module is absent.
type ErrSchemaNotFound struct{ Module, Revision string }

func (e *ErrSchemaNotFound) Error() string {
	if e.Revision != "" {
		return fmt.Sprintf("schema: module %q revision %q not found", e.Module, e.Revision)
	}
	return fmt.Sprintf("schema: module %q not found", e.Module)
}

// ErrSchemaConflict is returned when two loads disagree on a module's
// revision.
type ErrSchemaConflict struct {
	Module, Have, Want string
}

func (e *ErrSchemaConflict) Error() string {
	return fmt.Sprintf("schema: module %q already loaded at revision %q, cannot load %q",
		e.Module, e.Have, e.Want)
}

// Registry is the process-wide schema catalog (C1). It is built once at
// startup and is read-only thereafter: hot-reload is explicitly out of
// scope (spec §3).
type Registry struct {
	mu      sync.RWMutex
	modules map[string]*Module
	roots   map[string]*Node // per-module root container, keyed by module name
	paths   map[string]*Node // flattened "/a/b/c" -> schema node index
	sources map[string]string
}

// NewRegistry returns an empty registry. Load modules with Load before
// serving any session.
func NewRegistry() *Registry {
	return &Registry{
		modules: map[string]*Module{},
		roots:   map[string]*Node{},
		paths:   map[string]*Node{},
		sources: map[string]string{},
	}
}

// SetSource attaches the raw YANG module text for name/revision, served
// back verbatim by the RFC 6022 get-schema operation. Loading a schema
// bundle and supplying its source text are separate steps since the
// registry's own Load only needs the compiled Node tree.
func (r *Registry) SetSource(name, revision, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[sourceKey(name, revision)] = text
}

// Source returns the YANG text registered for name/revision via
// SetSource. revision may be "" to match whatever single source was
// registered for name.
func (r *Registry) Source(name, revision string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if text, ok := r.sources[sourceKey(name, revision)]; ok {
		return text, nil
	}
	if revision == "" {
		for k, text := range r.sources {
			if strings.HasPrefix(k, name+"@") {
				return text, nil
			}
		}
	}
	return "", &ErrSchemaNotFound{Module: name, Revision: revision}
}

func sourceKey(name, revision string) string { return name + "@" + revision }

// Load registers a module and its top-level schema tree. Loading the same
// module name twice with a different revision is a conflict; loading it
// again with the same revision is a no-op.
func (r *Registry) Load(mod Module, root *Node) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.modules[mod.Name]; ok {
		if existing.Revision != mod.Revision {
			return &ErrSchemaConflict{Module: mod.Name, Have: existing.Revision, Want: mod.Revision}
		}
		return nil
	}

	r.modules[mod.Name] = &mod
	r.roots[mod.Name] = root
	r.indexPaths("/"+root.Name, root)
	return nil
}

func (r *Registry) indexPaths(prefix string, n *Node) {
	r.paths[prefix] = n
	for name, child := range n.Children {
		r.indexPaths(prefix+"/"+name, child)
	}
}

// Module returns the module descriptor for name, or ErrSchemaNotFound.
func (r *Registry) Module(name string) (Module, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.modules[name]
	if !ok {
		return Module{}, &ErrSchemaNotFound{Module: name}
	}
	return *m, nil
}

// Capabilities returns the capability URI for every loaded module, sorted
// by module name for deterministic hello framing.
func (r *Registry) Capabilities() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.modules))
	for name := range r.modules {
		names = append(names, name)
	}
	sort.Strings(names)

	caps := make([]string, 0, len(names))
	for _, name := range names {
		caps = append(caps, r.modules[name].CapabilityURI())
	}
	return caps
}

// Resolve looks up the schema node for an absolute, key-stripped path such
// as "/interfaces/interface/name". Returns ErrSchemaNotFound if no module
// defines that path; the node is reported "opaque" by callers when Resolve
// fails and the parent context is a protocol envelope (spec §3).
func (r *Registry) Resolve(path string) (*Node, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.paths[path]
	if !ok {
		return nil, &ErrSchemaNotFound{Module: path}
	}
	return n, nil
}

// NewContainer, NewLeaf, NewLeafList, NewList build schema nodes for use
// with Load. They exist so callers assembling a bundled schema don't poke
// at Node's fields directly.
func NewContainer(name, module string, children ...*Node) *Node {
	n := newNode(name, module, KindContainer)
	for _, c := range children {
		n.Children[c.Name] = c
	}
	return n
}

func NewLeaf(name, module string) *Node { return newNode(name, module, KindLeaf) }

func NewLeafList(name, module string) *Node { return newNode(name, module, KindLeafList) }

func NewList(name, module string, keys []string, children ...*Node) *Node {
	n := newNode(name, module, KindList)
	n.Keys = keys
	for _, c := range children {
		n.Children[c.Name] = c
	}
	return n
}

func NewRPC(name, module string) *Node { return newNode(name, module, KindRPC) }
