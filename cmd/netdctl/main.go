// Copyright (c) 2026, Ravenhammer Research.
//
// SPDX-License-Identifier: LGPL-2.1-only

/*
netdctl is a minimal NETCONF client for netd, dialing the daemon's
unix-domain socket and issuing a single operation named on the command
line. It has no CLI grammar or completion (an explicit non-goal); each
subcommand is a fixed positional-argument form, the same shape as the
original project's single-purpose `callrpc` tool.

Usage:

	netdctl [-socketfile=<path>] get-config <candidate|running|startup>
	netdctl [-socketfile=<path>] lock <candidate|running|startup>
	netdctl [-socketfile=<path>] unlock <candidate|running|startup>
	netdctl [-socketfile=<path>] commit
	netdctl [-socketfile=<path>] discard
	netdctl [-socketfile=<path>] validate <candidate|running|startup>
	netdctl [-socketfile=<path>] delete-config <candidate|running|startup>
	netdctl [-socketfile=<path>] get-schema <identifier> [version]
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/ravenhammer-research/netd/datatree"
	"github.com/ravenhammer-research/netd/dispatcher"
	"github.com/ravenhammer-research/netd/ncsession"
	"github.com/ravenhammer-research/netd/schema"
	"github.com/ravenhammer-research/netd/transport"
)

var socketFile = flag.String("socketfile", "/run/netd/main.sock", "Path to netd's unix-domain socket.")

func fail(err error) {
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(2)
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])
	flag.PrintDefaults()
	fmt.Fprintln(os.Stderr, "  get-config <candidate|running|startup>")
	fmt.Fprintln(os.Stderr, "  lock|unlock|validate|delete-config <candidate|running|startup>")
	fmt.Fprintln(os.Stderr, "  commit | discard")
	fmt.Fprintln(os.Stderr, "  get-schema <identifier> [version]")
	os.Exit(1)
}

func datastoreArg(args []string, i int) datatree.Datastore {
	if i >= len(args) {
		usage()
	}
	switch datatree.Datastore(args[i]) {
	case datatree.Candidate, datatree.Running, datatree.Startup:
		return datatree.Datastore(args[i])
	default:
		usage()
		return ""
	}
}

func dial(ctx context.Context) (*dispatcher.Client, func()) {
	handle, err := transport.DialLocal(ctx, *socketFile)
	fail(err)
	reg := schema.NewRegistry()
	sess := ncsession.New(0, false, handle, ncsession.DefaultCapabilities(true))
	codec := datatree.NewCodec(reg)
	client := dispatcher.NewClient(sess, codec)
	fail(client.Dial(ctx, ncsession.DefaultCapabilities(true)))
	go client.Run(ctx)
	return client, func() { handle.Close() }
}

func printTree(reg *schema.Registry, tree *datatree.Node) {
	codec := datatree.NewCodec(reg)
	out, err := codec.Serialize(tree)
	fail(err)
	os.Stdout.Write(out)
	fmt.Println()
}

func main() {
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		usage()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, closeFn := dial(ctx)
	defer closeFn()

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "get-config":
		ds := datastoreArg(rest, 0)
		tree, err := client.GetConfig(ctx, ds, nil)
		fail(err)
		printTree(schema.NewRegistry(), tree)

	case "get":
		tree, err := client.Get(ctx, nil)
		fail(err)
		printTree(schema.NewRegistry(), tree)

	case "lock":
		fail(client.Lock(ctx, datastoreArg(rest, 0)))

	case "unlock":
		fail(client.Unlock(ctx, datastoreArg(rest, 0)))

	case "validate":
		fail(client.Validate(ctx, datastoreArg(rest, 0)))

	case "delete-config":
		fail(client.DeleteConfig(ctx, datastoreArg(rest, 0)))

	case "commit":
		fail(client.Commit(ctx, datatree.Commit{}))

	case "discard":
		fail(client.DiscardChanges(ctx))

	case "get-schema":
		if len(rest) == 0 {
			usage()
		}
		req := datatree.GetSchema{Identifier: rest[0]}
		if len(rest) > 1 {
			req.Version = rest[1]
		}
		text, err := client.GetSchema(ctx, req)
		fail(err)
		fmt.Println(text)

	default:
		usage()
	}

	fail(client.CloseSession(ctx))
}
