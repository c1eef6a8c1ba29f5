// Copyright (c) 2026, Ravenhammer Research.
//
// SPDX-License-Identifier: LGPL-2.1-only

/*
netd is a daemon that serves NETCONF sessions over a local unix-domain
socket (and, when certificate material is supplied, a mutual-TLS stream
binding) backed by a pluggable NativeBackend.

Usage:

	-socketfile=<path>
		Unix-domain socket netd listens on (default: /run/netd/main.sock).
	-configfile=<path>
		INI file overriding the flag defaults below (socketfile,
		yangdir, pidfile, logfile, backend, tls-cert, tls-key, tls-ca,
		tls-address, authorized-keys, monitoring).
	-yangdir=<dir>
		Directory of YANG module text served verbatim for <get-schema>
		(spec §4.7); not compiled, each file indexed by its file name
		without the .yang suffix and no revision.
	-pidfile=<path>
		File netd writes its pid into.
	-logfile=<path>
		Redirect std{out,err} to the given file.
	-backend=memory
		NativeBackend to run against; "memory" is the only backend
		built into this binary (spec §6).
	-monitoring
		Advertise ietf-netconf-monitoring and serve <get-schema>.
	-tls-cert, -tls-key, -tls-ca
		When all three are set, also listen for mutual-TLS stream
		connections on -tls-address.
	-tls-address=<host:port>
		Address for the optional TLS listener.
	-authorized-keys=<path>
		authorized_keys-style file gating which local uids may dial
		the socket; comments are resolved to uids via os/user.Lookup.
		Unset means no restriction.

SIGUSR1 toggles CPU profiling to -cpuprofile, mirroring the original
daemon's profiling knob.
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/syslog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/pprof"
	"strconv"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/activation"
	"github.com/go-ini/ini"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/ravenhammer-research/netd/common"
	"github.com/ravenhammer-research/netd/datastore"
	"github.com/ravenhammer-research/netd/datatree"
	"github.com/ravenhammer-research/netd/dispatcher"
	"github.com/ravenhammer-research/netd/internal/nativebackend"
	"github.com/ravenhammer-research/netd/ncsession"
	"github.com/ravenhammer-research/netd/schema"
	"github.com/ravenhammer-research/netd/transport"
)

var basepath = "/run/netd"

var (
	socketFile  = flag.String("socketfile", basepath+"/main.sock", "Path to unix-domain socket netd listens on.")
	configFile  = flag.String("configfile", "", "INI file overriding the flag defaults.")
	yangDir     = flag.String("yangdir", "/usr/share/netd/yang", "Directory of YANG module text served for get-schema.")
	pidFile     = flag.String("pidfile", basepath+"/netd.pid", "Write pid to the given file.")
	logFile     = flag.String("logfile", "", "Redirect std{out,err} to the given file.")
	backendName = flag.String("backend", "memory", "NativeBackend to run against.")
	monitoring  = flag.Bool("monitoring", true, "Advertise ietf-netconf-monitoring and serve get-schema.")
	tlsCert     = flag.String("tls-cert", "", "TLS certificate file (enables the TLS listener with -tls-key/-tls-ca).")
	tlsKey      = flag.String("tls-key", "", "TLS private key file.")
	tlsCA       = flag.String("tls-ca", "", "TLS CA bundle used to verify peer certificates.")
	tlsAddress  = flag.String("tls-address", ":6513", "Address for the optional TLS listener.")
	authorizedKeys = flag.String("authorized-keys", "", "authorized_keys-style file gating which local uids may dial the socket (default: no restriction).")
	cpuProfile  = flag.String("cpuprofile", basepath+"/netd.pprof", "Write cpu profile to the given file on SIGUSR1.")
)

var elog *log.Logger

// applyConfigFile lets an INI file override flag defaults before flag.Parse
// has a chance to apply -flag overrides on top of it, matching the
// original daemon's "file values, flags override" precedence.
func applyConfigFile(path string) error {
	if path == "" {
		return nil
	}
	f, err := ini.Load(path)
	if err != nil {
		return fmt.Errorf("netd: loading config file %s: %w", path, err)
	}
	sec := f.Section("")
	for name, dst := range map[string]*string{
		"socketfile": socketFile,
		"yangdir":    yangDir,
		"pidfile":    pidFile,
		"logfile":    logFile,
		"backend":    backendName,
		"tls-cert":   tlsCert,
		"tls-key":    tlsKey,
		"tls-ca":          tlsCA,
		"tls-address":     tlsAddress,
		"authorized-keys": authorizedKeys,
	} {
		if key, err := sec.GetKey(name); err == nil {
			*dst = key.String()
		}
	}
	if key, err := sec.GetKey("monitoring"); err == nil {
		if b, err := strconv.ParseBool(key.String()); err == nil {
			*monitoring = b
		}
	}
	return nil
}

func openLogfile() {
	if *logFile == "" {
		return
	}
	f, err := os.OpenFile(*logFile, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0640)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		return
	}
	defer f.Close()
	syscall.Dup2(int(f.Fd()), 1)
	syscall.Dup2(int(f.Fd()), 2)
}

func initLogging() {
	openLogfile()
	if *logFile == "" {
		elog = log.New(os.Stderr, "", 0)
		return
	}
	var err error
	for i := 0; i < 5; i++ {
		elog, err = syslog.NewLogger(syslog.LOG_ERR|syslog.LOG_DAEMON, 0)
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		elog = log.New(os.Stderr, "", 0)
	}
}

func fatal(err error) {
	if err != nil {
		elog.Fatal(err)
	}
}

func writePid() {
	if *pidFile == "" {
		return
	}
	f, err := os.OpenFile(*pidFile, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		return
	}
	defer f.Close()
	fmt.Fprintf(f, "%d\n", os.Getpid())
}

func sigstartprof() {
	sigch := make(chan os.Signal, 1)
	signal.Notify(sigch, syscall.SIGUSR1)
	running := false
	var f *os.File
	for range sigch {
		if !running {
			var err error
			f, err = os.Create(*cpuProfile)
			if err != nil {
				elog.Println(err)
				continue
			}
			pprof.StartCPUProfile(f)
			running = true
		} else {
			pprof.StopCPUProfile()
			f.Close()
			running = false
		}
	}
}

func newBackend(name string) (datastore.NativeBackend, datastore.PersistentStore, error) {
	switch name {
	case "memory", "":
		m := nativebackend.New()
		return m, m, nil
	default:
		return nil, nil, fmt.Errorf("netd: unknown backend %q", name)
	}
}

// loadSchemaDir indexes every *.yang file under dir into reg, keyed by its
// bare filename, for <get-schema> (spec §4.7) — raw text only, no compile
// (a full YANG compiler is out of scope, see DESIGN.md).
func loadSchemaDir(reg *schema.Registry, dir string) error {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("netd: reading yang dir %s: %w", dir, err)
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".yang" {
			continue
		}
		text, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return fmt.Errorf("netd: reading %s: %w", e.Name(), err)
		}
		name := e.Name()[:len(e.Name())-len(".yang")]
		reg.SetSource(name, "", string(text))
	}
	return nil
}

// acceptLoop runs one Listener's accept loop under group, handing each
// accepted connection its own ServeSession goroutine — the per-session
// errgroup fan-out spec §5 describes.
func acceptLoop(ctx context.Context, group *errgroup.Group, ln transport.Listener, reg *schema.Registry, mgr *datastore.Manager, sessions *ncsession.Registry, srv *dispatcher.Server) {
	for {
		handle, err := ln.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			common.LogError(common.NewStructuredLogger(), nil, fmt.Sprintf("accept: %v", err))
			continue
		}
		codec := datatree.NewCodec(reg)
		sess := ncsession.New(0, true, handle, ncsession.DefaultCapabilities(*monitoring))
		id := sessions.Register(sess)
		group.Go(func() error {
			defer sessions.Remove(id)
			defer handle.Close()
			// A session that ends with an error (peer EOF, transport
			// failure) is logged rather than returned: a returned error
			// would cancel the group's shared context and stop every other
			// session and listener.
			if err := srv.ServeSession(ctx, sess, codec); err != nil && ctx.Err() == nil {
				common.LogError(common.NewStructuredLogger(), nil, fmt.Sprintf("session %d: %v", id, err))
			}
			return nil
		})
	}
}

func main() {
	flag.Parse()
	// A config file can be named by -configfile; reparse flags afterward
	// so an explicit flag still wins over the file.
	if *configFile != "" {
		fatal(applyConfigFile(*configFile))
		flag.Parse()
	}

	initLogging()
	fatal(os.MkdirAll(basepath, 0755))
	go sigstartprof()

	backend, persistent, err := newBackend(*backendName)
	fatal(err)

	reg := schema.NewRegistry()
	fatal(loadSchemaDir(reg, *yangDir))

	boot := datatree.NewOpaque("data", "")
	if persistent != nil {
		if startup, err := persistent.LoadStartup(context.Background()); err == nil && startup != nil {
			boot = startup
		}
	}

	mgr := datastore.NewManager(context.Background(), backend, persistent, boot)
	sessions := ncsession.NewRegistry()
	srv := dispatcher.NewServer(reg, mgr, sessions, *monitoring)

	systemdListeners, err := activation.Listeners()
	fatal(err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	group, gctx := errgroup.WithContext(ctx)

	var localListeners []transport.Listener
	for _, l := range systemdListeners {
		unixLn, ok := l.(*net.UnixListener)
		if !ok {
			continue
		}
		localListeners = append(localListeners, transport.NewLocalListener(unixLn))
	}
	if len(localListeners) == 0 {
		ln, err := transport.ListenLocal(*socketFile)
		fatal(err)
		if *authorizedKeys != "" {
			allowed, err := transport.AuthorizedUIDs(*authorizedKeys)
			fatal(err)
			ln.AllowedUIDs = allowed
		}
		localListeners = append(localListeners, ln)
	}
	for _, ln := range localListeners {
		ln := ln
		group.Go(func() error {
			acceptLoop(gctx, group, ln, reg, mgr, sessions, srv)
			return nil
		})
	}

	if *tlsCert != "" && *tlsKey != "" && *tlsCA != "" {
		tlsLn, err := transport.ListenStreamTLS(*tlsAddress, transport.TLSConfig{
			CertFile: *tlsCert, KeyFile: *tlsKey, CAFile: *tlsCA,
		})
		fatal(err)
		group.Go(func() error {
			acceptLoop(gctx, group, tlsLn, reg, mgr, sessions, srv)
			return nil
		})
	}

	writePid()

	sigch := make(chan os.Signal, 1)
	signal.Notify(sigch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigch
		cancel()
	}()

	// The accept-loop group and the commit-timer/actor goroutines the
	// datastore manager owns are independent subsystems; combine their
	// shutdown errors rather than letting one mask the other.
	serveErr := group.Wait()
	mgrErr := mgr.Close()
	fatal(multierr.Combine(serveErr, mgrErr))
}
