// Program statsd runs a reducer as a JSON-RPC service.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/creachadair/ctrl"
	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/channel"
	"github.com/creachadair/jrpc2/server"
	"github.com/creachadair/mrstats/internal/service"
	"github.com/creachadair/mrstats/moments"
	"github.com/kr/pretty"
)

var (
	listenAddr = flag.String("listen", "", "Service address (required)")
	stateFile  = flag.String("state", "", "Resume from and checkpoint state to this file")
	doDebug    = flag.Bool("debug", false, "Enable server debug logging")
)

func init() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: %[1]s [options] -listen <addr>

Start a JSON-RPC server that folds intermediate records into a running mean
and variance. The server listens at the specified address, which may be a
host:port or the path of a Unix-domain socket.

JSON-RPC requests are delimited by newlines. The methods are:

  Fold   {"lines": [...]}                 fold intermediate record lines
  Merge  {"sum": s, "sumsq": q, "count": n}  merge a partial state
  Result                                  report count, mean, and variance
  State                                   report the raw state
  Reset                                   clear the state

With -state, the server starts from the state saved in the named file (if it
exists), and saves its state there after every change.

Options:
`, filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
}

func main() {
	flag.Parse()
	ctrl.Run(func() error {
		if *listenAddr == "" {
			ctrl.Exitf(1, "You must provide a non-empty -listen address")
		}

		var init moments.State
		if *stateFile != "" {
			var err error
			init, err = moments.Load(*stateFile)
			if err != nil {
				ctrl.Fatalf("Loading state: %v", err)
			}
			log.Printf("State file: %q (%v)", *stateFile, init)
		}
		rs := service.New(init, *stateFile)

		lst, err := net.Listen(service.Network(*listenAddr))
		if err != nil {
			ctrl.Fatalf("Listen: %v", err)
		}
		if lst.Addr().Network() == "unix" {
			os.Chmod(*listenAddr, 0600) // best-effort
			defer os.Remove(*listenAddr)
		}
		log.Printf("Service: %q", *listenAddr)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		sig := make(chan os.Signal, 2)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			s, ok := <-sig
			if ok {
				log.Printf("Received signal: %v, closing listener", s)
				cancel()
				signal.Reset(syscall.SIGINT, syscall.SIGTERM)
			}
		}()

		var opts *jrpc2.ServerOptions
		if *doDebug {
			opts = &jrpc2.ServerOptions{
				Logger: jrpc2.StdLogger(log.New(os.Stderr, "[statsd] ", log.LstdFlags)),
			}
		}
		if err := server.Loop(ctx, server.NetAccepter(lst, channel.Line), server.Static(rs.Methods()), &server.LoopOptions{
			ServerOptions: opts,
		}); err != nil {
			ctrl.Fatalf("Loop: %v", err)
		}

		final, _ := rs.State(context.Background())
		if *doDebug {
			log.Printf("Final state: %# v", pretty.Formatter(final))
		}
		if !final.IsEmpty() {
			log.Printf("Final: n=%d mean=%.6f variance=%.6f", final.Count, final.Mean(), final.Variance())
		}
		return nil
	})
}
