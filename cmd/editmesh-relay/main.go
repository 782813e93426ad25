package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"editmesh/internal/daemon"
	"editmesh/internal/logging"
	"editmesh/internal/metrics"
	"editmesh/internal/pprofutil"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "--help" || args[0] == "-h" {
		printUsage(stdout)
		return 0
	}
	switch args[0] {
	case "run":
		return runRelay(args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "unknown command: %s\n", args[0])
		printUsage(stderr)
		return 1
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "usage: editmesh-relay run [flags]")
	fmt.Fprintln(w, "  --addr <ip:port>        websocket and metrics listen address (default 127.0.0.1:7340)")
	fmt.Fprintln(w, "  --quic-addr <ip:port>   also accept QUIC sockets on this address")
	fmt.Fprintln(w, "  --data-dir <path>       edit log directory (default ~/.editmesh)")
	fmt.Fprintln(w, "  --route <key>           broadcast route (default edits.main, or EDITMESH_ROUTE)")
	fmt.Fprintln(w, "  --remove-on-disconnect  unregister endpoints when their socket drops")
	fmt.Fprintln(w, "  --debug                 enable debug logging")
}

func homeDir() string {
	h, _ := os.UserHomeDir()
	return filepath.Join(h, ".editmesh")
}

func runRelay(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", "127.0.0.1:7340", "listen addr (host:port)")
	quicAddr := fs.String("quic-addr", "", "QUIC listen addr (host:port)")
	dataDir := fs.String("data-dir", "", "edit log directory")
	routeKey := fs.String("route", "", "broadcast route key")
	removeOnDisconnect := fs.Bool("remove-on-disconnect", false, "unregister endpoints on socket drop")
	debug := fs.Bool("debug", false, "enable debug logging")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *debug {
		_ = os.Setenv("EDITMESH_DEBUG", "1")
	}
	dir := *dataDir
	if dir == "" {
		dir = homeDir()
	}

	logger := logging.FromEnv()
	defer logger.Sync()

	if err := pprofutil.StartFromEnv(stderr); err != nil {
		fmt.Fprintf(stderr, "pprof failed: %v\n", err)
		return 1
	}

	runner, err := daemon.NewRunner(daemon.Options{
		Addr:               *addr,
		QUICAddr:           *quicAddr,
		DataDir:            dir,
		Route:              *routeKey,
		RemoveOnDisconnect: *removeOnDisconnect,
		Logger:             logger,
		Metrics:            metrics.New(),
	})
	if err != nil {
		fmt.Fprintf(stderr, "load relay failed: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := runner.Start(ctx); err != nil {
		fmt.Fprintf(stderr, "start failed: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "READY addr=%s data=%s\n", runner.ListenAddr(), dir)

	<-ctx.Done()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := runner.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(stderr, "shutdown failed: %v\n", err)
		return 1
	}
	return 0
}
