package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"editmesh/internal/proto"
	"editmesh/internal/transport/wsock"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "--help" || args[0] == "-h" {
		printUsage(stdout)
		return 0
	}
	switch args[0] {
	case "publish":
		return runPublish(args[1:], stdin, stdout, stderr)
	case "tail":
		return runTail(args[1:], stdout, stderr)
	case "status":
		return runStatus(args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "unknown command: %s\n", args[0])
		printUsage(stderr)
		return 1
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "usage: editmesh <publish|tail|status> [args]")
	fmt.Fprintln(w, "  publish --addr <host:port> [--route edits.main] [--ref <id>] [body]")
	fmt.Fprintln(w, "          body read from stdin when omitted")
	fmt.Fprintln(w, "  tail    --addr <host:port> [--route edits.main]")
	fmt.Fprintln(w, "  status  --addr <host:port>")
}

const defaultRoute = "edits.main"

func runPublish(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("publish", flag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", "", "relay address (host:port)")
	routeKey := fs.String("route", defaultRoute, "broadcast route key")
	ref := fs.String("ref", "", "reference id (random when empty)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *addr == "" {
		fmt.Fprintln(stderr, "missing --addr")
		return 1
	}

	var body []byte
	if rest := fs.Args(); len(rest) > 0 {
		body = []byte(strings.Join(rest, " "))
	} else {
		data, err := io.ReadAll(stdin)
		if err != nil {
			fmt.Fprintf(stderr, "read body failed: %v\n", err)
			return 1
		}
		body = data
	}
	if len(body) == 0 {
		fmt.Fprintln(stderr, "empty body")
		return 1
	}

	refID := *ref
	if refID == "" {
		refID = uuid.NewString()
	}
	payload, err := proto.EncodeEnvelope(proto.NewEnvelope(body, refID))
	if err != nil {
		fmt.Fprintf(stderr, "encode failed: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	sock, err := wsock.Dial(ctx, wsURL(*addr), nil)
	if err != nil {
		fmt.Fprintf(stderr, "dial failed: %v\n", err)
		return 1
	}
	defer sock.Disconnect()

	if err := sock.Emit(*routeKey, payload); err != nil {
		fmt.Fprintf(stderr, "publish failed: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "published ref=%s route=%s bytes=%d\n", refID, *routeKey, len(body))
	return 0
}

func runTail(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("tail", flag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", "", "relay address (host:port)")
	routeKey := fs.String("route", defaultRoute, "broadcast route key")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *addr == "" {
		fmt.Fprintln(stderr, "missing --addr")
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	sock, err := wsock.Dial(dialCtx, wsURL(*addr), nil)
	cancel()
	if err != nil {
		fmt.Fprintf(stderr, "dial failed: %v\n", err)
		return 1
	}
	defer sock.Disconnect()

	sock.On(*routeKey, func(payload []byte) {
		env, err := proto.DecodeEnvelope(payload)
		if err != nil {
			fmt.Fprintf(stderr, "drop bad envelope: %v\n", err)
			return
		}
		fmt.Fprintf(stdout, "origin=%s ref=%s body=%s\n", env.Origin, env.RefID, env.Body)
	})
	fmt.Fprintf(stderr, "tailing %s on %s\n", *routeKey, *addr)

	select {
	case <-ctx.Done():
	case <-sock.Done():
		fmt.Fprintln(stderr, "relay closed the connection")
	}
	return 0
}

func runStatus(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", "", "relay address (host:port)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *addr == "" {
		fmt.Fprintln(stderr, "missing --addr")
		return 1
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://%s/healthz", *addr))
	if err != nil {
		fmt.Fprintf(stdout, "status: relay unavailable: %v\n", err)
		return 1
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(stdout, "status: relay unhealthy: %s\n", resp.Status)
		return 1
	}

	fmt.Fprintf(stdout, "relay at %s is healthy\n", *addr)
	mresp, err := client.Get(fmt.Sprintf("http://%s/metrics", *addr))
	if err != nil {
		return 0
	}
	defer mresp.Body.Close()
	data, err := io.ReadAll(mresp.Body)
	if err != nil {
		return 0
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, "editmesh_") {
			fmt.Fprintf(stdout, "  %s\n", line)
		}
	}
	return 0
}

func wsURL(addr string) string {
	if strings.HasPrefix(addr, "ws://") || strings.HasPrefix(addr, "wss://") {
		return strings.TrimRight(addr, "/") + "/ws"
	}
	return fmt.Sprintf("ws://%s/ws", addr)
}
