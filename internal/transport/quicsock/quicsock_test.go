package quicsock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"editmesh/internal/transport"
)

func newSocketPair(t *testing.T) (server, client *Socket) {
	t.Helper()
	ln, err := Listen("127.0.0.1:0", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	accepted := make(chan *Socket, 1)
	errs := make(chan error, 1)
	go func() {
		s, err := ln.Accept(context.Background())
		if err != nil {
			errs <- err
			return
		}
		accepted <- s
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := Dial(ctx, ln.Addr(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Disconnect() })

	// The stream only materializes on the server once data flows; emit a
	// probe so Accept returns.
	require.NoError(t, c.Emit("probe", nil))

	select {
	case s := <-accepted:
		t.Cleanup(func() { _ = s.Disconnect() })
		return s, c
	case err := <-errs:
		t.Fatalf("accept failed: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for server socket")
	}
	return nil, nil
}

func TestEmitDeliversBothWays(t *testing.T) {
	server, client := newSocketPair(t)

	fromClient := make(chan []byte, 1)
	server.On("edits.doc", func(p []byte) { fromClient <- p })
	fromServer := make(chan []byte, 1)
	client.On("edits.doc", func(p []byte) { fromServer <- p })

	require.NoError(t, client.Emit("edits.doc", []byte(`{"n":1}`)))
	select {
	case p := <-fromClient:
		require.Equal(t, `{"n":1}`, string(p))
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for client emit")
	}

	require.NoError(t, server.Emit("edits.doc", []byte(`{"n":2}`)))
	select {
	case p := <-fromServer:
		require.Equal(t, `{"n":2}`, string(p))
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for server emit")
	}
}

func TestDisconnectStopsEmit(t *testing.T) {
	_, client := newSocketPair(t)
	require.True(t, client.Connected())
	require.NoError(t, client.Disconnect())
	require.True(t, client.Disconnected())
	require.ErrorIs(t, client.Emit("e", []byte(`{}`)), transport.ErrSocketClosed)
}
