package daemon

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"editmesh/internal/proto"
	"editmesh/internal/transport/wsock"
)

func startRunner(t *testing.T, opts Options) *Runner {
	t.Helper()
	if opts.Addr == "" {
		opts.Addr = "127.0.0.1:0"
	}
	if opts.DataDir == "" {
		opts.DataDir = t.TempDir()
	}
	if opts.Route == "" {
		opts.Route = "test.route"
	}
	r, err := NewRunner(opts)
	require.NoError(t, err)
	require.NoError(t, r.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = r.Shutdown(ctx)
	})
	return r
}

func dialClient(t *testing.T, r *Runner) *wsock.Socket {
	t.Helper()
	url := fmt.Sprintf("ws://%s/ws", r.ListenAddr())
	c, err := wsock.Dial(context.Background(), url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Disconnect() })
	return c
}

func TestNewRunnerValidation(t *testing.T) {
	_, err := NewRunner(Options{DataDir: t.TempDir()})
	require.Error(t, err)
	_, err = NewRunner(Options{Addr: "127.0.0.1:0"})
	require.Error(t, err)
	_, err = NewRunner(Options{Addr: "127.0.0.1:0", DataDir: t.TempDir(), Route: "  "})
	require.Error(t, err)
}

func TestRelayEndToEnd(t *testing.T) {
	r := startRunner(t, Options{})
	a := dialClient(t, r)
	b := dialClient(t, r)
	c := dialClient(t, r)

	require.Eventually(t, func() bool {
		return r.engine.Len() == 3
	}, 2*time.Second, 10*time.Millisecond)

	gotB := make(chan proto.Envelope, 4)
	b.On("test.route", func(p []byte) {
		if env, err := proto.DecodeEnvelope(p); err == nil {
			gotB <- env
		}
	})
	gotC := make(chan proto.Envelope, 4)
	c.On("test.route", func(p []byte) {
		if env, err := proto.DecodeEnvelope(p); err == nil {
			gotC <- env
		}
	})
	gotA := make(chan proto.Envelope, 4)
	a.On("test.route", func(p []byte) {
		if env, err := proto.DecodeEnvelope(p); err == nil {
			gotA <- env
		}
	})

	payload, err := proto.EncodeEnvelope(proto.NewEnvelope([]byte(`{"data":123}`), "ref-e2e"))
	require.NoError(t, err)
	require.NoError(t, a.Emit("test.route", payload))

	for name, ch := range map[string]chan proto.Envelope{"b": gotB, "c": gotC} {
		select {
		case env := <-ch:
			require.NotEmpty(t, env.Origin, "relayed copy is stamped")
			require.JSONEq(t, `{"data":123}`, string(env.Body), name)
		case <-time.After(2 * time.Second):
			t.Fatalf("%s never received the relayed edit", name)
		}
	}
	select {
	case <-gotA:
		t.Fatal("publisher received its own message")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestMetricsEndpoint(t *testing.T) {
	r := startRunner(t, Options{})
	_ = dialClient(t, r)

	resp, err := http.Get(fmt.Sprintf("http://%s/metrics", r.ListenAddr()))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.True(t, strings.Contains(string(body), "editmesh_endpoints"))
}

func TestHealthz(t *testing.T) {
	r := startRunner(t, Options{})
	resp, err := http.Get(fmt.Sprintf("http://%s/healthz", r.ListenAddr()))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRemoveOnDisconnectPolicy(t *testing.T) {
	r := startRunner(t, Options{RemoveOnDisconnect: true})
	a := dialClient(t, r)
	_ = dialClient(t, r)

	require.Eventually(t, func() bool {
		return r.engine.Len() == 2
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, a.Disconnect())
	require.Eventually(t, func() bool {
		return r.engine.Len() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestKeepRegisteredByDefault(t *testing.T) {
	r := startRunner(t, Options{})
	a := dialClient(t, r)
	_ = dialClient(t, r)

	require.Eventually(t, func() bool {
		return r.engine.Len() == 2
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, a.Disconnect())
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, 2, r.engine.Len(), "reference behavior keeps dead endpoints registered")
}

func TestQUICListener(t *testing.T) {
	r := startRunner(t, Options{QUICAddr: "127.0.0.1:0"})
	require.NotNil(t, r.quicLn)
}
