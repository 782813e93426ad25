// Package daemon wires the relay engine, store node, and transports
// into the editmesh-relay process.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"editmesh/internal/metrics"
	"editmesh/internal/node"
	"editmesh/internal/relay"
	"editmesh/internal/route"
	"editmesh/internal/store"
	"editmesh/internal/transport"
	"editmesh/internal/transport/quicsock"
	"editmesh/internal/transport/wsock"
)

type Options struct {
	Addr     string // websocket/metrics listen address, host:port
	QUICAddr string // optional QUIC listen address
	DataDir  string
	Route    string // overrides EDITMESH_ROUTE when set

	// RemoveOnDisconnect unregisters an endpoint when its socket drops.
	// Off by default: a kept registration only costs a failed emit per
	// broadcast and lets a peer resume after transient drops.
	RemoveOnDisconnect bool

	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

type Runner struct {
	log     *zap.Logger
	metrics *metrics.Metrics
	node    *node.StoreNode
	engine  *relay.Engine

	removeOnDisconnect bool
	quicAddr           string
	addr               string

	mu         sync.Mutex
	listenAddr string
	httpSrv    *http.Server
	quicLn     *quicsock.Listener
}

func NewRunner(opts Options) (*Runner, error) {
	if opts.Addr == "" {
		return nil, fmt.Errorf("daemon: missing listen addr")
	}
	if opts.DataDir == "" {
		return nil, fmt.Errorf("daemon: missing data dir")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.New()
	}
	key := opts.Route
	if key == "" {
		key = routeKey()
	}
	r, err := route.FromKey(key)
	if err != nil {
		return nil, err
	}
	engine, err := relay.NewEngine(relay.Config{
		Route:   r,
		SeenCap: seenCap(),
		SeenTTL: seenTTL(),
	}, logger, m)
	if err != nil {
		return nil, err
	}
	n, err := node.New(node.Options{
		Engine:  engine,
		Log:     store.New(filepath.Join(opts.DataDir, "edits.jsonl")),
		Logger:  logger,
		Metrics: m,
	})
	if err != nil {
		return nil, err
	}
	return &Runner{
		log:                logger,
		metrics:            m,
		node:               n,
		engine:             engine,
		removeOnDisconnect: opts.RemoveOnDisconnect,
		quicAddr:           opts.QUICAddr,
		addr:               opts.Addr,
	}, nil
}

// Start initializes the node and brings up the listeners. It returns
// once the relay is accepting connections.
func (r *Runner) Start(ctx context.Context) error {
	if err := r.node.Init(ctx); err != nil {
		return err
	}

	router := mux.NewRouter()
	router.HandleFunc("/ws", r.handleWS)
	router.Handle("/metrics", r.metrics.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)

	ln, err := net.Listen("tcp", r.addr)
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: router, ReadHeaderTimeout: 10 * time.Second}

	r.mu.Lock()
	r.httpSrv = srv
	r.listenAddr = ln.Addr().String()
	r.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.log.Warn("http server stopped", zap.Error(err))
		}
	}()
	r.log.Info("relay listening",
		zap.String("addr", ln.Addr().String()),
		zap.String("route", r.engine.Route().Key()))

	if r.quicAddr != "" {
		quicLn, err := quicsock.Listen(r.quicAddr, r.log)
		if err != nil {
			return err
		}
		r.mu.Lock()
		r.quicLn = quicLn
		r.mu.Unlock()
		go r.acceptQUIC(ctx, quicLn)
		r.log.Info("quic listening", zap.String("addr", quicLn.Addr()))
	}
	return nil
}

// ListenAddr reports the bound websocket address, useful with :0.
func (r *Runner) ListenAddr() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listenAddr
}

func (r *Runner) Node() *node.StoreNode {
	return r.node
}

func (r *Runner) handleWS(w http.ResponseWriter, req *http.Request) {
	sock, err := wsock.Upgrade(w, req, r.log)
	if err != nil {
		r.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	r.join(req.Context(), sock, sock.Done())
}

func (r *Runner) acceptQUIC(ctx context.Context, ln *quicsock.Listener) {
	for {
		sock, err := ln.Accept(ctx)
		if err != nil {
			if ctx.Err() == nil {
				r.log.Debug("quic accept ended", zap.Error(err))
			}
			return
		}
		r.join(ctx, sock, sock.Done())
	}
}

func (r *Runner) join(ctx context.Context, sock transport.Socket, done <-chan struct{}) {
	identity, err := r.node.AddSocket(ctx, sock)
	if err != nil {
		r.log.Warn("add socket failed", zap.Error(err))
		_ = sock.Disconnect()
		return
	}
	r.log.Info("endpoint joined", zap.String("identity", identity))
	if !r.removeOnDisconnect {
		return
	}
	go func() {
		<-done
		if r.node.Remove(identity) {
			r.log.Info("endpoint left", zap.String("identity", identity))
		}
	}()
}

// Shutdown stops the listeners and closes the node.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	srv := r.httpSrv
	quicLn := r.quicLn
	r.httpSrv = nil
	r.quicLn = nil
	r.mu.Unlock()

	var err error
	if srv != nil {
		err = srv.Shutdown(ctx)
	}
	if quicLn != nil {
		if cerr := quicLn.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	if cerr := r.node.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
