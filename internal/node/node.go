// Package node wraps the relay engine with a local edit log behind the
// fan-in surface: the composed handle serves dumps from the log, accepts
// live updates from every connected peer, and lets the storage layer
// treat the whole mesh as one virtual source.
package node

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"editmesh/internal/fanin"
	"editmesh/internal/metrics"
	"editmesh/internal/proto"
	"editmesh/internal/relay"
	"editmesh/internal/store"
	"editmesh/internal/transport"
)

var ErrNotInitialized = errors.New("node: not initialized, call Init first")

const localPriority = 10

type Options struct {
	Engine  *relay.Engine
	Log     *store.Log
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

type StoreNode struct {
	engine  *relay.Engine
	local   *store.Log
	fan     *fanin.Fanin
	log     *zap.Logger
	metrics *metrics.Metrics

	mu          sync.Mutex
	initialized bool
	feeds       map[string]*fanin.Feed
}

func New(opts Options) (*StoreNode, error) {
	if opts.Engine == nil {
		return nil, fmt.Errorf("node: missing relay engine")
	}
	if opts.Log == nil {
		return nil, fmt.Errorf("node: missing edit log")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreNode{
		engine:  opts.Engine,
		local:   opts.Log,
		fan:     fanin.New(logger, opts.Metrics),
		log:     logger,
		metrics: opts.Metrics,
		feeds:   make(map[string]*fanin.Feed),
	}, nil
}

// Init opens the local log, installs the relay observer, and brings up
// the fan-in surface. The node must not be used if Init fails.
func (n *StoreNode) Init(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.initialized {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := n.local.EnsureLog(); err != nil {
		return fmt.Errorf("node: open edit log: %w", err)
	}
	n.engine.Observe(n.observe)
	if err := n.rebuildLocked(); err != nil {
		return err
	}
	n.initialized = true
	go n.consume()
	return nil
}

// AddSocket joins the socket to the relay mesh and attaches a read
// source for its live updates, rebuilding the fan-in surface.
func (n *StoreNode) AddSocket(ctx context.Context, s transport.Socket) (string, error) {
	if err := n.requireInit(); err != nil {
		return "", err
	}
	identity, err := n.engine.AddSocket(ctx, s)
	if err != nil {
		return "", err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.feeds[identity] = fanin.NewFeed(0)
	if err := n.rebuildLocked(); err != nil {
		return "", err
	}
	return identity, nil
}

// Remove drops the endpoint from the mesh and tears its feed out of the
// fan-in surface.
func (n *StoreNode) Remove(identity string) bool {
	if !n.engine.Remove(identity) {
		return false
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if feed, ok := n.feeds[identity]; ok {
		_ = feed.Close()
		delete(n.feeds, identity)
	}
	_ = n.rebuildLocked()
	return true
}

// EnsureLog is a passthrough to the local store, guarded by the Init
// precondition.
func (n *StoreNode) EnsureLog() error {
	if err := n.requireInit(); err != nil {
		return err
	}
	return n.local.EnsureLog()
}

// Import is a passthrough to the local store, guarded by the Init
// precondition.
func (n *StoreNode) Import(edits []proto.Edit) error {
	if err := n.requireInit(); err != nil {
		return err
	}
	return n.local.Import(edits)
}

// Dump serves the initial bulk pull through the fan-in surface.
func (n *StoreNode) Dump(ctx context.Context) ([]proto.Edit, error) {
	if err := n.requireInit(); err != nil {
		return nil, err
	}
	return n.fan.Dump(ctx)
}

// Write stores a local edit through the fan-in surface.
func (n *StoreNode) Write(ctx context.Context, edit proto.Edit) error {
	if err := n.requireInit(); err != nil {
		return err
	}
	return n.fan.Write(ctx, edit)
}

func (n *StoreNode) Engine() *relay.Engine {
	return n.engine
}

func (n *StoreNode) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.engine.Observe(nil)
	n.initialized = false
	return n.fan.Close()
}

func (n *StoreNode) requireInit() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.initialized {
		return ErrNotInitialized
	}
	return nil
}

// rebuildLocked recomputes the fan-in sources: the local log serves
// dumps and takes writes, each peer feed contributes live updates.
func (n *StoreNode) rebuildLocked() error {
	sources := make([]fanin.Source, 0, len(n.feeds)+1)
	sources = append(sources, fanin.Source{
		Name:     "local",
		Handle:   logHandle{log: n.local},
		Priority: localPriority,
		Dump:     true,
		Write:    true,
	})
	for identity, feed := range n.feeds {
		sources = append(sources, fanin.Source{
			Name:   identity,
			Handle: feed,
			Read:   true,
		})
	}
	return n.fan.Rebuild(sources)
}

// observe runs inside the engine's forwarding path for every fresh
// message; it must not block.
func (n *StoreNode) observe(from string, env proto.Envelope) {
	edit := proto.Edit{
		RefID:      env.RefID,
		Route:      n.engine.Route().Key(),
		Origin:     from,
		Body:       env.Body,
		ReceivedAt: time.Now().UTC(),
	}
	n.mu.Lock()
	feed := n.feeds[from]
	n.mu.Unlock()
	if feed == nil {
		return
	}
	if err := feed.Push(edit); err != nil {
		n.log.Debug("push to peer feed failed",
			zap.String("from", from), zap.Error(err))
	}
}

// consume drains the merged live feed into the local log. It exits when
// the fan-in surface closes.
func (n *StoreNode) consume() {
	for edit := range n.fan.Updates() {
		if err := n.local.Append(edit); err != nil {
			n.log.Warn("append relayed edit failed", zap.Error(err))
			continue
		}
		if n.metrics != nil {
			n.metrics.IncEditsAppended()
		}
	}
}

// logHandle adapts the JSONL edit log to the fan-in handle contract.
type logHandle struct {
	log *store.Log
}

func (h logHandle) Dump(ctx context.Context) ([]proto.Edit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return h.log.List()
}

func (h logHandle) Write(ctx context.Context, edit proto.Edit) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return h.log.Append(edit)
}

func (h logHandle) Updates() <-chan proto.Edit { return nil }

func (h logHandle) Close() error { return nil }
