// Package relay implements the multicast relay core: a membership
// registry of transport endpoints, a loop-prevention filter, and the
// engine that rebuilds per-endpoint route subscriptions on every
// membership change so each published message reaches every other
// endpoint exactly once.
package relay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"editmesh/internal/metrics"
	"editmesh/internal/proto"
	"editmesh/internal/route"
	"editmesh/internal/transport"
)

type Config struct {
	Route   route.Route
	SeenCap int
	SeenTTL time.Duration
}

// Observer is invoked for every message the engine accepts as fresh,
// after fan-out. The store node uses it to persist edits; it must not
// block.
type Observer func(from string, env proto.Envelope)

type Engine struct {
	route    route.Route
	registry *Registry
	seen     *SeenSet
	log      *zap.Logger
	metrics  *metrics.Metrics

	mu       sync.Mutex
	subs     map[string]transport.Subscription
	observer Observer
}

func NewEngine(cfg Config, log *zap.Logger, m *metrics.Metrics) (*Engine, error) {
	if cfg.Route.IsZero() {
		return nil, fmt.Errorf("relay: missing route")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		route:    cfg.Route,
		registry: NewRegistry(),
		seen:     NewSeenSet(cfg.SeenCap, cfg.SeenTTL),
		log:      log,
		metrics:  m,
		subs:     make(map[string]transport.Subscription),
	}, nil
}

func (e *Engine) Route() route.Route {
	return e.route
}

func (e *Engine) Len() int {
	return e.registry.Len()
}

// Observe installs the fresh-message observer. Pass nil to clear.
func (e *Engine) Observe(fn Observer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observer = fn
}

// AddSocket registers the socket as a new endpoint and rebuilds all
// forwarding subscriptions. The returned identity is stable for the
// lifetime of the registry and can be handed to Remove.
func (e *Engine) AddSocket(ctx context.Context, s transport.Socket) (string, error) {
	if s == nil {
		return "", fmt.Errorf("relay: nil socket")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	ep := e.registry.Register(s)
	e.rewire()
	if e.metrics != nil {
		e.metrics.IncSocketsJoined()
	}
	e.log.Debug("endpoint registered",
		zap.String("identity", ep.Identity),
		zap.Int("endpoints", e.registry.Len()))
	return ep.Identity, nil
}

// Remove unregisters the endpoint and rebuilds the remaining
// subscriptions. Removal on disconnect is a caller policy, not something
// the engine decides.
func (e *Engine) Remove(identity string) bool {
	ep, ok := e.registry.Get(identity)
	if !ok {
		return false
	}
	e.mu.Lock()
	if sub, held := e.subs[identity]; held {
		ep.Socket.Off(sub)
		delete(e.subs, identity)
	}
	e.mu.Unlock()
	ep.Socket.RemoveAllListeners(e.route.Key())
	e.registry.Remove(identity)
	e.rewire()
	if e.metrics != nil {
		e.metrics.IncSocketsLeft()
	}
	e.log.Debug("endpoint removed", zap.String("identity", identity))
	return true
}

// rewire tears down every held subscription and re-subscribes each
// registered endpoint once. Full teardown plus rebuild is O(N) on every
// membership change; meshes here are small and mostly static, and the
// discipline guarantees duplicate subscriptions never accumulate.
func (e *Engine) rewire() {
	e.mu.Lock()
	defer e.mu.Unlock()
	endpoints := e.registry.List()
	for id, sub := range e.subs {
		if ep, ok := e.registry.Get(id); ok {
			ep.Socket.Off(sub)
		}
		delete(e.subs, id)
	}
	for _, ep := range endpoints {
		// Safe even when nothing was subscribed.
		ep.Socket.RemoveAllListeners(e.route.Key())
	}
	for _, ep := range endpoints {
		self := ep
		e.subs[self.Identity] = self.Socket.On(e.route.Key(), func(payload []byte) {
			e.forward(self, payload)
		})
	}
	if e.metrics != nil {
		e.metrics.IncRewires()
		e.metrics.SetEndpoints(len(endpoints))
	}
}

// forward runs inside the subscription callback of self. Dedup first,
// then the origin check, then clone-stamp-emit to every other endpoint.
// A stamped copy is terminal: recipients deliver it locally and their own
// callbacks refuse to relay it again, so forwarding depth is exactly one
// hop regardless of mesh topology.
func (e *Engine) forward(self *Endpoint, payload []byte) {
	env, err := proto.DecodeEnvelope(payload)
	if err != nil {
		e.log.Debug("drop undecodable payload",
			zap.String("from", self.Identity), zap.Error(err))
		return
	}
	if env.RefID != "" {
		if !e.seen.Mark(env.RefID) {
			if e.metrics != nil {
				e.metrics.IncDropDuplicate()
			}
			e.log.Debug("drop duplicate",
				zap.String("from", self.Identity), zap.String("ref_id", env.RefID))
			return
		}
	}
	if env.Stamped() {
		if e.metrics != nil {
			e.metrics.IncDropStamped()
		}
		return
	}
	stamped := env.WithOrigin(self.Identity)
	data, err := proto.EncodeEnvelope(stamped)
	if err != nil {
		e.log.Warn("encode stamped envelope failed", zap.Error(err))
		return
	}
	for _, other := range e.registry.List() {
		if other.Identity == self.Identity {
			continue
		}
		// Best effort: a dead peer's emit failure is swallowed, upstream
		// store sync re-converges state independently of any one relay.
		if err := other.Socket.Emit(e.route.Key(), data); err != nil {
			if e.metrics != nil {
				e.metrics.IncEmitFail()
			}
			e.log.Debug("emit failed",
				zap.String("to", other.Identity), zap.Error(err))
		}
	}
	if e.metrics != nil {
		e.metrics.IncRelayed()
	}
	e.mu.Lock()
	observer := e.observer
	e.mu.Unlock()
	if observer != nil {
		observer(self.Identity, env)
	}
}

// SubscriptionCount reports the number of active route subscriptions the
// engine holds; after every membership change it equals Len().
func (e *Engine) SubscriptionCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.subs)
}
