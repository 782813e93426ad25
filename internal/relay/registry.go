package relay

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"editmesh/internal/transport"
)

// Endpoint is one registered transport party. The registry holds a
// non-owning reference to the socket; its connection lifecycle belongs to
// the transport layer.
type Endpoint struct {
	Identity string
	Socket   transport.Socket
}

// Registry is the relay's membership table. Identities combine a
// monotonic counter with a short random suffix and are never reused
// within the registry's lifetime.
type Registry struct {
	mu      sync.Mutex
	next    uint64
	order   []string
	entries map[string]*Endpoint
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*Endpoint)}
}

func (r *Registry) Register(s transport.Socket) *Endpoint {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	ep := &Endpoint{
		Identity: fmt.Sprintf("endpoint-%d-%s", r.next, suffix),
		Socket:   s,
	}
	r.entries[ep.Identity] = ep
	r.order = append(r.order, ep.Identity)
	return ep
}

// Remove drops the endpoint from the table. Whether to remove on
// disconnect is the caller's policy; the registry never watches sockets.
func (r *Registry) Remove(identity string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[identity]; !ok {
		return false
	}
	delete(r.entries, identity)
	for i, id := range r.order {
		if id == identity {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

func (r *Registry) Get(identity string) (*Endpoint, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ep, ok := r.entries[identity]
	return ep, ok
}

// List returns the live endpoints in registration order.
func (r *Registry) List() []*Endpoint {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Endpoint, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.entries[id])
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
