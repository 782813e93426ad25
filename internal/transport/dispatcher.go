package transport

import (
	"sort"
	"sync"
)

// Dispatcher implements the subscription half of the Socket contract for
// the concrete adapters: a mutex-guarded table of handlers per event name,
// with monotonically allocated subscription ids.
type Dispatcher struct {
	mu       sync.Mutex
	nextID   uint64
	handlers map[string]map[uint64]Handler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]map[uint64]Handler)}
}

func (d *Dispatcher) On(event string, h Handler) Subscription {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	id := d.nextID
	m, ok := d.handlers[event]
	if !ok {
		m = make(map[uint64]Handler)
		d.handlers[event] = m
	}
	m[id] = h
	return Subscription{event: event, id: id}
}

func (d *Dispatcher) Off(sub Subscription) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if m, ok := d.handlers[sub.event]; ok {
		delete(m, sub.id)
		if len(m) == 0 {
			delete(d.handlers, sub.event)
		}
	}
}

func (d *Dispatcher) RemoveAllListeners(event string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if event == "" {
		d.handlers = make(map[string]map[uint64]Handler)
		return
	}
	delete(d.handlers, event)
}

// Dispatch invokes every handler registered for event. Handlers run on the
// caller's goroutine, outside the dispatcher lock, in subscription order.
func (d *Dispatcher) Dispatch(event string, payload []byte) {
	d.mu.Lock()
	m := d.handlers[event]
	hs := make([]Handler, 0, len(m))
	ids := make([]uint64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		hs = append(hs, m[id])
	}
	d.mu.Unlock()
	for _, h := range hs {
		h(payload)
	}
}

// ListenerCount reports the number of handlers registered for event.
func (d *Dispatcher) ListenerCount(event string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.handlers[event])
}
