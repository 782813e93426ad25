// Package transport defines the capability contract the relay requires
// from any transport socket: connection state, named event subscription
// with disposable handles, and fire-and-forget event emission. Concrete
// adapters live in the wsock and quicsock subpackages; Pipe provides an
// in-process pair for tests and local wiring.
package transport

import "errors"

var ErrSocketClosed = errors.New("transport: socket closed")

// Handler receives the raw payload published under a subscribed event.
type Handler func(payload []byte)

// Subscription identifies one registered handler. The zero value is
// invalid. Handles are disposable: Off is idempotent.
type Subscription struct {
	event string
	id    uint64
}

func (s Subscription) Event() string {
	return s.event
}

// Socket is the capability surface the relay consumes. The relay never
// owns the connection lifecycle; Connect and Disconnect are for the
// transport's own callers.
type Socket interface {
	Connected() bool
	Disconnected() bool
	Connect() error
	Disconnect() error
	On(event string, h Handler) Subscription
	Off(sub Subscription)
	RemoveAllListeners(event string)
	Emit(event string, payload []byte) error
}
