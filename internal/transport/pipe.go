package transport

import "sync"

// PipeSocket is one end of an in-process socket pair. An Emit on one end
// dispatches synchronously to the other end's handlers, which keeps mesh
// tests deterministic and matches the relay's event-driven model.
type PipeSocket struct {
	dispatcher *Dispatcher
	remote     *PipeSocket

	mu     sync.Mutex
	closed bool
}

// Pipe returns a connected socket pair.
func Pipe() (*PipeSocket, *PipeSocket) {
	a := &PipeSocket{dispatcher: NewDispatcher()}
	b := &PipeSocket{dispatcher: NewDispatcher()}
	a.remote = b
	b.remote = a
	return a, b
}

func (p *PipeSocket) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.closed
}

func (p *PipeSocket) Disconnected() bool {
	return !p.Connected()
}

func (p *PipeSocket) Connect() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrSocketClosed
	}
	return nil
}

func (p *PipeSocket) Disconnect() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	remote := p.remote
	p.mu.Unlock()
	if remote != nil {
		_ = remote.Disconnect()
	}
	return nil
}

func (p *PipeSocket) On(event string, h Handler) Subscription {
	return p.dispatcher.On(event, h)
}

func (p *PipeSocket) Off(sub Subscription) {
	p.dispatcher.Off(sub)
}

func (p *PipeSocket) RemoveAllListeners(event string) {
	p.dispatcher.RemoveAllListeners(event)
}

func (p *PipeSocket) Emit(event string, payload []byte) error {
	p.mu.Lock()
	closed := p.closed
	remote := p.remote
	p.mu.Unlock()
	if closed || remote == nil {
		return ErrSocketClosed
	}
	remote.dispatcher.Dispatch(event, payload)
	return nil
}

// ListenerCount exposes the local handler count for event; tests use it to
// assert rewiring leaves exactly one active subscription per endpoint.
func (p *PipeSocket) ListenerCount(event string) int {
	return p.dispatcher.ListenerCount(event)
}

var _ Socket = (*PipeSocket)(nil)
