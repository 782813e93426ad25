package fanin

import (
	"context"
	"fmt"
	"sync"

	"editmesh/internal/proto"
)

// Feed is a push-only handle for live peer updates: the store node pushes
// every fresh relayed edit into the feed of the endpoint it arrived from.
// Feeds cannot serve dumps or accept writes.
type Feed struct {
	mu     sync.Mutex
	ch     chan proto.Edit
	closed bool
}

func NewFeed(buffer int) *Feed {
	if buffer <= 0 {
		buffer = 64
	}
	return &Feed{ch: make(chan proto.Edit, buffer)}
}

// Push queues an edit on the feed; full feeds drop, matching the relay's
// best-effort delivery.
func (f *Feed) Push(edit proto.Edit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return fmt.Errorf("feed: closed")
	}
	select {
	case f.ch <- edit:
	default:
	}
	return nil
}

func (f *Feed) Dump(ctx context.Context) ([]proto.Edit, error) {
	return nil, fmt.Errorf("feed: dump not supported")
}

func (f *Feed) Write(ctx context.Context, edit proto.Edit) error {
	return fmt.Errorf("feed: write not supported")
}

func (f *Feed) Updates() <-chan proto.Edit {
	return f.ch
}

func (f *Feed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	close(f.ch)
	return nil
}

var _ Handle = (*Feed)(nil)
