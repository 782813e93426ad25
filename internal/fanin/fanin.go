// Package fanin composes several edit-log handles (the local store plus
// one or more peer feeds) into one logical handle with per-source
// capability flags. The composition follows the relay engine's
// discipline: every membership change tears the whole surface down and
// rebuilds it.
package fanin

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"editmesh/internal/metrics"
	"editmesh/internal/proto"
)

// Handle is one edit source/sink. Updates returns the source's live feed;
// sources without a feed return a nil channel.
type Handle interface {
	Dump(ctx context.Context) ([]proto.Edit, error)
	Write(ctx context.Context, edit proto.Edit) error
	Updates() <-chan proto.Edit
	Close() error
}

// Source attaches capability flags to a handle. Dump marks the source as
// eligible to serve the initial bulk pull, Read accepts its live updates,
// Write receives local writes. Priority breaks ties when several sources
// could serve a dump; higher wins.
type Source struct {
	Name     string
	Handle   Handle
	Priority int
	Dump     bool
	Read     bool
	Write    bool
}

type Fanin struct {
	log     *zap.Logger
	metrics *metrics.Metrics
	updates chan proto.Edit

	mu      sync.Mutex
	sources []Source
	stop    chan struct{}
	wg      *sync.WaitGroup
	closed  bool
}

func New(log *zap.Logger, m *metrics.Metrics) *Fanin {
	if log == nil {
		log = zap.NewNop()
	}
	return &Fanin{
		log:     log,
		metrics: m,
		updates: make(chan proto.Edit, 64),
	}
}

// Rebuild replaces the composed source set. All running update pumps are
// stopped before any new one starts, so a source's feed is never consumed
// twice. Handles stay open; ownership remains with the caller until
// Close.
func (f *Fanin) Rebuild(sources []Source) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return fmt.Errorf("fanin: closed")
	}
	f.stopPumpsLocked()

	ordered := make([]Source, len(sources))
	copy(ordered, sources)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority > ordered[j].Priority
	})
	f.sources = ordered

	f.stop = make(chan struct{})
	f.wg = &sync.WaitGroup{}
	for _, src := range ordered {
		if !src.Read {
			continue
		}
		feed := src.Handle.Updates()
		if feed == nil {
			continue
		}
		f.wg.Add(1)
		go f.pump(src.Name, feed, f.stop, f.wg)
	}
	if f.metrics != nil {
		f.metrics.IncFaninRebuilds()
	}
	f.log.Debug("fanin rebuilt", zap.Int("sources", len(ordered)))
	return nil
}

func (f *Fanin) pump(name string, feed <-chan proto.Edit, stop chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		select {
		case <-stop:
			return
		case edit, ok := <-feed:
			if !ok {
				return
			}
			select {
			case f.updates <- edit:
			case <-stop:
				return
			default:
				// Slow consumer: drop rather than stall the mesh, the
				// dump path re-converges on the next pull.
				f.log.Debug("fanin update dropped", zap.String("source", name))
			}
		}
	}
}

func (f *Fanin) stopPumpsLocked() {
	if f.stop != nil {
		close(f.stop)
		f.stop = nil
	}
	if f.wg != nil {
		f.wg.Wait()
		f.wg = nil
	}
}

// Dump serves the initial bulk pull from the highest-priority
// dump-capable source.
func (f *Fanin) Dump(ctx context.Context) ([]proto.Edit, error) {
	f.mu.Lock()
	var pick *Source
	for i := range f.sources {
		if f.sources[i].Dump {
			pick = &f.sources[i]
			break
		}
	}
	f.mu.Unlock()
	if pick == nil {
		return nil, fmt.Errorf("fanin: no dump-capable source")
	}
	return pick.Handle.Dump(ctx)
}

// Write fans a local write out to every write-capable source.
func (f *Fanin) Write(ctx context.Context, edit proto.Edit) error {
	f.mu.Lock()
	targets := make([]Source, 0, len(f.sources))
	for _, src := range f.sources {
		if src.Write {
			targets = append(targets, src)
		}
	}
	f.mu.Unlock()
	if len(targets) == 0 {
		return fmt.Errorf("fanin: no write-capable source")
	}
	var err error
	for _, src := range targets {
		if werr := src.Handle.Write(ctx, edit); werr != nil {
			err = multierr.Append(err, fmt.Errorf("%s: %w", src.Name, werr))
		}
	}
	return err
}

// Updates is the merged live feed of every read-capable source. The
// channel stays valid across rebuilds.
func (f *Fanin) Updates() <-chan proto.Edit {
	return f.updates
}

// Close stops the pumps and closes every composed handle.
func (f *Fanin) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	f.stopPumpsLocked()
	var err error
	for _, src := range f.sources {
		if cerr := src.Handle.Close(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("%s: %w", src.Name, cerr))
		}
	}
	f.sources = nil
	close(f.updates)
	return err
}

var _ Handle = (*Fanin)(nil)
