package event

import (
	"context"
	"errors"
	"path"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Bus carries jump notifications from clocks to whoever wants them.
type Bus interface {
	// Publish delivers evt to every matching subscriber.
	Publish(ctx context.Context, evt Event) error

	// Subscribe registers interest in events matching filter. The
	// subscription ends when ctx is done or Close is called.
	Subscribe(ctx context.Context, filter Filter) (Subscription, error)

	// Close ends every subscription and rejects further use.
	Close() error
}

// Subscription is one subscriber's view of a Bus.
type Subscription interface {
	ID() string
	Events() <-chan Event
	Close() error
}

// ErrClosed is returned when publishing to or subscribing on a closed bus.
var ErrClosed = errors.New("event: bus is closed")

// Filter selects events. Empty fields match everything. Types and Sources
// take path.Match patterns, so "clock.jump.*" matches both jump phases.
type Filter struct {
	Types    []string
	Sources  []string
	Metadata map[string]string
}

// Match reports whether evt passes the filter.
func (f Filter) Match(evt Event) bool {
	if len(f.Types) > 0 && !matchPattern(f.Types, evt.Type) {
		return false
	}
	if len(f.Sources) > 0 && !matchPattern(f.Sources, evt.Source) {
		return false
	}
	for k, v := range f.Metadata {
		if evt.Metadata[k] != v {
			return false
		}
	}
	return true
}

func matchPattern(patterns []string, s string) bool {
	for _, p := range patterns {
		if ok, err := path.Match(p, s); err == nil && ok {
			return true
		}
	}
	return false
}

// BusStats is a snapshot of an InMemoryBus's counters.
type BusStats struct {
	Published   uint64
	Dropped     uint64
	Subscribers int
}

// InMemoryBus fans events out to in-process subscribers.
//
// Publish stamps each event with a bus-wide sequence number. Envelope
// timestamps come from the wall clock, which is the thing that jumps, so
// subscribers that care about order use Seq.
//
// Jump events are published from whatever goroutine delivers the jump.
// Buses handed to a jump feed should drop for slow subscribers rather than
// block that goroutine.
type InMemoryBus struct {
	bufferSize int
	dropSlow   bool

	mu     sync.RWMutex
	subs   map[string]*busSubscription
	closed bool

	seq     atomic.Uint64
	dropped atomic.Uint64
}

// BusOption configures an InMemoryBus.
type BusOption func(*InMemoryBus)

// WithBufferSize sets the per-subscription channel capacity. Default 64.
func WithBufferSize(size int) BusOption {
	return func(b *InMemoryBus) {
		if size > 0 {
			b.bufferSize = size
		}
	}
}

// WithDropSlow makes Publish skip subscribers whose buffer is full
// instead of waiting on them.
func WithDropSlow(drop bool) BusOption {
	return func(b *InMemoryBus) {
		b.dropSlow = drop
	}
}

// NewInMemoryBus returns an open bus.
func NewInMemoryBus(opts ...BusOption) *InMemoryBus {
	b := &InMemoryBus{
		bufferSize: 64,
		subs:       make(map[string]*busSubscription),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish assigns evt its sequence number and hands it to each matching
// subscriber. A blocking delivery gives up when ctx is done; the event is
// counted as dropped for that subscriber and Publish returns ctx's error.
func (b *InMemoryBus) Publish(ctx context.Context, evt Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrClosed
	}
	evt.Seq = b.seq.Add(1)

	for _, sub := range b.subs {
		if !sub.filter.Match(evt) {
			continue
		}
		if err := ctx.Err(); err != nil {
			b.dropped.Add(1)
			return err
		}
		if !sub.deliver(ctx, evt, b.dropSlow) {
			b.dropped.Add(1)
		}
	}
	return nil
}

// Subscribe registers a subscription bound to ctx.
func (b *InMemoryBus) Subscribe(ctx context.Context, filter Filter) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}

	sub := &busSubscription{
		id:     uuid.NewString(),
		bus:    b,
		filter: filter,
		ch:     make(chan Event, b.bufferSize),
	}
	sub.stop = context.AfterFunc(ctx, func() { _ = sub.Close() })
	b.subs[sub.id] = sub
	return sub, nil
}

// Close ends every subscription. Calling it again is a no-op.
func (b *InMemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	for _, sub := range b.subs {
		sub.stop()
		sub.closeChannel()
	}
	b.subs = nil
	return nil
}

// DroppedCount returns how many deliveries were skipped.
func (b *InMemoryBus) DroppedCount() uint64 {
	return b.dropped.Load()
}

// Stats returns the bus counters.
func (b *InMemoryBus) Stats() BusStats {
	b.mu.RLock()
	n := len(b.subs)
	b.mu.RUnlock()

	return BusStats{
		Published:   b.seq.Load(),
		Dropped:     b.dropped.Load(),
		Subscribers: n,
	}
}

type busSubscription struct {
	id     string
	bus    *InMemoryBus
	filter Filter
	stop   func() bool

	mu     sync.Mutex // orders deliver against closeChannel
	ch     chan Event
	closed bool
}

func (s *busSubscription) ID() string           { return s.id }
func (s *busSubscription) Events() <-chan Event { return s.ch }

// Close removes the subscription from its bus and closes the channel.
// Safe to call more than once.
func (s *busSubscription) Close() error {
	s.stop()

	s.bus.mu.Lock()
	delete(s.bus.subs, s.id)
	s.bus.mu.Unlock()

	s.closeChannel()
	return nil
}

func (s *busSubscription) closeChannel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// deliver reports whether evt was queued. A closed subscription swallows
// the event without counting a drop.
func (s *busSubscription) deliver(ctx context.Context, evt Event, dropSlow bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return true
	}

	if dropSlow {
		select {
		case s.ch <- evt:
			return true
		default:
			return false
		}
	}

	select {
	case s.ch <- evt:
		return true
	case <-ctx.Done():
		return false
	}
}
