package event

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// ErrBusClosed is returned when subscribing to a closed error bus.
var ErrBusClosed = errors.New("event: error bus is closed")

// ErrorBus carries clock diagnostics. Clocks publish from teardown paths,
// garbage collector cleanups and the goroutine delivering a jump, none of
// which may wait on a subscriber, so Publish never blocks: full buffers
// drop. The subscriber list is copy-on-write and read without a lock.
type ErrorBus struct {
	bufferSize int

	subs    atomic.Pointer[[]*ErrorSubscription]
	dropped atomic.Uint64

	mu     sync.Mutex // serializes subscriber list updates
	closed bool
}

// NewErrorBus returns a bus whose subscriptions buffer bufferSize
// diagnostics each. Non-positive sizes use 32.
func NewErrorBus(bufferSize int) *ErrorBus {
	if bufferSize <= 0 {
		bufferSize = 32
	}
	b := &ErrorBus{bufferSize: bufferSize}
	b.subs.Store(&[]*ErrorSubscription{})
	return b
}

// SubscribeOption configures an ErrorSubscription.
type SubscribeOption func(*ErrorSubscription)

// AtLeast limits a subscription to diagnostics of severity floor or higher.
func AtLeast(floor ErrorSeverity) SubscribeOption {
	return func(s *ErrorSubscription) {
		s.floor = floor
	}
}

// Publish offers evt to every subscriber and returns how many accepted
// it. A nil bus accepts nothing.
func (b *ErrorBus) Publish(evt ErrorEvent) int {
	if b == nil {
		return 0
	}

	delivered := 0
	for _, sub := range *b.subs.Load() {
		if evt.Severity < sub.floor {
			continue
		}
		if sub.offer(evt) {
			delivered++
			continue
		}
		b.dropped.Add(1)
	}
	return delivered
}

// Subscribe returns a subscription that receives diagnostics published
// from now on. It is removed when ctx is done or on Unsubscribe.
func (b *ErrorBus) Subscribe(ctx context.Context, opts ...SubscribeOption) (*ErrorSubscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBusClosed
	}

	sub := &ErrorSubscription{
		id: uuid.NewString(),
		ch: make(chan ErrorEvent, b.bufferSize),
	}
	for _, opt := range opts {
		opt(sub)
	}
	sub.stop = context.AfterFunc(ctx, func() { b.Unsubscribe(sub) })

	cur := *b.subs.Load()
	next := make([]*ErrorSubscription, len(cur), len(cur)+1)
	copy(next, cur)
	next = append(next, sub)
	b.subs.Store(&next)

	return sub, nil
}

// Unsubscribe removes sub and closes its channel.
func (b *ErrorBus) Unsubscribe(sub *ErrorSubscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub.Close()

	cur := *b.subs.Load()
	next := make([]*ErrorSubscription, 0, len(cur))
	for _, s := range cur {
		if s != sub {
			next = append(next, s)
		}
	}
	b.subs.Store(&next)
}

// Close closes every subscription. Calling it again is a no-op.
func (b *ErrorBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	for _, sub := range *b.subs.Load() {
		sub.Close()
	}
	b.subs.Store(&[]*ErrorSubscription{})
	return nil
}

// DroppedCount returns how many diagnostics were refused by full buffers.
func (b *ErrorBus) DroppedCount() uint64 {
	return b.dropped.Load()
}

// SubscriberCount returns the number of live subscriptions.
func (b *ErrorBus) SubscriberCount() int {
	return len(*b.subs.Load())
}

// ErrorSubscription is one reader of an ErrorBus.
type ErrorSubscription struct {
	id    string
	floor ErrorSeverity
	stop  func() bool

	mu     sync.Mutex // orders offer against Close
	ch     chan ErrorEvent
	closed bool
}

// ID returns the subscription identifier.
func (s *ErrorSubscription) ID() string { return s.id }

// Events returns the diagnostics channel. It is closed when the
// subscription ends.
func (s *ErrorSubscription) Events() <-chan ErrorEvent { return s.ch }

// Close closes the channel without detaching from the bus. Safe to call
// more than once.
func (s *ErrorSubscription) Close() {
	if s.stop != nil {
		s.stop()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// offer queues evt without blocking. A closed subscription accepts and
// discards it.
func (s *ErrorSubscription) offer(evt ErrorEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return true
	}
	select {
	case s.ch <- evt:
		return true
	default:
		return false
	}
}

// ErrorHandler processes one diagnostic.
type ErrorHandler func(ErrorEvent)

// SubscribeWithHandler runs handler on its own goroutine for each
// diagnostic until ctx is done or the bus closes.
func (b *ErrorBus) SubscribeWithHandler(ctx context.Context, handler ErrorHandler, opts ...SubscribeOption) (*ErrorSubscription, error) {
	sub, err := b.Subscribe(ctx, opts...)
	if err != nil {
		return nil, err
	}

	go func() {
		for evt := range sub.Events() {
			handler(evt)
		}
	}()
	return sub, nil
}
