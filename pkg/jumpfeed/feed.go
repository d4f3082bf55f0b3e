// Package jumpfeed publishes a clock's time jumps onto an event bus.
package jumpfeed

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/BYTE-6D65/jumpclock/pkg/clock"
	"github.com/BYTE-6D65/jumpclock/pkg/event"
)

// Event types published by a Feed.
const (
	TypePre  = "clock.jump.pre"
	TypePost = "clock.jump.post"
)

var (
	ErrNilClock = errors.New("jumpfeed: clock is nil")
	ErrNilBus   = errors.New("jumpfeed: bus is nil")
)

// Payload is the JSON body of a jump event. Pre events carry only
// ObservedAt, since the jump is not yet known to the callback.
type Payload struct {
	DeltaNs       int64      `json:"delta_ns"`
	Change        string     `json:"change,omitempty"`
	SourceChanged bool       `json:"source_changed"`
	ObservedAt    clock.Time `json:"observed_at"`
}

// Feed is a jump handler that republishes every jump phase as an
// event.Event. Events are published on the goroutine delivering the jump.
type Feed struct {
	clk    *clock.Clock
	token  *clock.JumpHandler
	bus    event.Bus
	source string

	codec          event.EventCodec
	publishTimeout time.Duration
	logger         *slog.Logger
	errBus         *event.ErrorBus

	published atomic.Uint64
	failed    atomic.Uint64
	closed    atomic.Bool
}

// Option configures a Feed.
type Option func(*Feed)

// WithCodec sets the payload codec. Defaults to event.JSONCodec.
func WithCodec(codec event.EventCodec) Option {
	return func(f *Feed) {
		if codec != nil {
			f.codec = codec
		}
	}
}

// WithPublishTimeout bounds how long one publish may block the jump.
func WithPublishTimeout(d time.Duration) Option {
	return func(f *Feed) {
		if d > 0 {
			f.publishTimeout = d
		}
	}
}

// WithLogger sets the logger for publish failures.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Feed) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithErrorBus also publishes failures as FEED_PUBLISH_FAIL diagnostics.
func WithErrorBus(bus *event.ErrorBus) Option {
	return func(f *Feed) {
		f.errBus = bus
	}
}

// New registers a jump handler on clk that publishes to bus. The feed
// holds its own handle on the clock until Close.
func New(clk *clock.Clock, bus event.Bus, threshold clock.JumpThreshold, opts ...Option) (*Feed, error) {
	if clk == nil {
		return nil, ErrNilClock
	}
	if bus == nil {
		return nil, ErrNilBus
	}

	own, err := clk.Share()
	if err != nil {
		return nil, err
	}

	f := &Feed{
		clk:            own,
		bus:            bus,
		source:         "clock:" + own.SourceType().String(),
		codec:          event.JSONCodec{},
		publishTimeout: 10 * time.Millisecond,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = f.logger.With("component", "jumpfeed", "source", f.source)

	token, err := own.CreateJumpCallback(f.onPre, f.onPost, threshold)
	if err != nil {
		own.Close()
		return nil, err
	}
	f.token = token

	return f, nil
}

func (f *Feed) onPre() {
	f.publish(TypePre, Payload{ObservedAt: f.observe()})
}

func (f *Feed) onPost(jump clock.TimeJump) {
	f.publish(TypePost, Payload{
		DeltaNs:       int64(jump.Delta),
		Change:        jump.Change.String(),
		SourceChanged: jump.SourceChanged(),
		ObservedAt:    f.observe(),
	})
}

// observe reads the clock, or returns a zero Time tagged with the source
// if the read fails.
func (f *Feed) observe() clock.Time {
	now, err := f.clk.Now()
	if err != nil {
		return clock.NewTime(0, f.clk.SourceType())
	}
	return now
}

func (f *Feed) publish(eventType string, payload Payload) {
	if f.closed.Load() {
		return
	}

	evt, err := event.NewEvent(eventType, f.source, payload, f.codec)
	if err != nil {
		f.fail(eventType, err)
		return
	}
	phase := "post"
	if eventType == TypePre {
		phase = "pre"
	}
	evt.WithMetadata("phase", phase)

	ctx, cancel := context.WithTimeout(context.Background(), f.publishTimeout)
	defer cancel()

	if err := f.bus.Publish(ctx, *evt); err != nil {
		f.fail(eventType, err)
		return
	}
	f.published.Add(1)
}

func (f *Feed) fail(eventType string, err error) {
	f.failed.Add(1)
	f.logger.Warn("failed to publish jump event",
		"code", event.CodeFeedPublishFail, "type", eventType, "error", err.Error())

	if f.errBus != nil {
		f.errBus.Publish(event.NewErrorEvent(event.WarningSeverity, event.CodeFeedPublishFail, f.source,
			"failed to publish jump event").
			WithContext("type", eventType).
			WithContext("error", err.Error()))
	}
}

// Published returns the number of events published.
func (f *Feed) Published() uint64 {
	return f.published.Load()
}

// Failed returns the number of events that could not be published.
func (f *Feed) Failed() uint64 {
	return f.failed.Load()
}

// Close releases the jump handler and the feed's clock handle.
// Safe to call multiple times.
func (f *Feed) Close() error {
	if !f.closed.CompareAndSwap(false, true) {
		return nil
	}
	f.token.Release()
	return f.clk.Close()
}
