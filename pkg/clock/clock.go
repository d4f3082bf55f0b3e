package clock

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/BYTE-6D65/jumpclock/pkg/event"
	"github.com/BYTE-6D65/jumpclock/pkg/telemetry"
	"github.com/BYTE-6D65/jumpclock/pkg/timesource"
)

// Clock is a handle to a time source backend. Handles made with Share
// alias the same backend; the backend is finalized when the last handle
// is closed or collected.
//
// All methods are safe for concurrent use.
type Clock struct {
	h *handle
}

// handle carries a Clock's share of the backend. It is split from Clock
// so a cleanup can release it without keeping the Clock reachable.
type handle struct {
	s      *shared
	closed atomic.Bool
}

// shared owns the backend. Jump handlers reach it only through a weak
// pointer.
type shared struct {
	backend   timesource.Backend
	src       SourceType
	component string
	refs      atomic.Int64
	finalized atomic.Bool
	armed     atomic.Int64 // this clock's share of HandlersArmed

	logger  *slog.Logger
	metrics *telemetry.Metrics
	errBus  *event.ErrorBus
}

// NewClock initializes a backend of the given type. On failure it returns
// an *InitializationError and no Clock.
func NewClock(src SourceType, opts ...Option) (*Clock, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	backend := o.factory()
	if backend == nil {
		return nil, &InitializationError{
			Status:  timesource.StatusBadAlloc,
			Message: "backend factory returned nil",
		}
	}

	if err := backend.Init(src); err != nil {
		return nil, newInitializationError(fmt.Sprintf("could not initialize %s clock", src), err)
	}

	s := &shared{
		backend:   backend,
		src:       src,
		component: "clock:" + src.String(),
		logger:    o.logger.With("source", src.String()),
		metrics:   o.metrics,
		errBus:    o.errBus,
	}
	s.refs.Store(1)

	if s.metrics != nil {
		s.metrics.ClocksLive.WithLabelValues(src.String()).Inc()
	}

	return s.newClock(), nil
}

func (s *shared) newClock() *Clock {
	h := &handle{s: s}
	c := &Clock{h: h}
	runtime.AddCleanup(c, releaseCollected, h)
	return c
}

func releaseCollected(h *handle) {
	if h.release() {
		h.s.report(event.DebugSeverity, event.CodeClockLeaked, "clock handle collected without Close")
	}
}

// release drops this handle's reference once. It reports whether this
// call did the release.
func (h *handle) release() bool {
	if !h.closed.CompareAndSwap(false, true) {
		return false
	}
	h.s.release()
	return true
}

func (s *shared) release() {
	if s.refs.Add(-1) != 0 {
		return
	}

	s.finalized.Store(true)
	if s.metrics != nil {
		s.metrics.ClocksLive.WithLabelValues(s.src.String()).Dec()
		s.metrics.HandlersArmed.WithLabelValues(s.src.String()).Sub(float64(s.armed.Swap(0)))
	}

	if err := s.backend.Finalize(); err != nil {
		s.report(event.FailureSeverity, event.CodeFinalizeFail, "failed to finalize time source",
			"status", timesource.StatusOf(err).String(), "error", err.Error())
	}
}

// acquire adds a reference unless the backend is already finalized.
func (s *shared) acquire() bool {
	for {
		n := s.refs.Load()
		if n <= 0 {
			return false
		}
		if s.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// countArmed adds one handler to the armed gauge. A finalize racing the
// registration may already have settled this clock's share; the handler is
// then taken back out.
func (s *shared) countArmed() {
	if s.metrics == nil {
		return
	}
	s.armed.Add(1)
	s.metrics.HandlersArmed.WithLabelValues(s.src.String()).Inc()
	if s.finalized.Load() {
		s.countDisarmed()
	}
}

// countDisarmed removes one handler from the armed gauge unless finalize
// already removed this clock's whole share.
func (s *shared) countDisarmed() {
	if s.metrics == nil {
		return
	}
	for {
		n := s.armed.Load()
		if n <= 0 {
			return
		}
		if s.armed.CompareAndSwap(n, n-1) {
			s.metrics.HandlersArmed.WithLabelValues(s.src.String()).Dec()
			return
		}
	}
}

// report logs a diagnostic and publishes it on the error bus, if any.
// attrs are key-value pairs.
func (s *shared) report(severity event.ErrorSeverity, code, msg string, attrs ...any) {
	s.logger.Log(context.Background(), severity.Level(), msg, append([]any{"code", code}, attrs...)...)

	if s.errBus == nil {
		return
	}
	evt := event.NewErrorEvent(severity, code, s.component, msg)
	for i := 0; i+1 < len(attrs); i += 2 {
		if key, ok := attrs[i].(string); ok {
			evt = evt.WithContext(key, attrs[i+1])
		}
	}
	s.errBus.Publish(evt)
}

// Share returns a new handle on the same backend. Each handle must be
// closed separately.
func (c *Clock) Share() (*Clock, error) {
	if c.h.closed.Load() || !c.h.s.acquire() {
		return nil, ErrClosed
	}
	return c.h.s.newClock(), nil
}

// Close releases this handle. The backend is finalized when the last
// handle closes. Calling Close more than once is a no-op.
func (c *Clock) Close() error {
	c.h.release()
	return nil
}

// SourceType returns the clock's source type.
func (c *Clock) SourceType() SourceType {
	return c.h.s.src
}

// Backend returns the underlying backend.
func (c *Clock) Backend() timesource.Backend {
	return c.h.s.backend
}

// Now reads the current time from the backend.
func (c *Clock) Now() (Time, error) {
	s := c.h.s
	if c.h.closed.Load() {
		return Time{}, &TimeQueryError{
			Status:  timesource.StatusNotInitialized,
			Message: "could not get current time stamp",
			Err:     ErrClosed,
		}
	}

	timer := telemetry.NewTimer()
	ns, err := s.backend.ReadNow()
	if s.metrics != nil {
		s.metrics.Reads.WithLabelValues(s.src.String(), telemetry.StatusLabel(err)).Inc()
		timer.Observe(s.metrics.ReadDuration.WithLabelValues(s.src.String()))
	}
	if err != nil {
		return Time{}, newTimeQueryError("could not get current time stamp", err)
	}

	return NewTime(ns, s.src), nil
}

// Since returns the time elapsed on this clock since t.
func (c *Clock) Since(t Time) (time.Duration, error) {
	now, err := c.Now()
	if err != nil {
		return 0, err
	}
	return now.Sub(t), nil
}

// IsOverrideActive reports whether an override currently drives the
// clock. The answer is advisory: if the backend reports itself invalid
// this logs a diagnostic and returns false rather than failing.
func (c *Clock) IsOverrideActive() (bool, error) {
	s := c.h.s
	if c.h.closed.Load() {
		return false, &TimeQueryError{
			Status:  timesource.StatusNotInitialized,
			Message: "failed to check override status",
			Err:     ErrClosed,
		}
	}

	if !s.backend.Valid() {
		s.report(event.FailureSeverity, event.CodeClockInvalid, "time source not valid")
		return false, nil
	}

	active, err := s.backend.OverrideEnabled()
	if err != nil {
		return false, newTimeQueryError("failed to check override status", err)
	}

	if s.metrics != nil {
		value := 0.0
		if active {
			value = 1
		}
		s.metrics.OverrideActive.WithLabelValues(s.src.String()).Set(value)
	}
	return active, nil
}

// CreateJumpCallback arms a jump handler with the backend and returns its
// token. Either callback may be nil.
//
// The pre callback fires before every jump the backend delivers. The post
// callback fires after jumps crossing threshold. Callbacks run
// synchronously on the goroutine producing the jump and must not block.
//
// The handler stays armed until the last reference to the token is
// released with Release, or the token is garbage collected.
func (c *Clock) CreateJumpCallback(pre PreJumpCallback, post PostJumpCallback, threshold JumpThreshold) (*JumpHandler, error) {
	s := c.h.s
	if c.h.closed.Load() {
		return nil, &RegistrationError{
			Status:  timesource.StatusNotInitialized,
			Message: "failed to add time jump callback",
			Err:     ErrClosed,
		}
	}

	h := newJumpHandler(s, pre, post, threshold)

	err := s.backend.ArmJumpDispatch(threshold, h)
	if s.metrics != nil {
		s.metrics.Registrations.WithLabelValues(s.src.String(), telemetry.StatusLabel(err)).Inc()
	}
	if err != nil {
		return nil, newRegistrationError("failed to add time jump callback", err)
	}

	s.countArmed()
	return newJumpHandlerToken(h), nil
}

// onTimeJump is the dispatch entry point the backend reaches through
// jumpHandler.DispatchJump. It does not allocate or lock.
func onTimeJump(jump TimeJump, beforeJump bool, h *jumpHandler) {
	if h == nil {
		return
	}
	if beforeJump {
		if h.pre != nil {
			h.counters.pre.Inc()
			h.pre()
		}
		return
	}
	if h.post != nil {
		h.counters.post.Inc()
		h.counters.jump(jump.Change).Inc()
		h.post(jump)
	}
}
