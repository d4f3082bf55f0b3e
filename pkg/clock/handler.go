package clock

import (
	"runtime"
	"sync/atomic"
	"weak"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/BYTE-6D65/jumpclock/pkg/event"
	"github.com/BYTE-6D65/jumpclock/pkg/timesource"
)

// JumpHandler is the caller's token for one registered callback pair.
//
// The token is reference counted. CreateJumpCallback returns it holding
// one reference; Retain adds one and Release drops one. When the last
// reference is released the handler is disarmed, exactly once. A token
// that becomes unreachable is disarmed by the garbage collector in the
// same way. Disarming after the owning clock's backend is gone is a no-op.
//
// Tokens compare by identity.
type JumpHandler struct {
	h *jumpHandler
}

// jumpHandler is what the backend stores. It never holds the token, so
// the token can be collected while the handler is armed.
type jumpHandler struct {
	id        uuid.UUID
	pre       PreJumpCallback
	post      PostJumpCallback
	threshold JumpThreshold

	clock weak.Pointer[shared]
	src   SourceType

	refs     atomic.Int64
	disarmed atomic.Bool

	counters handlerCounters
}

// handlerCounters are resolved at registration so dispatch does no label
// lookups. Nil counters are skipped.
type handlerCounters struct {
	pre     optionalCounter
	post    optionalCounter
	changes [4]optionalCounter // Indexed by ClockChange
}

type optionalCounter struct {
	c prometheus.Counter
}

func (o optionalCounter) Inc() {
	if o.c != nil {
		o.c.Inc()
	}
}

func (hc *handlerCounters) jump(change ClockChange) optionalCounter {
	if change < 0 || int(change) >= len(hc.changes) {
		return optionalCounter{}
	}
	return hc.changes[change]
}

func newJumpHandler(s *shared, pre PreJumpCallback, post PostJumpCallback, threshold JumpThreshold) *jumpHandler {
	h := &jumpHandler{
		id:        uuid.New(),
		pre:       pre,
		post:      post,
		threshold: threshold,
		clock:     weak.Make(s),
		src:       s.src,
	}
	h.refs.Store(1)

	if m := s.metrics; m != nil {
		label := s.src.String()
		h.counters.pre = optionalCounter{m.Callbacks.WithLabelValues(label, "pre")}
		h.counters.post = optionalCounter{m.Callbacks.WithLabelValues(label, "post")}
		for i := range h.counters.changes {
			h.counters.changes[i] = optionalCounter{m.Jumps.WithLabelValues(label, timesource.ClockChange(i).String())}
		}
	}
	return h
}

// DispatchJump implements timesource.JumpDispatcher. A handler whose last
// reference is gone ignores the jump even if the backend has not yet
// dropped it.
func (h *jumpHandler) DispatchJump(jump TimeJump, beforeJump bool) {
	if h.disarmed.Load() {
		return
	}
	onTimeJump(jump, beforeJump, h)
}

// disarm removes the handler from its backend once. Failures are reported
// and absorbed: this runs during teardown where no caller can react.
func (h *jumpHandler) disarm() {
	if !h.disarmed.CompareAndSwap(false, true) {
		return
	}

	s := h.clock.Value()
	if s == nil || s.finalized.Load() {
		// Backend teardown already dropped every registration
		return
	}

	err := s.backend.DisarmJumpDispatch(h)
	switch {
	case err == nil:
		s.countDisarmed()
	case timesource.StatusOf(err) == timesource.StatusNotInitialized:
		// Lost a race with Finalize; nothing left to remove
	default:
		if s.metrics != nil {
			s.metrics.DeregistrationFailures.WithLabelValues(h.src.String()).Inc()
		}
		s.report(event.FailureSeverity, event.CodeDeregisterFail, "failed to remove time jump callback",
			"handler_id", h.id.String(), "status", timesource.StatusOf(err).String(), "error", err.Error())
	}
}

func newJumpHandlerToken(h *jumpHandler) *JumpHandler {
	t := &JumpHandler{h: h}
	runtime.AddCleanup(t, disarmCollected, h)
	return t
}

func disarmCollected(h *jumpHandler) {
	if h.disarmed.Load() {
		return
	}
	if s := h.clock.Value(); s != nil {
		s.report(event.DebugSeverity, event.CodeHandlerLeaked, "jump handler collected without Release",
			"handler_id", h.id.String())
	}
	h.disarm()
}

// ID returns a unique identifier for logs.
func (t *JumpHandler) ID() string {
	return t.h.id.String()
}

// Threshold returns the threshold the handler was armed with.
func (t *JumpHandler) Threshold() JumpThreshold {
	return t.h.threshold
}

// Armed reports whether the handler can still receive jumps.
func (t *JumpHandler) Armed() bool {
	if t.h.disarmed.Load() {
		return false
	}
	s := t.h.clock.Value()
	return s != nil && !s.finalized.Load()
}

// Retain adds a reference and returns t. Retaining a token whose last
// reference is already gone has no effect.
func (t *JumpHandler) Retain() *JumpHandler {
	for {
		n := t.h.refs.Load()
		if n <= 0 {
			return t
		}
		if t.h.refs.CompareAndSwap(n, n+1) {
			return t
		}
	}
}

// Release drops a reference. Dropping the last one disarms the handler:
// no jump that begins after Release returns reaches its callbacks. A jump
// already being delivered on another goroutine may still make one call.
// Releasing more times than retained is a no-op.
func (t *JumpHandler) Release() {
	if t == nil {
		return
	}
	for {
		n := t.h.refs.Load()
		if n <= 0 {
			return
		}
		if t.h.refs.CompareAndSwap(n, n-1) {
			if n == 1 {
				t.h.disarm()
			}
			return
		}
	}
}
