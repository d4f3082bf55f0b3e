package timesource

import (
	"sync"
	"sync/atomic"
	"time"
)

// Source is the in-process Backend. It serves steady, system, and
// overridable time, and keeps the jump dispatch table.
//
// Jumps are serialized: only one of EnableOverride, DisableOverride,
// SetOverrideTime, or a monitor step dispatches at a time. Callbacks may
// read the source and arm or disarm dispatchers, but must not produce a
// jump on the same source.
type Source struct {
	mu          sync.RWMutex // Protects everything below except jumpMu
	typ         SourceType
	initialized bool
	finalized   bool

	overrideActive bool
	overrideTime   int64

	entries map[JumpDispatcher]*jumpEntry

	jumpMu sync.Mutex // Serializes jump producers

	wallNow func() int64
	monoNow func() time.Duration

	monitorRunning atomic.Bool
}

type jumpEntry struct {
	dispatcher JumpDispatcher
	threshold  JumpThreshold
	armed      atomic.Bool
}

// SourceOption configures a Source.
type SourceOption func(*Source)

// WithWallClock replaces the wall clock reader (Unix nanoseconds).
func WithWallClock(fn func() int64) SourceOption {
	return func(s *Source) {
		s.wallNow = fn
	}
}

// WithMonotonic replaces the monotonic reader. It must never decrease.
func WithMonotonic(fn func() time.Duration) SourceOption {
	return func(s *Source) {
		s.monoNow = fn
	}
}

// New creates an uninitialized Source. The steady epoch is captured here.
func New(opts ...SourceOption) *Source {
	epoch := time.Now()
	s := &Source{
		entries: make(map[JumpDispatcher]*jumpEntry),
		wallNow: func() int64 { return time.Now().UnixNano() },
		monoNow: func() time.Duration { return time.Since(epoch) }, // monotonic reading
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Init prepares the source for src. A source can be initialized once.
func (s *Source) Init(src SourceType) error {
	if !src.Valid() {
		return newError(StatusInvalidArgument, "cannot initialize source of type %s", src)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return newError(StatusError, "source already initialized as %s", s.typ)
	}
	if s.finalized {
		return newError(StatusNotInitialized, "source already finalized")
	}

	s.typ = src
	s.initialized = true
	return nil
}

// Finalize disarms every dispatcher and invalidates the source.
func (s *Source) Finalize() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finalized {
		return nil
	}
	s.finalized = true

	for d, e := range s.entries {
		e.armed.Store(false)
		delete(s.entries, d)
	}
	return nil
}

// Valid reports whether the source is initialized and not finalized.
func (s *Source) Valid() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.validLocked()
}

func (s *Source) validLocked() bool {
	return s.initialized && !s.finalized
}

// Type returns the initialized source type.
func (s *Source) Type() SourceType {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.typ
}

// ReadNow returns the current time in nanoseconds for the source type.
func (s *Source) ReadNow() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.validLocked() {
		return 0, ErrNotInitialized
	}

	switch s.typ {
	case Steady:
		return int64(s.monoNow()), nil
	case System:
		return s.wallNow(), nil
	case Overridable:
		if s.overrideActive {
			return s.overrideTime, nil
		}
		return s.wallNow(), nil
	default:
		return 0, newError(StatusError, "unexpected source type %s", s.typ)
	}
}

// OverrideEnabled reports whether an override drives the source. Sources
// that cannot be overridden report false.
func (s *Source) OverrideEnabled() (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.validLocked() {
		return false, ErrNotInitialized
	}
	return s.typ == Overridable && s.overrideActive, nil
}

// ArmJumpDispatch registers d. The dispatcher's dynamic type must be
// comparable.
func (s *Source) ArmJumpDispatch(th JumpThreshold, d JumpDispatcher) error {
	if d == nil {
		return newError(StatusInvalidArgument, "jump dispatcher is nil")
	}
	if err := th.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.validLocked() {
		return ErrNotInitialized
	}
	if _, exists := s.entries[d]; exists {
		return ErrAlreadyRegistered
	}

	e := &jumpEntry{dispatcher: d, threshold: th}
	e.armed.Store(true)
	s.entries[d] = e
	return nil
}

// DisarmJumpDispatch removes d. A jump that begins after it returns does
// not see d. A jump already in progress on another goroutine may have
// passed d's armed check and still make that one call; it runs to
// completion.
func (s *Source) DisarmJumpDispatch(d JumpDispatcher) error {
	if d == nil {
		return newError(StatusInvalidArgument, "jump dispatcher is nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.validLocked() {
		return ErrNotInitialized
	}
	e, ok := s.entries[d]
	if !ok {
		return ErrNotFound
	}

	e.armed.Store(false)
	delete(s.entries, d)
	return nil
}

// ArmedCount returns the number of armed dispatchers.
func (s *Source) ArmedCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// EnableOverride hands the source over to override time. Enabling an
// already active override is a no-op and dispatches nothing.
func (s *Source) EnableOverride() error {
	return s.toggleOverride(true)
}

// DisableOverride hands the source back to system time.
func (s *Source) DisableOverride() error {
	return s.toggleOverride(false)
}

func (s *Source) toggleOverride(enable bool) error {
	s.jumpMu.Lock()
	defer s.jumpMu.Unlock()

	s.mu.RLock()
	err := s.checkOverridableLocked()
	active := s.overrideActive
	s.mu.RUnlock()

	if err != nil {
		return err
	}
	if active == enable {
		return nil
	}

	change := OverrideDeactivated
	if enable {
		change = OverrideActivated
	}

	s.runJump(TimeJump{Delta: 0, Change: change}, func() {
		s.overrideActive = enable
	})
	return nil
}

// SetOverrideTime stores the override time in nanoseconds. While the
// override is active the change is dispatched as a jump.
func (s *Source) SetOverrideTime(ns int64) error {
	s.jumpMu.Lock()
	defer s.jumpMu.Unlock()

	s.mu.Lock()
	if err := s.checkOverridableLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	if !s.overrideActive {
		s.overrideTime = ns
		s.mu.Unlock()
		return nil
	}
	delta := time.Duration(ns - s.overrideTime)
	s.mu.Unlock()

	s.runJump(TimeJump{Delta: delta, Change: NoChange}, func() {
		s.overrideTime = ns
	})
	return nil
}

// StepOverride moves the override time by d.
func (s *Source) StepOverride(d time.Duration) error {
	current, err := s.OverrideTime()
	if err != nil {
		return err
	}
	return s.SetOverrideTime(current + int64(d))
}

// OverrideTime returns the stored override time in nanoseconds.
func (s *Source) OverrideTime() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkOverridableLocked(); err != nil {
		return 0, err
	}
	return s.overrideTime, nil
}

func (s *Source) checkOverridableLocked() error {
	if !s.validLocked() {
		return ErrNotInitialized
	}
	if s.typ != Overridable {
		return newError(StatusWrongType, "source %s cannot be overridden", s.typ)
	}
	return nil
}

// runJump delivers one jump. Must be called with jumpMu held and mu not
// held. apply runs under the write lock between the two phases.
func (s *Source) runJump(jump TimeJump, apply func()) {
	s.mu.RLock()
	entries := make([]*jumpEntry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	for _, e := range entries {
		if e.armed.Load() {
			e.dispatcher.DispatchJump(jump, true)
		}
	}

	if apply != nil {
		s.mu.Lock()
		apply()
		s.mu.Unlock()
	}

	for _, e := range entries {
		if e.armed.Load() && e.threshold.Qualifies(jump) {
			e.dispatcher.DispatchJump(jump, false)
		}
	}
}
