package timesource

import (
	"context"
	"time"
)

// stepDetector compares wall clock progress against monotonic progress
// between observations.
type stepDetector struct {
	wallNow   func() int64
	monoNow   func() time.Duration
	tolerance time.Duration

	lastWall int64
	lastMono time.Duration
}

func newStepDetector(wallNow func() int64, monoNow func() time.Duration, tolerance time.Duration) *stepDetector {
	return &stepDetector{
		wallNow:   wallNow,
		monoNow:   monoNow,
		tolerance: tolerance,
		lastWall:  wallNow(),
		lastMono:  monoNow(),
	}
}

// observe returns the wall clock step since the previous observation, if
// it reached the tolerance.
func (d *stepDetector) observe() (TimeJump, bool) {
	wall, mono := d.wallNow(), d.monoNow()
	drift := time.Duration(wall-d.lastWall) - (mono - d.lastMono)
	d.lastWall, d.lastMono = wall, mono

	if drift >= d.tolerance || -drift >= d.tolerance {
		return TimeJump{Delta: drift, Change: SystemNoChange}, true
	}
	return TimeJump{}, false
}

// StartJumpMonitor watches a system source for wall clock steps and
// dispatches each step of at least tolerance as a jump. The monitor runs
// until ctx is cancelled or the source is finalized.
func (s *Source) StartJumpMonitor(ctx context.Context, interval, tolerance time.Duration) error {
	if interval <= 0 {
		return newError(StatusInvalidArgument, "monitor interval must be positive, got %s", interval)
	}
	if tolerance <= 0 {
		return newError(StatusInvalidArgument, "monitor tolerance must be positive, got %s", tolerance)
	}

	s.mu.RLock()
	valid, typ := s.validLocked(), s.typ
	s.mu.RUnlock()

	if !valid {
		return ErrNotInitialized
	}
	if typ != System {
		return newError(StatusWrongType, "jump monitor needs a system source, got %s", typ)
	}
	if !s.monitorRunning.CompareAndSwap(false, true) {
		return newError(StatusError, "jump monitor already running")
	}

	detector := newStepDetector(s.wallNow, s.monoNow, tolerance)
	go s.runMonitor(ctx, interval, detector)
	return nil
}

func (s *Source) runMonitor(ctx context.Context, interval time.Duration, detector *stepDetector) {
	defer s.monitorRunning.Store(false)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if !s.Valid() {
			return
		}

		jump, stepped := detector.observe()
		if !stepped {
			continue
		}

		s.jumpMu.Lock()
		s.runJump(jump, nil)
		s.jumpMu.Unlock()
	}
}
