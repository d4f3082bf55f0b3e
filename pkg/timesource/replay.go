package timesource

import (
	"sync"
	"time"
)

// Replay drives an overridable Source through a recorded sequence of
// deltas. Each Advance moves the override time by the next delta, which
// the Source dispatches as a jump while the override is active. Advance
// optionally sleeps in real time, scaled by the speed multiplier.
//
// Jump callbacks run while a step is applied and may read the replay's
// progress; they see the position before the step. They must not Load,
// Advance, or Reset the same replay.
type Replay struct {
	stepMu sync.Mutex // Serializes Load, Advance and Reset across their jump
	mu     sync.Mutex // Protects the fields below

	src     *Source
	start   int64           // Override time at Load
	deltas  []time.Duration // Pre-loaded deltas
	current int64           // Override time after the last Advance
	index   int             // Current position in deltas
	speed   float64         // Playback speed multiplier
	noSleep bool            // If true, skip real-time sleeping
}

// NewReplay binds a Replay to an initialized overridable source.
func NewReplay(src *Source) (*Replay, error) {
	if _, err := src.OverrideTime(); err != nil {
		return nil, err
	}
	return &Replay{
		src:   src,
		speed: 1.0,
	}, nil
}

// Load sets the override time to start and stores the deltas.
func (r *Replay) Load(start int64, deltas []time.Duration) error {
	r.stepMu.Lock()
	defer r.stepMu.Unlock()

	if err := r.src.SetOverrideTime(start); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.start = start
	r.current = start
	r.deltas = make([]time.Duration, len(deltas))
	copy(r.deltas, deltas)
	r.index = 0
	return nil
}

// Advance applies the next delta. It returns false when nothing is left.
func (r *Replay) Advance() (bool, error) {
	r.stepMu.Lock()

	r.mu.Lock()
	if r.index >= len(r.deltas) {
		r.mu.Unlock()
		r.stepMu.Unlock()
		return false, nil
	}
	delta := r.deltas[r.index]
	next := r.current + int64(delta)

	var sleepDuration time.Duration
	if !r.noSleep && r.speed > 0 && delta > 0 {
		sleepDuration = time.Duration(float64(delta) / r.speed)
	}
	r.mu.Unlock()

	// Callbacks run inside SetOverrideTime; mu stays free for them
	if err := r.src.SetOverrideTime(next); err != nil {
		r.stepMu.Unlock()
		return false, err
	}

	r.mu.Lock()
	r.current = next
	r.index++
	r.mu.Unlock()
	r.stepMu.Unlock()

	// Sleep outside the locks
	if sleepDuration > 0 {
		time.Sleep(sleepDuration)
	}
	return true, nil
}

// AdvanceAll applies every remaining delta.
func (r *Replay) AdvanceAll() error {
	for {
		more, err := r.Advance()
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
}

// SetSpeed sets the playback speed multiplier. Negative values reset it to 1.
func (r *Replay) SetSpeed(mult float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if mult < 0 {
		mult = 1.0
	}
	r.speed = mult
}

// SetNoSleep enables or disables real-time sleeping.
func (r *Replay) SetNoSleep(noSleep bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.noSleep = noSleep
}

// Reset rewinds to the start time, which is itself a jump while the
// override is active.
func (r *Replay) Reset() error {
	r.stepMu.Lock()
	defer r.stepMu.Unlock()

	r.mu.Lock()
	start := r.start
	r.mu.Unlock()

	if err := r.src.SetOverrideTime(start); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = start
	r.index = 0
	return nil
}

// HasNext returns true if there are more deltas to apply.
func (r *Replay) HasNext() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.index < len(r.deltas)
}

// CurrentIndex returns the position in the delta sequence.
func (r *Replay) CurrentIndex() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.index
}

// RemainingDeltas returns the number of deltas left to apply.
func (r *Replay) RemainingDeltas() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.deltas) - r.index
}
