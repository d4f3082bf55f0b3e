package scenarios

import (
	"context"
	"time"

	"github.com/BYTE-6D65/jumpclock/cmd/jump-scenarios/framework"
	"github.com/BYTE-6D65/jumpclock/pkg/clock"
)

const categoryReads = "Clock Read Tests"

// SteadyMonotonic validates successive steady reads never decrease.
//
// Pass Criteria:
//   - 100,000 successive Now() calls succeed
//   - No read is earlier than the one before it
type SteadyMonotonic struct {
	*framework.BaseTestCase
}

// NewSteadyMonotonic creates a new scenario instance.
func NewSteadyMonotonic() framework.TestCase {
	return &SteadyMonotonic{
		BaseTestCase: framework.NewBaseTestCase(
			"1.1: Steady Clock Is Monotonic",
			categoryReads,
			"Successive steady reads never go backwards",
			clock.Steady,
		),
	}
}

func (s *SteadyMonotonic) Run(ctx context.Context) error {
	const reads = 100_000

	prev, err := s.Clock().Now()
	if err != nil {
		return err
	}

	regressions := 0
	for i := 0; i < reads; i++ {
		if i%10_000 == 0 && ctx.Err() != nil {
			return ctx.Err()
		}
		now, err := s.Clock().Now()
		if err != nil {
			return err
		}
		if now.Before(prev) {
			regressions++
		}
		prev = now
	}

	s.Metric("reads", reads)
	framework.AssertCountEquals(s.BaseTestCase, "No backwards steps", 0, regressions)
	return nil
}

// SystemElapsed validates wall time advances with real time.
//
// Pass Criteria:
//   - Two reads 10ms apart differ by 10ms, within scheduling tolerance
type SystemElapsed struct {
	*framework.BaseTestCase
}

// NewSystemElapsed creates a new scenario instance.
func NewSystemElapsed() framework.TestCase {
	return &SystemElapsed{
		BaseTestCase: framework.NewBaseTestCase(
			"1.2: System Clock Tracks Real Time",
			categoryReads,
			"Two system reads 10ms apart differ by about 10ms",
			clock.System,
		),
	}
}

func (s *SystemElapsed) Run(ctx context.Context) error {
	start, err := s.Clock().Now()
	if err != nil {
		return err
	}

	select {
	case <-time.After(10 * time.Millisecond):
	case <-ctx.Done():
		return ctx.Err()
	}

	elapsed, err := s.Clock().Since(start)
	if err != nil {
		return err
	}

	s.Metric("elapsed", elapsed.String())
	framework.AssertDurationInRange(s.BaseTestCase, "Elapsed about 10ms", 10*time.Millisecond, 60*time.Millisecond, elapsed)
	return nil
}
