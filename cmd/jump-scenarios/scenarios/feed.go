package scenarios

import (
	"context"
	"time"

	"github.com/BYTE-6D65/jumpclock/cmd/jump-scenarios/framework"
	"github.com/BYTE-6D65/jumpclock/pkg/clock"
	"github.com/BYTE-6D65/jumpclock/pkg/event"
	"github.com/BYTE-6D65/jumpclock/pkg/jumpfeed"
	"github.com/BYTE-6D65/jumpclock/pkg/timesource"
)

const categoryReplay = "Replay and Feed Tests"

// ReplayFeed validates a replayed delta sequence reaches a bus subscriber.
//
// Pass Criteria:
//   - Each delta at or above the threshold yields one clock.jump.post event
//   - Event payload deltas match the replayed deltas in order
type ReplayFeed struct {
	*framework.BaseTestCase
}

// NewReplayFeed creates a new scenario instance.
func NewReplayFeed() framework.TestCase {
	return &ReplayFeed{
		BaseTestCase: framework.NewBaseTestCase(
			"4.1: Replay Through Jump Feed",
			categoryReplay,
			"Replayed override steps are published as jump events on the bus",
			clock.Overridable,
		),
	}
}

func (s *ReplayFeed) Run(ctx context.Context) error {
	deltas := []time.Duration{time.Second, 10 * time.Millisecond, -2 * time.Second, time.Hour}
	threshold := clock.JumpThreshold{MinForward: 500 * time.Millisecond, MinBackward: 500 * time.Millisecond}
	want := []time.Duration{time.Second, -2 * time.Second, time.Hour}

	bus := event.NewInMemoryBus(event.WithBufferSize(16), event.WithDropSlow(true))
	defer bus.Close()

	sub, err := bus.Subscribe(ctx, event.Filter{Types: []string{jumpfeed.TypePost}})
	if err != nil {
		return err
	}

	feed, err := jumpfeed.New(s.Clock(), bus, threshold)
	if err != nil {
		return err
	}
	defer feed.Close()

	replay, err := timesource.NewReplay(s.Source())
	if err != nil {
		return err
	}
	replay.SetNoSleep(true)
	if err := replay.Load(0, deltas); err != nil {
		return err
	}
	if err := s.Source().EnableOverride(); err != nil {
		return err
	}
	if err := replay.AdvanceAll(); err != nil {
		return err
	}

	var got []time.Duration
	timeout := time.After(time.Second)
collect:
	for len(got) < len(want) {
		select {
		case evt := <-sub.Events():
			var p jumpfeed.Payload
			if err := evt.DecodePayload(&p, event.JSONCodec{}); err != nil {
				return err
			}
			got = append(got, time.Duration(p.DeltaNs))
		case <-timeout:
			break collect
		}
	}

	stats := bus.Stats()
	s.Metric("feed_published", feed.Published())
	s.Metric("bus_published", stats.Published)
	s.Metric("bus_dropped", stats.Dropped)

	framework.AssertCountEquals(s.BaseTestCase, "Post events received", len(want), len(got))
	for i := range want {
		if i >= len(got) {
			break
		}
		framework.AssertDurationEquals(s.BaseTestCase, "Replayed delta in order", want[i], got[i])
	}

	now, err := s.Clock().Now()
	if err != nil {
		return err
	}
	var total time.Duration
	for _, d := range deltas {
		total += d
	}
	framework.AssertDurationEquals(s.BaseTestCase, "Clock ends at sum of deltas", total, time.Duration(now.Nanoseconds()))
	return nil
}
