package jumpfeed

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/BYTE-6D65/jumpclock/pkg/clock"
	"github.com/BYTE-6D65/jumpclock/pkg/event"
	"github.com/BYTE-6D65/jumpclock/pkg/timesource"
)

func setup(t *testing.T) (*clock.Clock, *timesource.Source, *event.InMemoryBus) {
	t.Helper()
	src := timesource.New()
	clk, err := clock.NewClock(clock.Overridable, clock.WithSource(src))
	if err != nil {
		t.Fatal(err)
	}
	bus := event.NewInMemoryBus(event.WithBufferSize(16), event.WithDropSlow(true))
	t.Cleanup(func() {
		bus.Close()
		clk.Close()
	})
	return clk, src, bus
}

func receive(t *testing.T, sub event.Subscription) event.Event {
	t.Helper()
	select {
	case evt := <-sub.Events():
		return evt
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for event")
		return event.Event{}
	}
}

func TestFeed_PublishesJumpPhases(t *testing.T) {
	clk, src, bus := setup(t)

	sub, err := bus.Subscribe(context.Background(), event.Filter{Types: []string{"clock.jump.*"}})
	if err != nil {
		t.Fatal(err)
	}

	feed, err := New(clk, bus, clock.JumpThreshold{OnSourceChange: true})
	if err != nil {
		t.Fatal(err)
	}
	defer feed.Close()

	if err := src.EnableOverride(); err != nil {
		t.Fatal(err)
	}

	pre := receive(t, sub)
	if pre.Type != TypePre || pre.Source != "clock:overridable" {
		t.Errorf("Got %s from %s, want %s from clock:overridable", pre.Type, pre.Source, TypePre)
	}
	if pre.Metadata["phase"] != "pre" {
		t.Errorf("phase = %q, want pre", pre.Metadata["phase"])
	}

	post := receive(t, sub)
	if post.Type != TypePost {
		t.Fatalf("Got %s, want %s", post.Type, TypePost)
	}

	var p Payload
	if err := post.DecodePayload(&p, event.JSONCodec{}); err != nil {
		t.Fatal(err)
	}
	if p.Change != "override_activated" || !p.SourceChanged || p.DeltaNs != 0 {
		t.Errorf("Unexpected payload %+v", p)
	}
	if p.ObservedAt.SourceType() != clock.Overridable {
		t.Errorf("ObservedAt tagged %s, want overridable", p.ObservedAt.SourceType())
	}

	if n := feed.Published(); n != 2 {
		t.Errorf("Published = %d, want 2", n)
	}
}

func TestFeed_ThresholdFiltersPost(t *testing.T) {
	clk, src, bus := setup(t)
	src.EnableOverride()

	sub, _ := bus.Subscribe(context.Background(), event.Filter{Types: []string{TypePost}})

	feed, err := New(clk, bus, clock.JumpThreshold{MinForward: time.Second, MinBackward: time.Second})
	if err != nil {
		t.Fatal(err)
	}
	defer feed.Close()

	src.StepOverride(100 * time.Millisecond)
	src.StepOverride(3 * time.Second)

	evt := receive(t, sub)
	var p Payload
	if err := evt.DecodePayload(&p, event.JSONCodec{}); err != nil {
		t.Fatal(err)
	}
	if p.DeltaNs != int64(3*time.Second) {
		t.Errorf("DeltaNs = %d, want 3s", p.DeltaNs)
	}

	select {
	case extra := <-sub.Events():
		t.Errorf("Unexpected extra post event %+v", extra)
	default:
	}
}

func TestFeed_CloseStopsPublishing(t *testing.T) {
	clk, src, bus := setup(t)
	src.EnableOverride()

	feed, err := New(clk, bus, clock.JumpThreshold{})
	if err != nil {
		t.Fatal(err)
	}

	if err := feed.Close(); err != nil {
		t.Fatal(err)
	}
	feed.Close() // idempotent

	if n := src.ArmedCount(); n != 0 {
		t.Errorf("ArmedCount = %d after Close, want 0", n)
	}

	src.StepOverride(time.Second)
	if n := feed.Published(); n != 0 {
		t.Errorf("Published = %d after Close, want 0", n)
	}

	// The caller's handle is unaffected
	if _, err := clk.Now(); err != nil {
		t.Errorf("Caller clock broken by feed Close: %v", err)
	}
}

func TestFeed_OutlivesCallerHandle(t *testing.T) {
	src := timesource.New()
	clk, err := clock.NewClock(clock.Overridable, clock.WithSource(src))
	if err != nil {
		t.Fatal(err)
	}
	bus := event.NewInMemoryBus(event.WithDropSlow(true))
	defer bus.Close()

	feed, err := New(clk, bus, clock.JumpThreshold{})
	if err != nil {
		t.Fatal(err)
	}

	clk.Close()
	if !src.Valid() {
		t.Fatal("Feed should keep the backend alive")
	}

	feed.Close()
	if src.Valid() {
		t.Error("Backend should be finalized once the feed closes")
	}
}

func TestFeed_PublishFailureReported(t *testing.T) {
	clk, src, bus := setup(t)
	src.EnableOverride()

	errBus := event.NewErrorBus(4)
	defer errBus.Close()
	diag, _ := errBus.Subscribe(context.Background())

	feed, err := New(clk, bus, clock.JumpThreshold{},
		WithErrorBus(errBus),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err != nil {
		t.Fatal(err)
	}
	defer feed.Close()

	bus.Close()
	src.StepOverride(time.Second)

	if n := feed.Failed(); n != 2 {
		t.Errorf("Failed = %d, want 2 (pre and post)", n)
	}

	select {
	case evt := <-diag.Events():
		if evt.Code != event.CodeFeedPublishFail {
			t.Errorf("Code = %s, want %s", evt.Code, event.CodeFeedPublishFail)
		}
	case <-time.After(time.Second):
		t.Fatal("Expected FEED_PUBLISH_FAIL diagnostic")
	}
}

func TestNew_Validation(t *testing.T) {
	clk, _, bus := setup(t)

	if _, err := New(nil, bus, clock.JumpThreshold{}); err != ErrNilClock {
		t.Errorf("Expected ErrNilClock, got %v", err)
	}
	if _, err := New(clk, nil, clock.JumpThreshold{}); err != ErrNilBus {
		t.Errorf("Expected ErrNilBus, got %v", err)
	}
	if _, err := New(clk, bus, clock.JumpThreshold{MinForward: -1}); err == nil {
		t.Error("Expected registration error for negative threshold")
	}
}
