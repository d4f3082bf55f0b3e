package event

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNewInMemoryBus(t *testing.T) {
	bus := NewInMemoryBus()

	if bus.bufferSize != 64 {
		t.Errorf("Expected default buffer size 64, got %d", bus.bufferSize)
	}
	if bus.dropSlow {
		t.Error("Expected default dropSlow to be false")
	}

	bus = NewInMemoryBus(WithBufferSize(128), WithDropSlow(true), WithBufferSize(-1))
	if bus.bufferSize != 128 {
		t.Errorf("Expected buffer size 128, got %d", bus.bufferSize)
	}
	if !bus.dropSlow {
		t.Error("Expected dropSlow to be true")
	}
}

func TestFilter_Match(t *testing.T) {
	evt := Event{
		Type:     "clock.jump.post",
		Source:   "clock:overridable",
		Metadata: map[string]string{"phase": "post"},
	}

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"empty", Filter{}, true},
		{"exact type", Filter{Types: []string{"clock.jump.post"}}, true},
		{"wildcard type", Filter{Types: []string{"clock.jump.*"}}, true},
		{"other type", Filter{Types: []string{"clock.read"}}, false},
		{"any of types", Filter{Types: []string{"x", "clock.*.post"}}, true},
		{"source", Filter{Sources: []string{"clock:*"}}, true},
		{"wrong source", Filter{Sources: []string{"clock:system"}}, false},
		{"metadata", Filter{Metadata: map[string]string{"phase": "post"}}, true},
		{"wrong metadata", Filter{Metadata: map[string]string{"phase": "pre"}}, false},
		{"bad pattern", Filter{Types: []string{"["}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Match(evt); got != tt.want {
				t.Errorf("Match() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBus_PublishMatchesFilter(t *testing.T) {
	bus := NewInMemoryBus()
	defer bus.Close()

	ctx := context.Background()
	jumps, err := bus.Subscribe(ctx, Filter{Types: []string{"clock.jump.*"}})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	system, err := bus.Subscribe(ctx, Filter{Sources: []string{"clock:system"}})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if err := bus.Publish(ctx, Event{Type: "clock.jump.post", Source: "clock:overridable"}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case evt := <-jumps.Events():
		if evt.Type != "clock.jump.post" {
			t.Errorf("Unexpected event type %s", evt.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for matching event")
	}

	select {
	case evt := <-system.Events():
		t.Errorf("Source filter should have rejected %v", evt)
	default:
	}
}

func TestBus_SequenceNumbers(t *testing.T) {
	bus := NewInMemoryBus()
	defer bus.Close()

	ctx := context.Background()
	sub, _ := bus.Subscribe(ctx, Filter{Types: []string{"keep"}})

	_ = bus.Publish(ctx, Event{Type: "keep", Seq: 99})
	_ = bus.Publish(ctx, Event{Type: "skip"})
	_ = bus.Publish(ctx, Event{Type: "keep"})

	// Filtered events still consume a sequence number
	for _, want := range []uint64{1, 3} {
		select {
		case evt := <-sub.Events():
			if evt.Seq != want {
				t.Errorf("Expected seq %d, got %d", want, evt.Seq)
			}
		case <-time.After(time.Second):
			t.Fatal("Timed out waiting for event")
		}
	}

	if stats := bus.Stats(); stats.Published != 3 {
		t.Errorf("Expected 3 published, got %d", stats.Published)
	}
}

func TestBus_DropSlow(t *testing.T) {
	bus := NewInMemoryBus(WithBufferSize(1), WithDropSlow(true))
	defer bus.Close()

	ctx := context.Background()
	_, _ = bus.Subscribe(ctx, Filter{})

	for i := 0; i < 3; i++ {
		if err := bus.Publish(ctx, Event{Type: "clock.jump.pre"}); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}
	}

	if bus.DroppedCount() != 2 {
		t.Errorf("Expected 2 dropped events, got %d", bus.DroppedCount())
	}
}

func TestBus_BlockingPublishHonoursContext(t *testing.T) {
	bus := NewInMemoryBus(WithBufferSize(1))
	defer bus.Close()

	_, _ = bus.Subscribe(context.Background(), Filter{})
	_ = bus.Publish(context.Background(), Event{Type: "fill"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		_ = bus.Publish(ctx, Event{Type: "blocked"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish did not return after context deadline")
	}

	if bus.DroppedCount() != 1 {
		t.Errorf("Expected 1 dropped event, got %d", bus.DroppedCount())
	}
}

func TestBus_PublishExpiredContext(t *testing.T) {
	bus := NewInMemoryBus()
	defer bus.Close()

	_, _ = bus.Subscribe(context.Background(), Filter{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := bus.Publish(ctx, Event{Type: "late"}); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestBus_SubscriptionClose(t *testing.T) {
	bus := NewInMemoryBus()
	defer bus.Close()

	sub, _ := bus.Subscribe(context.Background(), Filter{})
	if n := bus.Stats().Subscribers; n != 1 {
		t.Fatalf("Expected 1 subscriber, got %d", n)
	}

	_ = sub.Close()
	_ = sub.Close()

	if n := bus.Stats().Subscribers; n != 0 {
		t.Errorf("Expected 0 subscribers, got %d", n)
	}
	if _, ok := <-sub.Events(); ok {
		t.Error("Channel should be closed")
	}
}

func TestBus_SubscriptionEndsWithContext(t *testing.T) {
	bus := NewInMemoryBus()
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	sub, err := bus.Subscribe(ctx, Filter{})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	cancel()

	select {
	case _, ok := <-sub.Events():
		if ok {
			t.Error("Expected closed channel, got an event")
		}
	case <-time.After(time.Second):
		t.Fatal("Subscription not closed after context cancel")
	}
	if n := bus.Stats().Subscribers; n != 0 {
		t.Errorf("Expected 0 subscribers, got %d", n)
	}
}

func TestBus_ClosedBus(t *testing.T) {
	bus := NewInMemoryBus()
	sub, _ := bus.Subscribe(context.Background(), Filter{})

	if err := bus.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := bus.Close(); err != nil {
		t.Fatalf("Second Close failed: %v", err)
	}

	if _, ok := <-sub.Events(); ok {
		t.Error("Subscription channel should be closed")
	}
	_ = sub.Close()

	if err := bus.Publish(context.Background(), Event{}); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
	if _, err := bus.Subscribe(context.Background(), Filter{}); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
}
