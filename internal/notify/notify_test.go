package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/fentz26/planwise/internal/models"
)

// fakeSink records delivered events. When gate is non-nil each Send waits on it.
type fakeSink struct {
	mu      sync.Mutex
	events  []Event
	err     error
	started chan struct{}
	gate    chan struct{}
}

func (f *fakeSink) Name() string { return "fake" }

func (f *fakeSink) Send(ctx context.Context, ev Event) error {
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return f.err
}

func (f *fakeSink) snapshot() []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Event(nil), f.events...)
}

func testTask() models.Task {
	return models.Task{ID: "t-1", OwnerID: "owner-1", Title: "Write report"}
}

func TestDispatcherDelivers(t *testing.T) {
	sink := &fakeSink{}
	d := NewDispatcher(Config{Enabled: true, QueueSize: 8, RatePerSec: 100}, zerolog.Nop(), nil, sink)
	d.Start(context.Background())

	start := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	old := models.Placement{Start: start, End: start.Add(time.Hour)}
	moved := models.Placement{Start: start.Add(2 * time.Hour), End: start.Add(3 * time.Hour)}
	d.OnRescheduled(testTask(), old, moved)
	d.OnDependencyCompleted(testTask(), []models.Task{{ID: "t-2"}, {ID: "t-3"}})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	d.Stop(ctx)

	events := sink.snapshot()
	if len(events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(events))
	}
	if events[0].Kind != EventRescheduled || !events[0].Current.Start.Equal(moved.Start) {
		t.Errorf("Unexpected first event: %+v", events[0])
	}
	if events[1].Kind != EventDependencyCompleted || len(events[1].DependentIDs) != 2 {
		t.Errorf("Unexpected second event: %+v", events[1])
	}
	if events[0].At.IsZero() {
		t.Error("Expected event timestamp to be set")
	}
}

func TestDispatcherQueueFull(t *testing.T) {
	sink := &fakeSink{started: make(chan struct{}, 1), gate: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, QueueSize: 1, RatePerSec: 100}, zerolog.Nop(), nil, sink)
	d.Start(context.Background())
	ctx := context.Background()

	if err := d.Notify(ctx, Event{Kind: EventRescheduled, TaskID: "a"}); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}
	<-sink.started

	if err := d.Notify(ctx, Event{Kind: EventRescheduled, TaskID: "b"}); err != nil {
		t.Fatalf("Expected second event to be queued, got %v", err)
	}
	if err := d.Notify(ctx, Event{Kind: EventRescheduled, TaskID: "c"}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("Expected ErrQueueFull, got %v", err)
	}

	close(sink.gate)
	go func() {
		for range sink.started {
		}
	}()
	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	d.Stop(stopCtx)
	close(sink.started)

	if got := len(sink.snapshot()); got != 2 {
		t.Errorf("Expected 2 delivered events, got %d", got)
	}
}

func TestDispatcherStoppedAndDisabled(t *testing.T) {
	d := NewDispatcher(Config{Enabled: true}, zerolog.Nop(), nil)
	if err := d.Notify(context.Background(), Event{}); !errors.Is(err, ErrStopped) {
		t.Errorf("Expected ErrStopped before Start, got %v", err)
	}

	off := NewDispatcher(Config{Enabled: false}, zerolog.Nop(), nil)
	off.Start(context.Background())
	if err := off.Notify(context.Background(), Event{}); !errors.Is(err, ErrDisabled) {
		t.Errorf("Expected ErrDisabled, got %v", err)
	}
	off.Stop(context.Background())
}

func TestDispatcherSinkFailureContinues(t *testing.T) {
	bad := &fakeSink{err: errors.New("unreachable")}
	good := &fakeSink{}
	d := NewDispatcher(Config{Enabled: true, RatePerSec: 100}, zerolog.Nop(), nil, bad, good)
	d.Start(context.Background())
	d.OnRescheduled(testTask(), models.Placement{}, models.Placement{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	d.Stop(ctx)

	if len(good.snapshot()) != 1 {
		t.Error("Expected the healthy sink to receive the event")
	}
}
