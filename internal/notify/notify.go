// Package notify delivers scheduling events to sinks through an async queue.
//
// The Dispatcher never blocks its caller: events are enqueued without waiting and
// dropped when the queue is full. A single worker drains the queue in order,
// throttled by a token bucket, and fans each event out to every sink.
package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/fentz26/planwise/internal/metrics"
	"github.com/fentz26/planwise/internal/models"
)

var (
	ErrDisabled  = errors.New("notifier disabled")
	ErrQueueFull = errors.New("notifier queue full")
	ErrStopped   = errors.New("notifier stopped")
)

type Kind string

const (
	EventRescheduled         Kind = "task.rescheduled"
	EventDependencyCompleted Kind = "task.dependency_completed"
)

// Event is one notification.
type Event struct {
	Kind     Kind              `json:"kind"`
	OwnerID  string            `json:"owner_id"`
	TaskID   string            `json:"task_id"`
	Title    string            `json:"title"`
	Previous *models.Placement `json:"previous,omitempty"`
	Current  *models.Placement `json:"current,omitempty"`
	// DependentIDs lists tasks released by a completed predecessor.
	DependentIDs []string  `json:"dependent_ids,omitempty"`
	At           time.Time `json:"at"`
}

// Sink delivers events somewhere.
type Sink interface {
	Name() string
	Send(ctx context.Context, ev Event) error
}

type Config struct {
	Enabled    bool `yaml:"enabled"`
	QueueSize  int  `yaml:"queue_size"`
	RatePerSec int  `yaml:"rate_per_sec"`
}

const sendTimeout = 10 * time.Second

// Dispatcher is safe for concurrent use.
type Dispatcher struct {
	mu sync.Mutex

	log     zerolog.Logger
	metrics metrics.Recorder
	sinks   []Sink
	now     func() time.Time

	cfg     Config
	limiter *rate.Limiter

	accepting bool
	sendWG    sync.WaitGroup
	queue     chan Event

	runCtx    context.Context
	runCancel context.CancelFunc
	workerWG  sync.WaitGroup
}

func NewDispatcher(cfg Config, log zerolog.Logger, m metrics.Recorder, sinks ...Sink) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 5
	}
	if m == nil {
		m = metrics.Nop{}
	}
	return &Dispatcher{
		log:     log.With().Str("component", "notify").Logger(),
		metrics: m,
		sinks:   sinks,
		now:     time.Now,
		cfg:     cfg,
		// Burst equals the per-second rate so short spikes pass untouched.
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
	}
}

// Start launches the worker. It is a no-op when disabled or already running.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	if d.queue != nil || !d.cfg.Enabled {
		d.mu.Unlock()
		return
	}
	d.queue = make(chan Event, d.cfg.QueueSize)
	d.accepting = true
	d.runCtx, d.runCancel = context.WithCancel(ctx)
	q, runCtx := d.queue, d.runCtx
	d.mu.Unlock()

	d.workerWG.Add(1)
	go func() {
		defer d.workerWG.Done()
		d.workerLoop(runCtx, q)
	}()
}

// Stop stops intake and drains the queue until ctx is done.
func (d *Dispatcher) Stop(ctx context.Context) {
	d.mu.Lock()
	q, cancel := d.queue, d.runCancel
	if q == nil || !d.accepting {
		d.mu.Unlock()
		return
	}
	d.accepting = false
	d.mu.Unlock()

	// In-flight enqueues finish before the queue closes.
	d.sendWG.Wait()
	close(q)

	done := make(chan struct{})
	go func() {
		d.workerWG.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
	case <-done:
	}
	cancel()

	d.mu.Lock()
	d.queue = nil
	d.runCtx, d.runCancel = nil, nil
	d.mu.Unlock()
}

// Notify enqueues ev without blocking.
func (d *Dispatcher) Notify(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	d.mu.Lock()
	if !d.cfg.Enabled {
		d.mu.Unlock()
		return ErrDisabled
	}
	if !d.accepting || d.queue == nil {
		d.mu.Unlock()
		return ErrStopped
	}
	q := d.queue
	d.sendWG.Add(1)
	d.mu.Unlock()
	defer d.sendWG.Done()

	if ev.At.IsZero() {
		ev.At = d.now().UTC()
	}
	select {
	case q <- ev:
		return nil
	default:
		return ErrQueueFull
	}
}

// OnRescheduled reports that a persisted placement moved.
func (d *Dispatcher) OnRescheduled(task models.Task, old, current models.Placement) {
	d.fire(Event{
		Kind:     EventRescheduled,
		OwnerID:  task.OwnerID,
		TaskID:   task.ID,
		Title:    task.Title,
		Previous: &old,
		Current:  &current,
	})
}

// OnDependencyCompleted reports that task was completed while others waited on it.
func (d *Dispatcher) OnDependencyCompleted(task models.Task, dependents []models.Task) {
	ids := make([]string, 0, len(dependents))
	for _, t := range dependents {
		ids = append(ids, t.ID)
	}
	d.fire(Event{
		Kind:         EventDependencyCompleted,
		OwnerID:      task.OwnerID,
		TaskID:       task.ID,
		Title:        task.Title,
		DependentIDs: ids,
	})
}

func (d *Dispatcher) fire(ev Event) {
	err := d.Notify(context.Background(), ev)
	switch {
	case err == nil:
	case errors.Is(err, ErrDisabled):
	default:
		d.metrics.NotificationDropped()
		d.log.Debug().Err(err).Str("kind", string(ev.Kind)).Str("task", ev.TaskID).Msg("notification dropped")
	}
}

func (d *Dispatcher) workerLoop(runCtx context.Context, q <-chan Event) {
	for ev := range q {
		if runCtx.Err() != nil {
			return
		}
		if err := d.limiter.Wait(runCtx); err != nil {
			return
		}
		d.deliver(runCtx, ev)
	}
}

func (d *Dispatcher) deliver(runCtx context.Context, ev Event) {
	for _, s := range d.sinks {
		ctx, cancel := context.WithTimeout(runCtx, sendTimeout)
		err := s.Send(ctx, ev)
		cancel()
		if err != nil {
			d.metrics.NotificationFailed()
			d.log.Warn().Err(err).Str("sink", s.Name()).Str("task", ev.TaskID).Msg("notification failed")
			continue
		}
		d.metrics.NotificationSent()
	}
}
