package awards

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/awebisam/chemezy/internal/metrics"
)

const (
	defaultQueueSize   = 256
	defaultWorkers     = 2
	defaultEvalTimeout = 10 * time.Second
)

// Dispatcher decouples award evaluation from the operations that
// trigger it. Enqueue never blocks: when the queue is full the event is
// dropped and counted, and a later event for the same user heals the
// gap because evaluation recomputes from current statistics.
type Dispatcher struct {
	engine  *Engine
	logger  *slog.Logger
	metrics *metrics.Metrics

	queue   chan Event
	workers int
	timeout time.Duration

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithQueueSize sets the event buffer size.
func WithQueueSize(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queue = make(chan Event, n)
		}
	}
}

// WithWorkers sets the number of evaluation goroutines.
func WithWorkers(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithDispatcherMetrics wires queue metrics.
func WithDispatcherMetrics(m *metrics.Metrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithEvalTimeout bounds each evaluation run.
func WithEvalTimeout(t time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if t > 0 {
			d.timeout = t
		}
	}
}

// NewDispatcher creates a dispatcher for the given engine.
func NewDispatcher(engine *Engine, logger *slog.Logger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		engine:  engine,
		logger:  logger.With(slog.String("component", "award_dispatcher")),
		queue:   make(chan Event, defaultQueueSize),
		workers: defaultWorkers,
		timeout: defaultEvalTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start launches the worker goroutines.
func (d *Dispatcher) Start() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.run()
	}
}

// Stop closes the queue, drains remaining events, and waits for the
// workers to finish.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	d.wg.Wait()
}

// Enqueue submits an event for evaluation without blocking. Returns
// false when the event was dropped (queue full or dispatcher stopped).
func (d *Dispatcher) Enqueue(evt Event) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}
	select {
	case d.queue <- evt:
		if d.metrics != nil {
			d.metrics.EventQueueDepth.Set(float64(len(d.queue)))
		}
		return true
	default:
		d.logger.Warn("award event dropped, queue full",
			slog.String("kind", evt.Kind),
			slog.Int64("user_id", evt.UserID),
		)
		if d.metrics != nil {
			d.metrics.RecordQueueDrop()
		}
		return false
	}
}

// NotifyReaction enqueues an evaluation event for a resolved reaction,
// carrying its complexity for event-scoped criteria.
func (d *Dispatcher) NotifyReaction(userID int64, cacheKey string, complexity float64) {
	d.Enqueue(Event{
		Kind:       EventReaction,
		UserID:     userID,
		CacheKey:   cacheKey,
		Complexity: complexity,
		OccurredAt: time.Now().UTC(),
	})
}

// NotifyDiscovery enqueues an evaluation event for a world-first
// discovery. Satisfies the reaction cache's notifier contract.
func (d *Dispatcher) NotifyDiscovery(userID int64, effects []string, cacheKey string) {
	d.Enqueue(Event{
		Kind:       EventDiscovery,
		UserID:     userID,
		Effects:    effects,
		CacheKey:   cacheKey,
		OccurredAt: time.Now().UTC(),
	})
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for evt := range d.queue {
		if d.metrics != nil {
			d.metrics.EventQueueDepth.Set(float64(len(d.queue)))
		}
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		_, err := d.engine.Evaluate(ctx, evt.UserID, &evt)
		cancel()
		if err != nil {
			d.logger.Error("award evaluation failed",
				slog.String("kind", evt.Kind),
				slog.Int64("user_id", evt.UserID),
				slog.String("error", err.Error()),
			)
		}
	}
}
