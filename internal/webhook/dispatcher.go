package webhook

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Dispatcher configuration defaults.
const (
	// DefaultQueueSize bounds the number of pending updates.
	DefaultQueueSize = 64
	// DefaultWorkerCount is the number of delivery workers.
	DefaultWorkerCount = 2
	// DefaultMaxAttempts bounds delivery attempts per update.
	DefaultMaxAttempts = 3
	// DefaultBaseBackoff is the first retry delay; it doubles per attempt.
	DefaultBaseBackoff = 10 * time.Second
)

// DispatcherOpts holds configuration options for the dispatcher.
type DispatcherOpts struct {
	QueueSize   int
	Workers     int
	MaxAttempts int
	BaseBackoff time.Duration
}

// DispatcherOption defines a configuration option for the dispatcher.
type DispatcherOption func(*DispatcherOpts)

// WithQueueSize sets the pending-update queue capacity.
func WithQueueSize(n int) DispatcherOption {
	return func(o *DispatcherOpts) { o.QueueSize = n }
}

// WithWorkers sets the number of delivery workers.
func WithWorkers(n int) DispatcherOption {
	return func(o *DispatcherOpts) { o.Workers = n }
}

// WithMaxAttempts sets the per-update attempt bound.
func WithMaxAttempts(n int) DispatcherOption {
	return func(o *DispatcherOpts) { o.MaxAttempts = n }
}

// WithBaseBackoff sets the initial retry delay.
func WithBaseBackoff(d time.Duration) DispatcherOption {
	return func(o *DispatcherOpts) { o.BaseBackoff = d }
}

// update is one queued delivery.
type update struct {
	linkID string
	fields Fields
}

// Stats is a snapshot of dispatcher counters.
type Stats struct {
	Enqueued int64 `json:"enqueued"`
	Sent     int64 `json:"sent"`
	Failed   int64 `json:"failed"`
	Dropped  int64 `json:"dropped"`
}

// Dispatcher delivers updates through a bounded queue consumed by a small
// worker pool. Delivery failures never propagate to the enqueuing caller;
// they are retried with exponential backoff while the client reports the
// failure as retryable, then counted and dropped.
type Dispatcher struct {
	client      *Client
	updates     chan update
	wg          sync.WaitGroup
	stopOnce    sync.Once
	workers     int
	maxAttempts int
	baseBackoff time.Duration

	enqueued atomic.Int64
	sent     atomic.Int64
	failed   atomic.Int64
	dropped  atomic.Int64
}

// NewDispatcher creates a dispatcher over the given client and starts its
// workers.
func NewDispatcher(client *Client, opts ...DispatcherOption) *Dispatcher {
	cfg := DispatcherOpts{
		QueueSize:   DefaultQueueSize,
		Workers:     DefaultWorkerCount,
		MaxAttempts: DefaultMaxAttempts,
		BaseBackoff: DefaultBaseBackoff,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkerCount
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = DefaultBaseBackoff
	}

	d := &Dispatcher{
		client:      client,
		updates:     make(chan update, cfg.QueueSize),
		workers:     cfg.Workers,
		maxAttempts: cfg.MaxAttempts,
		baseBackoff: cfg.BaseBackoff,
	}

	slog.Debug("Dispatcher starting", "workers", cfg.Workers, "queueSize", cfg.QueueSize, "maxAttempts", cfg.MaxAttempts)
	for i := 0; i < cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Enqueue schedules a detached update for the linked record. It never
// blocks: when the queue is full the update is dropped and counted, keeping
// best-effort semantics (the triggering operation already succeeded).
// Returns false when the update was dropped.
func (d *Dispatcher) Enqueue(linkID string, fields Fields) bool {
	select {
	case d.updates <- update{linkID: linkID, fields: fields}:
		d.enqueued.Add(1)
		slog.Debug("Dispatcher.Enqueue: update queued", "linkID", linkID)
		return true
	default:
		d.dropped.Add(1)
		slog.Warn("Dispatcher.Enqueue: queue full, update dropped", "linkID", linkID)
		return false
	}
}

// Stop drains the queue and waits for in-flight deliveries to finish.
// Safe to call more than once.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.updates)
	})
	d.wg.Wait()
	slog.Info("Dispatcher stopped", "sent", d.sent.Load(), "failed", d.failed.Load(), "dropped", d.dropped.Load())
}

// Stats returns a snapshot of the dispatcher counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Enqueued: d.enqueued.Load(),
		Sent:     d.sent.Load(),
		Failed:   d.failed.Load(),
		Dropped:  d.dropped.Load(),
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for u := range d.updates {
		d.deliver(u)
	}
}

// deliver attempts one update with bounded retries. Exponential backoff:
// base, 2*base, 4*base, ...
func (d *Dispatcher) deliver(u update) {
	for attempt := 1; ; attempt++ {
		res := d.client.PushUpdate(context.Background(), u.linkID, u.fields)
		if res.Success {
			d.sent.Add(1)
			slog.Debug("Dispatcher.deliver: update sent", "linkID", u.linkID, "attempt", attempt)
			return
		}
		if !res.RetryRecommended || attempt >= d.maxAttempts {
			d.failed.Add(1)
			slog.Error("Dispatcher.deliver: update failed permanently",
				"linkID", u.linkID, "attempts", attempt, "error", res.Err)
			return
		}
		backoff := d.baseBackoff * time.Duration(1<<(attempt-1))
		slog.Warn("Dispatcher.deliver: update failed, retrying",
			"linkID", u.linkID, "attempt", attempt, "backoff", backoff, "error", res.Err)
		time.Sleep(backoff)
	}
}
