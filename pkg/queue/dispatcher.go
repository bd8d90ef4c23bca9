package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Dispatcher is a bounded, best-effort hand-off between request handlers and
// a Publisher. Send never blocks and never reports failure to the caller;
// drops and publish failures surface only through the hooks and logs.
type Dispatcher struct {
	publisher      Publisher
	jobs           chan LogJob
	publishTimeout time.Duration
	onDrop         func(LogJob)
	onFailure      func(LogJob, error)

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

type DispatcherConfig struct {
	Buffer         int
	Workers        int
	PublishTimeout time.Duration
	OnDrop         func(LogJob)
	OnFailure      func(LogJob, error)
}

// NewDispatcher starts the worker goroutines.
func NewDispatcher(publisher Publisher, cfg DispatcherConfig) *Dispatcher {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 1024
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 5 * time.Second
	}
	d := &Dispatcher{
		publisher:      publisher,
		jobs:           make(chan LogJob, cfg.Buffer),
		publishTimeout: cfg.PublishTimeout,
		onDrop:         cfg.OnDrop,
		onFailure:      cfg.OnFailure,
	}
	for i := 0; i < cfg.Workers; i++ {
		d.wg.Add(1)
		go d.run()
	}
	return d
}

// Send enqueues job if there is room; otherwise it is dropped.
func (d *Dispatcher) Send(job LogJob) {
	if d == nil {
		return
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.drop(job, "dispatcher closed")
		return
	}
	select {
	case d.jobs <- job:
	default:
		d.drop(job, "buffer full")
	}
}

func (d *Dispatcher) drop(job LogJob, reason string) {
	slog.Warn("side effect dropped", "kind", job.Kind, "tenant_id", job.TenantID, "reason", reason)
	if d.onDrop != nil {
		d.onDrop(job)
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for job := range d.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), d.publishTimeout)
		err := d.publisher.Publish(ctx, job)
		cancel()
		if err != nil {
			slog.Warn("side effect publish failed", "kind", job.Kind, "tenant_id", job.TenantID, "err", err)
			if d.onFailure != nil {
				d.onFailure(job, err)
			}
		}
	}
}

// Close stops accepting jobs and waits for buffered jobs to be published or
// ctx to expire.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.jobs)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
