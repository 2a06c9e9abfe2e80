// Package worker drains the trigger queue and runs one reconciliation per
// trigger, never two at once.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/rollcall/internal/domain/model"
	"github.com/okian/rollcall/pkg/logger"
	"github.com/okian/rollcall/pkg/metrics"
)

// Trigger abstracts what the worker reads off the queue.
type Trigger = model.Trigger

// Runner performs one reconciliation for a trigger.
type Runner interface {
	RunTrigger(ctx context.Context, t Trigger) error
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, t Trigger) error

// RunTrigger calls f.
func (f RunnerFunc) RunTrigger(ctx context.Context, t Trigger) error { return f(ctx, t) }

// Queue defines how the worker receives triggers.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Trigger
}

// Worker processes triggers until stopped.
type Worker interface {
	// Run starts the worker loop until ctx is canceled, Shutdown is called
	// or the queue is closed.
	Run(ctx context.Context)

	// Shutdown stops the worker after the run in progress, if any.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker for a single consumer.
type InMemoryWorker struct {
	queue   Queue
	runner  Runner
	name    string
	timeout time.Duration

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

var _ Worker = (*InMemoryWorker)(nil)

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(queue Queue, runner Runner, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    queue,
		runner:   runner,
		name:     "worker",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	triggers := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case t, ok := <-triggers:
			if !ok {
				return
			}
			if err := w.process(ctx, t); err != nil {
				w.logger.Error(ctx, "reconciliation failed",
					logger.String("trigger_id", t.ID),
					logger.String("source", t.Source),
					logger.Error(err),
				)
			}
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	select {
	case <-w.shutdown:
	default:
		close(w.shutdown)
	}

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Done is closed when Run returns.
func (w *InMemoryWorker) Done() <-chan struct{} { return w.done }

func (w *InMemoryWorker) process(ctx context.Context, t Trigger) error {
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}
	w.logger.Debug(ctx, "trigger received",
		logger.String("trigger_id", t.ID),
		logger.String("source", t.Source),
		logger.Duration("waited", time.Since(t.At)),
	)
	if err := w.runner.RunTrigger(ctx, t); err != nil {
		metrics.RecordErrorByComponent("worker", "run_failed")
		return fmt.Errorf("trigger %s: %w", t.ID, err)
	}
	return nil
}
