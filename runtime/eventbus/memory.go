package eventbus

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/anotherai/gateway/runtime/apierror"
	"github.com/anotherai/gateway/runtime/telemetry"
)

const defaultRetryBudget = 3

// MemoryBrokerOptions configures a MemoryBroker. All fields are optional.
type MemoryBrokerOptions struct {
	// Workers is the number of goroutines draining the queue. Defaults to 4.
	Workers int

	// QueueSize bounds the number of events buffered before Publish blocks.
	// Defaults to 256.
	QueueSize int

	// RetryBudget is the number of additional attempts after the first
	// failure. Defaults to 3, per spec §4.4.
	RetryBudget int

	Logger  telemetry.Logger
	Metrics telemetry.Metrics

	// NewBackOff builds the retry policy for one task invocation. Defaults
	// to backoff.NewExponentialBackOff; tests substitute a faster policy
	// (e.g. backoff.NewConstantBackOff) to avoid waiting out real delays.
	NewBackOff func() backoff.BackOff
}

type taskEntry struct {
	name string
	fn   TaskFunc
	opts TaskOptions
}

// MemoryBroker is the in-process Broker used when no external broker URL is
// configured: a buffered channel feeds a fixed pool of worker goroutines,
// and each task invocation is wrapped in an exponential-backoff retry loop.
type MemoryBroker struct {
	mu    sync.RWMutex
	tasks map[EventType][]taskEntry

	queue      chan Event
	wg         sync.WaitGroup
	logger     telemetry.Logger
	metrics    telemetry.Metrics
	budget     uint64
	newBackOff func() backoff.BackOff
}

// NewMemoryBroker starts opts.Workers worker goroutines and returns a ready
// MemoryBroker. Call Close to drain and stop them.
func NewMemoryBroker(opts MemoryBrokerOptions) *MemoryBroker {
	workers := opts.Workers
	if workers <= 0 {
		workers = 4
	}
	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	budget := opts.RetryBudget
	if budget <= 0 {
		budget = defaultRetryBudget
	}
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	newBackOff := opts.NewBackOff
	if newBackOff == nil {
		newBackOff = func() backoff.BackOff { return backoff.NewExponentialBackOff() }
	}

	b := &MemoryBroker{
		tasks:      make(map[EventType][]taskEntry),
		queue:      make(chan Event, queueSize),
		logger:     logger,
		metrics:    metrics,
		budget:     uint64(budget),
		newBackOff: newBackOff,
	}
	for i := 0; i < workers; i++ {
		b.wg.Add(1)
		go b.drain()
	}
	return b
}

func (b *MemoryBroker) RegisterTask(name string, eventType EventType, fn TaskFunc, opts TaskOptions) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tasks[eventType] = append(b.tasks[eventType], taskEntry{name: name, fn: fn, opts: opts})
}

func (b *MemoryBroker) Publish(ctx context.Context, event Event) error {
	select {
	case b.queue <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *MemoryBroker) Close(ctx context.Context) error {
	close(b.queue)
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *MemoryBroker) drain() {
	defer b.wg.Done()
	for event := range b.queue {
		b.mu.RLock()
		entries := append([]taskEntry(nil), b.tasks[event.Type]...)
		b.mu.RUnlock()
		for _, entry := range entries {
			b.runTask(context.Background(), entry, event)
		}
	}
}

// runTask invokes entry.fn with exponential backoff up to the broker's
// retry budget, skipping retries entirely for fatal failures (spec §4.4's
// "middleware separates fatal from retryable failures").
func (b *MemoryBroker) runTask(ctx context.Context, entry taskEntry, event Event) {
	bo := backoff.WithContext(backoff.WithMaxRetries(b.newBackOff(), b.budget), ctx)

	failed := false
	op := func() error {
		start := time.Now()
		err := entry.fn(ctx, event)
		b.metrics.RecordTimer("job_execution_time", time.Since(start),
			"task_name", entry.name, "error", strconv.FormatBool(err != nil))
		if err == nil {
			return nil
		}
		failed = true
		if entry.opts.Fatal || isFatal(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, _ time.Duration) {
		b.metrics.IncCounter("job_retry", 1, "task_name", entry.name)
	}

	if err := backoff.RetryNotify(op, bo, notify); err != nil {
		b.logger.Error(ctx, "task failed", "task_name", entry.name, "event_type", string(event.Type), "error", err)
		return
	}
	if failed {
		b.logger.Info(ctx, "task recovered after retry", "task_name", entry.name, "event_type", string(event.Type))
	}
}

func isFatal(err error) bool {
	var apiErr *apierror.Error
	if errors.As(err, &apiErr) {
		return apiErr.Fatal
	}
	return false
}
