package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"goa.design/pulse/streaming"

	"github.com/anotherai/gateway/runtime/telemetry"
)

const (
	// redisStreamName is the single Pulse stream every gateway process
	// publishes tasks onto. Every process reads it through the same fixed
	// consumer group (redisConsumerGroup), so each entry is delivered to
	// one process rather than copied to every process.
	redisStreamName = "anotherai:gateway:events"

	redisConsumerGroup = "anotherai_gateway"
)

// envelope is the JSON wire shape published to the Pulse stream, mirroring
// features/stream/pulse's Sink envelope (type discriminator + timestamp +
// JSON payload) but scoped to job events rather than session streams.
type envelope struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// RedisBrokerOptions configures a RedisBroker.
type RedisBrokerOptions struct {
	// Redis is the connection backing the Pulse stream. Required.
	Redis *redis.Client

	// RetryBudget is the number of additional attempts after the first
	// failure. Defaults to 3.
	RetryBudget int

	Logger  telemetry.Logger
	Metrics telemetry.Metrics
}

// RedisBroker is the Broker used when JOBS_BROKER_URL points at Redis. It
// publishes tasks onto a single goa.design/pulse stream and consumes them
// through a Pulse consumer group, so multiple gateway processes share one
// at-least-once queue instead of each running its own in-process workers.
type RedisBroker struct {
	mu    sync.RWMutex
	tasks map[EventType][]taskEntry

	stream  *streaming.Stream
	budget  uint64
	logger  telemetry.Logger
	metrics telemetry.Metrics

	cancel context.CancelFunc
	done   chan struct{}
}

// NewRedisBroker opens (creating if needed) the shared Pulse stream and
// starts consuming it under a fixed consumer-group name.
func NewRedisBroker(ctx context.Context, opts RedisBrokerOptions) (*RedisBroker, error) {
	if opts.Redis == nil {
		return nil, errors.New("eventbus: redis client is required")
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

	str, err := streaming.NewStream(redisStreamName, opts.Redis)
	if err != nil {
		return nil, fmt.Errorf("eventbus: create pulse stream: %w", err)
	}
	sink, err := str.NewSink(ctx, redisConsumerGroup)
	if err != nil {
		return nil, fmt.Errorf("eventbus: create pulse sink: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	b := &RedisBroker{
		tasks:   make(map[EventType][]taskEntry),
		stream:  str,
		budget:  uint64(budget),
		logger:  logger,
		metrics: metrics,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go b.consume(runCtx, sink)
	return b, nil
}

func (b *RedisBroker) RegisterTask(name string, eventType EventType, fn TaskFunc, opts TaskOptions) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tasks[eventType] = append(b.tasks[eventType], taskEntry{name: name, fn: fn, opts: opts})
}

func (b *RedisBroker) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("eventbus: marshal event payload: %w", err)
	}
	env := envelope{Type: event.Type, Timestamp: time.Now().UTC(), Payload: payload}
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("eventbus: marshal envelope: %w", err)
	}
	if _, err := b.stream.Add(ctx, string(event.Type), raw); err != nil {
		return fmt.Errorf("eventbus: publish: %w", err)
	}
	return nil
}

func (b *RedisBroker) Close(ctx context.Context) error {
	b.cancel()
	select {
	case <-b.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *RedisBroker) consume(ctx context.Context, sink *streaming.Sink) {
	defer close(b.done)
	defer sink.Close(context.Background())

	ch := sink.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			var env envelope
			if err := json.Unmarshal(evt.Payload, &env); err != nil {
				b.logger.Error(ctx, "eventbus: decode envelope", "error", err)
				_ = sink.Ack(ctx, evt)
				continue
			}

			b.mu.RLock()
			entries := append([]taskEntry(nil), b.tasks[env.Type]...)
			b.mu.RUnlock()

			event := Event{Type: env.Type, Payload: env.Payload}
			for _, entry := range entries {
				b.runTask(ctx, entry, event)
			}
			if err := sink.Ack(ctx, evt); err != nil {
				b.logger.Error(ctx, "eventbus: ack", "error", err)
			}
		}
	}
}

// runTask mirrors MemoryBroker.runTask's retry/fatal-classification policy,
// duplicated rather than shared because the two brokers run the loop on
// different goroutine topologies (fixed worker pool vs. one consume loop).
func (b *RedisBroker) runTask(ctx context.Context, entry taskEntry, event Event) {
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), b.budget), ctx)

	op := func() error {
		start := time.Now()
		err := entry.fn(ctx, event)
		b.metrics.RecordTimer("job_execution_time", time.Since(start),
			"task_name", entry.name, "error", strconv.FormatBool(err != nil))
		if err == nil {
			return nil
		}
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
	}
}
