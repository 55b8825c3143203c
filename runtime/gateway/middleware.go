package gateway

import (
	"context"
	"errors"
	"io"
	"strconv"
	"time"

	"github.com/anotherai/gateway/runtime/middleware"
	"github.com/anotherai/gateway/runtime/model"
	"github.com/anotherai/gateway/runtime/telemetry"
)

// handlerClient adapts a UnaryHandler/StreamHandler pair into a model.Client
// so middleware.AdaptiveRateLimiter.Middleware, which is shaped for
// model.Client, can wrap a Server's handler chain directly instead of the
// Completion Runner having to duplicate the limiter's wait/observe logic.
type handlerClient struct {
	unary  UnaryHandler
	stream StreamHandler
}

func (c *handlerClient) Complete(ctx context.Context, req *model.Request) (*model.Response, error) {
	return c.unary(ctx, req)
}

// Stream bridges the callback-style StreamHandler into a pull-style
// model.Streamer by running the handler in a goroutine that feeds a
// buffered channel, mirroring the channel-bridging shape the teacher uses to
// connect its onion handlers to a model.Streamer consumer.
func (c *handlerClient) Stream(ctx context.Context, req *model.Request) (model.Streamer, error) {
	ch := make(chan model.Chunk, 16)
	done := make(chan error, 1)
	go func() {
		err := c.stream(ctx, req, func(chunk model.Chunk) error {
			select {
			case ch <- chunk:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		close(ch)
		done <- err
	}()
	return &channelStreamer{ch: ch, done: done}, nil
}

type channelStreamer struct {
	ch   <-chan model.Chunk
	done <-chan error
	err  error
}

func (s *channelStreamer) Recv() (model.Chunk, error) {
	c, ok := <-s.ch
	if ok {
		return c, nil
	}
	if s.err == nil {
		s.err = <-s.done
	}
	if s.err != nil {
		return model.Chunk{}, s.err
	}
	return model.Chunk{}, io.EOF
}

func (*channelStreamer) Close() error             { return nil }
func (*channelStreamer) Metadata() map[string]any { return nil }

// RateLimit returns a unary/stream middleware pair that enforces the
// adaptive tokens-per-minute budget for the calling (tenant, provider) pair.
// Tenant and provider are read from the request context (see WithTenant,
// WithProvider); requests missing either are not limited, since they never
// reach the Completion Runner's provider-selection step.
func RateLimit(limiters *middleware.Limiters) (UnaryMiddleware, StreamMiddleware) {
	resolve := func(ctx context.Context) *middleware.AdaptiveRateLimiter {
		tenantUID, ok := TenantFromContext(ctx)
		if !ok {
			return nil
		}
		provider, ok := ProviderFromContext(ctx)
		if !ok {
			return nil
		}
		return limiters.ForTenantProvider(ctx, strconv.FormatInt(tenantUID, 10), provider)
	}

	unary := func(next UnaryHandler) UnaryHandler {
		return func(ctx context.Context, req *model.Request) (*model.Response, error) {
			limiter := resolve(ctx)
			if limiter == nil {
				return next(ctx, req)
			}
			limited := limiter.Middleware()(&handlerClient{unary: next})
			return limited.Complete(ctx, req)
		}
	}

	stream := func(next StreamHandler) StreamHandler {
		return func(ctx context.Context, req *model.Request, send func(model.Chunk) error) error {
			limiter := resolve(ctx)
			if limiter == nil {
				return next(ctx, req, send)
			}
			limited := limiter.Middleware()(&handlerClient{stream: next})
			st, err := limited.Stream(ctx, req)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()
			for {
				chunk, err := st.Recv()
				if err != nil {
					return err
				}
				if err := send(chunk); err != nil {
					return err
				}
			}
		}
	}

	return unary, stream
}

// Logging returns a unary/stream middleware pair that emits structured start
// and completion log entries around each request, tagged with the request's
// model/model class and, when present, the tenant and provider from context.
func Logging(logger telemetry.Logger) (UnaryMiddleware, StreamMiddleware) {
	unary := func(next UnaryHandler) UnaryHandler {
		return func(ctx context.Context, req *model.Request) (*model.Response, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			keyvals := append(requestKeyvals(ctx, req), "duration_ms", time.Since(start).Milliseconds())
			if err != nil {
				logger.Error(ctx, "completion failed", append(keyvals, "err", err)...)
				return nil, err
			}
			logger.Info(ctx, "completion succeeded", keyvals...)
			return resp, nil
		}
	}

	stream := func(next StreamHandler) StreamHandler {
		return func(ctx context.Context, req *model.Request, send func(model.Chunk) error) error {
			start := time.Now()
			err := next(ctx, req, send)
			keyvals := append(requestKeyvals(ctx, req), "duration_ms", time.Since(start).Milliseconds())
			if err != nil && !errors.Is(err, io.EOF) {
				logger.Error(ctx, "stream failed", append(keyvals, "err", err)...)
				return err
			}
			logger.Info(ctx, "stream completed", keyvals...)
			return err
		}
	}

	return unary, stream
}

// Tracing returns a unary/stream middleware pair that wraps each request in
// an OpenTelemetry span named after the selected provider, recording errors
// and the final status.
func Tracing(tracer telemetry.Tracer) (UnaryMiddleware, StreamMiddleware) {
	spanName := func(ctx context.Context) string {
		if provider, ok := ProviderFromContext(ctx); ok {
			return "gateway.complete." + provider
		}
		return "gateway.complete"
	}

	unary := func(next UnaryHandler) UnaryHandler {
		return func(ctx context.Context, req *model.Request) (*model.Response, error) {
			spanCtx, span := tracer.Start(ctx, spanName(ctx))
			defer span.End()
			resp, err := next(spanCtx, req)
			if err != nil {
				span.RecordError(err)
			}
			return resp, err
		}
	}

	stream := func(next StreamHandler) StreamHandler {
		return func(ctx context.Context, req *model.Request, send func(model.Chunk) error) error {
			spanCtx, span := tracer.Start(ctx, spanName(ctx)+".stream")
			defer span.End()
			err := next(spanCtx, req, send)
			if err != nil && !errors.Is(err, io.EOF) {
				span.RecordError(err)
			}
			return err
		}
	}

	return unary, stream
}

func requestKeyvals(ctx context.Context, req *model.Request) []any {
	keyvals := []any{"model", req.Model, "model_class", string(req.ModelClass)}
	if tenantUID, ok := TenantFromContext(ctx); ok {
		keyvals = append(keyvals, "tenant_uid", tenantUID)
	}
	if provider, ok := ProviderFromContext(ctx); ok {
		keyvals = append(keyvals, "provider", provider)
	}
	return keyvals
}
