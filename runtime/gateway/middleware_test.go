package gateway

import (
	"context"
	"errors"
	"io"
	"testing"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/anotherai/gateway/runtime/middleware"
	"github.com/anotherai/gateway/runtime/model"
	"github.com/anotherai/gateway/runtime/telemetry"
)

func textRequest(text string) *model.Request {
	return &model.Request{
		Messages: []*model.Message{{
			Role:  model.ConversationRoleUser,
			Parts: []model.Part{model.TextPart{Text: text}},
		}},
	}
}

func TestRateLimit_PassesThroughWithoutTenantOrProvider(t *testing.T) {
	limiters := middleware.NewLimiters(nil, 60000, 60000)
	unaryMW, _ := RateLimit(limiters)

	called := false
	next := func(_ context.Context, _ *model.Request) (*model.Response, error) {
		called = true
		return &model.Response{}, nil
	}

	if _, err := unaryMW(next)(context.Background(), textRequest("hi")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("expected next handler to be invoked when context carries no tenant/provider")
	}
}

func TestRateLimit_WaitFailsOnCanceledContext(t *testing.T) {
	limiters := middleware.NewLimiters(nil, 60, 60)
	unaryMW, _ := RateLimit(limiters)

	called := false
	next := func(_ context.Context, _ *model.Request) (*model.Response, error) {
		called = true
		return &model.Response{}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ctx = WithTenant(ctx, 1)
	ctx = WithProvider(ctx, "openai")

	if _, err := unaryMW(next)(ctx, textRequest("hi")); err == nil {
		t.Fatal("expected error once the context is already canceled")
	}
	if called {
		t.Fatal("next must not run once the limiter wait fails")
	}
}

func TestRateLimit_StreamDrainsChunksInOrder(t *testing.T) {
	limiters := middleware.NewLimiters(nil, 6_000_000, 6_000_000)
	_, streamMW := RateLimit(limiters)

	chunks := []model.Chunk{
		{Type: model.ChunkTypeText},
		{Type: model.ChunkTypeStop, StopReason: "stop"},
	}
	next := func(_ context.Context, _ *model.Request, send func(model.Chunk) error) error {
		for _, c := range chunks {
			if err := send(c); err != nil {
				return err
			}
		}
		return io.EOF
	}

	ctx := WithProvider(WithTenant(context.Background(), 7), "anthropic")

	var got []model.Chunk
	err := streamMW(next)(ctx, textRequest("hi"), func(c model.Chunk) error {
		got = append(got, c)
		return nil
	})
	if !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
	if len(got) != len(chunks) {
		t.Fatalf("expected %d chunks, got %d", len(chunks), len(got))
	}
	for i, c := range got {
		if c.Type != chunks[i].Type {
			t.Fatalf("chunk %d type = %s, want %s", i, c.Type, chunks[i].Type)
		}
	}
}

type capturingLogger struct {
	infoCalls  int
	errorCalls int
	lastMsg    string
}

func (l *capturingLogger) Debug(context.Context, string, ...any) {}
func (l *capturingLogger) Info(_ context.Context, msg string, _ ...any) {
	l.infoCalls++
	l.lastMsg = msg
}
func (l *capturingLogger) Warn(context.Context, string, ...any) {}
func (l *capturingLogger) Error(_ context.Context, msg string, _ ...any) {
	l.errorCalls++
	l.lastMsg = msg
}

func TestLogging_RecordsSuccessAndFailure(t *testing.T) {
	logger := &capturingLogger{}
	unaryMW, streamMW := Logging(logger)

	okNext := func(_ context.Context, _ *model.Request) (*model.Response, error) {
		return &model.Response{}, nil
	}
	if _, err := unaryMW(okNext)(context.Background(), textRequest("hi")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if logger.infoCalls != 1 || logger.errorCalls != 0 {
		t.Fatalf("expected one info call, got info=%d error=%d", logger.infoCalls, logger.errorCalls)
	}

	failing := errors.New("boom")
	failNext := func(_ context.Context, _ *model.Request) (*model.Response, error) {
		return nil, failing
	}
	if _, err := unaryMW(failNext)(context.Background(), textRequest("hi")); !errors.Is(err, failing) {
		t.Fatalf("expected %v, got %v", failing, err)
	}
	if logger.errorCalls != 1 {
		t.Fatalf("expected one error call, got %d", logger.errorCalls)
	}

	logger2 := &capturingLogger{}
	_, streamMW = Logging(logger2)
	eofNext := func(_ context.Context, _ *model.Request, send func(model.Chunk) error) error {
		_ = send(model.Chunk{Type: model.ChunkTypeStop})
		return io.EOF
	}
	if err := streamMW(eofNext)(context.Background(), textRequest("hi"), func(model.Chunk) error { return nil }); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
	if logger2.infoCalls != 1 || logger2.errorCalls != 0 {
		t.Fatalf("expected stream EOF to log as success, got info=%d error=%d", logger2.infoCalls, logger2.errorCalls)
	}
}

type capturingTracer struct {
	spans []*capturingSpan
}

type capturingSpan struct {
	ended   bool
	errs    []error
	status  codes.Code
	message string
}

func (tr *capturingTracer) Start(ctx context.Context, _ string, _ ...trace.SpanStartOption) (context.Context, telemetry.Span) {
	span := &capturingSpan{}
	tr.spans = append(tr.spans, span)
	return ctx, span
}

func (tr *capturingTracer) Span(ctx context.Context) telemetry.Span {
	return &capturingSpan{}
}

func (s *capturingSpan) End(...trace.SpanEndOption) { s.ended = true }
func (s *capturingSpan) AddEvent(string, ...any)    {}
func (s *capturingSpan) SetStatus(code codes.Code, description string) {
	s.status = code
	s.message = description
}
func (s *capturingSpan) RecordError(err error, _ ...trace.EventOption) {
	s.errs = append(s.errs, err)
}

func TestTracing_RecordsErrorOnUnaryFailure(t *testing.T) {
	tracer := &capturingTracer{}
	unaryMW, _ := Tracing(tracer)

	failing := errors.New("boom")
	next := func(ctx context.Context, _ *model.Request) (*model.Response, error) {
		return nil, failing
	}

	if _, err := unaryMW(next)(context.Background(), textRequest("hi")); !errors.Is(err, failing) {
		t.Fatalf("expected %v, got %v", failing, err)
	}
	if len(tracer.spans) != 1 {
		t.Fatalf("expected one span, got %d", len(tracer.spans))
	}
	if len(tracer.spans[0].errs) != 1 {
		t.Fatal("expected the span to record the error")
	}
	if !tracer.spans[0].ended {
		t.Fatal("expected the span to be ended")
	}
}

func TestTracing_DoesNotRecordEOFAsStreamError(t *testing.T) {
	tracer := &capturingTracer{}
	_, streamMW := Tracing(tracer)

	next := func(ctx context.Context, _ *model.Request, send func(model.Chunk) error) error {
		return io.EOF
	}

	err := streamMW(next)(context.Background(), textRequest("hi"), func(model.Chunk) error { return nil })
	if !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
	if len(tracer.spans[0].errs) != 0 {
		t.Fatal("expected io.EOF to not be recorded as a span error")
	}
}

func TestTracing_StartsOneSpanPerCall(t *testing.T) {
	tracer := &capturingTracer{}
	unaryMW, _ := Tracing(tracer)
	next := func(ctx context.Context, _ *model.Request) (*model.Response, error) {
		return &model.Response{}, nil
	}
	_, _ = unaryMW(next)(context.Background(), textRequest("hi"))
	_, _ = unaryMW(next)(context.Background(), textRequest("hi"))
	if len(tracer.spans) != 2 {
		t.Fatalf("expected one span per call, got %d", len(tracer.spans))
	}
}
