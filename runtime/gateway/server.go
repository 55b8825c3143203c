package gateway

import (
	"context"

	"github.com/anotherai/gateway/runtime/model"
)

type (
	// Server adapts a model.Client into a composable request handler with
	// middleware support for both unary and streaming completions.
	//
	// Applications instantiate a Server with NewServer, configure it with a
	// provider client (WithProvider), and add middleware chains (WithUnary,
	// WithStream) for cross-cutting concerns such as adaptive rate limiting,
	// structured logging, or tracing. The resulting Server exposes Complete
	// and Stream methods the Completion Runner calls once it has selected a
	// provider and rendered a request.
	//
	// Middleware is applied in registration order: the first middleware
	// registered wraps all subsequent ones, forming an onion structure where
	// the innermost layer invokes the provider client directly.
	Server struct {
		provider model.Client
		unary    UnaryHandler
		stream   StreamHandler
	}

	// UnaryHandler processes a single unary model completion request and
	// returns the complete response.
	UnaryHandler func(ctx context.Context, req *model.Request) (*model.Response, error)

	// StreamHandler processes a streaming model completion request by
	// invoking send for each chunk produced by the model. send must be
	// called sequentially; returning an error from send aborts the stream.
	StreamHandler func(ctx context.Context, req *model.Request, send func(model.Chunk) error) error

	// UnaryMiddleware wraps a UnaryHandler to add behavior before, after, or
	// around the handler invocation.
	UnaryMiddleware func(next UnaryHandler) UnaryHandler

	// StreamMiddleware wraps a StreamHandler to add behavior around
	// streaming completions. The middleware must preserve the sequential
	// semantics of the send function.
	StreamMiddleware func(next StreamHandler) StreamHandler

	// Option configures a Server during construction.
	Option func(*serverConfig)

	serverConfig struct {
		provider model.Client
		unaryMW  []UnaryMiddleware
		streamMW []StreamMiddleware
	}
)

// WithProvider returns an Option that sets the underlying model client used
// by the Server to fulfill completion requests. Required; NewServer returns
// ErrProviderRequired if no provider is configured.
func WithProvider(p model.Client) Option {
	return func(c *serverConfig) { c.provider = p }
}

// WithUnary returns an Option that appends one or more UnaryMiddleware to the
// Server's unary completion chain, in registration order across all
// WithUnary calls, with the first middleware forming the outermost layer.
func WithUnary(mw ...UnaryMiddleware) Option {
	return func(c *serverConfig) { c.unaryMW = append(c.unaryMW, mw...) }
}

// WithStream returns an Option that appends one or more StreamMiddleware to
// the Server's streaming completion chain, same ordering rule as WithUnary.
func WithStream(mw ...StreamMiddleware) Option {
	return func(c *serverConfig) { c.streamMW = append(c.streamMW, mw...) }
}

// NewServer constructs a Server with the provided options. All behavior
// beyond invoking the provider is composed via middleware registered through
// WithUnary and WithStream; the Completion Runner's own rate-limit/log/trace
// layers are passed in this way rather than hardcoded here.
func NewServer(opts ...Option) (*Server, error) {
	var cfg serverConfig
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.provider == nil {
		return nil, ErrProviderRequired
	}
	baseUnary := func(ctx context.Context, req *model.Request) (*model.Response, error) {
		return cfg.provider.Complete(ctx, req)
	}
	baseStream := func(ctx context.Context, req *model.Request, send func(model.Chunk) error) error {
		st, err := cfg.provider.Stream(ctx, req)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()
		for {
			ch, err := st.Recv()
			if err != nil {
				return err
			}
			if err := send(ch); err != nil {
				return err
			}
		}
	}
	unary := baseUnary
	for i := len(cfg.unaryMW) - 1; i >= 0; i-- {
		unary = cfg.unaryMW[i](unary)
	}
	stream := baseStream
	for i := len(cfg.streamMW) - 1; i >= 0; i-- {
		stream = cfg.streamMW[i](stream)
	}
	return &Server{provider: cfg.provider, unary: unary, stream: stream}, nil
}

// Complete processes a unary model completion request through the configured
// middleware chain and returns the complete response.
func (s *Server) Complete(ctx context.Context, req *model.Request) (*model.Response, error) {
	return s.unary(ctx, req)
}

// Stream processes a streaming model completion request through the
// configured middleware chain, invoking send for each chunk produced.
func (s *Server) Stream(ctx context.Context, req *model.Request, send func(model.Chunk) error) error {
	return s.stream(ctx, req, send)
}
