package gateway

import (
	"context"

	"github.com/anotherai/gateway/runtime/model"
)

// RemoteClient implements model.Client using caller-supplied functions that
// operate on normalized runtime model types. This keeps the adapter agnostic
// of the concrete transport (HTTP/gRPC) and any generated transport code,
// matching the same model.Client seam every provider adapter satisfies.
type RemoteClient struct {
	doComplete func(ctx context.Context, req *model.Request) (*model.Response, error)
	doStream   func(ctx context.Context, req *model.Request) (model.Streamer, error)
}

// NewRemoteClient constructs a model.Client from caller-supplied functions.
func NewRemoteClient(
	complete func(ctx context.Context, req *model.Request) (*model.Response, error),
	stream func(ctx context.Context, req *model.Request) (model.Streamer, error),
) *RemoteClient {
	return &RemoteClient{doComplete: complete, doStream: stream}
}

func (c *RemoteClient) Complete(ctx context.Context, req *model.Request) (*model.Response, error) {
	return c.doComplete(ctx, req)
}

func (c *RemoteClient) Stream(ctx context.Context, req *model.Request) (model.Streamer, error) {
	return c.doStream(ctx, req)
}
