package gateway

import (
	"context"
	"errors"
	"testing"

	"github.com/anotherai/gateway/runtime/model"
)

func TestRemoteClient_DelegatesToSuppliedFunctions(t *testing.T) {
	wantResp := &model.Response{Content: []model.Message{{Role: model.ConversationRoleAssistant}}}
	wantErr := errors.New("boom")

	c := NewRemoteClient(
		func(_ context.Context, _ *model.Request) (*model.Response, error) {
			return wantResp, nil
		},
		func(_ context.Context, _ *model.Request) (model.Streamer, error) {
			return nil, wantErr
		},
	)

	resp, err := c.Complete(context.Background(), &model.Request{})
	if err != nil || resp != wantResp {
		t.Fatalf("Complete: resp=%v err=%v", resp, err)
	}

	if _, err := c.Stream(context.Background(), &model.Request{}); !errors.Is(err, wantErr) {
		t.Fatalf("Stream: expected %v, got %v", wantErr, err)
	}
}
