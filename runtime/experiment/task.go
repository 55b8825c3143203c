package experiment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/anotherai/gateway/runtime/apierror"
	"github.com/anotherai/gateway/runtime/domain"
	"github.com/anotherai/gateway/runtime/model"
	"github.com/anotherai/gateway/runtime/runner"
)

// inputStore is the subset of runtime/store/relational.Store needed to
// rehydrate a registered input/version pair before running it.
type inputStore interface {
	GetInput(ctx context.Context, tenantUID int64, id string) (domain.Input, error)
	GetVersion(ctx context.Context, tenantUID int64, id string) (domain.Version, error)
}

// completionRunner is the subset of runtime/runner.Runner the
// StartExperimentCompletionEvent task drives.
type completionRunner interface {
	Complete(ctx context.Context, req *runner.Request) (*domain.AgentCompletion, error)
}

// StartExperimentCompletionPayload is the eventbus.Event payload published
// to run one (input, version) cell of an experiment.
type StartExperimentCompletionPayload struct {
	TenantUID    int64
	ExperimentID string
	InputID      string
	VersionID    string
}

// RunStartedCompletion implements the StartExperimentCompletionEvent task
// (spec §4.4): it reserves the cell, runs the completion, and records its
// output, so a crash between any two steps is safely retried — the
// reservation and the output write are each idempotent on their own.
func (s *Service) RunStartedCompletion(ctx context.Context, inputs inputStore, run completionRunner, payload StartExperimentCompletionPayload) error {
	if err := s.StartCompletion(ctx, payload.TenantUID, payload.ExperimentID, payload.InputID, payload.VersionID); err != nil {
		if isDuplicate(err) {
			return nil
		}
		return err
	}

	in, err := inputs.GetInput(ctx, payload.TenantUID, payload.InputID)
	if err != nil {
		return err
	}
	version, err := inputs.GetVersion(ctx, payload.TenantUID, payload.VersionID)
	if err != nil {
		return err
	}
	messages, err := mapsToMessages(in.Messages)
	if err != nil {
		return apierror.Wrap(apierror.KindInternal, "rehydrate experiment input messages", err)
	}

	// Tools is deliberately left unset: a stored Version only retains its
	// tools' names (for content-hash identity), not their full schemas, so
	// an experiment replay of a tool-using agent cannot reconstruct
	// ToolDefinitions from the Version alone. Tool-using agents are run
	// through the Completion Runner directly, where the caller still holds
	// the full definitions; only their names are preserved for experiments.
	req := &runner.Request{
		AgentID:         in.AgentID,
		Model:           version.Model,
		Messages:        messages,
		Variables:       in.Variables,
		Temperature:     version.Temperature,
		TopP:            version.TopP,
		MaxTokens:       version.MaxTokens,
		ToolChoice:      version.ToolChoice,
		ResponseSchema:  version.ResponseSchema,
		ReasoningEffort: version.ReasoningEffort,
		ReasoningBudget: version.ReasoningBudget,
		Source:          domain.SourceAPI,
		TenantUID:       payload.TenantUID,
	}

	completion, err := run.Complete(ctx, req)
	if err != nil {
		return err
	}

	return s.AddCompletionOutput(ctx, payload.TenantUID, payload.ExperimentID, payload.InputID, payload.VersionID,
		completion.ID, completion.CostUSD, completion.DurationSeconds)
}

// isDuplicate reports whether err is an apierror.KindDuplicateValue, the
// outcome of an at-least-once redelivery landing on an already-reserved
// cell rather than a genuine failure.
func isDuplicate(err error) bool {
	var apiErr *apierror.Error
	return errors.As(err, &apiErr) && apiErr.Kind == apierror.KindDuplicateValue
}

// mapsToMessages reconstructs typed model messages from the generic map
// shape domain.Input.Messages stores, the inverse of
// runtime/runner.messagesToMaps: round-tripping through Message's own JSON
// codec so the discriminated Part union is rebuilt correctly.
func mapsToMessages(maps []map[string]any) ([]*model.Message, error) {
	if len(maps) == 0 {
		return nil, nil
	}
	out := make([]*model.Message, len(maps))
	for i, m := range maps {
		raw, err := json.Marshal(m)
		if err != nil {
			return nil, fmt.Errorf("marshal message[%d]: %w", i, err)
		}
		var msg model.Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, fmt.Errorf("unmarshal message[%d]: %w", i, err)
		}
		out[i] = &msg
	}
	return out, nil
}
