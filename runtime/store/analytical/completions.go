package analytical

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/anotherai/gateway/runtime/apierror"
	"github.com/anotherai/gateway/runtime/domain"
)

// InsertCompletion appends c to the completions fact table. Completions are
// append-only; there is no update path. Called by the event router's
// persist-completion task handler (C8), never directly from the request
// path.
func (s *Store) InsertCompletion(ctx context.Context, c *domain.AgentCompletion) error {
	inputMessages, err := json.Marshal(c.Input.Messages)
	if err != nil {
		return apierror.Wrap(apierror.KindInternal, "marshal completion input messages", err)
	}
	inputVariables, err := json.Marshal(c.Input.Variables)
	if err != nil {
		return apierror.Wrap(apierror.KindInternal, "marshal completion input variables", err)
	}
	renderedMessages, err := json.Marshal(c.RenderedMessages)
	if err != nil {
		return apierror.Wrap(apierror.KindInternal, "marshal rendered messages", err)
	}
	var outputMessages []byte
	if c.Output.Messages != nil {
		if outputMessages, err = json.Marshal(c.Output.Messages); err != nil {
			return apierror.Wrap(apierror.KindInternal, "marshal output messages", err)
		}
	}
	traces, err := json.Marshal(c.Traces)
	if err != nil {
		return apierror.Wrap(apierror.KindInternal, "marshal completion traces", err)
	}
	metadata, err := json.Marshal(c.Metadata)
	if err != nil {
		return apierror.Wrap(apierror.KindInternal, "marshal completion metadata", err)
	}

	return s.withConn(WithTenant(ctx, c.TenantUID), func(conn connQuerier) error {
		_, err := conn.Exec(ctx, `
			INSERT INTO completions (tenant_uid, id, agent_id, input_id, version_id,
				input_messages, input_variables, input_preview, rendered_messages,
				output_messages, output_error, status, duration_seconds, cost_usd, traces,
				from_cache, source, preserve_credits, metadata, version_model, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`,
			c.TenantUID, c.ID, c.AgentID, c.Input.ID, c.Version.ID,
			inputMessages, inputVariables, c.Input.Preview, renderedMessages,
			outputMessages, c.Output.Error, string(c.Status), c.DurationSeconds, c.CostUSD, traces,
			c.FromCache, string(c.Source), c.PreserveCredits, metadata, c.Version.Model, c.CreatedAt())
		return err
	})
}

// GetCompletion fetches a single completion by id within tenantUID, for the
// GET /v1/completions/{id} endpoint (spec §6).
func (s *Store) GetCompletion(ctx context.Context, tenantUID int64, id uuid.UUID) (*domain.AgentCompletion, error) {
	var c domain.AgentCompletion
	var status, source string
	var inputMessages, inputVariables, renderedMessages, outputMessages, traces, metadata []byte
	err := s.withConn(WithTenant(ctx, tenantUID), func(conn connQuerier) error {
		row := conn.QueryRow(ctx, `
			SELECT id, tenant_uid, agent_id, input_id, input_messages, input_variables, input_preview,
				rendered_messages, output_messages, output_error, version_id, version_model, status,
				duration_seconds, cost_usd, traces, source, preserve_credits, metadata
			FROM completions
			WHERE tenant_uid = $1 AND id = $2
			LIMIT 1`, tenantUID, id)
		return row.Scan(&c.ID, &c.TenantUID, &c.AgentID, &c.Input.ID, &inputMessages, &inputVariables, &c.Input.Preview,
			&renderedMessages, &outputMessages, &c.Output.Error, &c.Version.ID, &c.Version.Model, &status,
			&c.DurationSeconds, &c.CostUSD, &traces, &source, &c.PreserveCredits, &metadata)
	})
	if err != nil {
		if isNoRows(err) {
			return nil, apierror.NotFound("completion", "completion %q not found", id)
		}
		return nil, apierror.Wrap(apierror.KindInternal, "get completion", err)
	}

	c.Status = domain.CompletionStatus(status)
	c.Source = domain.CompletionSource(source)

	if err := json.Unmarshal(inputMessages, &c.Input.Messages); err != nil {
		return nil, apierror.Wrap(apierror.KindInternal, "unmarshal completion input messages", err)
	}
	if err := json.Unmarshal(inputVariables, &c.Input.Variables); err != nil {
		return nil, apierror.Wrap(apierror.KindInternal, "unmarshal completion input variables", err)
	}
	if err := json.Unmarshal(renderedMessages, &c.RenderedMessages); err != nil {
		return nil, apierror.Wrap(apierror.KindInternal, "unmarshal completion rendered messages", err)
	}
	if len(outputMessages) > 0 {
		if err := json.Unmarshal(outputMessages, &c.Output.Messages); err != nil {
			return nil, apierror.Wrap(apierror.KindInternal, "unmarshal completion output messages", err)
		}
	}
	if err := json.Unmarshal(traces, &c.Traces); err != nil {
		return nil, apierror.Wrap(apierror.KindInternal, "unmarshal completion traces", err)
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &c.Metadata); err != nil {
			return nil, apierror.Wrap(apierror.KindInternal, "unmarshal completion metadata", err)
		}
	}
	return &c, nil
}

// Lookup implements runtime/runner.Cache: it returns the most recently
// recorded successful completion for (versionID, inputID) within the
// tenant carried by ctx, if any.
func (s *Store) Lookup(ctx context.Context, versionID, inputID string) (*domain.AgentCompletion, bool, error) {
	tenantUID, ok := domain.TenantFromContext(ctx)
	if !ok {
		return nil, false, nil
	}

	var c domain.AgentCompletion
	var status, source string
	var inputMessages, inputVariables, renderedMessages, outputMessages, traces, metadata []byte
	err := s.withConn(ctx, func(conn connQuerier) error {
		row := conn.QueryRow(ctx, `
			SELECT id, tenant_uid, agent_id, input_id, input_messages, input_variables, input_preview,
				rendered_messages, output_messages, output_error, version_id, version_model, status,
				duration_seconds, cost_usd, traces, source, preserve_credits, metadata
			FROM completions
			WHERE tenant_uid = $1 AND version_id = $2 AND input_id = $3 AND status = 'success'
			ORDER BY created_at DESC
			LIMIT 1`, tenantUID, versionID, inputID)
		return row.Scan(&c.ID, &c.TenantUID, &c.AgentID, &c.Input.ID, &inputMessages, &inputVariables, &c.Input.Preview,
			&renderedMessages, &outputMessages, &c.Output.Error, &c.Version.ID, &c.Version.Model, &status,
			&c.DurationSeconds, &c.CostUSD, &traces, &source, &c.PreserveCredits, &metadata)
	})
	if err != nil {
		if isNoRows(err) {
			return nil, false, nil
		}
		return nil, false, apierror.Wrap(apierror.KindInternal, "cache lookup", err)
	}

	c.Status = domain.CompletionStatus(status)
	c.Source = domain.CompletionSource(source)

	if err := json.Unmarshal(inputMessages, &c.Input.Messages); err != nil {
		return nil, false, apierror.Wrap(apierror.KindInternal, "unmarshal cached input messages", err)
	}
	if err := json.Unmarshal(inputVariables, &c.Input.Variables); err != nil {
		return nil, false, apierror.Wrap(apierror.KindInternal, "unmarshal cached input variables", err)
	}
	if err := json.Unmarshal(renderedMessages, &c.RenderedMessages); err != nil {
		return nil, false, apierror.Wrap(apierror.KindInternal, "unmarshal cached rendered messages", err)
	}
	if len(outputMessages) > 0 {
		if err := json.Unmarshal(outputMessages, &c.Output.Messages); err != nil {
			return nil, false, apierror.Wrap(apierror.KindInternal, "unmarshal cached output messages", err)
		}
	}
	if err := json.Unmarshal(traces, &c.Traces); err != nil {
		return nil, false, apierror.Wrap(apierror.KindInternal, "unmarshal cached traces", err)
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &c.Metadata); err != nil {
			return nil, false, apierror.Wrap(apierror.KindInternal, "unmarshal cached metadata", err)
		}
	}
	return &c, true, nil
}
