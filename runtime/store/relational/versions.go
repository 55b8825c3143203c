package relational

import (
	"context"
	"encoding/json"

	"github.com/anotherai/gateway/runtime/apierror"
	"github.com/anotherai/gateway/runtime/domain"
)

// UpsertVersion persists v under its content-addressed id, computed from its
// normalized fields. Persisting the same logical version twice is a no-op:
// inserted reports whether this call is the one that created the row.
func (s *Store) UpsertVersion(ctx context.Context, tenantUID int64, v domain.Version) (id string, inserted bool, err error) {
	id, err = domain.ComputeVersionID(v)
	if err != nil {
		return "", false, apierror.Wrap(apierror.KindInternal, "compute version id", err)
	}

	tools, err := json.Marshal(v.Tools)
	if err != nil {
		return "", false, apierror.Wrap(apierror.KindInternal, "marshal version tools", err)
	}
	var toolChoice, responseSchema []byte
	if v.ToolChoice != nil {
		if toolChoice, err = json.Marshal(v.ToolChoice); err != nil {
			return "", false, apierror.Wrap(apierror.KindInternal, "marshal tool choice", err)
		}
	}
	if v.ResponseSchema != nil {
		if responseSchema, err = json.Marshal(v.ResponseSchema); err != nil {
			return "", false, apierror.Wrap(apierror.KindInternal, "marshal response schema", err)
		}
	}

	werr := s.withConn(WithTenant(ctx, tenantUID), func(conn connQuerier) error {
		row := conn.QueryRow(ctx, `
			INSERT INTO versions (id, tenant_uid, model, temperature, top_p, max_tokens,
				frequency_penalty, presence_penalty, tools, tool_choice, response_schema,
				reasoning_effort, reasoning_budget)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			ON CONFLICT (id) DO NOTHING
			RETURNING id`,
			id, tenantUID, v.Model, v.Temperature, v.TopP, v.MaxTokens,
			v.FrequencyPenalty, v.PresencePenalty, tools, toolChoice, responseSchema,
			string(v.ReasoningEffort), v.ReasoningBudget)
		var returned string
		scanErr := row.Scan(&returned)
		if scanErr == nil {
			inserted = true
			return nil
		}
		if isNoRows(scanErr) {
			inserted = false
			return nil
		}
		return scanErr
	})
	if werr != nil {
		return "", false, werr
	}
	return id, inserted, nil
}

// GetVersion resolves id to its stored Version within tenantUID.
func (s *Store) GetVersion(ctx context.Context, tenantUID int64, id string) (domain.Version, error) {
	var v domain.Version
	var tools, toolChoice, responseSchema []byte
	var reasoningEffort string
	err := s.withConn(WithTenant(ctx, tenantUID), func(conn connQuerier) error {
		row := conn.QueryRow(ctx, `
			SELECT id, model, temperature, top_p, max_tokens, frequency_penalty,
				presence_penalty, tools, tool_choice, response_schema, reasoning_effort, reasoning_budget
			FROM versions WHERE id = $1 AND tenant_uid = $2`, id, tenantUID)
		return row.Scan(&v.ID, &v.Model, &v.Temperature, &v.TopP, &v.MaxTokens, &v.FrequencyPenalty,
			&v.PresencePenalty, &tools, &toolChoice, &responseSchema, &reasoningEffort, &v.ReasoningBudget)
	})
	if err != nil {
		if isNoRows(err) {
			return domain.Version{}, apierror.NotFound("version", "version %q not found", id)
		}
		return domain.Version{}, err
	}
	v.ReasoningEffort = domain.ReasoningEffort(reasoningEffort)
	if len(tools) > 0 {
		if err := json.Unmarshal(tools, &v.Tools); err != nil {
			return domain.Version{}, apierror.Wrap(apierror.KindInternal, "unmarshal version tools", err)
		}
	}
	if len(toolChoice) > 0 {
		var tc domain.ToolChoice
		if err := json.Unmarshal(toolChoice, &tc); err != nil {
			return domain.Version{}, apierror.Wrap(apierror.KindInternal, "unmarshal tool choice", err)
		}
		v.ToolChoice = &tc
	}
	if len(responseSchema) > 0 {
		if err := json.Unmarshal(responseSchema, &v.ResponseSchema); err != nil {
			return domain.Version{}, apierror.Wrap(apierror.KindInternal, "unmarshal response schema", err)
		}
	}
	return v, nil
}
