package relational

import (
	"context"
	"encoding/json"

	"github.com/anotherai/gateway/runtime/apierror"
	"github.com/anotherai/gateway/runtime/domain"
)

// UpsertInput persists in under its content-addressed id. inserted reports
// whether this call created the row; a repeat of an identical input is a
// no-op, matching the append-only, content-addressed Agent Input model.
func (s *Store) UpsertInput(ctx context.Context, tenantUID int64, in domain.Input) (id string, inserted bool, err error) {
	id, err = domain.ComputeInputID(in)
	if err != nil {
		return "", false, apierror.Wrap(apierror.KindInternal, "compute input id", err)
	}

	messages, err := json.Marshal(in.Messages)
	if err != nil {
		return "", false, apierror.Wrap(apierror.KindInternal, "marshal input messages", err)
	}
	variables, err := json.Marshal(in.Variables)
	if err != nil {
		return "", false, apierror.Wrap(apierror.KindInternal, "marshal input variables", err)
	}

	werr := s.withConn(WithTenant(ctx, tenantUID), func(conn connQuerier) error {
		row := conn.QueryRow(ctx, `
			INSERT INTO agent_inputs (id, tenant_uid, agent_id, messages, variables, preview)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO NOTHING
			RETURNING id`, id, tenantUID, in.AgentID, messages, variables, in.Preview)
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

// GetInput resolves id to its stored Input within tenantUID.
func (s *Store) GetInput(ctx context.Context, tenantUID int64, id string) (domain.Input, error) {
	var in domain.Input
	var messages, variables []byte
	err := s.withConn(WithTenant(ctx, tenantUID), func(conn connQuerier) error {
		row := conn.QueryRow(ctx, `
			SELECT id, agent_id, messages, variables, preview
			FROM agent_inputs WHERE id = $1 AND tenant_uid = $2`, id, tenantUID)
		return row.Scan(&in.ID, &in.AgentID, &messages, &variables, &in.Preview)
	})
	if err != nil {
		if isNoRows(err) {
			return domain.Input{}, apierror.NotFound("input", "input %q not found", id)
		}
		return domain.Input{}, err
	}
	if err := json.Unmarshal(messages, &in.Messages); err != nil {
		return domain.Input{}, apierror.Wrap(apierror.KindInternal, "unmarshal input messages", err)
	}
	if err := json.Unmarshal(variables, &in.Variables); err != nil {
		return domain.Input{}, apierror.Wrap(apierror.KindInternal, "unmarshal input variables", err)
	}
	return in, nil
}
