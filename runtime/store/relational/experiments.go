package relational

import (
	"context"

	"github.com/google/uuid"

	"github.com/anotherai/gateway/runtime/apierror"
	"github.com/anotherai/gateway/runtime/domain"
)

// CreateExperiment inserts a new, empty experiment shell. The Experiment
// Service (C9) layers idempotent input/version/output registration on top of
// this and the methods below.
func (s *Store) CreateExperiment(ctx context.Context, tenantUID int64, id, agentID, name string) (domain.Experiment, error) {
	var e domain.Experiment
	err := s.withConn(WithTenant(ctx, tenantUID), func(conn connQuerier) error {
		row := conn.QueryRow(ctx, `
			INSERT INTO experiments (id, tenant_uid, agent_id, name)
			VALUES ($1, $2, $3, $4)
			RETURNING id, tenant_uid, agent_id, name, created_at`, id, tenantUID, agentID, name)
		return row.Scan(&e.ID, &e.TenantUID, &e.AgentID, &e.Name, &e.CreatedAt)
	})
	if err != nil {
		return domain.Experiment{}, err
	}
	return e, nil
}

// GetExperiment loads an experiment and all of its inputs, versions, and
// outputs within tenantUID.
func (s *Store) GetExperiment(ctx context.Context, tenantUID int64, id string) (domain.Experiment, error) {
	var e domain.Experiment
	err := s.withConn(WithTenant(ctx, tenantUID), func(conn connQuerier) error {
		row := conn.QueryRow(ctx, `
			SELECT id, tenant_uid, agent_id, name, created_at
			FROM experiments WHERE id = $1 AND tenant_uid = $2`, id, tenantUID)
		if err := row.Scan(&e.ID, &e.TenantUID, &e.AgentID, &e.Name, &e.CreatedAt); err != nil {
			return err
		}

		rows, err := conn.Query(ctx, `SELECT alias, input_id FROM experiment_inputs WHERE experiment_id = $1`, id)
		if err != nil {
			return err
		}
		for rows.Next() {
			var in domain.ExperimentInput
			if err := rows.Scan(&in.Alias, &in.InputID); err != nil {
				rows.Close()
				return err
			}
			e.Inputs = append(e.Inputs, in)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		rows, err = conn.Query(ctx, `SELECT alias, version_id FROM experiment_versions WHERE experiment_id = $1`, id)
		if err != nil {
			return err
		}
		for rows.Next() {
			var v domain.ExperimentVersion
			if err := rows.Scan(&v.Alias, &v.VersionID); err != nil {
				rows.Close()
				return err
			}
			e.Versions = append(e.Versions, v)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		rows, err = conn.Query(ctx, `SELECT input_id, version_id, completion_id FROM experiment_outputs WHERE experiment_id = $1`, id)
		if err != nil {
			return err
		}
		for rows.Next() {
			var o domain.ExperimentOutput
			if err := rows.Scan(&o.InputID, &o.VersionID, &o.CompletionID); err != nil {
				rows.Close()
				return err
			}
			e.Outputs = append(e.Outputs, o)
		}
		rows.Close()
		return rows.Err()
	})
	if err != nil {
		if isNoRows(err) {
			return domain.Experiment{}, apierror.NotFound("experiment", "experiment %q not found", id)
		}
		return domain.Experiment{}, err
	}
	return e, nil
}

// AddExperimentInputs registers the given aliased inputs against experimentID,
// skipping any alias already present, and returns the aliases newly added.
func (s *Store) AddExperimentInputs(ctx context.Context, tenantUID int64, experimentID string, inputs []domain.ExperimentInput) ([]string, error) {
	var added []string
	err := s.withConn(WithTenant(ctx, tenantUID), func(conn connQuerier) error {
		for _, in := range inputs {
			tag, err := conn.Exec(ctx, `
				INSERT INTO experiment_inputs (experiment_id, alias, input_id)
				VALUES ($1, $2, $3) ON CONFLICT (experiment_id, alias) DO NOTHING`,
				experimentID, in.Alias, in.InputID)
			if err != nil {
				return err
			}
			if tag.RowsAffected() > 0 {
				added = append(added, in.Alias)
			}
		}
		return nil
	})
	return added, err
}

// AddExperimentVersions registers the given aliased versions against
// experimentID, skipping any alias already present, returning the newly
// added aliases.
func (s *Store) AddExperimentVersions(ctx context.Context, tenantUID int64, experimentID string, versions []domain.ExperimentVersion) ([]string, error) {
	var added []string
	err := s.withConn(WithTenant(ctx, tenantUID), func(conn connQuerier) error {
		for _, v := range versions {
			tag, err := conn.Exec(ctx, `
				INSERT INTO experiment_versions (experiment_id, alias, version_id)
				VALUES ($1, $2, $3) ON CONFLICT (experiment_id, alias) DO NOTHING`,
				experimentID, v.Alias, v.VersionID)
			if err != nil {
				return err
			}
			if tag.RowsAffected() > 0 {
				added = append(added, v.Alias)
			}
		}
		return nil
	})
	return added, err
}

// ReserveExperimentOutput marks (inputID, versionID) as in-flight within
// experimentID, using the nil UUID as a placeholder completion id.
// Reinvocation on an already-reserved or already-finalized pair raises
// duplicate_value, matching start_completion's reinvocation semantics.
func (s *Store) ReserveExperimentOutput(ctx context.Context, tenantUID int64, experimentID, inputID, versionID string) error {
	return s.withConn(WithTenant(ctx, tenantUID), func(conn connQuerier) error {
		tag, err := conn.Exec(ctx, `
			INSERT INTO experiment_outputs (experiment_id, input_id, version_id, completion_id)
			VALUES ($1, $2, $3, $4) ON CONFLICT (experiment_id, input_id, version_id) DO NOTHING`,
			experimentID, inputID, versionID, uuid.Nil)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return apierror.DuplicateValue("completion already started for input %q, version %q", inputID, versionID)
		}
		return nil
	})
}

// FinalizeExperimentOutput sets the real completionID for a pair previously
// reserved with ReserveExperimentOutput. A pair with no reservation, or one
// already finalized, raises duplicate_value (add_completion_output's "second
// call on the same pair" invariant).
func (s *Store) FinalizeExperimentOutput(ctx context.Context, tenantUID int64, experimentID, inputID, versionID string, completionID uuid.UUID) error {
	return s.withConn(WithTenant(ctx, tenantUID), func(conn connQuerier) error {
		tag, err := conn.Exec(ctx, `
			UPDATE experiment_outputs SET completion_id = $4
			WHERE experiment_id = $1 AND input_id = $2 AND version_id = $3 AND completion_id = $5`,
			experimentID, inputID, versionID, completionID, uuid.Nil)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return apierror.DuplicateValue("output already recorded for input %q, version %q", inputID, versionID)
		}
		return nil
	})
}

// AddExperimentOutput links (inputID, versionID) to completionID. A repeat
// call for the same pair is a duplicate_value conflict: an experiment may
// not contain two outputs for the same (input_id, version_id) pair.
func (s *Store) AddExperimentOutput(ctx context.Context, tenantUID int64, experimentID string, out domain.ExperimentOutput) error {
	return s.withConn(WithTenant(ctx, tenantUID), func(conn connQuerier) error {
		tag, err := conn.Exec(ctx, `
			INSERT INTO experiment_outputs (experiment_id, input_id, version_id, completion_id)
			VALUES ($1, $2, $3, $4) ON CONFLICT (experiment_id, input_id, version_id) DO NOTHING`,
			experimentID, out.InputID, out.VersionID, out.CompletionID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return apierror.DuplicateValue("output already recorded for input %q, version %q", out.InputID, out.VersionID)
		}
		return nil
	})
}
