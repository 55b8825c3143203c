package analytical

import (
	"context"

	"github.com/anotherai/gateway/runtime/domain"
)

// InsertExperimentOutputFact records the cost and duration of one experiment
// cell's completion, denormalized for fast aggregate queries (e.g. total
// cost of an experiment) without joining back to the completions table.
func (s *Store) InsertExperimentOutputFact(ctx context.Context, tenantUID int64, experimentID string, out domain.ExperimentOutput, costUSD, durationSeconds float64) error {
	return s.withConn(WithTenant(ctx, tenantUID), func(conn connQuerier) error {
		_, err := conn.Exec(ctx, `
			INSERT INTO experiment_outputs (tenant_uid, experiment_id, input_id, version_id, completion_id, cost_usd, duration_seconds)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (tenant_uid, experiment_id, input_id, version_id) DO NOTHING`,
			tenantUID, experimentID, out.InputID, out.VersionID, out.CompletionID, costUSD, durationSeconds)
		return err
	})
}

// ExperimentCost sums the recorded cost of every completion attached to
// experimentID within tenantUID.
func (s *Store) ExperimentCost(ctx context.Context, tenantUID int64, experimentID string) (float64, error) {
	var total float64
	err := s.withConn(WithTenant(ctx, tenantUID), func(conn connQuerier) error {
		row := conn.QueryRow(ctx, `
			SELECT COALESCE(SUM(cost_usd), 0) FROM experiment_outputs
			WHERE tenant_uid = $1 AND experiment_id = $2`, tenantUID, experimentID)
		return row.Scan(&total)
	})
	return total, err
}
