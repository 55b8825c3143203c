package analytical

import (
	"context"

	"github.com/anotherai/gateway/runtime/domain"
)

// InsertAnnotation appends a denormalized copy of a into the analytical
// store, so saved Views and ad-hoc SQL can join completions against ratings
// without reaching back into the relational store.
func (s *Store) InsertAnnotation(ctx context.Context, a domain.Annotation) error {
	var metricName, metricString *string
	var metricFloat *float64
	var metricBool *bool
	if a.Metric != nil {
		name := a.Metric.Name
		metricName = &name
		metricFloat = a.Metric.Value.Float
		metricString = a.Metric.Value.String
		metricBool = a.Metric.Value.Bool
	}

	return s.withConn(WithTenant(ctx, a.TenantUID), func(conn connQuerier) error {
		_, err := conn.Exec(ctx, `
			INSERT INTO annotations (tenant_uid, id, completion_id, experiment_id, key_path, agent_id,
				comment, metric_name, metric_float, metric_string, metric_bool, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			a.TenantUID, a.ID, a.Target.CompletionID, a.Target.ExperimentID, a.Target.KeyPath, a.Context.AgentID,
			a.Comment, metricName, metricFloat, metricString, metricBool, a.CreatedAt)
		return err
	})
}

// DeleteAnnotation removes the analytical copy of annotation id within
// tenantUID, mirroring the relational store's explicit delete.
func (s *Store) DeleteAnnotation(ctx context.Context, tenantUID int64, id string) error {
	return s.withConn(WithTenant(ctx, tenantUID), func(conn connQuerier) error {
		_, err := conn.Exec(ctx, `DELETE FROM annotations WHERE tenant_uid = $1 AND id = $2`, tenantUID, id)
		return err
	})
}
