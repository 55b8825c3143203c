package relational

import (
	"context"

	"github.com/google/uuid"

	"github.com/anotherai/gateway/runtime/apierror"
	"github.com/anotherai/gateway/runtime/domain"
)

// CreateAnnotation persists a. Annotations are created and deleted
// explicitly; never mutated in place.
func (s *Store) CreateAnnotation(ctx context.Context, a domain.Annotation) error {
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
			INSERT INTO annotations (id, tenant_uid, completion_id, experiment_id, key_path,
				agent_id, context_exp_id, comment, metric_name, metric_float, metric_string, metric_bool)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			a.ID, a.TenantUID, a.Target.CompletionID, a.Target.ExperimentID, a.Target.KeyPath,
			a.Context.AgentID, a.Context.ExperimentID, a.Comment, metricName, metricFloat, metricString, metricBool)
		return err
	})
}

// DeleteAnnotation removes an annotation by id within tenantUID.
func (s *Store) DeleteAnnotation(ctx context.Context, tenantUID int64, id string) error {
	return s.withConn(WithTenant(ctx, tenantUID), func(conn connQuerier) error {
		tag, err := conn.Exec(ctx, `DELETE FROM annotations WHERE id = $1 AND tenant_uid = $2`, id, tenantUID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return apierror.NotFound("annotation", "annotation %q not found", id)
		}
		return nil
	})
}

// ListAnnotationsForCompletion returns every annotation attached to
// completionID within tenantUID.
func (s *Store) ListAnnotationsForCompletion(ctx context.Context, tenantUID int64, completionID uuid.UUID) ([]domain.Annotation, error) {
	var out []domain.Annotation
	err := s.withConn(WithTenant(ctx, tenantUID), func(conn connQuerier) error {
		rows, err := conn.Query(ctx, `
			SELECT id, tenant_uid, completion_id, experiment_id, key_path, agent_id,
				context_exp_id, comment, metric_name, metric_float, metric_string, metric_bool, created_at
			FROM annotations WHERE tenant_uid = $1 AND completion_id = $2`, tenantUID, completionID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			a, err := scanAnnotation(rows)
			if err != nil {
				return err
			}
			out = append(out, a)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

type annotationRow interface {
	Scan(dest ...any) error
}

func scanAnnotation(row annotationRow) (domain.Annotation, error) {
	var a domain.Annotation
	var metricName, metricString *string
	var metricFloat *float64
	var metricBool *bool
	if err := row.Scan(&a.ID, &a.TenantUID, &a.Target.CompletionID, &a.Target.ExperimentID, &a.Target.KeyPath,
		&a.Context.AgentID, &a.Context.ExperimentID, &a.Comment, &metricName, &metricFloat, &metricString, &metricBool, &a.CreatedAt); err != nil {
		return domain.Annotation{}, err
	}
	if metricName != nil {
		a.Metric = &domain.AnnotationMetric{
			Name: *metricName,
			Value: domain.AnnotationMetricValue{
				Float:  metricFloat,
				String: metricString,
				Bool:   metricBool,
			},
		}
	}
	return a, nil
}
