package relational

import (
	"context"

	"github.com/anotherai/gateway/runtime/domain"
)

// GetOrCreateAgent resolves (tenantUID, slug) to its Agent, creating one on
// first use. The uid is assigned by the database sequence and never reused.
func (s *Store) GetOrCreateAgent(ctx context.Context, tenantUID int64, slug string) (domain.Agent, error) {
	var a domain.Agent
	err := s.withConn(WithTenant(ctx, tenantUID), func(conn connQuerier) error {
		row := conn.QueryRow(ctx, `
			INSERT INTO agents (tenant_uid, slug) VALUES ($1, $2)
			ON CONFLICT (tenant_uid, slug) DO UPDATE SET slug = EXCLUDED.slug
			RETURNING uid, tenant_uid, slug, created_at`, tenantUID, slug)
		return row.Scan(&a.UID, &a.TenantUID, &a.Slug, &a.CreatedAt)
	})
	if err != nil {
		return domain.Agent{}, err
	}
	return a, nil
}

// ListAgents returns every agent registered under tenantUID, ordered by slug.
func (s *Store) ListAgents(ctx context.Context, tenantUID int64) ([]domain.Agent, error) {
	var agents []domain.Agent
	err := s.withConn(WithTenant(ctx, tenantUID), func(conn connQuerier) error {
		rows, err := conn.Query(ctx, `
			SELECT uid, tenant_uid, slug, created_at FROM agents
			WHERE tenant_uid = $1 ORDER BY slug`, tenantUID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var a domain.Agent
			if err := rows.Scan(&a.UID, &a.TenantUID, &a.Slug, &a.CreatedAt); err != nil {
				return err
			}
			agents = append(agents, a)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return agents, nil
}
