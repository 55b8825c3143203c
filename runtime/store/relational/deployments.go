package relational

import (
	"context"
	"encoding/json"
	"time"

	"github.com/anotherai/gateway/runtime/apierror"
	"github.com/anotherai/gateway/runtime/domain"
)

// UpsertDeployment binds name to versionID within tenantUID, rotating the
// version pointer if the alias already exists. Deployments are mutable by
// design; they are never hard-deleted, only archived.
func (s *Store) UpsertDeployment(ctx context.Context, tenantUID int64, d domain.Deployment) (domain.Deployment, error) {
	metadata, err := json.Marshal(d.Metadata)
	if err != nil {
		return domain.Deployment{}, apierror.Wrap(apierror.KindInternal, "marshal deployment metadata", err)
	}

	var out domain.Deployment
	var rawMetadata []byte
	werr := s.withConn(WithTenant(ctx, tenantUID), func(conn connQuerier) error {
		row := conn.QueryRow(ctx, `
			INSERT INTO deployments (tenant_uid, name, version_id, metadata, updated_at)
			VALUES ($1, $2, $3, $4, now())
			ON CONFLICT (tenant_uid, name) DO UPDATE SET
				version_id = EXCLUDED.version_id,
				metadata = EXCLUDED.metadata,
				archived = FALSE,
				updated_at = now()
			RETURNING tenant_uid, name, version_id, metadata, archived, created_at, updated_at`,
			tenantUID, string(d.Name), d.VersionID, metadata)
		return row.Scan(&out.TenantUID, &out.Name, &out.VersionID, &rawMetadata, &out.Archived, &out.CreatedAt, &out.UpdatedAt)
	})
	if werr != nil {
		return domain.Deployment{}, werr
	}
	if len(rawMetadata) > 0 {
		if err := json.Unmarshal(rawMetadata, &out.Metadata); err != nil {
			return domain.Deployment{}, apierror.Wrap(apierror.KindInternal, "unmarshal deployment metadata", err)
		}
	}
	return out, nil
}

// GetDeployment fetches a single deployment by name within tenantUID.
func (s *Store) GetDeployment(ctx context.Context, tenantUID int64, name domain.DeploymentName) (domain.Deployment, error) {
	var d domain.Deployment
	var rawMetadata []byte
	err := s.withConn(WithTenant(ctx, tenantUID), func(conn connQuerier) error {
		row := conn.QueryRow(ctx, `
			SELECT tenant_uid, name, version_id, metadata, archived, created_at, updated_at
			FROM deployments WHERE tenant_uid = $1 AND name = $2`, tenantUID, string(name))
		return row.Scan(&d.TenantUID, &d.Name, &d.VersionID, &rawMetadata, &d.Archived, &d.CreatedAt, &d.UpdatedAt)
	})
	if err != nil {
		if isNoRows(err) {
			return domain.Deployment{}, apierror.NotFound("deployment", "deployment %q not found", name)
		}
		return domain.Deployment{}, err
	}
	if len(rawMetadata) > 0 {
		if err := json.Unmarshal(rawMetadata, &d.Metadata); err != nil {
			return domain.Deployment{}, apierror.Wrap(apierror.KindInternal, "unmarshal deployment metadata", err)
		}
	}
	return d, nil
}

// ArchiveDeployment flags a deployment as archived without deleting it.
func (s *Store) ArchiveDeployment(ctx context.Context, tenantUID int64, name domain.DeploymentName) error {
	return s.withConn(WithTenant(ctx, tenantUID), func(conn connQuerier) error {
		tag, err := conn.Exec(ctx, `
			UPDATE deployments SET archived = TRUE, updated_at = now()
			WHERE tenant_uid = $1 AND name = $2`, tenantUID, string(name))
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return apierror.NotFound("deployment", "deployment %q not found", name)
		}
		return nil
	})
}

// ListDeployments returns deployments for tenantUID created after the cursor
// (an RFC3339 timestamp, exclusive), ordered by created_at, up to limit rows.
// An empty cursor starts from the beginning.
func (s *Store) ListDeployments(ctx context.Context, tenantUID int64, cursor string, limit int) ([]domain.Deployment, string, error) {
	var after time.Time
	if cursor != "" {
		parsed, err := time.Parse(time.RFC3339Nano, cursor)
		if err != nil {
			return nil, "", apierror.BadRequest("invalid cursor %q", cursor)
		}
		after = parsed
	}

	var out []domain.Deployment
	err := s.withConn(WithTenant(ctx, tenantUID), func(conn connQuerier) error {
		rows, err := conn.Query(ctx, `
			SELECT tenant_uid, name, version_id, metadata, archived, created_at, updated_at
			FROM deployments
			WHERE tenant_uid = $1 AND created_at > $2
			ORDER BY created_at ASC
			LIMIT $3`, tenantUID, after, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var d domain.Deployment
			var rawMetadata []byte
			if err := rows.Scan(&d.TenantUID, &d.Name, &d.VersionID, &rawMetadata, &d.Archived, &d.CreatedAt, &d.UpdatedAt); err != nil {
				return err
			}
			if len(rawMetadata) > 0 {
				if err := json.Unmarshal(rawMetadata, &d.Metadata); err != nil {
					return apierror.Wrap(apierror.KindInternal, "unmarshal deployment metadata", err)
				}
			}
			out = append(out, d)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, "", err
	}

	var next string
	if len(out) == limit {
		next = out[len(out)-1].CreatedAt.Format(time.RFC3339Nano)
	}
	return out, next, nil
}
