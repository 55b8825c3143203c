package analytical

import (
	"context"
	"fmt"

	"github.com/anotherai/gateway/runtime/apierror"
	"github.com/anotherai/gateway/runtime/domain"
)

// roleName returns the deterministic per-tenant read-only role name.
func roleName(tenantUID int64) string {
	return fmt.Sprintf("readonly_%d", tenantUID)
}

// rolePassword derives a deterministic password for tenantUID's read-only
// role from the store's salt secret, so every gateway instance computes the
// same password without a round trip to a secrets store, and so role
// creation is safe to repeat (EnsureReadonlyRole is idempotent).
func (s *Store) rolePassword(tenantUID int64) string {
	return domain.SecureHash(fmt.Sprintf("%s:%d", s.saltSecret, tenantUID))
}

// EnsureReadonlyRole lazily creates (or updates the password of) tenantUID's
// read-only Postgres role, grants it SELECT on the tenant-facing analytical
// tables, and returns its name and current password. The role's own access
// is still confined by each table's tenant_isolation row-level policy, which
// the analytical migrations install; this call does not create or alter
// policies.
func (s *Store) EnsureReadonlyRole(ctx context.Context, tenantUID int64) (name, password string, err error) {
	name = roleName(tenantUID)
	password = s.rolePassword(tenantUID)

	werr := s.withConn(ctx, func(conn connQuerier) error {
		var exists bool
		if err := conn.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM pg_roles WHERE rolname = $1)`, name).Scan(&exists); err != nil {
			return err
		}

		if !exists {
			// Role names and passwords cannot be parameterized; name is our
			// own deterministic construction and password is hex output of
			// SecureHash, both safe to interpolate.
			stmt := fmt.Sprintf(`CREATE ROLE %s LOGIN PASSWORD '%s'`, name, password)
			if _, err := conn.Exec(ctx, stmt); err != nil {
				return err
			}
		} else {
			stmt := fmt.Sprintf(`ALTER ROLE %s LOGIN PASSWORD '%s'`, name, password)
			if _, err := conn.Exec(ctx, stmt); err != nil {
				return err
			}
		}

		for _, table := range []string{"completions", "annotations", "experiment_outputs"} {
			if _, err := conn.Exec(ctx, fmt.Sprintf(`GRANT SELECT ON %s TO %s`, table, name)); err != nil {
				return err
			}
		}
		return nil
	})
	if werr != nil {
		return "", "", apierror.Wrap(apierror.KindInternal, "ensure tenant read-only role", werr)
	}
	return name, password, nil
}

// RunAsReadonly executes query (arbitrary user-authored SQL, e.g. a saved
// View or raw_query call) against the analytical tables with tenantUID's
// read-only role active for the duration of the call, so even a malicious
// query can only SELECT the tables it was granted and only the rows the
// tenant_uid row policy admits.
func (s *Store) RunAsReadonly(ctx context.Context, tenantUID int64, query string) ([]map[string]any, error) {
	name, _, err := s.EnsureReadonlyRole(ctx, tenantUID)
	if err != nil {
		return nil, err
	}

	var rowsOut []map[string]any
	werr := s.withConn(WithTenant(ctx, tenantUID), func(conn connQuerier) error {
		if _, err := conn.Exec(ctx, fmt.Sprintf(`SET ROLE %s`, name)); err != nil {
			return apierror.Wrap(apierror.KindInternal, "assume read-only role", err)
		}
		defer func() { _, _ = conn.Exec(ctx, `RESET ROLE`) }()

		rows, err := conn.Query(ctx, query)
		if err != nil {
			return apierror.Wrap(apierror.KindBadRequest, "raw query failed", err)
		}
		defer rows.Close()

		fields := rows.FieldDescriptions()
		for rows.Next() {
			values, err := rows.Values()
			if err != nil {
				return err
			}
			row := make(map[string]any, len(fields))
			for i, f := range fields {
				row[string(f.Name)] = values[i]
			}
			rowsOut = append(rowsOut, row)
		}
		return rows.Err()
	})
	if werr != nil {
		return nil, werr
	}
	return rowsOut, nil
}
