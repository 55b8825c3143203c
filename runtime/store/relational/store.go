// Package relational implements the tenant-isolated relational store (C2):
// tenants, agents, api keys, versions, agent inputs, deployments, experiment
// metadata, annotations, and saved views. Every tenant-owned table carries a
// row-level security policy keyed on the app.tenant_uid session variable,
// set on the underlying connection before each query runs.
package relational

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/anotherai/gateway/runtime/apierror"
	"github.com/anotherai/gateway/runtime/domain"
	"github.com/anotherai/gateway/runtime/telemetry"
)

// connQuerier is the subset of *pgxpool.Conn every store query method needs.
// Query methods depend on this narrow interface rather than the concrete
// type so table-specific files stay agnostic of the pool machinery.
type connQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Store is the tenant-isolated relational store's connection pool and the
// home for every C2 query method.
type Store struct {
	pool   *pgxpool.Pool
	logger telemetry.Logger
}

// Option configures a Store at construction time.
type Option func(*Store)

// WithLogger overrides the Store's logger. Defaults to a no-op logger.
func WithLogger(l telemetry.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Open connects to dsn, applies every pending migration, and returns a ready
// Store. Migrations run against a short-lived database/sql handle; the
// returned Store's pool is used for all subsequent application queries.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	if err := runMigrations(dsn); err != nil {
		return nil, fmt.Errorf("relational store migrations: %w", err)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open relational pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping relational pool: %w", err)
	}

	s := &Store{pool: pool, logger: telemetry.NewNoopLogger()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Ping checks that the pool can still reach Postgres, for readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// WithTenant returns a context scoped to tenantUID. Every query issued
// through that context runs with app.tenant_uid set to tenantUID, so the
// row-level security policies on every tenant-owned table confine it. This
// is a thin alias over domain.ContextWithTenant, which both stores share so
// a single security-layer call scopes both the relational and analytical
// sides at once.
func WithTenant(ctx context.Context, tenantUID int64) context.Context {
	return domain.ContextWithTenant(ctx, tenantUID)
}

// withConn acquires a connection from the pool, sets app.tenant_uid from
// ctx (or clears it, if ctx carries no tenant), runs fn, and releases the
// connection. Setting the session variable on every acquisition is required
// because pgxpool reuses physical connections across callers without
// resetting session state between releases.
func (s *Store) withConn(ctx context.Context, fn func(conn connQuerier) error) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return apierror.Wrap(apierror.KindInternal, "acquire relational connection", err)
	}
	defer conn.Release()

	if uid, ok := domain.TenantFromContext(ctx); ok {
		if _, err := conn.Exec(ctx, "SELECT set_config('app.tenant_uid', $1, false)", fmt.Sprintf("%d", uid)); err != nil {
			return apierror.Wrap(apierror.KindInternal, "set tenant context", err)
		}
	} else {
		if _, err := conn.Exec(ctx, "SELECT set_config('app.tenant_uid', '', false)"); err != nil {
			return apierror.Wrap(apierror.KindInternal, "clear tenant context", err)
		}
	}

	return fn(conn)
}

// isNoRows reports whether err is pgx.ErrNoRows, the sentinel returned by
// QueryRow.Scan when a query matches no rows.
func isNoRows(err error) bool {
	return err == pgx.ErrNoRows
}
