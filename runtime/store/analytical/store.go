// Package analytical implements the tenant-isolated analytical store (C3):
// the append-only completions fact table that backs the Completion Runner's
// cache, a denormalized annotations copy, and an experiment-output fact
// table, plus a lazily-provisioned per-tenant read-only role that confines
// arbitrary user SQL (saved views, raw_query) to its own tenant_uid.
package analytical

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/anotherai/gateway/runtime/apierror"
	"github.com/anotherai/gateway/runtime/domain"
	"github.com/anotherai/gateway/runtime/telemetry"
)

// connQuerier is the subset of *pgxpool.Conn the store's query methods need.
type connQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Store is the analytical store's connection pool, the home for the
// Completion Runner's Cache.Lookup, and the per-tenant read-only role
// machinery that confines ad-hoc SQL.
type Store struct {
	pool       *pgxpool.Pool
	dsn        string
	logger     telemetry.Logger
	saltSecret string
}

// Option configures a Store at construction time.
type Option func(*Store)

// WithLogger overrides the Store's logger. Defaults to a no-op logger.
func WithLogger(l telemetry.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithRoleSalt sets the secret mixed into every per-tenant read-only role's
// deterministic password. Defaults to the ANALYTICAL_ROLE_SALT environment
// variable, and must be set consistently across every gateway instance so
// role creation is idempotent cluster-wide.
func WithRoleSalt(salt string) Option {
	return func(s *Store) { s.saltSecret = salt }
}

// ResolveDSN honors CLICKHOUSE_DSN (spec §6) as an alternate DSN for the
// analytical pool when set, falling back to postgresDSN otherwise. No
// ClickHouse client exists anywhere in the example corpus backing this
// module, so the analytical store's SQL dialect stays Postgres-compatible
// regardless of which DSN wins; see DESIGN.md.
func ResolveDSN(postgresDSN string) string {
	if v := os.Getenv("CLICKHOUSE_DSN"); v != "" {
		return v
	}
	return postgresDSN
}

// Open connects to dsn, applies every pending migration, and returns a ready
// Store.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	if err := runMigrations(dsn); err != nil {
		return nil, fmt.Errorf("analytical store migrations: %w", err)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open analytical pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping analytical pool: %w", err)
	}

	s := &Store{
		pool:       pool,
		dsn:        dsn,
		logger:     telemetry.NewNoopLogger(),
		saltSecret: os.Getenv("ANALYTICAL_ROLE_SALT"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// WithTenant returns a context scoped to tenantUID, shared with
// runtime/store/relational via domain.ContextWithTenant.
func WithTenant(ctx context.Context, tenantUID int64) context.Context {
	return domain.ContextWithTenant(ctx, tenantUID)
}

func (s *Store) withConn(ctx context.Context, fn func(conn connQuerier) error) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return apierror.Wrap(apierror.KindInternal, "acquire analytical connection", err)
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

func isNoRows(err error) bool {
	return err == pgx.ErrNoRows
}

// uniqueViolation is the Postgres SQLSTATE for a unique-constraint
// violation.
const uniqueViolation = "23505"

// IsDuplicate reports whether err is a unique-constraint violation, the
// signal an at-least-once redelivery of EventStoreCompletion uses to treat a
// completion it already persisted as success rather than an error.
func IsDuplicate(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
