package relational

import (
	"context"
	"time"

	"github.com/anotherai/gateway/runtime/apierror"
	"github.com/anotherai/gateway/runtime/domain"
)

// CreateAPIKey persists key, already hashed by the caller with
// domain.SecureHash. The plaintext secret never reaches the store.
func (s *Store) CreateAPIKey(ctx context.Context, key domain.APIKey) error {
	return s.withConn(WithTenant(ctx, key.TenantUID), func(conn connQuerier) error {
		_, err := conn.Exec(ctx, `
			INSERT INTO api_keys (hashed_key, tenant_uid, partial, created_by)
			VALUES ($1, $2, $3, $4)`,
			key.HashedKey, key.TenantUID, key.Partial, key.CreatedBy)
		return err
	})
}

// LookupAPIKey resolves a hashed bearer secret to its APIKey record. This
// lookup necessarily runs without a tenant context already established,
// since the hashed key is itself what identifies the tenant.
func (s *Store) LookupAPIKey(ctx context.Context, hashedKey string) (domain.APIKey, error) {
	var k domain.APIKey
	err := s.withConn(ctx, func(conn connQuerier) error {
		row := conn.QueryRow(ctx, `
			SELECT hashed_key, tenant_uid, partial, created_by, created_at, last_used_at
			FROM api_keys WHERE hashed_key = $1`, hashedKey)
		return row.Scan(&k.HashedKey, &k.TenantUID, &k.Partial, &k.CreatedBy, &k.CreatedAt, &k.LastUsedAt)
	})
	if err != nil {
		if isNoRows(err) {
			return domain.APIKey{}, apierror.New(apierror.KindInvalidToken, "unknown api key")
		}
		return domain.APIKey{}, err
	}
	return k, nil
}

// TouchAPIKey records the current time as the key's last-used timestamp.
// Called once per authenticated request; failures are non-fatal to the
// request itself and should be logged, not surfaced, by the caller.
func (s *Store) TouchAPIKey(ctx context.Context, hashedKey string, at time.Time) error {
	return s.withConn(ctx, func(conn connQuerier) error {
		_, err := conn.Exec(ctx, `UPDATE api_keys SET last_used_at = $2 WHERE hashed_key = $1`, hashedKey, at)
		return err
	})
}
