package relational

import (
	"context"

	"github.com/anotherai/gateway/runtime/apierror"
	"github.com/anotherai/gateway/runtime/domain"
)

// GetTenant looks up a tenant by uid. The lookup itself runs outside any
// tenant context since resolving the caller's tenant is what authenticates
// the session in the first place.
func (s *Store) GetTenant(ctx context.Context, uid int64) (domain.Tenant, error) {
	var t domain.Tenant
	err := s.withConn(ctx, func(conn connQuerier) error {
		row := conn.QueryRow(ctx, `
			SELECT uid, slug, org_id, credit_balance_usd, customer_id, payment_failed
			FROM tenants WHERE uid = $1`, uid)
		return row.Scan(&t.UID, &t.Slug, &t.OrgID, &t.CreditBalanceUSD, &t.CustomerID, &t.PaymentFailed)
	})
	if err != nil {
		if isNoRows(err) {
			return domain.Tenant{}, apierror.NotFound("tenant", "tenant %d not found", uid)
		}
		return domain.Tenant{}, err
	}
	return t, nil
}

// GetOrCreateTenant looks up a tenant by slug, creating one with newUID if
// none exists. Tenants are created lazily on first authenticated use.
func (s *Store) GetOrCreateTenant(ctx context.Context, slug string, newUID int64) (domain.Tenant, error) {
	var t domain.Tenant
	err := s.withConn(ctx, func(conn connQuerier) error {
		row := conn.QueryRow(ctx, `
			INSERT INTO tenants (uid, slug) VALUES ($1, $2)
			ON CONFLICT (slug) DO UPDATE SET slug = EXCLUDED.slug
			RETURNING uid, slug, org_id, credit_balance_usd, customer_id, payment_failed`,
			newUID, slug)
		return row.Scan(&t.UID, &t.Slug, &t.OrgID, &t.CreditBalanceUSD, &t.CustomerID, &t.PaymentFailed)
	})
	if err != nil {
		return domain.Tenant{}, err
	}
	return t, nil
}

// GetTenantByCustomerID looks up a tenant by its external payment provider
// customer id, used by the billing webhook handler to resolve an incoming
// Stripe event to a tenant.
func (s *Store) GetTenantByCustomerID(ctx context.Context, customerID string) (domain.Tenant, error) {
	var t domain.Tenant
	err := s.withConn(ctx, func(conn connQuerier) error {
		row := conn.QueryRow(ctx, `
			SELECT uid, slug, org_id, credit_balance_usd, customer_id, payment_failed
			FROM tenants WHERE customer_id = $1`, customerID)
		return row.Scan(&t.UID, &t.Slug, &t.OrgID, &t.CreditBalanceUSD, &t.CustomerID, &t.PaymentFailed)
	})
	if err != nil {
		if isNoRows(err) {
			return domain.Tenant{}, apierror.NotFound("tenant", "no tenant for customer %s", customerID)
		}
		return domain.Tenant{}, err
	}
	return t, nil
}

// AdjustCreditBalance atomically adds deltaUSD (negative to debit) to the
// tenant's balance and returns the resulting balance.
func (s *Store) AdjustCreditBalance(ctx context.Context, tenantUID int64, deltaUSD float64) (float64, error) {
	var balance float64
	err := s.withConn(ctx, func(conn connQuerier) error {
		row := conn.QueryRow(ctx, `
			UPDATE tenants SET credit_balance_usd = credit_balance_usd + $2
			WHERE uid = $1
			RETURNING credit_balance_usd`, tenantUID, deltaUSD)
		return row.Scan(&balance)
	})
	if err != nil {
		if isNoRows(err) {
			return 0, apierror.NotFound("tenant", "tenant %d not found", tenantUID)
		}
		return 0, err
	}
	return balance, nil
}

// SetPaymentFailed records a payment failure flag for tenantUID, set by the
// billing webhook handler on a failed charge and cleared on a subsequent
// successful one.
func (s *Store) SetPaymentFailed(ctx context.Context, tenantUID int64, failed bool) error {
	return s.withConn(ctx, func(conn connQuerier) error {
		_, err := conn.Exec(ctx, `UPDATE tenants SET payment_failed = $2 WHERE uid = $1`, tenantUID, failed)
		return err
	})
}
