package security

import (
	"context"

	"github.com/anotherai/gateway/runtime/apierror"
	"github.com/anotherai/gateway/runtime/domain"
)

// creditStore is the subset of runtime/store/relational.Store the credit
// gate needs to read a tenant's standing.
type creditStore interface {
	GetTenant(ctx context.Context, uid int64) (domain.Tenant, error)
}

// CreditGate rejects billable requests from a tenant with a non-positive
// balance and a recorded payment failure, per spec §4.4: a completion that
// sets PreserveCredits is exempt, since it represents work already committed
// (e.g. a retry of a partially-billed attempt).
type CreditGate struct {
	tenants creditStore
}

// NewCreditGate builds a gate backed by tenants.
func NewCreditGate(tenants creditStore) *CreditGate {
	return &CreditGate{tenants: tenants}
}

// Check returns apierror.CreditExhausted if tenantUID may not proceed with a
// billable request. preserveCredits exempts requests that must run
// regardless of balance (completions explicitly marked not to consume
// credits, such as a fallback retry of an already-billed attempt).
func (g *CreditGate) Check(ctx context.Context, tenantUID int64, preserveCredits bool) error {
	if preserveCredits {
		return nil
	}
	tenant, err := g.tenants.GetTenant(ctx, tenantUID)
	if err != nil {
		return err
	}
	if tenant.CreditBalanceUSD <= 0 && tenant.PaymentFailed {
		return apierror.CreditExhausted(tenantUID)
	}
	return nil
}
