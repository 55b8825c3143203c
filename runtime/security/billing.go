package security

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"

	"github.com/anotherai/gateway/runtime/apierror"
	"github.com/anotherai/gateway/runtime/domain"
	"github.com/anotherai/gateway/runtime/eventbus"
	"github.com/anotherai/gateway/runtime/telemetry"
)

// billingStore is the subset of runtime/store/relational.Store the billing
// webhook needs to resolve a Stripe customer to a tenant and record its
// payment standing.
type billingStore interface {
	GetTenantByCustomerID(ctx context.Context, customerID string) (domain.Tenant, error)
	SetPaymentFailed(ctx context.Context, tenantUID int64, failed bool) error
}

// BillingWebhook verifies and handles Stripe webhook deliveries, updating
// the tenant's payment_failed marker and publishing EventPaymentUpdated so a
// registered task can probe a zero-amount credit decrement (spec §4.4: "a
// probe-debit-of-zero to trigger a payment").
type BillingWebhook struct {
	tenants       billingStore
	bus           eventbus.Broker
	signingSecret string
	logger        telemetry.Logger
}

// NewBillingWebhook builds a handler verifying deliveries against
// signingSecret (the endpoint's STRIPE_WEBHOOK_SECRET).
func NewBillingWebhook(tenants billingStore, bus eventbus.Broker, signingSecret string, logger telemetry.Logger) *BillingWebhook {
	return &BillingWebhook{tenants: tenants, bus: bus, signingSecret: signingSecret, logger: logger}
}

// Handle verifies r's Stripe-Signature header against body and applies the
// event. Returns an *apierror.Error suitable for direct HTTP translation.
func (w *BillingWebhook) Handle(ctx context.Context, r *http.Request) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, 64*1024))
	if err != nil {
		return apierror.Wrap(apierror.KindBadRequest, "read webhook body", err)
	}

	event, err := webhook.ConstructEvent(body, r.Header.Get("Stripe-Signature"), w.signingSecret)
	if err != nil {
		return apierror.Wrap(apierror.KindInvalidToken, "verify stripe signature", err)
	}

	customerID, failed, ok := classifyStripeEvent(event)
	if !ok {
		return nil
	}

	tenant, err := w.tenants.GetTenantByCustomerID(ctx, customerID)
	if err != nil {
		return err
	}

	if err := w.tenants.SetPaymentFailed(ctx, tenant.UID, failed); err != nil {
		return err
	}

	if w.logger != nil {
		w.logger.Info(ctx, "tenant payment status updated", "tenant_uid", tenant.UID, "payment_failed", failed)
	}

	return w.bus.Publish(ctx, eventbus.Event{
		Type:    eventbus.EventPaymentUpdated,
		Payload: PaymentUpdatedPayload{TenantUID: tenant.UID},
	})
}

// PaymentUpdatedPayload is the eventbus.Event payload published by Handle.
// The registered EventPaymentUpdated task decodes this to attempt its
// zero-amount credit decrement against the named tenant.
type PaymentUpdatedPayload struct {
	TenantUID int64
}

// classifyStripeEvent maps a raw Stripe event to the customer id it
// concerns and whether it represents a payment failure. ok is false for
// event types the gateway does not act on.
func classifyStripeEvent(event stripe.Event) (customerID string, failed bool, ok bool) {
	switch event.Type {
	case "invoice.payment_failed":
		var invoice stripe.Invoice
		if err := unmarshalEventObject(event, &invoice); err != nil {
			return "", false, false
		}
		if invoice.Customer == nil {
			return "", false, false
		}
		return invoice.Customer.ID, true, true

	case "invoice.payment_succeeded", "payment_intent.succeeded":
		var intent stripe.PaymentIntent
		if err := unmarshalEventObject(event, &intent); err == nil && intent.Customer != nil {
			return intent.Customer.ID, false, true
		}
		var invoice stripe.Invoice
		if err := unmarshalEventObject(event, &invoice); err == nil && invoice.Customer != nil {
			return invoice.Customer.ID, false, true
		}
		return "", false, false

	default:
		return "", false, false
	}
}

func unmarshalEventObject(event stripe.Event, v any) error {
	return json.Unmarshal(event.Data.Raw, v)
}
