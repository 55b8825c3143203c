// Package tasks implements the handlers registered on an
// runtime/eventbus.Broker (spec §4.4): the event-driven side effects of a
// completion (persisting it, debiting credits), an experiment cell
// (running it), and a billing webhook delivery (probing a charge).
package tasks

import (
	"context"

	"github.com/anotherai/gateway/runtime/domain"
	"github.com/anotherai/gateway/runtime/eventbus"
	"github.com/anotherai/gateway/runtime/experiment"
	"github.com/anotherai/gateway/runtime/runner"
	"github.com/anotherai/gateway/runtime/security"
	"github.com/anotherai/gateway/runtime/store/analytical"
	"github.com/anotherai/gateway/runtime/telemetry"
)

// completionInserter is the subset of runtime/store/analytical.Store
// PersistCompletion needs.
type completionInserter interface {
	InsertCompletion(ctx context.Context, c *domain.AgentCompletion) error
}

// tenantStore is the subset of runtime/store/relational.Store the credit
// and experiment-replay tasks need.
type tenantStore interface {
	AdjustCreditBalance(ctx context.Context, tenantUID int64, deltaUSD float64) (float64, error)
	GetInput(ctx context.Context, tenantUID int64, id string) (domain.Input, error)
	GetVersion(ctx context.Context, tenantUID int64, id string) (domain.Version, error)
}

// completionRunner is the subset of runtime/runner.Runner
// RunExperimentCompletion needs.
type completionRunner interface {
	Complete(ctx context.Context, req *runner.Request) (*domain.AgentCompletion, error)
}

// duplicateChecker is swapped in tests; in production it's
// analytical.IsDuplicate.
type duplicateChecker func(error) bool

// Handlers owns every dependency the registered tasks need and exposes one
// TaskFunc-shaped method per task. Register wires all of them onto a broker.
type Handlers struct {
	Store       tenantStore
	Completions completionInserter
	Experiments *experiment.Service
	Runner      completionRunner
	Logger      telemetry.Logger

	// IsDuplicate classifies an InsertCompletion error as "already
	// persisted by a prior delivery". Defaults to analytical.IsDuplicate
	// when nil.
	IsDuplicate duplicateChecker
}

// Register associates every task this package implements with broker,
// fanning EventStoreCompletion out to two independently retried tasks per
// spec §4.4's "persist the completion and separately decrement credits".
func (h *Handlers) Register(broker eventbus.Broker) {
	broker.RegisterTask("persist_completion", eventbus.EventStoreCompletion, h.PersistCompletion, eventbus.TaskOptions{})
	broker.RegisterTask("decrement_credits", eventbus.EventStoreCompletion, h.DecrementCredits, eventbus.TaskOptions{})
	broker.RegisterTask("run_experiment_completion", eventbus.EventStartExperimentCompletion, h.RunExperimentCompletion, eventbus.TaskOptions{})
	broker.RegisterTask("probe_payment", eventbus.EventPaymentUpdated, h.ProbePayment, eventbus.TaskOptions{})
}

// PersistCompletion appends the published completion to the analytical
// store. A redelivery landing on a completion already persisted is not an
// error: the completions table's (tenant_uid, id) primary key makes the
// insert naturally idempotent, and IsDuplicate recognizes that case.
func (h *Handlers) PersistCompletion(ctx context.Context, event eventbus.Event) error {
	var completion domain.AgentCompletion
	if err := event.DecodePayload(&completion); err != nil {
		return err
	}
	if err := h.Completions.InsertCompletion(ctx, &completion); err != nil {
		if h.isDuplicate(err) {
			return nil
		}
		return err
	}
	return nil
}

func (h *Handlers) isDuplicate(err error) bool {
	if h.IsDuplicate != nil {
		return h.IsDuplicate(err)
	}
	return analytical.IsDuplicate(err)
}

// DecrementCredits debits the tenant's balance by the completion's cost,
// unless the completion was run with PreserveCredits (an internal or
// free-tier call that must not touch the tenant's balance). Re-running this
// task on a redelivered event would double-debit; callers that need a
// delivery guarantee beyond "at most once on a fresh consumer" track
// settlement state themselves, as spec §4.4 does not require this task to
// be idempotent (unlike PersistCompletion's primary-key dedup).
func (h *Handlers) DecrementCredits(ctx context.Context, event eventbus.Event) error {
	var completion domain.AgentCompletion
	if err := event.DecodePayload(&completion); err != nil {
		return err
	}
	if completion.PreserveCredits || completion.CostUSD == 0 {
		return nil
	}
	_, err := h.Store.AdjustCreditBalance(ctx, completion.TenantUID, -completion.CostUSD)
	return err
}

// RunExperimentCompletion drives one experiment cell end to end via
// experiment.Service.RunStartedCompletion, which is itself safely retried:
// reserving an already-reserved cell or finalizing an already-finalized one
// both surface as apierror.KindDuplicateValue and are swallowed there.
func (h *Handlers) RunExperimentCompletion(ctx context.Context, event eventbus.Event) error {
	var payload experiment.StartExperimentCompletionPayload
	if err := event.DecodePayload(&payload); err != nil {
		return err
	}
	return h.Experiments.RunStartedCompletion(ctx, h.Store, h.Runner, payload)
}

// ProbePayment attempts a zero-amount credit adjustment against the tenant
// named in the webhook-published payload. A zero-amount charge on most
// payment providers still runs the tenant's card through the authorization
// flow, which is the mechanism spec §4.4 calls "a probe-debit-of-zero to
// trigger a payment" for clearing a previously failed card out of band from
// any billable request.
func (h *Handlers) ProbePayment(ctx context.Context, event eventbus.Event) error {
	var payload security.PaymentUpdatedPayload
	if err := event.DecodePayload(&payload); err != nil {
		return err
	}
	_, err := h.Store.AdjustCreditBalance(ctx, payload.TenantUID, 0)
	return err
}
