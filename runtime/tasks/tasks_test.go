package tasks

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anotherai/gateway/runtime/domain"
	"github.com/anotherai/gateway/runtime/eventbus"
	"github.com/anotherai/gateway/runtime/security"
)

type fakeStore struct {
	adjustCalls []float64
	adjustErr   error
}

func (f *fakeStore) AdjustCreditBalance(_ context.Context, _ int64, deltaUSD float64) (float64, error) {
	f.adjustCalls = append(f.adjustCalls, deltaUSD)
	return 0, f.adjustErr
}

func (f *fakeStore) GetInput(context.Context, int64, string) (domain.Input, error) {
	return domain.Input{}, nil
}

func (f *fakeStore) GetVersion(context.Context, int64, string) (domain.Version, error) {
	return domain.Version{}, nil
}

type fakeInserter struct {
	inserted []*domain.AgentCompletion
	err      error
}

func (f *fakeInserter) InsertCompletion(_ context.Context, c *domain.AgentCompletion) error {
	if f.err != nil {
		return f.err
	}
	f.inserted = append(f.inserted, c)
	return nil
}

func completionEvent(t *testing.T, c domain.AgentCompletion) eventbus.Event {
	t.Helper()
	return eventbus.Event{Type: eventbus.EventStoreCompletion, Payload: c}
}

func TestPersistCompletion_InsertsDecodedPayload(t *testing.T) {
	inserter := &fakeInserter{}
	h := &Handlers{Completions: inserter}

	id, err := domain.NewCompletionID()
	require.NoError(t, err)
	err = h.PersistCompletion(context.Background(), completionEvent(t, domain.AgentCompletion{ID: id, TenantUID: 7}))

	require.NoError(t, err)
	require.Len(t, inserter.inserted, 1)
	assert.Equal(t, int64(7), inserter.inserted[0].TenantUID)
}

func TestPersistCompletion_SwallowsDuplicate(t *testing.T) {
	inserter := &fakeInserter{err: errors.New("duplicate key")}
	h := &Handlers{Completions: inserter, IsDuplicate: func(error) bool { return true }}

	err := h.PersistCompletion(context.Background(), completionEvent(t, domain.AgentCompletion{TenantUID: 7}))

	assert.NoError(t, err)
}

func TestPersistCompletion_PropagatesNonDuplicateError(t *testing.T) {
	inserter := &fakeInserter{err: errors.New("connection reset")}
	h := &Handlers{Completions: inserter, IsDuplicate: func(error) bool { return false }}

	err := h.PersistCompletion(context.Background(), completionEvent(t, domain.AgentCompletion{TenantUID: 7}))

	assert.Error(t, err)
}

func TestDecrementCredits_DebitsCost(t *testing.T) {
	store := &fakeStore{}
	h := &Handlers{Store: store}

	err := h.DecrementCredits(context.Background(), completionEvent(t, domain.AgentCompletion{TenantUID: 3, CostUSD: 1.5}))

	require.NoError(t, err)
	require.Len(t, store.adjustCalls, 1)
	assert.Equal(t, -1.5, store.adjustCalls[0])
}

func TestDecrementCredits_SkipsWhenPreserveCreditsSet(t *testing.T) {
	store := &fakeStore{}
	h := &Handlers{Store: store}

	err := h.DecrementCredits(context.Background(), completionEvent(t, domain.AgentCompletion{TenantUID: 3, CostUSD: 1.5, PreserveCredits: true}))

	require.NoError(t, err)
	assert.Empty(t, store.adjustCalls)
}

func TestProbePayment_AdjustsByZero(t *testing.T) {
	store := &fakeStore{}
	h := &Handlers{Store: store}

	err := h.ProbePayment(context.Background(), eventbus.Event{
		Type:    eventbus.EventPaymentUpdated,
		Payload: security.PaymentUpdatedPayload{TenantUID: 9},
	})

	require.NoError(t, err)
	require.Len(t, store.adjustCalls, 1)
	assert.Equal(t, float64(0), store.adjustCalls[0])
}
