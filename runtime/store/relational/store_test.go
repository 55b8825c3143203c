package relational

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/anotherai/gateway/runtime/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("gateway"),
		postgres.WithUsername("gateway"),
		postgres.WithPassword("gateway"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(pgContainer); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	store, err := Open(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(store.Close)
	return store
}

func TestStore_GetOrCreateTenant_IsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, err := store.GetOrCreateTenant(ctx, "acme", 1)
	require.NoError(t, err)
	second, err := store.GetOrCreateTenant(ctx, "acme", 2)
	require.NoError(t, err)

	require.Equal(t, first.UID, second.UID)
}

func TestStore_AdjustCreditBalance_Accumulates(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.GetOrCreateTenant(ctx, "acme", 10)
	require.NoError(t, err)

	balance, err := store.AdjustCreditBalance(ctx, 10, 5.0)
	require.NoError(t, err)
	require.Equal(t, 5.0, balance)

	balance, err = store.AdjustCreditBalance(ctx, 10, -2.5)
	require.NoError(t, err)
	require.Equal(t, 2.5, balance)
}

func TestStore_RowLevelSecurity_ScopesAgentsByTenant(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.GetOrCreateTenant(ctx, "tenant-a", 1)
	require.NoError(t, err)
	_, err = store.GetOrCreateTenant(ctx, "tenant-b", 2)
	require.NoError(t, err)

	_, err = store.GetOrCreateAgent(ctx, 1, "support-bot")
	require.NoError(t, err)
	_, err = store.GetOrCreateAgent(ctx, 2, "sales-bot")
	require.NoError(t, err)

	agentsA, err := store.ListAgents(ctx, 1)
	require.NoError(t, err)
	require.Len(t, agentsA, 1)
	require.Equal(t, "support-bot", agentsA[0].Slug)

	agentsB, err := store.ListAgents(ctx, 2)
	require.NoError(t, err)
	require.Len(t, agentsB, 1)
	require.Equal(t, "sales-bot", agentsB[0].Slug)
}

func TestStore_UpsertVersion_IsContentAddressedAndIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	_, err := store.GetOrCreateTenant(ctx, "acme", 1)
	require.NoError(t, err)

	temp := float32(0.7)
	v := domain.Version{Model: "gpt-4o", Temperature: &temp}

	id1, inserted1, err := store.UpsertVersion(ctx, 1, v)
	require.NoError(t, err)
	require.True(t, inserted1)

	id2, inserted2, err := store.UpsertVersion(ctx, 1, v)
	require.NoError(t, err)
	require.False(t, inserted2)
	require.Equal(t, id1, id2)
}

func TestStore_AddExperimentOutput_RejectsDuplicatePair(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	_, err := store.GetOrCreateTenant(ctx, "acme", 1)
	require.NoError(t, err)

	exp, err := store.CreateExperiment(ctx, 1, "exp_1", "agent-1", "first run")
	require.NoError(t, err)

	out := domain.ExperimentOutput{InputID: "in_1", VersionID: "ver_1"}
	require.NoError(t, store.AddExperimentOutput(ctx, 1, exp.ID, out))

	err = store.AddExperimentOutput(ctx, 1, exp.ID, out)
	require.Error(t, err)
}
