package analytical

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

func TestReset_ReapliesMigrationsCleanly(t *testing.T) {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("gateway_analytics"),
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

	store, err := Open(ctx, connStr, WithRoleSalt("test-salt"))
	require.NoError(t, err)
	tenantCtx := WithTenant(ctx, 1)
	require.NoError(t, store.InsertCompletion(tenantCtx, newCompletion(1, "v1", "in1", domain.CompletionSuccess)))
	store.Close()

	require.NoError(t, Reset(connStr))

	store, err = Open(ctx, connStr, WithRoleSalt("test-salt"))
	require.NoError(t, err)
	defer store.Close()

	_, found, err := store.Lookup(tenantCtx, "v1", "in1")
	require.NoError(t, err)
	require.False(t, found, "reset should have dropped the completion inserted before it ran")
}
