package relational

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestReset_ReapliesMigrationsCleanly(t *testing.T) {
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
	tenant, err := store.GetOrCreateTenant(ctx, "acme", 1)
	require.NoError(t, err)
	store.Close()

	require.NoError(t, Reset(connStr))

	store, err = Open(ctx, connStr)
	require.NoError(t, err)
	defer store.Close()

	_, err = store.GetTenant(ctx, tenant.UID)
	require.Error(t, err, "reset should have dropped the tenant created before it ran")
}
