package blob

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocalStorePutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	data := []byte("hello blob")
	ref, err := store.Put(ctx, data, "text/plain")
	require.NoError(t, err)
	require.NotEmpty(t, ref.Key)
	require.Equal(t, int64(len(data)), ref.Size)
	require.Equal(t, "text/plain", ref.ContentType)

	exists, err := store.Exists(ctx, ref.Key)
	require.NoError(t, err)
	require.True(t, exists)

	got, err := store.Get(ctx, ref.Key)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestLocalStorePutDedupesIdenticalContent(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	data := []byte("same bytes twice")
	first, err := store.Put(ctx, data, "application/octet-stream")
	require.NoError(t, err)
	second, err := store.Put(ctx, data, "application/octet-stream")
	require.NoError(t, err)

	require.Equal(t, first.Key, second.Key)
}

func TestLocalStoreGetMissingReturnsNotFound(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Get(ctx, "0000000000000000000000000000000000000000000000000000000000000000")
	require.Error(t, err)
}

func TestLocalStoreExistsFalseForUnknownKey(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	exists, err := store.Exists(ctx, "deadbeef")
	require.NoError(t, err)
	require.False(t, exists)
}
