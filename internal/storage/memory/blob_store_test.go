package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/ycrawler/internal/crawler"
)

func TestBlobStorePutCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	ctx := context.Background()
	require.NoError(t, store.CreateNamespace(ctx, "1001"))

	payload := []byte("content")
	uri, err := store.Put(ctx, "1001", "abc", payload)
	require.NoError(t, err)
	assert.Equal(t, "memory://1001/abc", uri)

	payload[0] = 'C'
	stored, ok := store.Get("1001", "abc")
	require.True(t, ok)
	assert.Equal(t, "content", string(stored), "stored copy must be immutable")
}

func TestBlobStoreNamespaces(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	ctx := context.Background()
	require.NoError(t, store.CreateNamespace(ctx, "2"))
	require.NoError(t, store.CreateNamespace(ctx, "1"))

	err := store.CreateNamespace(ctx, "1")
	assert.True(t, crawler.IsNamespaceExists(err))
	assert.Equal(t, []string{"1", "2"}, store.Namespaces())

	_, err = store.Put(ctx, "3", "k", []byte("x"))
	var storeErr *crawler.StoreError
	require.ErrorAs(t, err, &storeErr)

	_, err = store.Put(ctx, "1", "b", nil)
	require.NoError(t, err)
	_, err = store.Put(ctx, "1", "a", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, store.Keys("1"))
	assert.Empty(t, store.Keys("2"))
}
