package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/nexus-search/internal/crawler"
)

func newTestStore(t *testing.T) (*IndexStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store, err := New(client, "")
	require.NoError(t, err)
	return store, mr
}

func TestIndexStoreUpsertAndQuery(t *testing.T) {
	t.Parallel()

	store, mr := newTestStore(t)
	ctx := context.Background()
	for _, p := range []crawler.Posting{
		{Keyword: "bird", URL: "https://c.test", Title: "C", Score: 2},
		{Keyword: "bird", URL: "https://a.test", Title: "A", Score: 2},
		{Keyword: "bird", URL: "https://b.test", Title: "B", Score: 9},
	} {
		require.NoError(t, store.Upsert(ctx, p))
	}

	got, err := store.QueryByKeyword(ctx, "bird")
	require.NoError(t, err)
	require.Equal(t, []crawler.Posting{
		{Keyword: "bird", URL: "https://b.test", Title: "B", Score: 9},
		{Keyword: "bird", URL: "https://a.test", Title: "A", Score: 2},
		{Keyword: "bird", URL: "https://c.test", Title: "C", Score: 2},
	}, got)
	require.True(t, mr.Exists("nexus:index:kw:bird"))
}

func TestIndexStoreUpsertOverwritesScore(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Upsert(ctx, crawler.Posting{Keyword: "cats", URL: "https://a.test", Title: "Old", Score: 4}))
	require.NoError(t, store.Upsert(ctx, crawler.Posting{Keyword: "cats", URL: "https://a.test", Title: "New", Score: 4}))

	got, err := store.QueryByKeyword(ctx, "cats")
	require.NoError(t, err)
	require.Equal(t, []crawler.Posting{{Keyword: "cats", URL: "https://a.test", Title: "New", Score: 4}}, got)
}

func TestIndexStoreMissingKeyword(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)
	got, err := store.QueryByKeyword(context.Background(), "nonexistent")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Empty(t, got)
}

func TestIndexStoreBackendDown(t *testing.T) {
	t.Parallel()

	store, mr := newTestStore(t)
	mr.Close()
	_, err := store.QueryByKeyword(context.Background(), "cats")
	require.Error(t, err)
	require.Error(t, store.Upsert(context.Background(), crawler.Posting{Keyword: "cats", URL: "https://a.test"}))
}

func TestNewRequiresClient(t *testing.T) {
	t.Parallel()

	_, err := New(nil, "")
	require.Error(t, err)
}
