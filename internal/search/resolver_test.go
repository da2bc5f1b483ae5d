package search

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/nexus-search/internal/crawler"
	"github.com/JakeFAU/nexus-search/internal/storage/memory"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Upsert(ctx context.Context, p crawler.Posting) error {
	return m.Called(ctx, p).Error(0)
}

func (m *mockStore) QueryByKeyword(ctx context.Context, keyword string) ([]crawler.Posting, error) {
	args := m.Called(ctx, keyword)
	postings, _ := args.Get(0).([]crawler.Posting)
	return postings, args.Error(1)
}

func TestFindOrdersByScoreThenURL(t *testing.T) {
	t.Parallel()

	store := memory.NewIndexStore()
	ctx := context.Background()
	for _, p := range []crawler.Posting{
		{Keyword: "bird", URL: "https://z.test", Title: "Z", Score: 5},
		{Keyword: "bird", URL: "https://b.test", Title: "B", Score: 9},
		{Keyword: "bird", URL: "https://a.test", Title: "A", Score: 5},
		{Keyword: "cats", URL: "https://c.test", Title: "C", Score: 1},
	} {
		require.NoError(t, store.Upsert(ctx, p))
	}

	got, err := NewResolver(store, zap.NewNop()).Find(ctx, "  BIRD ")
	require.NoError(t, err)
	urls := make([]string, 0, len(got))
	for _, p := range got {
		urls = append(urls, p.URL)
	}
	require.Equal(t, []string{"https://b.test", "https://a.test", "https://z.test"}, urls)
}

func TestFindSortsUnorderedBackend(t *testing.T) {
	t.Parallel()

	store := &mockStore{}
	store.On("QueryByKeyword", mock.Anything, "bird").Return([]crawler.Posting{
		{Keyword: "bird", URL: "https://b.test", Score: 1},
		{Keyword: "bird", URL: "https://a.test", Score: 1},
		{Keyword: "bird", URL: "https://c.test", Score: 7},
	}, nil)

	got, err := NewResolver(store, nil).Find(context.Background(), "bird")
	require.NoError(t, err)
	require.Equal(t, "https://c.test", got[0].URL)
	require.Equal(t, "https://a.test", got[1].URL)
	require.Equal(t, "https://b.test", got[2].URL)
}

func TestFindNoResults(t *testing.T) {
	t.Parallel()

	store := &mockStore{}
	store.On("QueryByKeyword", mock.Anything, "nonexistent").Return(nil, nil)

	got, err := NewResolver(store, nil).Find(context.Background(), "nonexistent")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Empty(t, got)
}

func TestFindBlankKeywordSkipsStore(t *testing.T) {
	t.Parallel()

	store := &mockStore{}
	got, err := NewResolver(store, nil).Find(context.Background(), "   ")
	require.NoError(t, err)
	require.Empty(t, got)
	store.AssertNotCalled(t, "QueryByKeyword", mock.Anything, mock.Anything)
}

func TestFindBackendFailure(t *testing.T) {
	t.Parallel()

	backendErr := errors.New("connection refused")
	store := &mockStore{}
	store.On("QueryByKeyword", mock.Anything, "bird").Return(nil, backendErr)

	got, err := NewResolver(store, nil).Find(context.Background(), "bird")
	require.Nil(t, got)
	require.ErrorIs(t, err, ErrIndexUnavailable)
	require.ErrorIs(t, err, backendErr)
}
