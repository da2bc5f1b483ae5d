package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/nexus-search/internal/config"
	"github.com/JakeFAU/nexus-search/internal/crawler"
	"github.com/JakeFAU/nexus-search/internal/dispatcher"
	"github.com/JakeFAU/nexus-search/internal/queue/memory"
	"github.com/JakeFAU/nexus-search/internal/search"
	memstore "github.com/JakeFAU/nexus-search/internal/storage/memory"
)

type failingStore struct{}

func (failingStore) Upsert(context.Context, crawler.Posting) error { return errors.New("down") }

func (failingStore) QueryByKeyword(context.Context, string) ([]crawler.Posting, error) {
	return nil, errors.New("connection refused")
}

type failingSubmitter struct{}

func (failingSubmitter) Enqueue(context.Context, string) (string, error) {
	return "", errors.New("queue unavailable")
}

func seededResolver(t *testing.T) *search.Resolver {
	t.Helper()
	store := memstore.NewIndexStore()
	for i, p := range []crawler.Posting{
		{Keyword: "bird", URL: "https://a.test", Title: "A", Score: 3},
		{Keyword: "bird", URL: "https://b.test", Title: "B", Score: 7},
		{Keyword: "bird", URL: "https://c.test", Title: "C", Score: 1},
	} {
		require.NoError(t, store.Upsert(context.Background(), p), "posting %d", i)
	}
	return search.NewResolver(store, zap.NewNop())
}

func testConfig() config.Config {
	return config.Config{Server: config.ServerConfig{Port: 8080, RequestTimeout: 5 * time.Second}}
}

func do(t *testing.T, h http.Handler, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestSearchReturnsRankedResults(t *testing.T) {
	t.Parallel()

	srv := NewServer(seededResolver(t), testConfig(), zap.NewNop())
	rec := do(t, srv.Handler(), http.MethodGet, "/v1/search?q=Bird", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	var resp searchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "bird", resp.Query)
	require.Equal(t, 3, resp.Count)
	require.Equal(t, "https://b.test", resp.Results[0].URL)
	require.Equal(t, 7, resp.Results[0].Score)
	require.Equal(t, "https://c.test", resp.Results[2].URL)
}

func TestSearchAppliesLimit(t *testing.T) {
	t.Parallel()

	srv := NewServer(seededResolver(t), testConfig(), zap.NewNop())
	rec := do(t, srv.Handler(), http.MethodGet, "/v1/search?q=bird&limit=2", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp searchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 2)
}

func TestSearchRejectsBadLimit(t *testing.T) {
	t.Parallel()

	srv := NewServer(seededResolver(t), testConfig(), zap.NewNop())
	for _, limit := range []string{"0", "-1", "abc", "101"} {
		rec := do(t, srv.Handler(), http.MethodGet, "/v1/search?q=bird&limit="+limit, nil)
		require.Equal(t, http.StatusBadRequest, rec.Code, "limit=%s", limit)
	}
}

func TestSearchNoResults(t *testing.T) {
	t.Parallel()

	srv := NewServer(seededResolver(t), testConfig(), zap.NewNop())
	for _, target := range []string{"/v1/search?q=nonexistent", "/v1/search"} {
		rec := do(t, srv.Handler(), http.MethodGet, target, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var resp searchResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.NotNil(t, resp.Results)
		require.Empty(t, resp.Results)
	}
}

func TestSearchBackendUnavailable(t *testing.T) {
	t.Parallel()

	srv := NewServer(search.NewResolver(failingStore{}, nil), testConfig(), zap.NewNop())
	rec := do(t, srv.Handler(), http.MethodGet, "/v1/search?q=bird", nil)

	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.Contains(t, rec.Body.String(), "index unavailable")
}

func TestSubmitURL(t *testing.T) {
	t.Parallel()

	q := memory.NewQueue(time.Minute)
	srv := NewServer(seededResolver(t), testConfig(), zap.NewNop(),
		WithSubmitter(dispatcher.New(q, nil, nil)))

	rec := do(t, srv.Handler(), http.MethodPost, "/v1/urls", []byte(`{"url":"HTTPS://Example.com/a#top"}`))
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.JSONEq(t, `{"url":"https://example.com/a"}`, rec.Body.String())
	require.Equal(t, 1, q.Pending())

	rec = do(t, srv.Handler(), http.MethodPost, "/v1/urls", []byte(`{invalid`))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv.Handler(), http.MethodPost, "/v1/urls", []byte(`{"url":"ftp://example.com"}`))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitURLQueueFailure(t *testing.T) {
	t.Parallel()

	srv := NewServer(seededResolver(t), testConfig(), zap.NewNop(), WithSubmitter(failingSubmitter{}))
	rec := do(t, srv.Handler(), http.MethodPost, "/v1/urls", []byte(`{"url":"https://example.com"}`))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSubmitURLDisabledWithoutSubmitter(t *testing.T) {
	t.Parallel()

	srv := NewServer(seededResolver(t), testConfig(), zap.NewNop())
	rec := do(t, srv.Handler(), http.MethodPost, "/v1/urls", []byte(`{"url":"https://example.com"}`))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthAndReadiness(t *testing.T) {
	t.Parallel()

	healthy := NewServer(seededResolver(t), testConfig(), zap.NewNop(),
		WithReadinessCheck("index", func(context.Context) error { return nil }))
	require.Equal(t, http.StatusOK, do(t, healthy.Handler(), http.MethodGet, "/healthz", nil).Code)
	require.Equal(t, http.StatusOK, do(t, healthy.Handler(), http.MethodGet, "/readyz", nil).Code)

	degraded := NewServer(seededResolver(t), testConfig(), zap.NewNop(),
		WithReadinessCheck("queue", func(context.Context) error { return errors.New("redis down") }))
	rec := do(t, degraded.Handler(), http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), "redis down")
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	srv := NewServer(seededResolver(t), testConfig(), zap.NewNop())
	_ = do(t, srv.Handler(), http.MethodGet, "/v1/search?q=bird", nil)
	rec := do(t, srv.Handler(), http.MethodGet, "/metrics", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "nexus_search_queries_total")
}

func TestAPIKeyRequired(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Auth = config.AuthConfig{Enabled: true, APIKey: "secret"}
	srv := NewServer(seededResolver(t), cfg, zap.NewNop())

	require.Equal(t, http.StatusForbidden, do(t, srv.Handler(), http.MethodGet, "/v1/search?q=bird", nil).Code)
	require.Equal(t, http.StatusOK, do(t, srv.Handler(), http.MethodGet, "/v1/search?q=bird&api_key=secret", nil).Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/search?q=bird", nil)
	req.Header.Set("X-API-Key", "secret")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Equal(t, http.StatusOK, do(t, srv.Handler(), http.MethodGet, "/healthz", nil).Code)
}

func TestRequestIDPropagated(t *testing.T) {
	t.Parallel()

	srv := NewServer(seededResolver(t), testConfig(), zap.NewNop())
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))
}

func TestRecoverMiddleware(t *testing.T) {
	t.Parallel()

	srv := NewServer(seededResolver(t), testConfig(), zap.NewNop())
	srv.router.Get("/panic", func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})

	rec := do(t, srv.Handler(), http.MethodGet, "/panic", nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "internal server error")
}
