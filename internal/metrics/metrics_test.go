package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestSanitizeSite(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.expected, SanitizeSite(tc.input))
		})
	}
}

func TestObserveFrontierPage(t *testing.T) {
	Init()
	Init()

	counter := frontierPagesTotal.WithLabelValues("frontier.example", OutcomeSuccess)
	before := testutil.ToFloat64(counter)
	bytesBefore := testutil.ToFloat64(fetchBytesTotal.WithLabelValues("frontier.example"))

	ObserveFrontierPage("https://Frontier.example/a", OutcomeSuccess, 512)

	require.InDelta(t, before+1, testutil.ToFloat64(counter), 0)
	require.InDelta(t, bytesBefore+512, testutil.ToFloat64(fetchBytesTotal.WithLabelValues("frontier.example")), 0)
}

func TestObservePostings(t *testing.T) {
	ok := indexPostingsCounter(OutcomeSuccess)
	failed := indexPostingsCounter(OutcomeFailed)

	ObservePostings(3, 1)
	ObservePostings(0, 0)

	require.InDelta(t, ok+3, indexPostingsCounter(OutcomeSuccess), 0)
	require.InDelta(t, failed+1, indexPostingsCounter(OutcomeFailed), 0)
}

func TestObserveSearchAndClaims(t *testing.T) {
	Init()
	search := testutil.ToFloat64(searchQueriesTotal.WithLabelValues(OutcomeEmpty))
	claims := testutil.ToFloat64(queueClaimsTotal.WithLabelValues("indexer", OutcomeEmpty))

	ObserveSearch(OutcomeEmpty)
	ObserveClaim("indexer", OutcomeEmpty)

	require.InDelta(t, search+1, testutil.ToFloat64(searchQueriesTotal.WithLabelValues(OutcomeEmpty)), 0)
	require.InDelta(t, claims+1, testutil.ToFloat64(queueClaimsTotal.WithLabelValues("indexer", OutcomeEmpty)), 0)
}

func TestActiveWritersGauge(t *testing.T) {
	Init()
	before := testutil.ToFloat64(activeWriters)
	IncActiveWriters()
	require.InDelta(t, before+1, testutil.ToFloat64(activeWriters), 0)
	DecActiveWriters()
	require.InDelta(t, before, testutil.ToFloat64(activeWriters), 0)
}

func indexPostingsCounter(outcome string) float64 {
	Init()
	return testutil.ToFloat64(indexPostingsTotal.WithLabelValues(outcome))
}

func FuzzSanitizeSite(f *testing.F) {
	for _, tc := range []string{"http://example.com", "https://google.com", "ftp://example.com"} {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		if SanitizeSite(orig) == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
