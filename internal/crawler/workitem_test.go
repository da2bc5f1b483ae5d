package crawler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeWorkItem(t *testing.T) {
	t.Parallel()

	body, err := EncodeWorkItem(WorkItem{URL: "https://example.com/a"})
	require.NoError(t, err)
	require.JSONEq(t, `{"url":"https://example.com/a"}`, string(body))

	_, err = EncodeWorkItem(WorkItem{URL: " "})
	require.ErrorIs(t, err, ErrMalformedWorkItem)
}

func TestDecodeWorkItem(t *testing.T) {
	t.Parallel()

	item, err := DecodeWorkItem([]byte(`{"url":" https://example.com/a "}`))
	require.NoError(t, err)
	require.Equal(t, "https://example.com/a", item.URL)
}

func TestDecodeWorkItemRejectsMalformed(t *testing.T) {
	t.Parallel()

	bodies := map[string]string{
		"not json":    `garbage`,
		"missing url": `{"href":"https://example.com"}`,
		"empty url":   `{"url":""}`,
		"wrong type":  `{"url":42}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := DecodeWorkItem([]byte(body))
			require.ErrorIs(t, err, ErrMalformedWorkItem)
		})
	}
}

func TestDecodeWorkItemUncrawlableURL(t *testing.T) {
	t.Parallel()

	bodies := map[string]string{
		"no scheme":    `{"url":"example.test"}`,
		"relative url": `{"url":"/about"}`,
		"other scheme": `{"url":"ftp://example.test/file"}`,
		"mailto":       `{"url":"mailto:x@example.com"}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			item, err := DecodeWorkItem([]byte(body))
			require.ErrorIs(t, err, ErrUncrawlableURL)
			require.NotErrorIs(t, err, ErrMalformedWorkItem)
			require.NotEmpty(t, item.URL)
		})
	}
}

func TestFetchResponseClassification(t *testing.T) {
	t.Parallel()

	require.True(t, FetchResponse{StatusCode: 200}.OK())
	require.False(t, FetchResponse{StatusCode: 204}.OK())
	require.True(t, FetchResponse{StatusCode: 503}.Transient())
	require.True(t, FetchResponse{StatusCode: 429}.Transient())
	require.False(t, FetchResponse{StatusCode: 404}.Transient())
}
