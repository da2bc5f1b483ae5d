package extractor

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractLinksResolvesAndFilters(t *testing.T) {
	t.Parallel()

	page := `<html><body>
		<a href="/about">About</a>
		<a href="contact.html#form">Contact</a>
		<a href="https://Other.example.org:443/x?b=2&a=1">Other</a>
		<a href="mailto:me@example.test">Mail</a>
		<a href="javascript:void(0)">JS</a>
		<a href="ftp://files.example.test/f">FTP</a>
		<a href="">Empty</a>
		<a>No href</a>
		<a href="/about">About again</a>
	</body></html>`

	links, err := ExtractLinks(page, "https://example.test/docs/index.html")
	require.NoError(t, err)
	require.Equal(t, []string{
		"https://example.test/about",
		"https://example.test/docs/contact.html",
		"https://other.example.org/x?a=1&b=2",
	}, links)
}

func TestExtractLinksHonoursBaseHref(t *testing.T) {
	t.Parallel()

	page := `<html><head><base href="https://cdn.example.test/root/"></head>
		<body><a href="page">Page</a></body></html>`

	links, err := ExtractLinks(page, "https://example.test/")
	require.NoError(t, err)
	require.Equal(t, []string{"https://cdn.example.test/root/page"}, links)
}

func TestExtractLinksLeavesSeedDomain(t *testing.T) {
	t.Parallel()

	links, err := ExtractLinks(`<a href="http://elsewhere.test/">x</a>`, "https://example.test/")
	require.NoError(t, err)
	require.Equal(t, []string{"http://elsewhere.test/"}, links)
}

func TestExtractLinksNoAnchors(t *testing.T) {
	t.Parallel()

	links, err := ExtractLinks("<p>plain</p>", "https://example.test/")
	require.NoError(t, err)
	require.NotNil(t, links)
	require.Empty(t, links)
}

func TestExtractLinksRejectsRelativeBase(t *testing.T) {
	t.Parallel()

	_, err := ExtractLinks(`<a href="/x">x</a>`, "/relative")
	require.Error(t, err)
}
