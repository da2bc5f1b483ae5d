package extractor

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	nethtml "golang.org/x/net/html"

	"github.com/JakeFAU/nexus-search/internal/crawler"
)

// nonContent lists the elements removed before text extraction.
const nonContent = "script, style, meta, noscript, template"

var titlePolicy = bluemonday.StrictPolicy()

// ParseDocument builds the PageDocument for a fetched page: title, visible
// text with non-content markup removed, and outbound links.
func ParseDocument(pageURL string, body []byte) (crawler.PageDocument, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return crawler.PageDocument{}, fmt.Errorf("parse html: %w", err)
	}

	links, err := LinksFromDocument(doc, pageURL)
	if err != nil {
		return crawler.PageDocument{}, err
	}

	title := Title(doc)
	doc.Find(nonContent).Remove()

	return crawler.PageDocument{
		URL:           pageURL,
		Title:         title,
		RawText:       VisibleText(doc),
		OutboundLinks: links,
	}, nil
}

// Title returns the sanitized text of the first <title>, or crawler.NoTitle.
// The policy runs over the entity-escaped markup so that escaped angle
// brackets survive as text.
func Title(doc *goquery.Document) string {
	raw, err := doc.Find("title").First().Html()
	if err != nil {
		return crawler.NoTitle
	}
	clean := html.UnescapeString(titlePolicy.Sanitize(raw))
	clean = strings.Join(strings.Fields(clean), " ")
	if clean == "" {
		return crawler.NoTitle
	}
	return clean
}

// VisibleText joins every text node of doc with single spaces.
func VisibleText(doc *goquery.Document) string {
	var parts []string
	var walk func(*nethtml.Node)
	walk = func(n *nethtml.Node) {
		if n.Type == nethtml.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
				parts = append(parts, text)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range doc.Nodes {
		walk(n)
	}
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}
