// Package extractor turns fetched HTML into outbound links and indexable text.
package extractor

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/nexus-search/internal/crawler"
)

// ExtractLinks resolves every a[href] in pageHTML against baseURL and returns
// the normalized http(s) results, deduplicated, in document order. A <base
// href> in the document takes precedence over baseURL.
func ExtractLinks(pageHTML, baseURL string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageHTML))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return LinksFromDocument(doc, baseURL)
}

// LinksFromDocument is ExtractLinks for an already parsed document.
func LinksFromDocument(doc *goquery.Document, baseURL string) ([]string, error) {
	base, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if !base.IsAbs() {
		return nil, fmt.Errorf("base url %q is not absolute", baseURL)
	}
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if override, err := base.Parse(strings.TrimSpace(href)); err == nil {
			base = override
		}
	}

	links := []string{}
	seen := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" {
			return
		}
		resolved, err := base.Parse(href)
		if err != nil {
			return
		}
		abs := resolved.String()
		if !crawler.IsCrawlable(abs) {
			return
		}
		normalized, err := crawler.NormalizeURL(abs)
		if err != nil {
			return
		}
		if _, dup := seen[normalized]; dup {
			return
		}
		seen[normalized] = struct{}{}
		links = append(links, normalized)
	})
	return links, nil
}
