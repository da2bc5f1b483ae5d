// Package memory keeps postings and archived pages in process memory for
// local runs and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/JakeFAU/nexus-search/internal/crawler"
)

// IndexStore maps keyword -> url -> posting.
type IndexStore struct {
	mu       sync.RWMutex
	postings map[string]map[string]crawler.Posting
}

// NewIndexStore creates an empty IndexStore.
func NewIndexStore() *IndexStore {
	return &IndexStore{
		postings: make(map[string]map[string]crawler.Posting),
	}
}

// Upsert stores the posting, replacing any previous (keyword, url) entry.
func (s *IndexStore) Upsert(ctx context.Context, posting crawler.Posting) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("upsert canceled: %w", err)
	}
	if posting.Keyword == "" || posting.URL == "" {
		return fmt.Errorf("posting keyword and url are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	byURL, ok := s.postings[posting.Keyword]
	if !ok {
		byURL = make(map[string]crawler.Posting)
		s.postings[posting.Keyword] = byURL
	}
	byURL[posting.URL] = posting
	return nil
}

// QueryByKeyword returns every posting for keyword, highest score first and
// URL ascending among equal scores.
func (s *IndexStore) QueryByKeyword(ctx context.Context, keyword string) ([]crawler.Posting, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("query canceled: %w", err)
	}
	s.mu.RLock()
	byURL := s.postings[keyword]
	out := make([]crawler.Posting, 0, len(byURL))
	for _, p := range byURL {
		out = append(out, p)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].URL < out[j].URL
	})
	return out, nil
}

// Len returns the total number of postings held.
func (s *IndexStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, byURL := range s.postings {
		n += len(byURL)
	}
	return n
}

var _ crawler.IndexStore = (*IndexStore)(nil)
