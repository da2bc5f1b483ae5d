// Package search resolves a keyword against the index.
package search

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/nexus-search/internal/crawler"
	"github.com/JakeFAU/nexus-search/internal/metrics"
)

// ErrIndexUnavailable wraps every failure to read from the index store, so
// callers can tell a backend outage from a keyword with no postings.
var ErrIndexUnavailable = errors.New("index unavailable")

// Resolver answers keyword queries.
type Resolver struct {
	store  crawler.IndexStore
	logger *zap.Logger
}

// NewResolver wraps store.
func NewResolver(store crawler.IndexStore, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{store: store, logger: logger.Named("search")}
}

// Normalize lowercases and trims a raw keyword.
func Normalize(keyword string) string {
	return strings.ToLower(strings.TrimSpace(keyword))
}

// Find returns the postings for keyword, highest score first and then by
// URL. A blank keyword matches nothing and never reaches the store.
func (r *Resolver) Find(ctx context.Context, keyword string) ([]crawler.Posting, error) {
	kw := Normalize(keyword)
	if kw == "" {
		metrics.ObserveSearch(metrics.OutcomeEmpty)
		return []crawler.Posting{}, nil
	}

	postings, err := r.store.QueryByKeyword(ctx, kw)
	if err != nil {
		metrics.ObserveSearch(metrics.OutcomeFailed)
		r.logger.Error("index query failed", zap.String("keyword", kw), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrIndexUnavailable, err)
	}
	if postings == nil {
		postings = []crawler.Posting{}
	}
	sort.SliceStable(postings, func(i, j int) bool {
		if postings[i].Score != postings[j].Score {
			return postings[i].Score > postings[j].Score
		}
		return postings[i].URL < postings[j].URL
	})

	if len(postings) == 0 {
		metrics.ObserveSearch(metrics.OutcomeEmpty)
	} else {
		metrics.ObserveSearch(metrics.OutcomeSuccess)
	}
	r.logger.Debug("query resolved", zap.String("keyword", kw), zap.Int("results", len(postings)))
	return postings, nil
}
