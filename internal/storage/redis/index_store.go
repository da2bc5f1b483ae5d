// Package redis stores postings in Redis: one sorted set per keyword scored
// by term frequency, plus a hash of page titles.
package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/JakeFAU/nexus-search/internal/crawler"
)

const defaultPrefix = "nexus:index"

// IndexStore is a Redis-backed crawler.IndexStore.
type IndexStore struct {
	client redis.UniversalClient
	prefix string
}

// New wraps client. An empty prefix uses "nexus:index".
func New(client redis.UniversalClient, prefix string) (*IndexStore, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &IndexStore{client: client, prefix: prefix}, nil
}

func (s *IndexStore) keywordKey(keyword string) string {
	return s.prefix + ":kw:" + keyword
}

func (s *IndexStore) titlesKey() string {
	return s.prefix + ":titles"
}

// Upsert sets url's score in the keyword's set and records its title.
// ZADD replaces an existing member's score, so repeats never accumulate.
func (s *IndexStore) Upsert(ctx context.Context, posting crawler.Posting) error {
	if posting.Keyword == "" || posting.URL == "" {
		return errors.New("posting keyword and url are required")
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, s.keywordKey(posting.Keyword), redis.Z{
			Score:  float64(posting.Score),
			Member: posting.URL,
		})
		pipe.HSet(ctx, s.titlesKey(), posting.URL, posting.Title)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis upsert posting: %w", err)
	}
	return nil
}

// QueryByKeyword returns postings ordered by score desc, url asc.
func (s *IndexStore) QueryByKeyword(ctx context.Context, keyword string) ([]crawler.Posting, error) {
	members, err := s.client.ZRangeWithScores(ctx, s.keywordKey(keyword), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis query postings: %w", err)
	}
	out := make([]crawler.Posting, 0, len(members))
	if len(members) == 0 {
		return out, nil
	}

	urls := make([]string, 0, len(members))
	for _, m := range members {
		url, ok := m.Member.(string)
		if !ok {
			continue
		}
		urls = append(urls, url)
		out = append(out, crawler.Posting{Keyword: keyword, URL: url, Score: int(m.Score)})
	}

	titles, err := s.client.HMGet(ctx, s.titlesKey(), urls...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis query titles: %w", err)
	}
	for i := range out {
		if i < len(titles) {
			if title, ok := titles[i].(string); ok {
				out[i].Title = title
			}
		}
	}

	// Redis orders equal scores by member descending when reversed; sort
	// here to get url ascending.
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].URL < out[j].URL
	})
	return out, nil
}

var _ crawler.IndexStore = (*IndexStore)(nil)
