// Package scoring ranks the vocabulary of a page by raw term frequency.
//
// Score runs four steps over the page text: lowercase and split on
// whitespace, count every distinct token, take the 100 most frequent tokens
// (ties keep first-seen order), then drop candidates that are not purely
// alphabetic or are four runes or shorter. Filtering happens after the
// candidate cut, so a long tail of short or numeric tokens can push otherwise
// eligible terms out of the top 100.
package scoring

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/JakeFAU/nexus-search/internal/crawler"
)

const (
	// CandidateLimit is how many of the most frequent tokens are considered.
	CandidateLimit = 100
	// MinTermLength is the exclusive lower bound on a kept term's rune length.
	MinTermLength = 3
)

// Score returns the indexable terms of text, most frequent first.
func Score(text string) []crawler.TermFrequency {
	candidates := Rank(text, CandidateLimit)
	kept := candidates[:0]
	for _, tf := range candidates {
		if Indexable(tf.Term) {
			kept = append(kept, tf)
		}
	}
	return kept
}

// Rank counts every whitespace separated, lowercased token in text and
// returns at most limit of them by descending count. Equal counts keep the
// order in which tokens first appeared. limit <= 0 returns every token.
func Rank(text string, limit int) []crawler.TermFrequency {
	tokens := strings.Fields(strings.ToLower(text))
	if len(tokens) == 0 {
		return []crawler.TermFrequency{}
	}

	index := make(map[string]int, len(tokens))
	counts := make([]crawler.TermFrequency, 0, len(tokens))
	for _, tok := range tokens {
		if i, ok := index[tok]; ok {
			counts[i].Frequency++
			continue
		}
		index[tok] = len(counts)
		counts = append(counts, crawler.TermFrequency{Term: tok, Frequency: 1})
	}

	sort.SliceStable(counts, func(i, j int) bool {
		return counts[i].Frequency > counts[j].Frequency
	})
	if limit > 0 && len(counts) > limit {
		counts = counts[:limit]
	}
	return counts
}

// Indexable reports whether term is long enough and made only of letters.
func Indexable(term string) bool {
	if utf8.RuneCountInString(term) <= MinTermLength {
		return false
	}
	for _, r := range term {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}
