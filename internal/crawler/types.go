package crawler

import (
	"net/http"
	"time"
)

// NoTitle is the title recorded for pages without a usable <title>.
const NoTitle = "No Title"

// WorkItem is one unit of crawl work moving through the queue. Its identity is
// the normalized URL.
type WorkItem struct {
	URL string `json:"url"`
}

// Claim is a delivery handed out by a WorkQueue. The Token must be passed to
// Acknowledge once the item has been processed; an unacknowledged claim is
// redelivered after the queue's visibility timeout.
type Claim struct {
	Token string
	Body  []byte
}

// Posting is a single keyword -> document relevance record. (Keyword, URL) is
// the composite identity: writing the same pair again overwrites the score.
type Posting struct {
	Keyword string `json:"keyword"`
	URL     string `json:"url"`
	Title   string `json:"title"`
	Score   int    `json:"score"`
}

// PageDocument is the transient parse result of a fetched page.
type PageDocument struct {
	URL           string
	Title         string
	RawText       string
	OutboundLinks []string
}

// TermFrequency pairs a token with its occurrence count in one document.
type TermFrequency struct {
	Term      string `json:"term"`
	Frequency int    `json:"frequency"`
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// OK reports whether the response carries an indexable 200 body.
func (r FetchResponse) OK() bool {
	return r.StatusCode == http.StatusOK
}

// Transient reports whether the status suggests a later attempt may succeed.
func (r FetchResponse) Transient() bool {
	return r.StatusCode == http.StatusTooManyRequests || r.StatusCode >= http.StatusInternalServerError
}

// PageIndexedEvent is published after a page's postings have been written.
type PageIndexedEvent struct {
	EventID    string    `json:"event_id"`
	URL        string    `json:"url"`
	Title      string    `json:"title"`
	Postings   int       `json:"postings"`
	Failed     int       `json:"failed"`
	ArchiveURI string    `json:"archive_uri,omitempty"`
	IndexedAt  time.Time `json:"indexed_at"`
}
