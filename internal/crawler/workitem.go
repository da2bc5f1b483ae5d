package crawler

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedWorkItem marks a queue payload that cannot be turned into a WorkItem.
// Consumers leave such deliveries unacknowledged.
var ErrMalformedWorkItem = errors.New("malformed work item")

// ErrUncrawlableURL marks a well-formed work item whose url is not an
// absolute http(s) URL. The delivery can never succeed, so consumers
// acknowledge it instead of waiting for redelivery.
var ErrUncrawlableURL = errors.New("uncrawlable url")

// EncodeWorkItem renders the queue wire format, {"url": "..."}.
func EncodeWorkItem(item WorkItem) ([]byte, error) {
	if strings.TrimSpace(item.URL) == "" {
		return nil, fmt.Errorf("%w: url is required", ErrMalformedWorkItem)
	}
	data, err := json.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("marshal work item: %w", err)
	}
	return data, nil
}

// DecodeWorkItem parses a queue payload. Bodies that are not JSON or lack a
// url fail with ErrMalformedWorkItem. A url that is not absolute http(s)
// fails with ErrUncrawlableURL and the decoded item is still returned.
func DecodeWorkItem(body []byte) (WorkItem, error) {
	var item WorkItem
	if err := json.Unmarshal(body, &item); err != nil {
		return WorkItem{}, fmt.Errorf("%w: %v", ErrMalformedWorkItem, err)
	}
	item.URL = strings.TrimSpace(item.URL)
	if item.URL == "" {
		return WorkItem{}, fmt.Errorf("%w: url is required", ErrMalformedWorkItem)
	}
	if !IsCrawlable(item.URL) {
		return item, fmt.Errorf("%w: %q is not an absolute http(s) url", ErrUncrawlableURL, item.URL)
	}
	return item, nil
}
