// Package api hosts the HTTP query surface of the index. Routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/search?q=<keyword>&limit=<n> for ranked postings.
//   - POST /v1/urls to submit a URL for crawling or indexing.
package api
