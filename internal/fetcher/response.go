// Package fetcher handles HTTP fetching with redirect tracking and header
// capture.
package fetcher

import (
	"net/http"
	"strings"
	"time"
)

// Response represents the result of fetching a URL.
type Response struct {
	// Original requested URL
	RequestURL string

	// Final URL after redirects
	FinalURL string

	// HTTP status code (0 when the request itself failed)
	StatusCode int

	// Response headers
	Headers http.Header

	// Content-Type with parameters stripped
	ContentType string

	// Content-Length from the header
	ContentLength int64

	// Actual body size in bytes
	BodySize int64

	// Response body
	Body []byte

	// Redirect chain in request order
	RedirectChain []RedirectHop

	// Total response time
	ResponseTime time.Duration

	// Error if the request failed
	Error error

	// Whether the failure is worth another attempt
	Retryable bool
}

// RedirectHop represents a single redirect in the chain.
type RedirectHop struct {
	URL        string `json:"url"`
	StatusCode int    `json:"status_code"`
	Location   string `json:"location"`
}

// IsSuccess returns true if the response was successful (2xx).
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// IsRedirect returns true if the response was a redirect (3xx).
func (r *Response) IsRedirect() bool {
	return r.StatusCode >= 300 && r.StatusCode < 400
}

// IsClientError returns true if the response was a client error (4xx).
func (r *Response) IsClientError() bool {
	return r.StatusCode >= 400 && r.StatusCode < 500
}

// IsServerError returns true if the response was a server error (5xx).
func (r *Response) IsServerError() bool {
	return r.StatusCode >= 500 && r.StatusCode < 600
}

// GetHeader returns a header value (case-insensitive).
func (r *Response) GetHeader(name string) string {
	if r.Headers == nil {
		return ""
	}
	return r.Headers.Get(name)
}

// IsHTML returns true if the content type is HTML.
func (r *Response) IsHTML() bool {
	return strings.Contains(r.ContentType, "text/html")
}
