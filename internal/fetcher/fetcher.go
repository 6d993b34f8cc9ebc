package fetcher

import (
	"compress/gzip"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/phuslu/log"

	"github.com/crawlforge/crawlforge/internal/config"
)

const maxRedirects = 10

// Fetcher handles HTTP requests with redirect tracking.
type Fetcher struct {
	client    *http.Client
	config    *config.Config
	transport *http.Transport
}

// New creates an HTTP fetcher from the crawl configuration.
func New(cfg *config.Config) *Fetcher {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		TLSClientConfig:       &tls.Config{},
	}

	if cfg.EnableProxy && cfg.ProxyURL != "" {
		if proxyURL, err := url.Parse(cfg.ProxyURL); err == nil {
			transport.Proxy = http.ProxyURL(proxyURL)
		} else {
			log.Warn().Str("proxy_url", cfg.ProxyURL).Err(err).Msg("invalid proxy URL, proxying disabled")
		}
	}

	f := &Fetcher{
		config:    cfg,
		transport: transport,
	}

	f.client = &http.Client{
		Transport: transport,
		Timeout:   time.Duration(cfg.Timeout) * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			// Redirects are followed manually so the chain can be recorded.
			return http.ErrUseLastResponse
		},
	}

	if cfg.AllowCookies {
		if jar, err := cookiejar.New(nil); err == nil {
			f.client.Jar = jar
		}
	}

	return f
}

// Fetch retrieves a URL with the configured retry schedule. The HEAD size
// gate runs first when max_file_size is set; oversize responses come back
// as a non-retryable error without a GET.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) *Response {
	if f.config.MaxFileSize > 0 {
		if size, ok := f.headContentLength(ctx, rawURL); ok && size > f.config.MaxFileSize {
			return &Response{
				RequestURL: rawURL,
				FinalURL:   rawURL,
				Error:      fmt.Errorf("file too large: %d bytes exceeds limit of %d", size, f.config.MaxFileSize),
			}
		}
	}

	var resp *Response
	for attempt := 0; attempt <= f.config.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				resp.Error = ctx.Err()
				return resp
			case <-time.After(time.Second):
			}
			log.Debug().Str("url", rawURL).Int("attempt", attempt).Msg("retrying fetch")
		}

		resp = f.fetchOnce(ctx, rawURL)
		if resp.Error == nil || !resp.Retryable {
			return resp
		}
	}
	return resp
}

// headContentLength issues a HEAD request for the size gate. Failures are
// ignored: the GET decides.
func (f *Fetcher) headContentLength(ctx context.Context, rawURL string) (int64, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return 0, false
	}
	f.setRequestHeaders(req)

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, false
	}
	defer resp.Body.Close()

	if resp.ContentLength <= 0 {
		return 0, false
	}
	return resp.ContentLength, true
}

func (f *Fetcher) fetchOnce(ctx context.Context, rawURL string) *Response {
	startTime := time.Now()
	response := &Response{
		RequestURL:    rawURL,
		RedirectChain: make([]RedirectHop, 0),
	}

	currentURL := rawURL

	for i := 0; i <= maxRedirects; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, currentURL, nil)
		if err != nil {
			response.Error = fmt.Errorf("failed to create request: %w", err)
			response.FinalURL = currentURL
			return response
		}
		f.setRequestHeaders(req)

		resp, err := f.client.Do(req)
		if err != nil {
			response.Error = categorizeError(err)
			response.Retryable = isRetryableError(err)
			response.FinalURL = currentURL
			return response
		}

		if resp.StatusCode >= 300 && resp.StatusCode < 400 {
			location := resp.Header.Get("Location")

			if f.config.FollowRedirects && location != "" {
				resp.Body.Close()

				response.RedirectChain = append(response.RedirectChain, RedirectHop{
					URL:        currentURL,
					StatusCode: resp.StatusCode,
					Location:   location,
				})

				redirectURL, err := resolveRedirectURL(currentURL, location)
				if err != nil {
					response.Error = fmt.Errorf("invalid redirect location: %w", err)
					response.FinalURL = currentURL
					response.StatusCode = resp.StatusCode
					return response
				}
				currentURL = redirectURL
				continue
			}
		}

		response.FinalURL = currentURL
		response.StatusCode = resp.StatusCode
		response.Headers = resp.Header
		response.ContentType = extractContentType(resp.Header.Get("Content-Type"))
		response.ContentLength = resp.ContentLength

		body, bodySize, err := f.readBody(resp)
		resp.Body.Close()
		if err != nil {
			response.Error = fmt.Errorf("failed to read body: %w", err)
			response.Retryable = true
		} else {
			response.Body = body
			response.BodySize = bodySize
		}

		response.ResponseTime = time.Since(startTime)
		return response
	}

	response.Error = fmt.Errorf("max redirects (%d) exceeded", maxRedirects)
	response.FinalURL = currentURL
	return response
}

// Get performs a plain GET without the retry schedule. Used for robots.txt
// and sitemap probes that carry the crawl's HTTP profile.
func (f *Fetcher) Get(rawURL string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	f.setRequestHeaders(req)

	// Plain GETs follow redirects transparently.
	client := *f.client
	client.CheckRedirect = nil
	return client.Do(req)
}

func (f *Fetcher) setRequestHeaders(req *http.Request) {
	req.Header.Set("User-Agent", f.config.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", f.config.AcceptLanguage)
	req.Header.Set("Accept-Encoding", "gzip")
	for k, v := range f.config.CustomHeaders {
		req.Header.Set(k, v)
	}
}

// readBody reads the response body, decoding gzip and bounding the read
// by the configured file size limit.
func (f *Fetcher) readBody(resp *http.Response) ([]byte, int64, error) {
	var reader io.Reader = resp.Body

	if resp.Header.Get("Content-Encoding") == "gzip" {
		gzReader, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, 0, fmt.Errorf("gzip decode error: %w", err)
		}
		defer gzReader.Close()
		reader = gzReader
	}

	limit := f.config.MaxFileSize
	if limit <= 0 {
		limit = 50 * 1024 * 1024
	}
	body, err := io.ReadAll(io.LimitReader(reader, limit))
	if err != nil {
		return nil, 0, err
	}
	return body, int64(len(body)), nil
}

// Close closes the fetcher and releases idle connections.
func (f *Fetcher) Close() {
	f.transport.CloseIdleConnections()
}

// categorizeError wraps network errors with their failure class.
func categorizeError(err error) error {
	if err == nil {
		return nil
	}

	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return fmt.Errorf("timeout: %w", err)
	}
	if _, ok := err.(*net.DNSError); ok {
		return fmt.Errorf("DNS error: %w", err)
	}
	if opErr, ok := err.(*net.OpError); ok && opErr.Op == "dial" {
		return fmt.Errorf("connection failed: %w", err)
	}
	if strings.Contains(err.Error(), "tls:") || strings.Contains(err.Error(), "certificate") {
		return fmt.Errorf("TLS error: %w", err)
	}
	return err
}

// isRetryableError checks if an error is worth another attempt.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return true
	}

	errStr := strings.ToLower(err.Error())
	retryablePatterns := []string{
		"connection reset",
		"connection refused",
		"no such host",
		"eof",
		"broken pipe",
	}
	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}

func resolveRedirectURL(baseURL, location string) (string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	loc, err := url.Parse(location)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(loc).String(), nil
}

func extractContentType(contentType string) string {
	if idx := strings.Index(contentType, ";"); idx != -1 {
		return strings.TrimSpace(contentType[:idx])
	}
	return strings.TrimSpace(contentType)
}
