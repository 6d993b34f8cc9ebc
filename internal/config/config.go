// Package config defines crawl configuration options.
package config

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Config holds all settings for a crawl session. Field units follow the
// wire format: durations are seconds, sizes are bytes.
type Config struct {
	// === Basic Settings ===

	// Maximum crawl depth from the seed
	MaxDepth int `json:"max_depth"`

	// Maximum number of URLs to crawl
	MaxURLs int `json:"max_urls"`

	// Delay between requests in seconds (0 = as fast as allowed)
	Delay float64 `json:"delay"`

	// Follow HTTP redirects
	FollowRedirects bool `json:"follow_redirects"`

	// Crawl URLs outside the seed domain
	CrawlExternal bool `json:"crawl_external"`

	// User-Agent string
	UserAgent string `json:"user_agent"`

	// Request timeout in seconds
	Timeout int `json:"timeout"`

	// Maximum number of retries for failed requests
	Retries int `json:"retries"`

	// Accept-Language header
	AcceptLanguage string `json:"accept_language"`

	// Respect robots.txt
	RespectRobots bool `json:"respect_robots"`

	// Keep cookies across requests
	AllowCookies bool `json:"allow_cookies"`

	// === Include/Exclude ===

	// File extensions to crawl (empty = all); extensionless paths always pass
	IncludeExtensions []string `json:"include_extensions"`

	// File extensions to skip (wins over include)
	ExcludeExtensions []string `json:"exclude_extensions"`

	// URL patterns to include (regex)
	IncludePatterns []string `json:"include_patterns"`

	// URL patterns to exclude (regex, wins over include)
	ExcludePatterns []string `json:"exclude_patterns"`

	// === Limits ===

	// Maximum response size in bytes (HEAD-checked before GET)
	MaxFileSize int64 `json:"max_file_size"`

	// Number of concurrent workers
	Concurrency int `json:"concurrency"`

	// Soft memory limit in bytes
	MemoryLimit int64 `json:"memory_limit"`

	// === Network ===

	EnableProxy   bool              `json:"enable_proxy"`
	ProxyURL      string            `json:"proxy_url"`
	CustomHeaders map[string]string `json:"custom_headers"`

	// === Discovery ===

	// Probe sitemap.xml / sitemap_index.xml / robots.txt Sitemap: entries
	DiscoverSitemaps bool `json:"discover_sitemaps"`

	// === PageSpeed ===

	EnablePageSpeed bool   `json:"enable_pagespeed"`
	GoogleAPIKey    string `json:"google_api_key"`

	// === JavaScript Rendering ===

	EnableJavaScript bool `json:"enable_javascript"`

	// Seconds to wait after DOMContentLoaded
	JSWaitTime float64 `json:"js_wait_time"`

	// Navigation timeout in seconds
	JSTimeout int `json:"js_timeout"`

	// Browser engine: chromium, firefox, webkit
	JSBrowser string `json:"js_browser"`

	JSHeadless           bool   `json:"js_headless"`
	JSUserAgent          string `json:"js_user_agent"`
	JSViewportWidth      int    `json:"js_viewport_width"`
	JSViewportHeight     int    `json:"js_viewport_height"`
	JSMaxConcurrentPages int    `json:"js_max_concurrent_pages"`

	// === Issues ===

	// Glob patterns (URL paths) excluded from issue generation; '#' comments
	IssueExclusionPatterns []string `json:"issue_exclusion_patterns"`

	EnableDuplicationCheck bool    `json:"enable_duplication_check"`
	DuplicationThreshold   float64 `json:"duplication_threshold"`

	// === Compiled patterns (not serialized) ===
	compiledIncludes []*regexp.Regexp
	compiledExcludes []*regexp.Regexp
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		MaxDepth:        3,
		MaxURLs:         1000,
		Delay:           1.0,
		FollowRedirects: true,
		CrawlExternal:   false,
		UserAgent:       "CrawlForge/1.0 (Web Crawler)",
		Timeout:         10,
		Retries:         3,
		AcceptLanguage:  "en-US,en;q=0.9",
		RespectRobots:   true,
		AllowCookies:    true,

		IncludeExtensions: []string{"html", "htm", "php", "asp", "aspx", "jsp"},
		ExcludeExtensions: []string{"pdf", "doc", "docx", "zip", "exe", "dmg"},
		IncludePatterns:   []string{},
		ExcludePatterns:   []string{},

		MaxFileSize: 50 * 1024 * 1024,
		Concurrency: 5,
		MemoryLimit: 512 * 1024 * 1024,

		CustomHeaders: map[string]string{},

		DiscoverSitemaps: true,

		EnablePageSpeed: false,

		EnableJavaScript:     false,
		JSWaitTime:           3,
		JSTimeout:            30,
		JSBrowser:            "chromium",
		JSHeadless:           true,
		JSUserAgent:          "CrawlForge/1.0 (Web Crawler with JavaScript)",
		JSViewportWidth:      1920,
		JSViewportHeight:     1080,
		JSMaxConcurrentPages: 3,

		IssueExclusionPatterns: DefaultIssueExclusions(),
		EnableDuplicationCheck: true,
		DuplicationThreshold:   0.85,
	}
}

// Validate clamps all settings into their allowed ranges.
func (c *Config) Validate() error {
	c.MaxDepth = clampInt(c.MaxDepth, 1, 10)
	c.MaxURLs = clampInt(c.MaxURLs, 1, 5_000_000)
	c.Delay = clampFloat(c.Delay, 0, 60)
	c.Timeout = clampInt(c.Timeout, 1, 120)
	c.Retries = clampInt(c.Retries, 0, 10)
	c.MaxFileSize = clampInt64(c.MaxFileSize, 1*1024*1024, 1000*1024*1024)
	c.Concurrency = clampInt(c.Concurrency, 1, 50)
	c.MemoryLimit = clampInt64(c.MemoryLimit, 64*1024*1024, 4096*1024*1024)
	c.JSWaitTime = clampFloat(c.JSWaitTime, 0, 30)
	c.JSTimeout = clampInt(c.JSTimeout, 5, 120)
	c.JSMaxConcurrentPages = clampInt(c.JSMaxConcurrentPages, 1, 10)
	c.DuplicationThreshold = clampFloat(c.DuplicationThreshold, 0, 1)

	switch c.JSBrowser {
	case "chromium", "firefox", "webkit":
	default:
		c.JSBrowser = "chromium"
	}

	if c.UserAgent == "" {
		c.UserAgent = Default().UserAgent
	}
	return nil
}

// RequestsPerSecond converts the configured delay into a token refill rate.
// A zero delay maps to the 100 req/s sentinel.
func (c *Config) RequestsPerSecond() float64 {
	if c.Delay <= 0 {
		return 100
	}
	return 1.0 / c.Delay
}

// CompilePatterns compiles include/exclude regex patterns.
func (c *Config) CompilePatterns() error {
	c.compiledIncludes = make([]*regexp.Regexp, 0, len(c.IncludePatterns))
	c.compiledExcludes = make([]*regexp.Regexp, 0, len(c.ExcludePatterns))

	for _, pattern := range c.IncludePatterns {
		if pattern == "" {
			continue
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("invalid include pattern '%s': %w", pattern, err)
		}
		c.compiledIncludes = append(c.compiledIncludes, re)
	}

	for _, pattern := range c.ExcludePatterns {
		if pattern == "" {
			continue
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("invalid exclude pattern '%s': %w", pattern, err)
		}
		c.compiledExcludes = append(c.compiledExcludes, re)
	}

	return nil
}

// MatchesPatterns checks a URL against the include/exclude regex lists.
// Exclude wins; an empty include list admits everything.
func (c *Config) MatchesPatterns(urlStr string) bool {
	for _, re := range c.compiledExcludes {
		if re.MatchString(urlStr) {
			return false
		}
	}

	if len(c.compiledIncludes) == 0 {
		return true
	}

	for _, re := range c.compiledIncludes {
		if re.MatchString(urlStr) {
			return true
		}
	}
	return false
}

// ExtensionAllowed checks the extension lists against a URL path.
// Paths without an extension always pass; exclude wins over include.
func (c *Config) ExtensionAllowed(path string) bool {
	path = strings.ToLower(path)
	idx := strings.LastIndex(path, ".")
	if idx == -1 || idx == len(path)-1 {
		return true
	}
	ext := path[idx+1:]
	if strings.Contains(ext, "/") {
		return true
	}

	for _, e := range c.ExcludeExtensions {
		if ext == e {
			return false
		}
	}

	if len(c.IncludeExtensions) == 0 {
		return true
	}
	for _, e := range c.IncludeExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Apply merges a partial JSON update onto a clone of the config and
// returns the validated result. The receiver is not modified.
func (c *Config) Apply(partial []byte) (*Config, error) {
	next := c.Clone()
	if err := json.Unmarshal(partial, next); err != nil {
		return nil, fmt.Errorf("invalid config update: %w", err)
	}
	if err := next.Validate(); err != nil {
		return nil, err
	}
	if err := next.CompilePatterns(); err != nil {
		return nil, err
	}
	return next, nil
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c

	clone.IncludeExtensions = append([]string(nil), c.IncludeExtensions...)
	clone.ExcludeExtensions = append([]string(nil), c.ExcludeExtensions...)
	clone.IncludePatterns = append([]string(nil), c.IncludePatterns...)
	clone.ExcludePatterns = append([]string(nil), c.ExcludePatterns...)
	clone.IssueExclusionPatterns = append([]string(nil), c.IssueExclusionPatterns...)

	if c.CustomHeaders != nil {
		clone.CustomHeaders = make(map[string]string, len(c.CustomHeaders))
		for k, v := range c.CustomHeaders {
			clone.CustomHeaders[k] = v
		}
	}

	clone.compiledIncludes = nil
	clone.compiledExcludes = nil
	return &clone
}

// JSON serializes the configuration for persistence.
func (c *Config) JSON() ([]byte, error) {
	return json.Marshal(c)
}

// FromJSON deserializes a persisted configuration snapshot.
func FromJSON(data []byte) (*Config, error) {
	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.CompilePatterns(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampInt64(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
