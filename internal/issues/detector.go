// Package issues implements the per-page SEO rule engine and the
// cross-page duplicate-content pass.
package issues

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/crawlforge/crawlforge/internal/extractor"
)

// Issue is one detected finding. Issues are not deduplicated; several
// rules may fire for the same URL.
type Issue struct {
	URL      string `json:"url"`
	Type     string `json:"type"` // error, warning, info
	Category string `json:"category"`
	Issue    string `json:"issue"`
	Details  string `json:"details"`
}

// Detector runs the rule set over crawled records, skipping URLs whose
// path matches an exclusion pattern.
type Detector struct {
	mu       sync.Mutex
	issues   []Issue
	patterns []exclusionPattern
}

type exclusionPattern struct {
	raw string
	re  *regexp.Regexp // nil for plain prefix patterns
}

// NewDetector creates a detector with the given exclusion globs.
// Lines starting with '#' are comments.
func NewDetector(exclusions []string) *Detector {
	d := &Detector{issues: make([]Issue, 0)}
	for _, pattern := range exclusions {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" || strings.HasPrefix(pattern, "#") {
			continue
		}
		d.patterns = append(d.patterns, compileExclusion(pattern))
	}
	return d
}

// compileExclusion translates a glob into a full-match regex. '*' matches
// any run of characters, '?' a single character. Patterns without
// wildcards match exact paths or as a prefix.
func compileExclusion(pattern string) exclusionPattern {
	if !strings.ContainsAny(pattern, "*?") {
		return exclusionPattern{raw: pattern}
	}

	escaped := regexp.QuoteMeta(pattern)
	escaped = strings.ReplaceAll(escaped, `\*`, `.*`)
	escaped = strings.ReplaceAll(escaped, `\?`, `.`)
	re, err := regexp.Compile("^" + escaped + "$")
	if err != nil {
		return exclusionPattern{raw: pattern}
	}
	return exclusionPattern{raw: pattern, re: re}
}

// Excluded reports whether a URL's path matches any exclusion pattern.
func (d *Detector) Excluded(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	path := u.Path

	for _, p := range d.patterns {
		if p.re != nil {
			if p.re.MatchString(path) {
				return true
			}
		} else if path == p.raw || strings.HasPrefix(path, strings.TrimRight(p.raw, "*")) {
			return true
		}
	}
	return false
}

// Detect runs all per-page rules for a record and collects the findings.
func (d *Detector) Detect(rec *extractor.Record) {
	if d.Excluded(rec.URL) {
		return
	}

	var found []Issue
	found = append(found, checkTitle(rec)...)
	found = append(found, checkMetaDescription(rec)...)
	found = append(found, checkHeadings(rec)...)
	found = append(found, checkContent(rec)...)
	found = append(found, checkTechnical(rec)...)
	found = append(found, checkMobile(rec)...)
	found = append(found, checkAccessibility(rec)...)
	found = append(found, checkSocial(rec)...)
	found = append(found, checkStructuredData(rec)...)
	found = append(found, checkPerformance(rec)...)
	found = append(found, checkIndexability(rec)...)

	d.mu.Lock()
	d.issues = append(d.issues, found...)
	d.mu.Unlock()
}

// Issues returns a copy of all detected issues.
func (d *Detector) Issues() []Issue {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Issue, len(d.issues))
	copy(out, d.issues)
	return out
}

// Restore reloads persisted issues during resume.
func (d *Detector) Restore(issues []Issue) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.issues = append(d.issues, issues...)
}

// Reset clears all detected issues.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.issues = d.issues[:0]
}

func checkTitle(rec *extractor.Record) []Issue {
	title := rec.Title
	length := utf8.RuneCountInString(title)
	switch {
	case title == "":
		return []Issue{{rec.URL, "error", "SEO", "Missing Title Tag", "Page has no title tag"}}
	case length > 60:
		return []Issue{{rec.URL, "warning", "SEO", "Title Too Long",
			fmt.Sprintf("Title is %d characters (recommended: ≤60)", length)}}
	case length < 30:
		return []Issue{{rec.URL, "warning", "SEO", "Title Too Short",
			fmt.Sprintf("Title is %d characters (recommended: 30-60)", length)}}
	}
	return nil
}

func checkMetaDescription(rec *extractor.Record) []Issue {
	desc := rec.MetaDescription
	length := utf8.RuneCountInString(desc)
	switch {
	case desc == "":
		return []Issue{{rec.URL, "error", "SEO", "Missing Meta Description", "Page has no meta description"}}
	case length > 160:
		return []Issue{{rec.URL, "warning", "SEO", "Meta Description Too Long",
			fmt.Sprintf("Description is %d characters (recommended: ≤160)", length)}}
	case length < 120:
		return []Issue{{rec.URL, "warning", "SEO", "Meta Description Too Short",
			fmt.Sprintf("Description is %d characters (recommended: 120-160)", length)}}
	}
	return nil
}

func checkHeadings(rec *extractor.Record) []Issue {
	if rec.H1 == "" {
		return []Issue{{rec.URL, "error", "SEO", "Missing H1 Tag", "Page has no H1 heading"}}
	}
	return nil
}

func checkContent(rec *extractor.Record) []Issue {
	if rec.WordCount < 300 {
		return []Issue{{rec.URL, "warning", "Content", "Thin Content",
			fmt.Sprintf("Page has only %d words (recommended: ≥300)", rec.WordCount)}}
	}
	return nil
}

func checkTechnical(rec *extractor.Record) []Issue {
	var out []Issue
	status := rec.StatusCode

	switch {
	case status >= 400 && status < 500:
		out = append(out, Issue{rec.URL, "error", "Technical",
			fmt.Sprintf("%d Client Error", status), statusCodeMessage(status)})
	case status >= 500:
		out = append(out, Issue{rec.URL, "error", "Technical",
			fmt.Sprintf("%d Server Error", status), statusCodeMessage(status)})
	case status >= 300 && status < 400:
		out = append(out, Issue{rec.URL, "info", "Technical",
			fmt.Sprintf("%d Redirect", status), "URL redirects to another location"})
	}

	if rec.CanonicalURL == "" {
		out = append(out, Issue{rec.URL, "warning", "Technical",
			"Missing Canonical URL", "Page has no canonical URL specified"})
	} else if rec.CanonicalURL != rec.URL {
		out = append(out, Issue{rec.URL, "warning", "Technical",
			"Canonical URL Different", fmt.Sprintf("Canonical points to: %s", rec.CanonicalURL)})
	}
	return out
}

func checkMobile(rec *extractor.Record) []Issue {
	if rec.Viewport == "" {
		return []Issue{{rec.URL, "error", "Mobile", "Missing Viewport Meta Tag", "Page is not mobile-optimized"}}
	}
	return nil
}

func checkAccessibility(rec *extractor.Record) []Issue {
	var out []Issue
	if rec.Lang == "" {
		out = append(out, Issue{rec.URL, "warning", "Accessibility",
			"Missing Language Attribute", "HTML tag has no lang attribute"})
	}

	withoutAlt := 0
	for _, img := range rec.Images {
		if img.Alt == "" {
			withoutAlt++
		}
	}
	if withoutAlt > 0 {
		out = append(out, Issue{rec.URL, "warning", "Accessibility",
			"Images Without Alt Text",
			fmt.Sprintf("%d of %d images lack alt text", withoutAlt, len(rec.Images))})
	}
	return out
}

func checkSocial(rec *extractor.Record) []Issue {
	var out []Issue
	if len(rec.OGTags) == 0 {
		out = append(out, Issue{rec.URL, "warning", "Social",
			"Missing OpenGraph Tags", "Page has no OpenGraph tags for social sharing"})
	}
	if len(rec.TwitterTags) == 0 {
		out = append(out, Issue{rec.URL, "warning", "Social",
			"Missing Twitter Card Tags", "Page has no Twitter Card tags"})
	}
	return out
}

func checkStructuredData(rec *extractor.Record) []Issue {
	if len(rec.JSONLD) == 0 && len(rec.SchemaOrg) == 0 {
		return []Issue{{rec.URL, "info", "Structured Data", "No Structured Data",
			"Page has no JSON-LD or Schema.org markup"}}
	}
	return nil
}

func checkPerformance(rec *extractor.Record) []Issue {
	var out []Issue

	rt := rec.ResponseTimeMs
	if !rec.JavaScriptRendered && rt > 3000 {
		out = append(out, Issue{rec.URL, "error", "Performance", "Slow Response Time",
			fmt.Sprintf("Page took %.0fms to respond (recommended: <3000ms)", rt)})
	} else if !rec.JavaScriptRendered && rt > 1000 {
		out = append(out, Issue{rec.URL, "warning", "Performance", "Moderate Response Time",
			fmt.Sprintf("Page took %.0fms to respond (recommended: <1000ms)", rt)})
	}

	size := rec.SizeBytes
	if size > 3*1024*1024 {
		out = append(out, Issue{rec.URL, "error", "Performance", "Large Page Size",
			fmt.Sprintf("Page size is %.1fMB (recommended: <3MB)", float64(size)/1024/1024)})
	} else if size > 1*1024*1024 {
		out = append(out, Issue{rec.URL, "warning", "Performance", "Moderate Page Size",
			fmt.Sprintf("Page size is %.1fMB (recommended: <1MB)", float64(size)/1024/1024)})
	}
	return out
}

func checkIndexability(rec *extractor.Record) []Issue {
	var out []Issue
	robots := strings.ToLower(rec.Robots)

	if strings.Contains(robots, "noindex") {
		out = append(out, Issue{rec.URL, "error", "Indexability", "Noindex Tag Present",
			"Page is BLOCKED from search engines - has noindex directive"})
	}
	if strings.Contains(robots, "nofollow") {
		out = append(out, Issue{rec.URL, "error", "Indexability", "Nofollow Tag Present",
			"Links on this page are NOT followed by search engines - has nofollow directive"})
	}
	return out
}

func statusCodeMessage(status int) string {
	messages := map[int]string{
		400: "Bad Request",
		401: "Unauthorized",
		403: "Forbidden",
		404: "Not Found",
		405: "Method Not Allowed",
		406: "Not Acceptable",
		408: "Request Timeout",
		410: "Gone",
		429: "Too Many Requests",
		500: "Internal Server Error",
		501: "Not Implemented",
		502: "Bad Gateway",
		503: "Service Unavailable",
		504: "Gateway Timeout",
		505: "HTTP Version Not Supported",
	}
	if msg, ok := messages[status]; ok {
		return msg
	}
	return fmt.Sprintf("HTTP %d Error", status)
}
