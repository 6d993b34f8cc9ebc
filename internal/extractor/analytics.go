package extractor

import (
	"regexp"
	"strings"
)

var (
	ga4IDPattern = regexp.MustCompile(`\bG-[A-Z0-9]{4,}\b`)
	gtmIDPattern = regexp.MustCompile(`\bGTM-[A-Z0-9]{4,}\b`)
)

// DetectAnalytics scans the raw page source for known tracker
// fingerprints. The raw markup covers both script bodies and DOM
// attributes.
func DetectAnalytics(content []byte) Analytics {
	text := string(content)

	a := Analytics{}

	if strings.Contains(text, "gtag(") || strings.Contains(text, "googletagmanager.com/gtag") {
		a.GoogleAnalytics = true
	}
	if id := ga4IDPattern.FindString(text); id != "" {
		a.GoogleAnalytics = true
		a.GA4ID = id
	}
	if id := gtmIDPattern.FindString(text); id != "" {
		a.GoogleTagManager = true
		a.GTMID = id
	}
	if strings.Contains(text, "fbq(") || strings.Contains(text, "connect.facebook.net") {
		a.FacebookPixel = true
	}
	if strings.Contains(text, "hotjar") || strings.Contains(text, "hj(") {
		a.Hotjar = true
	}
	if strings.Contains(text, "mixpanel") {
		a.Mixpanel = true
	}

	a.HasAnalytics = a.GoogleAnalytics || a.GoogleTagManager ||
		a.FacebookPixel || a.Hotjar || a.Mixpanel
	return a
}

// BuildRecord assembles a URL record from parsed page data. Fetch-level
// fields (status, sizes, timings, redirects) are filled by the caller.
func BuildRecord(pageURL string, depth int, data *PageData, content []byte, baseDomain string) *Record {
	rec := NewEmptyRecord(pageURL, depth, 0, "")

	rec.Title = data.Title
	rec.MetaDescription = data.MetaDescription
	if len(data.H1) > 0 {
		rec.H1 = data.H1[0]
	}
	rec.H2 = data.H2
	rec.H3 = data.H3
	rec.WordCount = data.WordCount

	rec.MetaTags = data.MetaTags
	rec.OGTags = data.OGTags
	rec.TwitterTags = data.TwitterTags

	rec.CanonicalURL = data.Canonical
	rec.Lang = data.Lang
	rec.Charset = data.Charset
	rec.Viewport = data.Viewport
	rec.Robots = data.MetaRobots
	rec.Author = data.MetaAuthor
	rec.Keywords = data.MetaKeywords
	rec.Generator = data.Generator
	rec.ThemeColor = data.ThemeColor

	rec.JSONLD = data.JSONLD
	rec.SchemaOrg = data.SchemaOrg
	rec.Hreflang = data.Hreflangs
	rec.Images = data.Images
	rec.Analytics = DetectAnalytics(content)

	for _, link := range data.Links {
		if hostMatches(link.URL, baseDomain) {
			rec.InternalLinks++
		} else {
			rec.ExternalLinks++
		}
	}

	return rec
}

// hostMatches reports whether the URL's host equals baseDomain exactly,
// so subdomains classify as external.
func hostMatches(rawURL, baseDomain string) bool {
	lower := strings.ToLower(rawURL)
	rest, ok := strings.CutPrefix(lower, "http://")
	if !ok {
		rest, ok = strings.CutPrefix(lower, "https://")
	}
	if !ok {
		return false
	}
	host := rest
	for _, sep := range []byte{'/', '?', '#'} {
		if idx := strings.IndexByte(host, sep); idx != -1 {
			host = host[:idx]
		}
	}
	return host == strings.ToLower(baseDomain)
}
