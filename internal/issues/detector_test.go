package issues

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crawlforge/crawlforge/internal/extractor"
)

// goodRecord builds a record that trips none of the rules.
func goodRecord(url string) *extractor.Record {
	rec := extractor.NewEmptyRecord(url, 0, 200, "")
	rec.Title = "A title of exactly the right length here"
	rec.MetaDescription = "A meta description that is comfortably long enough to sit inside the recommended range of one hundred twenty characters or so."
	rec.H1 = "Heading"
	rec.WordCount = 500
	rec.CanonicalURL = url
	rec.Viewport = "width=device-width"
	rec.Lang = "en"
	rec.OGTags = map[string]string{"og:title": "x"}
	rec.TwitterTags = map[string]string{"twitter:card": "summary"}
	rec.JSONLD = []interface{}{map[string]interface{}{"@type": "WebPage"}}
	rec.ResponseTimeMs = 200
	rec.SizeBytes = 100 * 1024
	return rec
}

func issueNames(issues []Issue) []string {
	names := make([]string, 0, len(issues))
	for _, i := range issues {
		names = append(names, i.Issue)
	}
	return names
}

func TestCleanRecordProducesNoIssues(t *testing.T) {
	d := NewDetector(nil)
	d.Detect(goodRecord("https://example.test/fine"))
	assert.Empty(t, d.Issues())
}

func TestTitleRules(t *testing.T) {
	d := NewDetector(nil)

	rec := goodRecord("https://example.test/a")
	rec.Title = ""
	d.Detect(rec)
	assert.Contains(t, issueNames(d.Issues()), "Missing Title Tag")

	d.Reset()
	rec = goodRecord("https://example.test/b")
	rec.Title = "Short"
	d.Detect(rec)
	assert.Contains(t, issueNames(d.Issues()), "Title Too Short")

	d.Reset()
	rec = goodRecord("https://example.test/c")
	rec.Title = "This title is much much much much much too long for a search engine result page"
	d.Detect(rec)
	assert.Contains(t, issueNames(d.Issues()), "Title Too Long")
}

func TestLengthRulesCountCharactersNotBytes(t *testing.T) {
	d := NewDetector(nil)

	// 40 two-byte runes: 80 bytes but well inside the 30-60 range
	rec := goodRecord("https://example.test/a")
	rec.Title = strings.Repeat("é", 40)
	d.Detect(rec)
	assert.NotContains(t, issueNames(d.Issues()), "Title Too Long")
	assert.NotContains(t, issueNames(d.Issues()), "Title Too Short")

	d.Reset()
	rec = goodRecord("https://example.test/b")
	rec.MetaDescription = strings.Repeat("ü", 130)
	d.Detect(rec)
	assert.NotContains(t, issueNames(d.Issues()), "Meta Description Too Long")
	assert.NotContains(t, issueNames(d.Issues()), "Meta Description Too Short")

	d.Reset()
	rec = goodRecord("https://example.test/c")
	rec.Title = strings.Repeat("é", 25)
	d.Detect(rec)
	assert.Contains(t, issueNames(d.Issues()), "Title Too Short")
}

func TestMetaDescriptionRules(t *testing.T) {
	d := NewDetector(nil)

	rec := goodRecord("https://example.test/a")
	rec.MetaDescription = ""
	d.Detect(rec)
	names := issueNames(d.Issues())
	assert.Contains(t, names, "Missing Meta Description")

	d.Reset()
	rec = goodRecord("https://example.test/b")
	rec.MetaDescription = "Too short"
	d.Detect(rec)
	assert.Contains(t, issueNames(d.Issues()), "Meta Description Too Short")
}

func TestStatusCodeRules(t *testing.T) {
	d := NewDetector(nil)

	rec := goodRecord("https://example.test/missing")
	rec.StatusCode = 404
	d.Detect(rec)
	found := d.Issues()
	require.NotEmpty(t, found)
	assert.Contains(t, issueNames(found), "404 Client Error")
	for _, i := range found {
		if i.Issue == "404 Client Error" {
			assert.Equal(t, "Not Found", i.Details)
			assert.Equal(t, "error", i.Type)
		}
	}

	d.Reset()
	rec = goodRecord("https://example.test/moved")
	rec.StatusCode = 301
	d.Detect(rec)
	assert.Contains(t, issueNames(d.Issues()), "301 Redirect")

	d.Reset()
	rec = goodRecord("https://example.test/down")
	rec.StatusCode = 503
	d.Detect(rec)
	assert.Contains(t, issueNames(d.Issues()), "503 Server Error")
}

func TestCanonicalRules(t *testing.T) {
	d := NewDetector(nil)

	rec := goodRecord("https://example.test/a")
	rec.CanonicalURL = ""
	d.Detect(rec)
	assert.Contains(t, issueNames(d.Issues()), "Missing Canonical URL")

	d.Reset()
	rec = goodRecord("https://example.test/b")
	rec.CanonicalURL = "https://example.test/other"
	d.Detect(rec)
	assert.Contains(t, issueNames(d.Issues()), "Canonical URL Different")
}

func TestAccessibilityRules(t *testing.T) {
	d := NewDetector(nil)

	rec := goodRecord("https://example.test/a")
	rec.Lang = ""
	rec.Images = []extractor.Image{
		{Src: "/a.png", Alt: "ok"},
		{Src: "/b.png", Alt: ""},
		{Src: "/c.png", Alt: ""},
	}
	d.Detect(rec)

	names := issueNames(d.Issues())
	assert.Contains(t, names, "Missing Language Attribute")
	assert.Contains(t, names, "Images Without Alt Text")
	for _, i := range d.Issues() {
		if i.Issue == "Images Without Alt Text" {
			assert.Equal(t, "2 of 3 images lack alt text", i.Details)
		}
	}
}

func TestPerformanceRules(t *testing.T) {
	d := NewDetector(nil)

	rec := goodRecord("https://example.test/slow")
	rec.ResponseTimeMs = 3500
	d.Detect(rec)
	assert.Contains(t, issueNames(d.Issues()), "Slow Response Time")

	d.Reset()
	rec = goodRecord("https://example.test/meh")
	rec.ResponseTimeMs = 1500
	d.Detect(rec)
	assert.Contains(t, issueNames(d.Issues()), "Moderate Response Time")

	// js-rendered pages skip response-time rules
	d.Reset()
	rec = goodRecord("https://example.test/js")
	rec.ResponseTimeMs = 5000
	rec.JavaScriptRendered = true
	d.Detect(rec)
	assert.NotContains(t, issueNames(d.Issues()), "Slow Response Time")

	d.Reset()
	rec = goodRecord("https://example.test/big")
	rec.SizeBytes = 4 * 1024 * 1024
	d.Detect(rec)
	assert.Contains(t, issueNames(d.Issues()), "Large Page Size")
}

func TestIndexabilityRules(t *testing.T) {
	d := NewDetector(nil)

	rec := goodRecord("https://example.test/hidden")
	rec.Robots = "noindex, nofollow"
	d.Detect(rec)

	names := issueNames(d.Issues())
	assert.Contains(t, names, "Noindex Tag Present")
	assert.Contains(t, names, "Nofollow Tag Present")
}

func TestExclusionPatterns(t *testing.T) {
	d := NewDetector([]string{
		"# comment line",
		"/wp-admin/*",
		"/login*",
		"*.json",
		"/exact-page",
	})

	assert.True(t, d.Excluded("https://example.test/wp-admin/options.php"))
	assert.True(t, d.Excluded("https://example.test/login"))
	assert.True(t, d.Excluded("https://example.test/login-page"))
	assert.True(t, d.Excluded("https://example.test/data/file.json"))
	assert.True(t, d.Excluded("https://example.test/exact-page"))
	assert.False(t, d.Excluded("https://example.test/blog/post"))
}

func TestExcludedURLProducesNoIssues(t *testing.T) {
	d := NewDetector([]string{"/admin/*"})

	rec := extractor.NewEmptyRecord("https://example.test/admin/panel", 0, 404, "")
	d.Detect(rec)
	assert.Empty(t, d.Issues())
}

func TestRestoreAndReset(t *testing.T) {
	d := NewDetector(nil)
	d.Restore([]Issue{{URL: "https://example.test/x", Type: "error", Issue: "Missing Title Tag"}})
	assert.Len(t, d.Issues(), 1)
	d.Reset()
	assert.Empty(t, d.Issues())
}
