package robots

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleRobots = `
# test file
User-agent: *
Disallow: /private/
Disallow: /tmp/*.html
Allow: /private/open/
Crawl-delay: 2

User-agent: badbot
Disallow: /

Sitemap: https://example.test/sitemap.xml
Sitemap: https://example.test/news.xml
`

func TestParseAndIsAllowed(t *testing.T) {
	r := Parse(sampleRobots)

	assert.True(t, r.IsAllowed("CrawlForge/1.0", "/"))
	assert.True(t, r.IsAllowed("CrawlForge/1.0", "/public/page"))
	assert.False(t, r.IsAllowed("CrawlForge/1.0", "/private/page"))
	// longer allow rule beats shorter disallow
	assert.True(t, r.IsAllowed("CrawlForge/1.0", "/private/open/page"))
	// wildcard pattern
	assert.False(t, r.IsAllowed("CrawlForge/1.0", "/tmp/anything.html"))
	assert.True(t, r.IsAllowed("CrawlForge/1.0", "/tmp/anything.txt"))
}

func TestAgentSpecificRules(t *testing.T) {
	r := Parse(sampleRobots)
	assert.False(t, r.IsAllowed("badbot", "/anything"))
	assert.True(t, r.IsAllowed("goodbot", "/anything"))
}

func TestCrawlDelayAndSitemaps(t *testing.T) {
	r := Parse(sampleRobots)
	assert.Equal(t, 2*time.Second, r.GetCrawlDelay("anybot"))
	assert.Equal(t, []string{
		"https://example.test/sitemap.xml",
		"https://example.test/news.xml",
	}, r.Sitemaps)
}

func TestDollarAnchor(t *testing.T) {
	r := Parse("User-agent: *\nDisallow: /*.pdf$\n")
	assert.False(t, r.IsAllowed("bot", "/file.pdf"))
	assert.True(t, r.IsAllowed("bot", "/file.pdf.html"))
}

func TestEmptyRobotsAllowsAll(t *testing.T) {
	r := Parse("")
	assert.True(t, r.IsAllowed("bot", "/anything"))
}

func TestParseMetaRobots(t *testing.T) {
	m := ParseMetaRobots("NoIndex, nofollow")
	assert.True(t, m.NoIndex)
	assert.True(t, m.NoFollow)

	m = ParseMetaRobots("none")
	assert.True(t, m.NoIndex)
	assert.True(t, m.NoFollow)

	m = ParseMetaRobots("index, follow")
	assert.False(t, m.NoIndex)
	assert.False(t, m.NoFollow)
}

type httpFetcher struct{ client *http.Client }

func (f *httpFetcher) Get(rawURL string) (*http.Response, error) {
	return f.client.Get(rawURL)
}

func TestCacheFetchesOncePerHost(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/robots.txt", r.URL.Path)
		hits++
		w.Write([]byte("User-agent: *\nDisallow: /blocked\n"))
	}))
	defer srv.Close()

	cache := NewCache(&httpFetcher{client: srv.Client()})

	assert.False(t, cache.CanFetch("bot", srv.URL+"/blocked"))
	assert.True(t, cache.CanFetch("bot", srv.URL+"/open"))
	assert.False(t, cache.CanFetch("bot", srv.URL+"/blocked/deeper"))
	assert.Equal(t, 1, hits)
}

func TestCacheDefaultAllowOnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	cache := NewCache(&httpFetcher{client: srv.Client()})
	assert.True(t, cache.CanFetch("bot", srv.URL+"/anything"))

	// unreachable host also defaults to allow
	dead := NewCache(&httpFetcher{client: &http.Client{Timeout: 100 * time.Millisecond}})
	assert.True(t, dead.CanFetch("bot", "http://127.0.0.1:1/x"))
}

func TestCacheSitemaps(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("User-agent: *\nAllow: /\nSitemap: https://example.test/sm.xml\n"))
	}))
	defer srv.Close()

	cache := NewCache(&httpFetcher{client: srv.Client()})
	assert.Equal(t, []string{"https://example.test/sm.xml"}, cache.Sitemaps(srv.URL+"/"))
}
