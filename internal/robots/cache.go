package robots

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/phuslu/log"
)

// Fetcher is the HTTP capability the cache uses to retrieve robots.txt.
type Fetcher interface {
	Get(rawURL string) (*http.Response, error)
}

// Cache resolves allow/deny decisions per host, fetching each host's
// robots.txt at most once per crawl. Fetch failures default to allow.
type Cache struct {
	mu      sync.Mutex
	fetcher Fetcher
	entries map[string]*RobotsTxt
}

// NewCache creates a robots cache backed by the given fetcher.
func NewCache(fetcher Fetcher) *Cache {
	return &Cache{
		fetcher: fetcher,
		entries: make(map[string]*RobotsTxt),
	}
}

// CanFetch reports whether the user-agent may fetch the URL according to
// the host's robots.txt.
func (c *Cache) CanFetch(userAgent, rawURL string) bool {
	robots := c.forURL(rawURL)
	if robots == nil {
		return true
	}
	return robots.IsAllowed(userAgent, ExtractPathFromURL(rawURL))
}

// Sitemaps returns the Sitemap: entries declared by the URL's host.
func (c *Cache) Sitemaps(rawURL string) []string {
	robots := c.forURL(rawURL)
	if robots == nil {
		return nil
	}
	return append([]string(nil), robots.Sitemaps...)
}

func (c *Cache) forURL(rawURL string) *RobotsTxt {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return nil
	}
	host := u.Scheme + "://" + u.Host

	c.mu.Lock()
	if robots, ok := c.entries[host]; ok {
		c.mu.Unlock()
		return robots
	}
	c.mu.Unlock()

	robots := c.fetch(host)

	c.mu.Lock()
	c.entries[host] = robots
	c.mu.Unlock()
	return robots
}

// fetch retrieves and parses a host's robots.txt. Any failure yields an
// empty ruleset, which allows everything.
func (c *Cache) fetch(host string) *RobotsTxt {
	robotsURL := fmt.Sprintf("%s/robots.txt", host)

	resp, err := c.fetcher.Get(robotsURL)
	if err != nil {
		log.Debug().Str("url", robotsURL).Err(err).Msg("robots.txt fetch failed, allowing all")
		return Parse("")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Parse("")
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 512*1024))
	if err != nil {
		return Parse("")
	}

	robots := Parse(string(body))
	log.Debug().Str("host", host).Int("sitemaps", len(robots.Sitemaps)).Msg("robots.txt cached")
	return robots
}
