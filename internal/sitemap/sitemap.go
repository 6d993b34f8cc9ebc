// Package sitemap discovers crawl seeds from a site's XML sitemaps.
package sitemap

import (
	"encoding/xml"
	"io"
	"net/http"
	"strings"

	"github.com/phuslu/log"
)

const (
	// maxIndexDepth bounds recursion through nested sitemap indexes.
	maxIndexDepth = 3
	// maxSitemapFiles bounds the total number of sitemap files fetched.
	maxSitemapFiles = 50
)

// XMLSitemap represents a parsed sitemap.xml urlset.
type XMLSitemap struct {
	XMLName xml.Name     `xml:"urlset"`
	URLs    []SitemapURL `xml:"url"`
}

// XMLSitemapIndex represents a parsed sitemap index.
type XMLSitemapIndex struct {
	XMLName  xml.Name       `xml:"sitemapindex"`
	Sitemaps []SitemapEntry `xml:"sitemap"`
}

// SitemapURL is one URL entry in a sitemap.
type SitemapURL struct {
	Loc        string `xml:"loc"`
	LastMod    string `xml:"lastmod"`
	ChangeFreq string `xml:"changefreq"`
	Priority   string `xml:"priority"`
}

// SitemapEntry is one sitemap reference in an index.
type SitemapEntry struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod"`
}

// Fetcher is the HTTP capability used for sitemap probes.
type Fetcher interface {
	Get(rawURL string) (*http.Response, error)
}

// Parser discovers and parses sitemaps for a site.
type Parser struct {
	fetcher Fetcher
	fetched int
}

// NewParser creates a sitemap parser using the crawl's HTTP profile.
func NewParser(fetcher Fetcher) *Parser {
	return &Parser{fetcher: fetcher}
}

// Discover probes /sitemap.xml, /sitemap_index.xml, and any extra
// sitemap URLs (typically robots.txt Sitemap: entries), and returns a
// deduplicated list of page URLs. Per-sitemap failures are swallowed.
func (p *Parser) Discover(baseURL string, extra []string) []string {
	base := strings.TrimRight(baseURL, "/")
	candidates := []string{
		base + "/sitemap.xml",
		base + "/sitemap_index.xml",
	}
	candidates = append(candidates, extra...)

	p.fetched = 0
	seen := make(map[string]struct{})
	var out []string

	for _, sitemapURL := range candidates {
		for _, u := range p.parse(sitemapURL, 0) {
			if _, dup := seen[u]; dup {
				continue
			}
			seen[u] = struct{}{}
			out = append(out, u)
		}
	}

	log.Info().Str("base_url", baseURL).Int("urls", len(out)).Int("files", p.fetched).
		Msg("sitemap discovery finished")
	return out
}

// parse fetches one sitemap file, recursing into indexes up to the
// depth and file bounds.
func (p *Parser) parse(sitemapURL string, depth int) []string {
	if depth > maxIndexDepth || p.fetched >= maxSitemapFiles {
		return nil
	}
	p.fetched++

	body, err := p.fetch(sitemapURL)
	if err != nil {
		log.Debug().Str("url", sitemapURL).Err(err).Msg("sitemap fetch failed")
		return nil
	}

	if strings.Contains(string(body), "<sitemapindex") {
		var index XMLSitemapIndex
		if err := xml.Unmarshal(body, &index); err != nil {
			log.Debug().Str("url", sitemapURL).Err(err).Msg("sitemap index parse failed")
			return nil
		}
		var out []string
		for _, entry := range index.Sitemaps {
			loc := strings.TrimSpace(entry.Loc)
			if loc == "" {
				continue
			}
			out = append(out, p.parse(loc, depth+1)...)
		}
		return out
	}

	var sitemap XMLSitemap
	if err := xml.Unmarshal(body, &sitemap); err != nil {
		log.Debug().Str("url", sitemapURL).Err(err).Msg("sitemap parse failed")
		return nil
	}

	out := make([]string, 0, len(sitemap.URLs))
	for _, entry := range sitemap.URLs {
		if loc := strings.TrimSpace(entry.Loc); loc != "" {
			out = append(out, loc)
		}
	}
	return out
}

func (p *Parser) fetch(rawURL string) ([]byte, error) {
	resp, err := p.fetcher.Get(rawURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &httpError{status: resp.StatusCode}
	}
	return io.ReadAll(io.LimitReader(resp.Body, 10*1024*1024))
}

type httpError struct{ status int }

func (e *httpError) Error() string {
	return http.StatusText(e.status)
}
