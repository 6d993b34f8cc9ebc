// Package extractor turns fetched HTML into structured SEO records.
package extractor

// Record is the per-URL result of a crawl. Records are immutable once
// appended to the result list; linked_from is filled in at completion.
type Record struct {
	URL         string `json:"url"`
	StatusCode  int    `json:"status_code"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
	IsInternal  bool   `json:"is_internal"`
	Depth       int    `json:"depth"`

	Title           string   `json:"title"`
	MetaDescription string   `json:"meta_description"`
	H1              string   `json:"h1"`
	H2              []string `json:"h2"`
	H3              []string `json:"h3"`
	WordCount       int      `json:"word_count"`

	MetaTags    map[string]string `json:"meta_tags"`
	OGTags      map[string]string `json:"og_tags"`
	TwitterTags map[string]string `json:"twitter_tags"`

	CanonicalURL string `json:"canonical_url"`
	Lang         string `json:"lang"`
	Charset      string `json:"charset"`
	Viewport     string `json:"viewport"`
	Robots       string `json:"robots"`
	Author       string `json:"author"`
	Keywords     string `json:"keywords"`
	Generator    string `json:"generator"`
	ThemeColor   string `json:"theme_color"`

	JSONLD    []interface{} `json:"json_ld"`
	Analytics Analytics     `json:"analytics"`
	Images    []Image       `json:"images"`
	Hreflang  []Hreflang    `json:"hreflang"`
	SchemaOrg []string      `json:"schema_org"`

	InternalLinks int `json:"internal_links"`
	ExternalLinks int `json:"external_links"`

	ResponseTimeMs     float64    `json:"response_time_ms"`
	Redirects          []Redirect `json:"redirects"`
	LinkedFrom         []string   `json:"linked_from"`
	JavaScriptRendered bool       `json:"javascript_rendered"`

	// Failure detail for error records (status_code 0 or HTTP errors)
	Details string `json:"details,omitempty"`
}

// Analytics holds tracker detection results.
type Analytics struct {
	HasAnalytics     bool   `json:"has_analytics"`
	GoogleAnalytics  bool   `json:"google_analytics"`
	GoogleTagManager bool   `json:"google_tag_manager"`
	FacebookPixel    bool   `json:"facebook_pixel"`
	Hotjar           bool   `json:"hotjar"`
	Mixpanel         bool   `json:"mixpanel"`
	GA4ID            string `json:"ga4_id,omitempty"`
	GTMID            string `json:"gtm_id,omitempty"`
}

// Image is an image reference with its alt text.
type Image struct {
	Src string `json:"src"`
	Alt string `json:"alt"`
}

// Hreflang is an alternate-language link.
type Hreflang struct {
	Lang string `json:"lang"`
	URL  string `json:"url"`
}

// Redirect is one hop of the redirect chain.
type Redirect struct {
	URL        string `json:"url"`
	StatusCode int    `json:"status_code"`
}

// NewEmptyRecord builds a record for a failed fetch. All collection
// fields are non-nil so downstream JSON stays shaped.
func NewEmptyRecord(url string, depth, statusCode int, details string) *Record {
	return &Record{
		URL:         url,
		StatusCode:  statusCode,
		Depth:       depth,
		Details:     details,
		H2:          []string{},
		H3:          []string{},
		MetaTags:    map[string]string{},
		OGTags:      map[string]string{},
		TwitterTags: map[string]string{},
		JSONLD:      []interface{}{},
		Images:      []Image{},
		Hreflang:    []Hreflang{},
		SchemaOrg:   []string{},
		Redirects:   []Redirect{},
		LinkedFrom:  []string{},
	}
}
