package extractor

import (
	"bytes"
	"encoding/json"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// Placement classifies where on the page a link appears.
type Placement string

const (
	PlacementHead   Placement = "head"
	PlacementBody   Placement = "body"
	PlacementNav    Placement = "nav"
	PlacementFooter Placement = "footer"
)

// Link is an anchor found on the page, href resolved to absolute form.
type Link struct {
	URL       string
	Text      string
	Rel       string
	NoFollow  bool
	Placement Placement
}

// PageData is the raw parse result handed to record assembly.
type PageData struct {
	Title           string
	MetaDescription string
	MetaKeywords    string
	MetaRobots      string
	MetaAuthor      string
	Generator       string
	ThemeColor      string
	Viewport        string
	Canonical       string
	Lang            string
	Charset         string

	H1 []string
	H2 []string
	H3 []string

	MetaTags    map[string]string
	OGTags      map[string]string
	TwitterTags map[string]string

	JSONLD    []interface{}
	SchemaOrg []string
	Hreflangs []Hreflang
	Images    []Image
	Links     []Link

	WordCount   int
	TextContent string
}

// Parser walks an HTML tree and extracts SEO signals.
type Parser struct {
	baseURL *url.URL
}

// NewParser creates a parser resolving relative URLs against baseURL.
func NewParser(baseURL string) (*Parser, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	return &Parser{baseURL: u}, nil
}

// Parse extracts page data from HTML content. Malformed fragments are
// tolerated; x/net/html never fails on real-world markup.
func (p *Parser) Parse(content []byte) (*PageData, error) {
	doc, err := html.Parse(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}

	data := &PageData{
		H1:          make([]string, 0),
		H2:          make([]string, 0),
		H3:          make([]string, 0),
		MetaTags:    make(map[string]string),
		OGTags:      make(map[string]string),
		TwitterTags: make(map[string]string),
		JSONLD:      make([]interface{}, 0),
		SchemaOrg:   make([]string, 0),
		Hreflangs:   make([]Hreflang, 0),
		Images:      make([]Image, 0),
		Links:       make([]Link, 0),
	}

	var textBuilder strings.Builder
	p.traverse(doc, data, &textBuilder, PlacementBody)

	data.TextContent = textBuilder.String()
	data.WordCount = len(strings.Fields(data.TextContent))

	return data, nil
}

func (p *Parser) traverse(n *html.Node, data *PageData, textBuilder *strings.Builder, placement Placement) {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "head":
			placement = PlacementHead
		case "body":
			placement = PlacementBody
		case "nav":
			placement = PlacementNav
		case "footer":
			placement = PlacementFooter

		case "html":
			if lang := getAttr(n, "lang"); lang != "" {
				data.Lang = lang
			}

		case "base":
			if href := getAttr(n, "href"); href != "" {
				if u, err := url.Parse(href); err == nil {
					p.baseURL = p.baseURL.ResolveReference(u)
				}
			}

		case "title":
			if data.Title == "" {
				data.Title = strings.TrimSpace(getTextContent(n))
			}

		case "meta":
			p.parseMeta(n, data)

		case "link":
			p.parseLinkTag(n, data)

		case "a":
			if link, ok := p.parseAnchor(n, placement); ok {
				data.Links = append(data.Links, link)
			}

		case "img":
			src := getAttr(n, "src")
			if src == "" {
				src = getAttr(n, "data-src")
			}
			if src != "" {
				data.Images = append(data.Images, Image{
					Src: p.resolveURL(src),
					Alt: getAttr(n, "alt"),
				})
			}

		case "script":
			if strings.EqualFold(getAttr(n, "type"), "application/ld+json") {
				raw := strings.TrimSpace(getTextContent(n))
				var parsed interface{}
				if raw != "" && json.Unmarshal([]byte(raw), &parsed) == nil {
					data.JSONLD = append(data.JSONLD, parsed)
				}
			}

		case "h1":
			if text := strings.TrimSpace(getTextContent(n)); text != "" {
				data.H1 = append(data.H1, text)
			}
		case "h2":
			if text := strings.TrimSpace(getTextContent(n)); text != "" {
				data.H2 = append(data.H2, text)
			}
		case "h3":
			if text := strings.TrimSpace(getTextContent(n)); text != "" {
				data.H3 = append(data.H3, text)
			}
		}

		if itemtype := getAttr(n, "itemtype"); itemtype != "" {
			data.SchemaOrg = append(data.SchemaOrg, itemtype)
		}
	}

	if n.Type == html.TextNode {
		parent := n.Parent
		if parent != nil && parent.Data != "script" && parent.Data != "style" {
			if text := strings.TrimSpace(n.Data); text != "" {
				textBuilder.WriteString(text)
				textBuilder.WriteString(" ")
			}
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		p.traverse(c, data, textBuilder, placement)
	}
}

func (p *Parser) parseMeta(n *html.Node, data *PageData) {
	name := strings.ToLower(getAttr(n, "name"))
	property := strings.ToLower(getAttr(n, "property"))
	content := getAttr(n, "content")

	if charset := getAttr(n, "charset"); charset != "" {
		data.Charset = charset
		return
	}
	if strings.EqualFold(getAttr(n, "http-equiv"), "content-type") {
		if idx := strings.Index(strings.ToLower(content), "charset="); idx != -1 {
			data.Charset = strings.TrimSpace(content[idx+len("charset="):])
		}
		return
	}

	switch {
	case name == "description":
		data.MetaDescription = content
	case name == "keywords":
		data.MetaKeywords = content
	case name == "robots":
		data.MetaRobots = content
	case name == "author":
		data.MetaAuthor = content
	case name == "generator":
		data.Generator = content
	case name == "theme-color":
		data.ThemeColor = content
	case name == "viewport":
		data.Viewport = content
	case strings.HasPrefix(property, "og:"):
		data.OGTags[property] = content
	case strings.HasPrefix(name, "twitter:") || strings.HasPrefix(property, "twitter:"):
		key := name
		if key == "" {
			key = property
		}
		data.TwitterTags[key] = content
	default:
		if name != "" {
			data.MetaTags[name] = content
		}
	}
}

func (p *Parser) parseLinkTag(n *html.Node, data *PageData) {
	rel := strings.ToLower(getAttr(n, "rel"))
	href := getAttr(n, "href")

	switch rel {
	case "canonical":
		if href != "" {
			data.Canonical = p.resolveURL(href)
		}
	case "alternate":
		if hreflang := getAttr(n, "hreflang"); hreflang != "" && href != "" {
			data.Hreflangs = append(data.Hreflangs, Hreflang{
				Lang: hreflang,
				URL:  p.resolveURL(href),
			})
		}
	}
}

func (p *Parser) parseAnchor(n *html.Node, placement Placement) (Link, bool) {
	href := strings.TrimSpace(getAttr(n, "href"))
	if href == "" || strings.HasPrefix(href, "javascript:") ||
		strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "tel:") ||
		strings.HasPrefix(href, "#") {
		return Link{}, false
	}

	rel := strings.ToLower(getAttr(n, "rel"))
	return Link{
		URL:       p.resolveURL(href),
		Text:      strings.TrimSpace(getTextContent(n)),
		Rel:       rel,
		NoFollow:  strings.Contains(rel, "nofollow"),
		Placement: placement,
	}, true
}

func (p *Parser) resolveURL(href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return p.baseURL.ResolveReference(ref).String()
}

func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

func getTextContent(n *html.Node) string {
	var buf bytes.Buffer
	collectText(n, &buf)
	return buf.String()
}

func collectText(n *html.Node, buf *bytes.Buffer) {
	if n.Type == html.TextNode {
		buf.WriteString(n.Data)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, buf)
	}
}

// Parse is a convenience wrapper building a parser per call.
func Parse(baseURL string, content []byte) (*PageData, error) {
	p, err := NewParser(baseURL)
	if err != nil {
		return nil, err
	}
	return p.Parse(content)
}
