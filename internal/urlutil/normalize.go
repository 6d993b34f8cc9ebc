// Package urlutil provides URL normalization and host helpers shared by
// the link manager and the orchestrator.
package urlutil

import (
	"net/url"
	"strings"
)

// Normalize canonicalizes a URL for queue identity:
//   - lowercase scheme and host
//   - strip the fragment
//   - strip default ports (:80 for http, :443 for https)
//   - percent-decode sequences that encode unreserved ASCII
//   - collapse /./ segments and duplicate slashes in the path
//
// The function is idempotent: Normalize(Normalize(x)) == Normalize(x).
func Normalize(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", err
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	if u.Scheme == "http" && strings.HasSuffix(u.Host, ":80") {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	} else if u.Scheme == "https" && strings.HasSuffix(u.Host, ":443") {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	path = decodeUnreserved(path)
	path = normalizePath(path)

	unescaped, uerr := url.PathUnescape(path)
	if uerr != nil {
		unescaped = path
	}
	u.Path = unescaped
	if unescaped != path {
		u.RawPath = path
	} else {
		u.RawPath = ""
	}

	return u.String(), nil
}

// decodeUnreserved decodes %XX sequences whose byte is unreserved ASCII
// (letters, digits, -._~). Reserved and non-ASCII escapes stay encoded so
// the result round-trips unchanged.
func decodeUnreserved(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(s); i++ {
		if s[i] == '%' && i+2 < len(s) {
			hi, ok1 := unhex(s[i+1])
			lo, ok2 := unhex(s[i+2])
			if ok1 && ok2 {
				c := hi<<4 | lo
				if isUnreserved(c) {
					b.WriteByte(c)
					i += 2
					continue
				}
				// Re-emit with uppercase hex so repeated passes agree.
				b.WriteByte('%')
				b.WriteByte(upperHex(s[i+1]))
				b.WriteByte(upperHex(s[i+2]))
				i += 2
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	return c >= 'a' && c <= 'z' ||
		c >= 'A' && c <= 'Z' ||
		c >= '0' && c <= '9' ||
		c == '-' || c == '.' || c == '_' || c == '~'
}

func unhex(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

func upperHex(c byte) byte {
	if c >= 'a' && c <= 'f' {
		return c - 'a' + 'A'
	}
	return c
}

// normalizePath collapses duplicate slashes and resolves . and .. segments.
func normalizePath(path string) string {
	for strings.Contains(path, "//") {
		path = strings.ReplaceAll(path, "//", "/")
	}

	parts := strings.Split(path, "/")
	var result []string
	for _, part := range parts {
		switch part {
		case ".":
		case "..":
			if len(result) > 0 && result[len(result)-1] != "" {
				result = result[:len(result)-1]
			}
		default:
			result = append(result, part)
		}
	}

	normalized := strings.Join(result, "/")
	if normalized == "" {
		return "/"
	}
	return normalized
}

// ExtractHost extracts the lowercase host (with port stripped of defaults
// by Normalize, kept verbatim here) from a URL.
func ExtractHost(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	return strings.ToLower(u.Host), nil
}

// ResolveURL resolves a possibly relative URL against a base URL.
func ResolveURL(base, ref string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return baseURL.ResolveReference(refURL).String(), nil
}

// IsSameHost checks whether two URLs share a host (exact match, so
// subdomains count as different hosts).
func IsSameHost(url1, url2 string) bool {
	host1, err1 := ExtractHost(url1)
	host2, err2 := ExtractHost(url2)
	if err1 != nil || err2 != nil {
		return false
	}
	return host1 == host2
}

// HostOf returns the host of a URL, empty on parse failure.
func HostOf(rawURL string) string {
	host, err := ExtractHost(rawURL)
	if err != nil {
		return ""
	}
	return host
}
