// Package robots handles robots.txt parsing and per-host allow/deny
// decisions for the crawl.
package robots

import (
	"bufio"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// RobotsTxt represents a parsed robots.txt file.
type RobotsTxt struct {
	rules map[string]*AgentRules

	// Sitemaps found in robots.txt
	Sitemaps []string
}

// AgentRules contains rules for a specific user-agent.
type AgentRules struct {
	UserAgent  string
	Allow      []string
	Disallow   []string
	CrawlDelay time.Duration

	allowPatterns    []*regexp.Regexp
	disallowPatterns []*regexp.Regexp
}

// Parse parses robots.txt content.
func Parse(content string) *RobotsTxt {
	robots := &RobotsTxt{
		rules:    make(map[string]*AgentRules),
		Sitemaps: make([]string, 0),
	}

	scanner := bufio.NewScanner(strings.NewReader(content))
	var currentAgents []string
	lastWasAgent := false

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if idx := strings.Index(line, "#"); idx != -1 {
			line = strings.TrimSpace(line[:idx])
		}

		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}

		directive := strings.ToLower(strings.TrimSpace(parts[0]))
		value := strings.TrimSpace(parts[1])

		switch directive {
		case "user-agent":
			agent := strings.ToLower(value)
			if lastWasAgent {
				currentAgents = append(currentAgents, agent)
			} else {
				currentAgents = []string{agent}
			}
			if _, exists := robots.rules[agent]; !exists {
				robots.rules[agent] = &AgentRules{
					UserAgent: agent,
					Allow:     make([]string, 0),
					Disallow:  make([]string, 0),
				}
			}
			lastWasAgent = true
			continue

		case "disallow":
			for _, agent := range currentAgents {
				if rules, exists := robots.rules[agent]; exists {
					rules.Disallow = append(rules.Disallow, value)
					rules.disallowPatterns = append(rules.disallowPatterns, compilePattern(value))
				}
			}

		case "allow":
			for _, agent := range currentAgents {
				if rules, exists := robots.rules[agent]; exists {
					rules.Allow = append(rules.Allow, value)
					rules.allowPatterns = append(rules.allowPatterns, compilePattern(value))
				}
			}

		case "crawl-delay":
			if delay, err := strconv.ParseFloat(value, 64); err == nil {
				for _, agent := range currentAgents {
					if rules, exists := robots.rules[agent]; exists {
						rules.CrawlDelay = time.Duration(delay * float64(time.Second))
					}
				}
			}

		case "sitemap":
			robots.Sitemaps = append(robots.Sitemaps, value)
		}
		lastWasAgent = false
	}

	return robots
}

// IsAllowed checks if a URL path is allowed for a given user-agent.
// When both an allow and a disallow rule match, the longer rule wins.
func (r *RobotsTxt) IsAllowed(userAgent, urlPath string) bool {
	rules := r.getRulesForAgent(userAgent)
	if rules == nil {
		return true
	}

	if urlPath == "" {
		urlPath = "/"
	}

	allowMatch := findBestMatch(rules.Allow, rules.allowPatterns, urlPath)
	disallowMatch := findBestMatch(rules.Disallow, rules.disallowPatterns, urlPath)

	if disallowMatch == "" {
		return true
	}
	if allowMatch == "" {
		return false
	}
	return len(allowMatch) >= len(disallowMatch)
}

// GetCrawlDelay returns the crawl delay for a user-agent.
func (r *RobotsTxt) GetCrawlDelay(userAgent string) time.Duration {
	rules := r.getRulesForAgent(userAgent)
	if rules == nil {
		return 0
	}
	return rules.CrawlDelay
}

func (r *RobotsTxt) getRulesForAgent(userAgent string) *AgentRules {
	userAgent = strings.ToLower(userAgent)

	if rules, exists := r.rules[userAgent]; exists {
		return rules
	}
	for agent, rules := range r.rules {
		if agent == "*" {
			continue
		}
		if strings.Contains(userAgent, agent) || strings.Contains(agent, userAgent) {
			return rules
		}
	}
	if rules, exists := r.rules["*"]; exists {
		return rules
	}
	return nil
}

// findBestMatch returns the longest matching rule.
func findBestMatch(patterns []string, compiled []*regexp.Regexp, path string) string {
	var bestMatch string
	for i, pattern := range patterns {
		if pattern == "" {
			continue
		}

		var matched bool
		if i < len(compiled) && compiled[i] != nil {
			matched = compiled[i].MatchString(path)
		} else {
			matched = strings.HasPrefix(path, pattern)
		}

		if matched && len(pattern) > len(bestMatch) {
			bestMatch = pattern
		}
	}
	return bestMatch
}

// compilePattern converts a robots.txt rule to an anchored regex. '*'
// matches any run of characters, a trailing '$' anchors the end.
func compilePattern(pattern string) *regexp.Regexp {
	if pattern == "" {
		return nil
	}

	escaped := regexp.QuoteMeta(pattern)
	escaped = strings.ReplaceAll(escaped, `\*`, `.*`)
	if strings.HasSuffix(escaped, `\$`) {
		escaped = escaped[:len(escaped)-2] + "$"
	}
	escaped = "^" + escaped

	re, err := regexp.Compile(escaped)
	if err != nil {
		return nil
	}
	return re
}

// MetaRobots represents parsed meta robots directives.
type MetaRobots struct {
	NoIndex  bool
	NoFollow bool
	Raw      string
}

// ParseMetaRobots parses a meta robots content string.
func ParseMetaRobots(content string) *MetaRobots {
	meta := &MetaRobots{Raw: content}

	for _, d := range strings.Split(strings.ToLower(content), ",") {
		switch strings.TrimSpace(d) {
		case "noindex":
			meta.NoIndex = true
		case "nofollow":
			meta.NoFollow = true
		case "none":
			meta.NoIndex = true
			meta.NoFollow = true
		}
	}
	return meta
}

// ExtractPathFromURL extracts the path (plus query) for rule matching.
func ExtractPathFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "/"
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return path
}
