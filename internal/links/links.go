// Package links maintains the crawl frontier and the link graph: the
// pending queue, discovered/visited sets, the append-only edge list, and
// the reverse source-page map.
package links

import (
	"container/list"
	"net/url"
	"strings"
	"sync"

	"github.com/crawlforge/crawlforge/internal/extractor"
	"github.com/crawlforge/crawlforge/internal/urlutil"
)

// Record is one edge of the link graph. Identity is the
// (source, target) pair; duplicates are collapsed on insert.
type Record struct {
	SourceURL    string              `json:"source_url"`
	TargetURL    string              `json:"target_url"`
	AnchorText   string              `json:"anchor_text"`
	IsInternal   bool                `json:"is_internal"`
	TargetDomain string              `json:"target_domain"`
	TargetStatus int                 `json:"target_status"`
	Placement    extractor.Placement `json:"placement"`
}

// QueueItem is a pending crawl target.
type QueueItem struct {
	URL   string `json:"url"`
	Depth int    `json:"depth"`
}

// Manager guards all frontier and graph state behind a single lock.
// Reads return copies so snapshots never expose inner structures.
type Manager struct {
	mu sync.Mutex

	baseDomain string

	pending       *list.List
	allDiscovered map[string]struct{}
	visited       map[string]struct{}

	records  []Record
	linkKeys map[string]struct{}

	sourcePages map[string]map[string]struct{}
}

// NewManager creates a manager classifying URLs against baseDomain.
func NewManager(baseDomain string) *Manager {
	return &Manager{
		baseDomain:    strings.ToLower(baseDomain),
		pending:       list.New(),
		allDiscovered: make(map[string]struct{}),
		visited:       make(map[string]struct{}),
		records:       make([]Record, 0),
		linkKeys:      make(map[string]struct{}),
		sourcePages:   make(map[string]map[string]struct{}),
	}
}

// AddURL normalizes and enqueues a URL at the given depth. Returns false
// when the URL was already discovered or cannot be parsed.
func (m *Manager) AddURL(rawURL string, depth int) bool {
	normalized, err := urlutil.Normalize(rawURL)
	if err != nil {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, seen := m.allDiscovered[normalized]; seen {
		return false
	}
	m.allDiscovered[normalized] = struct{}{}
	m.pending.PushBack(QueueItem{URL: normalized, Depth: depth})
	return true
}

// Next dequeues the oldest pending URL. The caller marks it visited once
// its fetch completes.
func (m *Manager) Next() (QueueItem, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	front := m.pending.Front()
	if front == nil {
		return QueueItem{}, false
	}
	m.pending.Remove(front)
	return front.Value.(QueueItem), true
}

// MarkVisited records that a URL's fetch has returned.
func (m *Manager) MarkVisited(rawURL string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.visited[rawURL] = struct{}{}
	m.allDiscovered[rawURL] = struct{}{}
}

// IsInternal reports whether the URL's host equals the base domain.
func (m *Manager) IsInternal(rawURL string) bool {
	host, err := urlutil.ExtractHost(rawURL)
	if err != nil {
		return false
	}
	return host == m.baseDomain
}

// CollectLinks appends link records for every anchor on the page and
// updates the reverse source-page map. Duplicate (source, target) pairs
// are skipped.
func (m *Manager) CollectLinks(data *extractor.PageData, sourceURL string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, link := range data.Links {
		target, err := urlutil.Normalize(link.URL)
		if err != nil {
			continue
		}

		key := sourceURL + "|" + target
		if _, dup := m.linkKeys[key]; dup {
			continue
		}
		m.linkKeys[key] = struct{}{}

		m.records = append(m.records, Record{
			SourceURL:    sourceURL,
			TargetURL:    target,
			AnchorText:   link.Text,
			IsInternal:   m.isInternalLocked(target),
			TargetDomain: domainOf(target),
			Placement:    link.Placement,
		})

		if m.sourcePages[target] == nil {
			m.sourcePages[target] = make(map[string]struct{})
		}
		m.sourcePages[target][sourceURL] = struct{}{}
	}
}

// ExtractLinks enqueues the page's outbound links at nextDepth, gated by
// the caller's should-crawl predicate.
func (m *Manager) ExtractLinks(data *extractor.PageData, nextDepth int, shouldCrawl func(url string) bool) int {
	added := 0
	for _, link := range data.Links {
		target, err := urlutil.Normalize(link.URL)
		if err != nil {
			continue
		}
		if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
			continue
		}
		if !shouldCrawl(target) {
			continue
		}
		if m.AddURL(target, nextDepth) {
			added++
		}
	}
	return added
}

// SourcePages returns a snapshot of the inbound sources for a URL.
func (m *Manager) SourcePages(rawURL string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	sources := m.sourcePages[rawURL]
	out := make([]string, 0, len(sources))
	for src := range sources {
		out = append(out, src)
	}
	return out
}

// UpdateLinkStatuses fills target_status for every link whose target has
// a known status.
func (m *Manager) UpdateLinkStatuses(statusByURL map[string]int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.records {
		if status, ok := statusByURL[m.records[i].TargetURL]; ok {
			m.records[i].TargetStatus = status
		}
	}
}

// Links returns a copy of the edge list.
func (m *Manager) Links() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, len(m.records))
	copy(out, m.records)
	return out
}

// PendingSnapshot returns up to limit pending items in queue order.
// A non-positive limit returns everything.
func (m *Manager) PendingSnapshot(limit int) []QueueItem {
	m.mu.Lock()
	defer m.mu.Unlock()

	if limit <= 0 || limit > m.pending.Len() {
		limit = m.pending.Len()
	}
	out := make([]QueueItem, 0, limit)
	for e := m.pending.Front(); e != nil && len(out) < limit; e = e.Next() {
		out = append(out, e.Value.(QueueItem))
	}
	return out
}

// VisitedSnapshot returns a copy of the visited set.
func (m *Manager) VisitedSnapshot() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.visited))
	for u := range m.visited {
		out = append(out, u)
	}
	return out
}

// IsVisited reports whether a URL's fetch has completed.
func (m *Manager) IsVisited(rawURL string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.visited[rawURL]
	return ok
}

// DiscoveredCount returns the number of URLs ever discovered.
func (m *Manager) DiscoveredCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.allDiscovered)
}

// PendingCount returns the number of queued URLs.
func (m *Manager) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending.Len()
}

// RestoreVisited seeds the visited and discovered sets during resume.
func (m *Manager) RestoreVisited(urls []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range urls {
		m.visited[u] = struct{}{}
		m.allDiscovered[u] = struct{}{}
	}
}

// RestorePending requeues checkpointed items, skipping already-visited
// and already-queued URLs.
func (m *Manager) RestorePending(items []QueueItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, item := range items {
		if _, done := m.visited[item.URL]; done {
			continue
		}
		if _, queued := m.allDiscovered[item.URL]; queued {
			continue
		}
		m.allDiscovered[item.URL] = struct{}{}
		m.pending.PushBack(item)
	}
}

// RestoreLinks reloads persisted link records during resume.
func (m *Manager) RestoreLinks(records []Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range records {
		key := rec.SourceURL + "|" + rec.TargetURL
		if _, dup := m.linkKeys[key]; dup {
			continue
		}
		m.linkKeys[key] = struct{}{}
		m.records = append(m.records, rec)

		if m.sourcePages[rec.TargetURL] == nil {
			m.sourcePages[rec.TargetURL] = make(map[string]struct{})
		}
		m.sourcePages[rec.TargetURL][rec.SourceURL] = struct{}{}
	}
}

func (m *Manager) isInternalLocked(rawURL string) bool {
	host, err := urlutil.ExtractHost(rawURL)
	if err != nil {
		return false
	}
	return host == m.baseDomain
}

func domainOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Host)
}
