// Package perf tracks process memory against the configured crawl
// memory limit.
package perf

import (
	"runtime"
	"runtime/debug"
	"sync"
	"time"
)

// Rough per-row costs used to estimate how much of the heap the crawl
// data itself accounts for.
const (
	bytesPerRecord = 4096
	bytesPerLink   = 256
	bytesPerIssue  = 512
)

// MemoryStats is a point-in-time memory snapshot.
type MemoryStats struct {
	RSSMB            float64 `json:"rss_mb"`
	PeakMB           float64 `json:"peak_mb"`
	EstimatedCrawlMB float64 `json:"estimated_crawl_mb"`
	GCCount          uint32  `json:"gc_count"`
}

// Tracker samples runtime memory and remembers the peak.
type Tracker struct {
	mu sync.Mutex

	limit  int64
	peak   uint64
	lastGC time.Time
}

// NewTracker creates a tracker with a byte limit. A non-positive
// limit disables OverLimit.
func NewTracker(limit int64) *Tracker {
	return &Tracker{limit: limit}
}

// Sample reads current memory usage and updates the peak. Row counts
// feed the crawl-data estimate.
func (t *Tracker) Sample(records, links, issues int) MemoryStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	t.mu.Lock()
	if m.HeapInuse > t.peak {
		t.peak = m.HeapInuse
	}
	peak := t.peak
	t.mu.Unlock()

	estimated := records*bytesPerRecord + links*bytesPerLink + issues*bytesPerIssue
	return MemoryStats{
		RSSMB:            toMB(m.HeapInuse),
		PeakMB:           toMB(peak),
		EstimatedCrawlMB: toMB(uint64(estimated)),
		GCCount:          m.NumGC,
	}
}

// OverLimit reports whether heap usage exceeds the configured limit.
func (t *Tracker) OverLimit() bool {
	t.mu.Lock()
	limit := t.limit
	t.mu.Unlock()
	if limit <= 0 {
		return false
	}
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m.HeapInuse > uint64(limit)
}

// Relieve forces a collection, at most once per five seconds.
func (t *Tracker) Relieve() {
	t.mu.Lock()
	if time.Since(t.lastGC) < 5*time.Second {
		t.mu.Unlock()
		return
	}
	t.lastGC = time.Now()
	t.mu.Unlock()

	runtime.GC()
	debug.FreeOSMemory()
}

// SetLimit replaces the byte limit, for live config updates.
func (t *Tracker) SetLimit(limit int64) {
	t.mu.Lock()
	t.limit = limit
	t.mu.Unlock()
}

func toMB(b uint64) float64 {
	return float64(b) / (1024 * 1024)
}
