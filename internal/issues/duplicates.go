package issues

import (
	"fmt"
	"strings"

	"github.com/crawlforge/crawlforge/internal/extractor"
)

// DetectDuplicates runs the cross-page near-duplicate pass over all
// records and emits a warning on both URLs of every pair whose
// similarity reaches the threshold. Excluded URLs are skipped.
func (d *Detector) DetectDuplicates(records []*extractor.Record, threshold float64) {
	var candidates []*extractor.Record
	for _, rec := range records {
		if rec.StatusCode >= 200 && rec.StatusCode < 300 && !d.Excluded(rec.URL) {
			candidates = append(candidates, rec)
		}
	}

	var found []Issue
	for i := 0; i < len(candidates); i++ {
		for j := i + 1; j < len(candidates); j++ {
			sim := Similarity(candidates[i], candidates[j])
			if sim < threshold {
				continue
			}
			pct := sim * 100
			found = append(found,
				Issue{candidates[i].URL, "warning", "Content", "Duplicate Content Detected",
					fmt.Sprintf("Content is %.1f%% similar to %s", pct, candidates[j].URL)},
				Issue{candidates[j].URL, "warning", "Content", "Duplicate Content Detected",
					fmt.Sprintf("Content is %.1f%% similar to %s", pct, candidates[i].URL)},
			)
		}
	}

	d.mu.Lock()
	d.issues = append(d.issues, found...)
	d.mu.Unlock()
}

// Similarity scores two records in [0, 1]:
// 0.35 title + 0.35 meta description + 0.20 h1 + 0.10 word-count ratio.
func Similarity(a, b *extractor.Record) float64 {
	score := 0.35*stringRatio(a.Title, b.Title) +
		0.35*stringRatio(a.MetaDescription, b.MetaDescription) +
		0.20*stringRatio(a.H1, b.H1)

	if a.WordCount > 0 && b.WordCount > 0 {
		lo, hi := a.WordCount, b.WordCount
		if lo > hi {
			lo, hi = hi, lo
		}
		score += 0.10 * float64(lo) / float64(hi)
	}
	return score
}

// stringRatio is the LCS similarity 2·LCS/(len(a)+len(b)) over
// lowercased trimmed text. An empty side scores 0.
func stringRatio(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}

	ra, rb := []rune(a), []rune(b)
	lcs := lcsLength(ra, rb)
	return 2 * float64(lcs) / float64(len(ra)+len(rb))
}

// lcsLength computes the longest-common-subsequence length with a
// two-row DP table.
func lcsLength(a, b []rune) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
			} else if prev[j] >= curr[j-1] {
				curr[j] = prev[j]
			} else {
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
