package perf

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSampleReportsPositiveRSS(t *testing.T) {
	tr := NewTracker(512 * 1024 * 1024)
	stats := tr.Sample(0, 0, 0)
	assert.Greater(t, stats.RSSMB, 0.0)
	assert.GreaterOrEqual(t, stats.PeakMB, stats.RSSMB)
}

func TestSampleEstimatesCrawlData(t *testing.T) {
	tr := NewTracker(0)
	stats := tr.Sample(1000, 5000, 200)
	want := float64(1000*bytesPerRecord+5000*bytesPerLink+200*bytesPerIssue) / (1024 * 1024)
	assert.InDelta(t, want, stats.EstimatedCrawlMB, 1e-9)
}

func TestPeakIsMonotonic(t *testing.T) {
	tr := NewTracker(0)
	first := tr.Sample(0, 0, 0)
	second := tr.Sample(0, 0, 0)
	assert.GreaterOrEqual(t, second.PeakMB, first.PeakMB)
}

func TestOverLimit(t *testing.T) {
	assert.False(t, NewTracker(0).OverLimit())
	// a 1-byte limit is always exceeded by a live heap
	assert.True(t, NewTracker(1).OverLimit())
	// raising the limit clears the condition
	tr := NewTracker(1)
	tr.SetLimit(1 << 40)
	assert.False(t, tr.OverLimit())
}
