package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crawlforge/crawlforge/internal/config"
	"github.com/crawlforge/crawlforge/internal/extractor"
	"github.com/crawlforge/crawlforge/internal/issues"
	"github.com/crawlforge/crawlforge/internal/links"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "crawls.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func createTestCrawl(t *testing.T, store *Store) string {
	t.Helper()
	snapshot, err := config.Default().JSON()
	require.NoError(t, err)
	id, err := store.CreateCrawl("session-1", "https://example.test/", "example.test", snapshot)
	require.NoError(t, err)
	return id
}

func TestCreateAndGetCrawl(t *testing.T) {
	store := openTestStore(t)
	id := createTestCrawl(t, store)

	meta, err := store.GetCrawl(id)
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, "running", meta.Status)
	assert.Equal(t, "https://example.test/", meta.BaseURL)
	assert.Equal(t, "example.test", meta.BaseDomain)
	assert.NotEmpty(t, meta.ConfigSnapshot)
	assert.Nil(t, meta.CompletedAt)

	cfg, err := config.FromJSON(meta.ConfigSnapshot)
	require.NoError(t, err)
	assert.Equal(t, config.Default().MaxDepth, cfg.MaxDepth)
}

func TestGetCrawlMissing(t *testing.T) {
	store := openTestStore(t)
	meta, err := store.GetCrawl("no-such-crawl")
	require.NoError(t, err)
	assert.Nil(t, meta)
}

func TestRecordRoundTrip(t *testing.T) {
	store := openTestStore(t)
	id := createTestCrawl(t, store)

	rec := extractor.NewEmptyRecord("https://example.test/page", 1, 200, "")
	rec.ContentType = "text/html"
	rec.SizeBytes = 2048
	rec.IsInternal = true
	rec.Title = "Page"
	rec.MetaDescription = "Desc"
	rec.H1 = "Heading"
	rec.H2 = []string{"One", "Two"}
	rec.WordCount = 321
	rec.MetaTags = map[string]string{"description": "Desc"}
	rec.OGTags = map[string]string{"og:title": "Page"}
	rec.Images = []extractor.Image{{Src: "/a.png", Alt: "a"}}
	rec.Redirects = []extractor.Redirect{{URL: "https://example.test/old", StatusCode: 301}}
	rec.LinkedFrom = []string{"https://example.test/"}
	rec.Analytics = extractor.Analytics{HasAnalytics: true, GoogleAnalytics: true, GA4ID: "G-ABCD1"}
	rec.ResponseTimeMs = 123.5
	rec.InternalLinks = 4
	rec.ExternalLinks = 1

	require.NoError(t, store.SaveRecords(id, []*extractor.Record{rec}))

	loaded, err := store.LoadRecords(id)
	require.NoError(t, err)
	require.Len(t, loaded, 1)

	got := loaded[0]
	assert.Equal(t, rec.URL, got.URL)
	assert.Equal(t, rec.StatusCode, got.StatusCode)
	assert.Equal(t, rec.H2, got.H2)
	assert.Equal(t, rec.MetaTags, got.MetaTags)
	assert.Equal(t, rec.Images, got.Images)
	assert.Equal(t, rec.Redirects, got.Redirects)
	assert.Equal(t, rec.LinkedFrom, got.LinkedFrom)
	assert.Equal(t, rec.Analytics, got.Analytics)
	assert.Equal(t, rec.ResponseTimeMs, got.ResponseTimeMs)
}

func TestLinkAndIssueRoundTrip(t *testing.T) {
	store := openTestStore(t)
	id := createTestCrawl(t, store)

	edges := []links.Record{
		{SourceURL: "https://example.test/", TargetURL: "https://example.test/a",
			AnchorText: "A", IsInternal: true, TargetDomain: "example.test",
			TargetStatus: 200, Placement: extractor.PlacementNav},
		{SourceURL: "https://example.test/", TargetURL: "https://other.test/",
			AnchorText: "Out", IsInternal: false, TargetDomain: "other.test"},
	}
	require.NoError(t, store.SaveLinks(id, edges))

	found := []issues.Issue{
		{URL: "https://example.test/a", Type: "error", Category: "SEO",
			Issue: "Missing Title Tag", Details: "Page has no title tag"},
	}
	require.NoError(t, store.SaveIssues(id, found))

	gotLinks, err := store.LoadLinks(id)
	require.NoError(t, err)
	assert.Equal(t, edges, gotLinks)

	gotIssues, err := store.LoadIssues(id)
	require.NoError(t, err)
	assert.Equal(t, found, gotIssues)
}

func TestEmptyBatchesAreNoOps(t *testing.T) {
	store := openTestStore(t)
	id := createTestCrawl(t, store)

	require.NoError(t, store.SaveRecords(id, nil))
	require.NoError(t, store.SaveLinks(id, nil))
	require.NoError(t, store.SaveIssues(id, nil))
}

func TestCheckpointRoundTrip(t *testing.T) {
	store := openTestStore(t)
	id := createTestCrawl(t, store)

	cp := &Checkpoint{
		Pending: []links.QueueItem{{URL: "https://example.test/next", Depth: 2}},
		Visited: []string{"https://example.test/", "https://example.test/a"},
	}
	require.NoError(t, store.SaveCheckpoint(id, cp))

	meta, err := store.GetCrawl(id)
	require.NoError(t, err)
	require.NotNil(t, meta.Checkpoint)
	assert.Equal(t, cp.Pending, meta.Checkpoint.Pending)
	assert.Equal(t, cp.Visited, meta.Checkpoint.Visited)
}

func TestSetStatusStampsCompletion(t *testing.T) {
	store := openTestStore(t)
	id := createTestCrawl(t, store)

	require.NoError(t, store.SetStatus(id, "paused"))
	meta, err := store.GetCrawl(id)
	require.NoError(t, err)
	assert.Equal(t, "paused", meta.Status)
	assert.Nil(t, meta.CompletedAt)

	require.NoError(t, store.SetStatus(id, "completed"))
	meta, err = store.GetCrawl(id)
	require.NoError(t, err)
	assert.Equal(t, "completed", meta.Status)
	assert.NotNil(t, meta.CompletedAt)
}

func TestResumeDataStatusGate(t *testing.T) {
	store := openTestStore(t)
	id := createTestCrawl(t, store)

	// running counts as crashed and is resumable
	meta, err := store.ResumeData(id)
	require.NoError(t, err)
	assert.Equal(t, id, meta.ID)

	require.NoError(t, store.SetStatus(id, "paused"))
	_, err = store.ResumeData(id)
	require.NoError(t, err)

	require.NoError(t, store.SetStatus(id, "completed"))
	_, err = store.ResumeData(id)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot be resumed")

	_, err = store.ResumeData("missing")
	require.Error(t, err)
}

func TestCrashedCrawls(t *testing.T) {
	store := openTestStore(t)
	running := createTestCrawl(t, store)
	finished := createTestCrawl(t, store)
	require.NoError(t, store.SetStatus(finished, "completed"))

	crashed, err := store.CrashedCrawls()
	require.NoError(t, err)
	require.Len(t, crashed, 1)
	assert.Equal(t, running, crashed[0].ID)
}

func TestUpdateStats(t *testing.T) {
	store := openTestStore(t)
	id := createTestCrawl(t, store)

	require.NoError(t, store.UpdateStats(id, 120, 80, 3, 45.5, 12.25))

	meta, err := store.GetCrawl(id)
	require.NoError(t, err)
	assert.Equal(t, 120, meta.URLsDiscovered)
	assert.Equal(t, 80, meta.URLsCrawled)
	assert.Equal(t, 3, meta.MaxDepthReached)
	assert.InDelta(t, 45.5, meta.PeakMemoryMB, 1e-9)
	assert.InDelta(t, 12.25, meta.EstimatedSizeMB, 1e-9)
}

func TestDeleteCrawlCascades(t *testing.T) {
	store := openTestStore(t)
	id := createTestCrawl(t, store)

	require.NoError(t, store.SaveRecords(id, []*extractor.Record{
		extractor.NewEmptyRecord("https://example.test/", 0, 200, ""),
	}))
	require.NoError(t, store.SaveIssues(id, []issues.Issue{
		{URL: "https://example.test/", Type: "notice", Category: "SEO", Issue: "Missing Canonical URL"},
	}))

	require.NoError(t, store.DeleteCrawl(id))

	meta, err := store.GetCrawl(id)
	require.NoError(t, err)
	assert.Nil(t, meta)

	recs, err := store.LoadRecords(id)
	require.NoError(t, err)
	assert.Empty(t, recs)

	found, err := store.LoadIssues(id)
	require.NoError(t, err)
	assert.Empty(t, found)
}
