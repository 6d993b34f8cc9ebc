package crawler

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crawlforge/crawlforge/internal/config"
	"github.com/crawlforge/crawlforge/internal/extractor"
	"github.com/crawlforge/crawlforge/internal/links"
	"github.com/crawlforge/crawlforge/internal/renderer"
	"github.com/crawlforge/crawlforge/internal/storage"
	"github.com/crawlforge/crawlforge/internal/urlutil"
)

func serveSite(t *testing.T, pages map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func htmlPage(title, body string) string {
	return fmt.Sprintf(`<!doctype html><html><head><title>%s</title>
<meta name="description" content="A sufficiently descriptive summary of the %s page for testing purposes.">
<meta name="viewport" content="width=device-width, initial-scale=1">
</head><body><h1>%s</h1><p>Plenty of body copy lives on this page so the
content checks have words to count while the crawl walks the site.</p>%s</body></html>`,
		title, title, title, body)
}

func fastConfig() *config.Config {
	cfg := config.Default()
	cfg.Delay = 0
	cfg.RespectRobots = false
	cfg.DiscoverSitemaps = false
	cfg.EnableDuplicationCheck = false
	cfg.Concurrency = 2
	return cfg
}

func crawledURLs(st Status) map[string]bool {
	out := make(map[string]bool, len(st.URLs))
	for _, rec := range st.URLs {
		out[rec.URL] = true
	}
	return out
}

func TestCrawlSmallSite(t *testing.T) {
	srv := serveSite(t, map[string]string{
		"/":        htmlPage("Home", `<a href="/a">A</a> <a href="/b">B</a> <a href="/notitle">N</a>`),
		"/a":       htmlPage("Alpha", ""),
		"/b":       htmlPage("Beta", `<a href="/a">A again</a>`),
		"/notitle": `<html><head></head><body><p>bare</p></body></html>`,
	})

	c := New(fastConfig(), nil)
	require.NoError(t, c.Start(srv.URL, "session-1"))
	c.Wait()

	st := c.Status()
	assert.Equal(t, StateCompleted, st.State)
	assert.Equal(t, 4, st.Stats.Crawled)
	assert.Len(t, st.URLs, 4)
	assert.NotEmpty(t, st.Links)
	assert.Equal(t, 1, st.Stats.Depth)

	var missingTitle bool
	for _, iss := range st.Issues {
		if iss.Issue == "Missing Title Tag" {
			missingTitle = true
		}
	}
	assert.True(t, missingTitle, "expected a missing-title issue for /notitle")
}

func TestCrawlRespectsMaxURLs(t *testing.T) {
	pages := map[string]string{}
	var anchors string
	for i := 0; i < 20; i++ {
		path := fmt.Sprintf("/page-%d", i)
		anchors += fmt.Sprintf(`<a href="%s">p%d</a> `, path, i)
		pages[path] = htmlPage(fmt.Sprintf("Page %d", i), "")
	}
	pages["/"] = htmlPage("Home", anchors)
	srv := serveSite(t, pages)

	cfg := fastConfig()
	cfg.MaxURLs = 5
	cfg.Concurrency = 4

	c := New(cfg, nil)
	require.NoError(t, c.Start(srv.URL, "session-1"))
	c.Wait()

	st := c.Status()
	assert.Equal(t, 5, st.Stats.Crawled)
	assert.Len(t, st.URLs, 5)
}

func TestCrawlRespectsMaxDepth(t *testing.T) {
	srv := serveSite(t, map[string]string{
		"/":     htmlPage("Home", `<a href="/a">A</a>`),
		"/a":    htmlPage("Alpha", `<a href="/deep">Deep</a>`),
		"/deep": htmlPage("Deep", ""),
	})

	cfg := fastConfig()
	cfg.MaxDepth = 1

	c := New(cfg, nil)
	require.NoError(t, c.Start(srv.URL, "session-1"))
	c.Wait()

	urls := crawledURLs(c.Status())
	assert.True(t, urls[srv.URL+"/a"])
	assert.False(t, urls[srv.URL+"/deep"], "depth 2 page should not be crawled")
}

func TestSeedWithPathCrawlsSinglePage(t *testing.T) {
	srv := serveSite(t, map[string]string{
		"/landing": htmlPage("Landing", `<a href="/other">Other</a>`),
		"/other":   htmlPage("Other", ""),
	})

	c := New(fastConfig(), nil)
	require.NoError(t, c.Start(srv.URL+"/landing", "session-1"))
	c.Wait()

	st := c.Status()
	assert.Len(t, st.URLs, 1)
	assert.Equal(t, srv.URL+"/landing", st.URLs[0].URL)
}

func TestExcludePatternsSkipURLs(t *testing.T) {
	srv := serveSite(t, map[string]string{
		"/":        htmlPage("Home", `<a href="/keep">K</a> <a href="/private/x">P</a>`),
		"/keep":    htmlPage("Keep", ""),
		"/private": htmlPage("Private", ""),
	})

	cfg := fastConfig()
	cfg.ExcludePatterns = []string{`/private/`}

	c := New(cfg, nil)
	require.NoError(t, c.Start(srv.URL, "session-1"))
	c.Wait()

	urls := crawledURLs(c.Status())
	assert.True(t, urls[srv.URL+"/keep"])
	for u := range urls {
		assert.NotContains(t, u, "/private/")
	}
}

func TestRobotsDisallowSkipsURL(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "User-agent: *\nDisallow: /blocked\n")
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		switch r.URL.Path {
		case "/":
			fmt.Fprint(w, htmlPage("Home", `<a href="/blocked">B</a> <a href="/open">O</a>`))
		case "/open", "/blocked":
			fmt.Fprint(w, htmlPage("Page", ""))
		default:
			http.NotFound(w, r)
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	cfg := fastConfig()
	cfg.RespectRobots = true

	c := New(cfg, nil)
	require.NoError(t, c.Start(srv.URL, "session-1"))
	c.Wait()

	urls := crawledURLs(c.Status())
	assert.True(t, urls[srv.URL+"/open"])
	assert.False(t, urls[srv.URL+"/blocked"])
}

func TestStopWhileRunning(t *testing.T) {
	pages := map[string]string{}
	var anchors string
	for i := 0; i < 30; i++ {
		path := fmt.Sprintf("/p%d", i)
		anchors += fmt.Sprintf(`<a href="%s">x</a> `, path)
		pages[path] = htmlPage("P", "")
	}
	pages["/"] = htmlPage("Home", anchors)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, pages[r.URL.Path])
	}))
	t.Cleanup(srv.Close)

	cfg := fastConfig()
	cfg.Concurrency = 1

	c := New(cfg, nil)
	require.NoError(t, c.Start(srv.URL, "session-1"))
	require.NoError(t, c.Stop())

	st := c.Status()
	assert.Equal(t, StateStopped, st.State)
	assert.Less(t, st.Stats.Crawled, 31)
}

func TestPauseAndResume(t *testing.T) {
	pages := map[string]string{
		"/":  htmlPage("Home", `<a href="/a">A</a> <a href="/b">B</a>`),
		"/a": htmlPage("Alpha", ""),
		"/b": htmlPage("Beta", ""),
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, pages[r.URL.Path])
	}))
	t.Cleanup(srv.Close)

	cfg := fastConfig()
	cfg.Concurrency = 1

	c := New(cfg, nil)
	require.NoError(t, c.Start(srv.URL, "session-1"))

	require.NoError(t, c.Pause())
	assert.Equal(t, StatePaused, c.Status().State)
	require.Error(t, c.Pause())

	require.NoError(t, c.Resume())
	c.Wait()

	st := c.Status()
	assert.Equal(t, StateCompleted, st.State)
	assert.Equal(t, 3, st.Stats.Crawled)
}

func TestPauseCheckpointCoversInflightURL(t *testing.T) {
	pages := map[string]string{
		"/":  htmlPage("Home", `<a href="/a">A</a> <a href="/b">B</a>`),
		"/a": htmlPage("Alpha", ""),
		"/b": htmlPage("Beta", ""),
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/a" {
			time.Sleep(300 * time.Millisecond)
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, pages[r.URL.Path])
	}))
	t.Cleanup(srv.Close)

	store, err := storage.Open(filepath.Join(t.TempDir(), "crawls.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cfg := fastConfig()
	cfg.Concurrency = 2

	first := New(cfg, store)
	require.NoError(t, first.Start(srv.URL, "session-1"))

	// let the slow fetch of /a get dequeued before pausing
	deadline := time.Now().Add(5 * time.Second)
	for first.Status().Stats.Crawled < 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, first.Pause())

	// simulate a process restart: resume the stored crawl on a fresh
	// crawler and leave the paused one behind
	second := New(fastConfig(), store)
	require.NoError(t, second.ResumeFromStore(first.CrawlID()))
	second.Wait()

	st := second.Status()
	assert.Equal(t, StateCompleted, st.State)
	urls := crawledURLs(st)
	assert.True(t, urls[srv.URL+"/"])
	assert.True(t, urls[srv.URL+"/a"], "URL in flight at pause must survive the restart")
	assert.True(t, urls[srv.URL+"/b"])
	assert.Len(t, st.URLs, 3)
}

func TestStartFailureSetsFailedState(t *testing.T) {
	c := New(fastConfig(), nil)
	require.Error(t, c.Start("https://exa mple.com", "session-1"))
	assert.Equal(t, StateFailed, c.Status().State)
}

func TestStartBrowserFailureSetsFailedState(t *testing.T) {
	t.Setenv(renderer.RemoteBrowserEnv, "")

	cfg := fastConfig()
	cfg.EnableJavaScript = true
	cfg.JSBrowser = "firefox"

	c := New(cfg, nil)
	require.Error(t, c.Start("https://example.test", "session-1"))
	assert.Equal(t, StateFailed, c.Status().State)
}

func TestResumeBrowserFailureMarksCrawlFailed(t *testing.T) {
	t.Setenv(renderer.RemoteBrowserEnv, "")

	store, err := storage.Open(filepath.Join(t.TempDir(), "crawls.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cfg := fastConfig()
	cfg.EnableJavaScript = true
	cfg.JSBrowser = "firefox"
	snapshot, err := cfg.JSON()
	require.NoError(t, err)

	crawlID, err := store.CreateCrawl("session-1", "https://example.test/", "example.test", snapshot)
	require.NoError(t, err)
	require.NoError(t, store.SetStatus(crawlID, "paused"))

	c := New(fastConfig(), store)
	require.Error(t, c.ResumeFromStore(crawlID))
	assert.Equal(t, StateFailed, c.Status().State)

	meta, err := store.GetCrawl(crawlID)
	require.NoError(t, err)
	assert.Equal(t, "failed", meta.Status)
}

func TestStatusSnapshotIsolated(t *testing.T) {
	srv := serveSite(t, map[string]string{
		"/":  htmlPage("Home", `<a href="/a">A</a>`),
		"/a": htmlPage("Alpha", ""),
	})

	c := New(fastConfig(), nil)
	require.NoError(t, c.Start(srv.URL, "session-1"))
	c.Wait()

	st1 := c.Status()
	require.NotEmpty(t, st1.URLs)
	st1.URLs[0].Title = "mutated"
	mutatedURL := st1.URLs[0].URL

	st2 := c.Status()
	for _, rec := range st2.URLs {
		if rec.URL == mutatedURL {
			assert.NotEqual(t, "mutated", rec.Title)
		}
	}
}

func TestLifecycleErrorsWhenIdle(t *testing.T) {
	c := New(fastConfig(), nil)
	assert.Error(t, c.Pause())
	assert.Error(t, c.Resume())
	assert.Error(t, c.Stop())
}

func TestCrawlPersistsToStore(t *testing.T) {
	srv := serveSite(t, map[string]string{
		"/":  htmlPage("Home", `<a href="/a">A</a>`),
		"/a": htmlPage("Alpha", ""),
	})

	store, err := storage.Open(filepath.Join(t.TempDir(), "crawls.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	c := New(fastConfig(), store)
	require.NoError(t, c.Start(srv.URL, "session-1"))
	c.Wait()

	crawlID := c.CrawlID()
	require.NotEmpty(t, crawlID)

	meta, err := store.GetCrawl(crawlID)
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, "completed", meta.Status)
	assert.Equal(t, "session-1", meta.SessionID)
	assert.NotNil(t, meta.CompletedAt)

	recs, err := store.LoadRecords(crawlID)
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestResumeFromStoreRebuildsQueue(t *testing.T) {
	srv := serveSite(t, map[string]string{
		"/":  htmlPage("Home", `<a href="/a">A</a>`),
		"/a": htmlPage("Alpha", ""),
	})

	store, err := storage.Open(filepath.Join(t.TempDir(), "crawls.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	seed, err := urlutil.Normalize(srv.URL)
	require.NoError(t, err)
	target, err := urlutil.Normalize(srv.URL + "/a")
	require.NoError(t, err)

	snapshot, err := fastConfig().JSON()
	require.NoError(t, err)
	baseDomain := seed[len("http://"):]
	baseDomain = baseDomain[:len(baseDomain)-1]
	crawlID, err := store.CreateCrawl("session-1", srv.URL, baseDomain, snapshot)
	require.NoError(t, err)

	root := extractor.NewEmptyRecord(seed, 0, 200, "")
	root.IsInternal = true
	require.NoError(t, store.SaveRecords(crawlID, []*extractor.Record{root}))
	require.NoError(t, store.SaveLinks(crawlID, []links.Record{
		{SourceURL: seed, TargetURL: target, AnchorText: "A",
			IsInternal: true, TargetDomain: baseDomain},
	}))
	require.NoError(t, store.SetStatus(crawlID, "paused"))

	c := New(fastConfig(), store)
	require.NoError(t, c.ResumeFromStore(crawlID))
	c.Wait()

	st := c.Status()
	assert.Equal(t, StateCompleted, st.State)
	urls := crawledURLs(st)
	assert.True(t, urls[seed], "restored record should survive")
	assert.True(t, urls[target], "uncrawled link target should be crawled")
	assert.Len(t, st.URLs, 2)

	meta, err := store.GetCrawl(crawlID)
	require.NoError(t, err)
	assert.Equal(t, "completed", meta.Status)
}

func TestResumeFromStoreRejectsFinished(t *testing.T) {
	store, err := storage.Open(filepath.Join(t.TempDir(), "crawls.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	snapshot, err := config.Default().JSON()
	require.NoError(t, err)
	crawlID, err := store.CreateCrawl("session-1", "https://example.test/", "example.test", snapshot)
	require.NoError(t, err)
	require.NoError(t, store.SetStatus(crawlID, "completed"))

	c := New(fastConfig(), store)
	err = c.ResumeFromStore(crawlID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot be resumed")
}

func TestUpdateConfig(t *testing.T) {
	c := New(fastConfig(), nil)

	require.NoError(t, c.UpdateConfig([]byte(`{"max_depth": 5, "delay": 0.5}`)))
	assert.Equal(t, 5, c.Config().MaxDepth)
	assert.InDelta(t, 0.5, c.Config().Delay, 1e-9)

	assert.Error(t, c.UpdateConfig([]byte(`{not json`)))
}

func TestStartRejectsConcurrentCrawl(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, htmlPage("Home", ""))
	}))
	t.Cleanup(srv.Close)

	c := New(fastConfig(), nil)
	require.NoError(t, c.Start(srv.URL, "session-1"))
	assert.Error(t, c.Start(srv.URL, "session-1"))
	c.Wait()
}

func TestStatusBeforeStart(t *testing.T) {
	c := New(fastConfig(), nil)
	st := c.Status()
	assert.Equal(t, StateIdle, st.State)
	assert.Zero(t, st.Stats.Crawled)
	assert.Empty(t, st.URLs)
}
