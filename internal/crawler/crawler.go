// Package crawler orchestrates a crawl: it owns the frontier, the
// worker pool, rate limiting, persistence batching, and the
// completion passes.
package crawler

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/phuslu/log"

	"github.com/crawlforge/crawlforge/internal/config"
	"github.com/crawlforge/crawlforge/internal/extractor"
	"github.com/crawlforge/crawlforge/internal/fetcher"
	"github.com/crawlforge/crawlforge/internal/issues"
	"github.com/crawlforge/crawlforge/internal/links"
	"github.com/crawlforge/crawlforge/internal/pagespeed"
	"github.com/crawlforge/crawlforge/internal/perf"
	"github.com/crawlforge/crawlforge/internal/ratelimit"
	"github.com/crawlforge/crawlforge/internal/renderer"
	"github.com/crawlforge/crawlforge/internal/robots"
	"github.com/crawlforge/crawlforge/internal/sitemap"
	"github.com/crawlforge/crawlforge/internal/storage"
	"github.com/crawlforge/crawlforge/internal/urlutil"
)

// State is the crawl lifecycle phase.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StatePaused    State = "paused"
	StateCompleted State = "completed"
	StateStopped   State = "stopped"
	StateFailed    State = "failed"
)

const (
	batchSaveSize          = 50
	autoSaveInterval       = 30 * time.Second
	autoSaveTick           = 5 * time.Second
	checkpointPendingLimit = 1000
)

// Stats are the live crawl counters.
type Stats struct {
	Discovered int       `json:"discovered"`
	Crawled    int       `json:"crawled"`
	Depth      int       `json:"depth"`
	Speed      float64   `json:"speed"`
	StartTime  time.Time `json:"start_time"`
}

// Status is a point-in-time snapshot of the whole crawl.
type Status struct {
	State              State                  `json:"status"`
	Stats              Stats                  `json:"stats"`
	URLs               []*extractor.Record    `json:"urls"`
	Links              []links.Record         `json:"links"`
	Issues             []issues.Issue         `json:"issues"`
	Progress           float64                `json:"progress"`
	IsRunningPageSpeed bool                   `json:"is_running_pagespeed"`
	PageSpeed          []pagespeed.PageResult `json:"pagespeed_results,omitempty"`
	Memory             perf.MemoryStats       `json:"memory"`
}

// Crawler runs one crawl at a time. A finished crawler can Start again.
type Crawler struct {
	mu sync.Mutex

	cfg   *config.Config
	store *storage.Store

	state      State
	paused     atomic.Bool
	psRunning  atomic.Bool
	baseURL    string
	baseDomain string
	crawlID    string

	fetch    *fetcher.Fetcher
	render   *renderer.Renderer
	limiter  *ratelimit.Limiter
	robots   *robots.Cache
	links    *links.Manager
	detector *issues.Detector
	tracker  *perf.Tracker

	records         []*extractor.Record
	crawled         int
	maxDepthReached int
	inflight        int
	startTime       time.Time

	savedRecords int
	savedLinks   int
	savedIssues  int
	lastSave     time.Time

	pagespeedResults []pagespeed.PageResult

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a crawler. A nil store disables persistence.
func New(cfg *config.Config, store *storage.Store) *Crawler {
	if cfg == nil {
		cfg = config.Default()
	}
	return &Crawler{cfg: cfg, store: store, state: StateIdle}
}

// fail records a fatal startup error: the crawler transitions to
// failed, and the stored crawl row is marked failed when one exists.
func (c *Crawler) fail(err error) error {
	c.mu.Lock()
	c.state = StateFailed
	crawlID := c.crawlID
	c.mu.Unlock()

	if c.store != nil && crawlID != "" {
		if serr := c.store.SetStatus(crawlID, "failed"); serr != nil {
			log.Warn().Err(serr).Msg("could not mark crawl failed")
		}
	}
	log.Error().Err(err).Msg("crawl failed to start")
	return err
}

type workState int

const (
	workReady workState = iota
	workWait
	workDone
)

// Start begins crawling from the given URL. The crawl runs in the
// background; use Status, Wait, Pause, and Stop to interact with it.
func (c *Crawler) Start(rawURL, sessionID string) error {
	c.mu.Lock()
	if c.state == StateRunning || c.state == StatePaused {
		c.mu.Unlock()
		return fmt.Errorf("crawl already in progress")
	}
	c.mu.Unlock()

	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		rawURL = "https://" + rawURL
	}
	seed, err := urlutil.Normalize(rawURL)
	if err != nil {
		return c.fail(fmt.Errorf("invalid url %q: %w", rawURL, err))
	}
	u, err := url.Parse(seed)
	if err != nil {
		return c.fail(fmt.Errorf("invalid url %q: %w", rawURL, err))
	}

	cfg := c.cfg.Clone()
	if err := cfg.CompilePatterns(); err != nil {
		return c.fail(err)
	}

	// A seed with a path crawls that single page only
	if u.Path != "" && u.Path != "/" {
		log.Info().Str("path", u.Path).Msg("seed has a path, limiting crawl to a single page")
		cfg.MaxDepth = 0
	}

	c.mu.Lock()
	c.cfg = cfg
	c.baseURL = u.Scheme + "://" + u.Host
	c.baseDomain = u.Host
	c.resetLocked()
	c.initComponentsLocked()
	c.mu.Unlock()

	if cfg.EnableJavaScript {
		if err := c.render.Initialize(); err != nil {
			c.render = nil
			return c.fail(fmt.Errorf("javascript rendering unavailable: %w", err))
		}
	}

	if c.store != nil {
		snapshot, _ := cfg.JSON()
		id, err := c.store.CreateCrawl(sessionID, c.baseURL, c.baseDomain, snapshot)
		if err != nil {
			log.Warn().Err(err).Msg("crawl persistence disabled")
		} else {
			c.mu.Lock()
			c.crawlID = id
			c.mu.Unlock()
		}
	}

	c.links.AddURL(seed, 0)

	if cfg.DiscoverSitemaps {
		c.seedFromSitemaps()
	}

	c.launch()
	return nil
}

// ResumeFromStore restarts a paused, failed, or crashed crawl from its
// persisted state.
func (c *Crawler) ResumeFromStore(crawlID string) error {
	if c.store == nil {
		return fmt.Errorf("no store configured")
	}

	c.mu.Lock()
	if c.state == StateRunning || c.state == StatePaused {
		c.mu.Unlock()
		return fmt.Errorf("crawl already in progress")
	}
	c.mu.Unlock()

	meta, err := c.store.ResumeData(crawlID)
	if err != nil {
		return err
	}

	cfg := config.Default()
	if len(meta.ConfigSnapshot) > 0 {
		if restored, err := config.FromJSON(meta.ConfigSnapshot); err == nil {
			cfg = restored
		}
	}
	if err := cfg.CompilePatterns(); err != nil {
		return c.fail(err)
	}

	loadedRecords, err := c.store.LoadRecords(crawlID)
	if err != nil {
		return c.fail(fmt.Errorf("load crawled urls: %w", err))
	}
	loadedLinks, err := c.store.LoadLinks(crawlID)
	if err != nil {
		return c.fail(fmt.Errorf("load links: %w", err))
	}
	loadedIssues, err := c.store.LoadIssues(crawlID)
	if err != nil {
		return c.fail(fmt.Errorf("load issues: %w", err))
	}

	c.mu.Lock()
	c.cfg = cfg
	c.baseURL = meta.BaseURL
	c.baseDomain = meta.BaseDomain
	c.resetLocked()
	c.initComponentsLocked()
	c.crawlID = crawlID

	c.records = loadedRecords
	c.crawled = len(loadedRecords)
	c.maxDepthReached = meta.MaxDepthReached
	c.savedRecords = len(loadedRecords)
	c.savedLinks = len(loadedLinks)
	c.savedIssues = len(loadedIssues)
	linkMgr := c.links
	detector := c.detector
	c.mu.Unlock()

	if cfg.EnableJavaScript {
		if err := c.render.Initialize(); err != nil {
			c.render = nil
			return c.fail(fmt.Errorf("javascript rendering unavailable: %w", err))
		}
	}

	crawledURLs := make([]string, 0, len(loadedRecords))
	for _, rec := range loadedRecords {
		crawledURLs = append(crawledURLs, rec.URL)
	}
	linkMgr.RestoreVisited(crawledURLs)
	linkMgr.RestoreLinks(loadedLinks)
	detector.Restore(loadedIssues)

	if meta.Checkpoint != nil {
		linkMgr.RestoreVisited(meta.Checkpoint.Visited)
		linkMgr.RestorePending(meta.Checkpoint.Pending)
	}

	// No checkpointed queue: rebuild it from internal links whose
	// targets were never crawled
	if linkMgr.PendingCount() == 0 {
		added := 0
		for _, edge := range loadedLinks {
			if edge.IsInternal && !linkMgr.IsVisited(edge.TargetURL) {
				if linkMgr.AddURL(edge.TargetURL, 1) {
					added++
				}
			}
		}
		log.Info().Int("added", added).Msg("rebuilt crawl queue from link graph")
	}

	if err := c.store.SetStatus(crawlID, "running"); err != nil {
		log.Warn().Err(err).Msg("could not mark crawl running")
	}

	log.Info().Str("crawl_id", crawlID).Int("urls", len(loadedRecords)).
		Int("links", len(loadedLinks)).Int("issues", len(loadedIssues)).
		Int("pending", linkMgr.PendingCount()).Msg("crawl resumed from database")

	c.launch()
	return nil
}

func (c *Crawler) resetLocked() {
	c.records = nil
	c.crawled = 0
	c.maxDepthReached = 0
	c.inflight = 0
	c.savedRecords = 0
	c.savedLinks = 0
	c.savedIssues = 0
	c.pagespeedResults = nil
	c.crawlID = ""
	c.startTime = time.Now()
	c.lastSave = time.Now()
	c.paused.Store(false)
}

func (c *Crawler) initComponentsLocked() {
	c.fetch = fetcher.New(c.cfg)
	c.limiter = ratelimit.New(c.cfg.RequestsPerSecond())
	c.robots = robots.NewCache(c.fetch)
	c.links = links.NewManager(c.baseDomain)
	c.detector = issues.NewDetector(c.cfg.IssueExclusionPatterns)
	c.tracker = perf.NewTracker(c.cfg.MemoryLimit)
	if c.cfg.EnableJavaScript {
		c.render = renderer.New(c.cfg)
	} else {
		c.render = nil
	}
}

func (c *Crawler) seedFromSitemaps() {
	found := sitemap.NewParser(c.fetch).Discover(c.baseURL, c.robots.Sitemaps(c.baseURL))

	added, filtered := 0, 0
	for _, su := range found {
		if !c.shouldCrawl(su) {
			filtered++
			continue
		}
		if c.links.AddURL(su, 0) {
			added++
		}
	}
	log.Info().Int("added", added).Int("filtered", filtered).Msg("sitemap urls processed")
}

func (c *Crawler) launch() {
	ctx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	c.state = StateRunning
	c.cancel = cancel
	c.done = make(chan struct{})
	c.mu.Unlock()

	go c.runLoop(ctx)
	if c.persistent() {
		go c.autoSaveLoop(ctx)
	}

	log.Info().Str("base_url", c.baseURL).Msg("crawl started")
}

func (c *Crawler) persistent() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store != nil && c.crawlID != ""
}

func (c *Crawler) runLoop(ctx context.Context) {
	defer close(c.done)

	c.mu.Lock()
	cfg := c.cfg
	c.mu.Unlock()

	workers := cfg.Concurrency
	if cfg.EnableJavaScript {
		workers = cfg.JSMaxConcurrentPages
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.worker(ctx)
		}()
	}
	wg.Wait()

	c.finalize(ctx)
}

func (c *Crawler) worker(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if c.paused.Load() {
			sleepCtx(ctx, time.Second)
			continue
		}

		item, state := c.nextWork()
		switch state {
		case workDone:
			return
		case workWait:
			sleepCtx(ctx, 50*time.Millisecond)
			continue
		}

		if !c.limiter.FastPath() {
			if err := c.limiter.Acquire(ctx); err != nil {
				c.releaseWork()
				return
			}
		}

		rec := c.crawlOne(ctx, item.URL, item.Depth)
		c.complete(rec)
	}
}

// nextWork hands out the next queue item, reserving one slot of the
// max-URLs budget so the limit is exact under concurrency.
func (c *Crawler) nextWork() (links.QueueItem, workState) {
	c.mu.Lock()
	defer c.mu.Unlock()

	maxURLs := c.cfg.MaxURLs
	maxDepth := c.cfg.MaxDepth

	if c.crawled >= maxURLs {
		return links.QueueItem{}, workDone
	}
	if c.crawled+c.inflight >= maxURLs {
		return links.QueueItem{}, workWait
	}

	for {
		item, ok := c.links.Next()
		if !ok {
			if c.inflight == 0 {
				return links.QueueItem{}, workDone
			}
			return links.QueueItem{}, workWait
		}
		if item.Depth > maxDepth {
			continue
		}
		c.inflight++
		return item, workReady
	}
}

func (c *Crawler) releaseWork() {
	c.mu.Lock()
	c.inflight--
	c.mu.Unlock()
}

// waitInflight blocks until every dequeued URL has finished its page.
func (c *Crawler) waitInflight() {
	for {
		c.mu.Lock()
		idle := c.inflight == 0
		c.mu.Unlock()
		if idle {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func (c *Crawler) crawlOne(ctx context.Context, rawURL string, depth int) *extractor.Record {
	start := time.Now()

	c.mu.Lock()
	cfg := c.cfg
	fetch := c.fetch
	c.mu.Unlock()

	var rec *extractor.Record
	if cfg.EnableJavaScript {
		rec = c.crawlRendered(ctx, cfg, rawURL, depth)
	} else {
		rec = c.crawlFetched(ctx, cfg, fetch, rawURL, depth)
	}

	rec.IsInternal = c.links.IsInternal(rawURL)
	rec.LinkedFrom = c.links.SourcePages(rawURL)
	if rec.Details == "" {
		rec.ResponseTimeMs = roundMs(time.Since(start))
	}
	return rec
}

func (c *Crawler) crawlFetched(ctx context.Context, cfg *config.Config, fetch *fetcher.Fetcher, rawURL string, depth int) *extractor.Record {
	resp := fetch.Fetch(ctx, rawURL)
	if resp.Error != nil {
		return extractor.NewEmptyRecord(rawURL, depth, resp.StatusCode, resp.Error.Error())
	}

	rec := extractor.NewEmptyRecord(rawURL, depth, resp.StatusCode, "")
	if resp.IsHTML() {
		if data, err := extractor.Parse(rawURL, resp.Body); err == nil {
			rec = extractor.BuildRecord(rawURL, depth, data, resp.Body, c.baseDomain)
			rec.StatusCode = resp.StatusCode
			c.collectAndExtract(cfg, data, rawURL, depth)
		}
	}

	rec.ContentType = resp.ContentType
	rec.SizeBytes = resp.BodySize
	for _, hop := range resp.RedirectChain {
		rec.Redirects = append(rec.Redirects, extractor.Redirect{URL: hop.URL, StatusCode: hop.StatusCode})
	}
	return rec
}

func (c *Crawler) crawlRendered(ctx context.Context, cfg *config.Config, rawURL string, depth int) *extractor.Record {
	res, err := c.render.Render(ctx, rawURL)
	if err != nil {
		return extractor.NewEmptyRecord(rawURL, depth, 0, "JavaScript rendering error: "+err.Error())
	}

	body := []byte(res.HTML)
	rec := extractor.NewEmptyRecord(rawURL, depth, res.StatusCode, "")
	if data, parseErr := extractor.Parse(rawURL, body); parseErr == nil {
		rec = extractor.BuildRecord(rawURL, depth, data, body, c.baseDomain)
		rec.StatusCode = res.StatusCode
		c.collectAndExtract(cfg, data, rawURL, depth)
	}

	rec.ContentType = "text/html"
	rec.SizeBytes = int64(len(body))
	rec.JavaScriptRendered = true
	return rec
}

func (c *Crawler) collectAndExtract(cfg *config.Config, data *extractor.PageData, pageURL string, depth int) {
	isInternal := c.links.IsInternal(pageURL)
	c.links.CollectLinks(data, pageURL)

	if (isInternal || cfg.CrawlExternal) && depth < cfg.MaxDepth {
		c.links.ExtractLinks(data, depth+1, c.shouldCrawl)
	}
}

func (c *Crawler) complete(rec *extractor.Record) {
	c.links.MarkVisited(rec.URL)

	c.mu.Lock()
	c.records = append(c.records, rec)
	c.crawled++
	c.inflight--
	if rec.Depth > c.maxDepthReached {
		c.maxDepthReached = rec.Depth
	}
	needFlush := len(c.records)-c.savedRecords >= batchSaveSize
	c.mu.Unlock()

	c.detector.Detect(rec)

	log.Debug().Str("url", rec.URL).Int("status", rec.StatusCode).
		Int("depth", rec.Depth).Msg("url crawled")

	if needFlush && c.persistent() {
		c.flush()
	}
}

// shouldCrawl applies the crawl filters in order: external policy,
// robots, extensions, regex patterns.
func (c *Crawler) shouldCrawl(rawURL string) bool {
	c.mu.Lock()
	cfg := c.cfg
	c.mu.Unlock()

	if !cfg.CrawlExternal && !c.links.IsInternal(rawURL) {
		return false
	}
	if cfg.RespectRobots && !c.robots.CanFetch(cfg.UserAgent, rawURL) {
		return false
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if !cfg.ExtensionAllowed(u.Path) {
		return false
	}
	return cfg.MatchesPatterns(rawURL)
}

func (c *Crawler) finalize(ctx context.Context) {
	c.mu.Lock()
	cfg := c.cfg
	c.mu.Unlock()

	if cfg.EnablePageSpeed && ctx.Err() == nil {
		c.psRunning.Store(true)
		results := pagespeed.New(cfg.GoogleAPIKey, cfg.Retries).Analyze(ctx, c.snapshotRecords())
		c.mu.Lock()
		c.pagespeedResults = results
		c.mu.Unlock()
		c.psRunning.Store(false)
	}

	c.refreshLinkStatuses()
	c.fillLinkedFrom()

	if cfg.EnableDuplicationCheck {
		c.detector.DetectDuplicates(c.snapshotRecords(), cfg.DuplicationThreshold)
	}

	finalStatus := "completed"
	finalState := StateCompleted
	if ctx.Err() != nil {
		finalStatus = "stopped"
		finalState = StateStopped
	}

	if c.persistent() {
		c.flush()
		c.saveCheckpoint()
		if err := c.store.SetStatus(c.crawlID, finalStatus); err != nil {
			log.Warn().Err(err).Msg("could not store final crawl status")
		}
	}

	if c.render != nil {
		c.render.Close()
	}
	c.fetch.Close()

	c.mu.Lock()
	c.state = finalState
	discovered := 0
	if c.links != nil {
		discovered = c.links.DiscoveredCount()
	}
	crawled := c.crawled
	c.mu.Unlock()

	log.Info().Int("discovered", discovered).Int("crawled", crawled).
		Str("state", string(finalState)).Msg("crawl finished")
}

// fillLinkedFrom backfills linked_from on every record from the final
// link graph. Records are mutated under mu so snapshots taken during
// the completion passes stay consistent.
func (c *Crawler) fillLinkedFrom() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, rec := range c.records {
		if sources := c.links.SourcePages(rec.URL); len(sources) > 0 {
			rec.LinkedFrom = sources
		}
	}
}

func (c *Crawler) refreshLinkStatuses() {
	c.mu.Lock()
	statusByURL := make(map[string]int, len(c.records))
	for _, rec := range c.records {
		statusByURL[rec.URL] = rec.StatusCode
	}
	c.mu.Unlock()

	if c.links != nil {
		c.links.UpdateLinkStatuses(statusByURL)
	}
}

// flush writes everything not yet persisted: records, links, issues,
// and the header counters.
func (c *Crawler) flush() {
	if !c.persistent() {
		return
	}

	allLinks := c.links.Links()
	allIssues := c.detector.Issues()

	c.mu.Lock()
	crawlID := c.crawlID
	newRecords := copyRecords(c.records[c.savedRecords:])
	var newLinks []links.Record
	if c.savedLinks < len(allLinks) {
		newLinks = allLinks[c.savedLinks:]
	}
	var newIssues []issues.Issue
	if c.savedIssues < len(allIssues) {
		newIssues = allIssues[c.savedIssues:]
	}
	discovered := c.links.DiscoveredCount()
	crawled := c.crawled
	maxDepth := c.maxDepthReached
	c.mu.Unlock()

	if err := c.store.SaveRecords(crawlID, newRecords); err != nil {
		log.Error().Err(err).Msg("could not save url batch")
		return
	}
	if err := c.store.SaveLinks(crawlID, newLinks); err != nil {
		log.Error().Err(err).Msg("could not save link batch")
		return
	}
	if err := c.store.SaveIssues(crawlID, newIssues); err != nil {
		log.Error().Err(err).Msg("could not save issue batch")
		return
	}

	mem := c.tracker.Sample(crawled, len(allLinks), len(allIssues))
	if err := c.store.UpdateStats(crawlID, discovered, crawled, maxDepth, mem.PeakMB, mem.EstimatedCrawlMB); err != nil {
		log.Warn().Err(err).Msg("could not update crawl stats")
	}

	c.mu.Lock()
	c.savedRecords += len(newRecords)
	c.savedLinks += len(newLinks)
	c.savedIssues += len(newIssues)
	c.lastSave = time.Now()
	c.mu.Unlock()
}

func (c *Crawler) saveCheckpoint() {
	if !c.persistent() {
		return
	}
	cp := &storage.Checkpoint{
		Pending: c.links.PendingSnapshot(checkpointPendingLimit),
		Visited: c.links.VisitedSnapshot(),
	}
	if err := c.store.SaveCheckpoint(c.crawlID, cp); err != nil {
		log.Warn().Err(err).Msg("could not save checkpoint")
	}
}

func (c *Crawler) autoSaveLoop(ctx context.Context) {
	ticker := time.NewTicker(autoSaveTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.Lock()
			due := time.Since(c.lastSave) >= autoSaveInterval
			c.mu.Unlock()
			if due {
				c.flush()
				c.saveCheckpoint()
			}
			if c.tracker.OverLimit() {
				log.Warn().Msg("memory limit exceeded, forcing collection")
				c.tracker.Relieve()
			}
		}
	}
}

// Pause suspends the workers, flushes pending data, and checkpoints
// the frontier.
func (c *Crawler) Pause() error {
	c.mu.Lock()
	if c.state != StateRunning {
		c.mu.Unlock()
		return fmt.Errorf("no crawl in progress")
	}
	c.state = StatePaused
	c.mu.Unlock()
	c.paused.Store(true)

	// Dequeued URLs are in neither pending nor visited until their
	// fetch returns; checkpointing before they land would lose them.
	c.waitInflight()

	if c.persistent() {
		c.flush()
		c.saveCheckpoint()
		if err := c.store.SetStatus(c.crawlID, "paused"); err != nil {
			log.Warn().Err(err).Msg("could not mark crawl paused")
		}
	}
	log.Info().Msg("crawl paused")
	return nil
}

// Resume lets a paused crawl continue.
func (c *Crawler) Resume() error {
	c.mu.Lock()
	if c.state != StatePaused {
		c.mu.Unlock()
		return fmt.Errorf("crawl is not paused")
	}
	c.state = StateRunning
	c.mu.Unlock()
	c.paused.Store(false)

	if c.persistent() {
		if err := c.store.SetStatus(c.crawlID, "running"); err != nil {
			log.Warn().Err(err).Msg("could not mark crawl running")
		}
	}
	log.Info().Msg("crawl resumed")
	return nil
}

// Stop cancels the crawl, including any PageSpeed pass, and waits for
// the completion passes to finish.
func (c *Crawler) Stop() error {
	c.mu.Lock()
	if c.state != StateRunning && c.state != StatePaused {
		c.mu.Unlock()
		return fmt.Errorf("no crawl in progress")
	}
	cancel := c.cancel
	done := c.done
	c.mu.Unlock()

	c.paused.Store(false)
	cancel()
	<-done
	return nil
}

// Wait blocks until the current crawl run finishes.
func (c *Crawler) Wait() {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done != nil {
		<-done
	}
}

// UpdateConfig merges a partial JSON update into the configuration.
// The rate limiter and memory limit pick the change up immediately.
func (c *Crawler) UpdateConfig(partial []byte) error {
	c.mu.Lock()
	newCfg, err := c.cfg.Apply(partial)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.cfg = newCfg
	limiter := c.limiter
	tracker := c.tracker
	running := c.state == StateRunning || c.state == StatePaused
	var oldFetch *fetcher.Fetcher
	if running {
		oldFetch = c.fetch
		c.fetch = fetcher.New(newCfg)
	}
	c.mu.Unlock()

	if oldFetch != nil {
		oldFetch.Close()
	}
	if limiter != nil {
		limiter.UpdateRate(newCfg.RequestsPerSecond())
	}
	if tracker != nil {
		tracker.SetLimit(newCfg.MemoryLimit)
	}
	return nil
}

// Config returns the active configuration.
func (c *Crawler) Config() *config.Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// CrawlID returns the persistence ID of the current crawl, if any.
func (c *Crawler) CrawlID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.crawlID
}

func (c *Crawler) snapshotRecords() []*extractor.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*extractor.Record, len(c.records))
	copy(out, c.records)
	return out
}

// Status assembles a full snapshot for API consumers.
func (c *Crawler) Status() Status {
	c.mu.Lock()
	state := c.state
	crawled := c.crawled
	maxDepth := c.maxDepthReached
	startTime := c.startTime
	linkMgr := c.links
	detector := c.detector
	tracker := c.tracker
	psResults := c.pagespeedResults
	recs := copyRecords(c.records)
	c.mu.Unlock()

	status := Status{
		State: state,
		Stats: Stats{Crawled: crawled, Depth: maxDepth, StartTime: startTime},
		URLs:  recs,
	}

	if linkMgr == nil {
		return status
	}

	c.refreshLinkStatuses()

	status.Links = linkMgr.Links()
	status.Issues = detector.Issues()
	status.Stats.Discovered = linkMgr.DiscoveredCount()
	status.IsRunningPageSpeed = c.psRunning.Load()
	status.PageSpeed = psResults

	elapsed := time.Since(startTime).Seconds()
	if elapsed < 1 {
		elapsed = 1
	}
	status.Stats.Speed = round2(float64(crawled) / elapsed)

	denominator := status.Stats.Discovered
	if denominator < 1 {
		denominator = 1
	}
	progress := float64(crawled) / float64(denominator) * 100
	if progress > 100 {
		progress = 100
	}
	status.Progress = progress

	if tracker != nil {
		status.Memory = tracker.Sample(len(recs), len(status.Links), len(status.Issues))
	}
	return status
}

// copyRecords clones each record so callers cannot observe later
// mutations (and vice versa). Nested slices and maps are not written
// in place after assembly, so a value copy suffices.
func copyRecords(recs []*extractor.Record) []*extractor.Record {
	out := make([]*extractor.Record, len(recs))
	for i, rec := range recs {
		cp := *rec
		out[i] = &cp
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func roundMs(d time.Duration) float64 {
	return round2(float64(d.Microseconds()) / 1000)
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
