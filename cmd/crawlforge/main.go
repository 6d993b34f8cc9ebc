// Package main is the entry point for the crawlforge CLI.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/phuslu/log"

	"github.com/crawlforge/crawlforge/internal/config"
	"github.com/crawlforge/crawlforge/internal/crawler"
	"github.com/crawlforge/crawlforge/internal/report"
	"github.com/crawlforge/crawlforge/internal/storage"
)

func main() {
	var (
		maxDepth    = flag.Int("depth", 3, "maximum crawl depth")
		maxURLs     = flag.Int("max-urls", 1000, "maximum number of URLs to crawl")
		delay       = flag.Float64("delay", 0.5, "delay between requests in seconds")
		concurrency = flag.Int("concurrency", 5, "number of concurrent workers")
		external    = flag.Bool("external", false, "follow external links")
		noRobots    = flag.Bool("no-robots", false, "ignore robots.txt")
		js          = flag.Bool("js", false, "render pages with a headless browser")
		pagespeed   = flag.Bool("pagespeed", false, "run PageSpeed analysis after the crawl")
		apiKey      = flag.String("api-key", "", "Google API key for PageSpeed")
		dbPath      = flag.String("db", "", "SQLite database path (empty = no persistence)")
		resumeID    = flag.String("resume", "", "resume a stored crawl by id")
		exportPath  = flag.String("export", "", "write an XLSX report to this path when done")
		verbose     = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	if *verbose {
		log.DefaultLogger.Level = log.DebugLevel
	} else {
		log.DefaultLogger.Level = log.InfoLevel
	}

	if flag.NArg() < 1 && *resumeID == "" {
		fmt.Fprintln(os.Stderr, "Usage: crawlforge [flags] <url>")
		fmt.Fprintln(os.Stderr, "       crawlforge [flags] -db crawls.db -resume <crawl-id>")
		flag.PrintDefaults()
		os.Exit(1)
	}

	cfg := config.Default()
	cfg.MaxDepth = *maxDepth
	cfg.MaxURLs = *maxURLs
	cfg.Delay = *delay
	cfg.Concurrency = *concurrency
	cfg.CrawlExternal = *external
	cfg.RespectRobots = !*noRobots
	cfg.EnableJavaScript = *js
	cfg.EnablePageSpeed = *pagespeed
	cfg.GoogleAPIKey = *apiKey
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	var store *storage.Store
	if *dbPath != "" {
		var err error
		store, err = storage.Open(*dbPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", *dbPath).Msg("could not open database")
		}
		defer store.Close()

		if crashed, err := store.CrashedCrawls(); err == nil && len(crashed) > 0 && *resumeID == "" {
			for _, meta := range crashed {
				fmt.Printf("Resumable crawl: %s (%s, %d URLs)\n",
					meta.ID, meta.BaseURL, meta.URLsCrawled)
			}
		}
	}

	c := crawler.New(cfg, store)

	var err error
	if *resumeID != "" {
		err = c.ResumeFromStore(*resumeID)
	} else {
		err = c.Start(flag.Arg(0), "cli")
	}
	if err != nil {
		log.Fatal().Err(err).Msg("could not start crawl")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nStopping crawl...")
		c.Stop()
	}()

	statsDone := make(chan struct{})
	go func() {
		defer close(statsDone)
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		for {
			st := c.Status()
			if st.State != crawler.StateRunning && st.State != crawler.StatePaused {
				return
			}
			fmt.Printf("[%s] crawled %d/%d | depth %d | %.1f urls/s | %.1f MB\n",
				st.State, st.Stats.Crawled, st.Stats.Discovered,
				st.Stats.Depth, st.Stats.Speed, st.Memory.RSSMB)
			<-ticker.C
		}
	}()

	c.Wait()
	<-statsDone

	st := c.Status()
	fmt.Println("\n========== Crawl Finished ==========")
	fmt.Printf("Status:      %s\n", st.State)
	fmt.Printf("URLs:        %d crawled / %d discovered\n", st.Stats.Crawled, st.Stats.Discovered)
	fmt.Printf("Max depth:   %d\n", st.Stats.Depth)
	fmt.Printf("Links:       %d\n", len(st.Links))
	fmt.Printf("Issues:      %d\n", len(st.Issues))
	fmt.Printf("Elapsed:     %v\n", time.Since(st.Stats.StartTime).Round(time.Millisecond))
	if id := c.CrawlID(); id != "" {
		fmt.Printf("Crawl ID:    %s\n", id)
	}
	for _, ps := range st.PageSpeed {
		if ps.Mobile != nil && ps.Mobile.PerformanceScore != nil {
			fmt.Printf("PageSpeed:   %s mobile=%d\n", ps.URL, *ps.Mobile.PerformanceScore)
		}
	}

	if *exportPath != "" {
		if err := report.WriteWorkbook(*exportPath, st.URLs, st.Links, st.Issues); err != nil {
			log.Fatal().Err(err).Str("path", *exportPath).Msg("could not write report")
		}
		fmt.Printf("Report:      %s\n", *exportPath)
	}
}
