// Package renderer fetches pages through a headless browser so that
// JavaScript-built content can be extracted like static HTML.
package renderer

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/phuslu/log"

	"github.com/crawlforge/crawlforge/internal/config"
)

// RemoteBrowserEnv names the environment variable holding a DevTools
// websocket URL. When set, the renderer attaches to that browser
// instead of launching a local Chromium.
const RemoteBrowserEnv = "REMOTE_BROWSER"

// Result holds the outcome of rendering one page.
type Result struct {
	HTML       string
	FinalURL   string
	StatusCode int
	RenderTime time.Duration
}

// Renderer drives a pool of browser tabs sized to the configured
// concurrent page limit.
type Renderer struct {
	mu sync.Mutex

	cfg *config.Config

	allocator       context.Context
	allocatorCancel context.CancelFunc

	tabs       chan context.Context
	tabCancels []context.CancelFunc

	initialized bool
}

// New creates a renderer for the given crawl configuration. The
// browser is not launched until Initialize.
func New(cfg *config.Config) *Renderer {
	return &Renderer{cfg: cfg}
}

// Initialize launches the browser and opens the tab pool. Calling it
// on an initialized renderer is a no-op.
func (r *Renderer) Initialize() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.initialized {
		return nil
	}

	remote := os.Getenv(RemoteBrowserEnv)
	if remote == "" && r.cfg.JSBrowser != "chromium" {
		return fmt.Errorf("browser %q requires a remote endpoint via %s", r.cfg.JSBrowser, RemoteBrowserEnv)
	}

	if remote != "" {
		r.allocator, r.allocatorCancel = chromedp.NewRemoteAllocator(context.Background(), remote)
		log.Info().Str("endpoint", remote).Msg("attaching to remote browser")
	} else {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", r.cfg.JSHeadless),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("disable-extensions", true),
			chromedp.Flag("disable-background-networking", true),
			chromedp.Flag("mute-audio", true),
			chromedp.Flag("window-size", fmt.Sprintf("%d,%d", r.cfg.JSViewportWidth, r.cfg.JSViewportHeight)),
			chromedp.UserAgent(r.cfg.JSUserAgent),
		)
		r.allocator, r.allocatorCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	}

	poolSize := r.cfg.JSMaxConcurrentPages
	r.tabs = make(chan context.Context, poolSize)
	r.tabCancels = make([]context.CancelFunc, 0, poolSize)

	for i := 0; i < poolSize; i++ {
		tab, cancel := chromedp.NewContext(r.allocator)
		if err := chromedp.Run(tab, chromedp.Navigate("about:blank")); err != nil {
			cancel()
			r.teardownLocked()
			return fmt.Errorf("browser startup failed: %w", err)
		}
		r.tabs <- tab
		r.tabCancels = append(r.tabCancels, cancel)
	}

	r.initialized = true
	log.Info().Int("tabs", poolSize).Bool("headless", r.cfg.JSHeadless).
		Msg("browser tab pool ready")
	return nil
}

// Render loads the URL in a pooled tab, waits the configured settle
// time, and returns the post-JavaScript DOM.
func (r *Renderer) Render(ctx context.Context, urlStr string) (*Result, error) {
	r.mu.Lock()
	if !r.initialized {
		r.mu.Unlock()
		return nil, fmt.Errorf("renderer not initialized")
	}
	tabs := r.tabs
	r.mu.Unlock()

	var tab context.Context
	select {
	case tab = <-tabs:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { tabs <- tab }()

	start := time.Now()
	timeout := time.Duration(r.cfg.JSTimeout) * time.Second
	renderCtx, cancel := context.WithTimeout(tab, timeout)
	defer cancel()

	result := &Result{}
	var docMu sync.Mutex
	chromedp.ListenTarget(renderCtx, func(ev interface{}) {
		switch e := ev.(type) {
		case *network.EventResponseReceived:
			if e.Type == network.ResourceTypeDocument {
				docMu.Lock()
				if result.StatusCode == 0 {
					result.StatusCode = int(e.Response.Status)
				}
				docMu.Unlock()
			}
		case *page.EventJavascriptDialogOpening:
			go chromedp.Run(renderCtx, page.HandleJavaScriptDialog(true))
		}
	})

	settle := time.Duration(r.cfg.JSWaitTime * float64(time.Second))
	var html, finalURL string
	err := chromedp.Run(renderCtx,
		network.Enable(),
		chromedp.Navigate(urlStr),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(settle),
		chromedp.Location(&finalURL),
		chromedp.ActionFunc(func(ctx context.Context) error {
			node, err := dom.GetDocument().Do(ctx)
			if err != nil {
				return err
			}
			html, err = dom.GetOuterHTML().WithNodeID(node.NodeID).Do(ctx)
			return err
		}),
	)
	if err != nil {
		if renderCtx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("render timed out after %s: %w", timeout, err)
		}
		return nil, fmt.Errorf("render failed: %w", err)
	}

	result.HTML = html
	result.FinalURL = finalURL
	result.RenderTime = time.Since(start)
	if result.StatusCode == 0 {
		result.StatusCode = 200
	}

	log.Debug().Str("url", urlStr).Int("status", result.StatusCode).
		Dur("render_time", result.RenderTime).Msg("page rendered")
	return result, nil
}

// IsNavigationError reports whether a render failure came from the
// page itself rather than the browser, so callers can record it as a
// page error instead of disabling rendering.
func IsNavigationError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "net::ERR_") || strings.Contains(msg, "timed out")
}

// Close shuts the tab pool and the browser down. Safe to call more
// than once.
func (r *Renderer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.initialized {
		return
	}
	r.teardownLocked()
	r.initialized = false
	log.Info().Msg("browser tab pool closed")
}

func (r *Renderer) teardownLocked() {
	for _, cancel := range r.tabCancels {
		cancel()
	}
	r.tabCancels = nil
	r.tabs = nil
	if r.allocatorCancel != nil {
		r.allocatorCancel()
		r.allocatorCancel = nil
	}
}
