// Package pagespeed runs Google PageSpeed Insights analysis on a
// small selection of crawled pages.
package pagespeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/phuslu/log"

	"github.com/crawlforge/crawlforge/internal/extractor"
)

// DefaultEndpoint is the PageSpeed Insights v5 API.
const DefaultEndpoint = "https://www.googleapis.com/pagespeedonline/v5/runPagespeed"

// Metrics holds the core lab metrics, converted to seconds where the
// API reports milliseconds.
type Metrics struct {
	FirstContentfulPaint   *float64 `json:"first_contentful_paint,omitempty"`
	LargestContentfulPaint *float64 `json:"largest_contentful_paint,omitempty"`
	CumulativeLayoutShift  *float64 `json:"cumulative_layout_shift,omitempty"`
	FirstInputDelay        *float64 `json:"first_input_delay,omitempty"`
	SpeedIndex             *float64 `json:"speed_index,omitempty"`
	TimeToInteractive      *float64 `json:"time_to_interactive,omitempty"`
}

// StrategyResult is one mobile or desktop analysis outcome.
type StrategyResult struct {
	Success          bool    `json:"success"`
	PerformanceScore *int    `json:"performance_score,omitempty"`
	Metrics          Metrics `json:"metrics"`
	Strategy         string  `json:"strategy"`
	Error            string  `json:"error,omitempty"`
}

// PageResult pairs the mobile and desktop runs for one URL.
type PageResult struct {
	URL          string          `json:"url"`
	Mobile       *StrategyResult `json:"mobile"`
	Desktop      *StrategyResult `json:"desktop"`
	AnalysisDate string          `json:"analysis_date"`
}

// Analyzer calls the PageSpeed API with quota-aware retries.
type Analyzer struct {
	client   *http.Client
	endpoint string
	apiKey   string
	retries  int

	// sleep is replaced in tests
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates an analyzer. An empty apiKey uses the keyless quota.
func New(apiKey string, retries int) *Analyzer {
	return &Analyzer{
		client:   &http.Client{Timeout: 60 * time.Second},
		endpoint: DefaultEndpoint,
		apiKey:   apiKey,
		retries:  retries,
		sleep:    sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// SelectPages picks the homepage plus up to two top-level pages from
// successful internal records.
func SelectPages(records []*extractor.Record) []string {
	var homepage string
	minPathLen := math.MaxInt

	for _, rec := range records {
		if rec.StatusCode != 200 || !rec.IsInternal {
			continue
		}
		u, err := url.Parse(rec.URL)
		if err != nil {
			continue
		}
		path := strings.TrimRight(u.Path, "/")
		if path == "" {
			homepage = rec.URL
			break
		}
		if len(path) < minPathLen {
			homepage = rec.URL
			minPathLen = len(path)
		}
	}

	var selected []string
	if homepage != "" {
		selected = append(selected, homepage)
	}

	for _, rec := range records {
		if len(selected) >= 3 {
			break
		}
		if rec.StatusCode != 200 || !rec.IsInternal || rec.URL == homepage {
			continue
		}
		u, err := url.Parse(rec.URL)
		if err != nil {
			continue
		}
		path := strings.Trim(u.Path, "/")
		if path != "" && !strings.Contains(path, "/") {
			selected = append(selected, rec.URL)
		}
	}
	return selected
}

// Analyze runs mobile and desktop analysis over the selected pages.
// Cancelling the context returns the results gathered so far.
func (a *Analyzer) Analyze(ctx context.Context, records []*extractor.Record) []PageResult {
	selected := SelectPages(records)
	if len(selected) == 0 {
		log.Info().Msg("no suitable pages for pagespeed analysis")
		return nil
	}

	log.Info().Int("pages", len(selected)).Msg("running pagespeed analysis")

	var results []PageResult
	for i, pageURL := range selected {
		if ctx.Err() != nil {
			log.Info().Msg("pagespeed analysis cancelled")
			return results
		}

		mobile := a.analyzeURL(ctx, pageURL, "mobile")
		if a.sleep(ctx, 2*time.Second) != nil {
			return results
		}

		desktop := a.analyzeURL(ctx, pageURL, "desktop")

		results = append(results, PageResult{
			URL:          pageURL,
			Mobile:       mobile,
			Desktop:      desktop,
			AnalysisDate: time.Now().Format("2006-01-02 15:04:05"),
		})

		if i < len(selected)-1 {
			if a.sleep(ctx, 3*time.Second) != nil {
				return results
			}
		}
	}

	log.Info().Int("pages", len(results)).Msg("pagespeed analysis completed")
	return results
}

// analyzeURL calls the API for one URL and strategy, backing off
// exponentially on quota errors.
func (a *Analyzer) analyzeURL(ctx context.Context, pageURL, strategy string) *StrategyResult {
	params := url.Values{}
	params.Set("url", pageURL)
	params.Set("strategy", strategy)
	params.Set("category", "performance")
	if a.apiKey != "" {
		params.Set("key", a.apiKey)
	}
	requestURL := a.endpoint + "?" + params.Encode()

	for attempt := 0; attempt <= a.retries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
		if err != nil {
			return &StrategyResult{Strategy: strategy, Error: err.Error()}
		}

		resp, err := a.client.Do(req)
		if err != nil {
			if attempt < a.retries && a.sleep(ctx, 3*time.Second) == nil {
				continue
			}
			return &StrategyResult{Strategy: strategy, Error: fmt.Sprintf("network error: %v", err)}
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK && readErr == nil:
			return parseResponse(body, strategy)
		case resp.StatusCode == http.StatusTooManyRequests && attempt < a.retries:
			delay := time.Duration(float64(int(1)<<attempt) * (0.5 + rand.Float64()) * float64(time.Second))
			log.Warn().Str("url", pageURL).Dur("delay", delay).Msg("pagespeed rate limited, retrying")
			if a.sleep(ctx, delay) != nil {
				return &StrategyResult{Strategy: strategy, Error: "cancelled"}
			}
		default:
			return &StrategyResult{Strategy: strategy,
				Error: fmt.Sprintf("API returned status %d", resp.StatusCode)}
		}
	}
	return &StrategyResult{Strategy: strategy, Error: "API returned status 429"}
}

type lighthouseResponse struct {
	LighthouseResult struct {
		Audits map[string]struct {
			NumericValue *float64 `json:"numericValue"`
		} `json:"audits"`
		Categories map[string]struct {
			Score *float64 `json:"score"`
		} `json:"categories"`
	} `json:"lighthouseResult"`
}

func parseResponse(body []byte, strategy string) *StrategyResult {
	var data lighthouseResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return &StrategyResult{Strategy: strategy, Error: fmt.Sprintf("malformed response: %v", err)}
	}

	result := &StrategyResult{Success: true, Strategy: strategy}

	if cat, ok := data.LighthouseResult.Categories["performance"]; ok && cat.Score != nil {
		score := int(*cat.Score * 100)
		result.PerformanceScore = &score
	}

	audits := data.LighthouseResult.Audits
	result.Metrics.FirstContentfulPaint = auditSeconds(audits, "first-contentful-paint")
	result.Metrics.LargestContentfulPaint = auditSeconds(audits, "largest-contentful-paint")
	result.Metrics.CumulativeLayoutShift = auditRounded(audits, "cumulative-layout-shift", 3)
	result.Metrics.FirstInputDelay = auditRounded(audits, "max-potential-fid", 2)
	result.Metrics.SpeedIndex = auditSeconds(audits, "speed-index")
	result.Metrics.TimeToInteractive = auditSeconds(audits, "interactive")

	return result
}

type auditMap = map[string]struct {
	NumericValue *float64 `json:"numericValue"`
}

func auditSeconds(audits auditMap, key string) *float64 {
	if a, ok := audits[key]; ok && a.NumericValue != nil {
		v := roundTo(*a.NumericValue/1000, 2)
		return &v
	}
	return nil
}

func auditRounded(audits auditMap, key string, places int) *float64 {
	if a, ok := audits[key]; ok && a.NumericValue != nil {
		v := roundTo(*a.NumericValue, places)
		return &v
	}
	return nil
}

func roundTo(v float64, places int) float64 {
	factor := math.Pow(10, float64(places))
	return math.Round(v*factor) / factor
}
