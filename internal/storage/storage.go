// Package storage persists crawl results to SQLite so crawls survive
// restarts and remain queryable afterwards.
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/phuslu/log"

	"github.com/crawlforge/crawlforge/internal/extractor"
	"github.com/crawlforge/crawlforge/internal/issues"
	"github.com/crawlforge/crawlforge/internal/links"
)

// Checkpoint is the frontier snapshot stored with a paused or stopped
// crawl. Pending is capped by the writer; visited is complete.
type Checkpoint struct {
	Pending []links.QueueItem `json:"pending"`
	Visited []string          `json:"visited"`
}

// CrawlMeta is one row of the crawls table.
type CrawlMeta struct {
	ID              string
	SessionID       string
	BaseURL         string
	BaseDomain      string
	Status          string
	ConfigSnapshot  []byte
	URLsDiscovered  int
	URLsCrawled     int
	MaxDepthReached int
	StartedAt       time.Time
	CompletedAt     *time.Time
	LastSavedAt     time.Time
	PeakMemoryMB    float64
	EstimatedSizeMB float64
	Checkpoint      *Checkpoint
}

// Store wraps the SQLite database holding all crawls.
type Store struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the crawl database at path.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("%s?_journal=WAL&_synchronous=NORMAL&_cache_size=10000&_busy_timeout=5000&_foreign_keys=1", path)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// SQLite allows one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateCrawl inserts a new crawl header and returns its ID.
func (s *Store) CreateCrawl(sessionID, baseURL, baseDomain string, configSnapshot []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	_, err := s.db.Exec(`
		INSERT INTO crawls (id, session_id, base_url, base_domain, config_snapshot, status)
		VALUES (?, ?, ?, ?, ?, 'running')
	`, id, sessionID, baseURL, baseDomain, string(configSnapshot))
	if err != nil {
		return "", fmt.Errorf("create crawl: %w", err)
	}

	log.Info().Str("crawl_id", id).Str("base_url", baseURL).Msg("crawl record created")
	return id, nil
}

// SaveRecords appends crawled page rows in one transaction.
func (s *Store) SaveRecords(crawlID string, recs []*extractor.Record) error {
	if len(recs) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO crawled_urls (
			crawl_id, url, status_code, content_type, size, is_internal, depth,
			title, meta_description, h1, h2, h3, word_count,
			canonical_url, lang, charset, viewport, robots,
			meta_tags, og_tags, twitter_tags, json_ld, analytics, images,
			hreflang, schema_org, redirects, linked_from,
			external_links, internal_links, response_time_ms, javascript_rendered, details
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, rec := range recs {
		_, err := stmt.Exec(
			crawlID, rec.URL, rec.StatusCode, rec.ContentType, rec.SizeBytes, rec.IsInternal, rec.Depth,
			rec.Title, rec.MetaDescription, rec.H1, asJSON(rec.H2), asJSON(rec.H3), rec.WordCount,
			rec.CanonicalURL, rec.Lang, rec.Charset, rec.Viewport, rec.Robots,
			asJSON(rec.MetaTags), asJSON(rec.OGTags), asJSON(rec.TwitterTags), asJSON(rec.JSONLD),
			asJSON(rec.Analytics), asJSON(rec.Images), asJSON(rec.Hreflang), asJSON(rec.SchemaOrg),
			asJSON(rec.Redirects), asJSON(rec.LinkedFrom),
			rec.ExternalLinks, rec.InternalLinks, rec.ResponseTimeMs, rec.JavaScriptRendered, rec.Details,
		)
		if err != nil {
			return fmt.Errorf("insert url row: %w", err)
		}
	}
	return tx.Commit()
}

// SaveLinks appends link-graph edges in one transaction.
func (s *Store) SaveLinks(crawlID string, edges []links.Record) error {
	if len(edges) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO crawl_links (
			crawl_id, source_url, target_url, anchor_text,
			is_internal, target_domain, target_status, placement
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, edge := range edges {
		_, err := stmt.Exec(crawlID, edge.SourceURL, edge.TargetURL, edge.AnchorText,
			edge.IsInternal, edge.TargetDomain, edge.TargetStatus, string(edge.Placement))
		if err != nil {
			return fmt.Errorf("insert link row: %w", err)
		}
	}
	return tx.Commit()
}

// SaveIssues appends detected issues in one transaction.
func (s *Store) SaveIssues(crawlID string, found []issues.Issue) error {
	if len(found) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO crawl_issues (crawl_id, url, type, category, issue, details)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, issue := range found {
		if _, err := stmt.Exec(crawlID, issue.URL, issue.Type, issue.Category, issue.Issue, issue.Details); err != nil {
			return fmt.Errorf("insert issue row: %w", err)
		}
	}
	return tx.Commit()
}

// UpdateStats refreshes the crawl header counters.
func (s *Store) UpdateStats(crawlID string, discovered, crawled, maxDepth int, peakMB, estimatedMB float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		UPDATE crawls
		SET urls_discovered = ?, urls_crawled = ?, max_depth_reached = ?,
		    peak_memory_mb = ?, estimated_size_mb = ?, last_saved_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, discovered, crawled, maxDepth, peakMB, estimatedMB, crawlID)
	return err
}

// SaveCheckpoint stores the frontier snapshot for resume.
func (s *Store) SaveCheckpoint(crawlID string, cp *Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.Exec(`
		UPDATE crawls SET resume_checkpoint = ?, last_saved_at = CURRENT_TIMESTAMP WHERE id = ?
	`, string(data), crawlID)
	return err
}

// SetStatus transitions the crawl. Terminal statuses also stamp
// completed_at.
func (s *Store) SetStatus(crawlID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	switch status {
	case "completed", "failed", "stopped":
		_, err = s.db.Exec(`
			UPDATE crawls SET status = ?, completed_at = CURRENT_TIMESTAMP WHERE id = ?
		`, status, crawlID)
	default:
		_, err = s.db.Exec(`UPDATE crawls SET status = ? WHERE id = ?`, status, crawlID)
	}
	if err == nil {
		log.Debug().Str("crawl_id", crawlID).Str("status", status).Msg("crawl status updated")
	}
	return err
}

// GetCrawl loads one crawl header, or nil when absent.
func (s *Store) GetCrawl(crawlID string) (*CrawlMeta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getCrawlLocked(crawlID)
}

func (s *Store) getCrawlLocked(crawlID string) (*CrawlMeta, error) {
	row := s.db.QueryRow(`
		SELECT id, session_id, base_url, base_domain, status, config_snapshot,
		       urls_discovered, urls_crawled, max_depth_reached,
		       started_at, completed_at, last_saved_at,
		       peak_memory_mb, estimated_size_mb, resume_checkpoint
		FROM crawls WHERE id = ?
	`, crawlID)

	meta, err := scanCrawl(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return meta, err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCrawl(row rowScanner) (*CrawlMeta, error) {
	var meta CrawlMeta
	var baseDomain, configSnapshot, checkpoint sql.NullString
	var completedAt sql.NullTime
	var peakMB, estimatedMB sql.NullFloat64

	err := row.Scan(
		&meta.ID, &meta.SessionID, &meta.BaseURL, &baseDomain, &meta.Status, &configSnapshot,
		&meta.URLsDiscovered, &meta.URLsCrawled, &meta.MaxDepthReached,
		&meta.StartedAt, &completedAt, &meta.LastSavedAt,
		&peakMB, &estimatedMB, &checkpoint,
	)
	if err != nil {
		return nil, err
	}

	meta.BaseDomain = baseDomain.String
	meta.PeakMemoryMB = peakMB.Float64
	meta.EstimatedSizeMB = estimatedMB.Float64
	if completedAt.Valid {
		t := completedAt.Time
		meta.CompletedAt = &t
	}
	if configSnapshot.Valid {
		meta.ConfigSnapshot = []byte(configSnapshot.String)
	}
	if checkpoint.Valid && checkpoint.String != "" {
		var cp Checkpoint
		if err := json.Unmarshal([]byte(checkpoint.String), &cp); err == nil {
			meta.Checkpoint = &cp
		}
	}
	return &meta, nil
}

// ResumeData loads a crawl for resuming. Only paused, failed, and
// running (crashed) crawls qualify.
func (s *Store) ResumeData(crawlID string) (*CrawlMeta, error) {
	meta, err := s.GetCrawl(crawlID)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, fmt.Errorf("crawl %s not found", crawlID)
	}
	switch meta.Status {
	case "paused", "failed", "running":
		return meta, nil
	default:
		return nil, fmt.Errorf("crawl %s is %s and cannot be resumed", crawlID, meta.Status)
	}
}

// CrashedCrawls lists crawls still marked running, newest first.
func (s *Store) CrashedCrawls() ([]*CrawlMeta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT id, session_id, base_url, base_domain, status, config_snapshot,
		       urls_discovered, urls_crawled, max_depth_reached,
		       started_at, completed_at, last_saved_at,
		       peak_memory_mb, estimated_size_mb, resume_checkpoint
		FROM crawls WHERE status = 'running'
		ORDER BY started_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var crawls []*CrawlMeta
	for rows.Next() {
		meta, err := scanCrawl(rows)
		if err != nil {
			return nil, err
		}
		crawls = append(crawls, meta)
	}
	return crawls, rows.Err()
}

// LoadRecords reads back all page rows for a crawl in crawl order.
func (s *Store) LoadRecords(crawlID string) ([]*extractor.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT url, status_code, content_type, size, is_internal, depth,
		       title, meta_description, h1, h2, h3, word_count,
		       canonical_url, lang, charset, viewport, robots,
		       meta_tags, og_tags, twitter_tags, json_ld, analytics, images,
		       hreflang, schema_org, redirects, linked_from,
		       external_links, internal_links, response_time_ms, javascript_rendered, details
		FROM crawled_urls WHERE crawl_id = ? ORDER BY id
	`, crawlID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []*extractor.Record
	for rows.Next() {
		rec := extractor.NewEmptyRecord("", 0, 0, "")
		var h2, h3, metaTags, ogTags, twitterTags, jsonLD, analytics, images,
			hreflang, schemaOrg, redirects, linkedFrom string

		err := rows.Scan(
			&rec.URL, &rec.StatusCode, &rec.ContentType, &rec.SizeBytes, &rec.IsInternal, &rec.Depth,
			&rec.Title, &rec.MetaDescription, &rec.H1, &h2, &h3, &rec.WordCount,
			&rec.CanonicalURL, &rec.Lang, &rec.Charset, &rec.Viewport, &rec.Robots,
			&metaTags, &ogTags, &twitterTags, &jsonLD, &analytics, &images,
			&hreflang, &schemaOrg, &redirects, &linkedFrom,
			&rec.ExternalLinks, &rec.InternalLinks, &rec.ResponseTimeMs, &rec.JavaScriptRendered, &rec.Details,
		)
		if err != nil {
			return nil, err
		}

		fromJSON(h2, &rec.H2)
		fromJSON(h3, &rec.H3)
		fromJSON(metaTags, &rec.MetaTags)
		fromJSON(ogTags, &rec.OGTags)
		fromJSON(twitterTags, &rec.TwitterTags)
		fromJSON(jsonLD, &rec.JSONLD)
		fromJSON(analytics, &rec.Analytics)
		fromJSON(images, &rec.Images)
		fromJSON(hreflang, &rec.Hreflang)
		fromJSON(schemaOrg, &rec.SchemaOrg)
		fromJSON(redirects, &rec.Redirects)
		fromJSON(linkedFrom, &rec.LinkedFrom)

		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// LoadLinks reads back the link graph for a crawl.
func (s *Store) LoadLinks(crawlID string) ([]links.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT source_url, target_url, anchor_text, is_internal, target_domain, target_status, placement
		FROM crawl_links WHERE crawl_id = ? ORDER BY id
	`, crawlID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var edges []links.Record
	for rows.Next() {
		var edge links.Record
		var placement string
		if err := rows.Scan(&edge.SourceURL, &edge.TargetURL, &edge.AnchorText,
			&edge.IsInternal, &edge.TargetDomain, &edge.TargetStatus, &placement); err != nil {
			return nil, err
		}
		edge.Placement = extractor.Placement(placement)
		edges = append(edges, edge)
	}
	return edges, rows.Err()
}

// LoadIssues reads back all issues for a crawl.
func (s *Store) LoadIssues(crawlID string) ([]issues.Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT url, type, category, issue, details
		FROM crawl_issues WHERE crawl_id = ? ORDER BY id
	`, crawlID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var found []issues.Issue
	for rows.Next() {
		var issue issues.Issue
		if err := rows.Scan(&issue.URL, &issue.Type, &issue.Category, &issue.Issue, &issue.Details); err != nil {
			return nil, err
		}
		found = append(found, issue)
	}
	return found, rows.Err()
}

// DeleteCrawl removes a crawl; cascades clear the child tables.
func (s *Store) DeleteCrawl(crawlID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`DELETE FROM crawls WHERE id = ?`, crawlID)
	return err
}

// CleanupOldCrawls deletes finished crawls older than the given age
// and returns how many were removed.
func (s *Store) CleanupOldCrawls(days int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`
		DELETE FROM crawls
		WHERE started_at < datetime('now', '-' || ? || ' days')
		AND status IN ('completed', 'failed', 'stopped')
	`, days)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// SizeMB reports the database file size.
func (s *Store) SizeMB() float64 {
	info, err := os.Stat(s.path)
	if err != nil {
		return 0
	}
	return float64(info.Size()) / (1024 * 1024)
}

func asJSON(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(data)
}

// fromJSON ignores malformed blobs, leaving the destination's empty
// value in place.
func fromJSON(data string, v interface{}) {
	if data == "" {
		return
	}
	_ = json.Unmarshal([]byte(data), v)
}
