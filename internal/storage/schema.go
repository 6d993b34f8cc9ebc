package storage

// Schema creates the crawl persistence tables. Every child table is
// keyed by crawl_id so one database holds many crawls.
const Schema = `
CREATE TABLE IF NOT EXISTS crawls (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    base_url TEXT NOT NULL,
    base_domain TEXT,
    status TEXT DEFAULT 'running',

    config_snapshot TEXT,

    urls_discovered INTEGER DEFAULT 0,
    urls_crawled INTEGER DEFAULT 0,
    max_depth_reached INTEGER DEFAULT 0,

    started_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    completed_at TIMESTAMP,
    last_saved_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,

    peak_memory_mb REAL,
    estimated_size_mb REAL,

    resume_checkpoint TEXT
);

CREATE TABLE IF NOT EXISTS crawled_urls (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    crawl_id TEXT NOT NULL,
    url TEXT NOT NULL,

    status_code INTEGER,
    content_type TEXT,
    size INTEGER,
    is_internal BOOLEAN,
    depth INTEGER,

    title TEXT,
    meta_description TEXT,
    h1 TEXT,
    h2 TEXT,
    h3 TEXT,
    word_count INTEGER,

    canonical_url TEXT,
    lang TEXT,
    charset TEXT,
    viewport TEXT,
    robots TEXT,

    meta_tags TEXT,
    og_tags TEXT,
    twitter_tags TEXT,
    json_ld TEXT,
    analytics TEXT,
    images TEXT,
    hreflang TEXT,
    schema_org TEXT,
    redirects TEXT,
    linked_from TEXT,

    external_links INTEGER,
    internal_links INTEGER,

    response_time_ms REAL,
    javascript_rendered BOOLEAN DEFAULT 0,
    details TEXT,

    crawled_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,

    FOREIGN KEY (crawl_id) REFERENCES crawls(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS crawl_links (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    crawl_id TEXT NOT NULL,

    source_url TEXT NOT NULL,
    target_url TEXT NOT NULL,
    anchor_text TEXT,

    is_internal BOOLEAN,
    target_domain TEXT,
    target_status INTEGER,
    placement TEXT,

    discovered_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,

    FOREIGN KEY (crawl_id) REFERENCES crawls(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS crawl_issues (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    crawl_id TEXT NOT NULL,

    url TEXT NOT NULL,
    type TEXT,
    category TEXT,
    issue TEXT,
    details TEXT,

    detected_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,

    FOREIGN KEY (crawl_id) REFERENCES crawls(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_crawls_session ON crawls(session_id);
CREATE INDEX IF NOT EXISTS idx_crawls_status ON crawls(status);
CREATE INDEX IF NOT EXISTS idx_crawled_urls_crawl ON crawled_urls(crawl_id);
CREATE INDEX IF NOT EXISTS idx_crawled_urls_url ON crawled_urls(crawl_id, url);
CREATE INDEX IF NOT EXISTS idx_crawl_links_crawl ON crawl_links(crawl_id);
CREATE INDEX IF NOT EXISTS idx_crawl_links_source ON crawl_links(crawl_id, source_url);
CREATE INDEX IF NOT EXISTS idx_crawl_links_target ON crawl_links(crawl_id, target_url);
CREATE INDEX IF NOT EXISTS idx_crawl_issues_crawl ON crawl_issues(crawl_id);
CREATE INDEX IF NOT EXISTS idx_crawl_issues_url ON crawl_issues(crawl_id, url);
CREATE INDEX IF NOT EXISTS idx_crawl_issues_category ON crawl_issues(crawl_id, category);
`
