package storage

// schemaVersion is stored in crawl_meta and bumped whenever the tables change
const schemaVersion = "1"

const schemaSQL = `
-- One row per finished (or interrupted) crawl
CREATE TABLE IF NOT EXISTS runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    scope TEXT NOT NULL,
    seeds TEXT NOT NULL,            -- JSON array
    cycle_budget INTEGER NOT NULL,
    policy_version INTEGER NOT NULL,
    started_at TEXT NOT NULL,       -- RFC 3339
    finished_at TEXT NOT NULL,
    stats TEXT NOT NULL             -- JSON encoded crawler.Stats
);

CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

-- Result sets of a run
CREATE TABLE IF NOT EXISTS found_domains (
    run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    domain TEXT NOT NULL,
    PRIMARY KEY (run_id, domain)
);

CREATE TABLE IF NOT EXISTS searched (
    run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    url TEXT NOT NULL,
    PRIMARY KEY (run_id, url)
);

-- Addresses still waiting when the run stopped; position 0 is the bottom
CREATE TABLE IF NOT EXISTS frontier (
    run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    position INTEGER NOT NULL,
    url TEXT NOT NULL,
    PRIMARY KEY (run_id, position)
);

CREATE TABLE IF NOT EXISTS redirects (
    run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    position INTEGER NOT NULL,
    from_url TEXT NOT NULL,
    to_url TEXT NOT NULL,
    PRIMARY KEY (run_id, position)
);

CREATE TABLE IF NOT EXISTS domain_counts (
    run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    domain TEXT NOT NULL,
    admitted INTEGER NOT NULL,
    PRIMARY KEY (run_id, domain)
);

-- View for listing runs without loading their result sets
CREATE VIEW IF NOT EXISTS run_summary AS
SELECT
    r.id, r.scope, r.started_at, r.finished_at,
    (SELECT COUNT(*) FROM found_domains f WHERE f.run_id = r.id) AS found,
    (SELECT COUNT(*) FROM searched s WHERE s.run_id = r.id) AS searched,
    (SELECT COUNT(*) FROM frontier q WHERE q.run_id = r.id) AS frontier
FROM runs r;

-- Crawl meta table stores metadata as key-value pairs
CREATE TABLE IF NOT EXISTS crawl_meta (
    key TEXT PRIMARY KEY NOT NULL,
    value TEXT NOT NULL
);
`
