// Package storage exports finished crawl runs to SQLite and reads them back.
// A stored run is a record of results; crawls never resume from it.
package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/masahif/seeker/internal/crawler"
	// SQLite database driver (CGO-free)
	_ "modernc.org/sqlite"
)

// ErrRunNotFound is returned when no run matches the requested id
var ErrRunNotFound = errors.New("run not found")

// RunRecord is one stored crawl
type RunRecord struct {
	ID            int64
	Seeds         []string
	CycleBudget   int
	PolicyVersion int
	StartedAt     time.Time
	FinishedAt    time.Time
	Snapshot      *crawler.Snapshot
}

// RunSummary is a row of ListRuns
type RunSummary struct {
	ID         int64
	Scope      string
	StartedAt  time.Time
	FinishedAt time.Time
	Found      int
	Searched   int
	Frontier   int
}

// SQLiteStorage stores runs in a SQLite database
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens (creating if needed) the database at dbPath
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool - single connection prevents lock conflicts
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)

	storage := &SQLiteStorage{db: db}

	if err := storage.InitSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return storage, nil
}

// InitSchema creates the database schema
func (s *SQLiteStorage) InitSchema() error {
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 30000", // 30 second timeout for locks
	}

	for _, pragma := range pragmas {
		if _, err := s.db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute pragma %s: %w", pragma, err)
		}
	}

	if _, err := s.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	version, err := s.GetMeta("schema_version")
	if err != nil {
		return err
	}
	switch version {
	case "":
		return s.SetMeta("schema_version", schemaVersion)
	case schemaVersion:
		return nil
	default:
		return fmt.Errorf("unsupported schema version %q, want %q", version, schemaVersion)
	}
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// SaveRun writes run and its result sets in one transaction and returns
// the new run id. run.ID is ignored.
func (s *SQLiteStorage) SaveRun(run *RunRecord) (int64, error) {
	if run == nil || run.Snapshot == nil {
		return 0, fmt.Errorf("run has no snapshot")
	}
	snap := run.Snapshot

	seedsJSON, err := json.Marshal(run.Seeds)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal seeds: %w", err)
	}
	statsJSON, err := json.Marshal(snap.Stats)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal stats: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.Exec(`
		INSERT INTO runs (scope, seeds, cycle_budget, policy_version, started_at, finished_at, stats)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, snap.Scope, string(seedsJSON), run.CycleBudget, run.PolicyVersion,
		formatTime(run.StartedAt), formatTime(run.FinishedAt), string(statsJSON))
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get run id: %w", err)
	}

	if err := insertEach(tx, `INSERT INTO found_domains (run_id, domain) VALUES (?, ?)`,
		len(snap.Found), func(i int) []any { return []any{id, snap.Found[i]} }); err != nil {
		return 0, fmt.Errorf("failed to save found domains: %w", err)
	}

	if err := insertEach(tx, `INSERT INTO searched (run_id, url) VALUES (?, ?)`,
		len(snap.Searched), func(i int) []any { return []any{id, snap.Searched[i]} }); err != nil {
		return 0, fmt.Errorf("failed to save searched addresses: %w", err)
	}

	if err := insertEach(tx, `INSERT INTO frontier (run_id, position, url) VALUES (?, ?, ?)`,
		len(snap.Frontier), func(i int) []any { return []any{id, i, snap.Frontier[i]} }); err != nil {
		return 0, fmt.Errorf("failed to save frontier: %w", err)
	}

	if err := insertEach(tx, `INSERT INTO redirects (run_id, position, from_url, to_url) VALUES (?, ?, ?, ?)`,
		len(snap.Redirects), func(i int) []any {
			return []any{id, i, snap.Redirects[i].From.String(), snap.Redirects[i].To.String()}
		}); err != nil {
		return 0, fmt.Errorf("failed to save redirects: %w", err)
	}

	domains := make([]string, 0, len(snap.Counts))
	for d := range snap.Counts {
		domains = append(domains, d)
	}
	sort.Strings(domains)
	if err := insertEach(tx, `INSERT INTO domain_counts (run_id, domain, admitted) VALUES (?, ?, ?)`,
		len(domains), func(i int) []any { return []any{id, domains[i], snap.Counts[domains[i]]} }); err != nil {
		return 0, fmt.Errorf("failed to save domain counts: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit run: %w", err)
	}
	return id, nil
}

func insertEach(tx *sql.Tx, query string, n int, args func(i int) []any) error {
	if n == 0 {
		return nil
	}

	stmt, err := tx.Prepare(query)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i := 0; i < n; i++ {
		if _, err := stmt.Exec(args(i)...); err != nil {
			return err
		}
	}
	return nil
}

// ListRuns returns every stored run, newest first
func (s *SQLiteStorage) ListRuns() ([]RunSummary, error) {
	rows, err := s.db.Query(`
		SELECT id, scope, started_at, finished_at, found, searched, frontier
		FROM run_summary
		ORDER BY id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []RunSummary
	for rows.Next() {
		var (
			r                 RunSummary
			started, finished string
		)
		if err := rows.Scan(&r.ID, &r.Scope, &started, &finished, &r.Found, &r.Searched, &r.Frontier); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if r.StartedAt, err = parseTime(started); err != nil {
			return nil, err
		}
		if r.FinishedAt, err = parseTime(finished); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// LatestRunID returns the id of the most recently saved run
func (s *SQLiteStorage) LatestRunID() (int64, error) {
	var id int64
	err := s.db.QueryRow("SELECT id FROM runs ORDER BY id DESC LIMIT 1").Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrRunNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get latest run: %w", err)
	}
	return id, nil
}

// LoadRun reads a run back with all its result sets
func (s *SQLiteStorage) LoadRun(id int64) (*RunRecord, error) {
	run := &RunRecord{ID: id}
	var scope, seedsJSON, statsJSON, started, finished string
	err := s.db.QueryRow(`
		SELECT scope, seeds, cycle_budget, policy_version, started_at, finished_at, stats
		FROM runs WHERE id = ?
	`, id).Scan(&scope, &seedsJSON, &run.CycleBudget, &run.PolicyVersion, &started, &finished, &statsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run %d: %w", id, err)
	}

	if err := json.Unmarshal([]byte(seedsJSON), &run.Seeds); err != nil {
		return nil, fmt.Errorf("failed to unmarshal seeds: %w", err)
	}
	if run.StartedAt, err = parseTime(started); err != nil {
		return nil, err
	}
	if run.FinishedAt, err = parseTime(finished); err != nil {
		return nil, err
	}

	snap := &crawler.Snapshot{Scope: scope, TakenAt: run.FinishedAt, Counts: make(map[string]int)}
	if err := json.Unmarshal([]byte(statsJSON), &snap.Stats); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stats: %w", err)
	}

	if snap.Found, err = s.strings("SELECT domain FROM found_domains WHERE run_id = ? ORDER BY domain", id); err != nil {
		return nil, err
	}
	if snap.Searched, err = s.strings("SELECT url FROM searched WHERE run_id = ? ORDER BY url", id); err != nil {
		return nil, err
	}
	if snap.Frontier, err = s.strings("SELECT url FROM frontier WHERE run_id = ? ORDER BY position", id); err != nil {
		return nil, err
	}
	if snap.Redirects, err = s.redirects(id); err != nil {
		return nil, err
	}

	rows, err := s.db.Query("SELECT domain, admitted FROM domain_counts WHERE run_id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("failed to load domain counts: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var (
			domain string
			n      int
		)
		if err := rows.Scan(&domain, &n); err != nil {
			return nil, fmt.Errorf("failed to scan domain count: %w", err)
		}
		snap.Counts[domain] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	run.Snapshot = snap
	return run, nil
}

func (s *SQLiteStorage) strings(query string, id int64) ([]string, error) {
	rows, err := s.db.Query(query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query %q: %w", query, err)
	}
	defer func() { _ = rows.Close() }()

	out := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *SQLiteStorage) redirects(id int64) ([]crawler.Redirect, error) {
	rows, err := s.db.Query("SELECT from_url, to_url FROM redirects WHERE run_id = ? ORDER BY position", id)
	if err != nil {
		return nil, fmt.Errorf("failed to load redirects: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []crawler.Redirect{}
	for rows.Next() {
		var from, to string
		if err := rows.Scan(&from, &to); err != nil {
			return nil, err
		}
		fromAddr, err := crawler.ParseAddress(from)
		if err != nil {
			return nil, fmt.Errorf("stored redirect source %q: %w", from, err)
		}
		toAddr, err := crawler.ParseAddress(to)
		if err != nil {
			return nil, fmt.Errorf("stored redirect target %q: %w", to, err)
		}
		out = append(out, crawler.Redirect{From: fromAddr, To: toAddr})
	}
	return out, rows.Err()
}

// GetMeta retrieves a metadata value, "" when unset
func (s *SQLiteStorage) GetMeta(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM crawl_meta WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get meta: %w", err)
	}
	return value, nil
}

// SetMeta stores a metadata value
func (s *SQLiteStorage) SetMeta(key, value string) error {
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO crawl_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	if err != nil {
		return fmt.Errorf("failed to set meta: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stored time %q: %w", s, err)
	}
	return t, nil
}
