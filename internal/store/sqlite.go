package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a repository has no cached entry.
var ErrNotFound = errors.New("not found")

// Store provides SQLite-backed persistence of resolved repository links
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// New creates a new Store, opening the SQLite database and running migrations
func New(dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps :memory: databases shared and serialises writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{
		db:     db,
		logger: logger,
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Debug("store initialized", "path", dbPath)
	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// PutRepoCache inserts or replaces the cached links for a repository.
// Hit counters survive a refresh.
func (s *Store) PutRepoCache(e *RepoCacheEntry) error {
	const query = `
		INSERT INTO repo_cache (repo_id, checksum, chum_url, gui_url, fetched_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(repo_id) DO UPDATE SET
			checksum = excluded.checksum,
			chum_url = excluded.chum_url,
			gui_url = excluded.gui_url,
			fetched_at = excluded.fetched_at
	`

	if e.FetchedAt.IsZero() {
		e.FetchedAt = time.Now().UTC()
	}
	if _, err := s.db.Exec(query, e.RepoID, e.Checksum, e.ChumURL, e.GUIURL, e.FetchedAt); err != nil {
		return fmt.Errorf("failed to upsert repo cache %s: %w", e.RepoID, err)
	}
	return nil
}

// GetRepoCache retrieves the cached links for a repository
func (s *Store) GetRepoCache(repoID string) (*RepoCacheEntry, error) {
	const query = `
		SELECT repo_id, checksum, chum_url, gui_url, fetched_at, hits, last_served
		FROM repo_cache WHERE repo_id = ?
	`

	e, err := scanRepoCache(s.db.QueryRow(query, repoID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("repo cache %s: %w", repoID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to query repo cache: %w", err)
	}
	return e, nil
}

// ListRepoCache returns all cached repositories ordered by id
func (s *Store) ListRepoCache() ([]RepoCacheEntry, error) {
	const query = `
		SELECT repo_id, checksum, chum_url, gui_url, fetched_at, hits, last_served
		FROM repo_cache ORDER BY repo_id
	`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query repo cache: %w", err)
	}
	defer rows.Close()

	var entries []RepoCacheEntry
	for rows.Next() {
		e, err := scanRepoCache(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan repo cache: %w", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating repo cache: %w", err)
	}
	return entries, nil
}

// RecordHit bumps the served counter of a cached repository
func (s *Store) RecordHit(repoID string, at time.Time) error {
	const query = `UPDATE repo_cache SET hits = hits + 1, last_served = ? WHERE repo_id = ?`

	result, err := s.db.Exec(query, at.UTC(), repoID)
	if err != nil {
		return fmt.Errorf("failed to record hit: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("repo cache %s: %w", repoID, ErrNotFound)
	}
	return nil
}

// DeleteRepoCache removes one repository, or all of them when repoID is empty.
// It returns the number of removed entries.
func (s *Store) DeleteRepoCache(repoID string) (int64, error) {
	var (
		result sql.Result
		err    error
	)
	if repoID == "" {
		result, err = s.db.Exec("DELETE FROM repo_cache")
	} else {
		result, err = s.db.Exec("DELETE FROM repo_cache WHERE repo_id = ?", repoID)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to delete repo cache: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRepoCache(row rowScanner) (*RepoCacheEntry, error) {
	var (
		e          RepoCacheEntry
		lastServed sql.NullTime
	)
	if err := row.Scan(&e.RepoID, &e.Checksum, &e.ChumURL, &e.GUIURL, &e.FetchedAt, &e.Hits, &lastServed); err != nil {
		return nil, err
	}
	if lastServed.Valid {
		e.LastServed = lastServed.Time
	}
	return &e, nil
}
