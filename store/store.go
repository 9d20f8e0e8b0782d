// Package store persists run markers, relevance-filtered signals, and
// flight fare quotes in a local SQLite database. All timestamps are
// stored as RFC 3339 text.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store manages the pipeline database.
type Store struct {
	db *sql.DB
}

// Open opens (creating parent directories as needed) the database at
// path and ensures the schema exists. The schema uses CREATE TABLE IF
// NOT EXISTS throughout, so opening an existing database is a no-op.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		run_kind TEXT NOT NULL,
		run_date TEXT NOT NULL,
		created_at TEXT NOT NULL,
		UNIQUE(run_kind, run_date)
	);

	CREATE TABLE IF NOT EXISTS signals_news (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_date TEXT NOT NULL,
		city_code TEXT NOT NULL,
		city_name TEXT NOT NULL,
		source_id TEXT NOT NULL,
		title TEXT NOT NULL,
		url TEXT NOT NULL,
		published_at TEXT,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS signals_weather (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_date TEXT NOT NULL,
		city_code TEXT NOT NULL,
		city_name TEXT NOT NULL,
		source_id TEXT NOT NULL,
		title TEXT NOT NULL,
		url TEXT NOT NULL,
		published_at TEXT,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS signals_safety (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_date TEXT NOT NULL,
		city_code TEXT NOT NULL,
		city_name TEXT NOT NULL,
		source_id TEXT NOT NULL,
		title TEXT NOT NULL,
		url TEXT NOT NULL,
		published_at TEXT,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS flights_quotes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_date TEXT NOT NULL,
		provider TEXT NOT NULL,
		origin TEXT NOT NULL,
		destination TEXT NOT NULL,
		route_id TEXT NOT NULL,
		source_url TEXT NOT NULL,
		status_code INTEGER,
		parse_ok INTEGER NOT NULL DEFAULT 0,
		min_price_currency TEXT,
		min_price_value REAL,
		raw_path TEXT,
		notes TEXT,
		created_at TEXT NOT NULL,
		UNIQUE(run_date, provider, origin, destination, route_id)
	);

	CREATE INDEX IF NOT EXISTS idx_signals_news_date ON signals_news(run_date);
	CREATE INDEX IF NOT EXISTS idx_signals_weather_date ON signals_weather(run_date);
	CREATE INDEX IF NOT EXISTS idx_signals_safety_date ON signals_safety(run_date);
	CREATE INDEX IF NOT EXISTS idx_flights_quotes_date ON flights_quotes(run_date);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Sub-second precision keeps rerun marker timestamps strictly ordered;
// the nano layout also parses plain RFC 3339 text.
func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339Nano)
	return &s
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
