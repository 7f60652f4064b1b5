// Package db provides the SQLite connection and schema for the relational backend.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Seed row: one default site light
const (
	SeedSiteID     = 1
	seedState      = "off"
	seedBrightness = 0
)

// DB wraps the SQLite database connection
type DB struct {
	*sql.DB
}

// Open opens the database and initializes the schema
func Open(dbPath string) (*DB, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &DB{db}, nil
}

// initSchema creates all required tables
func initSchema(db *sql.DB) error {
	// Site lights - one row per site, constraints enforced by the store
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS site_lights (
			site_id INTEGER PRIMARY KEY,
			state TEXT NOT NULL CHECK(state IN ('on', 'off')),
			brightness INTEGER NOT NULL CHECK(brightness >= 0 AND brightness <= 100),
			schedule_on TEXT,
			schedule_off TEXT,
			last_updated TEXT NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create site_lights table: %w", err)
	}

	// Light history - append-only audit trail
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS light_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			site_id INTEGER NOT NULL,
			action TEXT NOT NULL,
			timestamp TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_light_history_site_ts ON light_history(site_id, timestamp);
	`)
	if err != nil {
		return fmt.Errorf("failed to create light_history table: %w", err)
	}

	_, err = db.Exec(`
		INSERT OR IGNORE INTO site_lights (
			site_id, state, brightness, schedule_on, schedule_off, last_updated
		) VALUES (?, ?, ?, NULL, NULL, ?)
	`, SeedSiteID, seedState, seedBrightness, FormatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to seed site_lights: %w", err)
	}

	return nil
}

// FormatTime renders t as the ISO-8601 UTC string stored in TEXT columns.
// Fixed-width fractional seconds keep lexical and chronological order identical.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime parses a stored timestamp, accepting any RFC3339 variant.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// TimeLayout is RFC3339 with fixed nanosecond precision.
const TimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}
