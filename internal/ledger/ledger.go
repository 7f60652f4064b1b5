// Package ledger provides the append-only light history of the relational backend.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/sqlscan"

	"github.com/dokzlo13/sitelight/internal/db"
	"github.com/dokzlo13/sitelight/internal/light"
)

const historyTable = "light_history"

// Entry is a light_history row
type Entry struct {
	ID        int64  `db:"id"`
	SiteID    int    `db:"site_id"`
	Action    string `db:"action"`
	Timestamp string `db:"timestamp"`
}

// Ledger provides append-only history logging
type Ledger struct {
	db *sql.DB
}

// New creates a new Ledger using the provided database connection
func New(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

// Append adds a new entry to the ledger. Entries are never updated or deleted.
func (l *Ledger) Append(ctx context.Context, siteID int, action string, at time.Time) error {
	query, args, err := sq.Insert(historyTable).
		Columns("site_id", "action", "timestamp").
		Values(siteID, action, db.FormatTime(at)).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert query: %w", err)
	}

	_, err = l.db.ExecContext(ctx, query, args...)
	return err
}

// List returns up to limit entries, newest first. A nil siteID lists all sites.
func (l *Ledger) List(ctx context.Context, siteID *int, limit int) ([]light.HistoryEntry, error) {
	builder := sq.Select("id", "site_id", "action", "timestamp").
		From(historyTable).
		OrderBy("timestamp DESC", "id DESC").
		Limit(uint64(limit))
	if siteID != nil {
		builder = builder.Where(sq.Eq{"site_id": *siteID})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	var rows []Entry
	if err := sqlscan.Select(ctx, l.db, &rows, query, args...); err != nil {
		return nil, err
	}

	entries := make([]light.HistoryEntry, 0, len(rows))
	for _, row := range rows {
		ts, err := db.ParseTime(row.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("history %d: bad timestamp %q: %w", row.ID, row.Timestamp, err)
		}
		entries = append(entries, light.HistoryEntry{
			ID:        row.ID,
			SiteID:    row.SiteID,
			Action:    row.Action,
			Timestamp: ts,
		})
	}

	return entries, nil
}
