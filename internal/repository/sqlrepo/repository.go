// Package sqlrepo implements light.Repository on top of SQLite: one row per site plus the
// append-only ledger. Full schedules are not supported by this backend.
package sqlrepo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/sqlscan"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/sitelight/internal/db"
	"github.com/dokzlo13/sitelight/internal/ledger"
	"github.com/dokzlo13/sitelight/internal/light"
)

const lightsTable = "site_lights"

var statusColumns = []string{"site_id", "state", "brightness", "schedule_on", "schedule_off", "last_updated"}

type statusRow struct {
	SiteID      int            `db:"site_id"`
	State       string         `db:"state"`
	Brightness  int            `db:"brightness"`
	ScheduleOn  sql.NullString `db:"schedule_on"`
	ScheduleOff sql.NullString `db:"schedule_off"`
	LastUpdated string         `db:"last_updated"`
}

// Repository is the relational light.Repository.
type Repository struct {
	db      *sql.DB
	ledger  *ledger.Ledger
	timeout time.Duration
	now     func() time.Time
}

var _ light.Repository = (*Repository)(nil)

// New creates a repository over an opened database.
func New(database *sql.DB, timeout time.Duration) *Repository {
	return &Repository{
		db:      database,
		ledger:  ledger.New(database),
		timeout: timeout,
		now:     time.Now,
	}
}

// GetOrCreate reads the site row and inserts a default one on miss.
// The read and the insert are separate statements.
func (r *Repository) GetOrCreate(ctx context.Context, siteID int) (*light.Status, error) {
	ctx, cancel := light.StoreContext(ctx, r.timeout)
	defer cancel()

	return r.getOrCreate(ctx, siteID)
}

func (r *Repository) getOrCreate(ctx context.Context, siteID int) (*light.Status, error) {
	status, err := r.fetch(ctx, siteID)
	if err == nil {
		return status, nil
	}
	if !sqlscan.NotFound(err) {
		return nil, light.StoreError("select site light", err)
	}

	def := light.DefaultStatus(siteID, r.now())
	query, args, err := sq.Insert(lightsTable).
		Options("OR IGNORE").
		Columns(statusColumns...).
		Values(def.SiteID, string(def.State), def.Brightness, nil, nil, db.FormatTime(def.LastUpdated)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build insert query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return nil, light.StoreError("insert site light", err)
	}

	log.Debug().Int("site_id", siteID).Msg("Created default site light")

	// Re-read so a row inserted concurrently by another request wins.
	status, err = r.fetch(ctx, siteID)
	if err != nil {
		return nil, light.StoreError("select site light", err)
	}
	return status, nil
}

// Update merges the new values into the stored row.
func (r *Repository) Update(ctx context.Context, siteID int, state light.State, brightness int, scheduleOn, scheduleOff *string) (*light.Status, error) {
	if err := light.ValidateWrite(state, brightness, scheduleOn, scheduleOff); err != nil {
		return nil, err
	}

	ctx, cancel := light.StoreContext(ctx, r.timeout)
	defer cancel()

	existing, err := r.getOrCreate(ctx, siteID)
	if err != nil {
		return nil, err
	}

	next := &light.Status{
		SiteID:      siteID,
		State:       state,
		Brightness:  brightness,
		ScheduleOn:  existing.ScheduleOn,
		ScheduleOff: existing.ScheduleOff,
		LastUpdated: r.now().UTC(),
	}
	if scheduleOn != nil {
		next.ScheduleOn = scheduleOn
	}
	if scheduleOff != nil {
		next.ScheduleOff = scheduleOff
	}

	query, args, err := sq.Update(lightsTable).
		Set("state", string(next.State)).
		Set("brightness", next.Brightness).
		Set("schedule_on", nullString(next.ScheduleOn)).
		Set("schedule_off", nullString(next.ScheduleOff)).
		Set("last_updated", db.FormatTime(next.LastUpdated)).
		Where(sq.Eq{"site_id": siteID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build update query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return nil, light.StoreError("update site light", err)
	}

	return next, nil
}

// AddHistory appends to the ledger. A failure is logged and swallowed: the status change
// it accompanies has already been written.
func (r *Repository) AddHistory(ctx context.Context, siteID int, action string) {
	ctx, cancel := light.StoreContext(ctx, r.timeout)
	defer cancel()

	if err := r.ledger.Append(ctx, siteID, action, r.now()); err != nil {
		log.Warn().Err(err).Int("site_id", siteID).Str("action", action).Msg("Failed to append light history")
	}
}

// GetHistory lists the newest entries, optionally for one site.
func (r *Repository) GetHistory(ctx context.Context, siteID *int) ([]light.HistoryEntry, error) {
	ctx, cancel := light.StoreContext(ctx, r.timeout)
	defer cancel()

	entries, err := r.ledger.List(ctx, siteID, light.HistoryLimit)
	if err != nil {
		return nil, light.StoreError("select light history", err)
	}
	return entries, nil
}

// SaveFullSchedule is not supported by the relational backend.
func (r *Repository) SaveFullSchedule(_ context.Context, siteID int, _ []light.Rule) (*light.FullSchedule, error) {
	log.Debug().Int("site_id", siteID).Msg("Full schedules are not supported by the sqlite backend")
	return unsupported(siteID), nil
}

// GetFullSchedule is not supported by the relational backend.
func (r *Repository) GetFullSchedule(_ context.Context, siteID int) (*light.FullSchedule, error) {
	return unsupported(siteID), nil
}

func (r *Repository) fetch(ctx context.Context, siteID int) (*light.Status, error) {
	query, args, err := sq.Select(statusColumns...).
		From(lightsTable).
		Where(sq.Eq{"site_id": siteID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	var row statusRow
	if err := sqlscan.Get(ctx, r.db, &row, query, args...); err != nil {
		return nil, err
	}

	return r.rowToStatus(row), nil
}

func (r *Repository) rowToStatus(row statusRow) *light.Status {
	lastUpdated, err := db.ParseTime(row.LastUpdated)
	if err != nil {
		log.Warn().Err(err).Int("site_id", row.SiteID).Str("last_updated", row.LastUpdated).Msg("Unparseable last_updated, using current time")
		lastUpdated = r.now().UTC()
	}

	status := &light.Status{
		SiteID:      row.SiteID,
		State:       light.NormalizeState(row.State),
		Brightness:  light.ClampBrightness(row.Brightness),
		LastUpdated: lastUpdated,
	}
	if row.ScheduleOn.Valid {
		status.ScheduleOn = light.StringPtr(row.ScheduleOn.String)
	}
	if row.ScheduleOff.Valid {
		status.ScheduleOff = light.StringPtr(row.ScheduleOff.String)
	}
	return status
}

func unsupported(siteID int) *light.FullSchedule {
	return &light.FullSchedule{SiteID: siteID, Rules: []light.Rule{}, Supported: false}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
