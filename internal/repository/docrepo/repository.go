// Package docrepo implements light.Repository over the document store, where every site
// is backed by an externally provisioned device document.
package docrepo

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/sitelight/internal/light"
)

// Store is the subset of docstore.Client the repository uses.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	GetMany(ctx context.Context, keys []string) ([][]byte, error)
	Put(ctx context.Context, key string, data []byte, collection, id string) error
	Members(ctx context.Context, collection string) ([]string, error)
	Lookup(ctx context.Context, key, field string) (string, error)
	Reserve(ctx context.Context, key, field, value string) (string, bool, error)
	Append(ctx context.Context, key, id string, data []byte, sequence string, indexes ...string) error
	Latest(ctx context.Context, index string, limit int64) ([]string, error)
}

// Repository is the document-backed light.Repository.
type Repository struct {
	store   Store
	timeout time.Duration
	now     func() time.Time
}

var _ light.Repository = (*Repository)(nil)

// New creates a repository over store.
func New(store Store, timeout time.Duration) *Repository {
	return &Repository{
		store:   store,
		timeout: timeout,
		now:     time.Now,
	}
}

// GetOrCreate projects the site's device. A site with no device gets a synthetic default
// that is not persisted: devices are provisioned externally.
func (r *Repository) GetOrCreate(ctx context.Context, siteID int) (*light.Status, error) {
	ctx, cancel := light.StoreContext(ctx, r.timeout)
	defer cancel()

	d, err := r.resolveSite(ctx, siteID)
	if err != nil {
		return nil, err
	}
	if d == nil {
		log.Debug().Int("site_id", siteID).Msg("No device for site, returning default status")
		return light.DefaultStatus(siteID, r.now()), nil
	}
	return r.deviceToStatus(ctx, siteID, d)
}

// Update writes the light fields into the device document, keeping stored schedule
// times when scheduleOn/scheduleOff are nil. An unresolved site is an error and nothing
// is written.
func (r *Repository) Update(ctx context.Context, siteID int, state light.State, brightness int, scheduleOn, scheduleOff *string) (*light.Status, error) {
	if err := light.ValidateWrite(state, brightness, scheduleOn, scheduleOff); err != nil {
		return nil, err
	}

	ctx, cancel := light.StoreContext(ctx, r.timeout)
	defer cancel()

	d, err := r.resolveSite(ctx, siteID)
	if err != nil {
		return nil, err
	}

	if d == nil {
		return nil, &light.UnresolvedSiteError{SiteID: siteID}
	}

	now := r.now().UTC()

	d.set(fieldLightState, string(state))
	d.set(fieldBrightness, brightness)
	if scheduleOn != nil {
		d.set(fieldScheduleOn, *scheduleOn)
	}
	if scheduleOff != nil {
		d.set(fieldScheduleOff, *scheduleOff)
	}
	d.set(fieldLastUpdated, formatTime(now))

	data, err := d.marshal()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal device: %w", err)
	}
	if err := r.store.Put(ctx, deviceKey(d.ID), data, devicesCollection, d.ID); err != nil {
		return nil, light.StoreError("put device", err)
	}

	// Project what was written, not the in-memory map.
	written, err := parseDevice(data)
	if err != nil {
		return nil, fmt.Errorf("failed to reparse device: %w", err)
	}
	return r.deviceToStatus(ctx, siteID, written)
}

// AddHistory appends a light_history document. A failure is logged and swallowed.
func (r *Repository) AddHistory(ctx context.Context, siteID int, action string) {
	ctx, cancel := light.StoreContext(ctx, r.timeout)
	defer cancel()

	if err := r.addHistory(ctx, siteID, action); err != nil {
		log.Warn().Err(err).Int("site_id", siteID).Str("action", action).Msg("Failed to append light history")
	}
}

func (r *Repository) addHistory(ctx context.Context, siteID int, action string) error {
	doc := historyDoc{
		ID:           uuid.NewString(),
		RestaurantID: strconv.Itoa(siteID),
		Action:       action,
		Timestamp:    formatTime(r.now()),
		LegacyID:     siteID,
	}

	d, err := r.resolveSite(ctx, siteID)
	if err != nil {
		return err
	}
	if d != nil {
		doc.DeviceID = d.ID
		if rid := d.RestaurantID(); rid != "" {
			doc.RestaurantID = rid
		}
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	return r.store.Append(ctx, historyKey(doc.ID), doc.ID, data, historySequence, historyIndex, historySiteIndex(siteID))
}

// GetHistory lists the newest history documents. The returned ids are positions 1..N in
// this result only.
func (r *Repository) GetHistory(ctx context.Context, siteID *int) ([]light.HistoryEntry, error) {
	ctx, cancel := light.StoreContext(ctx, r.timeout)
	defer cancel()

	index := historyIndex
	if siteID != nil {
		index = historySiteIndex(*siteID)
	}

	ids, err := r.store.Latest(ctx, index, light.HistoryLimit)
	if err != nil {
		return nil, light.StoreError("list history", err)
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = historyKey(id)
	}
	docs, err := r.store.GetMany(ctx, keys)
	if err != nil {
		return nil, light.StoreError("load history", err)
	}

	entries := make([]light.HistoryEntry, 0, len(docs))
	for i, data := range docs {
		if data == nil {
			continue
		}
		var doc historyDoc
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, light.StoreError("decode history "+ids[i], err)
		}
		ts, ok := asTime(doc.Timestamp)
		if !ok {
			log.Warn().Str("history_id", doc.ID).Str("timestamp", doc.Timestamp).Msg("Unparseable history timestamp")
		}
		entries = append(entries, light.HistoryEntry{
			ID:        int64(len(entries) + 1),
			SiteID:    doc.LegacyID,
			Action:    doc.Action,
			Timestamp: ts,
		})
	}
	return entries, nil
}

// SaveFullSchedule upserts the device's schedule. Unlike GetOrCreate it never
// synthesises: an unresolved site is an error and nothing is written.
func (r *Repository) SaveFullSchedule(ctx context.Context, siteID int, rules []light.Rule) (*light.FullSchedule, error) {
	stored, err := toStoredRules(rules)
	if err != nil {
		return nil, err
	}

	ctx, cancel := light.StoreContext(ctx, r.timeout)
	defer cancel()

	d, err := r.resolveSite(ctx, siteID)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, &light.UnresolvedSiteError{SiteID: siteID}
	}

	sched, err := r.upsertSchedule(ctx, d, stored)
	if err != nil {
		return nil, err
	}

	log.Info().Int("site_id", siteID).Str("device_id", d.ID).Str("schedule_id", sched.ID).Int("rules", len(sched.Rules)).Msg("Saved full schedule")

	return &light.FullSchedule{SiteID: siteID, Rules: fromStoredRules(sched.Rules), Supported: true}, nil
}

// GetFullSchedule returns the device's schedule, or empty rules.
func (r *Repository) GetFullSchedule(ctx context.Context, siteID int) (*light.FullSchedule, error) {
	ctx, cancel := light.StoreContext(ctx, r.timeout)
	defer cancel()

	empty := &light.FullSchedule{SiteID: siteID, Rules: []light.Rule{}, Supported: true}

	d, err := r.resolveSite(ctx, siteID)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return empty, nil
	}

	sched, err := r.findSchedule(ctx, d)
	if err != nil {
		return nil, err
	}
	if sched == nil {
		return empty, nil
	}

	return &light.FullSchedule{SiteID: siteID, Rules: fromStoredRules(sched.Rules), Supported: true}, nil
}

// deviceToStatus projects the device's light fields, clamping what the loosely
// validated document may hold.
func (r *Repository) deviceToStatus(ctx context.Context, siteID int, d *device) (*light.Status, error) {
	lastUpdated, ok := d.LastUpdated()
	if !ok {
		lastUpdated = r.now().UTC()
	}

	status := &light.Status{
		SiteID:      siteID,
		State:       light.NormalizeState(d.LightState()),
		Brightness:  light.ClampBrightness(d.Brightness()),
		ScheduleOn:  d.ScheduleOn(),
		ScheduleOff: d.ScheduleOff(),
		LastUpdated: lastUpdated,
	}

	if status.ScheduleOn == nil || status.ScheduleOff == nil {
		sched, err := r.findSchedule(ctx, d)
		if err != nil {
			return nil, err
		}
		deriveSimpleSchedule(status, sched)
	}

	return status, nil
}
