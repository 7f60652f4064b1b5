// Package light defines the site light model and the repository contract shared by
// every persistence backend.
package light

import (
	"context"
	"time"
)

// State is the on/off state of a site light.
type State string

const (
	StateOn  State = "on"
	StateOff State = "off"
)

const (
	// MinBrightness and MaxBrightness bound the stored brightness percentage.
	MinBrightness = 0
	MaxBrightness = 100

	// HistoryLimit caps every history query.
	HistoryLimit = 100
)

// Status is the current light state of one site.
type Status struct {
	SiteID      int
	State       State
	Brightness  int
	ScheduleOn  *string // "HH:MM", nil when unset
	ScheduleOff *string // "HH:MM", nil when unset
	LastUpdated time.Time
}

// DefaultStatus returns the status a site starts with: off, brightness 0, no schedule.
func DefaultStatus(siteID int, now time.Time) *Status {
	return &Status{
		SiteID:      siteID,
		State:       StateOff,
		Brightness:  0,
		LastUpdated: now.UTC(),
	}
}

// HistoryEntry is an immutable audit record of a state-changing action.
type HistoryEntry struct {
	ID        int64
	SiteID    int
	Action    string
	Timestamp time.Time
}

// Rule is one day-scoped entry of a full schedule as seen at the boundary.
// Times are "HH:MM" 24-hour strings.
type Rule struct {
	Days      []string
	StartTime string
	EndTime   string
	Enabled   bool
}

// FullSchedule is the day-specific schedule of a site.
// Supported is false when the backend has no notion of full schedules.
type FullSchedule struct {
	SiteID    int
	Rules     []Rule
	Supported bool
}

// Repository is the persistence contract every backend implements with identical semantics.
type Repository interface {
	// GetOrCreate returns the site status, creating a default one when absent.
	GetOrCreate(ctx context.Context, siteID int) (*Status, error)

	// Update writes state and brightness. Nil schedule fields keep their stored values.
	Update(ctx context.Context, siteID int, state State, brightness int, scheduleOn, scheduleOff *string) (*Status, error)

	// AddHistory appends an audit entry. Failures are logged, never returned.
	AddHistory(ctx context.Context, siteID int, action string)

	// GetHistory returns at most HistoryLimit entries, newest first.
	// A nil siteID lists every site.
	GetHistory(ctx context.Context, siteID *int) ([]HistoryEntry, error)

	// SaveFullSchedule replaces the full schedule of the site's device.
	SaveFullSchedule(ctx context.Context, siteID int, rules []Rule) (*FullSchedule, error)

	// GetFullSchedule returns the stored full schedule, or empty rules when there is none.
	GetFullSchedule(ctx context.Context, siteID int) (*FullSchedule, error)
}

// NormalizeState maps anything that is not exactly "on" or "off" to off.
func NormalizeState(s string) State {
	switch State(s) {
	case StateOn:
		return StateOn
	default:
		return StateOff
	}
}

// ClampBrightness bounds b to [MinBrightness, MaxBrightness].
func ClampBrightness(b int) int {
	if b < MinBrightness {
		return MinBrightness
	}
	if b > MaxBrightness {
		return MaxBrightness
	}
	return b
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}
