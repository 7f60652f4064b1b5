// Package service implements the light operations on top of a light.Repository.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/sitelight/internal/light"
)

// DefaultBrightness is used when a light is switched on with no brightness to restore.
const DefaultBrightness = 85

// History actions.
const (
	ActionToggleOn        = "toggle_on"
	ActionToggleOff       = "toggle_off"
	ActionScheduleUpdated = "schedule_updated"
)

// ScheduleSetAction is the history action recorded for a simple schedule change.
func ScheduleSetAction(on, off string) string {
	return fmt.Sprintf("schedule_set_%s_%s", on, off)
}

// LightService is the only component callers talk to. It holds no state of its own and
// does not coordinate concurrent calls: Toggle and SetSimpleSchedule read then write,
// so two concurrent calls for one site may lose an update.
type LightService struct {
	repo light.Repository
}

// New creates a service over repo.
func New(repo light.Repository) *LightService {
	return &LightService{repo: repo}
}

// GetStatus returns the site's light status, creating defaults on first access.
func (s *LightService) GetStatus(ctx context.Context, siteID int) (StatusView, error) {
	if err := light.ValidateSiteID(siteID); err != nil {
		return StatusView{}, err
	}

	status, err := s.repo.GetOrCreate(ctx, siteID)
	if err != nil {
		return StatusView{}, err
	}
	return newStatusView(status), nil
}

// Toggle inverts the light state. Switching on restores the previous brightness, or
// DefaultBrightness when there is none; switching off sets brightness 0.
func (s *LightService) Toggle(ctx context.Context, siteID int) (StatusView, error) {
	if err := light.ValidateSiteID(siteID); err != nil {
		return StatusView{}, err
	}

	current, err := s.repo.GetOrCreate(ctx, siteID)
	if err != nil {
		return StatusView{}, err
	}

	next, brightness, action := light.StateOff, 0, ActionToggleOff
	if current.State == light.StateOff {
		next, brightness, action = light.StateOn, current.Brightness, ActionToggleOn
		if brightness <= 0 {
			brightness = DefaultBrightness
		}
	}

	updated, err := s.repo.Update(ctx, siteID, next, brightness, nil, nil)
	if err != nil {
		return StatusView{}, err
	}
	s.repo.AddHistory(ctx, siteID, action)

	log.Info().Int("site_id", siteID).Str("action", action).Int("brightness", brightness).Msg("Toggled light")
	return newStatusView(updated), nil
}

// SetSimpleSchedule stores the on/off times, keeping state and brightness.
func (s *LightService) SetSimpleSchedule(ctx context.Context, siteID int, scheduleOn, scheduleOff string) (StatusView, error) {
	if err := light.ValidateSiteID(siteID); err != nil {
		return StatusView{}, err
	}
	if err := light.ValidateClock("scheduleOn", scheduleOn); err != nil {
		return StatusView{}, err
	}
	if err := light.ValidateClock("scheduleOff", scheduleOff); err != nil {
		return StatusView{}, err
	}

	current, err := s.repo.GetOrCreate(ctx, siteID)
	if err != nil {
		return StatusView{}, err
	}

	updated, err := s.repo.Update(ctx, siteID, current.State, current.Brightness, &scheduleOn, &scheduleOff)
	if err != nil {
		return StatusView{}, err
	}
	action := ScheduleSetAction(scheduleOn, scheduleOff)
	s.repo.AddHistory(ctx, siteID, action)

	log.Info().Int("site_id", siteID).Str("action", action).Msg("Set simple schedule")
	return newStatusView(updated), nil
}

// SetFullSchedule replaces the site's rule list. Backends without full schedule
// support return an unsupported view and nothing is recorded.
func (s *LightService) SetFullSchedule(ctx context.Context, siteID int, rules []light.Rule) (FullScheduleView, error) {
	if err := light.ValidateSiteID(siteID); err != nil {
		return FullScheduleView{}, err
	}
	if err := light.ValidateRules(rules); err != nil {
		return FullScheduleView{}, err
	}

	saved, err := s.repo.SaveFullSchedule(ctx, siteID, rules)
	if err != nil {
		return FullScheduleView{}, err
	}
	if saved.Supported {
		s.repo.AddHistory(ctx, siteID, ActionScheduleUpdated)
	} else {
		log.Debug().Int("site_id", siteID).Msg("Full schedules not supported by backend")
	}
	return newFullScheduleView(saved), nil
}

// GetFullSchedule returns the site's rule list.
func (s *LightService) GetFullSchedule(ctx context.Context, siteID int) (FullScheduleView, error) {
	if err := light.ValidateSiteID(siteID); err != nil {
		return FullScheduleView{}, err
	}

	sched, err := s.repo.GetFullSchedule(ctx, siteID)
	if err != nil {
		return FullScheduleView{}, err
	}
	return newFullScheduleView(sched), nil
}

// GetHistory returns up to light.HistoryLimit entries, newest first, optionally for one site.
func (s *LightService) GetHistory(ctx context.Context, siteID *int) ([]HistoryView, error) {
	if siteID != nil {
		if err := light.ValidateSiteID(*siteID); err != nil {
			return nil, err
		}
	}

	entries, err := s.repo.GetHistory(ctx, siteID)
	if err != nil {
		return nil, err
	}

	views := make([]HistoryView, len(entries))
	for i, e := range entries {
		views[i] = HistoryView{
			ID:           e.ID,
			RestaurantID: e.SiteID,
			Action:       e.Action,
			Timestamp:    formatTimestamp(e.Timestamp),
		}
	}
	return views, nil
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
