package docrepo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/dokzlo13/sitelight/internal/docstore"
	"github.com/dokzlo13/sitelight/internal/light"
)

// findSchedule returns the schedule associated with d: the explicit scheduleId reference
// first, then the schedule registered for the device id. Nil when there is none.
func (r *Repository) findSchedule(ctx context.Context, d *device) (*scheduleDoc, error) {
	if ref := d.ScheduleRef(); ref != "" {
		sched, err := r.loadSchedule(ctx, ref)
		if err != nil || sched != nil {
			return sched, err
		}
	}

	ref, err := r.store.Lookup(ctx, schedulesByDevice, d.ID)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, light.StoreError("lookup schedule", err)
	}
	return r.loadSchedule(ctx, ref)
}

func (r *Repository) loadSchedule(ctx context.Context, id string) (*scheduleDoc, error) {
	data, err := r.store.Get(ctx, scheduleKey(id))
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, light.StoreError("get schedule", err)
	}

	var sched scheduleDoc
	if err := json.Unmarshal(data, &sched); err != nil {
		return nil, light.StoreError("decode schedule "+id, err)
	}
	if sched.ID == "" {
		sched.ID = id
	}
	return &sched, nil
}

// upsertSchedule replaces the rules of d's schedule, creating the schedule on first save.
// The schedules:by-device reservation keeps it to one schedule per device.
func (r *Repository) upsertSchedule(ctx context.Context, d *device, rules []storedRule) (*scheduleDoc, error) {
	now := formatTime(r.now())

	sched, err := r.findSchedule(ctx, d)
	if err != nil {
		return nil, err
	}

	if sched == nil {
		id, created, err := r.store.Reserve(ctx, schedulesByDevice, d.ID, uuid.NewString())
		if err != nil {
			return nil, light.StoreError("reserve schedule", err)
		}
		if !created {
			// Reserved earlier (or concurrently); reuse it even if its document is missing.
			if sched, err = r.loadSchedule(ctx, id); err != nil {
				return nil, err
			}
		}
		if sched == nil {
			sched = &scheduleDoc{
				ID:         id,
				DeviceID:   d.ID,
				Restaurant: d.Restaurant(),
				Name:       "Light Schedule",
				Enabled:    true,
				CreatedAt:  now,
			}
		}
	}

	sched.Rules = rules
	sched.UpdatedAt = now

	data, err := json.Marshal(sched)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schedule: %w", err)
	}
	if err := r.store.Put(ctx, scheduleKey(sched.ID), data, "", ""); err != nil {
		return nil, light.StoreError("put schedule", err)
	}
	return sched, nil
}

// toStoredRules decomposes "HH:MM" times into hour/minute fields. Every rule is saved
// with action ON; the stored format has no input for OFF rules.
func toStoredRules(rules []light.Rule) ([]storedRule, error) {
	stored := make([]storedRule, 0, len(rules))
	for i, rule := range rules {
		start, err := light.ParseClock(rule.StartTime)
		if err != nil {
			return nil, &light.ValidationError{Field: fmt.Sprintf("rules[%d].startTime", i), Value: rule.StartTime, Reason: light.ErrInvalidTime}
		}
		end, err := light.ParseClock(rule.EndTime)
		if err != nil {
			return nil, &light.ValidationError{Field: fmt.Sprintf("rules[%d].endTime", i), Value: rule.EndTime, Reason: light.ErrInvalidTime}
		}

		enabled := rule.Enabled
		days := rule.Days
		if days == nil {
			days = []string{}
		}
		stored = append(stored, storedRule{
			Days:        days,
			StartHour:   start.Hour,
			StartMinute: start.Minute,
			EndHour:     end.Hour,
			EndMinute:   end.Minute,
			Action:      ruleActionOn,
			Enabled:     &enabled,
		})
	}
	return stored, nil
}

// fromStoredRules recomposes boundary rules in stored order, without merging.
func fromStoredRules(stored []storedRule) []light.Rule {
	rules := make([]light.Rule, 0, len(stored))
	for _, s := range stored {
		enabled := true
		if s.Enabled != nil {
			enabled = *s.Enabled
		}
		days := s.Days
		if days == nil {
			days = []string{}
		}
		rules = append(rules, light.Rule{
			Days:      days,
			StartTime: light.Clock{Hour: s.StartHour, Minute: s.StartMinute}.String(),
			EndTime:   light.Clock{Hour: s.EndHour, Minute: s.EndMinute}.String(),
			Enabled:   enabled,
		})
	}
	return rules
}

// deriveSimpleSchedule fills missing simple schedule times from the first rule only,
// at hour precision. It is a display value and is never written back.
func deriveSimpleSchedule(status *light.Status, sched *scheduleDoc) {
	if sched == nil || len(sched.Rules) == 0 {
		return
	}
	first := sched.Rules[0]
	if status.ScheduleOn == nil {
		status.ScheduleOn = light.StringPtr(light.HourDisplay(first.StartHour))
	}
	if status.ScheduleOff == nil {
		status.ScheduleOff = light.StringPtr(light.HourDisplay(first.EndHour))
	}
}
