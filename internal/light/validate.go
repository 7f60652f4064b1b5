package light

import (
	"context"
	"fmt"
	"time"
)

// ValidateWrite rejects values that are structurally invalid for storage.
// Nil schedule fields are not checked since they keep the stored values.
func ValidateWrite(state State, brightness int, scheduleOn, scheduleOff *string) error {
	if state != StateOn && state != StateOff {
		return &ValidationError{Field: "state", Value: state, Reason: fmt.Errorf("must be %q or %q", StateOn, StateOff)}
	}
	if brightness < MinBrightness || brightness > MaxBrightness {
		return &ValidationError{Field: "brightness", Value: brightness, Reason: fmt.Errorf("must be within [%d, %d]", MinBrightness, MaxBrightness)}
	}
	if scheduleOn != nil {
		if err := ValidateClock("scheduleOn", *scheduleOn); err != nil {
			return err
		}
	}
	if scheduleOff != nil {
		if err := ValidateClock("scheduleOff", *scheduleOff); err != nil {
			return err
		}
	}
	return nil
}

// ValidateRules rejects full schedule rules whose times are not "HH:MM".
func ValidateRules(rules []Rule) error {
	for i, rule := range rules {
		if err := ValidateClock(fmt.Sprintf("rules[%d].startTime", i), rule.StartTime); err != nil {
			return err
		}
		if err := ValidateClock(fmt.Sprintf("rules[%d].endTime", i), rule.EndTime); err != nil {
			return err
		}
	}
	return nil
}

// StoreContext derives the context for a single store call. The call is detached from
// the caller's cancellation so a disconnect never leaves a write half applied, and is
// bounded by timeout instead.
func StoreContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), timeout)
}
