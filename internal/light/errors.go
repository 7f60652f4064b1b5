package light

import (
	"errors"
	"fmt"
)

var (
	// ErrUnresolvedSite is returned when a site id has no backing device.
	ErrUnresolvedSite = errors.New("site not found")

	// ErrValidation marks input rejected before any write.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidTime marks a time string that is not "HH:MM".
	ErrInvalidTime = errors.New("invalid time, expected HH:MM")

	// ErrStore marks infrastructure failures (store unreachable, timeout, malformed document).
	ErrStore = errors.New("store failure")
)

// UnresolvedSiteError reports the site id that could not be resolved.
type UnresolvedSiteError struct {
	SiteID int
}

func (e *UnresolvedSiteError) Error() string {
	return fmt.Sprintf("site %d: %s", e.SiteID, ErrUnresolvedSite.Error())
}

func (e *UnresolvedSiteError) Unwrap() error {
	return ErrUnresolvedSite
}

// ValidationError describes a rejected input field.
type ValidationError struct {
	Field  string
	Value  any
	Reason error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %v: %v", e.Field, e.Value, e.Reason)
}

// Unwrap exposes both ErrValidation and the specific reason.
func (e *ValidationError) Unwrap() []error {
	if e.Reason == nil {
		return []error{ErrValidation}
	}
	return []error{ErrValidation, e.Reason}
}

// ValidateSiteID rejects non-positive site ids.
func ValidateSiteID(siteID int) error {
	if siteID < 1 {
		return &ValidationError{Field: "restaurantId", Value: siteID, Reason: errors.New("must be >= 1")}
	}
	return nil
}

// StoreError wraps err as an infrastructure failure.
func StoreError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStore, op, err)
}
