package light

import (
	"fmt"
	"regexp"
	"strconv"
)

// Match "22:15", "06:30"
var clockPattern = regexp.MustCompile(`^(\d{2}):(\d{2})$`)

// Clock is a wall-clock time of day with minute precision.
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock parses a 24-hour "HH:MM" string. Surrounding whitespace is rejected since
// the string is stored and echoed as given.
func ParseClock(s string) (Clock, error) {
	matches := clockPattern.FindStringSubmatch(s)
	if matches == nil {
		return Clock{}, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}

	hour, _ := strconv.Atoi(matches[1])
	min, _ := strconv.Atoi(matches[2])

	if hour > 23 {
		return Clock{}, fmt.Errorf("%w: invalid hour %d", ErrInvalidTime, hour)
	}
	if min > 59 {
		return Clock{}, fmt.Errorf("%w: invalid minute %d", ErrInvalidTime, min)
	}

	return Clock{Hour: hour, Minute: min}, nil
}

// String formats the clock as "HH:MM".
func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// HourDisplay formats an hour as "HH:00". Used when only the hour of a rule is shown
// in place of a simple schedule time.
func HourDisplay(hour int) string {
	return fmt.Sprintf("%02d:00", hour)
}

// ValidateClock returns a ValidationError for field when s is not "HH:MM".
func ValidateClock(field, s string) error {
	if _, err := ParseClock(s); err != nil {
		return &ValidationError{Field: field, Value: s, Reason: ErrInvalidTime}
	}
	return nil
}
