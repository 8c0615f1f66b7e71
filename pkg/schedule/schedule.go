// Package schedule turns the meeting form's calendar date and time-of-day
// inputs into a single instant.
package schedule

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidTimeOfDay = errors.New("time must be in HH:MM format")
	ErrNotInFuture      = errors.New("time must be in the future")
)

// ParseTimeOfDay parses "H:MM" or "HH:MM" (24h clock)
func ParseTimeOfDay(clock string) (hour, minute int, err error) {
	h, m, ok := strings.Cut(strings.TrimSpace(clock), ":")
	if !ok || len(h) < 1 || len(h) > 2 || len(m) != 2 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, clock)
	}

	hour, err = strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, clock)
	}
	minute, err = strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, clock)
	}
	return hour, minute, nil
}

// CombineDateAndTime keeps the calendar day of date (in date's location) and
// replaces the clock with clock, with seconds and nanoseconds zeroed.
func CombineDateAndTime(date time.Time, clock string) (time.Time, error) {
	hour, minute, err := ParseTimeOfDay(clock)
	if err != nil {
		return time.Time{}, err
	}
	y, mo, d := date.Date()
	return time.Date(y, mo, d, hour, minute, 0, 0, date.Location()), nil
}

// ValidateFuture rejects t unless it is strictly after now
func ValidateFuture(t, now time.Time) error {
	if !t.After(now) {
		return ErrNotInFuture
	}
	return nil
}
