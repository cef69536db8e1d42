// Package timeframe resolves natural-language timeframe phrases into
// absolute UTC intervals. Resolution is pure: the reference time is always
// supplied by the caller, never read from the clock.
package timeframe

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrUnrecognized is returned when a phrase matches none of the
	// recognized grammars.
	ErrUnrecognized = errors.New("unrecognized timeframe")
	// ErrInvalidRange is returned for an explicit range whose start is
	// after its end, and for zero durations.
	ErrInvalidRange = errors.New("invalid time range")
)

// Range is a resolved closed-open interval [Start, End) in UTC. Label is a
// human-readable echo of the phrase for the caller to render.
type Range struct {
	Start time.Time
	End   time.Time
	Label string
}

// NewRange builds a Range, rejecting empty or inverted intervals.
func NewRange(start, end time.Time, label string) (Range, error) {
	if !start.Before(end) {
		return Range{}, fmt.Errorf("%w: start %s is not before end %s", ErrInvalidRange, start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	return Range{Start: start.UTC(), End: end.UTC(), Label: label}, nil
}

// Contains reports whether t falls inside the interval.
func (r Range) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

// Duration returns the interval width.
func (r Range) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

const dayLength = 24 * time.Hour

// month is a fixed 30-day approximation for interval arithmetic. Calendar
// month boundaries are deliberately not used here.
const monthLength = 30 * dayLength

var (
	relativePattern   = regexp.MustCompile(`^last\s+(\d+)\s+(hours?|days?|weeks?)$`)
	shorthandPattern  = regexp.MustCompile(`^(\d+)\s*(h|d|w|mo|hours?|days?|weeks?|months?)$`)
	singleDatePattern = regexp.MustCompile(`^on\s+(\d{4}-\d{2}-\d{2})$`)
	dateRangePattern  = regexp.MustCompile(`^from\s+(\d{4}-\d{2}-\d{2})\s+to\s+(\d{4}-\d{2}-\d{2})$`)
)

// Resolve turns a free-form phrase into an absolute interval relative to now.
// Recognized forms: "today", "yesterday", "last N hours/days/weeks",
// shorthand like "2h"/"3d"/"1w"/"1mo", "on YYYY-MM-DD" and
// "from YYYY-MM-DD to YYYY-MM-DD". All boundaries are computed in UTC.
func Resolve(phrase string, now time.Time) (Range, error) {
	text := strings.ToLower(strings.TrimSpace(phrase))
	now = now.UTC()

	switch text {
	case "today":
		start := midnight(now)
		return NewRange(start, start.Add(dayLength), "today")
	case "yesterday":
		start := midnight(now).Add(-dayLength)
		return NewRange(start, start.Add(dayLength), "yesterday")
	}

	if m := relativePattern.FindStringSubmatch(text); m != nil {
		return resolveRelative(m[1], m[2], now)
	}
	if m := shorthandPattern.FindStringSubmatch(text); m != nil {
		return resolveRelative(m[1], m[2], now)
	}
	if m := singleDatePattern.FindStringSubmatch(text); m != nil {
		day, err := parseDate(m[1])
		if err != nil {
			return Range{}, err
		}
		return NewRange(day, day.Add(dayLength), "on "+m[1])
	}
	if m := dateRangePattern.FindStringSubmatch(text); m != nil {
		start, err := parseDate(m[1])
		if err != nil {
			return Range{}, err
		}
		end, err := parseDate(m[2])
		if err != nil {
			return Range{}, err
		}
		if start.After(end) {
			return Range{}, fmt.Errorf("%w: %s is after %s", ErrInvalidRange, m[1], m[2])
		}
		// The end date's full day is included.
		return NewRange(start, end.Add(dayLength), fmt.Sprintf("from %s to %s", m[1], m[2]))
	}

	return Range{}, fmt.Errorf("%w: %q", ErrUnrecognized, phrase)
}

func resolveRelative(number, unit string, now time.Time) (Range, error) {
	n, err := strconv.Atoi(number)
	if err != nil || n <= 0 {
		return Range{}, fmt.Errorf("%w: amount must be a positive integer, got %q", ErrInvalidRange, number)
	}
	var per time.Duration
	var word string
	switch strings.TrimSuffix(unit, "s") {
	case "h", "hour":
		per, word = time.Hour, "hour"
	case "d", "day":
		per, word = dayLength, "day"
	case "w", "week":
		per, word = 7*dayLength, "week"
	case "mo", "month":
		per, word = monthLength, "month"
	default:
		return Range{}, fmt.Errorf("%w: %q", ErrUnrecognized, unit)
	}
	label := fmt.Sprintf("last %d %s", n, word)
	if n != 1 {
		label += "s"
	}
	return NewRange(now.Add(-time.Duration(n)*per), now, label)
}

func midnight(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func parseDate(s string) (time.Time, error) {
	day, err := time.ParseInLocation("2006-01-02", s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad date %q", ErrInvalidRange, s)
	}
	return day, nil
}
