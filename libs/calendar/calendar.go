// Package calendar derives timezone-stable calendar keys.
//
// A date key is built from the civil year/month/day of a time as seen in the
// clinic's location, re-anchored at UTC midnight, so the key for a calendar
// date does not move with the caller's offset.
package calendar

import (
	"fmt"
	"strings"
	"time"
)

const (
	dateLayout  = "2006-01-02"
	monthLayout = "2006-01"
	clockLayout = "15:04"
)

// Midnight returns UTC midnight of t's civil date in t's own location.
func Midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DateKey formats t's civil date as YYYY-MM-DD.
func DateKey(t time.Time) string {
	return Midnight(t).Format(dateLayout)
}

// DateKeyIn converts t to loc before taking its civil date.
func DateKeyIn(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return DateKey(t.In(loc))
}

// ParseDateKey parses YYYY-MM-DD into UTC midnight.
func ParseDateKey(key string) (time.Time, error) {
	t, err := time.ParseInLocation(dateLayout, strings.TrimSpace(key), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", key, err)
	}
	return t, nil
}

// ParseMonth parses YYYY-MM into UTC midnight of the first day.
func ParseMonth(key string) (time.Time, error) {
	t, err := time.ParseInLocation(monthLayout, strings.TrimSpace(key), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid month %q: %w", key, err)
	}
	return t, nil
}

// MonthKey formats t's civil month as YYYY-MM.
func MonthKey(t time.Time) string {
	return Midnight(t).Format(monthLayout)
}

// MonthDays returns UTC midnights for every day of the month containing t.
func MonthDays(t time.Time) []time.Time {
	first := Midnight(t).AddDate(0, 0, 1-t.Day())
	next := first.AddDate(0, 1, 0)
	days := make([]time.Time, 0, 31)
	for d := first; d.Before(next); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// Clock formats t's wall clock as HH:MM in loc.
func Clock(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(clockLayout)
}

// NormalizeClock accepts "9:30", "09:30", "09:30:00" and "9:30 AM" and
// returns the canonical HH:MM form.
func NormalizeClock(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range []string{"15:04", "15:04:05", "3:04 PM", "3:04PM", "03:04 PM"} {
		if t, err := time.Parse(layout, strings.ToUpper(raw)); err == nil {
			return t.Format(clockLayout), true
		}
	}
	return "", false
}

// ClockMinutes returns minutes since midnight for a canonical HH:MM value.
func ClockMinutes(clock string) (int, bool) {
	t, err := time.Parse(clockLayout, clock)
	if err != nil {
		return 0, false
	}
	return t.Hour()*60 + t.Minute(), true
}

// Before reports whether date a is strictly before date b, comparing civil
// dates only.
func Before(a, b time.Time) bool {
	return Midnight(a).Before(Midnight(b))
}
