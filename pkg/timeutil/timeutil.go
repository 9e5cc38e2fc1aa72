// Package timeutil provides UTC week arithmetic for the weekly matching
// cadence. The engine runs on ISO weeks (Monday start), so every boundary
// computation lives here rather than being re-derived at call sites.
// No external dependencies - uses only standard library.
package timeutil

import (
	"time"
)

// Now returns the current time in UTC.
func Now() time.Time {
	return time.Now().UTC()
}

// StartOfDay returns the start of the day (00:00:00) in UTC.
func StartOfDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// EndOfDay returns the end of the day (23:59:59.999999999) in UTC.
func EndOfDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 23, 59, 59, 999999999, time.UTC)
}

// StartOfWeek returns the start of the ISO week (Monday 00:00:00) in UTC.
func StartOfWeek(t time.Time) time.Time {
	u := t.UTC()
	weekday := int(u.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday
	}
	daysToSubtract := weekday - 1 // Monday = 1
	return StartOfDay(u.AddDate(0, 0, -daysToSubtract))
}

// EndOfWeek returns the end of the ISO week (Sunday 23:59:59) in UTC.
func EndOfWeek(t time.Time) time.Time {
	start := StartOfWeek(t)
	return EndOfDay(start.AddDate(0, 0, 6))
}

// UntilEndOfWeek returns the duration from t until the end of its ISO
// week. Used for cache leases that must not outlive the week they
// describe.
func UntilEndOfWeek(t time.Time) time.Duration {
	d := EndOfWeek(t).Sub(t.UTC())
	if d < 0 {
		return 0
	}
	return d
}

// IsSameISOWeek checks if two times fall in the same ISO week.
func IsSameISOWeek(t1, t2 time.Time) bool {
	y1, w1 := t1.UTC().ISOWeek()
	y2, w2 := t2.UTC().ISOWeek()
	return y1 == y2 && w1 == w2
}

// WeeksBetween returns the number of whole ISO weeks from t1's week to
// t2's week. Negative when t2's week precedes t1's.
func WeeksBetween(t1, t2 time.Time) int {
	return int(StartOfWeek(t2).Sub(StartOfWeek(t1)).Hours() / 24 / 7)
}

// Notification timing helpers.

// IsSafeNotificationTime checks if it's appropriate to notify members
// about a new group (9:00-22:00 UTC).
func IsSafeNotificationTime(t time.Time) bool {
	hour := t.UTC().Hour()
	return hour >= 9 && hour < 22
}

// NextSafeNotificationTime returns the next time when member
// notifications are appropriate.
func NextSafeNotificationTime(t time.Time) time.Time {
	u := t.UTC()
	hour := u.Hour()

	if hour < 9 {
		return time.Date(u.Year(), u.Month(), u.Day(), 9, 0, 0, 0, time.UTC)
	}
	if hour >= 22 {
		tomorrow := u.AddDate(0, 0, 1)
		return time.Date(tomorrow.Year(), tomorrow.Month(), tomorrow.Day(), 9, 0, 0, 0, time.UTC)
	}

	// Already in safe time window
	return u
}

// Common date/time formats.
const (
	// FormatDate is the standard date format (YYYY-MM-DD).
	FormatDate = "2006-01-02"
	// FormatDateTime is the standard datetime format.
	FormatDateTime = "2006-01-02 15:04"
	// FormatDateTimeSeconds includes seconds.
	FormatDateTimeSeconds = "2006-01-02 15:04:05"
)

// FormatDateStr formats a time as a date string (YYYY-MM-DD) in UTC.
func FormatDateStr(t time.Time) string {
	return t.UTC().Format(FormatDate)
}

// FormatDateTimeStr formats a time as a datetime string in UTC.
func FormatDateTimeStr(t time.Time) string {
	return t.UTC().Format(FormatDateTime)
}
