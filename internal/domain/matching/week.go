package matching

import (
	"fmt"
	"time"
)

// WeekID identifies one ISO-8601 calendar week, formatted as "2026-W35".
// Zero-padding makes lexicographic order chronological, which the history
// exclusion set relies on.
type WeekID string

// NewWeekID formats a week identifier from an ISO year and week number.
func NewWeekID(year, week int) WeekID {
	return WeekID(fmt.Sprintf("%04d-W%02d", year, week))
}

// WeekOf returns the week identifier containing the given time.
func WeekOf(t time.Time) WeekID {
	year, week := t.ISOWeek()
	return NewWeekID(year, week)
}

// IsValid checks the identifier format.
func (w WeekID) IsValid() bool {
	_, _, err := w.Parts()
	return err == nil
}

// Parts parses the identifier into ISO year and week number.
func (w WeekID) Parts() (year, week int, err error) {
	if _, err := fmt.Sscanf(string(w), "%4d-W%2d", &year, &week); err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidWeekID, w)
	}
	if len(w) != 8 || week < 1 || week > 53 || year < 1 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidWeekID, w)
	}
	return year, week, nil
}

// Start returns the Monday 00:00 UTC of the week.
func (w WeekID) Start() (time.Time, error) {
	year, week, err := w.Parts()
	if err != nil {
		return time.Time{}, err
	}

	// January 4th is always inside ISO week 1.
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
	weekday := int(jan4.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday
	}
	week1Monday := jan4.AddDate(0, 0, -(weekday - 1))
	return week1Monday.AddDate(0, 0, (week-1)*7), nil
}

// WeeksBetween returns the number of whole weeks from week a to week b
// (positive when b is later).
func WeeksBetween(a, b WeekID) (int, error) {
	startA, err := a.Start()
	if err != nil {
		return 0, err
	}
	startB, err := b.Start()
	if err != nil {
		return 0, err
	}
	return int(startB.Sub(startA).Hours() / (24 * 7)), nil
}
