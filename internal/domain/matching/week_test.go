package matching

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeekOf(t *testing.T) {
	tests := []struct {
		name string
		at   time.Time
		want WeekID
	}{
		{
			name: "mid-year wednesday",
			at:   time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC),
			want: "2026-W35",
		},
		{
			name: "single digit week is zero padded",
			at:   time.Date(2026, 1, 19, 0, 0, 0, 0, time.UTC),
			want: "2026-W04",
		},
		{
			name: "early january belongs to previous iso year",
			at:   time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC),
			want: "2026-W53",
		},
		{
			name: "late december belongs to next iso year",
			at:   time.Date(2024, 12, 30, 0, 0, 0, 0, time.UTC),
			want: "2025-W01",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, WeekOf(tt.at))
		})
	}
}

func TestWeekID_Parts(t *testing.T) {
	year, week, err := WeekID("2026-W35").Parts()
	require.NoError(t, err)
	assert.Equal(t, 2026, year)
	assert.Equal(t, 35, week)

	invalid := []WeekID{"", "2026W35", "2026-W00", "2026-W54", "26-W35", "2026-W5", "garbage"}
	for _, w := range invalid {
		_, _, err := w.Parts()
		assert.ErrorIs(t, err, ErrInvalidWeekID, "week %q", w)
		assert.False(t, w.IsValid())
	}
}

func TestWeekID_Start(t *testing.T) {
	start, err := WeekID("2026-W35").Start()
	require.NoError(t, err)

	assert.Equal(t, time.Monday, start.Weekday())
	assert.Equal(t, time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC), start)

	// Week 1 can start in the previous calendar year.
	start, err = WeekID("2026-W01").Start()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 12, 29, 0, 0, 0, 0, time.UTC), start)
}

func TestWeeksBetween(t *testing.T) {
	n, err := WeeksBetween("2026-W30", "2026-W35")
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	n, err = WeeksBetween("2026-W35", "2026-W30")
	require.NoError(t, err)
	assert.Equal(t, -5, n)

	// Year boundary crossing.
	n, err = WeeksBetween("2025-W52", "2026-W02")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = WeeksBetween("bad", "2026-W35")
	assert.ErrorIs(t, err, ErrInvalidWeekID)
}
