package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCronExpression(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		wantErr bool
	}{
		{"weekly monday morning", EveryMondayMorning, false},
		{"every 5 minutes", Every5Minutes, false},
		{"every hour", EveryHour, false},
		{"wildcard everything", "* * * * *", false},
		{"list", "0,30 9,18 * * *", false},
		{"range", "0 9-17 * * 1-5", false},
		{"too few fields", "0 9 * *", true},
		{"too many fields", "0 9 * * 1 2", true},
		{"minute out of range", "60 * * * *", true},
		{"bad weekday", "0 9 * * 7", true},
		{"garbage", "not a cron", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ce, err := ParseCronExpression(tt.expr)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expr, ce.String())
		})
	}
}

func TestCronExpression_NextWeeklyTrigger(t *testing.T) {
	ce := MustParseCronExpression(EveryMondayMorning)

	// Wednesday 2026-08-26 12:00 UTC; next trigger is Monday 2026-08-31 09:00.
	from := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	next := ce.Next(from)

	assert.Equal(t, time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC), next)
	assert.Equal(t, time.Monday, next.Weekday())
}

func TestCronExpression_NextSkipsCurrentMinute(t *testing.T) {
	ce := MustParseCronExpression(EveryMondayMorning)

	// Exactly at trigger time the next run is the following Monday.
	at := time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)
	next := ce.Next(at)

	assert.Equal(t, time.Date(2026, 9, 7, 9, 0, 0, 0, time.UTC), next)
}

func TestCronExpression_NextEveryFiveMinutes(t *testing.T) {
	ce := MustParseCronExpression(Every5Minutes)

	from := time.Date(2026, 8, 29, 10, 3, 30, 0, time.UTC)
	next := ce.Next(from)

	assert.Equal(t, time.Date(2026, 8, 29, 10, 5, 0, 0, time.UTC), next)
}

func TestCronExpression_NextCrossesYearBoundary(t *testing.T) {
	ce := MustParseCronExpression(EveryMondayMorning)

	// Thursday 2026-12-31; next Monday is 2027-01-04.
	from := time.Date(2026, 12, 31, 23, 0, 0, 0, time.UTC)
	next := ce.Next(from)

	assert.Equal(t, time.Date(2027, 1, 4, 9, 0, 0, 0, time.UTC), next)
}

func TestIntervalSchedule(t *testing.T) {
	s := NewIntervalSchedule(5 * time.Minute)

	at := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, at.Add(5*time.Minute), s.Next(at))
	assert.Equal(t, "@every 5m0s", s.String())
}

func TestMustParseCronExpression_PanicsOnInvalid(t *testing.T) {
	assert.Panics(t, func() {
		MustParseCronExpression("bogus")
	})
}
