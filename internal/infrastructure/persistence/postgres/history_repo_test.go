package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medcircle-hub/medcircle-match-engine/internal/domain/matching"
)

func TestWindowWeeks(t *testing.T) {
	// Inclusive on both ends: cooldown 8 means the target week plus the
	// eight weeks before it.
	weeks, err := windowWeeks(matching.WeekID("2026-W09"), 8)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"2026-W09", "2026-W08", "2026-W07", "2026-W06", "2026-W05",
		"2026-W04", "2026-W03", "2026-W02", "2026-W01",
	}, weeks)
}

func TestWindowWeeks_CrossesYearBoundary(t *testing.T) {
	weeks, err := windowWeeks(matching.WeekID("2026-W02"), 3)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"2026-W02", "2026-W01", "2025-W52", "2025-W51",
	}, weeks)
}

func TestWindowWeeks_InvalidTarget(t *testing.T) {
	_, err := windowWeeks(matching.WeekID("garbage"), 8)
	assert.ErrorIs(t, err, matching.ErrInvalidWeekID)
}
