package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medcircle-hub/medcircle-match-engine/internal/domain/matching"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.App.Environment)
	assert.True(t, cfg.IsDevelopment())

	assert.Equal(t, 2, cfg.Matching.MinGroupSize)
	assert.Equal(t, 4, cfg.Matching.MaxGroupSize)
	assert.Equal(t, 3, cfg.Matching.TargetGroupSize)
	assert.Equal(t, 40, cfg.Matching.MinEdgeScore)
	assert.Equal(t, 8, cfg.Matching.CooldownWeeks)
	assert.Nil(t, cfg.Matching.FactorWeights)
	assert.Equal(t, 2*time.Minute, cfg.Matching.LockTTL)

	assert.Equal(t, "0 9 * * 1", cfg.Scheduler.WeeklyCron)
	assert.Greater(t, cfg.Scheduler.WatchdogBound, cfg.Matching.WallClock)

	assert.Equal(t, 6379, cfg.Redis.Port)
	assert.Equal(t, 8080, cfg.HTTP.Port)
}

func TestLoad_OverridesFromEnv(t *testing.T) {
	t.Setenv("MATCH_MIN_EDGE_SCORE", "55")
	t.Setenv("MATCH_COOLDOWN_WEEKS", "4")
	t.Setenv("SCHEDULER_WEEKLY_CRON", "0 8 * * 2")
	t.Setenv("REDIS_HOST", "redis.internal")
	t.Setenv("HTTP_OPERATOR_KEYS", "ops-1:$2a$10$hash1,ops-2:$2a$10$hash2")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 55, cfg.Matching.MinEdgeScore)
	assert.Equal(t, 4, cfg.Matching.CooldownWeeks)
	assert.Equal(t, "0 8 * * 2", cfg.Scheduler.WeeklyCron)
	assert.Equal(t, "redis.internal", cfg.Redis.Host)

	require.Len(t, cfg.HTTP.OperatorKeys, 2)
	assert.Equal(t, "$2a$10$hash1", cfg.HTTP.OperatorKeys["ops-1"])
}

func TestLoad_FactorWeightsOverride(t *testing.T) {
	t.Setenv("MATCH_FACTOR_WEIGHTS",
		"specialty_affinity=0.20,location_proximity=0.15,age_affinity=0.10,"+
			"interest_overlap=0.20,career_stage_affinity=0.10,activity_level_affinity=0.05,"+
			"social_energy_affinity=0.05,conversation_style_affinity=0.05,"+
			"life_stage_affinity=0.05,availability_overlap=0.05")

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg.Matching.FactorWeights)
	assert.InDelta(t, 0.15, cfg.Matching.FactorWeights[matching.FactorLocation], 1e-9)
	assert.NoError(t, cfg.Matching.FactorWeights.Validate())
}

func TestLoad_MalformedFactorWeightsIsFatal(t *testing.T) {
	t.Setenv("MATCH_FACTOR_WEIGHTS", "specialty_affinity=not-a-number")

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_IncompleteFactorWeightsFailValidation(t *testing.T) {
	// A partial override must never silently merge with defaults.
	t.Setenv("MATCH_FACTOR_WEIGHTS", "specialty_affinity=1.0")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MATCH_FACTOR_WEIGHTS")
}

func TestValidate_GroupSizeBounds(t *testing.T) {
	t.Setenv("MATCH_MIN_GROUP_SIZE", "5")
	t.Setenv("MATCH_MAX_GROUP_SIZE", "4")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MATCH_MAX_GROUP_SIZE")
}

func TestValidate_WatchdogBoundMustExceedWallClock(t *testing.T) {
	t.Setenv("MATCH_WALL_CLOCK", "20m")
	t.Setenv("SCHEDULER_WATCHDOG_BOUND", "15m")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SCHEDULER_WATCHDOG_BOUND")
}

func TestValidate_ProductionRequirements(t *testing.T) {
	t.Setenv("APP_ENV", "production")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}
