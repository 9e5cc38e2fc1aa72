package matching

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func timeDate(year, month, day int) time.Time {
	return time.Date(year, time.Month(month), day, 12, 0, 0, 0, time.UTC)
}

func newRunningBatch(t *testing.T) *BatchRun {
	t.Helper()
	run, err := NewBatchRun(NewBatchRunParams{
		ID:      "run-1",
		Week:    WeekID("2026-W35"),
		Trigger: TriggerScheduled,
	})
	require.NoError(t, err)
	return run
}

func TestNewBatchRun(t *testing.T) {
	t.Run("scheduled run", func(t *testing.T) {
		run := newRunningBatch(t)
		assert.Equal(t, RunStatusRunning, run.Status)
		assert.Equal(t, AlgorithmVersion, run.AlgorithmVersion)
		assert.Nil(t, run.CompletedAt)
		assert.False(t, run.StartedAt.IsZero())
	})

	t.Run("forced run requires operator", func(t *testing.T) {
		_, err := NewBatchRun(NewBatchRunParams{
			ID:      "run-2",
			Week:    WeekID("2026-W35"),
			Trigger: TriggerForced,
		})
		assert.Error(t, err)
	})

	t.Run("forced run with operator", func(t *testing.T) {
		run, err := NewBatchRun(NewBatchRunParams{
			ID:         "run-3",
			Week:       WeekID("2026-W35"),
			Trigger:    TriggerForced,
			OperatorID: "ops@medcircle",
		})
		require.NoError(t, err)
		assert.Equal(t, "ops@medcircle", run.OperatorID)
	})

	t.Run("invalid week rejected", func(t *testing.T) {
		_, err := NewBatchRun(NewBatchRunParams{
			ID:      "run-4",
			Week:    WeekID("nonsense"),
			Trigger: TriggerScheduled,
		})
		assert.ErrorIs(t, err, ErrInvalidWeekID)
	})
}

func TestBatchRun_Transitions(t *testing.T) {
	t.Run("complete", func(t *testing.T) {
		run := newRunningBatch(t)
		require.NoError(t, run.Complete())
		assert.Equal(t, RunStatusCompleted, run.Status)
		require.NotNil(t, run.CompletedAt)
	})

	t.Run("partial with reason", func(t *testing.T) {
		run := newRunningBatch(t)
		require.NoError(t, run.CompletePartially("2 groups failed to persist"))
		assert.Equal(t, RunStatusPartiallyCompleted, run.Status)
		assert.Equal(t, "2 groups failed to persist", run.FailureReason)
	})

	t.Run("terminal states are final", func(t *testing.T) {
		run := newRunningBatch(t)
		require.NoError(t, run.Fail("store unreachable"))
		assert.Error(t, run.Complete())
		assert.Error(t, run.Fail("again"))
		assert.Equal(t, RunStatusFailed, run.Status)
	})
}

func TestBatchRun_GuardTrigger(t *testing.T) {
	t.Run("running blocks every trigger", func(t *testing.T) {
		run := newRunningBatch(t)
		assert.ErrorIs(t, run.GuardTrigger(false), ErrRunInProgress)
		assert.ErrorIs(t, run.GuardTrigger(true), ErrRunInProgress)
	})

	t.Run("completed blocks scheduled only", func(t *testing.T) {
		run := newRunningBatch(t)
		require.NoError(t, run.Complete())
		assert.ErrorIs(t, run.GuardTrigger(false), ErrAlreadyRun)
		assert.NoError(t, run.GuardTrigger(true))
	})

	t.Run("failed blocks nothing", func(t *testing.T) {
		run := newRunningBatch(t)
		require.NoError(t, run.Fail("store unreachable"))
		assert.NoError(t, run.GuardTrigger(false))
		assert.NoError(t, run.GuardTrigger(true))
	})
}

func TestRunStatus_BlocksWeek(t *testing.T) {
	assert.True(t, RunStatusRunning.BlocksWeek())
	assert.True(t, RunStatusCompleted.BlocksWeek())
	assert.True(t, RunStatusPartiallyCompleted.BlocksWeek())
	assert.False(t, RunStatusFailed.BlocksWeek())
}

func TestBatchRun_IsStuck(t *testing.T) {
	run := newRunningBatch(t)
	now := run.HeartbeatAt.Add(10 * time.Minute)

	assert.True(t, run.IsStuck(5*time.Minute, now))
	assert.False(t, run.IsStuck(15*time.Minute, now))

	run.Heartbeat()
	assert.False(t, run.IsStuck(5*time.Minute, run.HeartbeatAt.Add(time.Minute)))

	require.NoError(t, run.Complete())
	assert.False(t, run.IsStuck(0, time.Now().Add(time.Hour)), "terminal runs are never stuck")
}
