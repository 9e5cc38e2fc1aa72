// Package jobs contains the scheduled jobs of the matching engine.
package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/medcircle-hub/medcircle-match-engine/internal/application/command"
)

// ══════════════════════════════════════════════════════════════════════════════
// WEEKLY MATCH JOB
// ══════════════════════════════════════════════════════════════════════════════

// WeeklyMatchJob triggers the batch run for the current week. The
// trigger is deliberately thin: the handler owns idempotency, so firing
// twice in one week is a logged no-op, not a duplicate run.
type WeeklyMatchJob struct {
	handler *command.RunBatchHandler
	logger  *slog.Logger
}

// NewWeeklyMatchJob creates a new WeeklyMatchJob.
func NewWeeklyMatchJob(handler *command.RunBatchHandler, logger *slog.Logger) *WeeklyMatchJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &WeeklyMatchJob{
		handler: handler,
		logger:  logger,
	}
}

// Name returns the job name.
func (j *WeeklyMatchJob) Name() string {
	return "weekly_match"
}

// Description returns a human-readable description.
func (j *WeeklyMatchJob) Description() string {
	return "Runs the weekly matching batch for the current week"
}

// Run executes the job.
func (j *WeeklyMatchJob) Run(ctx context.Context) error {
	result, err := j.handler.Handle(ctx, command.RunBatchCommand{})
	if err != nil {
		return fmt.Errorf("weekly_match: %w", err)
	}

	switch result.Outcome {
	case command.OutcomeAlreadyRun:
		j.logger.Info("weekly batch already ran, skipping",
			"run_id", result.RunID,
			"status", result.Status,
		)
	default:
		j.logger.Info("weekly batch executed",
			"run_id", result.RunID,
			"status", result.Status,
		)
	}

	return nil
}
