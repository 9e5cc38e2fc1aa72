package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/medcircle-hub/medcircle-match-engine/internal/application/command"
)

// ══════════════════════════════════════════════════════════════════════════════
// WATCHDOG JOB
// ══════════════════════════════════════════════════════════════════════════════

// WatchdogJob sweeps for batch runs whose heartbeat stopped and fails
// them, so a crashed process never leaves a week permanently blocked.
type WatchdogJob struct {
	handler *command.FailStuckRunsHandler
	bound   time.Duration
	logger  *slog.Logger
}

// NewWatchdogJob creates a new WatchdogJob. The bound is how stale a
// heartbeat must be before the run is declared dead; it must exceed the
// orchestrator's wall clock budget.
func NewWatchdogJob(handler *command.FailStuckRunsHandler, bound time.Duration, logger *slog.Logger) *WatchdogJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &WatchdogJob{
		handler: handler,
		bound:   bound,
		logger:  logger,
	}
}

// Name returns the job name.
func (j *WatchdogJob) Name() string {
	return "watchdog"
}

// Description returns a human-readable description.
func (j *WatchdogJob) Description() string {
	return "Fails batch runs whose heartbeat went stale"
}

// Run executes the job.
func (j *WatchdogJob) Run(ctx context.Context) error {
	result, err := j.handler.Handle(ctx, command.FailStuckRunsCommand{Bound: j.bound})
	if err != nil {
		return fmt.Errorf("watchdog: %w", err)
	}

	if len(result.Failed) > 0 {
		j.logger.Warn("watchdog failed stuck runs",
			"count", len(result.Failed),
			"run_ids", result.Failed,
		)
	}

	return nil
}
