package command

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/medcircle-hub/medcircle-match-engine/internal/domain/matching"
	"github.com/medcircle-hub/medcircle-match-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// FAIL STUCK RUNS COMMAND
// The watchdog's write path: any run still Running whose heartbeat is
// older than the wall-clock bound is moved to Failed. A stuck run must
// never be left Running forever - it would block the week's idempotency
// guard indefinitely.
// ══════════════════════════════════════════════════════════════════════════════

// FailStuckRunsCommand requests a sweep for stuck runs.
type FailStuckRunsCommand struct {
	// Bound is the wall-clock bound; runs silent for longer are failed.
	Bound time.Duration
}

// Validate validates the command.
func (c FailStuckRunsCommand) Validate() error {
	if c.Bound <= 0 {
		return fmt.Errorf("fail_stuck_runs: %w: bound must be positive", matching.ErrInvalidConfiguration)
	}
	return nil
}

// FailStuckRunsResult reports the sweep outcome.
type FailStuckRunsResult struct {
	// Failed - run IDs moved to the Failed state.
	Failed []string
}

// FailStuckRunsHandler handles the FailStuckRunsCommand.
type FailStuckRunsHandler struct {
	batches   matching.BatchRunRepository
	publisher shared.EventPublisher
	logger    *slog.Logger
}

// NewFailStuckRunsHandler creates a new FailStuckRunsHandler.
func NewFailStuckRunsHandler(
	batches matching.BatchRunRepository,
	publisher shared.EventPublisher,
	logger *slog.Logger,
) *FailStuckRunsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &FailStuckRunsHandler{
		batches:   batches,
		publisher: publisher,
		logger:    logger,
	}
}

// Handle sweeps for stuck runs and fails them.
func (h *FailStuckRunsHandler) Handle(ctx context.Context, cmd FailStuckRunsCommand) (*FailStuckRunsResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	cutoff := time.Now().UTC().Add(-cmd.Bound)
	stuck, err := h.batches.FindStuck(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("fail_stuck_runs: %w", err)
	}

	result := &FailStuckRunsResult{Failed: make([]string, 0, len(stuck))}
	for _, run := range stuck {
		if err := run.Fail(matching.ErrWatchdogTimeout.Error()); err != nil {
			h.logger.Warn("stuck run already finalized", "run_id", run.ID)
			continue
		}
		if err := h.batches.Update(ctx, run); err != nil {
			h.logger.Error("failed to persist watchdog failure", "run_id", run.ID, "error", err)
			continue
		}

		h.logger.Warn("watchdog failed stuck run",
			"run_id", run.ID, "week", run.Week, "last_heartbeat", run.HeartbeatAt)
		if h.publisher != nil {
			if err := h.publisher.Publish(matching.NewWatchdogTimeoutEvent(run)); err != nil {
				h.logger.Warn("event publish failed", "run_id", run.ID, "error", err)
			}
		}
		result.Failed = append(result.Failed, run.ID)
	}

	return result, nil
}
