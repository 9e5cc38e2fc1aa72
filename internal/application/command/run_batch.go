// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/medcircle-hub/medcircle-match-engine/internal/domain/matching"
	"github.com/medcircle-hub/medcircle-match-engine/internal/domain/shared"
	"github.com/medcircle-hub/medcircle-match-engine/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// RUN BATCH COMMAND
// The weekly batch orchestrator: Eligibility → Scoring → Formation →
// Persistence, with the one-run-per-week idempotency guard in front and
// the run report at the end.
// ══════════════════════════════════════════════════════════════════════════════

// RunBatchCommand requests one matching run.
type RunBatchCommand struct {
	// Week is the target week. Empty means the current week.
	Week matching.WeekID

	// Forced marks an operator-triggered run that may supersede a
	// completed week.
	Forced bool

	// OperatorID identifies the operator for forced runs (audit).
	OperatorID string

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c RunBatchCommand) Validate() error {
	if c.Week != "" && !c.Week.IsValid() {
		return fmt.Errorf("run_batch: %w", matching.ErrInvalidWeekID)
	}
	if c.Forced && c.OperatorID == "" {
		return errors.New("run_batch: operator_id is required for forced runs")
	}
	return nil
}

// RunOutcome classifies how the trigger was handled.
type RunOutcome string

const (
	// OutcomeExecuted - a run was executed to a terminal state.
	OutcomeExecuted RunOutcome = "executed"

	// OutcomeAlreadyRun - the idempotency guard short-circuited a
	// scheduled trigger. Not an error.
	OutcomeAlreadyRun RunOutcome = "already_run"
)

// RunBatchResult is the synchronous answer to a trigger.
type RunBatchResult struct {
	// RunID - the run that executed, or the blocking run for
	// OutcomeAlreadyRun.
	RunID string

	// Outcome - how the trigger was handled.
	Outcome RunOutcome

	// Status - terminal status of the executed run, or the status of the
	// blocking run.
	Status matching.RunStatus

	// Report - full run report for executed runs, nil otherwise.
	Report *matching.RunReport
}

// RunBatchConfig tunes the orchestrator.
type RunBatchConfig struct {
	// Formation - group formation parameters. TargetWeek is filled in
	// per run.
	Formation matching.FormationParams

	// LockTTL - run lock lease; refreshed on every heartbeat.
	LockTTL time.Duration

	// PersistWorkers - fan-out width for group persistence.
	PersistWorkers int

	// WallClock - upper bound on one run's execution time.
	WallClock time.Duration
}

// DefaultRunBatchConfig returns sensible defaults.
func DefaultRunBatchConfig() RunBatchConfig {
	return RunBatchConfig{
		Formation: matching.FormationParams{
			MinGroupSize:    2,
			MaxGroupSize:    4,
			TargetGroupSize: 3,
			MinEdgeScore:    40,
			CooldownWeeks:   8,
		},
		LockTTL:        2 * time.Minute,
		PersistWorkers: 4,
		WallClock:      10 * time.Minute,
	}
}

// Validate checks the configuration before the handler is allowed to run.
func (c RunBatchConfig) Validate() error {
	if err := (matching.FormationParams{
		MinGroupSize:    c.Formation.MinGroupSize,
		MaxGroupSize:    c.Formation.MaxGroupSize,
		TargetGroupSize: c.Formation.TargetGroupSize,
		MinEdgeScore:    c.Formation.MinEdgeScore,
		CooldownWeeks:   c.Formation.CooldownWeeks,
		TargetWeek:      matching.WeekID("2000-W01"), // placeholder for validation
	}).Validate(); err != nil {
		return err
	}
	if c.LockTTL <= 0 {
		return fmt.Errorf("%w: lock TTL must be positive", matching.ErrInvalidConfiguration)
	}
	if c.PersistWorkers < 1 {
		return fmt.Errorf("%w: persist workers must be >= 1", matching.ErrInvalidConfiguration)
	}
	if c.WallClock <= 0 {
		return fmt.Errorf("%w: wall clock bound must be positive", matching.ErrInvalidConfiguration)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// RunBatchHandler handles the RunBatchCommand.
type RunBatchHandler struct {
	candidates matching.CandidateSource
	batches    matching.BatchRunRepository
	groups     matching.GroupRepository
	history    matching.HistoryRepository
	lock       matching.RunLock
	publisher  shared.EventPublisher
	idGen      matching.IDGenerator
	scorer     *matching.Scorer
	config     RunBatchConfig
	logger     *slog.Logger
}

// NewRunBatchHandler creates a new RunBatchHandler. Configuration errors
// are fatal: a handler with invalid weights or size bounds is never
// constructed.
func NewRunBatchHandler(
	candidates matching.CandidateSource,
	batches matching.BatchRunRepository,
	groups matching.GroupRepository,
	history matching.HistoryRepository,
	lock matching.RunLock,
	publisher shared.EventPublisher,
	idGen matching.IDGenerator,
	scorer *matching.Scorer,
	config RunBatchConfig,
	logger *slog.Logger,
) (*RunBatchHandler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &RunBatchHandler{
		candidates: candidates,
		batches:    batches,
		groups:     groups,
		history:    history,
		lock:       lock,
		publisher:  publisher,
		idGen:      idGen,
		scorer:     scorer,
		config:     config,
		logger:     logger,
	}, nil
}

// Handle executes one matching run end to end.
func (h *RunBatchHandler) Handle(ctx context.Context, cmd RunBatchCommand) (*RunBatchResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	week := cmd.Week
	if week == "" {
		week = matching.WeekOf(time.Now().UTC())
	}

	// Idempotency guard: exactly one non-failed run per week. A running
	// batch rejects every trigger outright; a non-failed terminal batch
	// short-circuits scheduled triggers and is superseded (incrementally,
	// never destructively) by forced ones.
	blocking, err := h.batches.FindBlockingRun(ctx, week)
	switch {
	case err == nil:
		switch guardErr := blocking.GuardTrigger(cmd.Forced); {
		case errors.Is(guardErr, matching.ErrAlreadyRun):
			h.logger.Info("batch already run for week, skipping",
				"week", week, "blocking_run", blocking.ID, "status", blocking.Status)
			return &RunBatchResult{
				RunID:   blocking.ID,
				Outcome: OutcomeAlreadyRun,
				Status:  blocking.Status,
			}, nil
		case guardErr != nil:
			return nil, fmt.Errorf("run_batch: week %s: %w", week, guardErr)
		}
	case errors.Is(err, matching.ErrRunNotFound):
		// First run for the week.
	default:
		return nil, fmt.Errorf("run_batch: idempotency check: %w", err)
	}

	runID := h.idGen.GenerateID()

	// The lock closes the race between the guard check above and the run
	// record insert: two concurrent triggers for the same week cannot
	// both hold it.
	if err := h.lock.Acquire(ctx, week, runID, h.config.LockTTL); err != nil {
		return nil, fmt.Errorf("run_batch: week %s: %w", week, err)
	}
	defer func() {
		if err := h.lock.Release(context.WithoutCancel(ctx), week, runID); err != nil {
			h.logger.Warn("failed to release run lock", "week", week, "error", err)
		}
	}()

	trigger := matching.TriggerScheduled
	if cmd.Forced {
		trigger = matching.TriggerForced
	}

	run, err := matching.NewBatchRun(matching.NewBatchRunParams{
		ID:         runID,
		Week:       week,
		Trigger:    trigger,
		OperatorID: cmd.OperatorID,
	})
	if err != nil {
		return nil, fmt.Errorf("run_batch: %w", err)
	}

	if err := h.batches.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("run_batch: create run record: %w", err)
	}

	h.publish(matching.NewBatchStartedEvent(run))
	h.logger.Info("batch run started",
		"run_id", run.ID, "week", week, "trigger", trigger, "operator", cmd.OperatorID)

	runCtx, cancel := context.WithTimeout(ctx, h.config.WallClock)
	defer cancel()

	report, runErr := h.execute(runCtx, run)
	if runErr != nil {
		// execute already moved the run to Failed and persisted it.
		h.publish(matching.NewBatchFinishedEvent(run))
		return nil, runErr
	}

	h.publish(matching.NewBatchFinishedEvent(run))
	h.logger.Info("batch run finished",
		"run_id", run.ID, "status", run.Status,
		"groups", run.GroupsPersisted, "placed", run.UsersPlaced, "unplaced", run.UsersUnplaced)

	return &RunBatchResult{
		RunID:   run.ID,
		Outcome: OutcomeExecuted,
		Status:  run.Status,
		Report:  report,
	}, nil
}

// execute runs the pipeline stages. On fatal errors it finalizes the run
// as Failed before returning; no group rows exist in that path.
func (h *RunBatchHandler) execute(ctx context.Context, run *matching.BatchRun) (*matching.RunReport, error) {
	var timings []matching.StageTiming
	stageStart := time.Now()

	// ─── Stage 1: eligibility ────────────────────────────────────────────
	pool, err := h.candidates.ListEligible(ctx, run.Week)
	if err != nil {
		return nil, h.failRun(ctx, run, fmt.Errorf("eligibility: %w", err))
	}
	run.EligibleCount = len(pool)
	timings = append(timings, matching.StageTiming{Stage: "eligibility", Duration: time.Since(stageStart)})
	h.heartbeat(ctx, run)

	// A pool smaller than one group cannot form anything: scoring and
	// formation are skipped and everyone stays unplaced.
	var (
		edges  []matching.CompatibilityEdge
		formed matching.FormationResult
	)
	if len(pool) < h.config.Formation.MinGroupSize {
		h.logger.Info("scoring and formation skipped",
			"reason", matching.ErrInsufficientCandidates.Error(),
			"eligible", len(pool),
			"min_group_size", h.config.Formation.MinGroupSize)
		for _, c := range pool {
			formed.Unplaced = append(formed.Unplaced, c.ID)
		}
	} else {
		// ─── Stage 2: scoring ────────────────────────────────────────────
		stageStart = time.Now()
		edges = h.scorer.ScoreAll(pool)
		timings = append(timings, matching.StageTiming{Stage: "scoring", Duration: time.Since(stageStart)})
		h.heartbeat(ctx, run)

		// ─── Stage 3: history + formation ────────────────────────────────
		stageStart = time.Now()
		entries, err := h.history.LoadWindow(ctx, run.Week, h.config.Formation.CooldownWeeks)
		if err != nil {
			return nil, h.failRun(ctx, run, fmt.Errorf("history window: %w", err))
		}
		exclusions := matching.NewExclusionSet(entries)

		params := h.config.Formation
		params.TargetWeek = run.Week
		engine, err := matching.NewEngine(params)
		if err != nil {
			return nil, h.failRun(ctx, run, err)
		}
		formed = engine.Form(pool, edges, exclusions)
		timings = append(timings, matching.StageTiming{Stage: "formation", Duration: time.Since(stageStart)})
		h.heartbeat(ctx, run)
	}
	run.GroupsFormed = len(formed.Groups)

	// ─── Stage 4: persistence fan-out ────────────────────────────────────
	stageStart = time.Now()
	persisted, failures := h.persistGroups(ctx, run, formed.Groups)
	timings = append(timings, matching.StageTiming{Stage: "persistence", Duration: time.Since(stageStart)})

	placed := 0
	for _, g := range persisted {
		placed += g.Size()
	}
	unplaced := append([]matching.CandidateID{}, formed.Unplaced...)
	for _, f := range failures {
		unplaced = append(unplaced, f.Members...)
	}

	run.GroupsPersisted = len(persisted)
	run.UsersPlaced = placed
	run.UsersUnplaced = len(unplaced)

	// ─── Terminal state ──────────────────────────────────────────────────
	switch {
	case len(failures) == 0:
		if err := run.Complete(); err != nil {
			return nil, err
		}
	case len(persisted) == 0:
		// Nothing was written despite formed groups: fatal, not partial.
		return nil, h.failRun(ctx, run,
			fmt.Errorf("persistence: all %d groups failed: %w", len(failures), matching.ErrPartialPersistence))
	default:
		reason := fmt.Sprintf("%d of %d groups failed to persist", len(failures), len(formed.Groups))
		if err := run.CompletePartially(reason); err != nil {
			return nil, err
		}
	}

	if err := h.batches.Update(ctx, run); err != nil {
		return nil, fmt.Errorf("run_batch: finalize run record: %w", err)
	}

	return &matching.RunReport{
		RunID:            run.ID,
		Week:             run.Week,
		Status:           run.Status,
		Trigger:          run.Trigger,
		AlgorithmVersion: run.AlgorithmVersion,
		EligibleCount:    run.EligibleCount,
		EdgeCount:        len(edges),
		GroupsFormed:     run.GroupsFormed,
		GroupsPersisted:  run.GroupsPersisted,
		UsersPlaced:      run.UsersPlaced,
		UsersUnplaced:    run.UsersUnplaced,
		UnplacedIDs:      unplaced,
		Failures:         failures,
		Timings:          timings,
		StartedAt:        run.StartedAt,
		CompletedAt:      derefTime(run.CompletedAt),
	}, nil
}

// persistGroups writes groups concurrently (they are disjoint, so the
// writes share no state). Each failed write is retried once inside the
// same run; history entries are recorded only after a group's row commit
// so a failed run can never poison the exclusion set.
func (h *RunBatchHandler) persistGroups(
	ctx context.Context,
	run *matching.BatchRun,
	groups []matching.Group,
) ([]matching.Group, []matching.GroupFailure) {
	for i := range groups {
		groups[i].ID = h.idGen.GenerateID()
		groups[i].BatchID = run.ID
	}

	var (
		mu        sync.Mutex
		persisted []matching.Group
		failures  []matching.GroupFailure
		wg        sync.WaitGroup
		sem       = make(chan struct{}, h.config.PersistWorkers)
	)

	retrier := retry.New(
		retry.WithMaxAttempts(2), // one retry per group, then report
		retry.WithInitialDelay(200*time.Millisecond),
		retry.WithRetryIf(func(error) bool { return true }),
	)

	for i := range groups {
		group := groups[i]
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			err := retrier.Do(ctx, func(ctx context.Context) error {
				return h.groups.Create(ctx, &group)
			})
			if err != nil {
				h.logger.Error("group persistence failed after retry",
					"run_id", run.ID, "group_id", group.ID, "error", err)
				mu.Lock()
				failures = append(failures, matching.GroupFailure{
					GroupID: group.ID,
					Members: group.Members,
					Err:     err.Error(),
				})
				mu.Unlock()
				return
			}

			h.afterPersist(ctx, run, &group)

			mu.Lock()
			persisted = append(persisted, group)
			mu.Unlock()
		}()
	}
	wg.Wait()

	// Fan-in order is scheduling-dependent; sort for a stable report.
	sort.Slice(persisted, func(i, j int) bool { return persisted[i].ID < persisted[j].ID })
	sort.Slice(failures, func(i, j int) bool { return failures[i].GroupID < failures[j].GroupID })

	return persisted, failures
}

// afterPersist records history and notifies downstream for one group that
// made it to storage. Neither failure is fatal to the run.
func (h *RunBatchHandler) afterPersist(ctx context.Context, run *matching.BatchRun, group *matching.Group) {
	entries := matching.EntriesForGroup(*group, run.Week, time.Now().UTC())
	if err := h.history.Record(ctx, entries); err != nil {
		h.logger.Error("failed to record match history",
			"run_id", run.ID, "group_id", group.ID, "error", err)
	}

	h.publish(matching.NewGroupFormedEvent(group))
}

// heartbeat refreshes run liveness and the week lock between stages.
func (h *RunBatchHandler) heartbeat(ctx context.Context, run *matching.BatchRun) {
	run.Heartbeat()
	if err := h.batches.Update(ctx, run); err != nil {
		h.logger.Warn("failed to persist heartbeat", "run_id", run.ID, "error", err)
	}
	if err := h.lock.Refresh(ctx, run.Week, run.ID, h.config.LockTTL); err != nil {
		h.logger.Warn("failed to refresh run lock", "run_id", run.ID, "error", err)
	}
}

// failRun finalizes the run as Failed and persists the terminal state.
func (h *RunBatchHandler) failRun(ctx context.Context, run *matching.BatchRun, cause error) error {
	if err := run.Fail(cause.Error()); err != nil {
		h.logger.Error("could not mark run failed", "run_id", run.ID, "error", err)
	}
	// The terminal update must survive a cancelled run context.
	if err := h.batches.Update(context.WithoutCancel(ctx), run); err != nil {
		h.logger.Error("failed to persist failed run", "run_id", run.ID, "error", err)
	}
	return fmt.Errorf("run_batch: run %s failed: %w", run.ID, cause)
}

func (h *RunBatchHandler) publish(event shared.Event) {
	if h.publisher == nil {
		return
	}
	if err := h.publisher.Publish(event); err != nil {
		h.logger.Warn("event publish failed", "event", event.EventType(), "error", err)
	}
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
