package matching

import (
	"errors"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// BATCH RUN
// One execution of the weekly engine. The orchestrator exclusively owns
// the lifecycle: Running is entered at most once per (week, non-forced
// trigger), terminal states are final, and a forced re-run produces a new
// BatchRun id rather than mutating a terminal one.
// ══════════════════════════════════════════════════════════════════════════════

// RunStatus is the state of a batch run.
type RunStatus string

const (
	// RunStatusRunning - the run is executing.
	RunStatusRunning RunStatus = "running"

	// RunStatusCompleted - all stages succeeded; every eligible candidate
	// was placed or explicitly recorded as unplaced.
	RunStatusCompleted RunStatus = "completed"

	// RunStatusPartiallyCompleted - some (not all) groups failed to
	// persist after the in-run retry.
	RunStatusPartiallyCompleted RunStatus = "partially_completed"

	// RunStatusFailed - a fatal error aborted the run before any group
	// was persisted, or the watchdog timed it out.
	RunStatusFailed RunStatus = "failed"
)

// IsValid checks the status value.
func (s RunStatus) IsValid() bool {
	switch s {
	case RunStatusRunning, RunStatusCompleted, RunStatusPartiallyCompleted, RunStatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal returns true once the run can no longer change state.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusPartiallyCompleted || s == RunStatusFailed
}

// BlocksWeek returns true when a run in this status prevents a new
// non-forced run for the same week. Failed runs do not block: the next
// scheduled trigger may retry the week.
func (s RunStatus) BlocksWeek() bool {
	return s == RunStatusRunning || s == RunStatusCompleted || s == RunStatusPartiallyCompleted
}

// TriggerKind distinguishes scheduled runs from operator-forced ones.
type TriggerKind string

const (
	// TriggerScheduled - fired by the weekly schedule.
	TriggerScheduled TriggerKind = "scheduled"

	// TriggerForced - fired manually by an operator; carries the operator
	// identity for audit and may supersede a completed run.
	TriggerForced TriggerKind = "forced"
)

// IsValid checks the trigger value.
func (t TriggerKind) IsValid() bool {
	return t == TriggerScheduled || t == TriggerForced
}

// BatchRun is one execution record of the weekly engine.
type BatchRun struct {
	// ID - unique run identifier (UUID).
	ID string

	// Week - target ISO week.
	Week WeekID

	// AlgorithmVersion - scorer version that produced the run.
	AlgorithmVersion string

	// Trigger - what started the run.
	Trigger TriggerKind

	// OperatorID - operator identity for forced runs, empty otherwise.
	OperatorID string

	// Status - current state.
	Status RunStatus

	// EligibleCount - candidates considered.
	EligibleCount int

	// GroupsFormed - groups produced by formation.
	GroupsFormed int

	// GroupsPersisted - groups that survived persistence (and retry).
	GroupsPersisted int

	// UsersPlaced - candidates inside persisted groups.
	UsersPlaced int

	// UsersUnplaced - candidates left unplaced after both passes.
	UsersUnplaced int

	// StartedAt - when the run entered Running.
	StartedAt time.Time

	// CompletedAt - when the run reached a terminal state (nil while
	// running).
	CompletedAt *time.Time

	// HeartbeatAt - last liveness timestamp, refreshed between stages so
	// the watchdog can detect stuck runs.
	HeartbeatAt time.Time

	// FailureReason - populated for Failed and PartiallyCompleted runs.
	FailureReason string
}

// NewBatchRunParams carries the inputs for starting a run.
type NewBatchRunParams struct {
	ID         string
	Week       WeekID
	Trigger    TriggerKind
	OperatorID string
}

// NewBatchRun creates a run in the Running state.
func NewBatchRun(params NewBatchRunParams) (*BatchRun, error) {
	if params.ID == "" {
		return nil, errors.New("batch run id is required")
	}
	if !params.Week.IsValid() {
		return nil, ErrInvalidWeekID
	}
	if !params.Trigger.IsValid() {
		return nil, errors.New("invalid trigger kind")
	}
	if params.Trigger == TriggerForced && params.OperatorID == "" {
		return nil, ErrRunSupersededForbidden
	}

	now := time.Now().UTC()

	return &BatchRun{
		ID:               params.ID,
		Week:             params.Week,
		AlgorithmVersion: AlgorithmVersion,
		Trigger:          params.Trigger,
		OperatorID:       params.OperatorID,
		Status:           RunStatusRunning,
		StartedAt:        now,
		HeartbeatAt:      now,
	}, nil
}

// GuardTrigger reports whether this run blocks a new trigger for its
// week. A running batch blocks every trigger; a non-failed terminal
// batch blocks scheduled triggers only, so forced re-runs may supersede
// it.
func (r *BatchRun) GuardTrigger(forced bool) error {
	if r.Status == RunStatusRunning {
		return ErrRunInProgress
	}
	if r.Status.BlocksWeek() && !forced {
		return ErrAlreadyRun
	}
	return nil
}

// Heartbeat refreshes the liveness timestamp.
func (r *BatchRun) Heartbeat() {
	r.HeartbeatAt = time.Now().UTC()
}

// Complete transitions the run to Completed.
func (r *BatchRun) Complete() error {
	return r.finish(RunStatusCompleted, "")
}

// CompletePartially transitions the run to PartiallyCompleted.
func (r *BatchRun) CompletePartially(reason string) error {
	return r.finish(RunStatusPartiallyCompleted, reason)
}

// Fail transitions the run to Failed.
func (r *BatchRun) Fail(reason string) error {
	return r.finish(RunStatusFailed, reason)
}

func (r *BatchRun) finish(status RunStatus, reason string) error {
	if r.Status.IsTerminal() {
		return errors.New("batch run already finalized")
	}
	now := time.Now().UTC()
	r.Status = status
	r.CompletedAt = &now
	r.HeartbeatAt = now
	r.FailureReason = reason
	return nil
}

// IsStuck reports whether a running batch has gone silent for longer
// than the given bound.
func (r *BatchRun) IsStuck(bound time.Duration, now time.Time) bool {
	return r.Status == RunStatusRunning && now.Sub(r.HeartbeatAt) > bound
}

// ══════════════════════════════════════════════════════════════════════════════
// RUN REPORT
// ══════════════════════════════════════════════════════════════════════════════

// StageTiming records how long one stage of the pipeline took.
type StageTiming struct {
	Stage    string
	Duration time.Duration
}

// GroupFailure enumerates one group that failed persistence after retry.
type GroupFailure struct {
	GroupID string
	Members []CandidateID
	Err     string
}

// RunReport is the operator-facing summary emitted by the orchestrator.
type RunReport struct {
	RunID            string
	Week             WeekID
	Status           RunStatus
	Trigger          TriggerKind
	AlgorithmVersion string
	EligibleCount    int
	EdgeCount        int
	GroupsFormed     int
	GroupsPersisted  int
	UsersPlaced      int
	UsersUnplaced    int
	UnplacedIDs      []CandidateID
	Failures         []GroupFailure
	Timings          []StageTiming
	StartedAt        time.Time
	CompletedAt      time.Time
}
