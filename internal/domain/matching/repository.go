package matching

import (
	"context"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// PORTS
// Collaborator interfaces owned by the domain, implemented by the
// infrastructure layer.
// ══════════════════════════════════════════════════════════════════════════════

// CandidateSource is the read-only view of the profile store. The
// eligibility predicate lives in the query: verified, not banned,
// onboarding complete, and not already placed in a group for the target
// week. Implementations must fail with ErrDataUnavailable when the store
// is unreachable - partial pools are never acceptable.
type CandidateSource interface {
	// ListEligible returns the candidate pool for the target week in a
	// stable order.
	ListEligible(ctx context.Context, week WeekID) ([]Candidate, error)
}

// BatchRunRepository persists batch run records.
type BatchRunRepository interface {
	// Create inserts a new run record.
	Create(ctx context.Context, run *BatchRun) error

	// Update persists run counters, heartbeat, and terminal state.
	Update(ctx context.Context, run *BatchRun) error

	// GetByID fetches a run by id. Returns ErrRunNotFound when absent.
	GetByID(ctx context.Context, id string) (*BatchRun, error)

	// GetLatestByWeek fetches the most recent run for a week.
	// Returns ErrRunNotFound when the week has never run.
	GetLatestByWeek(ctx context.Context, week WeekID) (*BatchRun, error)

	// FindBlockingRun returns the run that blocks a new non-forced run
	// for the week (running or non-failed terminal), or ErrRunNotFound.
	FindBlockingRun(ctx context.Context, week WeekID) (*BatchRun, error)

	// FindStuck returns running batches whose heartbeat is older than
	// the cutoff.
	FindStuck(ctx context.Context, cutoff time.Time) ([]*BatchRun, error)
}

// GroupRepository persists finalized groups and their memberships.
type GroupRepository interface {
	// Create inserts the group and its membership rows in one
	// transaction.
	Create(ctx context.Context, group *Group) error

	// GetByBatch lists the groups of one batch run.
	GetByBatch(ctx context.Context, batchID string) ([]*Group, error)
}

// HistoryRepository is the append-only match history store.
type HistoryRepository interface {
	// Record appends the pairwise entries of a finalized group. Called
	// exactly once per group, strictly after its persistence succeeded.
	Record(ctx context.Context, entries []HistoryEntry) error

	// LoadWindow returns every entry whose week falls within the
	// cooldown window ending at the target week.
	LoadWindow(ctx context.Context, target WeekID, cooldownWeeks int) ([]HistoryEntry, error)
}

// RunLock provides the (week)-scoped mutual exclusion required by the
// idempotency contract: two runs for the same week must never execute
// concurrently.
type RunLock interface {
	// Acquire takes the lock for the week. Returns ErrRunInProgress when
	// another holder exists.
	Acquire(ctx context.Context, week WeekID, runID string, ttl time.Duration) error

	// Refresh extends the lock while the run is alive.
	Refresh(ctx context.Context, week WeekID, runID string, ttl time.Duration) error

	// Release drops the lock. Safe to call on a lost lock.
	Release(ctx context.Context, week WeekID, runID string) error
}

// GroupLifecycleNotifier is the persistence/notification boundary: after
// a group is persisted, downstream systems create its chat channel and
// notify members. The engine never formats or sends messages itself.
type GroupLifecycleNotifier interface {
	// GroupFormed hands a persisted group to the downstream boundary.
	GroupFormed(ctx context.Context, group *Group) error
}

// IDGenerator mints identifiers for runs and groups.
type IDGenerator interface {
	GenerateID() string
}
