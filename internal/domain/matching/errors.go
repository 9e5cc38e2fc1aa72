package matching

import (
	"errors"

	"github.com/medcircle-hub/medcircle-match-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrDataUnavailable - the profile store is unreachable. Fatal:
	// the run aborts before any group is written.
	ErrDataUnavailable = errors.New("matching: profile data unavailable")

	// ErrInvalidConfiguration - weights do not sum to 1.0, or the group
	// size bounds are inconsistent. Fatal at startup.
	ErrInvalidConfiguration = errors.New("matching: invalid configuration")

	// ErrAlreadyRun - a non-failed batch run already exists for the target
	// week. Not an error condition for callers; the scheduled trigger is
	// short-circuited with this outcome.
	ErrAlreadyRun = errors.New("matching: batch already run for week")

	// ErrRunInProgress - another run for the same week is currently
	// executing. Concurrent triggers are rejected, never queued.
	ErrRunInProgress = errors.New("matching: run already in progress")

	// ErrPartialPersistence - some (not all) groups failed to persist
	// after the in-run retry.
	ErrPartialPersistence = errors.New("matching: partial persistence failure")

	// ErrWatchdogTimeout - a run exceeded the wall-clock bound and was
	// failed by the watchdog.
	ErrWatchdogTimeout = errors.New("matching: run exceeded wall-clock bound")

	// ErrInvalidCandidate - candidate snapshot failed validation.
	ErrInvalidCandidate = errors.New("matching: invalid candidate")

	// ErrInvalidWeekID - malformed week identifier.
	ErrInvalidWeekID = errors.New("matching: invalid week identifier")

	// ErrRunNotFound - no batch run for the given id or week.
	ErrRunNotFound = errors.New("matching: batch run not found")

	// ErrInsufficientCandidates - fewer candidates than the minimum group
	// size; formation is skipped and everyone stays unplaced.
	ErrInsufficientCandidates = errors.New("matching: insufficient candidates")
)

// Wrapped domain errors with operation context.
var (
	ErrEligibilityUnavailable = shared.WrapError("matching", "ListEligible",
		shared.ErrServiceUnavailable, "profile store unreachable", ErrDataUnavailable)

	ErrRunSupersededForbidden = shared.NewDomainError("batch", "ForceRun",
		shared.ErrForbidden, "forced run requires operator identity")
)
