// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"errors"
	"time"

	"github.com/medcircle-hub/medcircle-match-engine/internal/domain/matching"
	"github.com/medcircle-hub/medcircle-match-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET RUN SUMMARY QUERY
// Read model for operators: what happened in a batch run. Addressable by
// run ID or by week (latest run for that week). Terminal runs are
// immutable, so their summaries are cacheable until the week rolls over.
// ══════════════════════════════════════════════════════════════════════════════

// SummaryCache caches summaries of terminal runs. Implementations may be
// a no-op; the query works without one.
type SummaryCache interface {
	// GetSummary returns the cached summary for a run, or ErrNotFound.
	GetSummary(ctx context.Context, runID string) (*RunSummaryDTO, error)

	// SetSummary caches a summary.
	SetSummary(ctx context.Context, summary *RunSummaryDTO) error
}

// GetRunSummaryQuery addresses one run summary.
type GetRunSummaryQuery struct {
	// RunID - direct addressing. Takes precedence over Week.
	RunID string

	// Week - latest run for the week. Empty means the current week when
	// RunID is not set.
	Week matching.WeekID

	// IncludeGroups - include the per-group detail.
	IncludeGroups bool
}

// Validate checks and defaults the query parameters.
func (q *GetRunSummaryQuery) Validate() error {
	if q.RunID != "" {
		return nil
	}
	if q.Week == "" {
		q.Week = matching.WeekOf(time.Now().UTC())
		return nil
	}
	if !q.Week.IsValid() {
		return matching.ErrInvalidWeekID
	}
	return nil
}

// GroupSummaryDTO is one group in the run summary.
type GroupSummaryDTO struct {
	// GroupID - group identifier.
	GroupID string `json:"group_id"`

	// Members - candidate IDs in formation order.
	Members []string `json:"members"`

	// AverageScore - mean pairwise compatibility (0-100).
	AverageScore int `json:"average_score"`
}

// RunSummaryDTO is the operator-facing view of one batch run.
type RunSummaryDTO struct {
	// RunID - run identifier.
	RunID string `json:"run_id"`

	// Week - target week.
	Week string `json:"week"`

	// Status - running, completed, partially_completed, or failed.
	Status string `json:"status"`

	// Trigger - scheduled or forced.
	Trigger string `json:"trigger"`

	// OperatorID - set for forced runs.
	OperatorID string `json:"operator_id,omitempty"`

	// AlgorithmVersion - scorer version the run used.
	AlgorithmVersion string `json:"algorithm_version"`

	// EligibleCount - candidate pool size.
	EligibleCount int `json:"eligible_count"`

	// GroupsFormed - groups the formation stage produced.
	GroupsFormed int `json:"groups_formed"`

	// GroupsPersisted - groups that reached storage.
	GroupsPersisted int `json:"groups_persisted"`

	// UsersPlaced - candidates in persisted groups.
	UsersPlaced int `json:"users_placed"`

	// UsersUnplaced - candidates left over, including members of groups
	// that failed to persist.
	UsersUnplaced int `json:"users_unplaced"`

	// FailureReason - set for failed and partially completed runs.
	FailureReason string `json:"failure_reason,omitempty"`

	// StartedAt / CompletedAt - run timestamps.
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Groups - per-group detail when requested.
	Groups []GroupSummaryDTO `json:"groups,omitempty"`

	// GeneratedAt - when this summary was built.
	GeneratedAt time.Time `json:"generated_at"`
}

// GetRunSummaryHandler handles run summary queries.
type GetRunSummaryHandler struct {
	batches matching.BatchRunRepository
	groups  matching.GroupRepository
	cache   SummaryCache
}

// NewGetRunSummaryHandler creates a new handler. The cache may be nil.
func NewGetRunSummaryHandler(
	batches matching.BatchRunRepository,
	groups matching.GroupRepository,
	cache SummaryCache,
) *GetRunSummaryHandler {
	return &GetRunSummaryHandler{
		batches: batches,
		groups:  groups,
		cache:   cache,
	}
}

// Handle executes the query.
func (h *GetRunSummaryHandler) Handle(ctx context.Context, query GetRunSummaryQuery) (*RunSummaryDTO, error) {
	if err := query.Validate(); err != nil {
		return nil, shared.WrapError("query", "GetRunSummary", shared.ErrValidation, err.Error(), err)
	}

	run, err := h.resolveRun(ctx, query)
	if err != nil {
		if errors.Is(err, matching.ErrRunNotFound) {
			return nil, shared.WrapError("query", "GetRunSummary", shared.ErrNotFound, "run not found", err)
		}
		return nil, err
	}

	// Terminal summaries never change; serve from cache when possible.
	// Group detail is only cached together with the summary, so a
	// detail request bypasses a detail-less cache entry.
	if h.cache != nil && run.Status.IsTerminal() {
		if cached, err := h.cache.GetSummary(ctx, run.ID); err == nil && cached != nil {
			if !query.IncludeGroups || len(cached.Groups) > 0 {
				return cached, nil
			}
		}
	}

	summary := h.buildSummary(run)

	if query.IncludeGroups {
		groups, err := h.groups.GetByBatch(ctx, run.ID)
		if err != nil {
			return nil, shared.WrapError("query", "GetRunSummary", shared.ErrServiceUnavailable, "loading groups failed", err)
		}
		summary.Groups = buildGroupSummaries(groups)
	}

	if h.cache != nil && run.Status.IsTerminal() {
		// Best effort; a cold cache just means the next read hits storage.
		_ = h.cache.SetSummary(ctx, summary)
	}

	return summary, nil
}

// resolveRun finds the run by ID, or the latest run for the week.
func (h *GetRunSummaryHandler) resolveRun(ctx context.Context, query GetRunSummaryQuery) (*matching.BatchRun, error) {
	if query.RunID != "" {
		return h.batches.GetByID(ctx, query.RunID)
	}
	return h.batches.GetLatestByWeek(ctx, query.Week)
}

// buildSummary maps a run record to its DTO.
func (h *GetRunSummaryHandler) buildSummary(run *matching.BatchRun) *RunSummaryDTO {
	return &RunSummaryDTO{
		RunID:            run.ID,
		Week:             string(run.Week),
		Status:           string(run.Status),
		Trigger:          string(run.Trigger),
		OperatorID:       run.OperatorID,
		AlgorithmVersion: run.AlgorithmVersion,
		EligibleCount:    run.EligibleCount,
		GroupsFormed:     run.GroupsFormed,
		GroupsPersisted:  run.GroupsPersisted,
		UsersPlaced:      run.UsersPlaced,
		UsersUnplaced:    run.UsersUnplaced,
		FailureReason:    run.FailureReason,
		StartedAt:        run.StartedAt,
		CompletedAt:      run.CompletedAt,
		GeneratedAt:      time.Now().UTC(),
	}
}

func buildGroupSummaries(groups []*matching.Group) []GroupSummaryDTO {
	out := make([]GroupSummaryDTO, 0, len(groups))
	for _, g := range groups {
		members := make([]string, 0, len(g.Members))
		for _, m := range g.Members {
			members = append(members, string(m))
		}
		out = append(out, GroupSummaryDTO{
			GroupID:      g.ID,
			Members:      members,
			AverageScore: int(g.AverageScore),
		})
	}
	return out
}
