package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/medcircle-hub/medcircle-match-engine/internal/domain/matching"
)

// ══════════════════════════════════════════════════════════════════════════════
// HISTORY REPOSITORY
// Append-only pair history. Inserts are idempotent per (pair, week) so
// the orchestrator's persistence retry can never double-record a group.
// ══════════════════════════════════════════════════════════════════════════════

// HistoryRepository implements matching.HistoryRepository.
type HistoryRepository struct {
	conn *Connection
}

// NewHistoryRepository creates a new HistoryRepository.
func NewHistoryRepository(conn *Connection) *HistoryRepository {
	return &HistoryRepository{conn: conn}
}

// Record appends the pairwise entries of a finalized group.
func (r *HistoryRepository) Record(ctx context.Context, entries []matching.HistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}

	return r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		for _, e := range entries {
			_, err := tx.Exec(ctx, `
				INSERT INTO match_history (pair_lo, pair_hi, batch_id, group_id, week, grouped_at)
				VALUES ($1, $2, $3, $4, $5, $6)
				ON CONFLICT (pair_lo, pair_hi, week) DO NOTHING
			`, string(e.Pair.Lo), string(e.Pair.Hi), e.BatchID, e.GroupID, string(e.Week), e.GroupedAt)
			if err != nil {
				return fmt.Errorf("history insert: %w", err)
			}
		}
		return nil
	})
}

// LoadWindow returns every entry whose week falls within the cooldown
// window ending at the target week. The window's week identifiers are
// enumerated here rather than compared in SQL: lexicographic string
// comparison is only chronological within one ISO year.
func (r *HistoryRepository) LoadWindow(ctx context.Context, target matching.WeekID, cooldownWeeks int) ([]matching.HistoryEntry, error) {
	if cooldownWeeks <= 0 {
		return nil, nil
	}

	weeks, err := windowWeeks(target, cooldownWeeks)
	if err != nil {
		return nil, err
	}

	rows, err := r.conn.Query(ctx, `
		SELECT pair_lo, pair_hi, batch_id, group_id, week, grouped_at
		FROM match_history
		WHERE week = ANY($1)
		ORDER BY week, id
	`, weeks)
	if err != nil {
		return nil, fmt.Errorf("loading history window: %w", err)
	}
	defer rows.Close()

	var entries []matching.HistoryEntry
	for rows.Next() {
		var (
			e      matching.HistoryEntry
			lo, hi string
			week   string
		)
		if err := rows.Scan(&lo, &hi, &e.BatchID, &e.GroupID, &week, &e.GroupedAt); err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}
		e.Pair = matching.PairKey{Lo: matching.CandidateID(lo), Hi: matching.CandidateID(hi)}
		e.Week = matching.WeekID(week)
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// windowWeeks enumerates the target week and the cooldownWeeks weeks
// before it. Both ends are inclusive: an entry from exactly
// cooldownWeeks ago still excludes its pair for the target week.
func windowWeeks(target matching.WeekID, cooldownWeeks int) ([]string, error) {
	start, err := target.Start()
	if err != nil {
		return nil, err
	}

	weeks := make([]string, 0, cooldownWeeks+1)
	for i := 0; i <= cooldownWeeks; i++ {
		weeks = append(weeks, string(matching.WeekOf(start.AddDate(0, 0, -7*i))))
	}
	return weeks, nil
}
