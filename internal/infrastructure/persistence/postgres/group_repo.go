package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/medcircle-hub/medcircle-match-engine/internal/domain/matching"
)

// ══════════════════════════════════════════════════════════════════════════════
// GROUP REPOSITORY
// Group row plus membership rows written in one transaction, so a group
// either exists completely or not at all. The one_group_per_week unique
// constraint on members enforces disjointness at the storage level.
// ══════════════════════════════════════════════════════════════════════════════

// GroupRepository implements matching.GroupRepository.
type GroupRepository struct {
	conn *Connection
}

// NewGroupRepository creates a new GroupRepository.
func NewGroupRepository(conn *Connection) *GroupRepository {
	return &GroupRepository{conn: conn}
}

// Create inserts the group and its membership rows atomically.
func (r *GroupRepository) Create(ctx context.Context, group *matching.Group) error {
	return r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		// The week is owned by the batch run record; resolving it here
		// keeps the two tables consistent by construction.
		var week string
		err := tx.QueryRow(ctx,
			"SELECT week FROM batch_runs WHERE id = $1", group.BatchID,
		).Scan(&week)
		if err != nil {
			if IsNoRows(err) {
				return fmt.Errorf("group insert: %w", matching.ErrRunNotFound)
			}
			return fmt.Errorf("group insert: resolving batch week: %w", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO match_groups (id, batch_id, week, average_score, algorithm_version)
			VALUES ($1, $2, $3, $4, $5)
		`, group.ID, group.BatchID, week, int(group.AverageScore), group.AlgorithmVersion)
		if err != nil {
			return fmt.Errorf("group insert: %w", err)
		}

		for position, member := range group.Members {
			_, err = tx.Exec(ctx, `
				INSERT INTO match_group_members (group_id, candidate_id, week, position)
				VALUES ($1, $2, $3, $4)
			`, group.ID, string(member), week, position)
			if err != nil {
				return fmt.Errorf("group member insert: %w", err)
			}
		}

		return nil
	})
}

// GetByBatch lists the groups of one batch run, members in formation
// order.
func (r *GroupRepository) GetByBatch(ctx context.Context, batchID string) ([]*matching.Group, error) {
	const query = `
		SELECT g.id, g.batch_id, g.average_score, g.algorithm_version, m.candidate_id
		FROM match_groups g
		JOIN match_group_members m ON m.group_id = g.id
		WHERE g.batch_id = $1
		ORDER BY g.id, m.position
	`

	rows, err := r.conn.Query(ctx, query, batchID)
	if err != nil {
		return nil, fmt.Errorf("listing groups by batch: %w", err)
	}
	defer rows.Close()

	var (
		groups  []*matching.Group
		current *matching.Group
	)
	for rows.Next() {
		var (
			groupID  string
			batch    string
			avg      int
			version  string
			memberID string
		)
		if err := rows.Scan(&groupID, &batch, &avg, &version, &memberID); err != nil {
			return nil, fmt.Errorf("scanning group row: %w", err)
		}

		if current == nil || current.ID != groupID {
			current = &matching.Group{
				ID:               groupID,
				BatchID:          batch,
				AverageScore:     matching.Score(avg),
				AlgorithmVersion: version,
			}
			groups = append(groups, current)
		}
		current.Members = append(current.Members, matching.CandidateID(memberID))
	}

	return groups, rows.Err()
}
