package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/medcircle-hub/medcircle-match-engine/internal/domain/matching"
)

// ══════════════════════════════════════════════════════════════════════════════
// BATCH RUN REPOSITORY
// One row per execution. The partial unique index on (week) WHERE
// status = 'running' backs the idempotency guard at the storage level:
// even if two processes race past the application check, the second
// insert fails.
// ══════════════════════════════════════════════════════════════════════════════

// BatchRepository implements matching.BatchRunRepository.
type BatchRepository struct {
	conn *Connection
}

// NewBatchRepository creates a new BatchRepository.
func NewBatchRepository(conn *Connection) *BatchRepository {
	return &BatchRepository{conn: conn}
}

const batchRunColumns = `
	id, week, algorithm_version, trigger_kind, operator_id, status,
	eligible_count, groups_formed, groups_persisted, users_placed, users_unplaced,
	failure_reason, started_at, heartbeat_at, completed_at
`

// Create inserts a new run record.
func (r *BatchRepository) Create(ctx context.Context, run *matching.BatchRun) error {
	const query = `
		INSERT INTO batch_runs (
			id, week, algorithm_version, trigger_kind, operator_id, status,
			eligible_count, groups_formed, groups_persisted, users_placed, users_unplaced,
			failure_reason, started_at, heartbeat_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err := r.conn.Exec(ctx, query,
		run.ID, string(run.Week), run.AlgorithmVersion, string(run.Trigger), run.OperatorID,
		string(run.Status), run.EligibleCount, run.GroupsFormed, run.GroupsPersisted,
		run.UsersPlaced, run.UsersUnplaced, run.FailureReason,
		run.StartedAt, run.HeartbeatAt, run.CompletedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return fmt.Errorf("batch run insert: %w", matching.ErrRunInProgress)
		}
		return fmt.Errorf("batch run insert: %w", err)
	}
	return nil
}

// Update persists run counters, heartbeat, and terminal state.
func (r *BatchRepository) Update(ctx context.Context, run *matching.BatchRun) error {
	const query = `
		UPDATE batch_runs SET
			status = $2,
			eligible_count = $3,
			groups_formed = $4,
			groups_persisted = $5,
			users_placed = $6,
			users_unplaced = $7,
			failure_reason = $8,
			heartbeat_at = $9,
			completed_at = $10
		WHERE id = $1
	`

	tag, err := r.conn.Exec(ctx, query,
		run.ID, string(run.Status),
		run.EligibleCount, run.GroupsFormed, run.GroupsPersisted,
		run.UsersPlaced, run.UsersUnplaced, run.FailureReason,
		run.HeartbeatAt, run.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("batch run update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return matching.ErrRunNotFound
	}
	return nil
}

// GetByID fetches a run by id.
func (r *BatchRepository) GetByID(ctx context.Context, id string) (*matching.BatchRun, error) {
	query := fmt.Sprintf("SELECT %s FROM batch_runs WHERE id = $1", batchRunColumns)
	return r.scanRun(r.conn.QueryRow(ctx, query, id))
}

// GetLatestByWeek fetches the most recent run for a week.
func (r *BatchRepository) GetLatestByWeek(ctx context.Context, week matching.WeekID) (*matching.BatchRun, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM batch_runs
		WHERE week = $1
		ORDER BY started_at DESC
		LIMIT 1
	`, batchRunColumns)
	return r.scanRun(r.conn.QueryRow(ctx, query, string(week)))
}

// FindBlockingRun returns the run that blocks a new non-forced run for
// the week: running, or terminal and not failed.
func (r *BatchRepository) FindBlockingRun(ctx context.Context, week matching.WeekID) (*matching.BatchRun, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM batch_runs
		WHERE week = $1 AND status IN ('running', 'completed', 'partially_completed')
		ORDER BY started_at DESC
		LIMIT 1
	`, batchRunColumns)
	return r.scanRun(r.conn.QueryRow(ctx, query, string(week)))
}

// FindStuck returns running batches whose heartbeat is older than the
// cutoff.
func (r *BatchRepository) FindStuck(ctx context.Context, cutoff time.Time) ([]*matching.BatchRun, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM batch_runs
		WHERE status = 'running' AND heartbeat_at < $1
		ORDER BY started_at
	`, batchRunColumns)

	rows, err := r.conn.Query(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("finding stuck runs: %w", err)
	}
	defer rows.Close()

	var stuck []*matching.BatchRun
	for rows.Next() {
		run, err := r.scanRunFromRows(rows)
		if err != nil {
			return nil, err
		}
		stuck = append(stuck, run)
	}
	return stuck, rows.Err()
}

func (r *BatchRepository) scanRun(row pgx.Row) (*matching.BatchRun, error) {
	run, err := scanBatchRun(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, matching.ErrRunNotFound
		}
		return nil, fmt.Errorf("scanning batch run: %w", err)
	}
	return run, nil
}

func (r *BatchRepository) scanRunFromRows(rows pgx.Rows) (*matching.BatchRun, error) {
	run, err := scanBatchRun(rows)
	if err != nil {
		return nil, fmt.Errorf("scanning batch run: %w", err)
	}
	return run, nil
}

func scanBatchRun(row pgx.Row) (*matching.BatchRun, error) {
	var (
		run     matching.BatchRun
		week    string
		trigger string
		status  string
	)

	err := row.Scan(
		&run.ID, &week, &run.AlgorithmVersion, &trigger, &run.OperatorID, &status,
		&run.EligibleCount, &run.GroupsFormed, &run.GroupsPersisted,
		&run.UsersPlaced, &run.UsersUnplaced,
		&run.FailureReason, &run.StartedAt, &run.HeartbeatAt, &run.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	run.Week = matching.WeekID(week)
	run.Trigger = matching.TriggerKind(trigger)
	run.Status = matching.RunStatus(status)
	return &run, nil
}
