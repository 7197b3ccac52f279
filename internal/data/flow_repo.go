package data

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/conveyorhq/conveyor/internal/data/pgxutil"
	"github.com/conveyorhq/conveyor/internal/domain/model"
	apperrors "github.com/conveyorhq/conveyor/internal/errors"
)

const flowColumns = `flow_id, flowname, name, queue_name, user_id, root_job_id, status,
	job_structure, progress, result, error, created_at, updated_at, started_at, completed_at`

// FlowRepo provides database operations for flows. The job structure and the
// progress map are stored as JSONB and travel through the pgx JSON codec.
type FlowRepo struct {
	DB *sql.DB
}

// NewFlowRepo creates a new FlowRepo.
func NewFlowRepo(db *sql.DB) *FlowRepo {
	return &FlowRepo{DB: db}
}

// Create inserts a new flow row in its initial state.
func (r *FlowRepo) Create(ctx context.Context, flow *model.Flow) (*model.Flow, error) {
	var out model.Flow
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			INSERT INTO flows (flow_id, flowname, name, queue_name, user_id, status, job_structure, progress)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING `+flowColumns,
			flow.FlowID, flow.Flowname, flow.Name, flow.QueueName, flow.UserID,
			string(flow.Status), flow.JobStructure, flow.Progress,
		)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Flow])
		return err
	}); err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return &out, nil
}

// GetByID retrieves a flow regardless of owner. Internal workers use this;
// the HTTP surface goes through GetForUser.
func (r *FlowRepo) GetByID(ctx context.Context, flowID string) (*model.Flow, error) {
	return r.getOne(ctx, `SELECT `+flowColumns+` FROM flows WHERE flow_id = $1`, flowID)
}

// GetForUser retrieves a flow scoped to its owner.
func (r *FlowRepo) GetForUser(ctx context.Context, flowID string, userID uint64) (*model.Flow, error) {
	return r.getOne(ctx, `
		SELECT `+flowColumns+` FROM flows
		WHERE flow_id = $1 AND user_id = $2`, flowID, userID)
}

// ListByUser returns a page of the user's flows, newest first.
func (r *FlowRepo) ListByUser(ctx context.Context, userID uint64, limit, offset int) ([]model.Flow, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	var out []model.Flow
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			SELECT `+flowColumns+` FROM flows
			WHERE user_id = $1
			ORDER BY created_at DESC
			LIMIT $2 OFFSET $3`, userID, limit, offset)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectRows(rows, pgx.RowToStructByName[model.Flow])
		return err
	}); err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return out, nil
}

// CountByUser tallies the user's flows, for pagination.
func (r *FlowRepo) CountByUser(ctx context.Context, userID uint64) (int64, error) {
	var total int64
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		return conn.QueryRow(ctx, `SELECT count(*) FROM flows WHERE user_id = $1`, userID).Scan(&total)
	}); err != nil {
		return 0, apperrors.MapDBError(err)
	}
	return total, nil
}

// SetRootJob records the broker id of the submitted root and moves the flow
// from pending to running.
func (r *FlowRepo) SetRootJob(ctx context.Context, flowID, rootJobID string, progress model.FlowProgress) error {
	return execAffectingOne(ctx, r.DB, "flow not found", `
		UPDATE flows SET
			root_job_id = $2,
			status = $3,
			progress = $4,
			started_at = now(),
			updated_at = now()
		WHERE flow_id = $1`,
		flowID, rootJobID, string(model.FlowStatusRunning), progress)
}

// SaveProgress persists a recomputed progress snapshot, the status derived
// from it, and optionally the flow result, in a single statement. A terminal
// status also stamps completed_at once; a nil result leaves the column alone.
func (r *FlowRepo) SaveProgress(ctx context.Context, flowID string, progress model.FlowProgress, status model.FlowStatus, errMsg string, result any) error {
	return execAffectingOne(ctx, r.DB, "flow not found", `
		UPDATE flows SET
			progress = $2,
			status = $3,
			error = $4,
			result = COALESCE($5, result),
			completed_at = CASE
				WHEN $3 IN ('completed', 'failed') AND completed_at IS NULL THEN now()
				ELSE completed_at
			END,
			updated_at = now()
		WHERE flow_id = $1`,
		flowID, progress, string(status), errMsg, result)
}

// Delete removes a flow row, scoped to its owner. Broker-side job cleanup is
// the service's responsibility.
func (r *FlowRepo) Delete(ctx context.Context, flowID string, userID uint64) error {
	return execAffectingOne(ctx, r.DB, "flow not found",
		`DELETE FROM flows WHERE flow_id = $1 AND user_id = $2`, flowID, userID)
}

// CountByStatus tallies flows per status, for dashboard stats.
func (r *FlowRepo) CountByStatus(ctx context.Context) (map[model.FlowStatus]int64, error) {
	counts := make(map[model.FlowStatus]int64, 4)
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `SELECT status, count(*) FROM flows GROUP BY status`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var status string
			var n int64
			if err := rows.Scan(&status, &n); err != nil {
				return err
			}
			counts[model.FlowStatus(status)] = n
		}
		return rows.Err()
	}); err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return counts, nil
}

func (r *FlowRepo) getOne(ctx context.Context, query string, args ...any) (*model.Flow, error) {
	var out model.Flow
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Flow])
		return err
	}); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("flow not found")
		}
		return nil, apperrors.MapDBError(err)
	}
	return &out, nil
}
