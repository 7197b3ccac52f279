package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/conveyorhq/conveyor/internal/data/pgxutil"
	"github.com/conveyorhq/conveyor/internal/domain/model"
	apperrors "github.com/conveyorhq/conveyor/internal/errors"
)

const webhookColumns = `id, user_id, url, event_type, description, active, created_at, updated_at`

// WebhookRepo provides database operations for webhook registrations.
type WebhookRepo struct {
	DB *sql.DB
}

// NewWebhookRepo creates a new WebhookRepo.
func NewWebhookRepo(db *sql.DB) *WebhookRepo {
	return &WebhookRepo{DB: db}
}

// Create registers a webhook for a user.
func (r *WebhookRepo) Create(ctx context.Context, userID uint64, req *model.CreateWebhookRequest) (*model.Webhook, error) {
	active := true
	if req.Active != nil {
		active = *req.Active
	}

	var out model.Webhook
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			INSERT INTO webhooks (user_id, url, event_type, description, active)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING `+webhookColumns,
			userID, req.URL, string(req.EventType), req.Description, active,
		)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Webhook])
		return err
	}); err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return &out, nil
}

// ListByUser returns a user's webhooks, newest first.
func (r *WebhookRepo) ListByUser(ctx context.Context, userID uint64) ([]model.Webhook, error) {
	return r.list(ctx, `
		SELECT `+webhookColumns+` FROM webhooks
		WHERE user_id = $1 ORDER BY created_at DESC`, userID)
}

// GetForUser retrieves one webhook, scoped to its owner.
func (r *WebhookRepo) GetForUser(ctx context.Context, id string, userID uint64) (*model.Webhook, error) {
	var out model.Webhook
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			SELECT `+webhookColumns+` FROM webhooks
			WHERE id = $1 AND user_id = $2`, id, userID)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Webhook])
		return err
	}); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("webhook not found")
		}
		return nil, apperrors.MapDBError(err)
	}
	return &out, nil
}

// ListActiveForEvent returns every active webhook that should receive events
// of the given type for the given user. Subscriptions to "all" always match.
func (r *WebhookRepo) ListActiveForEvent(ctx context.Context, userID uint64, event model.WebhookEventType) ([]model.Webhook, error) {
	return r.list(ctx, `
		SELECT `+webhookColumns+` FROM webhooks
		WHERE user_id = $1 AND active AND event_type IN ($2, 'all')`,
		userID, string(event))
}

// Update applies a partial update to a webhook, scoped to its owner.
func (r *WebhookRepo) Update(ctx context.Context, id string, userID uint64, req *model.UpdateWebhookRequest) (*model.Webhook, error) {
	set := []string{"updated_at = now()"}
	args := []any{id, userID}
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if req.URL != nil {
		set = append(set, "url = "+arg(strings.TrimSpace(*req.URL)))
	}
	if req.EventType != nil {
		set = append(set, "event_type = "+arg(string(*req.EventType)))
	}
	if req.Description != nil {
		set = append(set, "description = "+arg(*req.Description))
	}
	if req.Active != nil {
		set = append(set, "active = "+arg(*req.Active))
	}

	query := fmt.Sprintf(`
		UPDATE webhooks SET %s
		WHERE id = $1 AND user_id = $2
		RETURNING %s`, strings.Join(set, ", "), webhookColumns)

	var out model.Webhook
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Webhook])
		return err
	}); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("webhook not found")
		}
		return nil, apperrors.MapDBError(err)
	}
	return &out, nil
}

// Delete removes a webhook, scoped to its owner.
func (r *WebhookRepo) Delete(ctx context.Context, id string, userID uint64) error {
	return execAffectingOne(ctx, r.DB, "webhook not found",
		`DELETE FROM webhooks WHERE id = $1 AND user_id = $2`, id, userID)
}

// CountAll tallies registered webhooks, for dashboard stats.
func (r *WebhookRepo) CountAll(ctx context.Context) (total, active int64, err error) {
	err = pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		return conn.QueryRow(ctx,
			`SELECT count(*), count(*) FILTER (WHERE active) FROM webhooks`,
		).Scan(&total, &active)
	})
	if err != nil {
		return 0, 0, apperrors.MapDBError(err)
	}
	return total, active, nil
}

func (r *WebhookRepo) list(ctx context.Context, query string, args ...any) ([]model.Webhook, error) {
	var out []model.Webhook
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectRows(rows, pgx.RowToStructByName[model.Webhook])
		return err
	}); err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return out, nil
}
