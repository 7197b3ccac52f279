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

const apiKeyColumns = `id, user_id, name, prefix, key_hash, permissions, last_used, created_at, expires_at, is_active`

// APIKeyRepo provides database operations for API keys.
type APIKeyRepo struct {
	DB *sql.DB
}

// NewAPIKeyRepo creates a new APIKeyRepo.
func NewAPIKeyRepo(db *sql.DB) *APIKeyRepo {
	return &APIKeyRepo{DB: db}
}

// Create inserts a new API key record. The plaintext never reaches this layer;
// callers pass the prefix and hash.
func (r *APIKeyRepo) Create(ctx context.Context, key *model.APIKey) (*model.APIKey, error) {
	var out model.APIKey
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			INSERT INTO api_keys (user_id, name, prefix, key_hash, permissions, expires_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING `+apiKeyColumns,
			key.UserID, key.Name, key.Prefix, key.KeyHash, key.Permissions, key.ExpiresAt,
		)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.APIKey])
		return err
	}); err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return &out, nil
}

// ListByUser returns every key owned by the user, newest first.
func (r *APIKeyRepo) ListByUser(ctx context.Context, userID uint64) ([]model.APIKey, error) {
	return r.list(ctx, `
		SELECT `+apiKeyColumns+` FROM api_keys
		WHERE user_id = $1 ORDER BY created_at DESC`, userID)
}

// GetForUser retrieves one key, scoped to its owner.
func (r *APIKeyRepo) GetForUser(ctx context.Context, id string, userID uint64) (*model.APIKey, error) {
	var out model.APIKey
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			SELECT `+apiKeyColumns+` FROM api_keys
			WHERE id = $1 AND user_id = $2`, id, userID)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.APIKey])
		return err
	}); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("API key not found")
		}
		return nil, apperrors.MapDBError(err)
	}
	return &out, nil
}

// FindActiveByPrefix returns the active keys sharing a plaintext prefix.
// Prefixes are not unique; the caller verifies candidates against the hash.
func (r *APIKeyRepo) FindActiveByPrefix(ctx context.Context, prefix string) ([]model.APIKey, error) {
	return r.list(ctx, `
		SELECT `+apiKeyColumns+` FROM api_keys
		WHERE prefix = $1 AND is_active`, prefix)
}

// Update applies a partial update to a key, scoped to its owner.
func (r *APIKeyRepo) Update(ctx context.Context, id string, userID uint64, req *model.UpdateAPIKeyRequest) (*model.APIKey, error) {
	set := make([]string, 0, 4)
	args := []any{id, userID}
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if req.Name != nil {
		set = append(set, "name = "+arg(strings.TrimSpace(*req.Name)))
	}
	if req.Permissions != nil {
		set = append(set, "permissions = "+arg(req.Permissions))
	}
	if req.ExpiresAt != nil {
		set = append(set, "expires_at = "+arg(*req.ExpiresAt))
	}
	if req.IsActive != nil {
		set = append(set, "is_active = "+arg(*req.IsActive))
	}
	if len(set) == 0 {
		return nil, apperrors.Validationf("at least one field must be updated")
	}

	query := fmt.Sprintf(`
		UPDATE api_keys SET %s
		WHERE id = $1 AND user_id = $2
		RETURNING %s`, strings.Join(set, ", "), apiKeyColumns)

	var out model.APIKey
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.APIKey])
		return err
	}); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("API key not found")
		}
		return nil, apperrors.MapDBError(err)
	}
	return &out, nil
}

// Delete removes a key, scoped to its owner.
func (r *APIKeyRepo) Delete(ctx context.Context, id string, userID uint64) error {
	return execAffectingOne(ctx, r.DB, "API key not found",
		`DELETE FROM api_keys WHERE id = $1 AND user_id = $2`, id, userID)
}

// TouchLastUsed records a successful authentication with the key.
// Best effort; failures are the caller's to log, not to fail the request on.
func (r *APIKeyRepo) TouchLastUsed(ctx context.Context, id string) error {
	return pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		_, err := conn.Exec(ctx, `UPDATE api_keys SET last_used = now() WHERE id = $1`, id)
		return err
	})
}

func (r *APIKeyRepo) list(ctx context.Context, query string, args ...any) ([]model.APIKey, error) {
	var out []model.APIKey
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectRows(rows, pgx.RowToStructByName[model.APIKey])
		return err
	}); err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return out, nil
}
