// Package data contains the Postgres repositories. All repositories share the
// database/sql pool and surface failures through the application error codes.
package data

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/conveyorhq/conveyor/internal/data/pgxutil"
	"github.com/conveyorhq/conveyor/internal/domain/model"
	apperrors "github.com/conveyorhq/conveyor/internal/errors"
)

const userColumns = `id, username, email, password_hash, refresh_token, refresh_token_expiry,
	reset_token, reset_token_expiry, webhook_url, created_at, updated_at`

// UserRepo provides database operations for user accounts.
type UserRepo struct {
	DB *sql.DB
}

// NewUserRepo creates a new UserRepo.
func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{DB: db}
}

// Create inserts a new user.
func (r *UserRepo) Create(ctx context.Context, username string, email *string, passwordHash string) (*model.User, error) {
	var out model.User
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			INSERT INTO users (username, email, password_hash)
			VALUES ($1, $2, $3)
			RETURNING `+userColumns,
			username, email, passwordHash,
		)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.User])
		return err
	}); err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return &out, nil
}

// GetByID retrieves a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (*model.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// GetByUsername retrieves a user by username.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
}

// GetByRefreshToken retrieves the user holding an unexpired refresh token.
func (r *UserRepo) GetByRefreshToken(ctx context.Context, token string) (*model.User, error) {
	return r.getOne(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE refresh_token = $1 AND refresh_token_expiry > now()`, token)
}

// GetByResetToken retrieves the user holding an unexpired reset token.
func (r *UserRepo) GetByResetToken(ctx context.Context, token string) (*model.User, error) {
	return r.getOne(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE reset_token = $1 AND reset_token_expiry > now()`, token)
}

// SetRefreshToken stores or clears a user's refresh token.
func (r *UserRepo) SetRefreshToken(ctx context.Context, id uint64, token *string, expiry *time.Time) error {
	return r.exec(ctx, `
		UPDATE users SET refresh_token = $2, refresh_token_expiry = $3, updated_at = now()
		WHERE id = $1`, id, token, expiry)
}

// SetResetToken stores a password reset token.
func (r *UserRepo) SetResetToken(ctx context.Context, id uint64, token string, expiry time.Time) error {
	return r.exec(ctx, `
		UPDATE users SET reset_token = $2, reset_token_expiry = $3, updated_at = now()
		WHERE id = $1`, id, token, expiry)
}

// UpdatePassword replaces the password hash and invalidates every issued
// refresh and reset token.
func (r *UserRepo) UpdatePassword(ctx context.Context, id uint64, passwordHash string) error {
	return r.exec(ctx, `
		UPDATE users SET
			password_hash = $2,
			refresh_token = NULL, refresh_token_expiry = NULL,
			reset_token = NULL, reset_token_expiry = NULL,
			updated_at = now()
		WHERE id = $1`, id, passwordHash)
}

// UpdateWebhookURL sets or clears the user's legacy webhook URL.
func (r *UserRepo) UpdateWebhookURL(ctx context.Context, id uint64, url *string) error {
	return r.exec(ctx, `
		UPDATE users SET webhook_url = $2, updated_at = now()
		WHERE id = $1`, id, url)
}

func (r *UserRepo) getOne(ctx context.Context, query string, args ...any) (*model.User, error) {
	var out model.User
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.User])
		return err
	}); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("user not found")
		}
		return nil, apperrors.MapDBError(err)
	}
	return &out, nil
}

func (r *UserRepo) exec(ctx context.Context, query string, args ...any) error {
	return execAffectingOne(ctx, r.DB, "user not found", query, args...)
}

// execAffectingOne runs a statement that must touch exactly one row; zero rows
// becomes a not-found error with the given message.
func execAffectingOne(ctx context.Context, db *sql.DB, missing, query string, args ...any) error {
	var affected int64
	if err := pgxutil.WithPgxConn(ctx, db, func(conn *pgx.Conn) error {
		tag, err := conn.Exec(ctx, query, args...)
		if err != nil {
			return err
		}
		affected = tag.RowsAffected()
		return nil
	}); err != nil {
		return apperrors.MapDBError(err)
	}
	if affected == 0 {
		return apperrors.NotFound(missing)
	}
	return nil
}
