package data

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/conveyorhq/conveyor/internal/errors"
	"github.com/conveyorhq/conveyor/internal/testutil"
)

func TestUserRepoLifecycle(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewUserRepo(db)
		ctx := context.Background()

		user, err := repo.Create(ctx, "alice", testutil.StringPtr("alice@example.com"), "hash-1")
		require.NoError(t, err)
		assert.NotZero(t, user.ID)
		assert.Equal(t, "alice", user.Username)

		// Duplicate usernames violate the unique constraint.
		_, err = repo.Create(ctx, "alice", nil, "hash-2")
		assert.True(t, apperrors.IsConflict(err))

		byName, err := repo.GetByUsername(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, user.ID, byName.ID)

		_, err = repo.GetByUsername(ctx, "nobody")
		assert.True(t, apperrors.IsNotFound(err))
	})
}

func TestUserRepoRefreshTokens(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewUserRepo(db)
		ctx := context.Background()

		user, err := repo.Create(ctx, "bob", nil, "hash-1")
		require.NoError(t, err)

		expiry := time.Now().Add(time.Hour)
		require.NoError(t, repo.SetRefreshToken(ctx, user.ID, testutil.StringPtr("rt-1"), testutil.TimePtr(expiry)))

		byToken, err := repo.GetByRefreshToken(ctx, "rt-1")
		require.NoError(t, err)
		assert.Equal(t, user.ID, byToken.ID)

		// Clearing the token revokes the lookup.
		require.NoError(t, repo.SetRefreshToken(ctx, user.ID, nil, nil))
		_, err = repo.GetByRefreshToken(ctx, "rt-1")
		assert.True(t, apperrors.IsNotFound(err))

		// Expired tokens never match.
		past := time.Now().Add(-time.Minute)
		require.NoError(t, repo.SetRefreshToken(ctx, user.ID, testutil.StringPtr("rt-2"), testutil.TimePtr(past)))
		_, err = repo.GetByRefreshToken(ctx, "rt-2")
		assert.True(t, apperrors.IsNotFound(err))
	})
}

func TestUserRepoPasswordUpdateRevokesTokens(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewUserRepo(db)
		ctx := context.Background()

		user, err := repo.Create(ctx, "carol", nil, "hash-1")
		require.NoError(t, err)

		expiry := time.Now().Add(time.Hour)
		require.NoError(t, repo.SetRefreshToken(ctx, user.ID, testutil.StringPtr("rt-1"), testutil.TimePtr(expiry)))
		require.NoError(t, repo.SetResetToken(ctx, user.ID, "reset-1", expiry))

		require.NoError(t, repo.UpdatePassword(ctx, user.ID, "hash-2"))

		_, err = repo.GetByRefreshToken(ctx, "rt-1")
		assert.True(t, apperrors.IsNotFound(err))
		_, err = repo.GetByResetToken(ctx, "reset-1")
		assert.True(t, apperrors.IsNotFound(err))

		updated, err := repo.GetByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, "hash-2", updated.PasswordHash)
	})
}

func TestUserRepoWebhookURL(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewUserRepo(db)
		ctx := context.Background()

		user, err := repo.Create(ctx, "dave", nil, "hash-1")
		require.NoError(t, err)

		require.NoError(t, repo.UpdateWebhookURL(ctx, user.ID, testutil.StringPtr("https://example.com/hook")))
		got, err := repo.GetByID(ctx, user.ID)
		require.NoError(t, err)
		require.NotNil(t, got.WebhookURL)
		assert.Equal(t, "https://example.com/hook", *got.WebhookURL)

		require.NoError(t, repo.UpdateWebhookURL(ctx, user.ID, nil))
		got, err = repo.GetByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Nil(t, got.WebhookURL)

		// Updates against missing users report not found.
		err = repo.UpdateWebhookURL(ctx, user.ID+100, nil)
		assert.True(t, apperrors.IsNotFound(err))
	})
}
