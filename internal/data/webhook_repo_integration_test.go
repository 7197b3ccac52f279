package data

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conveyorhq/conveyor/internal/domain/model"
	apperrors "github.com/conveyorhq/conveyor/internal/errors"
	"github.com/conveyorhq/conveyor/internal/testutil"
)

func seedWebhookUser(t *testing.T, db *sql.DB, username string) uint64 {
	t.Helper()
	user, err := NewUserRepo(db).Create(context.Background(), username, nil, "hash")
	require.NoError(t, err)
	return user.ID
}

func TestWebhookRepoCreateAndUniqueness(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewWebhookRepo(db)
		ctx := context.Background()
		userID := seedWebhookUser(t, db, "hookowner")

		hook, err := repo.Create(ctx, userID, &model.CreateWebhookRequest{
			URL:       "https://example.com/hook",
			EventType: model.WebhookEventCompleted,
		})
		require.NoError(t, err)
		assert.True(t, hook.Active)

		// Same (user, url, eventType) is a conflict.
		_, err = repo.Create(ctx, userID, &model.CreateWebhookRequest{
			URL:       "https://example.com/hook",
			EventType: model.WebhookEventCompleted,
		})
		assert.True(t, apperrors.IsConflict(err))

		// Same url with a different event type is fine.
		_, err = repo.Create(ctx, userID, &model.CreateWebhookRequest{
			URL:       "https://example.com/hook",
			EventType: model.WebhookEventFailed,
		})
		require.NoError(t, err)
	})
}

func TestWebhookRepoListActiveForEvent(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewWebhookRepo(db)
		ctx := context.Background()
		userID := seedWebhookUser(t, db, "eventowner")
		inactive := false

		mustCreate := func(url string, event model.WebhookEventType, active *bool) {
			t.Helper()
			_, err := repo.Create(ctx, userID, &model.CreateWebhookRequest{
				URL: url, EventType: event, Active: active,
			})
			require.NoError(t, err)
		}

		mustCreate("https://example.com/completed", model.WebhookEventCompleted, nil)
		mustCreate("https://example.com/all", model.WebhookEventAll, nil)
		mustCreate("https://example.com/failed", model.WebhookEventFailed, nil)
		mustCreate("https://example.com/off", model.WebhookEventCompleted, &inactive)

		hooks, err := repo.ListActiveForEvent(ctx, userID, model.WebhookEventCompleted)
		require.NoError(t, err)
		urls := make([]string, 0, len(hooks))
		for _, h := range hooks {
			urls = append(urls, h.URL)
		}
		assert.ElementsMatch(t, []string{"https://example.com/completed", "https://example.com/all"}, urls)

		// Other users see nothing.
		otherID := seedWebhookUser(t, db, "bystander")
		hooks, err = repo.ListActiveForEvent(ctx, otherID, model.WebhookEventCompleted)
		require.NoError(t, err)
		assert.Empty(t, hooks)
	})
}

func TestWebhookRepoUpdateAndDeleteScoped(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewWebhookRepo(db)
		ctx := context.Background()
		ownerID := seedWebhookUser(t, db, "owner")
		strangerID := seedWebhookUser(t, db, "stranger")

		hook, err := repo.Create(ctx, ownerID, &model.CreateWebhookRequest{
			URL:       "https://example.com/hook",
			EventType: model.WebhookEventAll,
		})
		require.NoError(t, err)

		// Foreign updates and deletes are indistinguishable from missing rows.
		active := false
		_, err = repo.Update(ctx, hook.ID, strangerID, &model.UpdateWebhookRequest{Active: &active})
		assert.True(t, apperrors.IsNotFound(err))
		err = repo.Delete(ctx, hook.ID, strangerID)
		assert.True(t, apperrors.IsNotFound(err))

		updated, err := repo.Update(ctx, hook.ID, ownerID, &model.UpdateWebhookRequest{Active: &active})
		require.NoError(t, err)
		assert.False(t, updated.Active)

		require.NoError(t, repo.Delete(ctx, hook.ID, ownerID))
		_, err = repo.GetForUser(ctx, hook.ID, ownerID)
		assert.True(t, apperrors.IsNotFound(err))

		total, activeCount, err := repo.CountAll(ctx)
		require.NoError(t, err)
		assert.Zero(t, total)
		assert.Zero(t, activeCount)
	})
}
