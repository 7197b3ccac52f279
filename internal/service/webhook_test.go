package service

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/conveyorhq/conveyor/internal/domain/model"
	apperrors "github.com/conveyorhq/conveyor/internal/errors"
	"github.com/conveyorhq/conveyor/internal/mocks"
)

func newTestWebhookService(t *testing.T) (*WebhookService, *mocks.MockWebhookRepository) {
	t.Helper()
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockWebhookRepository(ctrl)
	svc, err := NewWebhookService(WebhookServiceOptions{Webhooks: repo, Logger: slog.Default()})
	require.NoError(t, err)
	return svc, repo
}

func TestWebhookCreate(t *testing.T) {
	svc, repo := newTestWebhookService(t)
	ctx := context.Background()

	repo.EXPECT().
		Create(gomock.Any(), uint64(7), gomock.Any()).
		DoAndReturn(func(_ context.Context, userID uint64, req *model.CreateWebhookRequest) (*model.Webhook, error) {
			// Normalize ran before persistence.
			assert.Equal(t, "https://example.com/hook", req.URL)
			return &model.Webhook{
				ID:        "wh-1",
				UserID:    userID,
				URL:       req.URL,
				EventType: req.EventType,
				Active:    true,
			}, nil
		})

	hook, err := svc.Create(ctx, 7, &model.CreateWebhookRequest{
		URL:       "  https://example.com/hook  ",
		EventType: model.WebhookEventCompleted,
	})
	require.NoError(t, err)
	assert.Equal(t, "wh-1", hook.ID)
	assert.True(t, hook.Active)
}

func TestWebhookCreateValidation(t *testing.T) {
	svc, _ := newTestWebhookService(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  *model.CreateWebhookRequest
	}{
		{"missing url", &model.CreateWebhookRequest{EventType: model.WebhookEventAll}},
		{"ftp url", &model.CreateWebhookRequest{URL: "ftp://example.com", EventType: model.WebhookEventAll}},
		{"bad event type", &model.CreateWebhookRequest{URL: "https://example.com", EventType: "sometimes"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, 7, tt.req)
			assert.True(t, apperrors.IsValidation(err))
		})
	}
}

func TestWebhookUpdate(t *testing.T) {
	svc, repo := newTestWebhookService(t)
	ctx := context.Background()

	active := false
	repo.EXPECT().
		Update(gomock.Any(), "wh-1", uint64(7), gomock.Any()).
		Return(&model.Webhook{ID: "wh-1", UserID: 7, Active: false}, nil)

	hook, err := svc.Update(ctx, "wh-1", 7, &model.UpdateWebhookRequest{Active: &active})
	require.NoError(t, err)
	assert.False(t, hook.Active)
}

func TestWebhookUpdateValidation(t *testing.T) {
	svc, _ := newTestWebhookService(t)
	ctx := context.Background()

	// Empty update never reaches the repository.
	_, err := svc.Update(ctx, "wh-1", 7, &model.UpdateWebhookRequest{})
	assert.True(t, apperrors.IsValidation(err))

	badURL := "not a url"
	_, err = svc.Update(ctx, "wh-1", 7, &model.UpdateWebhookRequest{URL: &badURL})
	assert.True(t, apperrors.IsValidation(err))
}

func TestWebhookGetScopedToOwner(t *testing.T) {
	svc, repo := newTestWebhookService(t)
	ctx := context.Background()

	repo.EXPECT().
		GetForUser(gomock.Any(), "wh-1", uint64(8)).
		Return(nil, apperrors.NotFoundf("webhook %s", "wh-1"))

	_, err := svc.Get(ctx, "wh-1", 8)
	assert.True(t, apperrors.IsNotFound(err))
}
