package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/conveyorhq/conveyor/internal/core"
	"github.com/conveyorhq/conveyor/internal/domain/model"
	apperrors "github.com/conveyorhq/conveyor/internal/errors"
)

// WebhookServiceOptions groups dependencies for WebhookService.
type WebhookServiceOptions struct {
	Webhooks core.WebhookRepository
	Logger   *slog.Logger
}

// WebhookService manages webhook registrations. The (user, url, eventType)
// tuple is unique; duplicates surface as conflicts.
type WebhookService struct {
	webhooks core.WebhookRepository
	logger   *slog.Logger
}

// NewWebhookService creates a new WebhookService.
func NewWebhookService(opts WebhookServiceOptions) (*WebhookService, error) {
	if opts.Webhooks == nil {
		return nil, errors.New("webhook repository is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookService{
		webhooks: opts.Webhooks,
		logger:   logger.With("component", "webhook_service"),
	}, nil
}

// Create registers a webhook for the user.
func (s *WebhookService) Create(ctx context.Context, userID uint64, req *model.CreateWebhookRequest) (*model.Webhook, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, apperrors.Validationf("%s", err.Error())
	}

	hook, err := s.webhooks.Create(ctx, userID, req)
	if err != nil {
		return nil, err
	}
	s.logger.Info("webhook registered", "webhook_id", hook.ID, "user_id", userID, "event_type", hook.EventType)
	return hook, nil
}

// List returns the user's webhooks.
func (s *WebhookService) List(ctx context.Context, userID uint64) ([]model.Webhook, error) {
	return s.webhooks.ListByUser(ctx, userID)
}

// Get retrieves one webhook, scoped to its owner.
func (s *WebhookService) Get(ctx context.Context, id string, userID uint64) (*model.Webhook, error) {
	return s.webhooks.GetForUser(ctx, id, userID)
}

// Update applies a partial update, scoped to its owner.
func (s *WebhookService) Update(ctx context.Context, id string, userID uint64, req *model.UpdateWebhookRequest) (*model.Webhook, error) {
	if err := req.Validate(); err != nil {
		return nil, apperrors.Validationf("%s", err.Error())
	}
	return s.webhooks.Update(ctx, id, userID, req)
}

// Delete removes a webhook, scoped to its owner.
func (s *WebhookService) Delete(ctx context.Context, id string, userID uint64) error {
	return s.webhooks.Delete(ctx, id, userID)
}
