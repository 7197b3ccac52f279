// Package core defines the contracts between the service layer and its
// backing stores. Services depend on these interfaces, never on the concrete
// repositories or broker types, so tests can substitute mocks.
package core

import (
	"context"
	"time"

	"github.com/conveyorhq/conveyor/internal/domain/model"
)

// UserRepository defines the interface for user account persistence.
type UserRepository interface {
	Create(ctx context.Context, username string, email *string, passwordHash string) (*model.User, error)
	GetByID(ctx context.Context, id uint64) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	GetByRefreshToken(ctx context.Context, token string) (*model.User, error)
	GetByResetToken(ctx context.Context, token string) (*model.User, error)
	SetRefreshToken(ctx context.Context, id uint64, token *string, expiry *time.Time) error
	SetResetToken(ctx context.Context, id uint64, token string, expiry time.Time) error
	UpdatePassword(ctx context.Context, id uint64, passwordHash string) error
	UpdateWebhookURL(ctx context.Context, id uint64, url *string) error
}

// APIKeyRepository defines the interface for API key persistence.
type APIKeyRepository interface {
	Create(ctx context.Context, key *model.APIKey) (*model.APIKey, error)
	ListByUser(ctx context.Context, userID uint64) ([]model.APIKey, error)
	GetForUser(ctx context.Context, id string, userID uint64) (*model.APIKey, error)
	FindActiveByPrefix(ctx context.Context, prefix string) ([]model.APIKey, error)
	Update(ctx context.Context, id string, userID uint64, req *model.UpdateAPIKeyRequest) (*model.APIKey, error)
	Delete(ctx context.Context, id string, userID uint64) error
	TouchLastUsed(ctx context.Context, id string) error
}

// WebhookRepository defines the interface for webhook registration persistence.
type WebhookRepository interface {
	Create(ctx context.Context, userID uint64, req *model.CreateWebhookRequest) (*model.Webhook, error)
	ListByUser(ctx context.Context, userID uint64) ([]model.Webhook, error)
	GetForUser(ctx context.Context, id string, userID uint64) (*model.Webhook, error)
	ListActiveForEvent(ctx context.Context, userID uint64, event model.WebhookEventType) ([]model.Webhook, error)
	Update(ctx context.Context, id string, userID uint64, req *model.UpdateWebhookRequest) (*model.Webhook, error)
	Delete(ctx context.Context, id string, userID uint64) error
	CountAll(ctx context.Context) (total, active int64, err error)
}

// FlowRepository defines the interface for flow persistence.
type FlowRepository interface {
	Create(ctx context.Context, flow *model.Flow) (*model.Flow, error)
	GetByID(ctx context.Context, flowID string) (*model.Flow, error)
	GetForUser(ctx context.Context, flowID string, userID uint64) (*model.Flow, error)
	ListByUser(ctx context.Context, userID uint64, limit, offset int) ([]model.Flow, error)
	CountByUser(ctx context.Context, userID uint64) (int64, error)
	SetRootJob(ctx context.Context, flowID, rootJobID string, progress model.FlowProgress) error
	SaveProgress(ctx context.Context, flowID string, progress model.FlowProgress, status model.FlowStatus, errMsg string, result any) error
	Delete(ctx context.Context, flowID string, userID uint64) error
	CountByStatus(ctx context.Context) (map[model.FlowStatus]int64, error)
}
