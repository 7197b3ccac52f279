package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/conveyorhq/conveyor/config"
	"github.com/conveyorhq/conveyor/internal/core"
	"github.com/conveyorhq/conveyor/internal/domain/model"
	apperrors "github.com/conveyorhq/conveyor/internal/errors"
)

// apiKeyPlaintextBytes is the random payload length; the encoded key is
// "ck_" plus 48 hex characters.
const apiKeyPlaintextBytes = 24

// APIKeyServiceOptions groups dependencies for APIKeyService.
type APIKeyServiceOptions struct {
	Keys   core.APIKeyRepository
	Config config.AuthConfig
	Logger *slog.Logger
}

// APIKeyService manages long-lived credentials. Only the first 8 plaintext
// characters and a bcrypt hash of the full plaintext are persisted; the
// plaintext is handed to the caller exactly once at creation.
type APIKeyService struct {
	keys   core.APIKeyRepository
	cfg    config.AuthConfig
	logger *slog.Logger
}

// NewAPIKeyService creates a new APIKeyService.
func NewAPIKeyService(opts APIKeyServiceOptions) (*APIKeyService, error) {
	if opts.Keys == nil {
		return nil, errors.New("api key repository is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &APIKeyService{
		keys:   opts.Keys,
		cfg:    opts.Config,
		logger: logger.With("component", "apikey_service"),
	}, nil
}

// Create mints a new key for the user and returns it with the one-time
// plaintext.
func (s *APIKeyService) Create(ctx context.Context, userID uint64, req *model.CreateAPIKeyRequest) (*model.CreatedAPIKey, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, apperrors.Validationf("%s", err.Error())
	}

	raw := make([]byte, apiKeyPlaintextBytes)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("generate api key: %w", err)
	}
	plaintext := "ck_" + hex.EncodeToString(raw)

	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), s.cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash api key: %w", err)
	}

	permissions := req.Permissions
	if permissions == nil {
		permissions = []string{}
	}

	stored, err := s.keys.Create(ctx, &model.APIKey{
		UserID:      userID,
		Name:        req.Name,
		Prefix:      plaintext[:model.APIKeyPrefixLen],
		KeyHash:     string(hash),
		Permissions: permissions,
		ExpiresAt:   req.ExpiresAt,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("api key created", "user_id", userID, "key_id", stored.ID, "prefix", stored.Prefix)
	return &model.CreatedAPIKey{APIKey: *stored, Key: plaintext}, nil
}

// List returns the user's keys. Hashes never leave the service layer intact;
// callers serialize through the model's json tags which omit the hash.
func (s *APIKeyService) List(ctx context.Context, userID uint64) ([]model.APIKey, error) {
	return s.keys.ListByUser(ctx, userID)
}

// Get retrieves one key, scoped to its owner.
func (s *APIKeyService) Get(ctx context.Context, id string, userID uint64) (*model.APIKey, error) {
	return s.keys.GetForUser(ctx, id, userID)
}

// Update applies a partial update to a key, scoped to its owner.
func (s *APIKeyService) Update(ctx context.Context, id string, userID uint64, req *model.UpdateAPIKeyRequest) (*model.APIKey, error) {
	if err := req.Validate(); err != nil {
		return nil, apperrors.Validationf("%s", err.Error())
	}
	return s.keys.Update(ctx, id, userID, req)
}

// Delete removes a key, scoped to its owner.
func (s *APIKeyService) Delete(ctx context.Context, id string, userID uint64) error {
	return s.keys.Delete(ctx, id, userID)
}

// Authenticate resolves a plaintext key to its owner. Candidates are selected
// by prefix and verified with a bcrypt compare; a match records lastUsed as a
// best-effort update.
func (s *APIKeyService) Authenticate(ctx context.Context, plaintext string) (*model.APIKey, error) {
	if len(plaintext) < model.APIKeyPrefixLen {
		return nil, apperrors.Unauthenticated("invalid API key")
	}

	candidates, err := s.keys.FindActiveByPrefix(ctx, plaintext[:model.APIKeyPrefixLen])
	if err != nil {
		return nil, err
	}

	now := time.Now()
	for i := range candidates {
		key := &candidates[i]
		if !key.Usable(now) {
			continue
		}
		if bcrypt.CompareHashAndPassword([]byte(key.KeyHash), []byte(plaintext)) != nil {
			continue
		}
		if terr := s.keys.TouchLastUsed(ctx, key.ID); terr != nil {
			s.logger.Warn("touch lastUsed failed", "key_id", key.ID, "error", terr)
		}
		return key, nil
	}
	return nil, apperrors.Unauthenticated("invalid API key")
}
