package service

import (
	"context"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conveyorhq/conveyor/internal/domain/model"
	apperrors "github.com/conveyorhq/conveyor/internal/errors"
)

// stubAPIKeyRepo is an in-memory APIKeyRepository for service tests.
type stubAPIKeyRepo struct {
	nextID  int
	keys    map[string]*model.APIKey
	touched []string
}

func newStubAPIKeyRepo() *stubAPIKeyRepo {
	return &stubAPIKeyRepo{keys: map[string]*model.APIKey{}}
}

func (r *stubAPIKeyRepo) Create(_ context.Context, key *model.APIKey) (*model.APIKey, error) {
	for _, k := range r.keys {
		if k.UserID == key.UserID && k.Name == key.Name {
			return nil, apperrors.Conflictf("an API key with this name already exists")
		}
	}
	r.nextID++
	stored := *key
	stored.ID = "key-" + strconv.Itoa(r.nextID)
	stored.IsActive = true
	stored.CreatedAt = time.Now()
	r.keys[stored.ID] = &stored
	out := stored
	return &out, nil
}

func (r *stubAPIKeyRepo) ListByUser(_ context.Context, userID uint64) ([]model.APIKey, error) {
	var out []model.APIKey
	for _, k := range r.keys {
		if k.UserID == userID {
			out = append(out, *k)
		}
	}
	return out, nil
}

func (r *stubAPIKeyRepo) GetForUser(_ context.Context, id string, userID uint64) (*model.APIKey, error) {
	k, ok := r.keys[id]
	if !ok || k.UserID != userID {
		return nil, apperrors.NotFound("API key not found")
	}
	out := *k
	return &out, nil
}

func (r *stubAPIKeyRepo) FindActiveByPrefix(_ context.Context, prefix string) ([]model.APIKey, error) {
	var out []model.APIKey
	for _, k := range r.keys {
		if k.IsActive && k.Prefix == prefix {
			out = append(out, *k)
		}
	}
	return out, nil
}

func (r *stubAPIKeyRepo) Update(_ context.Context, id string, userID uint64, req *model.UpdateAPIKeyRequest) (*model.APIKey, error) {
	k, ok := r.keys[id]
	if !ok || k.UserID != userID {
		return nil, apperrors.NotFound("API key not found")
	}
	if req.Name != nil {
		k.Name = *req.Name
	}
	if req.IsActive != nil {
		k.IsActive = *req.IsActive
	}
	if req.Permissions != nil {
		k.Permissions = req.Permissions
	}
	if req.ExpiresAt != nil {
		k.ExpiresAt = req.ExpiresAt
	}
	out := *k
	return &out, nil
}

func (r *stubAPIKeyRepo) Delete(_ context.Context, id string, userID uint64) error {
	k, ok := r.keys[id]
	if !ok || k.UserID != userID {
		return apperrors.NotFound("API key not found")
	}
	delete(r.keys, id)
	return nil
}

func (r *stubAPIKeyRepo) TouchLastUsed(_ context.Context, id string) error {
	r.touched = append(r.touched, id)
	return nil
}

func newTestAPIKeyService(t *testing.T, repo *stubAPIKeyRepo) *APIKeyService {
	t.Helper()
	svc, err := NewAPIKeyService(APIKeyServiceOptions{Keys: repo, Config: testAuthConfig()})
	require.NoError(t, err)
	return svc
}

func TestAPIKeyCreate(t *testing.T) {
	repo := newStubAPIKeyRepo()
	svc := newTestAPIKeyService(t, repo)
	ctx := context.Background()

	created, err := svc.Create(ctx, 1, &model.CreateAPIKeyRequest{Name: "ci"})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(created.Key, "ck_"))
	assert.Len(t, created.Key, 3+2*apiKeyPlaintextBytes)
	assert.Equal(t, created.Key[:model.APIKeyPrefixLen], created.Prefix)
	assert.NotContains(t, created.KeyHash, created.Key, "plaintext never lands in the hash column")
	assert.Equal(t, []string{}, created.Permissions)

	_, err = svc.Create(ctx, 1, &model.CreateAPIKeyRequest{Name: "ci"})
	assert.True(t, apperrors.IsConflict(err))

	_, err = svc.Create(ctx, 1, &model.CreateAPIKeyRequest{Name: "   "})
	assert.True(t, apperrors.IsValidation(err))

	past := time.Now().Add(-time.Hour)
	_, err = svc.Create(ctx, 1, &model.CreateAPIKeyRequest{Name: "expired", ExpiresAt: &past})
	assert.True(t, apperrors.IsValidation(err))
}

func TestAPIKeyAuthenticate(t *testing.T) {
	repo := newStubAPIKeyRepo()
	svc := newTestAPIKeyService(t, repo)
	ctx := context.Background()

	created, err := svc.Create(ctx, 7, &model.CreateAPIKeyRequest{Name: "ci"})
	require.NoError(t, err)

	key, err := svc.Authenticate(ctx, created.Key)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), key.UserID)
	assert.Equal(t, []string{created.ID}, repo.touched, "a match records lastUsed")

	// Same prefix, different tail.
	tampered := created.Key[:len(created.Key)-4] + "0000"
	_, err = svc.Authenticate(ctx, tampered)
	assert.True(t, apperrors.IsUnauthenticated(err))

	_, err = svc.Authenticate(ctx, "ck_")
	assert.True(t, apperrors.IsUnauthenticated(err), "too-short keys are rejected before lookup")
}

func TestAPIKeyAuthenticateUnusable(t *testing.T) {
	repo := newStubAPIKeyRepo()
	svc := newTestAPIKeyService(t, repo)
	ctx := context.Background()

	created, err := svc.Create(ctx, 7, &model.CreateAPIKeyRequest{Name: "ci"})
	require.NoError(t, err)

	// Expired keys stay in the candidate set but never authenticate.
	past := time.Now().Add(-time.Minute)
	repo.keys[created.ID].ExpiresAt = &past
	_, err = svc.Authenticate(ctx, created.Key)
	assert.True(t, apperrors.IsUnauthenticated(err))

	repo.keys[created.ID].ExpiresAt = nil
	repo.keys[created.ID].IsActive = false
	_, err = svc.Authenticate(ctx, created.Key)
	assert.True(t, apperrors.IsUnauthenticated(err))
}

func TestAPIKeyUpdateValidation(t *testing.T) {
	repo := newStubAPIKeyRepo()
	svc := newTestAPIKeyService(t, repo)
	ctx := context.Background()

	created, err := svc.Create(ctx, 1, &model.CreateAPIKeyRequest{Name: "ci"})
	require.NoError(t, err)

	_, err = svc.Update(ctx, created.ID, 1, &model.UpdateAPIKeyRequest{})
	assert.True(t, apperrors.IsValidation(err), "empty updates are rejected")

	inactive := false
	updated, err := svc.Update(ctx, created.ID, 1, &model.UpdateAPIKeyRequest{IsActive: &inactive})
	require.NoError(t, err)
	assert.False(t, updated.IsActive)

	_, err = svc.Update(ctx, created.ID, 2, &model.UpdateAPIKeyRequest{IsActive: &inactive})
	assert.True(t, apperrors.IsNotFound(err), "foreign keys look absent")
}
