package model

import (
	"errors"
	"strings"
	"time"
)

// APIKeyPrefixLen is the number of leading plaintext characters stored as the
// lookup prefix. The prefix is always exactly the first 8 characters of the
// plaintext key.
const APIKeyPrefixLen = 8

const (
	minAPIKeyNameLen = 1
	maxAPIKeyNameLen = 128
)

// APIKey represents a long-lived credential. Only the prefix and a bcrypt
// hash of the full plaintext are persisted; the plaintext is returned to the
// caller exactly once at creation.
type APIKey struct {
	ID          string     `json:"id"                  db:"id"`
	UserID      uint64     `json:"userId"              db:"user_id"`
	Name        string     `json:"name"                db:"name"`
	Prefix      string     `json:"prefix"              db:"prefix"`
	KeyHash     string     `json:"-"                   db:"key_hash"`
	Permissions []string   `json:"permissions"         db:"permissions"`
	LastUsed    *time.Time `json:"lastUsed,omitempty"  db:"last_used"`
	CreatedAt   time.Time  `json:"createdAt"           db:"created_at"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty" db:"expires_at"`
	IsActive    bool       `json:"isActive"            db:"is_active"`
}

// Usable reports whether the key can authenticate at the given instant.
func (k *APIKey) Usable(now time.Time) bool {
	if !k.IsActive {
		return false
	}
	if k.ExpiresAt != nil && k.ExpiresAt.Before(now) {
		return false
	}
	return true
}

// CreateAPIKeyRequest represents a request to create a new API key.
type CreateAPIKeyRequest struct {
	Name        string     `json:"name"`
	Permissions []string   `json:"permissions,omitempty"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
}

// Normalize normalizes the CreateAPIKeyRequest fields.
func (r *CreateAPIKeyRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	for i, p := range r.Permissions {
		r.Permissions[i] = strings.TrimSpace(p)
	}
}

// Validate validates the CreateAPIKeyRequest fields.
func (r *CreateAPIKeyRequest) Validate() error {
	if len(r.Name) < minAPIKeyNameLen || len(r.Name) > maxAPIKeyNameLen {
		return errors.New("name must be between 1 and 128 characters")
	}
	for _, p := range r.Permissions {
		if p == "" {
			return errors.New("permissions must not contain empty entries")
		}
	}
	if r.ExpiresAt != nil && r.ExpiresAt.Before(time.Now()) {
		return errors.New("expiresAt must be in the future")
	}
	return nil
}

// UpdateAPIKeyRequest represents a request to update an existing API key.
type UpdateAPIKeyRequest struct {
	Name        *string    `json:"name,omitempty"`
	Permissions []string   `json:"permissions,omitempty"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
	IsActive    *bool      `json:"isActive,omitempty"`
}

// HasUpdates returns true if at least one field is being updated.
func (r *UpdateAPIKeyRequest) HasUpdates() bool {
	return r.Name != nil || r.Permissions != nil || r.ExpiresAt != nil || r.IsActive != nil
}

// Validate validates the UpdateAPIKeyRequest fields.
func (r *UpdateAPIKeyRequest) Validate() error {
	if !r.HasUpdates() {
		return errors.New("at least one field must be updated")
	}
	if r.Name != nil {
		n := strings.TrimSpace(*r.Name)
		if len(n) < minAPIKeyNameLen || len(n) > maxAPIKeyNameLen {
			return errors.New("name must be between 1 and 128 characters")
		}
	}
	return nil
}

// CreatedAPIKey pairs the persisted key with its one-time plaintext.
type CreatedAPIKey struct {
	APIKey
	// Key is the full plaintext. It is never persisted and never shown again.
	Key string `json:"key"`
}
