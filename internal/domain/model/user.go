package model

import (
	"errors"
	"strings"
	"time"
)

const (
	minUsernameLen = 3
	maxUsernameLen = 64
	minPasswordLen = 8
)

// User represents an account in the system. PasswordHash and the token
// columns never leave the service layer; the HTTP surface serializes
// UserView instead.
type User struct {
	ID                 uint64     `json:"id"                            db:"id"`
	Username           string     `json:"username"                      db:"username"`
	Email              *string    `json:"email,omitempty"               db:"email"`
	PasswordHash       string     `json:"-"                             db:"password_hash"`
	RefreshToken       *string    `json:"-"                             db:"refresh_token"`
	RefreshTokenExpiry *time.Time `json:"-"                             db:"refresh_token_expiry"`
	ResetToken         *string    `json:"-"                             db:"reset_token"`
	ResetTokenExpiry   *time.Time `json:"-"                             db:"reset_token_expiry"`
	WebhookURL         *string    `json:"webhookUrl,omitempty"          db:"webhook_url"`
	CreatedAt          time.Time  `json:"createdAt"                     db:"created_at"`
	UpdatedAt          time.Time  `json:"updatedAt"                     db:"updated_at"`
}

// UserView is the API projection of a user.
type UserView struct {
	ID         uint64  `json:"id"`
	Username   string  `json:"username"`
	Email      *string `json:"email,omitempty"`
	WebhookURL *string `json:"webhookUrl,omitempty"`
}

// View returns the API projection of the user.
func (u *User) View() UserView {
	return UserView{
		ID:         u.ID,
		Username:   u.Username,
		Email:      u.Email,
		WebhookURL: u.WebhookURL,
	}
}

// RegisterRequest represents a registration request.
type RegisterRequest struct {
	Username string  `json:"username"`
	Password string  `json:"password"`
	Email    *string `json:"email,omitempty"`
}

// Normalize normalizes the RegisterRequest fields.
func (r *RegisterRequest) Normalize() {
	r.Username = strings.TrimSpace(r.Username)
	if r.Email != nil {
		e := strings.TrimSpace(*r.Email)
		r.Email = &e
	}
}

// Validate validates the RegisterRequest fields.
func (r *RegisterRequest) Validate() error {
	if len(r.Username) < minUsernameLen || len(r.Username) > maxUsernameLen {
		return errors.New("username must be between 3 and 64 characters")
	}
	if len(r.Password) < minPasswordLen {
		return errors.New("password must be at least 8 characters")
	}
	if r.Email != nil && *r.Email != "" && !strings.Contains(*r.Email, "@") {
		return errors.New("email is invalid")
	}
	return nil
}

// LoginRequest represents a login request.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// TokenPair is the result of a successful login or refresh.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}
