// Package service contains the business logic layer. Services depend on the
// core interfaces and the broker bindings, never on internal/data or
// internal/http directly.
package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/conveyorhq/conveyor/config"
	"github.com/conveyorhq/conveyor/internal/core"
	"github.com/conveyorhq/conveyor/internal/domain/model"
	apperrors "github.com/conveyorhq/conveyor/internal/errors"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// authClaims is the JWT claim set for access and refresh tokens.
type authClaims struct {
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// AuthServiceOptions groups dependencies for AuthService.
type AuthServiceOptions struct {
	Users  core.UserRepository
	Config config.AuthConfig
	Logger *slog.Logger
}

// AuthService implements registration, login, token issuance and refresh, and
// the password reset flow. Access and reset tokens are signed with the primary
// secret; refresh tokens use the refresh secret and are additionally persisted
// on the user row so logout can revoke them.
type AuthService struct {
	users  core.UserRepository
	cfg    config.AuthConfig
	logger *slog.Logger
}

// NewAuthService creates a new AuthService.
func NewAuthService(opts AuthServiceOptions) (*AuthService, error) {
	if opts.Users == nil {
		return nil, errors.New("user repository is required")
	}
	if opts.Config.Secret == "" {
		return nil, errors.New("token secret is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		users:  opts.Users,
		cfg:    opts.Config,
		logger: logger.With("component", "auth_service"),
	}, nil
}

// Register creates a new user account. Duplicate usernames surface as a
// conflict error.
func (s *AuthService) Register(ctx context.Context, req *model.RegisterRequest) (*model.User, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, apperrors.Validationf("%s", err.Error())
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	email := req.Email
	if email != nil && *email == "" {
		email = nil
	}

	user, err := s.users.Create(ctx, req.Username, email, string(hash))
	if err != nil {
		return nil, err
	}
	s.logger.Info("user registered", "user_id", user.ID, "username", user.Username)
	return user, nil
}

// Login verifies the password and issues a token pair. The refresh token is
// persisted so it can be revoked.
func (s *AuthService) Login(ctx context.Context, req *model.LoginRequest) (*model.TokenPair, *model.User, error) {
	user, err := s.users.GetByUsername(ctx, req.Username)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, nil, apperrors.Unauthenticated("invalid username or password")
		}
		return nil, nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		return nil, nil, apperrors.Unauthenticated("invalid username or password")
	}

	pair, err := s.issueTokens(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}
	return pair, user, nil
}

// Logout revokes the user's refresh token.
func (s *AuthService) Logout(ctx context.Context, userID uint64) error {
	if err := s.users.SetRefreshToken(ctx, userID, nil, nil); err != nil {
		return fmt.Errorf("clear refresh token: %w", err)
	}
	return nil
}

// Refresh exchanges a still-valid refresh token for a fresh token pair. The
// token must both verify as a JWT and match the value persisted on the user
// row; a rotated or revoked token fails either way.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*model.TokenPair, error) {
	userID, err := s.verify(refreshToken, s.cfg.RefreshSecret, tokenTypeRefresh)
	if err != nil {
		return nil, apperrors.Unauthenticated("invalid or expired refresh token")
	}

	user, err := s.users.GetByRefreshToken(ctx, refreshToken)
	if err != nil || user.ID != userID {
		return nil, apperrors.Unauthenticated("invalid or expired refresh token")
	}

	return s.issueTokens(ctx, user.ID)
}

// VerifyAccess validates a bearer token and loads its user. Used by the auth
// middleware on every protected request.
func (s *AuthService) VerifyAccess(ctx context.Context, token string) (*model.User, error) {
	userID, err := s.verify(token, s.cfg.Secret, tokenTypeAccess)
	if err != nil {
		return nil, apperrors.Unauthenticated("invalid or expired token")
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.Unauthenticated("invalid or expired token")
		}
		return nil, err
	}
	return user, nil
}

// GetUser loads a user by id.
func (s *AuthService) GetUser(ctx context.Context, id uint64) (*model.User, error) {
	return s.users.GetByID(ctx, id)
}

// UpdateWebhookURL sets or clears the user's legacy webhook URL.
func (s *AuthService) UpdateWebhookURL(ctx context.Context, userID uint64, url *string) error {
	return s.users.UpdateWebhookURL(ctx, userID, url)
}

// RequestPasswordReset mints a short-lived reset token for the user. The
// token is returned to the transport layer; delivery is out of scope here.
// Unknown usernames produce no error signal, to avoid account enumeration.
func (s *AuthService) RequestPasswordReset(ctx context.Context, username string) (string, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return "", nil
		}
		return "", err
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate reset token: %w", err)
	}
	token := hex.EncodeToString(raw)

	if err := s.users.SetResetToken(ctx, user.ID, token, time.Now().Add(s.cfg.ResetExpiry)); err != nil {
		return "", fmt.Errorf("store reset token: %w", err)
	}
	s.logger.Info("password reset requested", "user_id", user.ID)
	return token, nil
}

// ResetPassword consumes a reset token and installs a new password. All
// issued refresh tokens are invalidated in the same write.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if len(newPassword) < 8 {
		return apperrors.ValidationField("password", "password must be at least 8 characters")
	}

	user, err := s.users.GetByResetToken(ctx, token)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return apperrors.Unauthenticated("invalid or expired reset token")
		}
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, user.ID, string(hash)); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	s.logger.Info("password reset completed", "user_id", user.ID)
	return nil
}

// issueTokens signs a new access/refresh pair and persists the refresh token.
func (s *AuthService) issueTokens(ctx context.Context, userID uint64) (*model.TokenPair, error) {
	now := time.Now()

	access, err := s.sign(userID, tokenTypeAccess, s.cfg.Secret, now, s.cfg.Expiry)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := s.sign(userID, tokenTypeRefresh, s.cfg.RefreshSecret, now, s.cfg.RefreshExpiry)
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}

	expiry := now.Add(s.cfg.RefreshExpiry)
	if err := s.users.SetRefreshToken(ctx, userID, &refresh, &expiry); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	return &model.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *AuthService) sign(userID uint64, tokenType, secret string, now time.Time, ttl time.Duration) (string, error) {
	claims := authClaims{
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func (s *AuthService) verify(token, secret, wantType string) (uint64, error) {
	parsed, err := jwt.ParseWithClaims(token, &authClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil || !parsed.Valid {
		return 0, errors.New("token invalid")
	}

	claims, ok := parsed.Claims.(*authClaims)
	if !ok || claims.TokenType != wantType {
		return 0, errors.New("token type mismatch")
	}
	userID, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil {
		return 0, errors.New("token subject invalid")
	}
	return userID, nil
}
