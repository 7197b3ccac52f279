package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/conveyorhq/conveyor/internal/domain/model"
)

// TokenVerifier resolves a bearer access token to its user.
type TokenVerifier interface {
	VerifyAccess(ctx context.Context, token string) (*model.User, error)
}

// KeyAuthenticator resolves a plaintext API key to the key record.
type KeyAuthenticator interface {
	Authenticate(ctx context.Context, plaintext string) (*model.APIKey, error)
}

// Logging returns a middleware that logs HTTP requests and responses. Each
// request gets a generated id, echoed in X-Request-Id for correlation.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestID := uuid.New().String()
			w.Header().Set("X-Request-Id", requestID)

			const defaultHTTPStatus = 200
			ww := &respWriter{ResponseWriter: w, status: defaultHTTPStatus}
			next.ServeHTTP(ww, r)
			logger.Info("http",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.status),
				slog.Duration("duration", time.Since(start)),
				slog.String("request_id", requestID),
			)
		})
	}
}

type respWriter struct {
	http.ResponseWriter
	status int
}

func (w *respWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Recover returns a middleware that recovers from panics and logs them.
func Recover(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic",
						slog.Any("error", err),
						slog.String("path", r.URL.Path),
						slog.String("method", r.Method),
						slog.String("stack", string(debug.Stack())))
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAuth returns a middleware that accepts either a bearer access token
// or an X-API-Key header and attaches the resolved principal to the request
// context. Requests with neither credential are rejected.
func RequireAuth(tokens TokenVerifier, keys KeyAuthenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := resolvePrincipal(r, tokens, keys)
			if principal == nil {
				WriteError(w, ErrorParams{
					Code:    http.StatusUnauthorized,
					ErrCode: "authentication_required",
					Err:     errors.New("authentication required"),
				})
				return
			}

			ctx := SetPrincipalInContext(r.Context(), principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// resolvePrincipal tries the bearer token first, then the API key header.
// Websocket clients can also pass the token as a query parameter since the
// browser API cannot set headers.
func resolvePrincipal(r *http.Request, tokens TokenVerifier, keys KeyAuthenticator) *Principal {
	if token := bearerToken(r); token != "" && tokens != nil {
		if user, err := tokens.VerifyAccess(r.Context(), token); err == nil {
			return &Principal{User: user}
		}
	}

	if plaintext := r.Header.Get("X-API-Key"); plaintext != "" && keys != nil {
		if key, err := keys.Authenticate(r.Context(), plaintext); err == nil {
			return &Principal{Key: key}
		}
	}

	return nil
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header != "" {
		const prefix = "Bearer "
		if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
			return strings.TrimSpace(header[len(prefix):])
		}
		return ""
	}
	return r.URL.Query().Get("token")
}
