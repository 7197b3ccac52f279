// Package httpx provides the HTTP handlers and utilities for the conveyor
// job orchestration API.
package httpx

import (
	"net/http"

	"github.com/conveyorhq/conveyor/internal/domain/model"
	"github.com/conveyorhq/conveyor/internal/service"
)

// AuthHandlers provides HTTP handlers for authentication operations.
type AuthHandlers struct {
	Svc *service.AuthService
}

// Register handles account creation.
func (h *AuthHandlers) Register(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	user, err := h.Svc.Register(r.Context(), &req)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, user.View())
}

// Login exchanges credentials for a token pair.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req model.LoginRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	pair, user, err := h.Svc.Login(r.Context(), &req)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
		"user":         user.View(),
	})
}

// Logout revokes the caller's refresh token.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.Svc.Logout(r.Context(), callerID(r.Context())); err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

// Refresh exchanges a refresh token for a fresh token pair.
func (h *AuthHandlers) Refresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if !DecodeJSON(w, r, &req) {
		return
	}

	pair, err := h.Svc.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, pair)
}

// RequestPasswordReset produces a reset token. The response is identical for
// known and unknown usernames.
func (h *AuthHandlers) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
	}
	if !DecodeJSON(w, r, &req) {
		return
	}

	token, err := h.Svc.RequestPasswordReset(r.Context(), req.Username)
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	// Without an email channel the token rides in the response; deployments
	// with delivery wired drop it from here.
	body := map[string]string{"status": "reset requested"}
	if token != "" {
		body["resetToken"] = token
	}
	WriteJSON(w, http.StatusOK, body)
}

// ResetPassword consumes a reset token and sets a new password.
func (h *AuthHandlers) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token       string `json:"token"`
		NewPassword string `json:"newPassword"`
	}
	if !DecodeJSON(w, r, &req) {
		return
	}

	if err := h.Svc.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "password reset"})
}

// Me returns the authenticated user.
func (h *AuthHandlers) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.Svc.GetUser(r.Context(), callerID(r.Context()))
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, user.View())
}

// UpdateWebhookURL sets or clears the caller's legacy account webhook URL.
func (h *AuthHandlers) UpdateWebhookURL(w http.ResponseWriter, r *http.Request) {
	var req struct {
		WebhookURL *string `json:"webhookUrl"`
	}
	if !DecodeJSON(w, r, &req) {
		return
	}

	if err := h.Svc.UpdateWebhookURL(r.Context(), callerID(r.Context()), req.WebhookURL); err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}
