package httpx

import (
	"net/http"

	"github.com/conveyorhq/conveyor/internal/domain/model"
	"github.com/conveyorhq/conveyor/internal/service"
)

// APIKeyHandlers provides HTTP handlers for API key management.
type APIKeyHandlers struct {
	Svc *service.APIKeyService
}

// Create mints a new API key. The plaintext key appears only in this response.
func (h *APIKeyHandlers) Create(w http.ResponseWriter, r *http.Request) {
	var req model.CreateAPIKeyRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	created, err := h.Svc.Create(r.Context(), callerID(r.Context()), &req)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, created)
}

func (h *APIKeyHandlers) List(w http.ResponseWriter, r *http.Request) {
	keys, err := h.Svc.List(r.Context(), callerID(r.Context()))
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"apiKeys": keys})
}

func (h *APIKeyHandlers) Get(w http.ResponseWriter, r *http.Request) {
	key, err := h.Svc.Get(r.Context(), r.PathValue("id"), callerID(r.Context()))
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, key)
}

func (h *APIKeyHandlers) Update(w http.ResponseWriter, r *http.Request) {
	var req model.UpdateAPIKeyRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	key, err := h.Svc.Update(r.Context(), r.PathValue("id"), callerID(r.Context()), &req)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, key)
}

func (h *APIKeyHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Svc.Delete(r.Context(), r.PathValue("id"), callerID(r.Context())); err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
