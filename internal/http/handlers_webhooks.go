package httpx

import (
	"net/http"

	"github.com/conveyorhq/conveyor/internal/domain/model"
	"github.com/conveyorhq/conveyor/internal/service"
)

// WebhookHandlers provides HTTP handlers for webhook subscriptions.
type WebhookHandlers struct {
	Svc *service.WebhookService
}

func (h *WebhookHandlers) Create(w http.ResponseWriter, r *http.Request) {
	var req model.CreateWebhookRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	hook, err := h.Svc.Create(r.Context(), callerID(r.Context()), &req)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, hook)
}

func (h *WebhookHandlers) List(w http.ResponseWriter, r *http.Request) {
	hooks, err := h.Svc.List(r.Context(), callerID(r.Context()))
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"webhooks": hooks})
}

func (h *WebhookHandlers) Get(w http.ResponseWriter, r *http.Request) {
	hook, err := h.Svc.Get(r.Context(), r.PathValue("id"), callerID(r.Context()))
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, hook)
}

func (h *WebhookHandlers) Update(w http.ResponseWriter, r *http.Request) {
	var req model.UpdateWebhookRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	hook, err := h.Svc.Update(r.Context(), r.PathValue("id"), callerID(r.Context()), &req)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, hook)
}

func (h *WebhookHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Svc.Delete(r.Context(), r.PathValue("id"), callerID(r.Context())); err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
