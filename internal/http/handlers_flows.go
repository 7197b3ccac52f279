package httpx

import (
	"net/http"

	"github.com/conveyorhq/conveyor/internal/domain/model"
	"github.com/conveyorhq/conveyor/internal/service"
)

// FlowHandlers provides HTTP handlers for job flows.
type FlowHandlers struct {
	Svc *service.FlowService
}

// Create submits a flow tree and returns the stored flow document.
func (h *FlowHandlers) Create(w http.ResponseWriter, r *http.Request) {
	var req model.CreateFlowRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	flow, err := h.Svc.Create(r.Context(), &req, callerID(r.Context()))
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, flow)
}

// List returns the caller's flows, newest first.
func (h *FlowHandlers) List(w http.ResponseWriter, r *http.Request) {
	flows, pagination, err := h.Svc.ListForUser(r.Context(), callerID(r.Context()),
		queryInt(r, "page", 1), queryInt(r, "limit", 0))
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"flows": flows, "pagination": pagination})
}

// Get returns a flow document. Flow ids are unguessable, so reads are open to
// workers that only hold the id.
func (h *FlowHandlers) Get(w http.ResponseWriter, r *http.Request) {
	flow, err := h.Svc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, flow)
}

// GetAsCreateRequest reconstructs the original submission tree from a stored
// flow so it can be resubmitted.
func (h *FlowHandlers) GetAsCreateRequest(w http.ResponseWriter, r *http.Request) {
	req, err := h.Svc.GetAsCreateRequest(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, req)
}

// UpdateJob applies a worker progress report for one job in a flow.
func (h *FlowHandlers) UpdateJob(w http.ResponseWriter, r *http.Request) {
	var update model.FlowJobUpdate
	if !DecodeJSON(w, r, &update) {
		return
	}
	update.JobID = r.PathValue("jobId")

	flow, err := h.Svc.UpdateProgress(r.Context(), r.PathValue("id"), &update)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, flow)
}

// Delete removes a flow and its broker jobs, reporting per-job outcomes.
func (h *FlowHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	summary, err := h.Svc.Delete(r.Context(), r.PathValue("id"), callerID(r.Context()))
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, summary)
}
