package httpx

import (
	"net/http"
	"strconv"

	apperrors "github.com/conveyorhq/conveyor/internal/errors"

	"github.com/conveyorhq/conveyor/internal/domain/model"
	"github.com/conveyorhq/conveyor/internal/service"
)

// JobHandlers provides HTTP handlers for job submission and inspection.
type JobHandlers struct {
	Svc *service.JobService
}

// Submit enqueues a job on the named queue.
func (h *JobHandlers) Submit(w http.ResponseWriter, r *http.Request) {
	var req model.SubmitJobRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	id, err := h.Svc.Submit(r.Context(), r.PathValue("queue"), &req, callerID(r.Context()))
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, map[string]string{"jobId": id})
}

// List returns the caller's jobs on the named queue, newest first.
func (h *JobHandlers) List(w http.ResponseWriter, r *http.Request) {
	query := service.ListJobsQuery{
		Page:  queryInt(r, "page", 1),
		Limit: queryInt(r, "limit", 0),
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := model.JobState(raw)
		if !status.Valid() {
			WriteServiceError(w, apperrors.ValidationField("status", "unknown job status"))
			return
		}
		query.Status = &status
	}

	list, err := h.Svc.List(r.Context(), r.PathValue("queue"), callerID(r.Context()), query)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, list)
}

// Get returns a single job owned by the caller.
func (h *JobHandlers) Get(w http.ResponseWriter, r *http.Request) {
	view, err := h.Svc.Get(r.Context(), r.PathValue("queue"), r.PathValue("id"), callerID(r.Context()))
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, view)
}

// Delete removes a job owned by the caller.
func (h *JobHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Svc.Delete(r.Context(), r.PathValue("queue"), r.PathValue("id"), callerID(r.Context())); err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// queryInt parses an integer query parameter, falling back to def when the
// parameter is absent or malformed.
func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
