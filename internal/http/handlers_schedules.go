package httpx

import (
	"errors"
	"net/http"

	"github.com/conveyorhq/conveyor/internal/domain/model"
	"github.com/conveyorhq/conveyor/internal/service"
)

// ScheduleHandlers provides HTTP handlers for recurring job schedules.
type ScheduleHandlers struct {
	Svc *service.SchedulerService
}

// Create registers a recurring schedule on the named queue.
func (h *ScheduleHandlers) Create(w http.ResponseWriter, r *http.Request) {
	var sub model.ScheduleSubmission
	if !DecodeJSON(w, r, &sub) {
		return
	}

	key, err := h.Svc.Schedule(r.Context(), r.PathValue("queue"), &sub, callerID(r.Context()))
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, map[string]string{"schedulerId": key})
}

// List returns the caller's schedules on the named queue.
func (h *ScheduleHandlers) List(w http.ResponseWriter, r *http.Request) {
	schedules, err := h.Svc.ListForUser(r.Context(), r.PathValue("queue"), callerID(r.Context()))
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"schedules": schedules})
}

// Get returns a single schedule. Keys owned by other users are
// indistinguishable from missing ones.
func (h *ScheduleHandlers) Get(w http.ResponseWriter, r *http.Request) {
	schedule, err := h.Svc.Get(r.Context(), r.PathValue("queue"), r.PathValue("id"), callerID(r.Context()))
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	if schedule == nil {
		WriteError(w, ErrorParams{
			Code:    http.StatusNotFound,
			ErrCode: "not_found",
			Err:     errors.New("schedule not found"),
		})
		return
	}
	WriteJSON(w, http.StatusOK, schedule)
}

// Remove deletes a schedule. The response reports whether a schedule was
// actually removed; repeating the call yields removed=false.
func (h *ScheduleHandlers) Remove(w http.ResponseWriter, r *http.Request) {
	removed, err := h.Svc.Remove(r.Context(), r.PathValue("queue"), r.PathValue("id"), callerID(r.Context()))
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]bool{"removed": removed})
}
