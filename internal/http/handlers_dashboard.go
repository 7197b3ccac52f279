package httpx

import (
	"net/http"

	"github.com/conveyorhq/conveyor/internal/service"
)

// DashboardHandlers provides the aggregated dashboard endpoint.
type DashboardHandlers struct {
	Svc *service.DashboardService
}

// Stats returns queue, schedule and webhook statistics for the caller.
func (h *DashboardHandlers) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Svc.GetStats(r.Context(), callerID(r.Context()))
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, stats)
}
