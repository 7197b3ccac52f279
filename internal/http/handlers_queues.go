package httpx

import (
	"net/http"

	"github.com/conveyorhq/conveyor/internal/broker"
)

// QueueHandlers exposes the configured queue names.
type QueueHandlers struct {
	Registry *broker.Registry
}

// List returns the queues this deployment accepts jobs on.
func (h *QueueHandlers) List(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{"queues": h.Registry.Names()})
}
