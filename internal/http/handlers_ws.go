package httpx

import (
	"net/http"

	"github.com/conveyorhq/conveyor/internal/realtime"
)

// WebsocketHandlers upgrades authenticated requests into hub connections.
type WebsocketHandlers struct {
	Hub *realtime.Hub
}

// Connect hands the request to the hub. Browser websocket clients cannot set
// headers, so they authenticate with the token query parameter instead.
func (h *WebsocketHandlers) Connect(w http.ResponseWriter, r *http.Request) {
	h.Hub.HandleConnection(w, r, callerID(r.Context()))
}
