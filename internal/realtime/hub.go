// Package realtime pushes queue and flow events to websocket clients. Each
// connection is authenticated before the upgrade, auto-joined to its user's
// room, and may join flow and job rooms on demand.
package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Auth happens before the upgrade; origin is not part of the model.
		return true
	},
}

// Envelope is the wire format of every pushed message.
type Envelope struct {
	Event   string `json:"event"`
	Room    string `json:"room,omitempty"`
	Payload any    `json:"payload,omitempty"`
	// Timestamp is Unix milliseconds.
	Timestamp int64 `json:"timestamp"`
}

// command is what clients send to manage their room memberships.
type command struct {
	Action string `json:"action"`
	FlowID string `json:"flowId,omitempty"`
	JobID  string `json:"jobId,omitempty"`
}

// client is one websocket connection. Writes are serialized through writeMu;
// gorilla connections do not tolerate concurrent writers.
type client struct {
	id      string
	userID  uint64
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *client) send(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// HubOptions groups dependencies for Hub.
type HubOptions struct {
	Logger *slog.Logger
}

// Hub tracks connections and their room memberships and fans emitted events
// out to every member of the target room. It satisfies the service layer's
// Emitter contract.
type Hub struct {
	logger *slog.Logger

	// instanceID changes on every process start; clients use it to detect
	// restarts and resynchronize.
	instanceID string

	mu      sync.RWMutex
	clients map[*client]struct{}
	rooms   map[string]map[*client]struct{}
}

// NewHub creates a new Hub.
func NewHub(opts HubOptions) *Hub {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:     logger.With("component", "realtime_hub"),
		instanceID: uuid.New().String(),
		clients:    make(map[*client]struct{}),
		rooms:      make(map[string]map[*client]struct{}),
	}
}

// UserRoom names the room every connection of a user joins automatically.
func UserRoom(userID uint64) string { return "user:" + formatUint(userID) }

// FlowRoom names the room carrying one flow's updates.
func FlowRoom(flowID string) string { return "flow:" + flowID }

// JobRoom names the room carrying one job's events.
func JobRoom(jobID string) string { return "job:" + jobID }

// Emit serializes the payload once and sends it to every member of the room.
// Send failures drop the connection; the read loop notices and cleans up.
func (h *Hub) Emit(room, event string, payload any) {
	data, err := json.Marshal(Envelope{
		Event:     event,
		Room:      room,
		Payload:   payload,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		h.logger.Error("marshal realtime event failed", "event", event, "error", err)
		return
	}

	h.mu.RLock()
	members := make([]*client, 0, len(h.rooms[room]))
	for c := range h.rooms[room] {
		members = append(members, c)
	}
	h.mu.RUnlock()

	for _, c := range members {
		if err := c.send(data); err != nil {
			h.logger.Debug("realtime send failed, closing connection",
				"client_id", c.id, "room", room, "error", err)
			_ = c.conn.Close()
		}
	}
}

// ClientCount returns the number of live connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleConnection upgrades the request and services the connection until the
// client disconnects. The caller has already authenticated the user.
func (h *Hub) HandleConnection(w http.ResponseWriter, r *http.Request, userID uint64) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &client{id: uuid.New().String(), userID: userID, conn: conn}
	h.register(c)
	defer h.unregister(c)

	h.logger.Debug("websocket client connected", "client_id", c.id, "user_id", userID)

	greeting, err := json.Marshal(Envelope{
		Event:     "connected",
		Payload:   map[string]any{"clientId": c.id, "serverInstanceId": h.instanceID},
		Timestamp: time.Now().UnixMilli(),
	})
	if err == nil {
		_ = c.send(greeting)
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Warn("websocket read failed", "client_id", c.id, "error", err)
			}
			return
		}
		h.handleCommand(c, raw)
	}
}

// handleCommand applies one room-membership command. Unknown actions are
// ignored so protocol additions stay backward compatible.
func (h *Hub) handleCommand(c *client, raw []byte) {
	var cmd command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		h.logger.Debug("dropping malformed client command", "client_id", c.id, "error", err)
		return
	}

	switch strings.ToLower(strings.TrimSpace(cmd.Action)) {
	case "join-flow":
		if cmd.FlowID != "" {
			h.join(c, FlowRoom(cmd.FlowID))
		}
	case "leave-flow":
		if cmd.FlowID != "" {
			h.leave(c, FlowRoom(cmd.FlowID))
		}
	case "subscribe:job":
		if cmd.JobID != "" {
			h.join(c, JobRoom(cmd.JobID))
		}
	case "unsubscribe:job":
		if cmd.JobID != "" {
			h.leave(c, JobRoom(cmd.JobID))
		}
	case "ping":
		pong, err := json.Marshal(Envelope{Event: "pong", Timestamp: time.Now().UnixMilli()})
		if err == nil {
			_ = c.send(pong)
		}
	default:
		h.logger.Debug("ignoring unknown client action", "client_id", c.id, "action", cmd.Action)
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	h.joinLocked(c, UserRoom(c.userID))
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	for room, members := range h.rooms {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	remaining := len(h.clients)
	h.mu.Unlock()

	_ = c.conn.Close()
	h.logger.Debug("websocket client disconnected", "client_id", c.id, "remaining", remaining)
}

func (h *Hub) join(c *client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.joinLocked(c, room)
}

func (h *Hub) joinLocked(c *client, room string) {
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
}

func (h *Hub) leave(c *client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, c)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

// Shutdown closes every connection. In-flight reads return and unregister
// their clients.
func (h *Hub) Shutdown(context.Context) error {
	h.mu.RLock()
	conns := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		_ = c.conn.Close()
	}
	return nil
}

func formatUint(v uint64) string { return strconv.FormatUint(v, 10) }
