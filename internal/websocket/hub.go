package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

const (
	TypeState = "state"
	// TypeEnded is the last message a room receives before it is closed.
	TypeEnded = "ended"
)

// Message is a live update pushed to everyone watching one game.
type Message struct {
	Type   string          `json:"type"`
	Code   string          `json:"code"`
	State  json.RawMessage `json:"state,omitempty"`
	SentAt time.Time       `json:"sent_at"`
}

// StateMessage wraps a game's state payload for broadcast.
func StateMessage(code string, state json.RawMessage) Message {
	return Message{
		Type:   TypeState,
		Code:   code,
		State:  state,
		SentAt: time.Now().UTC(),
	}
}

// EndedMessage tells spectators the host deleted the game.
func EndedMessage(code string) Message {
	return Message{
		Type:   TypeEnded,
		Code:   code,
		SentAt: time.Now().UTC(),
	}
}

// Hub keeps one room of clients per game code.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[*Client]struct{}
	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		rooms:  make(map[string]map[*Client]struct{}),
		logger: logger,
	}
}

// Register adds a client to the room for its game code.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	room, ok := h.rooms[c.code]
	if !ok {
		room = make(map[*Client]struct{})
		h.rooms[c.code] = room
	}
	room[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes a client and closes its send channel. Empty rooms are
// dropped.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if room, ok := h.rooms[c.code]; ok {
		if _, ok := room[c]; ok {
			delete(room, c)
			close(c.send)
		}
		if len(room) == 0 {
			delete(h.rooms, c.code)
		}
	}
	h.mu.Unlock()
}

// Broadcast sends msg to every client in the room for msg.Code.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "code", msg.Code, "error", err)
		return
	}
	if msg.Type == TypeEnded {
		h.closeRoom(msg.Code, data)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.rooms[msg.Code] {
		select {
		case c.send <- data:
		default:
			// Slow spectator, drop rather than block the host.
		}
	}
}

// closeRoom delivers data to every client watching code and then detaches
// them, which ends their connections.
func (h *Hub) closeRoom(code string, data []byte) {
	h.mu.Lock()
	room := h.rooms[code]
	delete(h.rooms, code)
	h.mu.Unlock()

	for c := range room {
		select {
		case c.send <- data:
		default:
		}
		close(c.send)
	}
	if len(room) > 0 {
		h.logger.Info("game room closed", "code", code, "spectators", len(room))
	}
}

// Spectators returns the number of clients watching code.
func (h *Hub) Spectators(code string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[code])
}

// ClientCount returns the number of connected clients across all rooms.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, room := range h.rooms {
		n += len(room)
	}
	return n
}

// RoomCount returns the number of games with at least one spectator.
func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}
