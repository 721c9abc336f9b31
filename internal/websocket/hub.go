package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dukerupert/chorely/internal/chore"
)

// TypeChoreDeleted is sent when a chore and its log are removed.
const TypeChoreDeleted = "chore_deleted"

// Message is what clients receive when a chore changes. Type is
// "chore_<kind>" for engine events and TypeChoreDeleted for deletions.
type Message struct {
	Type              string     `json:"type"`
	ChoreID           int64      `json:"chore_id"`
	Name              string     `json:"name,omitempty"`
	Version           int64      `json:"version,omitempty"`
	NextExecutionDate *time.Time `json:"next_execution_date,omitempty"`
	AssignedTo        *int64     `json:"assigned_to,omitempty"`
	PreviousAssignee  *int64     `json:"previous_assignee,omitempty"`
	LogID             int64      `json:"log_id,omitempty"`
	At                time.Time  `json:"at"`
}

// ChoreMessage converts a committed engine event into a client message.
func ChoreMessage(ev chore.Event) Message {
	msg := Message{
		Type:              "chore_" + string(ev.Kind),
		ChoreID:           ev.Chore.ID,
		Name:              ev.Chore.Name,
		Version:           ev.Chore.Version,
		NextExecutionDate: ev.Chore.NextExecutionDate,
		AssignedTo:        ev.Chore.NextExecutionAssignedToUserID,
		PreviousAssignee:  ev.PreviousAssignee,
		At:                ev.At,
	}
	if ev.Entry != nil {
		msg.LogID = ev.Entry.ID
	}
	return msg
}

// involves reports whether userID holds the chore before or after the change.
// Deletions carry no assignee and involve everyone.
func (m Message) involves(userID int64) bool {
	if m.Type == TypeChoreDeleted {
		return true
	}
	for _, id := range []*int64{m.AssignedTo, m.PreviousAssignee} {
		if id != nil && *id == userID {
			return true
		}
	}
	return false
}

// Hub fans chore changes out to connected clients. It implements
// chore.Notifier.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	sent    atomic.Int64
	dropped atomic.Int64
	logger  *slog.Logger
}

// NewHub creates a new Hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger,
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes a client from the hub and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

func (h *Hub) ChoreChanged(_ context.Context, ev chore.Event) {
	h.broadcast(ChoreMessage(ev))
}

// ChoreDeleted tells every client that a chore is gone.
func (h *Hub) ChoreDeleted(choreID int64, at time.Time) {
	h.broadcast(Message{Type: TypeChoreDeleted, ChoreID: choreID, At: at})
}

func (h *Hub) broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal chore message", "chore_id", msg.ChoreID, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		if !c.wants(msg) {
			continue
		}
		select {
		case c.send <- data:
			h.sent.Add(1)
		default:
			// Slow client; it resyncs on the next message it does get
			h.dropped.Add(1)
			h.logger.Debug("websocket: dropped message", "type", msg.Type, "chore_id", msg.ChoreID)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Sent returns how many messages were queued to clients.
func (h *Hub) Sent() int64 {
	return h.sent.Load()
}

// Dropped returns how many messages were discarded for slow clients.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}
