package websocket

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// Event is the envelope for everything sent over a connection, in either
// direction.
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Hub is the room registry: it tracks which live connections are subscribed
// to which group and fans messages out to them. It holds no durable state
// and performs no authorization; the gateway validates membership before a
// join is allowed.
type Hub struct {
	mu sync.RWMutex

	// Registered clients
	clients map[*Client]bool

	// Rooms mapping (groupID -> clients)
	rooms map[uint]map[*Client]bool

	// Register requests from the clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	log *zap.Logger
}

// NewHub creates a new hub instance
func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		rooms:      make(map[uint]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		log:        log,
	}
}

// Run processes connection lifecycle events. It must be started once, in
// its own goroutine, before the first connection arrives.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
		case client := <-h.unregister:
			h.removeClient(client)
		}
	}
}

// Register announces a new live connection.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a connection from the hub and from every room it
// joined. The read pump triggers this on transport disconnect, so cleanup
// never depends on the client sending an explicit leave.
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// JoinRoom subscribes a connection to a group's room. Idempotent.
func (h *Hub) JoinRoom(client *Client, groupID uint) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.rooms[groupID]; !ok {
		h.rooms[groupID] = make(map[*Client]bool)
	}
	h.rooms[groupID][client] = true
	client.addRoom(groupID)
}

// LeaveRoom unsubscribes a connection from a room. Idempotent.
func (h *Hub) LeaveRoom(client *Client, groupID uint) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.removeFromRoom(client, groupID)
	client.dropRoom(groupID)
}

// BroadcastToRoom delivers an event to every connection currently in the
// room, including the sender's own connection if it is joined. The room
// membership is snapshotted once; a connection that cannot keep up is
// dropped without holding up delivery to the rest.
func (h *Hub) BroadcastToRoom(groupID uint, msgType string, payload interface{}) {
	data, err := json.Marshal(Event{Type: msgType, Payload: payload})
	if err != nil {
		h.log.Error("marshaling broadcast event", zap.Error(err))
		return
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.rooms[groupID]))
	for client := range h.rooms[groupID] {
		targets = append(targets, client)
	}
	h.mu.RUnlock()

	for _, client := range targets {
		if client.trySend(data) {
			continue
		}
		// Send buffer full, or the connection is already closing.
		h.log.Warn("dropping unresponsive connection",
			zap.String("conn_id", client.ID),
			zap.Uint("group_id", groupID))
		h.removeClient(client)
	}
}

// RoomSize reports how many connections are currently joined to a room.
func (h *Hub) RoomSize(groupID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[groupID])
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	delete(h.clients, client)
	for _, groupID := range client.joinedRooms() {
		h.removeFromRoom(client, groupID)
		client.dropRoom(groupID)
	}
	h.mu.Unlock()

	client.closeSend()
}

// removeFromRoom expects h.mu to be held.
func (h *Hub) removeFromRoom(client *Client, groupID uint) {
	if clients, ok := h.rooms[groupID]; ok {
		delete(clients, client)
		// Clean up empty rooms
		if len(clients) == 0 {
			delete(h.rooms, groupID)
		}
	}
}
