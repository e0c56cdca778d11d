package websocket

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/scholarchat/chat_backend/auth"
	"github.com/scholarchat/chat_backend/chat"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins
	},
}

// Handler is the push-path ingestion adapter: it upgrades connections and
// feeds their events into the shared chat pipeline. Failures on this path
// have no response channel, so they are logged and dropped; the rest of the
// room is unaffected.
type Handler struct {
	hub    *Hub
	chat   *chat.Service
	tokens *auth.TokenManager
	log    *zap.Logger
}

func NewHandler(hub *Hub, chatService *chat.Service, tokens *auth.TokenManager, log *zap.Logger) *Handler {
	return &Handler{
		hub:    hub,
		chat:   chatService,
		tokens: tokens,
		log:    log,
	}
}

// HandleConnection upgrades an authenticated request to a WebSocket
// connection. The JWT middleware must have run first.
func (h *Handler) HandleConnection(c *gin.Context) {
	userID := c.MustGet("userID").(uint)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error("upgrading connection", zap.Error(err))
		return
	}

	client := newClient(h.hub, h, conn, userID, h.log)
	h.hub.Register(client)

	go client.readPump()
	go client.writePump()
}

type roomPayload struct {
	GroupID uint `json:"group_id"`
}

type pushMessagePayload struct {
	GroupID uint   `json:"group_id"`
	Content string `json:"content"`
	Token   string `json:"token"`
}

func (h *Handler) handleEvent(client *Client, raw []byte) {
	var evt Event
	if err := json.Unmarshal(raw, &evt); err != nil {
		client.log.Warn("malformed event", zap.Error(err))
		return
	}

	switch evt.Type {
	case "join_group":
		h.handleJoin(client, evt)
	case "leave_group":
		var payload roomPayload
		if err := decodePayload(evt, &payload); err != nil {
			client.log.Warn("malformed leave_group payload", zap.Error(err))
			return
		}
		client.leaveRoom(payload.GroupID)
	case "message":
		h.handlePush(client, evt)
	default:
		client.log.Warn("unknown event type", zap.String("event_type", evt.Type))
	}
}

// handleJoin subscribes the connection to a room, but only after the
// membership store confirms the user belongs to the group.
func (h *Handler) handleJoin(client *Client, evt Event) {
	var payload roomPayload
	if err := decodePayload(evt, &payload); err != nil {
		client.log.Warn("malformed join_group payload", zap.Error(err))
		return
	}

	isMember, err := h.chat.CanJoinRoom(payload.GroupID, client.userID)
	if err != nil {
		client.log.Warn("join_group membership check failed",
			zap.Uint("group_id", payload.GroupID), zap.Error(err))
		return
	}
	if !isMember {
		client.log.Warn("join_group denied for non-member",
			zap.Uint("group_id", payload.GroupID))
		return
	}

	client.joinRoom(payload.GroupID)
}

// handlePush is the push ingestion path. The event carries its own token;
// the verified identity is the sender, whether or not it matches the
// connection's upgrade identity.
func (h *Handler) handlePush(client *Client, evt Event) {
	var payload pushMessagePayload
	if err := decodePayload(evt, &payload); err != nil {
		client.log.Warn("malformed message payload", zap.Error(err))
		return
	}

	senderID, err := h.tokens.Verify(payload.Token)
	if err != nil {
		client.log.Warn("push message with invalid token",
			zap.Uint("group_id", payload.GroupID))
		return
	}

	if _, err := h.chat.Send(payload.GroupID, senderID, payload.Content); err != nil {
		client.log.Warn("push message rejected",
			zap.Uint("group_id", payload.GroupID),
			zap.Uint("sender_id", senderID),
			zap.Error(err))
	}
}

// decodePayload re-marshals the loosely typed event payload into a typed
// struct.
func decodePayload(evt Event, dst interface{}) error {
	data, err := json.Marshal(evt.Payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}
