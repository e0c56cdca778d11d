package websocket

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 10000
)

// Client represents one live connection and its ephemeral room
// subscriptions. Subscriptions never outlive the connection.
type Client struct {
	ID string

	hub     *Hub
	gateway *Handler
	conn    *websocket.Conn
	send    chan []byte
	userID  uint

	rooms    map[uint]bool
	roomsMux sync.RWMutex

	// sendMux makes enqueuing and closing the send channel mutually
	// exclusive, so the hub never writes to a closed channel.
	sendMux sync.Mutex
	closed  bool

	log *zap.Logger
}

func newClient(hub *Hub, gateway *Handler, conn *websocket.Conn, userID uint, log *zap.Logger) *Client {
	id := uuid.New().String()
	return &Client{
		ID:      id,
		hub:     hub,
		gateway: gateway,
		conn:    conn,
		send:    make(chan []byte, 256),
		userID:  userID,
		rooms:   make(map[uint]bool),
		log:     log.With(zap.String("conn_id", id), zap.Uint("user_id", userID)),
	}
}

// readPump pumps events from the websocket connection to the gateway. The
// deferred unregister is what guarantees room cleanup on disconnect.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn("connection read error", zap.Error(err))
			}
			break
		}

		c.gateway.handleEvent(c, message)
	}
}

// writePump pumps queued events to the websocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Add queued events to the current websocket message
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// joinRoom adds the client to a group's room
func (c *Client) joinRoom(groupID uint) {
	c.hub.JoinRoom(c, groupID)
}

// leaveRoom removes the client from a group's room
func (c *Client) leaveRoom(groupID uint) {
	c.hub.LeaveRoom(c, groupID)
}

// addRoom and dropRoom maintain the client-side room set; the hub calls
// them while it updates its own maps.

func (c *Client) addRoom(groupID uint) {
	c.roomsMux.Lock()
	defer c.roomsMux.Unlock()
	c.rooms[groupID] = true
}

func (c *Client) dropRoom(groupID uint) {
	c.roomsMux.Lock()
	defer c.roomsMux.Unlock()
	delete(c.rooms, groupID)
}

// joinedRooms snapshots the rooms this connection is subscribed to.
func (c *Client) joinedRooms() []uint {
	c.roomsMux.RLock()
	defer c.roomsMux.RUnlock()
	ids := make([]uint, 0, len(c.rooms))
	for id := range c.rooms {
		ids = append(ids, id)
	}
	return ids
}

// trySend enqueues an event for the write pump without blocking. It reports
// false when the queue is full or already closed; the hub drops the
// connection in either case.
func (c *Client) trySend(data []byte) bool {
	c.sendMux.Lock()
	defer c.sendMux.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// closeSend closes the outbound queue, ending the write pump. Closing twice
// is a no-op.
func (c *Client) closeSend() {
	c.sendMux.Lock()
	defer c.sendMux.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}
