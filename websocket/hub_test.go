package websocket

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testClient(hub *Hub, userID uint) *Client {
	return newClient(hub, nil, nil, userID, zap.NewNop())
}

func receiveEvent(t *testing.T, client *Client) Event {
	t.Helper()
	select {
	case data := <-client.send:
		var evt Event
		require.NoError(t, json.Unmarshal(data, &evt))
		return evt
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestJoinRoomIdempotent(t *testing.T) {
	hub := NewHub(zap.NewNop())
	client := testClient(hub, 1)

	hub.JoinRoom(client, 7)
	hub.JoinRoom(client, 7)

	assert.Equal(t, 1, hub.RoomSize(7))
}

func TestLeaveRoomIdempotent(t *testing.T) {
	hub := NewHub(zap.NewNop())
	client := testClient(hub, 1)

	hub.JoinRoom(client, 7)
	hub.LeaveRoom(client, 7)
	hub.LeaveRoom(client, 7)

	assert.Equal(t, 0, hub.RoomSize(7))
}

func TestJoinLeaveDifferentRoomsIndependent(t *testing.T) {
	hub := NewHub(zap.NewNop())
	client := testClient(hub, 1)

	hub.JoinRoom(client, 1)
	hub.JoinRoom(client, 2)
	hub.LeaveRoom(client, 1)

	assert.Equal(t, 0, hub.RoomSize(1))
	assert.Equal(t, 1, hub.RoomSize(2))
}

func TestUnregisterRemovesFromAllRooms(t *testing.T) {
	hub := NewHub(zap.NewNop())
	go hub.Run()

	client := testClient(hub, 1)
	hub.Register(client)
	hub.JoinRoom(client, 1)
	hub.JoinRoom(client, 2)

	hub.Unregister(client)

	require.Eventually(t, func() bool {
		return hub.RoomSize(1) == 0 && hub.RoomSize(2) == 0
	}, time.Second, 10*time.Millisecond,
		"disconnect cleanup must empty every room the connection was in")
}

func TestBroadcastReachesOnlyRoomMembers(t *testing.T) {
	hub := NewHub(zap.NewNop())

	sender := testClient(hub, 1)
	member := testClient(hub, 2)
	outsider := testClient(hub, 3)

	hub.JoinRoom(sender, 7)
	hub.JoinRoom(member, 7)
	hub.JoinRoom(outsider, 8)

	hub.BroadcastToRoom(7, "message", map[string]string{"content": "hey"})

	for _, client := range []*Client{sender, member} {
		evt := receiveEvent(t, client)
		assert.Equal(t, "message", evt.Type)
	}
	assert.Empty(t, outsider.send, "other rooms must not see the broadcast")
}

func TestBroadcastAfterLeaveNotDelivered(t *testing.T) {
	hub := NewHub(zap.NewNop())

	client := testClient(hub, 1)
	hub.JoinRoom(client, 7)
	hub.LeaveRoom(client, 7)

	hub.BroadcastToRoom(7, "message", map[string]string{"content": "hey"})

	assert.Empty(t, client.send)
}

func TestUnregisterCleansOnlyOwnRooms(t *testing.T) {
	hub := NewHub(zap.NewNop())
	go hub.Run()

	leaving := testClient(hub, 1)
	staying := testClient(hub, 2)
	hub.Register(leaving)
	hub.Register(staying)
	hub.JoinRoom(leaving, 1)
	hub.JoinRoom(staying, 2)

	hub.Unregister(leaving)

	require.Eventually(t, func() bool {
		return hub.RoomSize(1) == 0
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, hub.RoomSize(2))
}

// TestBroadcastSurvivesDisconnectChurn races broadcasts against the
// disconnect path over a large room. Delivery must keep going; a
// connection torn down mid-broadcast is skipped, never written to.
func TestBroadcastSurvivesDisconnectChurn(t *testing.T) {
	hub := NewHub(zap.NewNop())

	const n = 200
	clients := make([]*Client, n)
	for i := range clients {
		clients[i] = testClient(hub, uint(i+1))
		hub.JoinRoom(clients[i], 7)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, client := range clients {
			hub.removeClient(client)
		}
	}()
	for i := 0; i < 500; i++ {
		hub.BroadcastToRoom(7, "message", map[string]int{"seq": i})
	}
	<-done

	assert.Equal(t, 0, hub.RoomSize(7))
}

// TestBroadcastDropsSlowConnection fills a connection's send buffer and
// checks the room keeps working without it.
func TestBroadcastDropsSlowConnection(t *testing.T) {
	hub := NewHub(zap.NewNop())

	slow := testClient(hub, 1)
	healthy := testClient(hub, 2)
	hub.JoinRoom(slow, 7)
	hub.JoinRoom(healthy, 7)

	for i := 0; i < cap(slow.send); i++ {
		slow.send <- []byte("backlog")
	}

	hub.BroadcastToRoom(7, "message", map[string]string{"content": "hey"})

	assert.Equal(t, 1, hub.RoomSize(7), "the stalled connection is dropped")
	evt := receiveEvent(t, healthy)
	assert.Equal(t, "message", evt.Type, "remaining members still get the message")

	// The dropped client's queue is closed once drained.
	for i := 0; i < cap(slow.send); i++ {
		<-slow.send
	}
	_, open := <-slow.send
	assert.False(t, open)
}
