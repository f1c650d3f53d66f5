package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Presence statuses.
const (
	StatusOffline = "OFFLINE"
	StatusOnline  = "ONLINE"
	StatusInGame  = "IN_GAME"
)

// Message is the wire shape of every frame in both directions.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Client represents one authenticated websocket connection. A user has at
// most one live client; a newer connection replaces the old one.
type Client struct {
	UserID      int64
	ConnID      string
	Status      string
	ConnectedAt time.Time
	Conn        *websocket.Conn
	Send        chan []byte

	done     chan struct{}
	stopOnce sync.Once
}

// shutdown tells the write pump to flush a close frame and exit. Send stays
// open, so a sender racing a replacement can never hit a closed channel; a
// frame queued after shutdown is simply never written.
func (c *Client) shutdown() {
	c.stopOnce.Do(func() {
		if c.done != nil {
			close(c.done)
		}
	})
}

// readPump pulls frames off the socket and hands them to the hub's message
// handler. It exits (and unregisters the client) on the first read error.
func (c *Client) readPump(h *Hub) {
	defer func() {
		h.removeClient(c)
		c.shutdown()
		c.Conn.Close()
	}()

	for {
		var msg Message
		err := c.Conn.ReadJSON(&msg)
		if err != nil {
			break
		}

		h.dispatch(c, msg)
	}
}

// writePump serializes all outbound frames for this connection. It alone
// closes the socket on the way out.
func (c *Client) writePump() {
	defer c.Conn.Close()

	for {
		select {
		case <-c.done:
			c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case message := <-c.Send:
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		}
	}
}
