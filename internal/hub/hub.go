package hub

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"pong-platform/backend/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// TokenValidator understands the bearer tokens minted by the auth
// collaborator.
type TokenValidator interface {
	ValidateToken(token string) (int64, error)
}

// MessageHandler processes one inbound frame from a connected user.
type MessageHandler func(userID int64, msg Message)

// Hub owns every live connection, maps user to socket, and fans out typed
// events. Delivery is best-effort: a full send buffer or a missing
// connection drops the frame silently.
type Hub struct {
	mu      sync.RWMutex
	clients map[int64]*Client

	busMu    sync.RWMutex
	handlers map[string][]func(data interface{})

	upgrader  websocket.Upgrader
	auth      TokenValidator
	limiter   *middleware.RateLimiter
	onMessage MessageHandler

	// onDisconnect fires when a user's last connection goes away.
	onDisconnect func(userID int64)
}

// New creates a Hub. The message and disconnect handlers are wired by the
// server before any connection is accepted.
func New(auth TokenValidator, limiter *middleware.RateLimiter) *Hub {
	return &Hub{
		clients:  make(map[int64]*Client),
		handlers: make(map[string][]func(data interface{})),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		auth:    auth,
		limiter: limiter,
	}
}

// SetMessageHandler registers the inbound frame dispatcher.
func (h *Hub) SetMessageHandler(handler MessageHandler) {
	h.onMessage = handler
}

// SetDisconnectHandler registers the transport-close hook.
func (h *Hub) SetDisconnectHandler(handler func(userID int64)) {
	h.onDisconnect = handler
}

// HandleWebSocket upgrades the HTTP request and registers the connection.
// An invalid or missing token closes the socket with policy violation (1008).
func (h *Hub) HandleWebSocket(c *gin.Context) {
	token := c.Query("token")

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Println("[HUB] WebSocket upgrade error:", err)
		return
	}

	userID, err := h.auth.ValidateToken(token)
	if err != nil {
		deadline := time.Now().Add(time.Second)
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "invalid token"), deadline)
		conn.Close()
		return
	}

	client := &Client{
		UserID:      userID,
		ConnID:      uuid.New().String(),
		Status:      StatusOnline,
		ConnectedAt: time.Now(),
		Conn:        conn,
		Send:        make(chan []byte, 256),
		done:        make(chan struct{}),
	}

	h.addConnection(client)

	go client.writePump()
	go client.readPump(h)
}

// addConnection registers a client, replacing (and closing) any previous
// connection for the same user.
func (h *Hub) addConnection(client *Client) {
	h.mu.Lock()
	old, existed := h.clients[client.UserID]
	h.clients[client.UserID] = client
	h.mu.Unlock()

	if existed {
		log.Printf("[HUB] Replacing connection for user %d", client.UserID)
		// The old write pump drains out and closes its own socket; its
		// Send channel is never closed, so an in-flight emission against
		// the stale client cannot panic.
		old.shutdown()
	}

	log.Printf("[HUB] User %d connected (%s)", client.UserID, client.ConnID)
	h.broadcastStatus(client.UserID, StatusOnline)
}

// removeClient unregisters a client if it is still the user's current
// connection. A stale client (already replaced) is ignored.
func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	current, ok := h.clients[c.UserID]
	if !ok || current.ConnID != c.ConnID {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.UserID)
	h.mu.Unlock()

	if h.limiter != nil {
		h.limiter.Forget(c.UserID)
	}

	log.Printf("[HUB] User %d disconnected (%s)", c.UserID, c.ConnID)
	h.broadcastStatus(c.UserID, StatusOffline)

	if h.onDisconnect != nil {
		h.onDisconnect(c.UserID)
	}
}

// dispatch applies rate limiting and hands the frame to the server handler.
func (h *Hub) dispatch(c *Client, msg Message) {
	if h.limiter != nil && !h.limiter.Allow(c.UserID) {
		h.EmitToUser(c.UserID, "error", map[string]interface{}{
			"message": "rate limit exceeded",
		})
		return
	}

	if h.onMessage != nil {
		h.onMessage(c.UserID, msg)
	}
}

// IsConnected reports whether the user currently has a live connection.
func (h *Hub) IsConnected(userID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[userID]
	return ok
}

// SetStatus updates a user's presence status and broadcasts the change.
func (h *Hub) SetStatus(userID int64, status string) {
	h.mu.Lock()
	client, ok := h.clients[userID]
	if ok {
		client.Status = status
	}
	h.mu.Unlock()

	if ok {
		h.broadcastStatus(userID, status)
	}
}

// Statuses returns the presence status of every connected user.
func (h *Hub) Statuses() map[int64]string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	statuses := make(map[int64]string, len(h.clients))
	for id, client := range h.clients {
		statuses[id] = client.Status
	}
	return statuses
}

// EmitToUser sends one typed event to one user. Drops silently if the user
// is not connected or their buffer is full.
func (h *Hub) EmitToUser(userID int64, event string, data interface{}) {
	h.mu.RLock()
	client, ok := h.clients[userID]
	h.mu.RUnlock()

	if !ok {
		return
	}
	h.send(client, event, data)
}

// EmitToUsers sends one typed event to a set of users.
func (h *Hub) EmitToUsers(userIDs []int64, event string, data interface{}) {
	for _, id := range userIDs {
		h.EmitToUser(id, event, data)
	}
}

// Broadcast sends one typed event to every live connection.
func (h *Hub) Broadcast(event string, data interface{}) {
	frame, err := encodeFrame(event, data)
	if err != nil {
		log.Printf("[HUB] Failed to encode %s broadcast: %v", event, err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.clients {
		select {
		case client.Send <- frame:
		default:
		}
	}
}

// On registers an in-process subscriber for a named event. Used for the
// tournament game-ended fan-in; never crosses the network.
func (h *Hub) On(event string, handler func(data interface{})) {
	h.busMu.Lock()
	defer h.busMu.Unlock()
	h.handlers[event] = append(h.handlers[event], handler)
}

// Publish delivers an in-process event to every registered subscriber,
// synchronously in the caller's goroutine.
func (h *Hub) Publish(event string, data interface{}) {
	h.busMu.RLock()
	handlers := h.handlers[event]
	h.busMu.RUnlock()

	for _, handler := range handlers {
		handler(data)
	}
}

func (h *Hub) send(client *Client, event string, data interface{}) {
	frame, err := encodeFrame(event, data)
	if err != nil {
		log.Printf("[HUB] Failed to encode %s for user %d: %v", event, client.UserID, err)
		return
	}

	select {
	case client.Send <- frame:
	default:
		// Buffer full: drop. The next game-update supersedes this one.
	}
}

// broadcastStatus pushes a presence delta to everyone.
func (h *Hub) broadcastStatus(userID int64, status string) {
	h.Broadcast("user-statuses-updated", map[string]interface{}{
		"user_id": userID,
		"status":  status,
	})
}

func encodeFrame(event string, data interface{}) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Message{Event: event, Data: raw})
}
