package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/auth"
	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/events"
	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/logging"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second
	wsSendBuffer = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Admin access tokens gate the feed, so any origin may connect
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSClient is one admin connection to the event feed
type WSClient struct {
	conn      *websocket.Conn
	send      chan []byte
	hub       *WSHub
	userID    int64
	closeChan chan struct{}
}

// WSHub fans domain events out to connected administrators
type WSHub struct {
	clients     map[*WSClient]bool
	userClients map[int64][]*WSClient
	broadcast   chan []byte
	register    chan *WSClient
	unregister  chan *WSClient
	done        chan struct{}
	stopOnce    sync.Once
	mu          sync.RWMutex
	log         *logging.Logger
}

// NewWSHub creates a new WebSocket hub
func NewWSHub() *WSHub {
	return &WSHub{
		clients:     make(map[*WSClient]bool),
		userClients: make(map[int64][]*WSClient),
		broadcast:   make(chan []byte, 4096),
		register:    make(chan *WSClient),
		unregister:  make(chan *WSClient),
		done:        make(chan struct{}),
		log:         logging.WithComponent("websocket"),
	}
}

// Run dispatches registrations and broadcasts until Stop is called
func (h *WSHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.userClients[client.userID] = append(h.userClients[client.userID], client)
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			h.remove(client)
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// slow consumer; unregister handles the close
					go func(c *WSClient) {
						select {
						case h.unregister <- c:
						case <-h.done:
						}
					}(client)
				}
			}
			h.mu.Unlock()

		case <-h.done:
			h.mu.Lock()
			for client := range h.clients {
				h.remove(client)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Stop ends Run and closes every connection
func (h *WSHub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// remove drops client and closes its send channel. Caller holds h.mu.
func (h *WSHub) remove(client *WSClient) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)

	clients := h.userClients[client.userID]
	for i, c := range clients {
		if c == client {
			h.userClients[client.userID] = append(clients[:i], clients[i+1:]...)
			break
		}
	}
	if len(h.userClients[client.userID]) == 0 {
		delete(h.userClients, client.userID)
	}
}

// BroadcastEvent sends an event to every connected client
func (h *WSHub) BroadcastEvent(event events.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.log.Error("Failed to marshal event", "type", event.Type, "error", err)
		return
	}

	select {
	case h.broadcast <- data:
	default:
		h.log.Warn("Broadcast channel full, dropping message", "type", event.Type)
	}
}

// GetClientCount returns the number of connected clients
func (h *WSHub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// DisconnectUser closes every feed connection held by userID.
// Called when an account loses admin rights or is disabled.
func (h *WSHub) DisconnectUser(userID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := append([]*WSClient(nil), h.userClients[userID]...)
	for _, client := range clients {
		h.remove(client)
	}
	if len(clients) > 0 {
		h.log.Info("Disconnected WebSocket clients", "user_id", userID, "count", len(clients))
	}
}

// Subscribe forwards every bus event to the hub
func (h *WSHub) Subscribe(bus *events.EventBus) {
	bus.SubscribeAll(h.BroadcastEvent)
}

func (c *WSClient) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.hub.log.Debug("WebSocket write error", "user_id", c.userID, "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.closeChan:
			return
		}
	}
}

func (c *WSClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
		close(c.closeChan)
	}()

	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		// the feed is one-way; reads only service control frames
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug("WebSocket read error", "user_id", c.userID, "error", err)
			}
			return
		}
	}
}

// handleAdminEvents upgrades an authenticated admin to the live event feed
// GET /api/admin/ws
func (s *Server) handleAdminEvents(c *gin.Context) {
	user := auth.CurrentUser(c)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.FromContext(c.Request.Context()).Warn("Failed to upgrade connection", "error", err)
		return
	}

	client := &WSClient{
		conn:      conn,
		send:      make(chan []byte, wsSendBuffer),
		hub:       s.hub,
		userID:    user.ID,
		closeChan: make(chan struct{}),
	}

	welcome, _ := json.Marshal(gin.H{
		"type":      "CONNECTED",
		"message":   "WebSocket connection established",
		"timestamp": s.licenses.Now(),
	})
	client.send <- welcome

	select {
	case s.hub.register <- client:
	case <-s.hub.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
