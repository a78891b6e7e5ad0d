package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/your-org/facebot/internal/models"
	"github.com/your-org/facebot/internal/observability"
	"github.com/your-org/facebot/pkg/dto"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client represents a connected WebSocket client.
type Client struct {
	conn    *websocket.Conn
	send    chan []byte
	photoID string // optional filter
}

type message struct {
	photoID string
	data    []byte
}

// Hub maintains active WebSocket clients and broadcasts face events.
type Hub struct {
	faceURL    func(faceID string) string
	clients    map[*Client]bool
	broadcast  chan message
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
}

// NewHub builds a hub. faceURL resolves the public address of a face crop and
// may be nil.
func NewHub(faceURL func(faceID string) string) *Hub {
	return &Hub{
		faceURL:    faceURL,
		clients:    make(map[*Client]bool),
		broadcast:  make(chan message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run starts the hub event loop. Call this in a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			observability.WSConnections.Inc()
			slog.Debug("ws client connected", "filter", client.photoID)

		case client := <-h.unregister:
			h.remove(client)

		case msg := <-h.broadcast:
			var stale []*Client
			h.mu.RLock()
			for client := range h.clients {
				if client.photoID != "" && client.photoID != msg.photoID {
					continue
				}
				select {
				case client.send <- msg.data:
				default:
					stale = append(stale, client)
				}
			}
			h.mu.RUnlock()

			// Client buffer full: disconnect.
			for _, client := range stale {
				h.remove(client)
			}
		}
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)
	observability.WSConnections.Dec()
	slog.Debug("ws client disconnected")
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastEvent sends a face event to all interested clients.
func (h *Hub) BroadcastEvent(ev models.FaceEvent) {
	out := dto.WSEvent{
		Type:            string(ev.Type),
		FaceID:          ev.FaceID,
		OriginalPhotoID: ev.OriginalPhotoID,
		PersonName:      ev.PersonName,
		Timestamp:       ev.Timestamp.Format(time.RFC3339),
	}
	if h.faceURL != nil {
		out.FaceURL = h.faceURL(ev.FaceID)
	}

	data, err := json.Marshal(out)
	if err != nil {
		slog.Error("marshal ws event", "error", err)
		return
	}
	h.broadcast <- message{photoID: ev.OriginalPhotoID, data: data}
}

// HandleWS handles WebSocket upgrade requests.
func (h *Hub) HandleWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("ws upgrade failed", "error", err)
		return
	}

	client := &Client{
		conn:    conn,
		send:    make(chan []byte, 64),
		photoID: c.Query("photo"),
	}

	h.register <- client

	go client.writePump()
	go client.readPump(h)
}

func (c *Client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (c *Client) readPump(h *Hub) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()

	for {
		// Incoming messages are discarded; reading detects disconnection.
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
