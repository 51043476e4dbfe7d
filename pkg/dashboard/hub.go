package dashboard

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // local operator dashboard
	},
}

// Hub fans live events (signals, exit alerts, retirements) out to connected
// websocket clients.
type Hub struct {
	clients   map[*websocket.Conn]bool
	broadcast chan []byte
	mu        sync.Mutex
}

func NewHub() *Hub {
	return &Hub{
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan []byte, 256),
	}
}

func (h *Hub) Run() {
	for message := range h.broadcast {
		h.mu.Lock()
		for client := range h.clients {
			// Write deadline keeps one stalled client from blocking the hub.
			_ = client.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
				client.Close()
				delete(h.clients, client)
			}
		}
		h.mu.Unlock()
	}
}

// Broadcast pushes a typed event to every client. Drops the event when the
// queue is full rather than blocking a caller on slow consumers.
func (h *Hub) Broadcast(event string, payload interface{}) {
	msg, err := json.Marshal(map[string]interface{}{
		"event":   event,
		"payload": payload,
		"ts":      time.Now().UTC(),
	})
	if err != nil {
		return
	}
	select {
	case h.broadcast <- msg:
	default:
		log.Warn().Str("event", event).Msg("websocket queue full, event dropped")
	}
}

// Subscribe upgrades the connection and keeps it registered until it closes.
func (h *Hub) Subscribe(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	h.mu.Lock()
	h.clients[conn] = true
	n := len(h.clients)
	h.mu.Unlock()
	log.Info().Int("clients", n).Msg("websocket client connected")

	// Reads are discarded; the stream is push-only, but reading is how we
	// learn about disconnects.
	go func() {
		defer func() {
			h.mu.Lock()
			delete(h.clients, conn)
			h.mu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
