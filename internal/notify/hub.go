package notify

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/jspindler/takt/internal/event"
)

// Hub broadcasts bus events to connected websocket clients. Communication
// is one-way, server to client; the shop-floor display never writes back.
type Hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	mu         sync.Mutex
	logger     *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		logger:     logger,
	}
}

// Attach subscribes the hub to every bus event.
func (h *Hub) Attach(bus *event.Bus) {
	bus.SubscribeAll(func(e event.Event) {
		payload, err := json.Marshal(e)
		if err != nil {
			h.logger.Error("encoding event for websocket", "type", e.Type, "error", err)
			return
		}
		// Drop rather than block when the broadcast queue is full.
		select {
		case h.broadcast <- payload:
		default:
		}
	})
}

// Run drives the hub loop. Call it on its own goroutine.
func (h *Hub) Run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = true
			h.mu.Unlock()
		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			h.mu.Unlock()
		case message := <-h.broadcast:
			h.mu.Lock()
			for conn := range h.clients {
				if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
					h.logger.Warn("writing to websocket client", "error", err)
					conn.Close()
					delete(h.clients, conn)
				}
			}
			h.mu.Unlock()
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The serve endpoint is plant-internal; origin checks are left to
		// the reverse proxy in front of it.
		return true
	},
}

// ServeWs upgrades an HTTP request to a websocket subscription.
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("upgrading websocket", "error", err)
		return
	}
	h.register <- conn
}
