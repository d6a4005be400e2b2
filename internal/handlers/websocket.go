package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
	"golang.org/x/time/rate"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// WSMessage is the wire format for all WebSocket broadcasts
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// WebSocketHandler streams run status events to connected clients. Progress
// updates are throttled; warnings, errors and lifecycle events always go out.
type WebSocketHandler struct {
	logger           arbor.ILogger
	eventService     interfaces.EventService
	clients          map[*websocket.Conn]bool
	clientMutex      map[*websocket.Conn]*sync.Mutex
	mu               sync.RWMutex
	statusThrottler  *rate.Limiter
	minLevel         int
	serverInstanceID string // Clients use this to detect a server restart
}

var levelRanks = map[string]int{
	"debug": 0,
	"info":  1,
	"warn":  2,
	"error": 3,
}

func levelRank(level string) int {
	if rank, ok := levelRanks[level]; ok {
		return rank
	}
	return levelRanks["info"]
}

// NewWebSocketHandler creates the handler and subscribes it to run events
func NewWebSocketHandler(eventService interfaces.EventService, logger arbor.ILogger, config *common.WebSocketConfig) *WebSocketHandler {
	h := &WebSocketHandler{
		logger:           logger,
		eventService:     eventService,
		clients:          make(map[*websocket.Conn]bool),
		clientMutex:      make(map[*websocket.Conn]*sync.Mutex),
		minLevel:         levelRank("info"),
		serverInstanceID: uuid.New().String(),
	}

	if config != nil {
		h.minLevel = levelRank(config.MinLevel)
		if config.ThrottleInterval != "" {
			if interval, err := time.ParseDuration(config.ThrottleInterval); err == nil {
				h.statusThrottler = rate.NewLimiter(rate.Every(interval), 1)
			} else {
				logger.Warn().
					Err(err).
					Str("interval", config.ThrottleInterval).
					Msg("Failed to parse throttle interval, throttling disabled")
			}
		}
	}

	if eventService != nil {
		h.subscribeToRunEvents()
	}

	logger.Info().
		Str("server_instance_id", h.serverInstanceID).
		Msg("WebSocket handler initialized")

	return h
}

// subscribeToRunEvents wires pipeline events into WebSocket broadcasts
func (h *WebSocketHandler) subscribeToRunEvents() {
	h.eventService.Subscribe(interfaces.EventStatusUpdate, func(ctx context.Context, event interfaces.Event) error {
		status, ok := event.Payload.(models.StatusEvent)
		if !ok {
			return nil
		}

		rank := levelRank(status.Level)
		if rank < h.minLevel {
			return nil
		}

		// Progress chatter is throttled; warnings and errors always pass
		if rank < levelRanks["warn"] && h.statusThrottler != nil && !h.statusThrottler.Allow() {
			return nil
		}

		h.broadcast(WSMessage{Type: "status_update", Payload: status})
		return nil
	})

	forward := func(msgType string) interfaces.EventHandler {
		return func(ctx context.Context, event interfaces.Event) error {
			h.broadcast(WSMessage{Type: msgType, Payload: event.Payload})
			return nil
		}
	}

	h.eventService.Subscribe(interfaces.EventRunStarted, forward("run_started"))
	h.eventService.Subscribe(interfaces.EventRunCompleted, forward("run_completed"))
	h.eventService.Subscribe(interfaces.EventItemProcessed, forward("item_processed"))
	h.eventService.Subscribe(interfaces.EventItemFailed, forward("item_failed"))
}

// HandleWebSocket upgrades the connection and registers the client
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	h.mu.Lock()
	h.clients[conn] = true
	h.clientMutex[conn] = &sync.Mutex{}
	clientCount := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug().Int("clients", clientCount).Msg("WebSocket client connected")

	h.sendTo(conn, WSMessage{
		Type: "connected",
		Payload: map[string]string{
			"server_instance_id": h.serverInstanceID,
		},
	})

	go h.readLoop(conn)
}

// readLoop drains client messages until the connection closes; clients only
// send pings, all commands go over HTTP
func (h *WebSocketHandler) readLoop(conn *websocket.Conn) {
	defer h.removeClient(conn)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *WebSocketHandler) removeClient(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	delete(h.clientMutex, conn)
	clientCount := len(h.clients)
	h.mu.Unlock()

	conn.Close()
	h.logger.Debug().Int("clients", clientCount).Msg("WebSocket client disconnected")
}

// sendTo writes one message to one client under its write mutex
func (h *WebSocketHandler) sendTo(conn *websocket.Conn, msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("type", msg.Type).Msg("Failed to marshal WebSocket message")
		return
	}

	h.mu.RLock()
	mutex := h.clientMutex[conn]
	h.mu.RUnlock()
	if mutex == nil {
		return
	}

	mutex.Lock()
	err = conn.WriteMessage(websocket.TextMessage, data)
	mutex.Unlock()

	if err != nil {
		h.removeClient(conn)
	}
}

// broadcast sends a message to every connected client
func (h *WebSocketHandler) broadcast(msg WSMessage) {
	h.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		clients = append(clients, conn)
	}
	h.mu.RUnlock()

	for _, conn := range clients {
		h.sendTo(conn, msg)
	}
}

// ClientCount returns the number of connected clients
func (h *WebSocketHandler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
