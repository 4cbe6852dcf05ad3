package messaging

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/AtRiskMedia/reportcache-go/internal/domain/events"
	"github.com/AtRiskMedia/reportcache-go/internal/infrastructure/observability/logging"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 64
	eventBuffer    = 256
)

// Client represents a single connected sysop dashboard client.
type Client struct {
	Conn *websocket.Conn
	Send chan []byte
}

// EventHub fans events out to every connected client. Slow clients miss
// events rather than stall publishers.
type EventHub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	events     chan events.Event
	done       chan struct{}
	logger     *logging.ChanneledLogger
	mu         sync.RWMutex
}

// NewEventHub creates a hub. Run must be started before clients connect.
func NewEventHub(logger *logging.ChanneledLogger) *EventHub {
	return &EventHub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		events:     make(chan events.Event, eventBuffer),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run starts the hub's main loop. It returns when ctx ends, closing every
// client.
func (h *EventHub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.Send)
			}
			h.mu.Unlock()
			h.logger.Events().Info("Event hub stopped")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Events().Debug("Event client registered", "clients", h.ClientCount())

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
			}
			h.mu.Unlock()
			h.logger.Events().Debug("Event client unregistered", "clients", h.ClientCount())

		case event := <-h.events:
			h.broadcast(event)
		}
	}
}

// Publish queues event for delivery. It never blocks; events are dropped
// when the queue is full.
func (h *EventHub) Publish(event events.Event) {
	select {
	case h.events <- event:
	default:
		h.logger.Events().Warn("Event queue full, dropping event", "type", string(event.Type), "key", event.Key)
	}
}

// Register adds client. It reports false once the hub has stopped.
func (h *EventHub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes client and closes its send channel.
func (h *EventHub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// ClientCount returns the number of connected clients.
func (h *EventHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *EventHub) broadcast(event events.Event) {
	message, err := json.Marshal(event)
	if err != nil {
		h.logger.Events().Error("Error marshaling event", "type", string(event.Type), "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		select {
		case client.Send <- message:
		default:
		}
	}
}

// Serve pumps events to conn until either side closes. It blocks.
func (h *EventHub) Serve(conn *websocket.Conn) {
	client := &Client{Conn: conn, Send: make(chan []byte, sendBuffer)}
	if !h.Register(client) {
		conn.Close()
		return
	}

	go h.readPump(client)
	h.writePump(client)
}

// readPump discards inbound messages and unregisters the client when the
// connection drops.
func (h *EventHub) readPump(client *Client) {
	defer h.Unregister(client)

	client.Conn.SetReadLimit(maxMessageSize)
	client.Conn.SetReadDeadline(time.Now().Add(pongWait))
	client.Conn.SetPongHandler(func(string) error {
		return client.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := client.Conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *EventHub) writePump(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
