// Package ws fans bus events out to the browser frontend over WebSocket,
// replacing the socket.io channel of the original service. Connection
// status, QR codes, delivery outcomes and contact refreshes all flow
// through here.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ivangillig/whatsapp-scheduler/internal/bus"
	"go.uber.org/zap"
)

// TokenVerifier validates a frontend auth token and returns the username.
type TokenVerifier interface {
	VerifyToken(token string) (string, error)
}

// Frame is one JSON message pushed to connected clients.
type Frame struct {
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// Hub tracks connected observers and forwards bus events to them. A slow
// client is dropped rather than allowed to stall the broadcast.
type Hub struct {
	bus      *bus.Bus
	verifier TokenVerifier
	origin   string
	logger   *zap.Logger

	mu      sync.RWMutex
	clients map[string]*client
	cancel  context.CancelFunc

	upgrader websocket.Upgrader
}

// NewHub creates a hub. origin restricts the allowed WebSocket origin;
// empty allows any.
func NewHub(b *bus.Bus, verifier TokenVerifier, origin string, logger *zap.Logger) *Hub {
	return &Hub{
		bus:      b,
		verifier: verifier,
		origin:   origin,
		logger:   logger,
		clients:  make(map[string]*client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return origin == "" || r.Header.Get("Origin") == origin
			},
		},
	}
}

// Start subscribes to the observable bus topics and begins broadcasting.
func (h *Hub) Start(ctx context.Context) {
	ctx, h.cancel = context.WithCancel(ctx)

	topics := []string{"connection.", "message.", "contacts."}
	for _, topic := range topics {
		ch, unsub := h.bus.Subscribe(topic, 256)
		go func() {
			defer unsub()
			for {
				select {
				case evt := <-ch:
					h.broadcast(evt)
				case <-ctx.Done():
					return
				}
			}
		}()
	}
}

// Stop disconnects all clients and stops broadcasting.
func (h *Hub) Stop() {
	if h.cancel != nil {
		h.cancel()
	}
	h.mu.Lock()
	for id, c := range h.clients {
		c.close()
		delete(h.clients, id)
	}
	h.mu.Unlock()
}

// Handle upgrades an HTTP request to a WebSocket observer connection.
// Clients authenticate with their API token as a query parameter.
func (h *Hub) Handle(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}
	if _, err := h.verifier.VerifyToken(token); err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c := newClient(uuid.NewString(), conn)
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	h.logger.Info("observer connected", zap.String("client", c.id))

	go c.writePump()
	go func() {
		c.readPump()
		h.drop(c.id)
	}()
}

func (h *Hub) broadcast(evt bus.Event) {
	data, err := json.Marshal(Frame{
		Event:     evt.Topic,
		Timestamp: evt.Timestamp,
		Payload:   evt.Payload,
	})
	if err != nil {
		h.logger.Error("failed to encode frame", zap.Error(err), zap.String("topic", evt.Topic))
		return
	}

	h.mu.RLock()
	var slow []string
	for id, c := range h.clients {
		if !c.send(data) {
			slow = append(slow, id)
		}
	}
	h.mu.RUnlock()

	for _, id := range slow {
		h.logger.Warn("dropping slow observer", zap.String("client", id))
		h.drop(id)
	}
}

func (h *Hub) drop(id string) {
	h.mu.Lock()
	c, ok := h.clients[id]
	if ok {
		delete(h.clients, id)
	}
	h.mu.Unlock()
	if ok {
		c.close()
	}
}
