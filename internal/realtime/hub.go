// Package realtime pushes engine events to connected dashboards.
package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/spec-kit/lifecycle-engine/internal/auth"
	"github.com/spec-kit/lifecycle-engine/internal/events"
)

const (
	subscriberKey = "stream_subscriber"
	sendBuffer    = 64
)

type subscriber struct {
	staffID string
	send    chan []byte
}

// Hub fans events out to websocket subscribers. Events addressed to one recipient only reach
// that staff member's connections.
type Hub struct {
	mu     sync.RWMutex
	subs   map[*subscriber]struct{}
	logger *zap.Logger
}

// NewHub builds an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{subs: make(map[*subscriber]struct{}), logger: logger}
}

// Publish encodes event and delivers it to matching subscribers.
func (h *Hub) Publish(_ context.Context, event events.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	h.Broadcast(data)
	return nil
}

// Broadcast delivers an encoded event. Subscribers that cannot keep up are dropped.
func (h *Hub) Broadcast(data []byte) {
	recipient := gjson.GetBytes(data, "payload.recipient").String()

	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		if recipient != "" && sub.staffID != recipient {
			continue
		}
		select {
		case sub.send <- data:
		default:
			h.logger.Warn("dropping slow stream subscriber", zap.String("staff_id", sub.staffID))
			delete(h.subs, sub)
			close(sub.send)
		}
	}
}

// Len returns the number of live subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) subscribe(staffID string) *subscriber {
	sub := &subscriber{staffID: staffID, send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

func (h *Hub) unsubscribe(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub]; ok {
		delete(h.subs, sub)
		close(sub.send)
	}
}

// Upgrade rejects plain HTTP requests and records the caller for the websocket handler.
func (h *Hub) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return fiber.ErrUnauthorized
	}
	c.Locals(subscriberKey, principal.Actor.ID)
	return c.Next()
}

// Handler serves one websocket connection until the client disconnects.
func (h *Hub) Handler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		staffID, _ := conn.Locals(subscriberKey).(string)
		sub := h.subscribe(staffID)
		defer h.unsubscribe(sub)

		closed := make(chan struct{})
		go func() {
			defer close(closed)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case data, ok := <-sub.send:
				if !ok {
					return
				}
				if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
					h.logger.Debug("stream write failed", zap.String("staff_id", staffID), zap.Error(err))
					return
				}
			case <-closed:
				return
			}
		}
	})
}
