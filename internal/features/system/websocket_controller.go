package system

import (
	"context"
	"sync"
	"time"

	"github.com/Altroz1812/wfm-sep-loanzen/internal/features/engine"
	"github.com/Altroz1812/wfm-sep-loanzen/internal/middleware"

	"github.com/gofiber/contrib/websocket"
	"go.uber.org/zap"
)

const (
	// subscriberBuffer is how many events a client may fall behind before
	// it is dropped.
	subscriberBuffer = 16
	writeTimeout     = 10 * time.Second
)

// eventConn is the part of *websocket.Conn the hub writes to.
type eventConn interface {
	WriteJSON(v any) error
	Close() error
}

// subscriber owns one connection. Only its writer goroutine writes to conn.
type subscriber struct {
	conn eventConn
	send chan engine.TransitionEvent
	done chan struct{}
	once sync.Once
}

func (s *subscriber) stop() {
	s.once.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

// EventHub streams committed transitions to the websocket clients of the
// case's tenant. Publishing never waits on a client.
type EventHub struct {
	logger *zap.Logger

	mu   sync.RWMutex
	subs map[string]map[*subscriber]struct{}
}

func NewEventHub(logger *zap.Logger) *EventHub {
	return &EventHub{
		logger: logger,
		subs:   make(map[string]map[*subscriber]struct{}),
	}
}

func (h *EventHub) register(tenantID string, conn eventConn) *subscriber {
	sub := &subscriber{
		conn: conn,
		send: make(chan engine.TransitionEvent, subscriberBuffer),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	if h.subs[tenantID] == nil {
		h.subs[tenantID] = make(map[*subscriber]struct{})
	}
	h.subs[tenantID][sub] = struct{}{}
	h.mu.Unlock()

	go h.writeLoop(tenantID, sub)
	return sub
}

func (h *EventHub) unregister(tenantID string, sub *subscriber) {
	h.mu.Lock()
	delete(h.subs[tenantID], sub)
	if len(h.subs[tenantID]) == 0 {
		delete(h.subs, tenantID)
	}
	h.mu.Unlock()
	sub.stop()
}

func (h *EventHub) writeLoop(tenantID string, sub *subscriber) {
	for {
		select {
		case <-sub.done:
			return
		case evt := <-sub.send:
			if err := sub.conn.WriteJSON(evt); err != nil {
				h.logger.Debug("dropping event subscriber",
					zap.String("tenant_id", tenantID),
					zap.Error(err),
				)
				h.unregister(tenantID, sub)
				return
			}
		}
	}
}

// Subscribers counts the open connections of a tenant.
func (h *EventHub) Subscribers(tenantID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[tenantID])
}

func (h *EventHub) OnTransition(_ context.Context, evt engine.TransitionEvent) {
	h.mu.RLock()
	targets := make([]*subscriber, 0, len(h.subs[evt.TenantID]))
	for sub := range h.subs[evt.TenantID] {
		targets = append(targets, sub)
	}
	h.mu.RUnlock()

	for _, sub := range targets {
		select {
		case sub.send <- evt:
		default:
			h.logger.Warn("event subscriber too slow, dropping",
				zap.String("tenant_id", evt.TenantID),
				zap.String("case_id", evt.CaseID),
			)
			h.unregister(evt.TenantID, sub)
		}
	}
}

// HandleWebSocket holds the connection open until the client goes away or
// the hub drops it. Incoming messages are ignored.
func (h *EventHub) HandleWebSocket(c *websocket.Conn) {
	tenantID, _ := c.Locals(middleware.TenantLocalsKey).(string)
	if tenantID == "" {
		_ = c.Close()
		return
	}

	sub := h.register(tenantID, &deadlineConn{conn: c})
	defer h.unregister(tenantID, sub)

	for {
		if _, _, err := c.ReadMessage(); err != nil {
			return
		}
	}
}

// deadlineConn bounds every write so a dead peer fails instead of hanging.
type deadlineConn struct {
	conn *websocket.Conn
}

func (d *deadlineConn) WriteJSON(v any) error {
	if err := d.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return d.conn.WriteJSON(v)
}

func (d *deadlineConn) Close() error {
	return d.conn.Close()
}
