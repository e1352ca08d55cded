package dispatch

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/farzanaafroz998-source/FASTgo/internal/models"
	"github.com/farzanaafroz998-source/FASTgo/internal/observability"
	"github.com/farzanaafroz998-source/FASTgo/internal/state"
)

const (
	RoleAdmin    = "admin"
	RoleStore    = "store"
	RoleCustomer = "customer"
	RoleRider    = "rider"

	sendBuffer = 64
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var ErrNoSession = errors.New("no ws session")

// Message is the frame pushed to dashboards.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// WSSession is one connected dashboard.
type WSSession struct {
	conn    *websocket.Conn
	role    string
	subject string
	send    chan []byte
	once    sync.Once
}

func (s *WSSession) close() {
	s.once.Do(func() { close(s.send) })
}

// wants decides which store changes a session is shown. Customers see
// their own orders, riders see their own and unassigned ones, everyone
// else sees everything.
func (s *WSSession) wants(c state.Change) bool {
	switch s.role {
	case RoleCustomer:
		switch c.Kind {
		case state.ChangeOrder:
			return c.Order != nil && c.Order.CustomerID == s.subject
		case state.ChangeNotification, state.ChangeSync:
			return false
		}
	case RoleRider:
		switch c.Kind {
		case state.ChangeOrder:
			return c.Order != nil && (c.Order.RiderID == "" || c.Order.RiderID == s.subject)
		case state.ChangeLocation:
			return c.Location != nil && c.Location.RiderID == s.subject
		case state.ChangeSync:
			return false
		}
	}
	return true
}

// Hub fans store changes out to websocket sessions. It implements
// state.Observer.
type Hub struct {
	mu       sync.RWMutex
	sessions map[*WSSession]struct{}
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		sessions: make(map[*WSSession]struct{}),
		logger:   logger,
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
	}
}

// ServeWS upgrades the request. The role and id query parameters pick
// which changes the session receives.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", "error", err)
		return
	}
	s := &WSSession{
		conn:    conn,
		role:    r.URL.Query().Get("role"),
		subject: r.URL.Query().Get("id"),
		send:    make(chan []byte, sendBuffer),
	}
	h.add(s)
	go h.writePump(s)
	go h.readPump(s)
}

func (h *Hub) add(s *WSSession) {
	h.mu.Lock()
	h.sessions[s] = struct{}{}
	n := len(h.sessions)
	h.mu.Unlock()
	observability.WSSessions.Set(float64(n))
	h.logger.Debug("ws session opened", "role", s.role, "id", s.subject)
}

func (h *Hub) remove(s *WSSession) {
	h.mu.Lock()
	if _, ok := h.sessions[s]; ok {
		delete(h.sessions, s)
		s.close()
	}
	n := len(h.sessions)
	h.mu.Unlock()
	observability.WSSessions.Set(float64(n))
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

func (h *Hub) Observe(c state.Change) {
	b, err := json.Marshal(Message{Type: string(c.Kind), Data: c})
	if err != nil {
		h.logger.Error("ws encode failed", "error", err)
		return
	}
	h.mu.RLock()
	var slow []*WSSession
	for s := range h.sessions {
		if !s.wants(c) {
			continue
		}
		select {
		case s.send <- b:
		default:
			slow = append(slow, s)
		}
	}
	h.mu.RUnlock()
	for _, s := range slow {
		h.logger.Warn("ws session too slow, dropping", "role", s.role, "id", s.subject)
		h.remove(s)
	}
}

// Offer pushes an assignment straight to a rider's sessions.
func (h *Hub) Offer(riderID string, o models.Order) error {
	b, err := json.Marshal(Message{Type: "offer", Data: o})
	if err != nil {
		return err
	}
	delivered := false
	h.mu.RLock()
	for s := range h.sessions {
		if s.role != RoleRider || s.subject != riderID {
			continue
		}
		select {
		case s.send <- b:
			delivered = true
		default:
		}
	}
	h.mu.RUnlock()
	if !delivered {
		return ErrNoSession
	}
	return nil
}

// Close disconnects every session.
func (h *Hub) Close() {
	h.mu.Lock()
	for s := range h.sessions {
		delete(h.sessions, s)
		s.close()
	}
	h.mu.Unlock()
	observability.WSSessions.Set(0)
}

func (h *Hub) writePump(s *WSSession) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()
	for {
		select {
		case b, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				h.logger.Debug("ws send error", "error", err)
				h.remove(s)
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(s)
				return
			}
		}
	}
}

// readPump only drains control frames so close and pong are noticed.
func (h *Hub) readPump(s *WSSession) {
	defer h.remove(s)
	s.conn.SetReadLimit(512)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}
