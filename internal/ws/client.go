package ws

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/quocanhngo/eventspot/internal/model"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 8192
)

// Session represents one foreground page connected over websocket
type Session struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	ID   string

	mu  sync.RWMutex
	url string
}

// NewSession creates a session for conn with a fresh ID
func NewSession(hub *Hub, conn *websocket.Conn, url string) *Session {
	return &Session{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, 64),
		ID:   uuid.NewString(),
		url:  url,
	}
}

// URL returns the page the session last reported
func (s *Session) URL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.url
}

// SetURL records the page the session is showing
func (s *Session) SetURL(url string) {
	s.mu.Lock()
	s.url = url
	s.mu.Unlock()
}

// ReadPump pumps events from the websocket connection to the hub handler.
// Runs in a per-session goroutine.
func (s *Session) ReadPump() {
	defer func() {
		s.hub.leave(s)
		s.conn.Close()
	}()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		var event model.WSEvent
		if err := json.Unmarshal(message, &event); err != nil {
			log.Printf("Error parsing WebSocket message: %v", err)
			continue
		}

		if s.hub.handler != nil {
			s.hub.handler(s, event)
		}
	}
}

// WritePump pumps events from the hub to the websocket connection.
// Runs in a per-session goroutine.
func (s *Session) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case message, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// One event per frame so pages can JSON.parse each message
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Attach registers a session for conn and starts its pumps
func (h *Hub) Attach(conn *websocket.Conn, url string) *Session {
	s := NewSession(h, conn, url)
	h.Register(s)
	go s.WritePump()
	go s.ReadPump()
	return s
}
