// Package ws keeps the websocket connections between the agent and the
// foreground pages it controls.
package ws

import (
	"context"
	"encoding/json"
	"log"
	"sort"
	"sync"

	"github.com/quocanhngo/eventspot/internal/model"
)

// Info is a snapshot of one connected session
type Info struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Handler processes an event received from a session
type Handler func(s *Session, event model.WSEvent)

// Hub manages all foreground sessions connected to this agent
type Hub struct {
	sessions map[string]*Session
	mu       sync.RWMutex

	// Channels for registering/unregistering sessions
	register   chan *Session
	unregister chan *Session
	done       chan struct{}

	handler Handler

	// Called with the new session count after every change
	onChange func(count int)
}

// NewHub creates a new session hub. handler and onChange may be nil.
func NewHub(handler Handler, onChange func(count int)) *Hub {
	return &Hub{
		sessions:   make(map[string]*Session),
		register:   make(chan *Session),
		unregister: make(chan *Session),
		done:       make(chan struct{}),
		handler:    handler,
		onChange:   onChange,
	}
}

// Run starts the hub's main event loop
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.closeAll()
			return

		case s := <-h.register:
			h.addSession(s)

		case s := <-h.unregister:
			h.removeSession(s)
		}
	}
}

// Register queues a session for registration with the hub
func (h *Hub) Register(s *Session) {
	select {
	case h.register <- s:
	case <-h.done:
	}
}

func (h *Hub) leave(s *Session) {
	select {
	case h.unregister <- s:
	case <-h.done:
	}
}

func (h *Hub) addSession(s *Session) {
	h.mu.Lock()
	h.sessions[s.ID] = s
	n := len(h.sessions)
	h.mu.Unlock()

	log.Printf("✅ Session connected: %s (total sessions: %d)", s.ID, n)
	if h.onChange != nil {
		h.onChange(n)
	}
}

func (h *Hub) removeSession(s *Session) {
	h.mu.Lock()
	if _, ok := h.sessions[s.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.sessions, s.ID)
	close(s.send)
	n := len(h.sessions)
	h.mu.Unlock()

	log.Printf("❌ Session disconnected: %s", s.ID)
	if h.onChange != nil {
		h.onChange(n)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, s := range h.sessions {
		close(s.send)
		delete(h.sessions, id)
	}
}

// Send delivers an event to one session. It reports whether the session
// exists and accepted the event.
func (h *Hub) Send(id string, event *model.WSEvent) bool {
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("Error marshaling event: %v", err)
		return false
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.sessions[id]
	if !ok {
		return false
	}
	return h.enqueue(s, data)
}

// Broadcast delivers an event to every session and returns how many took it
func (h *Hub) Broadcast(event *model.WSEvent) int {
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("Error marshaling broadcast event: %v", err)
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, s := range h.sessions {
		if h.enqueue(s, data) {
			n++
		}
	}
	return n
}

// enqueue must be called with h.mu held for reading
func (h *Hub) enqueue(s *Session, data []byte) bool {
	select {
	case s.send <- data:
		return true
	default:
		// Send buffer is full, drop the session
		go h.leave(s)
		return false
	}
}

// Sessions returns the connected sessions ordered by ID
func (h *Hub) Sessions() []Info {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]Info, 0, len(h.sessions))
	for _, s := range h.sessions {
		out = append(out, Info{ID: s.ID, URL: s.URL()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Count returns the number of connected sessions
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}
