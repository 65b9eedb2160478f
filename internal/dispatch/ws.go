// Package dispatch pushes ride offers to captains and ride events to riders
// over websocket sessions.
package dispatch

import (
	"errors"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/abhijeeth-g/boots-backend/internal/models"
)

var ErrNoSession = errors.New("no websocket session")

// session wraps a connection with a write lock; gorilla connections do not
// allow concurrent writers.
type session struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *session) send(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(v)
}

// Registry holds the live sessions for one client role.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*session
}

func NewRegistry() *Registry { return &Registry{sessions: make(map[string]*session)} }

func (r *Registry) Add(id string, conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.sessions[id]; ok {
		_ = old.conn.Close()
	}
	r.sessions[id] = &session{conn: conn}
}

// Remove drops the session only while conn still owns it. A reconnect
// replaces the session in Add; the superseded connection's read loop then
// calls Remove with the old conn, which must not evict the new one.
func (r *Registry) Remove(id string, conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || s.conn != conn {
		return
	}
	_ = s.conn.Close()
	delete(r.sessions, id)
}

func (r *Registry) send(id string, v any) error {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return ErrNoSession
	}
	return s.send(v)
}

// Hub groups the two registries the matcher and handlers need.
type Hub struct {
	Captains *Registry
	Riders   *Registry
}

func NewHub() *Hub {
	return &Hub{Captains: NewRegistry(), Riders: NewRegistry()}
}

// Offer pushes a ride offer to one captain. Best-effort: a captain without a
// live session simply misses the offer.
func (h *Hub) Offer(offer models.RideOffer) error {
	return h.Captains.send(offer.CaptainID, offer)
}

// Notify pushes a ride event to the rider's tracking session.
func (h *Hub) Notify(riderID string, ev models.RideEvent) error {
	return h.Riders.send(riderID, ev)
}
