package stream

import (
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Subscriber is one live binary-stream connection. The registry
// references the connection; the transport layer owns it.
type Subscriber struct {
	ID   string
	conn *websocket.Conn

	// writeMu serializes writes: Broadcast and the close path may touch
	// the connection from different goroutines.
	writeMu sync.Mutex

	mu   sync.Mutex
	open bool
}

// Open reports whether the connection is still usable for delivery.
func (s *Subscriber) Open() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

func (s *Subscriber) markClosed() {
	s.mu.Lock()
	s.open = false
	s.mu.Unlock()
}

// send delivers one binary chunk.
func (s *Subscriber) send(chunk []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.BinaryMessage, chunk)
}

// Registry tracks live binary-stream subscribers.
type Registry struct {
	mu   sync.RWMutex
	subs map[string]*Subscriber
	log  zerolog.Logger
}

// NewRegistry creates an empty subscriber registry.
func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{
		subs: make(map[string]*Subscriber),
		log:  log.With().Str("component", "stream").Logger(),
	}
}

// Add registers a connection and returns its subscriber handle.
func (r *Registry) Add(conn *websocket.Conn) *Subscriber {
	sub := &Subscriber{
		ID:   uuid.NewString(),
		conn: conn,
		open: true,
	}

	r.mu.Lock()
	r.subs[sub.ID] = sub
	total := len(r.subs)
	r.mu.Unlock()

	r.log.Info().Str("subscriber", sub.ID).Int("total", total).Msg("Stream client connected")
	return sub
}

// Remove unregisters a subscriber. It does not close the underlying
// connection; that belongs to the transport.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	sub, ok := r.subs[id]
	if ok {
		delete(r.subs, id)
	}
	total := len(r.subs)
	r.mu.Unlock()

	if ok {
		sub.markClosed()
		r.log.Info().Str("subscriber", id).Int("total", total).Msg("Stream client removed")
	}
}

// Count returns the number of registered subscribers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

// Broadcast delivers one chunk to every open subscriber. A delivery
// failure removes that subscriber and is logged; the loop never aborts.
func (r *Registry) Broadcast(chunk []byte) {
	r.mu.RLock()
	subs := make([]*Subscriber, 0, len(r.subs))
	for _, sub := range r.subs {
		subs = append(subs, sub)
	}
	r.mu.RUnlock()

	for _, sub := range subs {
		if !sub.Open() {
			continue
		}
		if err := sub.send(chunk); err != nil {
			r.log.Error().Err(err).Str("subscriber", sub.ID).Msg("Failed to send to stream client")
			r.Remove(sub.ID)
		}
	}
}

// CloseAll force-closes every connection and empties the registry. Used
// by the shutdown sequence as the last line of defense.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	subs := r.subs
	r.subs = make(map[string]*Subscriber)
	r.mu.Unlock()

	for id, sub := range subs {
		sub.markClosed()
		if err := sub.conn.Close(); err != nil {
			r.log.Debug().Err(err).Str("subscriber", id).Msg("Error closing stream client")
		}
	}
}
