package telemetry

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// PushFunc delivers one telemetry snapshot to a subscriber.
type PushFunc func(State)

// Hub fans telemetry snapshots out to push subscribers. A failing push is
// logged and the subscriber kept; removal happens only on explicit
// unsubscribe. This is deliberately weaker than the binary-stream
// registry, which drops a subscriber on its first delivery failure.
type Hub struct {
	mu    sync.RWMutex
	subs  map[string]PushFunc
	store *Store
	log   zerolog.Logger
}

// NewHub creates a hub reading initial snapshots from store.
func NewHub(store *Store, log zerolog.Logger) *Hub {
	return &Hub{
		subs:  make(map[string]PushFunc),
		store: store,
		log:   log.With().Str("component", "telemetry").Logger(),
	}
}

// Subscribe registers a push function under a unique ID.
func (h *Hub) Subscribe(id string, fn PushFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs[id] = fn
}

// Unsubscribe removes a subscriber by ID.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, id)
}

// Count returns the number of registered subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Clear drops every subscriber. Used by the shutdown sequence.
func (h *Hub) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs = make(map[string]PushFunc)
}

// Broadcast pushes state to every subscriber. A panicking push function
// is contained and logged; it never interrupts delivery to the rest and
// never unregisters the subscriber.
func (h *Hub) Broadcast(state State) {
	h.mu.RLock()
	subs := make(map[string]PushFunc, len(h.subs))
	for id, fn := range h.subs {
		subs[id] = fn
	}
	h.mu.RUnlock()

	for id, fn := range subs {
		h.push(id, fn, state)
	}
}

func (h *Hub) push(id string, fn PushFunc, state State) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error().Str("subscriber", id).Interface("panic", r).
				Msg("Telemetry push failed")
		}
	}()
	fn(state)
}

// ServeSSE handles a long-lived text/event-stream subscription. The
// client gets one event with the current snapshot immediately, then one
// per subsequent update, until it disconnects.
func (h *Hub) ServeSSE(w http.ResponseWriter, r *http.Request) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return fmt.Errorf("response writer does not support streaming")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	// Buffered so a slow client drops updates instead of blocking the
	// datagram classifier that triggers broadcasts.
	events := make(chan State, 16)

	id := uuid.NewString()
	h.Subscribe(id, func(state State) {
		select {
		case events <- state:
		default:
			h.log.Warn().Str("subscriber", id).Msg("Dropping telemetry event for slow client")
		}
	})
	defer h.Unsubscribe(id)

	h.log.Debug().Str("subscriber", id).Msg("SSE client connected")

	if err := writeSSE(w, flusher, h.store.Snapshot()); err != nil {
		return err
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			h.log.Debug().Str("subscriber", id).Msg("SSE client disconnected")
			return nil
		case state := <-events:
			if err := writeSSE(w, flusher, state); err != nil {
				return err
			}
		}
	}
}

// writeSSE emits one event: a JSON-encoded snapshot terminated by a
// blank line.
func writeSSE(w http.ResponseWriter, flusher http.Flusher, state State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal telemetry state: %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("failed to write SSE event: %w", err)
	}
	flusher.Flush()
	return nil
}
