package telemetry

import (
	"sync"
	"time"
)

// State is the full telemetry snapshot pushed to subscribers. Fields are
// pointers so freshly started sessions serialize as explicit nulls.
type State struct {
	Battery    *int       `json:"battery"`
	Speed      *string    `json:"speed"`
	Time       *string    `json:"time"`
	LastUpdate *time.Time `json:"lastUpdate"`
}

// Store is the process-wide record of last-known device state.
type Store struct {
	mu    sync.RWMutex
	state State
	now   func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{now: time.Now}
}

// SetBattery records a battery reading and stamps LastUpdate.
func (s *Store) SetBattery(percent int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Battery = &percent
	s.touch()
}

// SetSpeed records a speed reading and stamps LastUpdate.
func (s *Store) SetSpeed(speed string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Speed = &speed
	s.touch()
}

// SetTime records a flight-time reading and stamps LastUpdate.
func (s *Store) SetTime(flightTime string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Time = &flightTime
	s.touch()
}

// Snapshot returns a copy of the current state. The pointer fields point
// at immutable values, so the copy is safe to hand to subscribers.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// touch stamps LastUpdate; caller holds the write lock.
func (s *Store) touch() {
	ts := s.now()
	s.state.LastUpdate = &ts
}
