package telemetry

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHub() (*Store, *Hub) {
	store := NewStore()
	return store, NewHub(store, zerolog.Nop())
}

func TestHubBroadcastReachesAllSubscribers(t *testing.T) {
	_, hub := newTestHub()

	var mu sync.Mutex
	got := map[string]int{}
	for _, id := range []string{"a", "b", "c"} {
		id := id
		hub.Subscribe(id, func(State) {
			mu.Lock()
			got[id]++
			mu.Unlock()
		})
	}

	hub.Broadcast(State{})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, map[string]int{"a": 1, "b": 1, "c": 1}, got)
}

func TestHubPanickingSubscriberIsKept(t *testing.T) {
	_, hub := newTestHub()

	var delivered int
	hub.Subscribe("bad", func(State) { panic("boom") })
	hub.Subscribe("good", func(State) { delivered++ })

	hub.Broadcast(State{})
	assert.Equal(t, 1, delivered)
	// The failing subscriber stays registered, unlike binary-stream fan-out.
	assert.Equal(t, 2, hub.Count())

	hub.Broadcast(State{})
	assert.Equal(t, 2, delivered)
	assert.Equal(t, 2, hub.Count())
}

func TestHubUnsubscribe(t *testing.T) {
	_, hub := newTestHub()

	hub.Subscribe("x", func(State) {})
	require.Equal(t, 1, hub.Count())

	hub.Unsubscribe("x")
	assert.Equal(t, 0, hub.Count())
}

func TestHubClear(t *testing.T) {
	_, hub := newTestHub()
	hub.Subscribe("a", func(State) {})
	hub.Subscribe("b", func(State) {})

	hub.Clear()
	assert.Equal(t, 0, hub.Count())
}

func TestServeSSEInitialSnapshotAndUpdates(t *testing.T) {
	store, hub := newTestHub()
	store.SetBattery(73)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = hub.ServeSSE(w, r)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, "GET", srv.URL, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	readEvent := func() State {
		t.Helper()
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var st State
			payload := strings.TrimPrefix(strings.TrimRight(line, "\n"), "data: ")
			require.NoError(t, json.Unmarshal([]byte(payload), &st))
			return st
		}
	}

	// First event is the snapshot at connect time.
	first := readEvent()
	require.NotNil(t, first.Battery)
	assert.Equal(t, 73, *first.Battery)
	assert.Nil(t, first.Speed)

	// Push an update and expect a second event carrying it.
	require.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, 5*time.Millisecond)
	store.SetSpeed("2.0cm/s")
	hub.Broadcast(store.Snapshot())

	second := readEvent()
	require.NotNil(t, second.Speed)
	assert.Equal(t, "2.0cm/s", *second.Speed)

	// Disconnecting unregisters the subscriber.
	resp.Body.Close()
	require.Eventually(t, func() bool { return hub.Count() == 0 }, time.Second, 5*time.Millisecond)
}
