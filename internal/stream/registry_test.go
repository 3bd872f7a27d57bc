package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wsPair dials a test WebSocket server whose handler registers the
// server side of the connection in the registry.
func wsPair(t *testing.T, registry *Registry) *websocket.Conn {
	t.Helper()

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	connected := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		registry.Add(conn)
		close(connected)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	select {
	case <-connected:
	case <-time.After(2 * time.Second):
		t.Fatal("websocket never connected")
	}
	return client
}

func TestBroadcastDeliversToAllSubscribers(t *testing.T) {
	registry := NewRegistry(zerolog.Nop())

	clients := []*websocket.Conn{
		wsPair(t, registry),
		wsPair(t, registry),
		wsPair(t, registry),
	}
	require.Equal(t, 3, registry.Count())

	chunk := []byte{0x00, 0x00, 0x01, 0xb3, 0xde, 0xad}
	registry.Broadcast(chunk)

	for _, client := range clients {
		require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
		kind, payload, err := client.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, websocket.BinaryMessage, kind)
		assert.Equal(t, chunk, payload)
	}
}

func TestBroadcastIsolatesFailedSubscriber(t *testing.T) {
	registry := NewRegistry(zerolog.Nop())

	healthy := wsPair(t, registry)
	broken := wsPair(t, registry)
	require.Equal(t, 2, registry.Count())

	// Kill the second connection under the registry's feet. The write
	// will fail, removing only that subscriber.
	require.NoError(t, broken.Close())
	time.Sleep(20 * time.Millisecond)

	var removed bool
	for i := 0; i < 10 && !removed; i++ {
		registry.Broadcast([]byte("chunk"))
		removed = registry.Count() == 1
		time.Sleep(10 * time.Millisecond)
	}
	assert.True(t, removed, "failed subscriber was not removed")

	// The healthy subscriber received every broadcast.
	require.NoError(t, healthy.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, payload, err := healthy.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, []byte("chunk"), payload)
}

func TestBroadcastOrderPreservedPerSubscriber(t *testing.T) {
	registry := NewRegistry(zerolog.Nop())
	client := wsPair(t, registry)

	chunks := [][]byte{[]byte("one"), []byte("two"), []byte("three")}
	for _, c := range chunks {
		registry.Broadcast(c)
	}

	for _, want := range chunks {
		require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, payload, err := client.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, want, payload)
	}
}

func TestCloseAllEmptiesRegistry(t *testing.T) {
	registry := NewRegistry(zerolog.Nop())

	client := wsPair(t, registry)
	wsPair(t, registry)
	require.Equal(t, 2, registry.Count())

	registry.CloseAll()
	assert.Equal(t, 0, registry.Count())

	// The client observes the forced close.
	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := client.ReadMessage()
	assert.Error(t, err)
}

func TestRemoveUnknownIDIsNoop(t *testing.T) {
	registry := NewRegistry(zerolog.Nop())
	registry.Remove("nope")
	assert.Equal(t, 0, registry.Count())
}

func TestServerLifecycle(t *testing.T) {
	registry := NewRegistry(zerolog.Nop())
	server := NewServer(registry, "*", zerolog.Nop())

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start("127.0.0.1:0") }()

	// Start binds asynchronously; Stop on a started-or-starting server
	// must drain without error.
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, server.Stop(ctx))

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not exit after Stop")
	}
}
