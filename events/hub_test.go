package events

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHubServer(t *testing.T) (*Hub, string) {
	hub := NewHub()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = hub.ServeWS(w, r)
	}))
	t.Cleanup(server.Close)
	return hub, "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestHub_PublishReachesSubscriber(t *testing.T) {
	hub, url := startHubServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Publish(Change{Collection: "bookings", Action: ActionCreated, ID: "b1"})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got Change
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "bookings", got.Collection)
	assert.Equal(t, ActionCreated, got.Action)
	assert.Equal(t, "b1", got.ID)
	assert.False(t, got.At.IsZero(), "timestamp should be filled in")
}

func TestHub_DisconnectRemovesSubscriber(t *testing.T) {
	hub, url := startHubServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return hub.Subscribers() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_PublishWithoutSubscribers(t *testing.T) {
	hub := NewHub()
	assert.NotPanics(t, func() {
		hub.Publish(Change{Collection: "services", Action: ActionDeleted, ID: "1"})
	})
	assert.Equal(t, 0, hub.Subscribers())
}

func TestHub_RejectsPlainHTTP(t *testing.T) {
	hub := NewHub()
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/admin/events", nil)
	assert.Error(t, hub.ServeWS(w, r))
}

func TestHub_PublishDoesNotWaitOnStalledSubscriber(t *testing.T) {
	hub, url := startHubServer(t)

	stalled, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer stalled.Close()
	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	// Far more than the socket buffers hold, and nobody reads.
	start := time.Now()
	for i := 0; i < 50000; i++ {
		hub.Publish(Change{Collection: "bookings", Action: ActionCreated, ID: strings.Repeat("b", 64)})
	}
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestHub_CloseDisconnectsSubscribers(t *testing.T) {
	hub, url := startHubServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Close()
	assert.Equal(t, 0, hub.Subscribers())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}
