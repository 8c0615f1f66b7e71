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

func dial(t *testing.T, srv *httptest.Server, user string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?user=" + user
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	var hello Message
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, ws.ReadJSON(&hello))
	assert.Equal(t, "connected", hello.Type)
	return ws
}

func waitForSubscribers(t *testing.T, h *Hub, user string, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.Subscribers(user) == n }, 2*time.Second, 10*time.Millisecond)
}

func TestHubPublishesToOwnerOnly(t *testing.T) {
	hub := NewHub([]string{"*"})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r, r.URL.Query().Get("user"))
	}))
	defer srv.Close()

	alice := dial(t, srv, "alice")
	defer alice.Close()
	bob := dial(t, srv, "bob")
	defer bob.Close()
	waitForSubscribers(t, hub, "alice", 1)
	waitForSubscribers(t, hub, "bob", 1)

	hub.Publish("alice", "clients", "company")

	var msg Message
	require.NoError(t, alice.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, alice.ReadJSON(&msg))
	assert.Equal(t, "invalidate", msg.Type)
	assert.Equal(t, []string{"clients", "company"}, msg.Groups)

	require.NoError(t, bob.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err := bob.ReadMessage()
	assert.Error(t, err, "bob must not receive alice's invalidation")
}

func TestHubUnregistersClosedConnections(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r, "alice")
	}))
	defer srv.Close()

	ws := dial(t, srv, "alice")
	waitForSubscribers(t, hub, "alice", 1)

	require.NoError(t, ws.Close())
	waitForSubscribers(t, hub, "alice", 0)

	// publishing to nobody is a no-op
	hub.Publish("alice", "task")
}

func TestHubRejectsForeignOrigin(t *testing.T) {
	hub := NewHub([]string{"https://crm.example.com"})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r, "alice")
	}))
	defer srv.Close()

	header := http.Header{"Origin": []string{"https://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
