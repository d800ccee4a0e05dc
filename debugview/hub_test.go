package debugview

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.Clients() == n }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_PublishReachesClient(t *testing.T) {
	h := NewHub(discardLogger(), 4, nil)
	srv := httptest.NewServer(h.Handler())
	defer srv.Close()
	defer h.Close()

	conn := dial(t, srv)
	waitForClients(t, h, 1)

	h.Publish([]byte{0x81, 0xa1, 'a', 0x01})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	kind, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, kind)
	assert.Equal(t, []byte{0x81, 0xa1, 'a', 0x01}, data)
}

func TestHub_ToggleMessage(t *testing.T) {
	var mu sync.Mutex
	got := map[string]bool{}
	onToggle := func(name string, value bool) error {
		if name == "bogus" {
			return errors.New("unknown toggle")
		}
		mu.Lock()
		got[name] = value
		mu.Unlock()
		return nil
	}

	h := NewHub(discardLogger(), 4, onToggle)
	srv := httptest.NewServer(h.Handler())
	defer srv.Close()
	defer h.Close()

	conn := dial(t, srv)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	require.NoError(t, conn.WriteJSON(InboundMessage{Type: "toggle", Name: "skip_finding_targets", Value: true}))
	var reply Reply
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "ack", reply.Type)
	assert.Equal(t, "skip_finding_targets", reply.Name)

	mu.Lock()
	assert.True(t, got["skip_finding_targets"])
	mu.Unlock()

	require.NoError(t, conn.WriteJSON(InboundMessage{Type: "toggle", Name: "bogus", Value: true}))
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "error", reply.Type)
	assert.Contains(t, reply.Error, "unknown toggle")
}

func TestHub_HandleRejectsBadInput(t *testing.T) {
	h := NewHub(discardLogger(), 1, nil)

	reply := h.handle([]byte("{not json"))
	assert.Equal(t, "error", reply.Type)
	assert.Contains(t, reply.Error, "invalid json")

	raw, err := json.Marshal(InboundMessage{Type: "teleport"})
	require.NoError(t, err)
	reply = h.handle(raw)
	assert.Equal(t, "error", reply.Type)
	assert.Contains(t, reply.Error, ErrUnknownMessage.Error())

	raw, err = json.Marshal(InboundMessage{Type: "toggle", Name: "draw_capsules", Value: true})
	require.NoError(t, err)
	reply = h.handle(raw)
	assert.Equal(t, "toggles disabled", reply.Error)
}

func TestHub_SlowClientDropsFrames(t *testing.T) {
	h := NewHub(discardLogger(), 1, nil)
	c := &client{send: make(chan frame, 1)}
	require.True(t, h.register(c))

	h.Publish([]byte{1})
	h.Publish([]byte{2})
	h.Publish([]byte{3})

	assert.Equal(t, int64(2), h.Dropped())
	f := <-c.send
	assert.Equal(t, []byte{1}, f.data)

	h.unregister(c)
	assert.Equal(t, 0, h.Clients())
}

func TestHub_CloseRejectsNewClients(t *testing.T) {
	h := NewHub(discardLogger(), 1, nil)
	h.Close()
	assert.False(t, h.register(&client{send: make(chan frame, 1)}))
}

func TestHub_Healthz(t *testing.T) {
	h := NewHub(discardLogger(), 1, nil)
	srv := httptest.NewServer(h.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok clients=0 dropped=0\n", string(body))
}
