package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Tyrowin/minichat/internal/room"
)

const (
	testOrigin  = "http://localhost:8080"
	readTimeout = 2 * time.Second
)

// newTestServer starts a Server behind httptest with uploads in a temp dir.
func newTestServer(t *testing.T, customize func(cfg *Config)) (*Server, *httptest.Server) {
	t.Helper()

	cfg := NewConfig()
	cfg.UploadDir = t.TempDir()
	if customize != nil {
		customize(cfg)
	}

	s, err := New(cfg, zap.NewNop())
	require.NoError(t, err)

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Close(ctx)
	})
	return s, ts
}

func wsURL(ts *httptest.Server, username *string) string {
	u := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	if username != nil {
		u += "?username=" + url.QueryEscape(*username)
	}
	return u
}

// connectWebSocket dials u with an allowed Origin header.
func connectWebSocket(u, origin string) (*websocket.Conn, *http.Response, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}

	conn, resp, err := dialer.Dial(u, headers)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, resp, err
}

// dial opens a socket without joining.
func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, _, err := connectWebSocket(wsURL(ts, nil), testOrigin)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// joinAs opens a socket that joins through the query parameter and returns the
// welcome it receives.
func joinAs(t *testing.T, ts *httptest.Server, name string) (*websocket.Conn, room.Welcome) {
	t.Helper()
	conn, _, err := connectWebSocket(wsURL(ts, &name), testOrigin)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	ev := readEvent(t, conn)
	require.Equal(t, room.EventWelcome, ev.Type)
	require.NotNil(t, ev.Welcome)
	return conn, *ev.Welcome
}

func readEvent(t *testing.T, conn *websocket.Conn) room.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(readTimeout)))
	var ev room.Event
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

// readMessage skips presence events until the next chat message.
func readMessage(t *testing.T, conn *websocket.Conn) room.Message {
	t.Helper()
	for {
		ev := readEvent(t, conn)
		if ev.Type == room.EventMessage {
			return *ev.Message
		}
	}
}

// readPresence skips chat messages until the next presence event.
func readPresence(t *testing.T, conn *websocket.Conn) room.Presence {
	t.Helper()
	for {
		ev := readEvent(t, conn)
		if ev.Type == room.EventPresence {
			return *ev.Presence
		}
	}
}

func sendFrame(t *testing.T, conn *websocket.Conn, frame inboundFrame) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(frame))
}

// expectNoEvent fails if anything other than a read timeout happens within timeout.
func expectNoEvent(t *testing.T, conn *websocket.Conn, timeout time.Duration) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(timeout)))
	_, data, err := conn.ReadMessage()
	if err == nil {
		t.Fatalf("expected no event, got %s", data)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return
	}
	t.Fatalf("unexpected error while waiting for absence of events: %v", err)
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, readTimeout, 10*time.Millisecond)
}
