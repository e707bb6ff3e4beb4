package server

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

const testOrigin = "http://localhost:8080"

func newTestHTTPServer(t *testing.T, hub *Hub, reg prometheus.Gatherer) *httptest.Server {
	t.Helper()
	cfg := NewConfig()
	handlers := NewHandlers(hub, cfg, logs.GetLoggerFromLevel(slog.LevelDebug))
	srv := httptest.NewServer(SetupRoutes(handlers, reg))
	t.Cleanup(srv.Close)
	return srv
}

func dialWebSocket(t *testing.T, srv *httptest.Server, origin string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}
	dialer := websocket.Dialer{HandshakeTimeout: wait}
	conn, resp, err := dialer.Dial(url, header)
	if conn != nil {
		t.Cleanup(func() { _ = conn.Close() })
	}
	return conn, resp, err
}

// readUntil reads text frames until one contains substr.
func readUntil(t *testing.T, conn *websocket.Conn, substr string) string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(wait)))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for %q", substr)
		if strings.Contains(string(data), substr) {
			return string(data)
		}
	}
}

func wsLogin(t *testing.T, conn *websocket.Conn, username string) {
	t.Helper()
	readUntil(t, conn, PromptUsername)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(username)))
	readUntil(t, conn, PromptPassword)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(testUsers[username])))
	readUntil(t, conn, "Welcome to the chat server!")
}

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name   string
		method string
	}{
		{name: "GET request to health endpoint", method: http.MethodGet},
		{name: "POST request to health endpoint", method: http.MethodPost},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/", http.NoBody)
			rr := httptest.NewRecorder()

			HealthHandler(rr, req)

			require.Equal(t, http.StatusOK, rr.Code)
			require.Equal(t, "text/plain", rr.Header().Get("Content-Type"))
			require.Equal(t, "relaychat server is running!", rr.Body.String())
		})
	}
}

func TestWebSocketHandler_RejectsNonGet(t *testing.T) {
	hub := newTestHub(t)
	handlers := NewHandlers(hub, NewConfig(), logs.GetLoggerFromLevel(slog.LevelDebug))

	req := httptest.NewRequest(http.MethodPost, "/ws", http.NoBody)
	rr := httptest.NewRecorder()
	handlers.WebSocketHandler(rr, req)

	require.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestWebSocketHandler_OriginPolicy(t *testing.T) {
	hub := newTestHub(t)
	srv := newTestHTTPServer(t, hub, nil)

	tests := []struct {
		name    string
		origin  string
		allowed bool
	}{
		{"configured origin", testOrigin, true},
		{"case insensitive", "HTTP://LOCALHOST:8080", true},
		{"other origin", "http://evil.example", false},
		{"missing origin", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn, resp, err := dialWebSocket(t, srv, tt.origin)
			if tt.allowed {
				require.NoError(t, err)
				readUntil(t, conn, PromptUsername)
				return
			}
			require.ErrorIs(t, err, websocket.ErrBadHandshake)
			require.Equal(t, http.StatusForbidden, resp.StatusCode)
		})
	}
}

func TestWebSocketHandler_ChatAcrossTransports(t *testing.T) {
	hub := newTestHub(t)
	srv := newTestHTTPServer(t, hub, nil)
	addr, _, _ := startListener(t, hub)

	// alice on WebSocket, bob on TCP
	alice, _, err := dialWebSocket(t, srv, testOrigin)
	require.NoError(t, err)
	wsLogin(t, alice, "alice")

	bob := dialLine(t, addr)
	bob.login(t, "bob")
	require.Equal(t, "Active users: alice", bob.expect(t, "Active users:"))
	readUntil(t, alice, "bob has joined the chat.")

	require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte("/msg bob over the bridge")))
	bob.expect(t, "[Private] alice: over the bridge")

	bob.send(t, "/broadcast back at you")
	require.Equal(t, "bob: back at you", readUntil(t, alice, "back at you"))

	// A WebSocket close frame is a normal logout
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	require.NoError(t, alice.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)))
	bob.expect(t, "alice has left the chat.")
}

func TestWebSocketHandler_EmbeddedNewlineCannotForgeLines(t *testing.T) {
	hub := newTestHub(t)
	srv := newTestHTTPServer(t, hub, nil)
	addr, _, _ := startListener(t, hub)

	bob := dialLine(t, addr)
	bob.login(t, "bob")

	alice, _, err := dialWebSocket(t, srv, testOrigin)
	require.NoError(t, err)
	wsLogin(t, alice, "alice")
	bob.expect(t, "alice has joined the chat.")

	// When alice packs a fake server notice after a newline
	require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte("/broadcast hi\nUser already logged in.")))
	readUntil(t, alice, "Invalid command.")
	require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte("/broadcast bye")))

	// Then bob sees two broadcasts and nothing in between
	require.Equal(t, "alice: hi", bob.next(t))
	require.Equal(t, "alice: bye", bob.next(t))
}

func TestSetupRoutes_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	hub := NewHub(nil, reg, log)
	srv := newTestHTTPServer(t, hub, reg)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(body), "relaychat_sessions_active 0")
	require.Contains(t, string(body), "relaychat_groups_active 0")
}
