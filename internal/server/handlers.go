package server

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Tyrowin/relaychat/internal/transport"
	"github.com/gorilla/websocket"
)

// Handlers serves the HTTP side of the relay.
type Handlers struct {
	hub      *Hub
	upgrader websocket.Upgrader
	opts     transport.Options
	log      *slog.Logger
}

// NewHandlers builds the HTTP handlers for hub. Origins and transport limits
// come from cfg.
func NewHandlers(hub *Hub, cfg *Config, log *slog.Logger) *Handlers {
	log = log.With("component", "http")
	origins := newOriginPolicy(cfg, log)

	return &Handlers{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.checkOrigin,
		},
		opts: transport.Options{
			MaxLineSize:  cfg.MaxMessageSize,
			WriteTimeout: cfg.WriteTimeout,
		},
		log: log,
	}
}

// WebSocketHandler upgrades a GET request and hands the connection to the
// hub, which then runs the same login and command loop as for TCP clients.
func (h *Handlers) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("WebSocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	wc := transport.NewWebSocketConn(conn, r.RemoteAddr, h.opts, h.log)
	if err := h.hub.Serve(wc); err != nil {
		h.log.Info("Rejected WebSocket connection", "remote_addr", r.RemoteAddr, "error", err)
	}
}

// HealthHandler reports that the server is up.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "relaychat server is running!")
}
