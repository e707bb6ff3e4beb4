package server

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/Tyrowin/relaychat/internal/credentials"
	"github.com/Tyrowin/relaychat/internal/group"
	"github.com/Tyrowin/relaychat/internal/metrics"
	"github.com/Tyrowin/relaychat/internal/router"
	"github.com/Tyrowin/relaychat/internal/session"
	"github.com/Tyrowin/relaychat/internal/transport"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sourcegraph/conc"
)

// ErrHubClosed is returned by Serve once Shutdown has started.
var ErrHubClosed = errors.New("hub is shutting down")

// Hub owns the session registry and group directory and tracks every live
// connection, authenticated or not, so shutdown can force them closed.
type Hub struct {
	sessions *session.Registry
	groups   *group.Directory
	router   *router.Router
	verifier credentials.Verifier
	metrics  *metrics.Metrics
	log      *slog.Logger

	mu      sync.Mutex
	live    map[uuid.UUID]transport.Conn
	closing bool
	wg      conc.WaitGroup
}

// NewHub creates a hub that authenticates against verifier. Collectors are
// registered on reg; a nil reg keeps them unregistered.
func NewHub(verifier credentials.Verifier, reg prometheus.Registerer, log *slog.Logger) *Hub {
	h := &Hub{
		sessions: session.NewRegistry(),
		groups:   group.NewDirectory(),
		verifier: verifier,
		log:      log.With("component", "hub"),
		live:     make(map[uuid.UUID]transport.Conn),
	}
	h.metrics = metrics.New(reg, h.sessions.Len, h.groups.Len)
	h.router = router.New(h.sessions, h.groups, h.metrics, log)
	return h
}

// Serve starts the lifecycle worker for conn and returns immediately. After
// Shutdown has begun the connection is closed and ErrHubClosed returned.
func (h *Hub) Serve(conn transport.Conn) error {
	h.mu.Lock()
	if h.closing {
		h.mu.Unlock()
		_ = conn.Close()
		return ErrHubClosed
	}
	h.live[conn.ID()] = conn
	liveCount := len(h.live)
	h.metrics.ConnectionOpened()
	client := newClient(h, conn)
	h.wg.Go(client.run)
	h.mu.Unlock()

	h.log.Info("Client connected", "conn_id", conn.ID().String(), "remote_addr", conn.RemoteAddr(), "live", liveCount)
	return nil
}

// forget drops conn from the live set once its worker has torn it down.
func (h *Hub) forget(conn transport.Conn) {
	h.mu.Lock()
	delete(h.live, conn.ID())
	h.mu.Unlock()

	h.metrics.ConnectionClosed()
}

// getLiveSnapshot copies the live set under the hub lock.
func (h *Hub) getLiveSnapshot() []transport.Conn {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns := make([]transport.Conn, 0, len(h.live))
	for _, conn := range h.live {
		conns = append(conns, conn)
	}
	return conns
}

// shutdownClients closes every live transport. Each blocked ReadLine then
// fails and its worker runs the normal teardown.
func (h *Hub) shutdownClients() {
	h.log.Info("Shutting down all client connections")

	conns := h.getLiveSnapshot()
	for _, conn := range conns {
		if err := conn.Close(); err != nil {
			h.log.Warn("Error closing client connection", "conn_id", conn.ID().String(), "error", err)
		}
	}

	h.log.Info("Closed client connections", "count", len(conns))
}

// Shutdown refuses new connections, force-closes the live ones and waits for
// their workers. It returns context.DeadlineExceeded when timeout expires
// first.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info("Initiating hub shutdown")

	h.mu.Lock()
	h.closing = true
	h.mu.Unlock()

	h.shutdownClients()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if recovered := h.wg.WaitAndRecover(); recovered != nil {
			h.log.Error("Connection worker panicked", "panic", recovered.String())
		}
	}()

	select {
	case <-done:
		h.log.Info("Hub shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		h.log.Warn("Hub shutdown timeout reached, some workers may still be running")
		return context.DeadlineExceeded
	}
}

// Sessions exposes the session registry.
func (h *Hub) Sessions() *session.Registry { return h.sessions }

// Groups exposes the group directory.
func (h *Hub) Groups() *group.Directory { return h.groups }

// LiveCount reports the connections whose workers have not finished.
func (h *Hub) LiveCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.live)
}
