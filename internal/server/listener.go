package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/Tyrowin/relaychat/internal/transport"
)

// Listener accepts line-protocol clients over TCP and hands them to the hub.
type Listener struct {
	hub  *Hub
	opts transport.Options
	log  *slog.Logger
}

// NewListener creates a Listener whose connections use opts.
func NewListener(hub *Hub, opts transport.Options, log *slog.Logger) *Listener {
	return &Listener{hub: hub, opts: opts, log: log.With("component", "tcp_listener")}
}

// ListenAndServe binds addr and runs Serve until ctx is cancelled.
func (l *Listener) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return l.Serve(ctx, ln)
}

// Serve runs the accept loop on ln. It closes ln when ctx is done and then
// returns nil. Transient accept errors are retried with a growing delay.
func (l *Listener) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() {
		_ = ln.Close()
	})
	defer stop()

	l.log.Info("TCP listener started", "addr", ln.Addr().String())

	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				l.log.Info("TCP listener stopped")
				return nil
			}

			delay = nextAcceptDelay(delay)
			l.log.Error("Accept failed", "error", err, "retry_in", delay)
			select {
			case <-time.After(delay):
				continue
			case <-ctx.Done():
				return nil
			}
		}
		delay = 0

		tc := transport.NewTCPConn(conn, l.opts)
		if err := l.hub.Serve(tc); err != nil {
			l.log.Info("Rejected connection", "remote_addr", tc.RemoteAddr(), "error", err)
		}
	}
}

func nextAcceptDelay(prev time.Duration) time.Duration {
	if prev == 0 {
		return 5 * time.Millisecond
	}
	if next := prev * 2; next < time.Second {
		return next
	}
	return time.Second
}
