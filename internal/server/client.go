package server

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/Tyrowin/relaychat/internal/chaterr"
	"github.com/Tyrowin/relaychat/internal/transport"
)

// Login prompts and outcomes.
const (
	PromptUsername     = "Enter username: "
	PromptPassword     = "Enter password: "
	MsgAuthFailed      = "Authentication failed."
	MsgAlreadyLoggedIn = "User already logged in."
)

// State is the lifecycle position of one connection.
type State int32

const (
	StateConnecting State = iota
	StateAuthenticating
	StateActive
	StateDisconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateActive:
		return "active"
	case StateDisconnecting:
		return "disconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Client drives one connection from the login prompt to teardown. Only its
// own worker goroutine calls run; teardown may also be reached while the hub
// is force-closing the transport, so it is guarded by a sync.Once.
type Client struct {
	hub      *Hub
	conn     transport.Conn
	log      *slog.Logger
	state    atomic.Int32
	username string

	teardownOnce sync.Once
}

func newClient(h *Hub, conn transport.Conn) *Client {
	return &Client{
		hub:  h,
		conn: conn,
		log: h.log.With(
			"conn_id", conn.ID().String(),
			"remote_addr", conn.RemoteAddr(),
		),
	}
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	return State(c.state.Load())
}

func (c *Client) setState(s State) {
	c.state.Store(int32(s))
}

func (c *Client) run() {
	defer c.teardown()

	c.setState(StateAuthenticating)
	if !c.authenticate() {
		return
	}

	c.setState(StateActive)
	c.readLoop()
}

// authenticate prompts for credentials and registers the session. It returns
// false when the connection must be closed.
func (c *Client) authenticate() bool {
	username, ok := c.prompt(PromptUsername)
	if !ok {
		return false
	}
	password, ok := c.prompt(PromptPassword)
	if !ok {
		return false
	}

	if err := c.hub.verifier.Verify(username, password); err != nil {
		c.log.Warn("Authentication failed", "user", username, "error", err)
		c.hub.metrics.AuthFailed("invalid_credentials")
		c.notify(MsgAuthFailed)
		return false
	}

	if err := c.hub.sessions.Register(c.conn, username); err != nil {
		c.log.Warn("Login rejected", "user", username, "error", err)
		if errors.Is(err, chaterr.ErrAlreadyLoggedIn) {
			c.hub.metrics.AuthFailed("already_logged_in")
			c.notify(MsgAlreadyLoggedIn)
		} else {
			c.hub.metrics.AuthFailed("connection_registered")
			c.notify(MsgAuthFailed)
		}
		return false
	}

	c.username = username
	c.log = c.log.With("user", username)
	c.log.Info("User logged in")

	c.hub.router.Welcome(c.conn, username)
	return true
}

// prompt sends text and reads the answer. Any failure ends the login
// silently; no session exists yet.
func (c *Client) prompt(text string) (string, bool) {
	if err := c.conn.Deliver(text); err != nil {
		c.log.Debug("Prompt failed", "error", err)
		return "", false
	}
	line, err := c.conn.ReadLine()
	if err != nil {
		c.logReadError(err)
		return "", false
	}
	return line, true
}

func (c *Client) readLoop() {
	for {
		line, err := c.conn.ReadLine()
		if err != nil {
			c.logReadError(err)
			return
		}
		c.hub.router.Dispatch(c.conn, c.username, line)
	}
}

// teardown releases everything the connection owns. It always unregisters and
// clears group memberships, announces the departure only when a session
// existed and closes the transport last.
func (c *Client) teardown() {
	c.teardownOnce.Do(func() {
		c.setState(StateDisconnecting)

		defer func() {
			c.closeTransport()
			c.hub.forget(c.conn)
			c.setState(StateClosed)
		}()

		id := c.conn.ID()
		username, err := c.hub.sessions.Unregister(id)
		departures := c.hub.groups.RemoveEverywhere(id)
		if err != nil {
			return
		}

		c.hub.router.Depart(c.conn, username, departures)
		c.log.Info("User logged out", "groups_left", len(departures))
	})
}

func (c *Client) closeTransport() {
	if err := c.conn.Close(); err != nil {
		c.log.Debug("Error closing connection", "error", err)
	}
}

func (c *Client) notify(text string) {
	if err := c.conn.Deliver(text); err != nil {
		c.log.Debug("Notice not delivered", "error", err)
	}
}

func (c *Client) logReadError(err error) {
	if errors.Is(err, io.EOF) {
		c.log.Debug("Client disconnected")
		return
	}
	c.log.Warn("Read error", "error", err)
}
