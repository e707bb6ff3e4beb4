package transport

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Tyrowin/relaychat/internal/chaterr"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// WebSocketConn carries one line per text frame over a gorilla connection.
// A background loop pings the peer so idle sessions survive proxies.
type WebSocketConn struct {
	id   uuid.UUID
	conn *websocket.Conn
	addr string
	opts Options
	log  *slog.Logger

	// pending holds the remaining lines of a multi-line frame. Only the
	// reading goroutine touches it.
	pending []string

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
}

// NewWebSocketConn wraps an upgraded connection and starts its ping loop.
func NewWebSocketConn(conn *websocket.Conn, addr string, opts Options, log *slog.Logger) *WebSocketConn {
	opts = opts.sanitize()
	c := &WebSocketConn{
		id:     uuid.New(),
		conn:   conn,
		addr:   addr,
		opts:   opts,
		closed: make(chan struct{}),
	}
	c.log = log.With("conn_id", c.id.String(), "remote_addr", addr)

	c.setupReadConnection()
	go c.pingLoop()
	return c
}

// ID returns the identity assigned when the connection was wrapped.
func (c *WebSocketConn) ID() uuid.UUID { return c.id }

// RemoteAddr returns the address of the upgraded HTTP request.
func (c *WebSocketConn) RemoteAddr() string { return c.addr }

// setupReadConnection configures the read limit, read deadline and pong handler.
func (c *WebSocketConn) setupReadConnection() {
	c.conn.SetReadLimit(int64(c.opts.MaxLineSize))
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Warn("Error setting initial read deadline", "error", err)
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
}

// ReadLine returns the next line. A text frame holding several
// newline-separated lines yields them one call at a time, so a frame can
// never smuggle a line terminator into a payload. Binary frames are skipped.
func (c *WebSocketConn) ReadLine() (string, error) {
	for len(c.pending) == 0 {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return "", c.translateReadError(err)
		}
		if messageType != websocket.TextMessage {
			continue
		}
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.log.Debug("Error extending read deadline", "error", err)
		}
		c.pending = splitLines(string(data))
	}

	line := c.pending[0]
	c.pending = c.pending[1:]
	return line, nil
}

// splitLines breaks a frame into lines the way TCPConn frames a stream: on
// '\n', with a trailing '\r' dropped from each line. A single terminator at
// the end of the frame does not produce an extra empty line.
func splitLines(frame string) []string {
	frame = strings.TrimSuffix(frame, "\n")
	lines := strings.Split(frame, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines
}

// translateReadError maps gorilla read errors onto io.EOF for orderly
// closes and chaterr.ErrTransport for everything else.
func (c *WebSocketConn) translateReadError(err error) error {
	if errors.Is(err, websocket.ErrReadLimit) {
		return fmt.Errorf("%w: message exceeded %d bytes", chaterr.ErrTransport, c.opts.MaxLineSize)
	}

	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived) {
		return io.EOF
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || c.isClosed() || isExpectedCloseError(err) {
		return io.EOF
	}

	if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
		c.log.Warn("Unexpected WebSocket close", "error", err)
	}
	return fmt.Errorf("%w: read: %v", chaterr.ErrTransport, err)
}

// Deliver sends text as one text frame within the write timeout.
func (c *WebSocketConn) Deliver(text string) error {
	if c.isClosed() {
		return fmt.Errorf("%w: connection closed", chaterr.ErrTransport)
	}
	return c.write(websocket.TextMessage, []byte(text))
}

func (c *WebSocketConn) write(messageType int, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
		return fmt.Errorf("%w: set write deadline: %v", chaterr.ErrTransport, err)
	}
	if err := c.conn.WriteMessage(messageType, payload); err != nil {
		return fmt.Errorf("%w: write: %v", chaterr.ErrTransport, err)
	}
	return nil
}

func (c *WebSocketConn) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.closed:
			return
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.log.Debug("Ping failed, closing connection", "error", err)
				_ = c.Close()
				return
			}
		}
	}
}

// Close sends a close frame on a best-effort basis and releases the socket.
func (c *WebSocketConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)

		// WriteControl may run concurrently with a pending Deliver.
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))

		err = c.conn.Close()
		if isExpectedCloseError(err) {
			err = nil
		}
	})
	return err
}

func (c *WebSocketConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}
