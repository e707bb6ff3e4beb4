package transport

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/Tyrowin/relaychat/internal/chaterr"
	"github.com/google/uuid"
)

// Options tune a transport connection.
type Options struct {
	MaxLineSize  int
	WriteTimeout time.Duration
}

func (o Options) sanitize() Options {
	if o.MaxLineSize <= 0 {
		o.MaxLineSize = 1024
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	return o
}

// TCPConn frames a stream socket into newline-terminated lines.
type TCPConn struct {
	id      uuid.UUID
	conn    net.Conn
	scanner *bufio.Scanner
	opts    Options

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
}

// NewTCPConn wraps conn. Inbound lines longer than opts.MaxLineSize fail the
// read with a transport error.
func NewTCPConn(conn net.Conn, opts Options) *TCPConn {
	opts = opts.sanitize()
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, min(opts.MaxLineSize, 4096)), opts.MaxLineSize)

	return &TCPConn{
		id:      uuid.New(),
		conn:    conn,
		scanner: scanner,
		opts:    opts,
		closed:  make(chan struct{}),
	}
}

// ID returns the identity assigned when the connection was wrapped.
func (c *TCPConn) ID() uuid.UUID { return c.id }

// RemoteAddr returns the peer address, or "unknown".
func (c *TCPConn) RemoteAddr() string {
	if addr := c.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return "unknown"
}

// ReadLine returns the next line without its terminator. A trailing carriage
// return is dropped so telnet-style clients work. io.EOF signals an orderly
// close by the peer.
func (c *TCPConn) ReadLine() (string, error) {
	if c.scanner.Scan() {
		return strings.TrimSuffix(c.scanner.Text(), "\r"), nil
	}

	err := c.scanner.Err()
	switch {
	case err == nil:
		return "", io.EOF
	case errors.Is(err, bufio.ErrTooLong):
		return "", fmt.Errorf("%w: line exceeds %d bytes", chaterr.ErrTransport, c.opts.MaxLineSize)
	case c.isClosed() || isExpectedCloseError(err):
		return "", io.EOF
	default:
		return "", fmt.Errorf("%w: read: %v", chaterr.ErrTransport, err)
	}
}

// Deliver writes text followed by a newline. Writes are serialised and bounded
// by the write timeout so a stalled peer cannot hold a sender indefinitely.
func (c *TCPConn) Deliver(text string) error {
	if c.isClosed() {
		return fmt.Errorf("%w: connection closed", chaterr.ErrTransport)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
		return fmt.Errorf("%w: set write deadline: %v", chaterr.ErrTransport, err)
	}
	if _, err := io.WriteString(c.conn, text+"\n"); err != nil {
		return fmt.Errorf("%w: write: %v", chaterr.ErrTransport, err)
	}
	return nil
}

// Close closes the socket once; later calls return nil.
func (c *TCPConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.Close()
		if isExpectedCloseError(err) {
			err = nil
		}
	})
	return err
}

func (c *TCPConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}
