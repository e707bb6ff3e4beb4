// Package testutil provides an in-memory transport.Conn for driving the hub
// and the router from tests.
package testutil

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Tyrowin/relaychat/internal/chaterr"
	"github.com/Tyrowin/relaychat/internal/transport"
	"github.com/google/uuid"
)

// FakeConn feeds lines queued with Send to ReadLine and records every
// delivered message.
type FakeConn struct {
	id      uuid.UUID
	addr    string
	inbound chan string

	mu          sync.Mutex
	delivered   []string
	cursor      int
	failDeliver bool
	notify      chan struct{}

	closeOnce sync.Once
	closed    chan struct{}
}

var _ transport.Conn = (*FakeConn)(nil)

// NewFakeConn creates an open connection named after addr.
func NewFakeConn(addr string) *FakeConn {
	return &FakeConn{
		id:      uuid.New(),
		addr:    addr,
		inbound: make(chan string, 64),
		notify:  make(chan struct{}, 1),
		closed:  make(chan struct{}),
	}
}

// ID returns the connection identity.
func (c *FakeConn) ID() uuid.UUID { return c.id }

// RemoteAddr returns the address given to NewFakeConn.
func (c *FakeConn) RemoteAddr() string { return c.addr }

// ReadLine blocks until a line is sent or the connection is closed.
func (c *FakeConn) ReadLine() (string, error) {
	select {
	case line := <-c.inbound:
		return line, nil
	case <-c.closed:
		return "", io.EOF
	}
}

// Deliver records text unless the connection is closed or failing.
func (c *FakeConn) Deliver(text string) error {
	select {
	case <-c.closed:
		return fmt.Errorf("%w: deliver on closed connection", chaterr.ErrTransport)
	default:
	}

	c.mu.Lock()
	if c.failDeliver {
		c.mu.Unlock()
		return fmt.Errorf("%w: injected failure", chaterr.ErrTransport)
	}
	c.delivered = append(c.delivered, text)
	c.mu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}
	return nil
}

// Close is idempotent and unblocks ReadLine.
func (c *FakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

// Send queues a line for ReadLine.
func (c *FakeConn) Send(line string) {
	c.inbound <- line
}

// SetFailDeliver makes every later Deliver fail.
func (c *FakeConn) SetFailDeliver(fail bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failDeliver = fail
}

// IsClosed reports whether Close has been called.
func (c *FakeConn) IsClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// Messages returns a copy of everything delivered so far.
func (c *FakeConn) Messages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.delivered...)
}

// WaitFor blocks until a message containing substr arrives after the last
// one matched by a previous WaitFor, and returns it. The test fails after
// timeout.
func (c *FakeConn) WaitFor(t testing.TB, substr string, timeout time.Duration) string {
	t.Helper()

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		c.mu.Lock()
		for i := c.cursor; i < len(c.delivered); i++ {
			if strings.Contains(c.delivered[i], substr) {
				c.cursor = i + 1
				msg := c.delivered[i]
				c.mu.Unlock()
				return msg
			}
		}
		c.mu.Unlock()

		select {
		case <-c.notify:
		case <-deadline.C:
			t.Fatalf("%s: no message containing %q within %s, got %q", c.addr, substr, timeout, c.Messages())
			return ""
		}
	}
}

// ExpectNothing fails the test if a message containing substr is delivered
// within wait.
func (c *FakeConn) ExpectNothing(t testing.TB, substr string, wait time.Duration) {
	t.Helper()

	time.Sleep(wait)
	for _, msg := range c.Messages() {
		if strings.Contains(msg, substr) {
			t.Fatalf("%s: unexpected message %q", c.addr, msg)
		}
	}
}

// WaitClosed blocks until the connection is closed or timeout expires.
func (c *FakeConn) WaitClosed(t testing.TB, timeout time.Duration) {
	t.Helper()

	select {
	case <-c.closed:
	case <-time.After(timeout):
		t.Fatalf("%s: connection not closed within %s", c.addr, timeout)
	}
}
