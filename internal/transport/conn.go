//go:generate go run go.uber.org/mock/mockgen -source=conn.go -destination=../mocks/mock_conn.go -package=mocks

// Package transport adapts network connections to the line-oriented Conn
// used by the relay core. Two implementations exist: raw TCP with newline
// framing, and WebSocket where each text frame carries one line.
package transport

import (
	"strings"

	"github.com/google/uuid"
)

// Conn is one live client connection.
//
// ReadLine is only called by the goroutine that owns the connection.
// Deliver and Close are safe for concurrent use; Close is idempotent and makes
// a blocked ReadLine return.
type Conn interface {
	ID() uuid.UUID
	RemoteAddr() string
	ReadLine() (string, error)
	Deliver(text string) error
	Close() error
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "io: read/write on closed pipe")
}
