// Package session tracks which user is logged in on which connection.
//
// The Registry keeps both directions of the mapping under one lock and hands
// out copies only, so callers can fan out messages after the lock is gone.
package session

import (
	"cmp"
	"slices"
	"sync"

	"github.com/Tyrowin/relaychat/internal/chaterr"
	"github.com/Tyrowin/relaychat/internal/transport"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Session is a point-in-time view of one logged-in connection.
type Session struct {
	Conn     transport.Conn
	Username string
}

type entry struct {
	conn     transport.Conn
	username string
	seq      uint64
}

// Registry enforces a single active session per username.
type Registry struct {
	mu         sync.RWMutex
	byConn     map[uuid.UUID]entry
	byUsername map[string]uuid.UUID
	nextSeq    uint64
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byConn:     make(map[uuid.UUID]entry),
		byUsername: make(map[string]uuid.UUID),
	}
}

// Register binds username to conn. It fails with chaterr.ErrAlreadyLoggedIn
// when the username already has a session and with
// chaterr.ErrConnectionRegistered when conn is already bound; in both cases
// nothing changes.
func (r *Registry) Register(conn transport.Conn, username string) error {
	id := conn.ID()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byUsername[username]; taken {
		return chaterr.ErrAlreadyLoggedIn
	}
	if _, bound := r.byConn[id]; bound {
		return chaterr.ErrConnectionRegistered
	}

	r.nextSeq++
	r.byConn[id] = entry{conn: conn, username: username, seq: r.nextSeq}
	r.byUsername[username] = id
	return nil
}

// Unregister removes the session bound to id and returns its username.
// A second call returns chaterr.ErrSessionNotFound.
func (r *Registry) Unregister(id uuid.UUID) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byConn[id]
	if !ok {
		return "", chaterr.ErrSessionNotFound
	}
	delete(r.byConn, id)
	delete(r.byUsername, e.username)
	return e.username, nil
}

// LookupByUsername returns the connection logged in as username.
func (r *Registry) LookupByUsername(username string) (transport.Conn, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byUsername[username]
	if !ok {
		return nil, chaterr.ErrUserNotFound
	}
	return r.byConn[id].conn, nil
}

// Snapshot copies every session, oldest login first.
func (r *Registry) Snapshot() []Session {
	r.mu.RLock()
	entries := lo.Values(r.byConn)
	r.mu.RUnlock()

	slices.SortFunc(entries, func(a, b entry) int {
		return cmp.Compare(a.seq, b.seq)
	})
	return lo.Map(entries, func(e entry, _ int) Session {
		return Session{Conn: e.conn, Username: e.username}
	})
}

// Len reports the number of active sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byConn)
}

// Others filters a snapshot down to sessions not bound to id.
func Others(sessions []Session, id uuid.UUID) []Session {
	return lo.Filter(sessions, func(s Session, _ int) bool {
		return s.Conn.ID() != id
	})
}

// Conns extracts the connections of a snapshot.
func Conns(sessions []Session) []transport.Conn {
	return lo.Map(sessions, func(s Session, _ int) transport.Conn {
		return s.Conn
	})
}

// Usernames extracts the usernames of a snapshot.
func Usernames(sessions []Session) []string {
	return lo.Map(sessions, func(s Session, _ int) string {
		return s.Username
	})
}
