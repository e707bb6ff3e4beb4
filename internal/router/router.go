// Package router turns client commands into deliveries.
//
// The router holds no locks of its own. It asks the session registry and the
// group directory for snapshots, formats the payload and then hands every
// recipient to its transport. A failed delivery is logged and skipped; it
// never stops the rest of a fan-out.
package router

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Tyrowin/relaychat/internal/chaterr"
	"github.com/Tyrowin/relaychat/internal/group"
	"github.com/Tyrowin/relaychat/internal/metrics"
	"github.com/Tyrowin/relaychat/internal/session"
	"github.com/Tyrowin/relaychat/internal/transport"
	"github.com/samber/lo"
)

// Texts sent to clients.
const (
	MsgWelcome          = "Welcome to the chat server!"
	MsgNoOtherUsers     = "No other users are currently active."
	MsgUserNotFound     = "User not found."
	MsgInvalidCommand   = "Invalid command."
	MsgInvalidGroup     = "Invalid group name."
	MsgGroupExists      = "Group already exists."
	MsgGroupNotFound    = "Group not found."
	MsgNotInGroupOrGone = "Not in group or group doesn't exist."
	MsgNotInGroup       = "Not in group."
)

// Router dispatches commands against the shared registries.
type Router struct {
	sessions *session.Registry
	groups   *group.Directory
	metrics  *metrics.Metrics
	log      *slog.Logger
}

// New creates a Router. m may be nil.
func New(sessions *session.Registry, groups *group.Directory, m *metrics.Metrics, log *slog.Logger) *Router {
	return &Router{
		sessions: sessions,
		groups:   groups,
		metrics:  m,
		log:      log.With("component", "router"),
	}
}

// Welcome greets a freshly registered session, sends it the list of users
// already online and tells those users about the newcomer.
func (r *Router) Welcome(conn transport.Conn, username string) {
	r.reply(conn, MsgWelcome)

	peers := session.Others(r.sessions.Snapshot(), conn.ID())
	if len(peers) == 0 {
		r.reply(conn, MsgNoOtherUsers)
		return
	}

	r.reply(conn, "Active users: "+strings.Join(session.Usernames(peers), ", "))
	r.fanOut(metrics.KindNotice, session.Conns(peers), username+" has joined the chat.")
}

// Dispatch parses line and executes it on behalf of conn. Every rejection
// produces exactly one notice to conn.
func (r *Router) Dispatch(conn transport.Conn, username, line string) {
	cmd, err := ParseCommand(line)
	if err != nil {
		r.log.Debug("Rejected command", "user", username, "error", err)
		if errors.Is(err, chaterr.ErrInvalidGroupName) {
			r.reject(conn, MsgInvalidGroup)
		} else {
			r.reject(conn, MsgInvalidCommand)
		}
		return
	}

	r.log.Debug("Routing command", "user", username, "command", cmd.Kind.String(), "target", cmd.Target)

	switch cmd.Kind {
	case KindDirect:
		r.Direct(conn, username, cmd.Target, cmd.Text)
	case KindBroadcast:
		r.Broadcast(conn, username, cmd.Text)
	case KindCreateGroup:
		r.CreateGroup(conn, username, cmd.Target)
	case KindJoinGroup:
		r.JoinGroup(conn, username, cmd.Target)
	case KindGroupMessage:
		r.GroupMessage(conn, username, cmd.Target, cmd.Text)
	case KindLeaveGroup:
		r.LeaveGroup(conn, username, cmd.Target)
	}
}

// Direct delivers text to the user named target.
func (r *Router) Direct(conn transport.Conn, username, target, text string) {
	recipient, err := r.sessions.LookupByUsername(target)
	if err != nil {
		r.reject(conn, MsgUserNotFound)
		return
	}
	r.fanOut(metrics.KindDirect, []transport.Conn{recipient}, fmt.Sprintf("[Private] %s: %s", username, text))
}

// Broadcast delivers text to every session other than the sender, as of the
// moment the snapshot is taken.
func (r *Router) Broadcast(conn transport.Conn, username, text string) {
	recipients := session.Others(r.sessions.Snapshot(), conn.ID())
	r.fanOut(metrics.KindBroadcast, session.Conns(recipients), username+": "+text)
}

// CreateGroup makes name with conn as its only member and announces it to
// everyone else.
func (r *Router) CreateGroup(conn transport.Conn, username, name string) {
	if err := r.groups.Create(name, conn); err != nil {
		r.reject(conn, MsgGroupExists)
		return
	}

	r.reply(conn, "Group "+name+" created.")
	others := session.Others(r.sessions.Snapshot(), conn.ID())
	r.fanOut(metrics.KindNotice, session.Conns(others), username+" created group "+name)
}

// JoinGroup adds conn to an existing group and notifies the other members.
func (r *Router) JoinGroup(conn transport.Conn, username, name string) {
	members, err := r.groups.Join(name, conn)
	if err != nil {
		r.reject(conn, MsgGroupNotFound)
		return
	}

	r.reply(conn, "You joined the group "+name+".")
	r.fanOut(metrics.KindNotice, without(members, conn), username+" joined group "+name)
}

// GroupMessage delivers text to every member of name, the sender included,
// provided the sender is a member.
func (r *Router) GroupMessage(conn transport.Conn, username, name, text string) {
	members, err := r.groups.MessageIfMember(name, conn)
	if err != nil {
		r.reject(conn, MsgNotInGroupOrGone)
		return
	}
	r.fanOut(metrics.KindGroup, members, fmt.Sprintf("[Group %s] %s: %s", name, username, text))
}

// LeaveGroup removes conn from name and notifies the members it left behind.
func (r *Router) LeaveGroup(conn transport.Conn, username, name string) {
	prior, err := r.groups.Leave(name, conn)
	if err != nil {
		r.reject(conn, MsgNotInGroup)
		return
	}

	r.reply(conn, "Left group "+name)
	r.fanOut(metrics.KindNotice, without(prior, conn), username+" left group "+name)
}

// Depart announces a disconnect: first to the remaining members of every group
// the user was removed from, then to every session still online.
func (r *Router) Depart(conn transport.Conn, username string, departures []group.Departure) {
	for _, d := range departures {
		r.fanOut(metrics.KindNotice, without(d.Members, conn),
			fmt.Sprintf("%s has left group %s (disconnected).", username, d.Group))
	}

	remaining := session.Others(r.sessions.Snapshot(), conn.ID())
	r.fanOut(metrics.KindNotice, session.Conns(remaining), username+" has left the chat.")
}

// fanOut delivers text to each recipient in turn and returns how many
// deliveries succeeded.
func (r *Router) fanOut(kind string, recipients []transport.Conn, text string) int {
	delivered := 0
	for _, recipient := range recipients {
		if err := recipient.Deliver(text); err != nil {
			r.log.Warn("Delivery failed",
				"kind", kind,
				"conn_id", recipient.ID().String(),
				"remote_addr", recipient.RemoteAddr(),
				"error", err)
			r.metrics.DeliveryFailed()
			continue
		}
		delivered++
	}
	r.metrics.Routed(kind, delivered)
	return delivered
}

// reply sends a notice to the acting connection. A failure there is left to
// the connection's own read loop to discover.
func (r *Router) reply(conn transport.Conn, text string) {
	if err := conn.Deliver(text); err != nil {
		r.log.Debug("Reply failed", "conn_id", conn.ID().String(), "error", err)
	}
}

func (r *Router) reject(conn transport.Conn, text string) {
	r.metrics.CommandRejected()
	r.reply(conn, text)
}

func without(conns []transport.Conn, conn transport.Conn) []transport.Conn {
	id := conn.ID()
	return lo.Filter(conns, func(c transport.Conn, _ int) bool {
		return c.ID() != id
	})
}
