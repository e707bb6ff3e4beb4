package server

import (
	"log/slog"
	"testing"
	"time"

	"github.com/Tyrowin/relaychat/internal/credentials"
	"github.com/Tyrowin/relaychat/internal/router"
	"github.com/Tyrowin/relaychat/internal/testutil"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

const wait = 2 * time.Second

var testUsers = map[string]string{
	"alice": "wonderland",
	"bob":   "builder",
	"carol": "singer",
}

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	hub := NewHub(credentials.NewStore(testUsers), nil, log)
	t.Cleanup(func() { _ = hub.Shutdown(wait) })
	return hub
}

// connect opens a connection and answers both login prompts.
func connect(t *testing.T, hub *Hub, username, password string) *testutil.FakeConn {
	t.Helper()
	conn := testutil.NewFakeConn(username)
	require.NoError(t, hub.Serve(conn))

	conn.WaitFor(t, PromptUsername, wait)
	conn.Send(username)
	conn.WaitFor(t, PromptPassword, wait)
	conn.Send(password)
	return conn
}

func login(t *testing.T, hub *Hub, username string) *testutil.FakeConn {
	t.Helper()
	conn := connect(t, hub, username, testUsers[username])
	conn.WaitFor(t, router.MsgWelcome, wait)
	return conn
}

func TestClient_PresenceOnLogin(t *testing.T) {
	hub := newTestHub(t)

	// Given alice logs in alone
	alice := login(t, hub, "alice")
	alice.WaitFor(t, router.MsgNoOtherUsers, wait)

	// When bob logs in
	bob := login(t, hub, "bob")

	// Then bob sees alice and alice hears about bob
	require.Equal(t, "Active users: alice", bob.WaitFor(t, "Active users:", wait))
	alice.WaitFor(t, "bob has joined the chat.", wait)
	require.Equal(t, 2, hub.Sessions().Len())
}

func TestClient_WrongPasswordClosesWithoutSession(t *testing.T) {
	hub := newTestHub(t)
	alice := login(t, hub, "alice")

	mallory := connect(t, hub, "bob", "wrong")

	mallory.WaitFor(t, MsgAuthFailed, wait)
	mallory.WaitClosed(t, wait)
	require.Eventually(t, func() bool { return hub.LiveCount() == 1 }, wait, 5*time.Millisecond)
	require.Equal(t, 1, hub.Sessions().Len())
	alice.ExpectNothing(t, "bob", 50*time.Millisecond)
}

func TestClient_DuplicateLoginRejected(t *testing.T) {
	hub := newTestHub(t)
	first := login(t, hub, "alice")

	second := connect(t, hub, "alice", testUsers["alice"])

	second.WaitFor(t, MsgAlreadyLoggedIn, wait)
	second.WaitClosed(t, wait)
	require.False(t, first.IsClosed())

	// The original session keeps working
	bob := login(t, hub, "bob")
	bob.Send("/msg alice still you?")
	first.WaitFor(t, "[Private] bob: still you?", wait)
}

func TestClient_DisconnectDuringLoginIsSilent(t *testing.T) {
	hub := newTestHub(t)
	alice := login(t, hub, "alice")

	ghost := testutil.NewFakeConn("ghost")
	require.NoError(t, hub.Serve(ghost))
	ghost.WaitFor(t, PromptUsername, wait)
	require.NoError(t, ghost.Close())

	require.Eventually(t, func() bool { return hub.LiveCount() == 1 }, wait, 5*time.Millisecond)
	alice.ExpectNothing(t, "has left the chat", 50*time.Millisecond)
}

func TestClient_NonMemberGroupMessage(t *testing.T) {
	hub := newTestHub(t)
	alice := login(t, hub, "alice")
	bob := login(t, hub, "bob")

	alice.Send("/create_group g1")
	alice.WaitFor(t, "Group g1 created.", wait)
	bob.WaitFor(t, "alice created group g1", wait)

	bob.Send("/group_msg g1 hi")

	bob.WaitFor(t, router.MsgNotInGroupOrGone, wait)
	alice.ExpectNothing(t, "[Group g1]", 50*time.Millisecond)
}

func TestClient_DisconnectAnnouncesDeparture(t *testing.T) {
	hub := newTestHub(t)
	alice := login(t, hub, "alice")
	bob := login(t, hub, "bob")

	alice.Send("/create_group g1")
	alice.WaitFor(t, "Group g1 created.", wait)
	bob.Send("/join_group g1")
	bob.WaitFor(t, "You joined the group g1.", wait)
	alice.WaitFor(t, "bob joined group g1", wait)

	// When alice drops
	require.NoError(t, alice.Close())

	// Then bob hears about the group first, then the chat
	bob.WaitFor(t, "alice has left group g1 (disconnected).", wait)
	bob.WaitFor(t, "alice has left the chat.", wait)
	require.Eventually(t, func() bool { return hub.Sessions().Len() == 1 }, wait, 5*time.Millisecond)

	// And the group lives on with bob alone
	bob.Send("/group_msg g1 anyone?")
	bob.WaitFor(t, "[Group g1] bob: anyone?", wait)
	require.Len(t, hub.Groups().Members("g1"), 1)
}

func TestClient_LastMemberDisconnectRemovesGroup(t *testing.T) {
	hub := newTestHub(t)
	alice := login(t, hub, "alice")

	alice.Send("/create_group solo")
	alice.WaitFor(t, "Group solo created.", wait)
	require.NoError(t, alice.Close())

	require.Eventually(t, func() bool { return hub.Groups().Members("solo") == nil }, wait, 5*time.Millisecond)
	require.Equal(t, 0, hub.Groups().Len())
}

func TestClient_JoinTwiceKeepsMembership(t *testing.T) {
	hub := newTestHub(t)
	alice := login(t, hub, "alice")
	bob := login(t, hub, "bob")

	alice.Send("/create_group g1")
	alice.WaitFor(t, "Group g1 created.", wait)

	bob.Send("/join_group g1")
	bob.WaitFor(t, "You joined the group g1.", wait)
	bob.Send("/join_group g1")
	bob.WaitFor(t, "You joined the group g1.", wait)

	require.Len(t, hub.Groups().Members("g1"), 2)
}

func TestClient_CommandsAfterRejectionKeepWorking(t *testing.T) {
	hub := newTestHub(t)
	alice := login(t, hub, "alice")
	bob := login(t, hub, "bob")

	alice.Send("hello?")
	alice.WaitFor(t, router.MsgInvalidCommand, wait)
	alice.Send("/msg nobody hi")
	alice.WaitFor(t, router.MsgUserNotFound, wait)

	alice.Send("/broadcast hi everyone")
	bob.WaitFor(t, "alice: hi everyone", wait)
	alice.ExpectNothing(t, "alice: hi everyone", 50*time.Millisecond)
}

func TestClient_FailedRecipientDoesNotStopFanOut(t *testing.T) {
	hub := newTestHub(t)
	alice := login(t, hub, "alice")
	bob := login(t, hub, "bob")
	carol := login(t, hub, "carol")

	bob.SetFailDeliver(true)
	alice.Send("/broadcast ping")

	carol.WaitFor(t, "alice: ping", wait)
	require.False(t, alice.IsClosed())
}

func TestClient_TeardownIsIdempotent(t *testing.T) {
	req := require.New(t)
	hub := newTestHub(t)
	bob := login(t, hub, "bob")

	conn := testutil.NewFakeConn("direct")
	req.NoError(hub.Sessions().Register(conn, "alice"))
	req.NoError(hub.Groups().Create("g1", conn))

	c := newClient(hub, conn)
	req.Equal(StateConnecting, c.State())

	c.teardown()
	c.teardown()

	req.Equal(StateClosed, c.State())
	req.True(conn.IsClosed())
	req.Equal(1, hub.Sessions().Len())
	req.Nil(hub.Groups().Members("g1"))
	bob.WaitFor(t, "alice has left the chat.", wait)
}

func TestHub_ShutdownClosesEverything(t *testing.T) {
	req := require.New(t)
	hub := newTestHub(t)
	alice := login(t, hub, "alice")
	bob := login(t, hub, "bob")
	pending := testutil.NewFakeConn("pending")
	req.NoError(hub.Serve(pending))
	pending.WaitFor(t, PromptUsername, wait)

	alice.Send("/create_group g1")
	alice.WaitFor(t, "Group g1 created.", wait)

	req.NoError(hub.Shutdown(wait))

	for _, conn := range []*testutil.FakeConn{alice, bob, pending} {
		req.True(conn.IsClosed())
	}
	req.Equal(0, hub.LiveCount())
	req.Equal(0, hub.Sessions().Len())
	req.Equal(0, hub.Groups().Len())

	late := testutil.NewFakeConn("late")
	req.ErrorIs(hub.Serve(late), ErrHubClosed)
	req.True(late.IsClosed())
}

func TestState_String(t *testing.T) {
	require.Equal(t, "authenticating", StateAuthenticating.String())
	require.Equal(t, "unknown", State(42).String())
}
