package session

import (
	"context"
	"testing"

	"github.com/hilthontt/codenexus/internal/domain"
	"github.com/hilthontt/codenexus/internal/infrastructure/storage"
	"github.com/hilthontt/codenexus/internal/infrastructure/ws"
	"github.com/hilthontt/codenexus/internal/infrastructure/ws/wstest"
	"github.com/hilthontt/codenexus/internal/navigation"
	"github.com/hilthontt/codenexus/internal/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	bus     *wstest.Bus
	store   *storage.MemoryStore
	router  *navigation.Router
	notices *notify.Center
	m       *Machine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		bus:     wstest.NewBus("sock-self"),
		store:   storage.NewMemoryStore(),
		router:  navigation.NewRouter(),
		notices: notify.NewCenter(nil, 0),
	}
	f.m = NewMachine(Options{Bus: f.bus, Store: f.store, Router: f.router, Notifier: f.notices})
	f.m.Attach(context.Background())
	t.Cleanup(f.m.Detach)
	return f
}

func users(names ...string) []domain.RemoteUser {
	out := make([]domain.RemoteUser, 0, len(names))
	for _, n := range names {
		out = append(out, domain.RemoteUser{SocketID: "sock-" + n, Username: n, Status: domain.UserOnline})
	}
	return out
}

func (f *fixture) accept(self string, all ...string) {
	f.bus.Deliver(ws.JoinAccepted, ws.JoinAcceptedPayload{
		User:  domain.RemoteUser{SocketID: "sock-self", Username: self, RoomID: "room-1"},
		Users: users(all...),
	})
}

func TestJoin_Validation(t *testing.T) {
	tests := []struct {
		name     string
		username string
		roomID   string
		wantErr  error
	}{
		{"short username", "al", "room-1", domain.ErrInvalidUsername},
		{"blank username", "   ", "room-1", domain.ErrInvalidUsername},
		{"short room", "alice", "r1", domain.ErrInvalidRoomID},
		{"padded short room", "alice", "  abcd ", domain.ErrInvalidRoomID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			err := f.m.Join(context.Background(), tt.username, tt.roomID)
			require.ErrorIs(t, err, tt.wantErr)

			assert.Empty(t, f.bus.Emitted(ws.JoinRequest))
			assert.Equal(t, domain.StatusInitial, f.m.Status())
			n, ok := f.notices.Last(notify.KindError)
			require.True(t, ok)
			assert.Equal(t, tt.wantErr.Error(), n.Message)
		})
	}
}

func TestJoin_EmitsOncePerSubmission(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.m.Join(ctx, " alice ", "room-1"))
	require.NoError(t, f.m.Join(ctx, "alice", "room-1"))

	emitted := f.bus.Emitted(ws.JoinRequest)
	require.Len(t, emitted, 1)
	assert.JSONEq(t, `{"username":"alice","roomId":"room-1"}`, string(emitted[0].Data))
	assert.Equal(t, domain.StatusAttemptingJoin, f.m.Status())

	var stored string
	require.NoError(t, f.store.Get(ctx, UsernameKey, &stored))
	assert.Equal(t, "alice", stored)

	n, ok := f.notices.Last(notify.KindLoading)
	require.True(t, ok)
	assert.Equal(t, "Joining room...", n.Message)

	// a rejected join allows a second submission
	f.bus.Deliver(ws.UsernameExists, struct{}{})
	assert.Equal(t, domain.StatusInitial, f.m.Status())
	require.NoError(t, f.m.Join(ctx, "alice2", "room-1"))
	assert.Len(t, f.bus.Emitted(ws.JoinRequest), 2)
}

func TestJoinAccepted(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.m.Join(context.Background(), "alice", "room-1"))

	f.accept("alice", "alice", "bob", "carol")

	assert.Equal(t, domain.StatusJoined, f.m.Status())
	assert.Len(t, f.m.Roster(), 3)
	assert.Len(t, f.m.Peers(), 2)
	assert.Equal(t, domain.User{Username: "alice", RoomID: "room-1"}, f.m.User())
	assert.True(t, f.m.Joined("room-1"))
	assert.Equal(t, "/editor/room-1", f.router.Current())

	n, ok := f.notices.Last(notify.KindLoading)
	require.True(t, ok)
	assert.Equal(t, "Syncing data, please wait...", n.Message)
}

func TestUserDisconnected_RemovesEntry(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.m.Join(context.Background(), "alice", "room-1"))
	f.accept("alice", "alice", "bob", "carol")

	f.bus.Deliver(ws.UserDisconnected, ws.UserPayload{User: domain.RemoteUser{Username: "bob"}})

	roster := f.m.Roster()
	require.Len(t, roster, 2)
	for _, u := range roster {
		assert.NotEqual(t, "bob", u.Username)
	}
	n, ok := f.notices.Last(notify.KindSuccess)
	require.True(t, ok)
	assert.Equal(t, "bob left the room", n.Message)
}

func TestUserJoined_Upserts(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.m.Join(context.Background(), "alice", "room-1"))
	f.accept("alice", "alice")

	dave := domain.RemoteUser{SocketID: "sock-dave", Username: "dave", Status: domain.UserOnline}
	f.bus.Deliver(ws.UserJoined, ws.UserPayload{User: dave})
	f.bus.Deliver(ws.UserJoined, ws.UserPayload{User: dave})
	assert.Len(t, f.m.Roster(), 2)

	f.bus.Deliver(ws.UserOffline, ws.SocketPayload{SocketID: "sock-dave"})
	f.bus.Deliver(ws.TypingStart, ws.TypingStartPayload{User: &domain.RemoteUser{SocketID: "sock-dave"}, CursorPosition: 42})

	peers := f.m.Peers()
	require.Len(t, peers, 1)
	assert.Equal(t, domain.UserOffline, peers[0].Status)
	assert.True(t, peers[0].Typing)
	assert.Equal(t, 42, peers[0].CursorPosition)

	f.bus.Deliver(ws.TypingPause, ws.TypingPausePayload{User: &domain.RemoteUser{Username: "dave"}})
	assert.False(t, f.m.Peers()[0].Typing)
}

func TestConnectionFailure(t *testing.T) {
	for _, event := range []string{ws.EventConnectError, ws.EventConnectFailed} {
		t.Run(event, func(t *testing.T) {
			f := newFixture(t)
			f.bus.Deliver(event, ws.ErrorPayload{Message: "refused"})

			assert.Equal(t, domain.StatusConnectionFailed, f.m.Status())
			n, ok := f.notices.Last(notify.KindError)
			require.True(t, ok)
			assert.Equal(t, "Failed to connect to the server. Retrying...", n.Message)

			f.m.Retry(context.Background())
			assert.Equal(t, 1, f.bus.Connects())

			f.m.GoHome()
			assert.Equal(t, domain.StatusInitial, f.m.Status())
			assert.True(t, f.router.IsHome())
		})
	}
}

func TestDisconnect_ReconnectsAndRejoins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.m.Join(ctx, "alice", "room-1"))
	f.accept("alice", "alice", "bob")

	f.bus.SetConnected(false)
	f.bus.Deliver(ws.EventDisconnect, ws.DisconnectPayload{Reason: "transport close"})
	assert.Equal(t, domain.StatusDisconnected, f.m.Status())
	assert.Equal(t, 1, f.bus.Connects())

	f.bus.SetConnected(true)
	f.bus.Deliver(ws.EventConnect, ws.SocketPayload{SocketID: "sock-new"})
	assert.Equal(t, domain.StatusAttemptingJoin, f.m.Status())
	assert.Len(t, f.bus.Emitted(ws.JoinRequest), 2)
}

func TestDisconnect_DuringJoinAttempt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.m.Join(ctx, "alice", "room-1"))

	f.bus.SetConnected(false)
	f.bus.Deliver(ws.EventDisconnect, ws.DisconnectPayload{Reason: "transport error"})
	assert.Equal(t, domain.StatusDisconnected, f.m.Status())
	assert.Equal(t, 1, f.bus.Connects())

	// the connection comes back and the lost request is sent again
	f.bus.SetConnected(true)
	f.bus.Deliver(ws.EventConnect, ws.SocketPayload{SocketID: "sock-new"})
	assert.Equal(t, domain.StatusAttemptingJoin, f.m.Status())
	assert.Len(t, f.bus.Emitted(ws.JoinRequest), 2)

	f.accept("alice", "alice")
	assert.Equal(t, domain.StatusJoined, f.m.Status())
}

func TestDisconnect_DuringJoinAttemptAllowsResubmit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.m.Join(ctx, "alice", "room-1"))

	f.bus.SetConnected(false)
	f.bus.Deliver(ws.EventDisconnect, ws.DisconnectPayload{Reason: "transport error"})
	require.Equal(t, domain.StatusDisconnected, f.m.Status())

	require.NoError(t, f.m.Join(ctx, "alice", "room-2"))
	assert.Equal(t, domain.StatusAttemptingJoin, f.m.Status())
	assert.Len(t, f.bus.Emitted(ws.JoinRequest), 2)
	assert.Equal(t, 2, f.bus.Connects())

	// the resubmitted request is flushed by the channel, not re-sent
	f.bus.SetConnected(true)
	f.bus.Deliver(ws.EventConnect, ws.SocketPayload{SocketID: "sock-new"})
	assert.Equal(t, domain.StatusAttemptingJoin, f.m.Status())
	assert.Len(t, f.bus.Emitted(ws.JoinRequest), 2)
}

func TestDisconnect_OnEntryPageReconnects(t *testing.T) {
	f := newFixture(t)

	f.bus.SetConnected(false)
	f.bus.Deliver(ws.EventDisconnect, ws.DisconnectPayload{Reason: "transport close"})

	assert.Equal(t, domain.StatusInitial, f.m.Status())
	assert.Equal(t, 1, f.bus.Connects())
	assert.Empty(t, f.bus.Emitted(ws.JoinRequest))
}

func TestReplayGuard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.m.Join(ctx, "alice", "room-1"))
	f.accept("alice", "alice")

	assert.Equal(t, "/editor/room-1", f.router.Current())
	var marker bool
	require.NoError(t, f.store.Get(ctx, RedirectKey, &marker))
	assert.True(t, marker)

	// returning to the entry page while still joined resets the session
	f.router.Navigate("/")

	assert.Equal(t, domain.StatusDisconnected, f.m.Status())
	assert.False(t, f.store.Has(RedirectKey))
	assert.False(t, f.store.Has(UsernameKey))
	assert.Equal(t, 1, f.bus.Disconnects())
	assert.Equal(t, 1, f.bus.Connects())

	// the reconnect does not rejoin a cleared identity
	f.bus.SetConnected(true)
	f.bus.Deliver(ws.EventConnect, nil)
	assert.Equal(t, domain.StatusInitial, f.m.Status())
	assert.Len(t, f.bus.Emitted(ws.JoinRequest), 1)
}

func TestNewRoomID(t *testing.T) {
	f := newFixture(t)
	id := f.m.NewRoomID()
	assert.Len(t, id, 36)
	assert.Equal(t, id, f.router.PrefilledRoomID())
}

func TestDetach_StopsHandling(t *testing.T) {
	f := newFixture(t)
	f.m.Detach()

	f.bus.Deliver(ws.EventConnectError, nil)
	assert.Equal(t, domain.StatusInitial, f.m.Status())
	assert.Zero(t, f.bus.Count(ws.JoinAccepted))
}

func TestReattach_ReleasesOnDetach(t *testing.T) {
	f := newFixture(t)
	f.m.Detach()
	f.m.Attach(context.Background())
	assert.Equal(t, 1, f.bus.Count(ws.JoinAccepted))

	f.m.Detach()
	assert.Zero(t, f.bus.Count(ws.JoinAccepted))
	assert.Zero(t, f.bus.Count(ws.EventDisconnect))
}
