// Package session owns the join lifecycle: connection status, the local
// identity and the roster of remote participants.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"github.com/hilthontt/codenexus/internal/domain"
	"github.com/hilthontt/codenexus/internal/infrastructure/logging"
	"github.com/hilthontt/codenexus/internal/infrastructure/storage"
	"github.com/hilthontt/codenexus/internal/infrastructure/ws"
	"github.com/hilthontt/codenexus/internal/navigation"
	"github.com/hilthontt/codenexus/internal/notify"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Session scoped storage keys.
const (
	RedirectKey = "redirect"
	UsernameKey = "username"
)

const (
	msgJoining          = "Joining room..."
	msgSyncing          = "Syncing data, please wait..."
	msgConnectionFailed = "Failed to connect to the server. Retrying..."
	msgUsernameExists   = "The username you chose already exists in the room. Please choose a different username."
	msgNewRoom          = "Created a new Room Id"
)

var ErrNotJoined = errors.New("session: not joined")

type StatusListener func(prev, next domain.SessionStatus)

type Options struct {
	Bus      ws.EventBus
	Store    storage.Store
	Router   *navigation.Router
	Notifier notify.Notifier
	Logger   logging.Logger
	Tracer   trace.Tracer
}

type Machine struct {
	bus      ws.EventBus
	store    storage.Store
	router   *navigation.Router
	notifier notify.Notifier
	logger   logging.Logger
	tracer   trace.Tracer

	regs ws.Registrations
	ctx  context.Context

	mu        sync.RWMutex
	status    domain.SessionStatus
	user      domain.User
	pending   bool
	roster    []domain.RemoteUser
	members   mapset.Set[string]
	listeners []StatusListener
	attached  bool
}

func NewMachine(opts Options) *Machine {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer("github.com/hilthontt/codenexus/internal/session")
	}
	router := opts.Router
	if router == nil {
		router = navigation.NewRouter()
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.NewCenter(logger, 0)
	}
	store := opts.Store
	if store == nil {
		store = storage.NewMemoryStore()
	}

	return &Machine{
		bus:      opts.Bus,
		store:    store,
		router:   router,
		notifier: notifier,
		logger:   logger,
		tracer:   tracer,
		ctx:      context.Background(),
		status:   domain.StatusInitial,
		members:  mapset.NewSet[string](),
	}
}

// Attach subscribes the machine to the channel. ctx bounds the reconnects
// the machine starts on its own.
func (m *Machine) Attach(ctx context.Context) {
	m.mu.Lock()
	if m.attached {
		m.mu.Unlock()
		return
	}
	m.attached = true
	m.ctx = ctx
	m.mu.Unlock()

	m.regs.On(m.bus, ws.EventConnect, func(json.RawMessage) { m.onConnect() })
	m.regs.On(m.bus, ws.EventDisconnect, func(json.RawMessage) { m.onDisconnect() })
	m.regs.On(m.bus, ws.EventConnectError, func(json.RawMessage) { m.onConnectError() })
	m.regs.On(m.bus, ws.EventConnectFailed, func(json.RawMessage) { m.onConnectError() })
	m.regs.On(m.bus, ws.JoinAccepted, m.onJoinAccepted)
	m.regs.On(m.bus, ws.UsernameExists, func(json.RawMessage) { m.onUsernameExists() })
	m.regs.On(m.bus, ws.UserJoined, m.onUserJoined)
	m.regs.On(m.bus, ws.UserDisconnected, m.onUserDisconnected)
	m.regs.On(m.bus, ws.UserOnline, m.presence(domain.UserOnline))
	m.regs.On(m.bus, ws.UserOffline, m.presence(domain.UserOffline))
	m.regs.On(m.bus, ws.TypingStart, m.onTypingStart)
	m.regs.On(m.bus, ws.TypingPause, m.onTypingPause)

	m.regs.Add(m.router.Subscribe(func(path string) {
		if path == navigation.HomePath {
			m.observeJoined()
		}
	}))
}

// Detach releases the channel subscriptions.
func (m *Machine) Detach() {
	m.mu.Lock()
	m.attached = false
	m.mu.Unlock()
	m.regs.Release()
}

func (m *Machine) Subscribe(l StatusListener) {
	m.mu.Lock()
	m.listeners = append(m.listeners, l)
	m.mu.Unlock()
}

func (m *Machine) Status() domain.SessionStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

func (m *Machine) User() domain.User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.user
}

func (m *Machine) Roster() []domain.RemoteUser {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.RemoteUser(nil), m.roster...)
}

// Peers is the roster without the local user.
func (m *Machine) Peers() []domain.RemoteUser {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.RemoteUser
	for _, u := range m.roster {
		if u.Username != m.user.Username {
			out = append(out, u)
		}
	}
	return out
}

// Joined reports whether the session is joined to roomID.
func (m *Machine) Joined(roomID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status == domain.StatusJoined && m.user.RoomID == roomID
}

// Join submits the join form. Validation failures are reported and leave
// the status untouched; a submit while a join is in flight is a no-op.
func (m *Machine) Join(ctx context.Context, username, roomID string) error {
	ctx, span := m.tracer.Start(ctx, "session.Join")
	defer span.End()

	u, err := domain.NewUser(username, roomID)
	if err != nil {
		m.notifier.Error(err.Error())
		span.RecordError(err)
		return err
	}
	span.SetAttributes(attribute.String("room.id", u.RoomID), attribute.String("user.name", u.Username))

	m.mu.Lock()
	if m.status == domain.StatusAttemptingJoin {
		m.mu.Unlock()
		return nil
	}
	prev := m.status
	m.status = domain.StatusAttemptingJoin
	m.user = u
	m.pending = true
	m.mu.Unlock()
	m.notifyStatus(prev, domain.StatusAttemptingJoin)

	if err := m.store.Set(ctx, UsernameKey, u.Username); err != nil {
		m.logger.Warn(logging.Session, logging.Join, "failed to store username", map[logging.ExtraKey]any{
			logging.ErrorMessage: err.Error(),
		})
	}

	m.notifier.Dismiss("")
	m.notifier.Loading(msgJoining)
	m.logger.Info(logging.Session, logging.Join, "join requested", map[logging.ExtraKey]any{
		logging.Username: u.Username,
		logging.RoomID:   u.RoomID,
	})

	if err := m.bus.Emit(ws.JoinRequest, ws.JoinRequestPayload{Username: u.Username, RoomID: u.RoomID}); err != nil {
		span.RecordError(err)
		return fmt.Errorf("join request: %w", err)
	}
	if !m.bus.Connected() {
		m.bus.Connect(m.baseCtx())
	}
	return nil
}

// NewRoomID generates a room id and pre-fills the join form with it.
func (m *Machine) NewRoomID() string {
	id := uuid.NewString()
	m.router.Prefill(id)
	m.notifier.Success(msgNewRoom)
	return id
}

// Retry reconnects the channel after a connection failure.
func (m *Machine) Retry(ctx context.Context) {
	m.logger.Info(logging.Session, logging.Join, "manual reconnect", nil)
	m.bus.Disconnect()
	m.bus.Connect(ctx)
}

// GoHome leaves a failed or disconnected session for the entry page.
func (m *Machine) GoHome() {
	m.mu.Lock()
	prev := m.status
	if prev == domain.StatusConnectionFailed || prev == domain.StatusDisconnected {
		m.status = domain.StatusInitial
		m.user = domain.User{}
		m.pending = false
	}
	next := m.status
	m.mu.Unlock()
	m.notifyStatus(prev, next)

	m.router.Navigate(navigation.HomePath)
	if !m.bus.Connected() {
		m.bus.Connect(m.baseCtx())
	}
}

func (m *Machine) onConnect() {
	m.mu.Lock()
	prev := m.status
	u := m.user
	rejoin := false
	switch prev {
	case domain.StatusDisconnected, domain.StatusConnectionFailed:
		switch {
		case m.pending:
			// the buffered join request was flushed with the connect
			m.status = domain.StatusAttemptingJoin
		case u.Validate() == nil:
			m.status = domain.StatusAttemptingJoin
			m.pending = true
			rejoin = true
		default:
			m.status = domain.StatusInitial
		}
	}
	next := m.status
	m.mu.Unlock()

	m.logger.Info(logging.Session, logging.Connect, "channel connected", map[logging.ExtraKey]any{
		logging.SocketID: m.bus.SocketID(),
		logging.Status:   next.String(),
	})
	m.notifyStatus(prev, next)

	if prev == domain.StatusConnectionFailed {
		m.notifier.Dismiss("")
	}
	if rejoin {
		if err := m.bus.Emit(ws.JoinRequest, ws.JoinRequestPayload{Username: u.Username, RoomID: u.RoomID}); err != nil {
			m.logger.Warn(logging.Session, logging.Join, "rejoin failed", map[logging.ExtraKey]any{
				logging.ErrorMessage: err.Error(),
			})
		}
	}
}

func (m *Machine) onDisconnect() {
	m.mu.Lock()
	prev := m.status
	switch prev {
	case domain.StatusJoined:
		m.status = domain.StatusDisconnected
	case domain.StatusAttemptingJoin:
		// the request went out on the dropped connection; rejoin on connect
		m.status = domain.StatusDisconnected
		m.pending = false
	}
	next := m.status
	m.mu.Unlock()
	m.notifyStatus(prev, next)

	reconnect := next == domain.StatusDisconnected || next == domain.StatusInitial
	if reconnect && !m.bus.Connected() {
		m.logger.Info(logging.Session, logging.Reconnect, "reconnecting after disconnect", nil)
		m.bus.Connect(m.baseCtx())
	}
}

func (m *Machine) onConnectError() {
	m.mu.Lock()
	prev := m.status
	m.status = domain.StatusConnectionFailed
	m.mu.Unlock()
	m.notifyStatus(prev, domain.StatusConnectionFailed)

	m.notifier.Dismiss("")
	m.notifier.Error(msgConnectionFailed)
}

func (m *Machine) onJoinAccepted(data json.RawMessage) {
	var p ws.JoinAcceptedPayload
	if err := ws.Decode(data, &p); err != nil {
		m.logger.Warn(logging.Session, logging.Join, "bad join-accepted payload", map[logging.ExtraKey]any{
			logging.ErrorMessage: err.Error(),
		})
		return
	}

	m.mu.Lock()
	prev := m.status
	roomID := p.User.RoomID
	if roomID == "" {
		roomID = m.user.RoomID
	}
	m.user = domain.User{Username: p.User.Username, RoomID: roomID}
	m.roster = append([]domain.RemoteUser(nil), p.Users...)
	m.members.Clear()
	for _, u := range p.Users {
		m.members.Add(u.SocketID)
	}
	m.status = domain.StatusJoined
	m.pending = false
	m.mu.Unlock()

	m.logger.Info(logging.Session, logging.Join, "joined room", map[logging.ExtraKey]any{
		logging.RoomID:   roomID,
		logging.Username: p.User.Username,
		logging.Count:    len(p.Users),
	})
	m.notifyStatus(prev, domain.StatusJoined)

	m.notifier.Dismiss("")
	if len(p.Users) > 1 {
		m.notifier.Loading(msgSyncing)
	}
	m.observeJoined()
}

func (m *Machine) onUsernameExists() {
	m.mu.Lock()
	prev := m.status
	m.status = domain.StatusInitial
	m.pending = false
	m.mu.Unlock()
	m.notifyStatus(prev, domain.StatusInitial)

	m.notifier.Dismiss("")
	m.notifier.Error(msgUsernameExists)
}

func (m *Machine) onUserJoined(data json.RawMessage) {
	var p ws.UserPayload
	if err := ws.Decode(data, &p); err != nil || p.User.SocketID == "" {
		return
	}
	if p.User.SocketID == m.bus.SocketID() {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.members.Contains(p.User.SocketID) {
		for i := range m.roster {
			if m.roster[i].SocketID == p.User.SocketID {
				m.roster[i] = p.User
			}
		}
		return
	}
	m.members.Add(p.User.SocketID)
	m.roster = append(m.roster, p.User)
	m.logger.Info(logging.Session, logging.Roster, "user joined", map[logging.ExtraKey]any{
		logging.Username: p.User.Username,
		logging.SocketID: p.User.SocketID,
	})
}

func (m *Machine) onUserDisconnected(data json.RawMessage) {
	var p ws.UserPayload
	if err := ws.Decode(data, &p); err != nil {
		return
	}

	m.mu.Lock()
	kept := m.roster[:0]
	removed := 0
	for _, u := range m.roster {
		if u.Username == p.User.Username {
			m.members.Remove(u.SocketID)
			removed++
			continue
		}
		kept = append(kept, u)
	}
	m.roster = kept
	m.mu.Unlock()

	m.logger.Info(logging.Session, logging.Roster, "user left", map[logging.ExtraKey]any{
		logging.Username: p.User.Username,
		logging.Count:    removed,
	})
	m.notifier.Success(fmt.Sprintf("%s left the room", p.User.Username))
}

func (m *Machine) presence(status domain.UserStatus) ws.Handler {
	return func(data json.RawMessage) {
		var p ws.SocketPayload
		if err := ws.Decode(data, &p); err != nil {
			return
		}
		m.updatePeer(p.SocketID, "", func(u *domain.RemoteUser) { u.Status = status })
	}
}

func (m *Machine) onTypingStart(data json.RawMessage) {
	var p ws.TypingStartPayload
	if err := ws.Decode(data, &p); err != nil || p.User == nil {
		return
	}
	m.updatePeer(p.User.SocketID, p.User.Username, func(u *domain.RemoteUser) {
		u.Typing = true
		u.CursorPosition = p.CursorPosition
		if p.User.CurrentFile != "" {
			u.CurrentFile = p.User.CurrentFile
		}
	})
}

func (m *Machine) onTypingPause(data json.RawMessage) {
	var p ws.TypingPausePayload
	if err := ws.Decode(data, &p); err != nil || p.User == nil {
		return
	}
	m.updatePeer(p.User.SocketID, p.User.Username, func(u *domain.RemoteUser) { u.Typing = false })
}

// updatePeer applies fn to the roster entry matching socketID, or username
// when the relay carries no socket id.
func (m *Machine) updatePeer(socketID, username string, fn func(*domain.RemoteUser)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.roster {
		u := &m.roster[i]
		if (socketID != "" && u.SocketID == socketID) || (socketID == "" && username != "" && u.Username == username) {
			fn(u)
		}
	}
}

// observeJoined runs the replay guard. It only acts while the entry page
// is shown: the first JOINED observation marks the redirect and enters the
// room, a later one with the marker set resets the session and cycles the
// channel.
func (m *Machine) observeJoined() {
	if !m.router.IsHome() || m.Status() != domain.StatusJoined {
		return
	}
	ctx := m.baseCtx()

	var redirected bool
	_ = m.store.Get(ctx, RedirectKey, &redirected)
	var username string
	_ = m.store.Get(ctx, UsernameKey, &username)

	if !redirected && username != "" {
		if err := m.store.Set(ctx, RedirectKey, true); err != nil {
			m.logger.Warn(logging.Session, logging.ReplayGuard, "failed to set marker", map[logging.ExtraKey]any{
				logging.ErrorMessage: err.Error(),
			})
		}
		room := m.User().RoomID
		m.logger.Info(logging.Session, logging.Navigation, "entering room", map[logging.ExtraKey]any{
			logging.RoomID: room,
		})
		m.router.Navigate(navigation.EditorPath(room))
		return
	}

	if redirected {
		_ = m.store.Remove(ctx, RedirectKey)
		_ = m.store.Remove(ctx, UsernameKey)

		m.mu.Lock()
		prev := m.status
		m.status = domain.StatusDisconnected
		m.user = domain.User{}
		m.roster = nil
		m.members.Clear()
		m.mu.Unlock()
		m.notifyStatus(prev, domain.StatusDisconnected)

		m.logger.Info(logging.Session, logging.ReplayGuard, "resetting replayed session", nil)
		m.bus.Disconnect()
		m.bus.Connect(ctx)
	}
}

func (m *Machine) baseCtx() context.Context {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ctx
}

func (m *Machine) notifyStatus(prev, next domain.SessionStatus) {
	if prev == next {
		return
	}
	m.logger.Debug(logging.Session, logging.Join, "status changed", map[logging.ExtraKey]any{
		logging.Status: fmt.Sprintf("%s -> %s", prev, next),
	})

	m.mu.RLock()
	listeners := append([]StatusListener(nil), m.listeners...)
	m.mu.RUnlock()
	for _, l := range listeners {
		l(prev, next)
	}
}
