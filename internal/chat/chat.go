// Package chat keeps the room's ordered message log, persists it and tracks
// the unseen flag and scroll memory of the chat panel.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/hilthontt/codenexus/internal/domain"
	"github.com/hilthontt/codenexus/internal/infrastructure/logging"
	"github.com/hilthontt/codenexus/internal/infrastructure/storage"
	"github.com/hilthontt/codenexus/internal/infrastructure/ws"
	"github.com/hilthontt/codenexus/internal/view"
)

const StorageKey = "codewithus_chat_messages"

var ErrNoIdentity = errors.New("chat: no local user")

type Identity interface {
	User() domain.User
}

type Visibility interface {
	ChatVisible() bool
}

type Options struct {
	Bus        ws.EventBus
	Store      storage.Store
	Identity   Identity
	Visibility Visibility
	Logger     logging.Logger
	Now        func() time.Time
}

// Scroll is the remembered position of the chat panel.
type Scroll struct {
	Offset         int  `json:"offset"`
	PinnedToBottom bool `json:"pinnedToBottom"`
}

type Manager struct {
	bus        ws.EventBus
	store      storage.Store
	identity   Identity
	visibility Visibility
	logger     logging.Logger
	now        func() time.Time

	regs ws.Registrations
	ctx  context.Context

	mu       sync.RWMutex
	messages []domain.ChatMessage
	unseen   bool
	scroll   Scroll
}

// NewManager restores the persisted log. A missing or corrupt copy starts
// an empty log.
func NewManager(ctx context.Context, opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	m := &Manager{
		bus:        opts.Bus,
		store:      opts.Store,
		identity:   opts.Identity,
		visibility: opts.Visibility,
		logger:     logger,
		now:        now,
		ctx:        ctx,
		scroll:     Scroll{PinnedToBottom: true},
	}

	var saved []domain.ChatMessage
	if err := m.store.Get(ctx, StorageKey, &saved); err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			logger.Warn(logging.Chat, logging.Persist, "discarding stored chat log", map[logging.ExtraKey]any{
				logging.Key:          StorageKey,
				logging.ErrorMessage: err.Error(),
			})
		}
		saved = nil
	}
	m.messages = saved
	return m
}

func (m *Manager) Attach(ctx context.Context) {
	m.mu.Lock()
	m.ctx = ctx
	m.mu.Unlock()
	m.regs.Release()
	m.regs.On(m.bus, ws.ReceiveMessage, m.onReceive)
}

func (m *Manager) Detach() {
	m.regs.Release()
}

func (m *Manager) Messages() []domain.ChatMessage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.messages)
}

func (m *Manager) Unseen() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.unseen
}

func (m *Manager) Scroll() Scroll {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.scroll
}

// SendMessage appends the message optimistically and broadcasts it.
func (m *Manager) SendMessage(ctx context.Context, text string) (domain.ChatMessage, error) {
	var username string
	if m.identity != nil {
		username = m.identity.User().Username
	}
	if username == "" {
		return domain.ChatMessage{}, ErrNoIdentity
	}

	msg, err := domain.NewChatMessage(text, username, m.now())
	if err != nil {
		return domain.ChatMessage{}, err
	}

	m.mu.Lock()
	m.messages = append(m.messages, msg)
	m.scroll.PinnedToBottom = true
	snapshot := slices.Clone(m.messages)
	m.mu.Unlock()

	m.persist(ctx, snapshot)
	if err := m.bus.Emit(ws.SendMessage, ws.MessagePayload{Message: msg}); err != nil {
		m.logger.Warn(logging.Chat, logging.Emit, "send failed", map[logging.ExtraKey]any{
			logging.ErrorMessage: err.Error(),
		})
		return msg, err
	}
	return msg, nil
}

// OnRemoteMessage appends a peer's message and raises the unseen flag when
// the chat panel is not on screen.
func (m *Manager) OnRemoteMessage(ctx context.Context, msg domain.ChatMessage) {
	visible := m.visibility != nil && m.visibility.ChatVisible()

	m.mu.Lock()
	m.messages = append(m.messages, msg)
	if !visible {
		m.unseen = true
	}
	snapshot := slices.Clone(m.messages)
	m.mu.Unlock()

	m.persist(ctx, snapshot)
}

func (m *Manager) onReceive(data json.RawMessage) {
	var p ws.MessagePayload
	if err := ws.Decode(data, &p); err != nil {
		m.logger.Warn(logging.Chat, logging.Receive, "bad message payload", map[logging.ExtraKey]any{
			logging.ErrorMessage: err.Error(),
		})
		return
	}
	m.mu.RLock()
	ctx := m.ctx
	m.mu.RUnlock()
	m.OnRemoteMessage(ctx, p.Message)
}

// RecordScroll remembers a user initiated scroll.
func (m *Manager) RecordScroll(offset int) {
	if offset < 0 {
		offset = 0
	}
	m.mu.Lock()
	m.scroll = Scroll{Offset: offset}
	m.mu.Unlock()
}

// MarkSeen clears the unseen flag and returns the position to restore.
func (m *Manager) MarkSeen() Scroll {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unseen = false
	return m.scroll
}

// OnViewChange clears the unseen flag when the chat panel becomes visible.
func (m *Manager) OnViewChange(prev, next view.State) {
	if next.ChatVisible() && !prev.ChatVisible() {
		m.MarkSeen()
	}
}

// ClearChat empties the log and deletes the persisted copy.
func (m *Manager) ClearChat(ctx context.Context) error {
	m.mu.Lock()
	m.messages = nil
	m.unseen = false
	m.scroll = Scroll{PinnedToBottom: true}
	m.mu.Unlock()

	if err := m.store.Remove(ctx, StorageKey); err != nil {
		m.logger.Warn(logging.Chat, logging.Persist, "failed to remove chat log", map[logging.ExtraKey]any{
			logging.ErrorMessage: err.Error(),
		})
		return err
	}
	return nil
}

func (m *Manager) persist(ctx context.Context, messages []domain.ChatMessage) {
	if err := m.store.Set(ctx, StorageKey, messages); err != nil {
		m.logger.Warn(logging.Chat, logging.Persist, "failed to persist chat log", map[logging.ExtraKey]any{
			logging.Key:          StorageKey,
			logging.ErrorMessage: err.Error(),
		})
	}
}
