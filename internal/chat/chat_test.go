package chat

import (
	"context"
	"testing"
	"time"

	"github.com/hilthontt/codenexus/internal/domain"
	"github.com/hilthontt/codenexus/internal/infrastructure/storage"
	"github.com/hilthontt/codenexus/internal/infrastructure/ws"
	"github.com/hilthontt/codenexus/internal/infrastructure/ws/wstest"
	"github.com/hilthontt/codenexus/internal/view"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticUser string

func (s staticUser) User() domain.User { return domain.User{Username: string(s), RoomID: "room-1"} }

type visibility bool

func (v *visibility) ChatVisible() bool { return bool(*v) }

func newChat(t *testing.T, store storage.Store, visible *visibility) (*Manager, *wstest.Bus) {
	t.Helper()
	bus := wstest.NewBus("sock-self")
	m := NewManager(context.Background(), Options{
		Bus:        bus,
		Store:      store,
		Identity:   staticUser("alice"),
		Visibility: visible,
		Now:        func() time.Time { return time.Date(2026, 1, 2, 15, 4, 0, 0, time.UTC) },
	})
	m.Attach(context.Background())
	t.Cleanup(m.Detach)
	return m, bus
}

func texts(msgs []domain.ChatMessage) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Message)
	}
	return out
}

func TestSendMessage_AppendOnly(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	hidden := visibility(false)
	m, bus := newChat(t, store, &hidden)

	_, err := m.SendMessage(ctx, "a")
	require.NoError(t, err)
	msg, err := m.SendMessage(ctx, "b")
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, texts(m.Messages()))
	assert.Equal(t, "alice", msg.Username)
	assert.Equal(t, "3:04 PM", msg.Timestamp)
	assert.Len(t, bus.Emitted(ws.SendMessage), 2)

	var saved []domain.ChatMessage
	require.NoError(t, store.Get(ctx, StorageKey, &saved))
	assert.Equal(t, []string{"a", "b"}, texts(saved))

	require.NoError(t, m.ClearChat(ctx))
	assert.Empty(t, m.Messages())
	assert.False(t, store.Has(StorageKey))
}

func TestSendMessage_RejectsBlank(t *testing.T) {
	hidden := visibility(false)
	m, bus := newChat(t, storage.NewMemoryStore(), &hidden)

	_, err := m.SendMessage(context.Background(), "   ")
	require.ErrorIs(t, err, domain.ErrEmptyMessage)
	assert.Empty(t, bus.Emitted(ws.SendMessage))
	assert.Empty(t, m.Messages())
}

func TestRemoteMessage_UnseenFlag(t *testing.T) {
	tests := []struct {
		name       string
		visible    bool
		wantUnseen bool
	}{
		{"panel hidden", false, true},
		{"panel visible", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := visibility(tt.visible)
			m, bus := newChat(t, storage.NewMemoryStore(), &v)

			bus.Deliver(ws.ReceiveMessage, ws.MessagePayload{Message: domain.ChatMessage{ID: "1", Message: "hi", Username: "bob"}})

			assert.Equal(t, tt.wantUnseen, m.Unseen())
			assert.Equal(t, []string{"hi"}, texts(m.Messages()))
		})
	}
}

func TestScrollMemory(t *testing.T) {
	hidden := visibility(false)
	m, bus := newChat(t, storage.NewMemoryStore(), &hidden)

	m.RecordScroll(120)
	bus.Deliver(ws.ReceiveMessage, ws.MessagePayload{Message: domain.ChatMessage{ID: "1", Message: "hi", Username: "bob"}})
	require.True(t, m.Unseen())

	m.OnViewChange(view.State{}, view.State{ActiveView: domain.ViewChats, SidebarOpen: true})
	assert.False(t, m.Unseen())
	assert.Equal(t, Scroll{Offset: 120}, m.Scroll())

	_, err := m.SendMessage(context.Background(), "reply")
	require.NoError(t, err)
	assert.True(t, m.Scroll().PinnedToBottom)
}

func TestNewManager_CorruptLog(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	require.NoError(t, store.Set(ctx, StorageKey, map[string]int{"oops": 1}))

	hidden := visibility(false)
	m, _ := newChat(t, store, &hidden)
	assert.Empty(t, m.Messages())
}
