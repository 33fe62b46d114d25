package app

import (
	"context"
	"testing"

	"github.com/hilthontt/codenexus/internal/domain"
	"github.com/hilthontt/codenexus/internal/infrastructure/configs"
	"github.com/hilthontt/codenexus/internal/infrastructure/storage"
	"github.com/hilthontt/codenexus/internal/infrastructure/ws"
	"github.com/hilthontt/codenexus/internal/infrastructure/ws/wstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newContainer(t *testing.T, autoConnect bool) (*Container, *wstest.Bus) {
	t.Helper()

	cfg, err := configs.Load("")
	require.NoError(t, err)
	cfg.Channel.AutoConnect = autoConnect

	bus := wstest.NewBus("sock-self")
	c, err := New(context.Background(), *cfg, nil, Deps{Bus: bus, Store: storage.NewMemoryStore()})
	require.NoError(t, err)
	c.Start(context.Background())
	t.Cleanup(func() { _ = c.Close() })
	return c, bus
}

func TestStart_AutoConnect(t *testing.T) {
	tests := []struct {
		name        string
		autoConnect bool
		want        int
	}{
		{"connects on start", true, 1},
		{"stays idle", false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, bus := newContainer(t, tt.autoConnect)
			assert.Equal(t, tt.want, bus.Connects())
		})
	}
}

func TestNew_UnknownStorageDriver(t *testing.T) {
	cfg, err := configs.Load("")
	require.NoError(t, err)
	cfg.Storage.Driver = "tape"

	_, err = New(context.Background(), *cfg, nil, Deps{Bus: wstest.NewBus("s")})
	assert.ErrorIs(t, err, storage.ErrUnknownDriver)
}

func TestViewChangesReachChatAndDrawing(t *testing.T) {
	c, bus := newContainer(t, false)
	ctx := context.Background()

	c.View.SetActivity(ctx, domain.ActivityDrawing)
	assert.Len(t, bus.Emitted(ws.RequestDrawing), 1)

	c.Chat.OnRemoteMessage(ctx, domain.ChatMessage{ID: "m1", Message: "hi", Username: "bob"})
	require.True(t, c.Chat.Unseen())

	_, err := c.View.SelectView(ctx, domain.ViewChats)
	require.NoError(t, err)
	assert.False(t, c.Chat.Unseen())
}

func TestOpenFileUpdatesLanguage(t *testing.T) {
	c, _ := newContainer(t, false)

	f, err := c.Documents.CreateFile("", "script.py")
	require.NoError(t, err)
	require.NoError(t, c.Documents.OpenFile(context.Background(), f.ID))

	assert.Equal(t, "python", c.Settings.Get().Language)
}
