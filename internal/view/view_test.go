package view

import (
	"context"
	"testing"

	"github.com/hilthontt/codenexus/internal/domain"
	"github.com/hilthontt/codenexus/internal/infrastructure/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoordinator_SelectView(t *testing.T) {
	ctx := context.Background()
	c := NewCoordinator(ctx, storage.NewMemoryStore(), nil)

	tests := []struct {
		name        string
		view        domain.View
		wantView    domain.View
		wantSidebar bool
	}{
		{"same view closes", domain.ViewFiles, domain.ViewFiles, false},
		{"same view reopens", domain.ViewFiles, domain.ViewFiles, true},
		{"other view opens", domain.ViewChats, domain.ViewChats, true},
		{"chats toggled closed", domain.ViewChats, domain.ViewChats, false},
		{"switch while closed", domain.ViewClients, domain.ViewClients, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := c.SelectView(ctx, tt.view)
			require.NoError(t, err)
			assert.Equal(t, tt.wantView, s.ActiveView)
			assert.Equal(t, tt.wantSidebar, s.SidebarOpen)
		})
	}

	_, err := c.SelectView(ctx, "terminal")
	require.ErrorIs(t, err, ErrUnknownView)
}

func TestCoordinator_ListenersAndPersistence(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	c := NewCoordinator(ctx, store, nil)

	var calls []State
	c.Subscribe(func(_, next State) { calls = append(calls, next) })

	_, err := c.SelectView(ctx, domain.ViewChats)
	require.NoError(t, err)
	assert.True(t, c.ChatVisible())

	c.ToggleActivity(ctx)
	assert.Equal(t, domain.ActivityDrawing, c.State().Activity)
	c.SetSidebarOpen(ctx, true) // no change, no call

	assert.Len(t, calls, 2)

	restored := NewCoordinator(ctx, store, nil).State()
	assert.Equal(t, domain.ViewChats, restored.ActiveView)
	assert.True(t, restored.SidebarOpen)
	assert.Equal(t, domain.ActivityCoding, restored.Activity)
}
