// Package view holds the layout state other managers read: the active side
// panel, whether the sidebar is open, and the coding/drawing activity.
package view

import (
	"context"
	"errors"
	"sync"

	"github.com/hilthontt/codenexus/internal/domain"
	"github.com/hilthontt/codenexus/internal/infrastructure/logging"
	"github.com/hilthontt/codenexus/internal/infrastructure/storage"
)

const StorageKey = "layout"

var ErrUnknownView = errors.New("view: unknown view")

type State struct {
	ActiveView  domain.View          `json:"activeView"`
	SidebarOpen bool                 `json:"sidebarOpen"`
	Activity    domain.ActivityState `json:"activityState"`
}

// ChatVisible reports whether the chat panel is on screen.
func (s State) ChatVisible() bool {
	return s.SidebarOpen && s.ActiveView == domain.ViewChats
}

type Listener func(prev, next State)

type Coordinator struct {
	store  storage.Store
	logger logging.Logger

	mu        sync.RWMutex
	state     State
	listeners []Listener
}

type persisted struct {
	ActiveView  domain.View `json:"activeView"`
	SidebarOpen *bool       `json:"sidebarOpen"`
}

func NewCoordinator(ctx context.Context, store storage.Store, logger logging.Logger) *Coordinator {
	if logger == nil {
		logger = logging.NewNop()
	}
	c := &Coordinator{
		store:  store,
		logger: logger,
		state: State{
			ActiveView:  domain.ViewFiles,
			SidebarOpen: true,
			Activity:    domain.ActivityCoding,
		},
	}

	var p persisted
	if err := store.Get(ctx, StorageKey, &p); err == nil {
		if p.ActiveView.Valid() {
			c.state.ActiveView = p.ActiveView
		}
		if p.SidebarOpen != nil {
			c.state.SidebarOpen = *p.SidebarOpen
		}
	}
	return c
}

func (c *Coordinator) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Coordinator) ChatVisible() bool {
	return c.State().ChatVisible()
}

// SelectView toggles the sidebar when v is already active, otherwise opens
// the sidebar on v.
func (c *Coordinator) SelectView(ctx context.Context, v domain.View) (State, error) {
	if !v.Valid() {
		return c.State(), ErrUnknownView
	}
	return c.apply(ctx, func(s *State) {
		if s.ActiveView == v {
			s.SidebarOpen = !s.SidebarOpen
			return
		}
		s.ActiveView = v
		s.SidebarOpen = true
	}), nil
}

func (c *Coordinator) SetSidebarOpen(ctx context.Context, open bool) State {
	return c.apply(ctx, func(s *State) { s.SidebarOpen = open })
}

func (c *Coordinator) SetActivity(ctx context.Context, a domain.ActivityState) State {
	return c.apply(ctx, func(s *State) { s.Activity = a })
}

// ToggleActivity switches between coding and drawing.
func (c *Coordinator) ToggleActivity(ctx context.Context) State {
	return c.apply(ctx, func(s *State) {
		switch s.Activity {
		case domain.ActivityDrawing:
			s.Activity = domain.ActivityCoding
		default:
			s.Activity = domain.ActivityDrawing
		}
	})
}

// Subscribe registers l for every state change.
func (c *Coordinator) Subscribe(l Listener) {
	c.mu.Lock()
	c.listeners = append(c.listeners, l)
	c.mu.Unlock()
}

func (c *Coordinator) apply(ctx context.Context, fn func(*State)) State {
	c.mu.Lock()
	prev := c.state
	fn(&c.state)
	next := c.state
	listeners := append([]Listener(nil), c.listeners...)
	c.mu.Unlock()

	if prev == next {
		return next
	}

	if prev.ActiveView != next.ActiveView || prev.SidebarOpen != next.SidebarOpen {
		open := next.SidebarOpen
		if err := c.store.Set(ctx, StorageKey, persisted{ActiveView: next.ActiveView, SidebarOpen: &open}); err != nil {
			c.logger.Warn(logging.Storage, logging.Persist, "failed to persist layout", map[logging.ExtraKey]any{
				logging.Key:          StorageKey,
				logging.ErrorMessage: err.Error(),
			})
		}
	}

	c.logger.Debug(logging.General, logging.Layout, "layout changed", map[logging.ExtraKey]any{
		logging.Status: string(next.ActiveView),
	})
	for _, l := range listeners {
		l(prev, next)
	}
	return next
}
