// Package navigation tracks the client's current route: the entry page
// or a room editor.
package navigation

import (
	"strings"
	"sync"
)

const (
	HomePath     = "/"
	editorPrefix = "/editor/"
)

func EditorPath(roomID string) string {
	return editorPrefix + roomID
}

// Resolve maps any path onto a known route. "/editor" without a room and
// unknown paths fall back to the entry page.
func Resolve(path string) string {
	path = strings.TrimSpace(path)
	if path == "" || path == HomePath {
		return HomePath
	}
	if room, ok := strings.CutPrefix(path, editorPrefix); ok {
		room = strings.Trim(room, "/")
		if room != "" && !strings.Contains(room, "/") {
			return EditorPath(room)
		}
	}
	return HomePath
}

type Listener func(path string)

type Router struct {
	mu        sync.RWMutex
	current   string
	prefill   string
	nextID    uint64
	listeners []listener
}

type listener struct {
	id uint64
	fn Listener
}

func NewRouter() *Router {
	return &Router{current: HomePath}
}

// Navigate moves to the resolved form of path and returns it.
func (r *Router) Navigate(path string) string {
	resolved := Resolve(path)

	r.mu.Lock()
	changed := r.current != resolved
	r.current = resolved
	listeners := append([]listener(nil), r.listeners...)
	r.mu.Unlock()

	if changed {
		for _, l := range listeners {
			l.fn(resolved)
		}
	}
	return resolved
}

func (r *Router) Current() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

func (r *Router) IsHome() bool {
	return r.Current() == HomePath
}

// RoomID is the room of the current editor route, or "".
func (r *Router) RoomID() string {
	room, ok := strings.CutPrefix(r.Current(), editorPrefix)
	if !ok {
		return ""
	}
	return room
}

// Prefill stores a room id for the join form, as when a visitor opens a
// room link before joining.
func (r *Router) Prefill(roomID string) {
	r.mu.Lock()
	r.prefill = strings.TrimSpace(roomID)
	r.mu.Unlock()
}

func (r *Router) PrefilledRoomID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.prefill
}

// Subscribe registers l for route changes and returns its release func.
func (r *Router) Subscribe(l Listener) func() {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.listeners = append(r.listeners, listener{id: id, fn: l})
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		for i, s := range r.listeners {
			if s.id == id {
				r.listeners = append(r.listeners[:i:i], r.listeners[i+1:]...)
				return
			}
		}
	}
}
