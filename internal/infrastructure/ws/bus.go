package ws

import (
	"context"
	"encoding/json"
	"sync"
)

type Handler func(data json.RawMessage)

// EventBus is the surface managers depend on. *Channel implements it; the
// wstest package provides an in-memory double.
type EventBus interface {
	Emit(event string, payload any) error
	On(event string, h Handler) (unsubscribe func())
	Connect(ctx context.Context)
	Disconnect()
	Connected() bool
	SocketID() string
}

// Registrations collects the subscriptions of one manager. Release drops
// everything collected so far, so an Attach after a Release starts clean.
type Registrations struct {
	mu     sync.Mutex
	unsubs []func()
}

func (r *Registrations) On(bus EventBus, event string, h Handler) {
	r.Add(bus.On(event, h))
}

// Add tracks a release func from outside the bus, such as a router listener.
func (r *Registrations) Add(unsub func()) {
	if unsub == nil {
		return
	}
	r.mu.Lock()
	r.unsubs = append(r.unsubs, unsub)
	r.mu.Unlock()
}

func (r *Registrations) Release() {
	r.mu.Lock()
	unsubs := r.unsubs
	r.unsubs = nil
	r.mu.Unlock()
	for _, unsub := range unsubs {
		unsub()
	}
}

type subscription struct {
	id uint64
	h  Handler
}

// Dispatcher is the subscription table shared by Channel and test doubles.
// Handlers run in subscription order on the caller's goroutine.
type Dispatcher struct {
	mu     sync.RWMutex
	subs   map[string][]subscription
	nextID uint64
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{subs: make(map[string][]subscription)}
}

func (d *Dispatcher) On(event string, h Handler) func() {
	d.mu.Lock()
	d.nextID++
	id := d.nextID
	d.subs[event] = append(d.subs[event], subscription{id: id, h: h})
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			subs := d.subs[event]
			for i, s := range subs {
				if s.id == id {
					d.subs[event] = append(subs[:i:i], subs[i+1:]...)
					break
				}
			}
		})
	}
}

// Dispatch runs every handler of event and returns how many ran.
func (d *Dispatcher) Dispatch(event string, data json.RawMessage) int {
	d.mu.RLock()
	subs := append([]subscription(nil), d.subs[event]...)
	d.mu.RUnlock()

	for _, s := range subs {
		s.h(data)
	}
	return len(subs)
}

func (d *Dispatcher) Count(event string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subs[event])
}
