// Package wstest provides an in-memory ws.EventBus for manager tests.
package wstest

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/hilthontt/codenexus/internal/infrastructure/ws"
)

type Emitted struct {
	Event string
	Data  json.RawMessage
}

// Bus records emits and lets tests deliver events as if they arrived
// from the service.
type Bus struct {
	*ws.Dispatcher

	mu          sync.Mutex
	emitted     []Emitted
	connected   bool
	socketID    string
	connects    int
	disconnects int
}

func NewBus(socketID string) *Bus {
	return &Bus{Dispatcher: ws.NewDispatcher(), socketID: socketID, connected: true}
}

func (b *Bus) Emit(event string, payload any) error {
	var data json.RawMessage
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		data = raw
	}

	b.mu.Lock()
	b.emitted = append(b.emitted, Emitted{Event: event, Data: data})
	b.mu.Unlock()
	return nil
}

func (b *Bus) Connect(context.Context) {
	b.mu.Lock()
	b.connects++
	b.mu.Unlock()
}

func (b *Bus) Disconnect() {
	b.mu.Lock()
	b.disconnects++
	b.connected = false
	b.mu.Unlock()
}

func (b *Bus) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

func (b *Bus) SetConnected(v bool) {
	b.mu.Lock()
	b.connected = v
	b.mu.Unlock()
}

func (b *Bus) SocketID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.socketID
}

func (b *Bus) Connects() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connects
}

func (b *Bus) Disconnects() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.disconnects
}

// Deliver dispatches event with payload encoded as JSON.
func (b *Bus) Deliver(event string, payload any) {
	var data json.RawMessage
	if payload != nil {
		data, _ = json.Marshal(payload)
	}
	b.Dispatch(event, data)
}

// Emitted returns every frame emitted with the given name, in order.
func (b *Bus) Emitted(event string) []Emitted {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Emitted
	for _, e := range b.emitted {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

// Events returns the names of all emitted frames.
func (b *Bus) Events() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.emitted))
	for _, e := range b.emitted {
		out = append(out, e.Event)
	}
	return out
}

func (b *Bus) Reset() {
	b.mu.Lock()
	b.emitted = nil
	b.mu.Unlock()
}

var _ ws.EventBus = (*Bus)(nil)
