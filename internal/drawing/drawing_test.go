package drawing

import (
	"encoding/json"
	"testing"

	"github.com/hilthontt/codenexus/internal/domain"
	"github.com/hilthontt/codenexus/internal/infrastructure/ws"
	"github.com/hilthontt/codenexus/internal/infrastructure/ws/wstest"
	"github.com/hilthontt/codenexus/internal/view"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDrawing(t *testing.T, socketID string) (*Manager, *wstest.Bus) {
	t.Helper()
	bus := wstest.NewBus(socketID)
	m := NewManager(bus, nil)
	m.Attach()
	t.Cleanup(m.Detach)
	return m, bus
}

func TestRequest_RepliesWithFullSnapshot(t *testing.T) {
	m, bus := newDrawing(t, "sock-holder")
	snapshot := domain.DrawingData(`{"shapes":[{"id":"s1","type":"rect"}]}`)
	m.SetSnapshot(snapshot)

	bus.Deliver(ws.RequestDrawing, ws.SocketPayload{SocketID: "sock-joiner"})

	sent := bus.Emitted(ws.SyncDrawing)
	require.Len(t, sent, 1)
	var p ws.SyncDrawingPayload
	require.NoError(t, json.Unmarshal(sent[0].Data, &p))
	assert.Equal(t, "sock-joiner", p.SocketID)
	assert.JSONEq(t, string(snapshot), string(p.DrawingData))
}

func TestRequest_NoSnapshotNoReply(t *testing.T) {
	_, bus := newDrawing(t, "sock-holder")
	bus.Deliver(ws.RequestDrawing, ws.SocketPayload{SocketID: "sock-joiner"})
	assert.Empty(t, bus.Emitted(ws.SyncDrawing))
}

func TestAttach_Twice(t *testing.T) {
	m, bus := newDrawing(t, "sock-holder")
	m.Attach()
	assert.Equal(t, 1, bus.Count(ws.RequestDrawing))

	m.SetSnapshot(domain.DrawingData(`{"v":1}`))
	bus.Deliver(ws.RequestDrawing, ws.SocketPayload{SocketID: "sock-joiner"})
	assert.Len(t, bus.Emitted(ws.SyncDrawing), 1)

	m.Detach()
	assert.Zero(t, bus.Count(ws.RequestDrawing))
}

func TestSync_Addressing(t *testing.T) {
	tests := []struct {
		name     string
		socketID string
		want     string
	}{
		{"addressed to me", "sock-me", `{"v":2}`},
		{"broadcast", "", `{"v":2}`},
		{"addressed to another peer", "sock-other", `{"v":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, bus := newDrawing(t, "sock-me")
			m.SetSnapshot(domain.DrawingData(`{"v":1}`))

			bus.Deliver(ws.SyncDrawing, ws.SyncDrawingPayload{SocketID: tt.socketID, DrawingData: domain.DrawingData(`{"v":2}`)})

			assert.JSONEq(t, tt.want, string(m.Snapshot()))
		})
	}
}

func TestOnViewChange_RequestsWhenEnteringDrawing(t *testing.T) {
	m, bus := newDrawing(t, "sock-me")

	coding := view.State{Activity: domain.ActivityCoding}
	drawing := view.State{Activity: domain.ActivityDrawing}

	m.OnViewChange(coding, drawing)
	m.OnViewChange(drawing, drawing)
	m.OnViewChange(drawing, coding)

	assert.Len(t, bus.Emitted(ws.RequestDrawing), 1)
}
