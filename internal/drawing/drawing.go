// Package drawing holds the shared drawing snapshot and answers pull
// requests from peers that switch into drawing mode.
package drawing

import (
	"bytes"
	"encoding/json"
	"sync"

	"github.com/hilthontt/codenexus/internal/domain"
	"github.com/hilthontt/codenexus/internal/infrastructure/logging"
	"github.com/hilthontt/codenexus/internal/infrastructure/ws"
	"github.com/hilthontt/codenexus/internal/view"
)

type Manager struct {
	bus    ws.EventBus
	logger logging.Logger
	regs   ws.Registrations

	mu       sync.RWMutex
	snapshot domain.DrawingData
}

func NewManager(bus ws.EventBus, logger logging.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Manager{bus: bus, logger: logger}
}

func (m *Manager) Attach() {
	m.regs.Release()
	m.regs.On(m.bus, ws.RequestDrawing, m.onRequest)
	m.regs.On(m.bus, ws.SyncDrawing, m.onSync)
}

func (m *Manager) Detach() {
	m.regs.Release()
}

// Snapshot returns a copy of the current snapshot, nil when none is held.
func (m *Manager) Snapshot() domain.DrawingData {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return bytes.Clone(m.snapshot)
}

// SetSnapshot replaces the snapshot after a local drawing change.
func (m *Manager) SetSnapshot(data domain.DrawingData) {
	m.mu.Lock()
	m.snapshot = bytes.Clone(data)
	m.mu.Unlock()
}

// RequestDrawing asks peers for their latest snapshot.
func (m *Manager) RequestDrawing() error {
	return m.bus.Emit(ws.RequestDrawing, struct{}{})
}

// OnViewChange requests a snapshot when the activity enters drawing mode.
func (m *Manager) OnViewChange(prev, next view.State) {
	if next.Activity == domain.ActivityDrawing && prev.Activity != domain.ActivityDrawing {
		if err := m.RequestDrawing(); err != nil {
			m.logger.Warn(logging.Drawing, logging.Sync, "drawing request failed", map[logging.ExtraKey]any{
				logging.ErrorMessage: err.Error(),
			})
		}
	}
}

func (m *Manager) onRequest(data json.RawMessage) {
	var p ws.SocketPayload
	if err := ws.Decode(data, &p); err != nil || p.SocketID == "" {
		return
	}

	snapshot := m.Snapshot()
	if len(snapshot) == 0 {
		return
	}

	if err := m.bus.Emit(ws.SyncDrawing, ws.SyncDrawingPayload{SocketID: p.SocketID, DrawingData: snapshot}); err != nil {
		m.logger.Warn(logging.Drawing, logging.Sync, "drawing reply failed", map[logging.ExtraKey]any{
			logging.SocketID:     p.SocketID,
			logging.ErrorMessage: err.Error(),
		})
		return
	}
	m.logger.Debug(logging.Drawing, logging.Sync, "sent drawing snapshot", map[logging.ExtraKey]any{
		logging.SocketID: p.SocketID,
		logging.Count:    len(snapshot),
	})
}

// onSync replaces the snapshot wholesale when the reply is addressed to
// this connection or to everyone.
func (m *Manager) onSync(data json.RawMessage) {
	var p ws.SyncDrawingPayload
	if err := ws.Decode(data, &p); err != nil {
		return
	}
	if own := m.bus.SocketID(); p.SocketID != "" && own != "" && p.SocketID != own {
		return
	}
	if len(p.DrawingData) == 0 || bytes.Equal(p.DrawingData, []byte("null")) {
		return
	}
	m.SetSnapshot(p.DrawingData)
}
