package documents

import (
	"encoding/json"
	"fmt"

	"github.com/hilthontt/codenexus/internal/domain"
	"github.com/hilthontt/codenexus/internal/infrastructure/logging"
	"github.com/hilthontt/codenexus/internal/infrastructure/ws"
)

func encodeItems(items []domain.FileSystemItem) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, 0, len(items))
	for _, it := range items {
		raw, err := json.Marshal(it)
		if err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	return out, nil
}

func (m *Manager) dropped(event string, err error) {
	m.logger.Warn(logging.Documents, logging.Receive, "dropping remote event", map[logging.ExtraKey]any{
		logging.Event:        event,
		logging.ErrorMessage: err.Error(),
	})
}

// OnRemoteContentUpdate applies a peer's edit wherever the file sits in
// the tree, open or not. Last write wins.
func (m *Manager) OnRemoteContentUpdate(p ws.FileContentPayload) error {
	m.mu.Lock()
	f, err := m.fileLocked(p.FileID)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	f.Content = p.NewContent
	m.mu.Unlock()

	m.publish(Change{Kind: ChangeContent, ID: p.FileID, Remote: true})
	return nil
}

func (m *Manager) onRemoteContent(data json.RawMessage) {
	var p ws.FileContentPayload
	if err := ws.Decode(data, &p); err != nil {
		m.dropped(ws.FileContentUpdated, err)
		return
	}
	if err := m.OnRemoteContentUpdate(p); err != nil {
		m.dropped(ws.FileContentUpdated, err)
	}
}

func (m *Manager) onRemoteCreated(data json.RawMessage) {
	var p ws.ItemCreatedPayload
	if err := ws.Decode(data, &p); err != nil {
		m.dropped(ws.FileCreated, err)
		return
	}
	item, err := domain.DecodeItem(p.Item)
	if err != nil {
		m.dropped(ws.FileCreated, err)
		return
	}

	m.mu.Lock()
	if existing, _ := domain.Find(m.root, item.ItemID()); existing != nil {
		m.mu.Unlock()
		return
	}
	parent, err := m.dirLocked(p.ParentDirID)
	if err != nil {
		m.mu.Unlock()
		m.dropped(ws.FileCreated, err)
		return
	}
	parent.Children = append(parent.Children, item)
	m.mu.Unlock()

	m.publish(Change{Kind: ChangeTree, ID: item.ItemID(), Remote: true})
}

func (m *Manager) onRemoteRenamed(data json.RawMessage) {
	var p ws.ItemRenamedPayload
	if err := ws.Decode(data, &p); err != nil || p.NewName == "" {
		return
	}

	m.mu.Lock()
	item, _ := domain.Find(m.root, p.ID)
	if item == nil || item == domain.FileSystemItem(m.root) {
		m.mu.Unlock()
		return
	}
	rename(item, p.NewName)
	m.mu.Unlock()

	m.publish(Change{Kind: ChangeTree, ID: p.ID, Remote: true})
}

func (m *Manager) onRemoteDeleted(data json.RawMessage) {
	var p ws.ItemDeletedPayload
	if err := ws.Decode(data, &p); err != nil {
		return
	}

	m.mu.Lock()
	item, parent := domain.Find(m.root, p.ID)
	if item == nil || parent == nil {
		m.mu.Unlock()
		return
	}
	m.removeLocked(item, parent)
	m.mu.Unlock()

	m.publish(Change{Kind: ChangeTree, ID: p.ID, Remote: true})
}

func (m *Manager) onRemoteDirectoryUpdated(data json.RawMessage) {
	var p ws.DirectoryUpdatedPayload
	if err := ws.Decode(data, &p); err != nil {
		m.dropped(ws.DirectoryUpdated, err)
		return
	}
	children, err := domain.DecodeItems(p.Children)
	if err != nil {
		m.dropped(ws.DirectoryUpdated, err)
		return
	}

	m.mu.Lock()
	d, err := m.dirLocked(p.DirID)
	if err == nil {
		err = checkIDs(children, m.takenIDsLocked(d))
	}
	if err != nil {
		m.mu.Unlock()
		m.dropped(ws.DirectoryUpdated, err)
		return
	}
	d.Children = children
	m.pruneTabsLocked()
	m.mu.Unlock()

	m.publish(Change{Kind: ChangeTree, ID: p.DirID, Remote: true})
}

// onSyncFileStructure replaces the projection wholesale with a peer's.
func (m *Manager) onSyncFileStructure(data json.RawMessage) {
	var p ws.FileStructurePayload
	if err := ws.Decode(data, &p); err != nil {
		m.dropped(ws.SyncFileStructure, err)
		return
	}
	if own := m.bus.SocketID(); p.SocketID != "" && own != "" && p.SocketID != own {
		return
	}

	item, err := domain.DecodeItem(p.FileStructure)
	if err != nil {
		m.dropped(ws.SyncFileStructure, err)
		return
	}
	var root *domain.Directory
	switch it := item.(type) {
	case *domain.Directory:
		root = it
	case *domain.File:
		m.dropped(ws.SyncFileStructure, ErrNotADirectory)
		return
	default:
		panic(fmt.Sprintf("documents: unexpected file system item %T", item))
	}

	m.mu.Lock()
	m.root = root
	m.openFiles = append([]string(nil), p.OpenFiles...)
	m.activeFile = p.ActiveFile
	m.resetRecentLocked()
	m.pruneTabsLocked()
	m.mu.Unlock()

	m.logger.Info(logging.Documents, logging.Sync, "file structure synced", map[logging.ExtraKey]any{
		logging.Count: len(p.OpenFiles),
	})
	if m.notifier != nil {
		m.notifier.Dismiss("")
	}
	m.publish(Change{Kind: ChangeTree, ID: root.ID, Remote: true})
}

// onUserJoined hands the current projection to a late joiner.
func (m *Manager) onUserJoined(data json.RawMessage) {
	var p ws.UserPayload
	if err := ws.Decode(data, &p); err != nil || p.User.SocketID == "" {
		return
	}
	if p.User.SocketID == m.bus.SocketID() {
		return
	}

	m.mu.RLock()
	raw, err := json.Marshal(m.root)
	openFiles := append([]string(nil), m.openFiles...)
	active := m.activeFile
	m.mu.RUnlock()
	if err != nil {
		m.dropped(ws.UserJoined, err)
		return
	}

	if err := m.bus.Emit(ws.SyncFileStructure, ws.FileStructurePayload{
		SocketID:      p.User.SocketID,
		FileStructure: raw,
		OpenFiles:     openFiles,
		ActiveFile:    active,
	}); err != nil {
		m.emitFailed(ws.SyncFileStructure, err)
	}
}
