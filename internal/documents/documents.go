// Package documents owns the room's file tree projection, the open tabs and
// the active file, and keeps them in sync with peers over the channel.
package documents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"github.com/hilthontt/codenexus/internal/domain"
	"github.com/hilthontt/codenexus/internal/importer"
	"github.com/hilthontt/codenexus/internal/infrastructure/logging"
	"github.com/hilthontt/codenexus/internal/infrastructure/ws"
	"github.com/hilthontt/codenexus/internal/notify"
	"github.com/hilthontt/codenexus/internal/settings"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const DefaultTypingPause = time.Second

var (
	ErrNotFound      = errors.New("documents: item not found")
	ErrNotAFile      = errors.New("documents: item is not a file")
	ErrNotADirectory = errors.New("documents: item is not a directory")
	ErrNameTaken     = errors.New("documents: name already exists in directory")
	ErrRootItem      = errors.New("documents: the root directory cannot be changed")
	ErrNoActiveFile  = errors.New("documents: no active file")
	ErrClosed        = errors.New("documents: manager closed")
	ErrDuplicateID   = errors.New("documents: item id already in use")
)

type ChangeKind string

const (
	ChangeContent ChangeKind = "content"
	ChangeTree    ChangeKind = "tree"
	ChangeTabs    ChangeKind = "tabs"
)

// Change tells listeners what moved. Remote content updates to the active
// file arrive as ChangeContent with Remote set so an editor can refresh.
type Change struct {
	Kind   ChangeKind
	ID     string
	Remote bool
}

type LanguageSetter interface {
	SetLanguage(ctx context.Context, lang string) error
}

type Options struct {
	Bus         ws.EventBus
	Language    LanguageSetter
	Notifier    notify.Notifier
	Logger      logging.Logger
	Tracer      trace.Tracer
	TypingPause time.Duration
	MaxFileSize int64
}

type Manager struct {
	bus      ws.EventBus
	language LanguageSetter
	notifier notify.Notifier
	logger   logging.Logger
	tracer   trace.Tracer
	pause    time.Duration
	maxSize  int64

	regs ws.Registrations
	ctx  context.Context

	mu         sync.RWMutex
	root       *domain.Directory
	openFiles  []string
	recent     []string // open tabs, most recently opened first
	activeFile string
	listeners  []func(Change)

	timerMu  sync.Mutex
	timer    *time.Timer
	timerGen uint64
	closed   bool
}

func NewManager(opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer("github.com/hilthontt/codenexus/internal/documents")
	}
	pause := opts.TypingPause
	if pause <= 0 {
		pause = DefaultTypingPause
	}
	maxSize := opts.MaxFileSize
	if maxSize <= 0 {
		maxSize = importer.DefaultMaxFileSize
	}
	root, _ := domain.NewDirectory("root")
	root.IsOpen = true

	return &Manager{
		bus:      opts.Bus,
		language: opts.Language,
		notifier: opts.Notifier,
		logger:   logger,
		tracer:   tracer,
		pause:    pause,
		maxSize:  maxSize,
		ctx:      context.Background(),
		root:     root,
	}
}

func (m *Manager) Attach(ctx context.Context) {
	m.mu.Lock()
	m.ctx = ctx
	m.mu.Unlock()

	m.regs.Release()
	m.regs.On(m.bus, ws.FileContentUpdated, m.onRemoteContent)
	m.regs.On(m.bus, ws.FileCreated, m.onRemoteCreated)
	m.regs.On(m.bus, ws.DirectoryCreated, m.onRemoteCreated)
	m.regs.On(m.bus, ws.FileRenamed, m.onRemoteRenamed)
	m.regs.On(m.bus, ws.FileDeleted, m.onRemoteDeleted)
	m.regs.On(m.bus, ws.DirectoryDeleted, m.onRemoteDeleted)
	m.regs.On(m.bus, ws.DirectoryUpdated, m.onRemoteDirectoryUpdated)
	m.regs.On(m.bus, ws.SyncFileStructure, m.onSyncFileStructure)
	m.regs.On(m.bus, ws.UserJoined, m.onUserJoined)
}

// Close stops the typing timer and releases channel subscriptions.
func (m *Manager) Close() {
	m.timerMu.Lock()
	m.closed = true
	m.timerGen++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.timerMu.Unlock()
	m.regs.Release()
}

func (m *Manager) Subscribe(fn func(Change)) {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

func (m *Manager) publish(c Change) {
	m.mu.RLock()
	listeners := slices.Clone(m.listeners)
	m.mu.RUnlock()
	for _, fn := range listeners {
		fn(c)
	}
}

// Tree returns a copy of the whole projection.
func (m *Manager) Tree() *domain.Directory {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return domain.Clone(m.root).(*domain.Directory)
}

func (m *Manager) File(id string) (*domain.File, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, err := m.fileLocked(id)
	if err != nil {
		return nil, err
	}
	cp := *f
	return &cp, nil
}

func (m *Manager) OpenFiles() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.openFiles)
}

func (m *Manager) ActiveFile() (*domain.File, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.activeFile == "" {
		return nil, false
	}
	f, err := m.fileLocked(m.activeFile)
	if err != nil {
		return nil, false
	}
	cp := *f
	return &cp, true
}

func (m *Manager) fileLocked(id string) (*domain.File, error) {
	item, _ := domain.Find(m.root, id)
	if item == nil {
		return nil, ErrNotFound
	}
	switch it := item.(type) {
	case *domain.File:
		return it, nil
	case *domain.Directory:
		return nil, ErrNotAFile
	default:
		panic(fmt.Sprintf("documents: unexpected file system item %T", item))
	}
}

func (m *Manager) dirLocked(id string) (*domain.Directory, error) {
	if id == "" {
		return m.root, nil
	}
	item, _ := domain.Find(m.root, id)
	if item == nil {
		return nil, ErrNotFound
	}
	switch it := item.(type) {
	case *domain.Directory:
		return it, nil
	case *domain.File:
		return nil, ErrNotADirectory
	default:
		panic(fmt.Sprintf("documents: unexpected file system item %T", item))
	}
}

// OpenFile adds id to the tab strip once and makes it active. The file's
// language is fed to the settings.
func (m *Manager) OpenFile(ctx context.Context, id string) error {
	m.mu.Lock()
	f, err := m.fileLocked(id)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	if !slices.Contains(m.openFiles, id) {
		m.openFiles = append(m.openFiles, id)
	}
	m.touchLocked(id)
	m.activeFile = id
	name := f.Name
	m.mu.Unlock()

	m.publish(Change{Kind: ChangeTabs, ID: id})

	if m.language != nil {
		if lang, ok := settings.DetectLanguage(name); ok {
			if err := m.language.SetLanguage(ctx, lang); err != nil {
				m.logger.Warn(logging.Documents, logging.Settings, "failed to apply file language", map[logging.ExtraKey]any{
					logging.FileID:       id,
					logging.ErrorMessage: err.Error(),
				})
			}
		}
	}
	return nil
}

// CloseFile removes id from the tab strip. Closing the active file
// activates the most recently opened remaining tab, or nothing.
func (m *Manager) CloseFile(id string) error {
	m.mu.Lock()
	idx := slices.Index(m.openFiles, id)
	if idx < 0 {
		m.mu.Unlock()
		return ErrNotFound
	}
	m.openFiles = slices.Delete(m.openFiles, idx, idx+1)
	m.recent = slices.DeleteFunc(m.recent, func(r string) bool { return r == id })
	if m.activeFile == id {
		m.activeFile = m.fallbackLocked()
	}
	m.mu.Unlock()

	m.publish(Change{Kind: ChangeTabs, ID: id})
	return nil
}

// SetActiveFileContent replaces the active file's content and broadcasts it
// along with a typing signal.
func (m *Manager) SetActiveFileContent(content string, cursor int) error {
	m.mu.RLock()
	active := m.activeFile
	m.mu.RUnlock()
	if active == "" {
		return ErrNoActiveFile
	}
	return m.EditFile(active, content, cursor)
}

// EditFile replaces the content of file id as a local edit.
func (m *Manager) EditFile(id, content string, cursor int) error {
	if m.isClosed() {
		return ErrClosed
	}

	m.mu.Lock()
	f, err := m.fileLocked(id)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	f.Content = content
	m.mu.Unlock()

	m.publish(Change{Kind: ChangeContent, ID: id})

	if err := m.bus.Emit(ws.TypingStart, ws.TypingStartPayload{CursorPosition: cursor}); err != nil {
		m.emitFailed(ws.TypingStart, err)
	}
	if err := m.bus.Emit(ws.FileContentUpdated, ws.FileContentPayload{FileID: id, NewContent: content}); err != nil {
		m.emitFailed(ws.FileContentUpdated, err)
		return err
	}
	m.schedulePause()
	return nil
}

func (m *Manager) isClosed() bool {
	m.timerMu.Lock()
	defer m.timerMu.Unlock()
	return m.closed
}

// schedulePause cancels the pending typing-pause and arms a new one.
func (m *Manager) schedulePause() {
	m.timerMu.Lock()
	defer m.timerMu.Unlock()
	if m.closed {
		return
	}
	if m.timer != nil {
		m.timer.Stop()
	}
	m.timerGen++
	gen := m.timerGen
	m.timer = time.AfterFunc(m.pause, func() { m.firePause(gen) })
}

func (m *Manager) firePause(gen uint64) {
	m.timerMu.Lock()
	stale := m.closed || gen != m.timerGen
	if !stale {
		m.timer = nil
	}
	m.timerMu.Unlock()
	if stale {
		return
	}
	if err := m.bus.Emit(ws.TypingPause, struct{}{}); err != nil {
		m.emitFailed(ws.TypingPause, err)
	}
}

func (m *Manager) emitFailed(event string, err error) {
	m.logger.Warn(logging.Documents, logging.Sync, "emit failed", map[logging.ExtraKey]any{
		logging.Event:        event,
		logging.ErrorMessage: err.Error(),
	})
}

func validName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.ContainsAny(name, `/\`) {
		return "", domain.ErrInvalidName
	}
	return name, nil
}

func hasChild(d *domain.Directory, name string) bool {
	for _, c := range d.Children {
		if c.ItemName() == name {
			return true
		}
	}
	return false
}

// CreateFile adds an empty file under parentID, or the root when parentID
// is empty.
func (m *Manager) CreateFile(parentID, name string) (*domain.File, error) {
	name, err := validName(name)
	if err != nil {
		return nil, err
	}
	f, err := domain.NewFile(name, "")
	if err != nil {
		return nil, err
	}
	if err := m.insert(parentID, f, ws.FileCreated); err != nil {
		return nil, err
	}
	cp := *f
	return &cp, nil
}

func (m *Manager) CreateDirectory(parentID, name string) (*domain.Directory, error) {
	name, err := validName(name)
	if err != nil {
		return nil, err
	}
	d, err := domain.NewDirectory(name)
	if err != nil {
		return nil, err
	}
	if err := m.insert(parentID, d, ws.DirectoryCreated); err != nil {
		return nil, err
	}
	return domain.Clone(d).(*domain.Directory), nil
}

func (m *Manager) insert(parentID string, item domain.FileSystemItem, event string) error {
	m.mu.Lock()
	parent, err := m.dirLocked(parentID)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	if hasChild(parent, item.ItemName()) {
		m.mu.Unlock()
		return ErrNameTaken
	}
	parent.Children = append(parent.Children, item)
	raw, err := json.Marshal(item)
	m.mu.Unlock()
	if err != nil {
		return err
	}

	m.publish(Change{Kind: ChangeTree, ID: item.ItemID()})
	if err := m.bus.Emit(event, ws.ItemCreatedPayload{ParentDirID: parentID, Item: raw}); err != nil {
		m.emitFailed(event, err)
	}
	return nil
}

func (m *Manager) RenameItem(id, name string) error {
	name, err := validName(name)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if id == m.root.ID {
		m.mu.Unlock()
		return ErrRootItem
	}
	item, parent := domain.Find(m.root, id)
	if item == nil {
		m.mu.Unlock()
		return ErrNotFound
	}
	if item.ItemName() != name && hasChild(parent, name) {
		m.mu.Unlock()
		return ErrNameTaken
	}
	rename(item, name)
	m.mu.Unlock()

	m.publish(Change{Kind: ChangeTree, ID: id})
	if err := m.bus.Emit(ws.FileRenamed, ws.ItemRenamedPayload{ID: id, NewName: name}); err != nil {
		m.emitFailed(ws.FileRenamed, err)
	}
	return nil
}

func rename(item domain.FileSystemItem, name string) {
	switch it := item.(type) {
	case *domain.File:
		it.Name = name
	case *domain.Directory:
		it.Name = name
	default:
		panic(fmt.Sprintf("documents: unexpected file system item %T", item))
	}
}

// DeleteItem removes id and everything under it from the tree and the tab
// strip.
func (m *Manager) DeleteItem(id string) error {
	m.mu.Lock()
	if id == m.root.ID {
		m.mu.Unlock()
		return ErrRootItem
	}
	item, parent := domain.Find(m.root, id)
	if item == nil {
		m.mu.Unlock()
		return ErrNotFound
	}
	m.removeLocked(item, parent)
	m.mu.Unlock()

	event := ws.FileDeleted
	switch item.(type) {
	case *domain.File:
	case *domain.Directory:
		event = ws.DirectoryDeleted
	default:
		panic(fmt.Sprintf("documents: unexpected file system item %T", item))
	}

	m.publish(Change{Kind: ChangeTree, ID: id})
	if err := m.bus.Emit(event, ws.ItemDeletedPayload{ID: id}); err != nil {
		m.emitFailed(event, err)
	}
	return nil
}

func (m *Manager) removeLocked(item domain.FileSystemItem, parent *domain.Directory) {
	parent.Children = slices.DeleteFunc(parent.Children, func(c domain.FileSystemItem) bool {
		return c.ItemID() == item.ItemID()
	})
	m.pruneTabsLocked()
}

// pruneTabsLocked drops tabs whose file left the tree.
func (m *Manager) pruneTabsLocked() {
	m.openFiles = slices.DeleteFunc(m.openFiles, func(id string) bool {
		_, err := m.fileLocked(id)
		return err != nil
	})
	m.recent = slices.DeleteFunc(m.recent, func(id string) bool {
		return !slices.Contains(m.openFiles, id)
	})
	if m.activeFile != "" && !slices.Contains(m.openFiles, m.activeFile) {
		m.activeFile = m.fallbackLocked()
	}
}

// touchLocked moves id to the front of the recency list.
func (m *Manager) touchLocked(id string) {
	m.recent = slices.DeleteFunc(m.recent, func(r string) bool { return r == id })
	m.recent = slices.Insert(m.recent, 0, id)
}

func (m *Manager) fallbackLocked() string {
	for _, id := range m.recent {
		if slices.Contains(m.openFiles, id) {
			return id
		}
	}
	if n := len(m.openFiles); n > 0 {
		return m.openFiles[n-1]
	}
	return ""
}

// resetRecentLocked rebuilds the recency list from a tab strip received
// wholesale: strip order, newest last, with the active file first.
func (m *Manager) resetRecentLocked() {
	m.recent = slices.Clone(m.openFiles)
	slices.Reverse(m.recent)
	if m.activeFile != "" && slices.Contains(m.openFiles, m.activeFile) {
		m.touchLocked(m.activeFile)
	}
}

// takenIDsLocked returns the ids that stay in the tree when d's children
// are replaced.
func (m *Manager) takenIDsLocked(d *domain.Directory) mapset.Set[string] {
	replaced := mapset.NewThreadUnsafeSet[string]()
	for _, c := range d.Children {
		domain.Walk(c, func(it domain.FileSystemItem, _ *domain.Directory) bool {
			replaced.Add(it.ItemID())
			return true
		})
	}

	taken := mapset.NewThreadUnsafeSet[string]()
	domain.Walk(m.root, func(it domain.FileSystemItem, _ *domain.Directory) bool {
		if !replaced.Contains(it.ItemID()) {
			taken.Add(it.ItemID())
		}
		return true
	})
	return taken
}

// reassignIDs gives a fresh id to every item in children whose id is empty
// or already in taken, and returns how many it changed.
func reassignIDs(children []domain.FileSystemItem, taken mapset.Set[string]) int {
	changed := 0
	for _, c := range children {
		domain.Walk(c, func(it domain.FileSystemItem, _ *domain.Directory) bool {
			id := it.ItemID()
			if id == "" || taken.Contains(id) {
				id = uuid.NewString()
				switch v := it.(type) {
				case *domain.File:
					v.ID = id
				case *domain.Directory:
					v.ID = id
				}
				changed++
			}
			taken.Add(id)
			return true
		})
	}
	return changed
}

// checkIDs reports the first item in children whose id is empty or already
// in taken.
func checkIDs(children []domain.FileSystemItem, taken mapset.Set[string]) error {
	var err error
	for _, c := range children {
		domain.Walk(c, func(it domain.FileSystemItem, _ *domain.Directory) bool {
			id := it.ItemID()
			if id == "" || taken.Contains(id) {
				err = fmt.Errorf("%w: %q", ErrDuplicateID, id)
				return false
			}
			taken.Add(id)
			return true
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// ToggleDirectory flips the expanded flag of a directory. Local only.
func (m *Manager) ToggleDirectory(id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, err := m.dirLocked(id)
	if err != nil {
		return false, err
	}
	d.IsOpen = !d.IsOpen
	return d.IsOpen, nil
}

// ImportDirectory replaces the children of dirID (the root when empty) with
// a copy of children and broadcasts the new subtree. Items whose id is
// already used elsewhere in the tree get a fresh one.
func (m *Manager) ImportDirectory(ctx context.Context, dirID string, children []domain.FileSystemItem) error {
	_, span := m.tracer.Start(ctx, "documents.ImportDirectory")
	defer span.End()

	children = cloneItems(children)
	for _, c := range children {
		m.capContent(c)
	}

	m.mu.Lock()
	d, err := m.dirLocked(dirID)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	if n := reassignIDs(children, m.takenIDsLocked(d)); n > 0 {
		m.logger.Warn(logging.Documents, logging.Import, "reassigned clashing item ids", map[logging.ExtraKey]any{
			logging.FileID: dirID,
			logging.Count:  n,
		})
	}
	d.Children = children
	m.pruneTabsLocked()
	raws, err := encodeItems(children)
	m.mu.Unlock()
	if err != nil {
		span.RecordError(err)
		return err
	}

	m.logger.Info(logging.Documents, logging.Import, "directory imported", map[logging.ExtraKey]any{
		logging.FileID: dirID,
		logging.Count:  len(children),
	})
	m.publish(Change{Kind: ChangeTree, ID: dirID})
	if err := m.bus.Emit(ws.DirectoryUpdated, ws.DirectoryUpdatedPayload{DirID: dirID, Children: raws}); err != nil {
		m.emitFailed(ws.DirectoryUpdated, err)
	}
	return nil
}

func cloneItems(items []domain.FileSystemItem) []domain.FileSystemItem {
	out := make([]domain.FileSystemItem, 0, len(items))
	for _, it := range items {
		out = append(out, domain.Clone(it))
	}
	return out
}

// capContent replaces oversized file content with the size placeholder.
func (m *Manager) capContent(item domain.FileSystemItem) {
	domain.Walk(item, func(it domain.FileSystemItem, _ *domain.Directory) bool {
		switch f := it.(type) {
		case *domain.File:
			if int64(len(f.Content)) > m.maxSize {
				f.Content = importer.TooLarge(f.Name, int64(len(f.Content)))
			}
		case *domain.Directory:
		default:
			panic(fmt.Sprintf("documents: unexpected file system item %T", it))
		}
		return true
	})
}
