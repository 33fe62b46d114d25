package documents

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hilthontt/codenexus/internal/domain"
	"github.com/hilthontt/codenexus/internal/infrastructure/ws"
	"github.com/hilthontt/codenexus/internal/infrastructure/ws/wstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type langRecorder struct {
	mu    sync.Mutex
	langs []string
}

func (r *langRecorder) SetLanguage(_ context.Context, lang string) error {
	r.mu.Lock()
	r.langs = append(r.langs, lang)
	r.mu.Unlock()
	return nil
}

func newManager(t *testing.T, pause time.Duration) (*Manager, *wstest.Bus, *langRecorder) {
	t.Helper()
	bus := wstest.NewBus("sock-self")
	lang := &langRecorder{}
	m := NewManager(Options{Bus: bus, Language: lang, TypingPause: pause})
	m.Attach(context.Background())
	t.Cleanup(m.Close)
	return m, bus, lang
}

func TestOpenFile_Idempotent(t *testing.T) {
	m, _, lang := newManager(t, time.Hour)
	ctx := context.Background()

	f, err := m.CreateFile("", "main.go")
	require.NoError(t, err)

	require.NoError(t, m.OpenFile(ctx, f.ID))
	require.NoError(t, m.OpenFile(ctx, f.ID))

	assert.Equal(t, []string{f.ID}, m.OpenFiles())
	active, ok := m.ActiveFile()
	require.True(t, ok)
	assert.Equal(t, f.ID, active.ID)
	assert.Equal(t, []string{"go", "go"}, lang.langs)
}

func TestCloseFile_Fallback(t *testing.T) {
	m, _, _ := newManager(t, time.Hour)
	ctx := context.Background()

	a, _ := m.CreateFile("", "a.txt")
	b, _ := m.CreateFile("", "b.txt")
	c, _ := m.CreateFile("", "c.txt")
	for _, f := range []*domain.File{a, b, c} {
		require.NoError(t, m.OpenFile(ctx, f.ID))
	}
	require.NoError(t, m.OpenFile(ctx, a.ID))

	require.NoError(t, m.CloseFile(a.ID))
	active, ok := m.ActiveFile()
	require.True(t, ok)
	assert.Equal(t, c.ID, active.ID)

	require.NoError(t, m.CloseFile(b.ID))
	active, _ = m.ActiveFile()
	assert.Equal(t, c.ID, active.ID)

	require.NoError(t, m.CloseFile(c.ID))
	_, ok = m.ActiveFile()
	assert.False(t, ok)
	assert.Empty(t, m.OpenFiles())

	// closing keeps the file in the tree
	_, err := m.File(c.ID)
	require.NoError(t, err)
	require.ErrorIs(t, m.CloseFile(c.ID), ErrNotFound)
}

func TestCloseFile_FallsBackToMostRecent(t *testing.T) {
	tests := []struct {
		name  string
		open  []string
		close func(m *Manager, ids map[string]string) error
		want  string
	}{
		{
			name: "reopened tab is most recent",
			open: []string{"a", "b", "c", "a", "c"},
			close: func(m *Manager, ids map[string]string) error {
				return m.CloseFile(ids["c"])
			},
			want: "a",
		},
		{
			name: "strip order ignored",
			open: []string{"a", "b", "c", "b", "a"},
			close: func(m *Manager, ids map[string]string) error {
				return m.CloseFile(ids["a"])
			},
			want: "b",
		},
		{
			name: "deleting the active file",
			open: []string{"a", "b", "c", "a", "b"},
			close: func(m *Manager, ids map[string]string) error {
				return m.DeleteItem(ids["b"])
			},
			want: "a",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _, _ := newManager(t, time.Hour)
			ctx := context.Background()

			ids := map[string]string{}
			for _, name := range []string{"a", "b", "c"} {
				f, err := m.CreateFile("", name+".txt")
				require.NoError(t, err)
				ids[name] = f.ID
			}
			for _, name := range tt.open {
				require.NoError(t, m.OpenFile(ctx, ids[name]))
			}

			require.NoError(t, tt.close(m, ids))
			active, ok := m.ActiveFile()
			require.True(t, ok)
			assert.Equal(t, tt.want+".txt", active.Name)
		})
	}
}

func TestCreateFile_RemoteContentRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		open bool
	}{
		{"closed file", false},
		{"open file", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, bus, _ := newManager(t, time.Hour)
			dir, err := m.CreateDirectory("", "src")
			require.NoError(t, err)
			f, err := m.CreateFile(dir.ID, "a.txt")
			require.NoError(t, err)
			if tt.open {
				require.NoError(t, m.OpenFile(context.Background(), f.ID))
			}

			var changes []Change
			m.Subscribe(func(c Change) { changes = append(changes, c) })

			bus.Deliver(ws.FileContentUpdated, ws.FileContentPayload{FileID: f.ID, NewContent: "X"})

			got, err := m.File(f.ID)
			require.NoError(t, err)
			assert.Equal(t, "X", got.Content)
			require.Len(t, changes, 1)
			assert.True(t, changes[0].Remote)
		})
	}
}

func TestCreateFile_Validation(t *testing.T) {
	m, bus, _ := newManager(t, time.Hour)

	_, err := m.CreateFile("", "   ")
	require.ErrorIs(t, err, domain.ErrInvalidName)

	f, err := m.CreateFile("", "a.txt")
	require.NoError(t, err)
	_, err = m.CreateFile("", "a.txt")
	require.ErrorIs(t, err, ErrNameTaken)
	_, err = m.CreateFile(f.ID, "b.txt")
	require.ErrorIs(t, err, ErrNotADirectory)
	_, err = m.CreateFile("missing", "b.txt")
	require.ErrorIs(t, err, ErrNotFound)

	created := bus.Emitted(ws.FileCreated)
	require.Len(t, created, 1)
	var p ws.ItemCreatedPayload
	require.NoError(t, json.Unmarshal(created[0].Data, &p))
	item, err := domain.DecodeItem(p.Item)
	require.NoError(t, err)
	assert.Equal(t, f.ID, item.ItemID())
}

func TestSetActiveFileContent_TypingDebounce(t *testing.T) {
	m, bus, _ := newManager(t, 30*time.Millisecond)
	ctx := context.Background()

	require.ErrorIs(t, m.SetActiveFileContent("x", 1), ErrNoActiveFile)

	f, _ := m.CreateFile("", "a.js")
	require.NoError(t, m.OpenFile(ctx, f.ID))

	for i, s := range []string{"c", "co", "con"} {
		require.NoError(t, m.SetActiveFileContent(s, i+1))
	}

	assert.Len(t, bus.Emitted(ws.FileContentUpdated), 3)
	assert.Len(t, bus.Emitted(ws.TypingStart), 3)
	assert.Empty(t, bus.Emitted(ws.TypingPause))

	assert.Eventually(t, func() bool {
		return len(bus.Emitted(ws.TypingPause)) == 1
	}, time.Second, 5*time.Millisecond)

	last := bus.Emitted(ws.FileContentUpdated)[2]
	assert.JSONEq(t, `{"fileId":"`+f.ID+`","newContent":"con"}`, string(last.Data))

	got, _ := m.File(f.ID)
	assert.Equal(t, "con", got.Content)
}

func TestClose_CancelsPendingPause(t *testing.T) {
	bus := wstest.NewBus("sock-self")
	m := NewManager(Options{Bus: bus, TypingPause: 20 * time.Millisecond})
	f, _ := m.CreateFile("", "a.txt")
	require.NoError(t, m.OpenFile(context.Background(), f.ID))
	require.NoError(t, m.SetActiveFileContent("a", 1))

	m.Close()
	time.Sleep(60 * time.Millisecond)

	assert.Empty(t, bus.Emitted(ws.TypingPause))
	require.ErrorIs(t, m.SetActiveFileContent("b", 2), ErrClosed)
}

func TestDeleteDirectory_PrunesTabs(t *testing.T) {
	m, bus, _ := newManager(t, time.Hour)
	ctx := context.Background()

	dir, _ := m.CreateDirectory("", "src")
	a, _ := m.CreateFile(dir.ID, "a.txt")
	b, _ := m.CreateFile("", "b.txt")
	require.NoError(t, m.OpenFile(ctx, b.ID))
	require.NoError(t, m.OpenFile(ctx, a.ID))

	require.NoError(t, m.DeleteItem(dir.ID))

	assert.Equal(t, []string{b.ID}, m.OpenFiles())
	active, _ := m.ActiveFile()
	assert.Equal(t, b.ID, active.ID)
	assert.Len(t, bus.Emitted(ws.DirectoryDeleted), 1)
	require.ErrorIs(t, m.DeleteItem(m.Tree().ID), ErrRootItem)
}

func TestRenameItem(t *testing.T) {
	m, bus, _ := newManager(t, time.Hour)
	a, _ := m.CreateFile("", "a.txt")
	_, _ = m.CreateFile("", "b.txt")

	require.ErrorIs(t, m.RenameItem(a.ID, "b.txt"), ErrNameTaken)
	require.ErrorIs(t, m.RenameItem(a.ID, ""), domain.ErrInvalidName)
	require.NoError(t, m.RenameItem(a.ID, "c.txt"))

	got, _ := m.File(a.ID)
	assert.Equal(t, "c.txt", got.Name)
	assert.Len(t, bus.Emitted(ws.FileRenamed), 1)
}

func TestImportDirectory(t *testing.T) {
	m, bus, _ := newManager(t, time.Hour)

	old, _ := m.CreateFile("", "old.txt")
	require.NoError(t, m.OpenFile(context.Background(), old.ID))

	big, _ := domain.NewFile("big.bin", strings.Repeat("x", 1024*1024+1))
	small, _ := domain.NewFile("a.txt", "A")
	src, _ := domain.NewDirectory("src", small)

	require.NoError(t, m.ImportDirectory(context.Background(), "", []domain.FileSystemItem{src, big}))

	tree := m.Tree()
	require.Len(t, tree.Children, 2)
	got, err := m.File(big.ID)
	require.NoError(t, err)
	assert.Equal(t, "File too large: big.bin (1024KB)", got.Content)
	assert.Empty(t, m.OpenFiles())
	assert.Len(t, bus.Emitted(ws.DirectoryUpdated), 1)
}

func TestImportDirectory_CopiesAndKeepsIDsUnique(t *testing.T) {
	m, bus, _ := newManager(t, time.Hour)
	ctx := context.Background()

	left, _ := m.CreateDirectory("", "left")
	right, _ := m.CreateDirectory("", "right")

	file, _ := domain.NewFile("a.txt", "A")
	nested, _ := domain.NewDirectory("pkg", file)
	items := []domain.FileSystemItem{nested}

	require.NoError(t, m.ImportDirectory(ctx, left.ID, items))
	file.Content = "changed by caller"
	got, err := m.File(file.ID)
	require.NoError(t, err)
	assert.Equal(t, "A", got.Content)

	// the same items imported elsewhere must not reuse ids held by left
	require.NoError(t, m.ImportDirectory(ctx, right.ID, items))
	seen := map[string]int{}
	domain.Walk(m.Tree(), func(it domain.FileSystemItem, _ *domain.Directory) bool {
		seen[it.ItemID()]++
		return true
	})
	for id, n := range seen {
		assert.Equal(t, 1, n, "id %s", id)
	}
	assert.Len(t, seen, 7)

	// re-importing into the same directory keeps the replaced ids
	require.NoError(t, m.ImportDirectory(ctx, left.ID, items))
	_, err = m.File(file.ID)
	require.NoError(t, err)
	assert.Len(t, bus.Emitted(ws.DirectoryUpdated), 3)
}

func TestRemoteDirectoryUpdated_RejectsDuplicateIDs(t *testing.T) {
	m, bus, _ := newManager(t, time.Hour)
	existing, _ := m.CreateFile("", "keep.txt")
	dir, _ := m.CreateDirectory("", "src")

	clash := &domain.File{ID: existing.ID, Name: "clash.txt"}
	raws, err := encodeItems([]domain.FileSystemItem{clash})
	require.NoError(t, err)
	bus.Deliver(ws.DirectoryUpdated, ws.DirectoryUpdatedPayload{DirID: dir.ID, Children: raws})

	src, _ := domain.Find(m.Tree(), dir.ID)
	require.NotNil(t, src)
	assert.Empty(t, src.(*domain.Directory).Children)
	got, err := m.File(existing.ID)
	require.NoError(t, err)
	assert.Equal(t, "keep.txt", got.Name)

	fresh, _ := domain.NewFile("ok.txt", "ok")
	raws, err = encodeItems([]domain.FileSystemItem{fresh})
	require.NoError(t, err)
	bus.Deliver(ws.DirectoryUpdated, ws.DirectoryUpdatedPayload{DirID: dir.ID, Children: raws})
	_, err = m.File(fresh.ID)
	require.NoError(t, err)
}

func TestRemoteStructuralEvents(t *testing.T) {
	m, bus, _ := newManager(t, time.Hour)
	dir, _ := m.CreateDirectory("", "src")

	f, _ := domain.NewFile("peer.go", "package peer")
	raw, _ := json.Marshal(f)
	bus.Deliver(ws.FileCreated, ws.ItemCreatedPayload{ParentDirID: dir.ID, Item: raw})
	bus.Deliver(ws.FileCreated, ws.ItemCreatedPayload{ParentDirID: dir.ID, Item: raw})

	tree := m.Tree()
	assert.Len(t, tree.Children[0].(*domain.Directory).Children, 1)

	bus.Deliver(ws.FileRenamed, ws.ItemRenamedPayload{ID: f.ID, NewName: "renamed.go"})
	got, _ := m.File(f.ID)
	assert.Equal(t, "renamed.go", got.Name)

	bus.Deliver(ws.FileDeleted, ws.ItemDeletedPayload{ID: f.ID})
	_, err := m.File(f.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSyncFileStructure(t *testing.T) {
	peer, peerBus, _ := newManager(t, time.Hour)
	f, _ := peer.CreateFile("", "shared.txt")
	require.NoError(t, peer.OpenFile(context.Background(), f.ID))

	peerBus.Deliver(ws.UserJoined, ws.UserPayload{User: domain.RemoteUser{SocketID: "sock-new", Username: "new"}})
	sent := peerBus.Emitted(ws.SyncFileStructure)
	require.Len(t, sent, 1)

	joiner, joinerBus, _ := newManager(t, time.Hour)
	var p ws.FileStructurePayload
	require.NoError(t, json.Unmarshal(sent[0].Data, &p))
	assert.Equal(t, "sock-new", p.SocketID)

	// addressed to someone else
	joinerBus.Dispatch(ws.SyncFileStructure, sent[0].Data)
	_, err := joiner.File(f.ID)
	require.ErrorIs(t, err, ErrNotFound)

	p.SocketID = "sock-self"
	joinerBus.Deliver(ws.SyncFileStructure, p)
	got, err := joiner.File(f.ID)
	require.NoError(t, err)
	assert.Equal(t, "shared.txt", got.Name)
	assert.Equal(t, []string{f.ID}, joiner.OpenFiles())
}

func TestDownloadFilesAndFolders(t *testing.T) {
	m, _, _ := newManager(t, time.Hour)
	dir, _ := m.CreateDirectory("", "src")
	a, _ := m.CreateFile(dir.ID, "a.txt")
	require.NoError(t, m.EditFile(a.ID, "hello", 5))
	_, _ = m.CreateFile("", "README.md")

	var buf bytes.Buffer
	require.NoError(t, m.DownloadFilesAndFolders(context.Background(), &buf))

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)

	contents := map[string]string{}
	for _, zf := range zr.File {
		rc, err := zf.Open()
		require.NoError(t, err)
		b, _ := io.ReadAll(rc)
		rc.Close()
		contents[zf.Name] = string(b)
	}
	assert.Equal(t, map[string]string{"src/": "", "src/a.txt": "hello", "README.md": ""}, contents)
}
