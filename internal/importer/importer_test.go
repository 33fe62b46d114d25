package importer

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/hilthontt/codenexus/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func names(items []domain.FileSystemItem) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.ItemName())
	}
	return out
}

func TestFromEntries_ExcludesAndNests(t *testing.T) {
	im := New(Options{}, nil)

	items, err := im.FromEntries(context.Background(), []Entry{
		{Path: "src/a.txt", Content: "A"},
		{Path: "src/b.txt", Content: "B"},
		{Path: "node_modules/pkg/index.js", Content: "x"},
		{Path: "src/.git/HEAD", Content: "ref"},
	})
	require.NoError(t, err)

	require.Len(t, items, 1)
	src, ok := items[0].(*domain.Directory)
	require.True(t, ok)
	assert.Equal(t, "src", src.Name)
	assert.Equal(t, []string{"a.txt", "b.txt"}, names(src.Children))
	assert.Equal(t, "A", src.Children[0].(*domain.File).Content)
}

func TestFromEntries_DeepPaths(t *testing.T) {
	im := New(Options{}, nil)

	items, err := im.FromEntries(context.Background(), []Entry{
		{Path: "/src/lib/util.go", Content: "package lib"},
		{Path: "./README.md", Content: "# hi"},
		{Path: "src/main.go", Content: "package main"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"src", "README.md"}, names(items))
	src := items[0].(*domain.Directory)
	assert.Equal(t, []string{"lib", "main.go"}, names(src.Children))
	assert.Equal(t, []string{"util.go"}, names(src.Children[0].(*domain.Directory).Children))
}

func TestContent_SizeCapBoundary(t *testing.T) {
	im := New(Options{}, nil)

	exact := strings.Repeat("a", DefaultMaxFileSize)
	over := exact + "a"

	items, err := im.FromEntries(context.Background(), []Entry{
		{Path: "exact.txt", Content: exact},
		{Path: "over.txt", Content: over},
	})
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, exact, items[0].(*domain.File).Content)
	assert.Equal(t, "File too large: over.txt (1024KB)", items[1].(*domain.File).Content)
}

func TestContent_ReadError(t *testing.T) {
	im := New(Options{}, nil)

	items, err := im.FromEntries(context.Background(), []Entry{
		{Path: "broken.bin", Err: errors.New("permission denied")},
	})
	require.NoError(t, err)
	assert.Equal(t, "Error reading file: broken.bin", items[0].(*domain.File).Content)
}

func TestFromFS(t *testing.T) {
	fsys := fstest.MapFS{
		"src/file10.go":           {Data: []byte("ten")},
		"src/file2.go":            {Data: []byte("two")},
		"src/empty":               {Mode: fs.ModeDir | 0o755},
		"node_modules/x/index.js": {Data: []byte("x")},
		".vscode/settings.json":   {Data: []byte("{}")},
		"big.dat":                 {Data: make([]byte, DefaultMaxFileSize+2048)},
		"go.mod":                  {Data: []byte("module x")},
	}

	im := New(Options{Workers: 2}, nil)
	items, err := im.FromFS(context.Background(), fsys)
	require.NoError(t, err)

	assert.Equal(t, []string{"src", "big.dat", "go.mod"}, names(items))
	src := items[0].(*domain.Directory)
	assert.Equal(t, []string{"empty", "file2.go", "file10.go"}, names(src.Children))
	assert.Equal(t, "File too large: big.dat (1026KB)", items[1].(*domain.File).Content)
}

func TestFromFS_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(Options{}, nil).FromFS(ctx, fstest.MapFS{"a.txt": {Data: []byte("a")}})
	require.ErrorIs(t, err, context.Canceled)
}

func TestFromDir_ConfinedToRoot(t *testing.T) {
	base := t.TempDir()
	root := filepath.Join(base, "root")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "project"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "project", "a.txt"), []byte("A"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(base, "secret"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(base, "secret", "key.txt"), []byte("k"), 0o644))

	tests := []struct {
		name    string
		root    string
		dir     string
		want    []string
		wantErr error
	}{
		{"disabled without root", "", "project", nil, ErrDirImportOff},
		{"relative", root, "project", []string{"a.txt"}, nil},
		{"absolute inside", root, filepath.Join(root, "project"), []string{"a.txt"}, nil},
		{"root itself", root, "", []string{"project"}, nil},
		{"parent escape", root, "../secret", nil, ErrOutsideRoot},
		{"absolute outside", root, filepath.Join(base, "secret"), nil, ErrOutsideRoot},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			im := New(Options{Root: tt.root}, nil)
			items, err := im.FromDir(context.Background(), tt.dir)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, items)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, names(items))
		})
	}
}

func TestFromEntries_Empty(t *testing.T) {
	im := New(Options{}, nil)

	_, err := im.FromEntries(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoEntries)
}
