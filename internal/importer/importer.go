// Package importer turns a picked directory, or a list of (path, content)
// pairs, into file system items ready for the document model.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/hilthontt/codenexus/internal/domain"
	"github.com/hilthontt/codenexus/internal/infrastructure/configs"
	"github.com/hilthontt/codenexus/internal/infrastructure/logging"
	"github.com/maruel/natural"
	"golang.org/x/sync/errgroup"
)

const DefaultMaxFileSize = 1024 * 1024

var DefaultExclude = []string{"node_modules", ".git", ".vscode", ".next"}

var (
	ErrNoEntries    = errors.New("importer: nothing to import")
	ErrDirImportOff = errors.New("importer: directory import is disabled")
	ErrOutsideRoot  = errors.New("importer: directory is outside the import root")
)

// Entry is one picked file. Err marks a file the picker could not read.
type Entry struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	Size    int64  `json:"size,omitempty"`
	Err     error  `json:"-"`
}

type Options struct {
	MaxFileSize int64
	Exclude     []string
	Workers     int
	Root        string
}

func OptionsFromConfig(cfg configs.ImportConfig) Options {
	return Options{
		MaxFileSize: cfg.MaxFileSize,
		Exclude:     cfg.Exclude,
		Workers:     cfg.Workers,
		Root:        cfg.Root,
	}
}

type Importer struct {
	maxSize int64
	exclude mapset.Set[string]
	workers int
	root    string
	logger  logging.Logger
}

func New(opts Options, logger logging.Logger) *Importer {
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}
	if opts.Exclude == nil {
		opts.Exclude = DefaultExclude
	}
	if opts.Workers <= 0 {
		opts.Workers = 8
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	root := opts.Root
	if root != "" {
		if abs, err := filepath.Abs(root); err == nil {
			root = abs
		}
	}

	return &Importer{
		maxSize: opts.MaxFileSize,
		exclude: mapset.NewSet(opts.Exclude...),
		workers: opts.Workers,
		root:    root,
		logger:  logger,
	}
}

// Excluded reports whether any segment of p is on the exclusion list.
func (im *Importer) Excluded(p string) bool {
	for _, part := range strings.Split(p, "/") {
		if im.exclude.Contains(part) {
			return true
		}
	}
	return false
}

// Content returns what gets stored for a file of the given size: the real
// content when it fits, a placeholder otherwise.
func (im *Importer) Content(name string, size int64, read func() ([]byte, error)) string {
	if size > im.maxSize {
		return TooLarge(name, size)
	}
	data, err := read()
	if err != nil {
		return ReadError(name)
	}
	if int64(len(data)) > im.maxSize {
		return TooLarge(name, int64(len(data)))
	}
	return string(data)
}

func TooLarge(name string, size int64) string {
	return fmt.Sprintf("File too large: %s (%dKB)", name, int64(math.Round(float64(size)/1024)))
}

func ReadError(name string) string {
	return "Error reading file: " + name
}

// FromEntries builds a tree from a file list. Intermediate directories are
// created from the path segments.
func (im *Importer) FromEntries(ctx context.Context, entries []Entry) ([]domain.FileSystemItem, error) {
	if len(entries) == 0 {
		return nil, ErrNoEntries
	}

	b := newBuilder()
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		p, ok := cleanPath(e.Path)
		if !ok || im.Excluded(p) {
			continue
		}

		name := path.Base(p)
		size := e.Size
		if size == 0 {
			size = int64(len(e.Content))
		}
		content := im.Content(name, size, func() ([]byte, error) {
			if e.Err != nil {
				return nil, e.Err
			}
			return []byte(e.Content), nil
		})
		if err := b.addFile(p, content); err != nil {
			return nil, err
		}
	}

	items := b.items()
	im.logger.Info(logging.Documents, logging.Import, "imported file list", map[logging.ExtraKey]any{
		logging.Count: len(entries),
	})
	return items, nil
}

// FromDir imports dir from the configured import root. dir is relative to
// the root, or absolute and inside it. Symlinks cannot leave the root.
func (im *Importer) FromDir(ctx context.Context, dir string) ([]domain.FileSystemItem, error) {
	if im.root == "" {
		return nil, ErrDirImportOff
	}
	rel, err := im.relToRoot(dir)
	if err != nil {
		return nil, err
	}

	root, err := os.OpenRoot(im.root)
	if err != nil {
		return nil, fmt.Errorf("importer: open root: %w", err)
	}
	defer root.Close()

	fsys := root.FS()
	if rel != "." {
		if fsys, err = fs.Sub(fsys, rel); err != nil {
			return nil, fmt.Errorf("importer: %s: %w", rel, err)
		}
	}
	return im.FromFS(ctx, fsys)
}

func (im *Importer) relToRoot(dir string) (string, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return ".", nil
	}
	if filepath.IsAbs(dir) {
		r, err := filepath.Rel(im.root, filepath.Clean(dir))
		if err != nil {
			return "", ErrOutsideRoot
		}
		dir = r
	}
	rel := path.Clean(filepath.ToSlash(dir))
	if !fs.ValidPath(rel) {
		return "", ErrOutsideRoot
	}
	return rel, nil
}

// FromFS walks fsys from its root. Excluded directories are skipped and
// files are read concurrently by a bounded worker pool.
func (im *Importer) FromFS(ctx context.Context, fsys fs.FS) ([]domain.FileSystemItem, error) {
	b := newBuilder()
	var files []string

	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == "." {
				return err
			}
			im.logger.Warn(logging.Documents, logging.Import, "skipping unreadable entry", map[logging.ExtraKey]any{
				logging.Path:         p,
				logging.ErrorMessage: err.Error(),
			})
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if p == "." {
			return nil
		}
		if im.exclude.Contains(d.Name()) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		switch {
		case d.IsDir():
			if _, err := b.dir(p); err != nil {
				return err
			}
		case d.Type().IsRegular():
			files = append(files, p)
		}
		return ctx.Err()
	})
	if err != nil {
		return nil, err
	}

	contents := make([]string, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(im.workers)
	for i, p := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			contents[i] = im.readFile(fsys, p)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, p := range files {
		if err := b.addFile(p, contents[i]); err != nil {
			return nil, err
		}
	}

	im.logger.Info(logging.Documents, logging.Import, "imported directory", map[logging.ExtraKey]any{
		logging.Count: len(files),
	})
	return b.items(), nil
}

func (im *Importer) readFile(fsys fs.FS, p string) string {
	name := path.Base(p)
	info, err := fs.Stat(fsys, p)
	if err != nil {
		return ReadError(name)
	}
	return im.Content(name, info.Size(), func() ([]byte, error) {
		return fs.ReadFile(fsys, p)
	})
}

func cleanPath(p string) (string, bool) {
	p = strings.ReplaceAll(strings.TrimSpace(p), `\`, "/")
	p = strings.TrimPrefix(path.Clean("/"+p), "/")
	if p == "" || p == "." {
		return "", false
	}
	return p, true
}

// builder assembles nested directories keyed by slash path.
type builder struct {
	mu   sync.Mutex
	root *domain.Directory
	dirs map[string]*domain.Directory
}

func newBuilder() *builder {
	root := &domain.Directory{Children: []domain.FileSystemItem{}}
	return &builder{root: root, dirs: map[string]*domain.Directory{"": root}}
}

func (b *builder) dir(p string) (*domain.Directory, error) {
	if d, ok := b.dirs[p]; ok {
		return d, nil
	}
	parent, err := b.dir(parentOf(p))
	if err != nil {
		return nil, err
	}
	d, err := domain.NewDirectory(path.Base(p))
	if err != nil {
		return nil, err
	}
	parent.Children = append(parent.Children, d)
	b.dirs[p] = d
	return d, nil
}

func (b *builder) addFile(p, content string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	parent, err := b.dir(parentOf(p))
	if err != nil {
		return err
	}
	f, err := domain.NewFile(path.Base(p), content)
	if err != nil {
		return err
	}
	parent.Children = append(parent.Children, f)
	return nil
}

func parentOf(p string) string {
	dir := path.Dir(p)
	if dir == "." {
		return ""
	}
	return dir
}

func (b *builder) items() []domain.FileSystemItem {
	sortTree(b.root)
	return b.root.Children
}

// sortTree orders directories before files, each in natural name order.
func sortTree(d *domain.Directory) {
	slices.SortStableFunc(d.Children, func(a, b domain.FileSystemItem) int {
		_, aDir := a.(*domain.Directory)
		_, bDir := b.(*domain.Directory)
		switch {
		case aDir && !bDir:
			return -1
		case !aDir && bDir:
			return 1
		}
		an, bn := a.ItemName(), b.ItemName()
		switch {
		case an == bn:
			return 0
		case natural.Less(an, bn):
			return -1
		default:
			return 1
		}
	})

	for _, child := range d.Children {
		switch c := child.(type) {
		case *domain.Directory:
			sortTree(c)
		case *domain.File:
		default:
			panic(fmt.Sprintf("importer: unexpected file system item %T", child))
		}
	}
}
