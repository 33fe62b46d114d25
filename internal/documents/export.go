package documents

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/hilthontt/codenexus/internal/domain"
	"github.com/hilthontt/codenexus/internal/infrastructure/logging"
)

// DownloadFilesAndFolders writes the tree as a zip archive to w. The root
// directory itself is not part of the archive paths.
func (m *Manager) DownloadFilesAndFolders(ctx context.Context, w io.Writer) error {
	_, span := m.tracer.Start(ctx, "documents.Download")
	defer span.End()

	tree := m.Tree()
	zw := zip.NewWriter(w)
	now := time.Now()

	count := 0
	var write func(prefix string, items []domain.FileSystemItem) error
	write = func(prefix string, items []domain.FileSystemItem) error {
		for _, item := range items {
			if err := ctx.Err(); err != nil {
				return err
			}
			name := path.Join(prefix, item.ItemName())

			switch it := item.(type) {
			case *domain.File:
				fw, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: now})
				if err != nil {
					return fmt.Errorf("zip %s: %w", name, err)
				}
				if _, err := io.WriteString(fw, it.Content); err != nil {
					return fmt.Errorf("zip %s: %w", name, err)
				}
				count++
			case *domain.Directory:
				if _, err := zw.CreateHeader(&zip.FileHeader{Name: name + "/", Modified: now}); err != nil {
					return fmt.Errorf("zip %s: %w", name, err)
				}
				if err := write(name, it.Children); err != nil {
					return err
				}
			default:
				panic(fmt.Sprintf("documents: unexpected file system item %T", item))
			}
		}
		return nil
	}

	if err := write("", tree.Children); err != nil {
		span.RecordError(err)
		_ = zw.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		span.RecordError(err)
		return err
	}

	m.logger.Info(logging.Documents, logging.Export, "archive written", map[logging.ExtraKey]any{
		logging.Count: count,
	})
	return nil
}
