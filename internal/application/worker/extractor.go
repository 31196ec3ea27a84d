package worker

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/yeka/zip"

	"github.com/19karthik/document-migration/internal/application/common/slogger"
	"github.com/19karthik/document-migration/internal/domain/entity"
	"github.com/19karthik/document-migration/internal/domain/valueobject"
)

// ArchiveExtractor unpacks downloaded bundles onto scratch storage and
// enumerates their contents as items.
type ArchiveExtractor struct{}

// NewArchiveExtractor creates an ArchiveExtractor.
func NewArchiveExtractor() *ArchiveExtractor {
	return &ArchiveExtractor{}
}

// Extract unpacks the bundle at bundlePath into destDir and returns one item
// per regular file, ordered by name. Password is applied to encrypted entries
// and ignored by unencrypted ones. The bundle file is removed after a
// successful extraction; destDir is left for the caller to clean up.
func (e *ArchiveExtractor) Extract(ctx context.Context, bundlePath, destDir, password string) ([]entity.Item, error) {
	reader, err := zip.OpenReader(bundlePath)
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", filepath.Base(bundlePath), err)
	}
	defer reader.Close()

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, fmt.Errorf("create extraction dir: %w", err)
	}

	items := make([]entity.Item, 0, len(reader.File))
	for _, f := range reader.File {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if f.FileInfo().IsDir() {
			continue
		}
		item, err := e.extractFile(f, destDir, password)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })

	if err := os.Remove(bundlePath); err != nil {
		slogger.WarnNoCtx("failed to remove bundle after extraction",
			slogger.Fields2("bundle", bundlePath, "error", err.Error()))
	}

	return items, nil
}

func (e *ArchiveExtractor) extractFile(f *zip.File, destDir, password string) (entity.Item, error) {
	name := filepath.ToSlash(f.Name)
	destPath, err := securePath(destDir, name)
	if err != nil {
		return entity.Item{}, err
	}

	if f.IsEncrypted() {
		if password == "" {
			return entity.Item{}, fmt.Errorf("archive entry %s is encrypted and no password is available", name)
		}
		f.SetPassword(password)
	}

	rc, err := f.Open()
	if err != nil {
		return entity.Item{}, fmt.Errorf("open archive entry %s: %w", name, err)
	}
	defer rc.Close()

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return entity.Item{}, fmt.Errorf("create entry dir for %s: %w", name, err)
	}

	out, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return entity.Item{}, fmt.Errorf("create extracted file %s: %w", name, err)
	}
	defer out.Close()

	// A wrong password surfaces here as a flate or checksum error.
	written, err := io.Copy(out, rc)
	if err != nil {
		return entity.Item{}, fmt.Errorf("extract archive entry %s (check archive password): %w", name, err)
	}

	return entity.Item{
		Name:   name,
		Path:   destPath,
		Size:   written,
		Status: valueobject.ItemStatusPending,
	}, nil
}

// securePath resolves an archive entry name under destDir and rejects names
// that would escape it.
func securePath(destDir, name string) (string, error) {
	if strings.Contains(name, "..") {
		cleaned := filepath.Clean(filepath.Join(destDir, filepath.FromSlash(name)))
		if !strings.HasPrefix(cleaned, filepath.Clean(destDir)+string(os.PathSeparator)) {
			return "", fmt.Errorf("archive entry %s escapes extraction directory", name)
		}
		return cleaned, nil
	}
	if filepath.IsAbs(name) {
		return "", fmt.Errorf("archive entry %s has an absolute path", name)
	}
	return filepath.Join(destDir, filepath.FromSlash(name)), nil
}
