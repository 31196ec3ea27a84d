package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/yeka/zip"

	"github.com/19karthik/document-migration/internal/application/common/slogger"
	"github.com/19karthik/document-migration/internal/port/outbound"
)

// ManifestEntry is one line of the error manifest: an item that failed
// terminally and why.
type ManifestEntry struct {
	Item   string `json:"item"`
	Reason string `json:"reason"`
}

// ErrorArtifact describes a published error artifact set.
type ErrorArtifact struct {
	ManifestKey string
	BundleKey   string
	// DownloadURL is a presigned retrieval link for the manifest. Empty
	// when presigning failed.
	DownloadURL string
	Entries     int
}

// ErrorAggregator collects terminal item failures for a single job and
// publishes them as a downloadable artifact. One aggregator is created per
// job; nothing is shared across jobs.
type ErrorAggregator struct {
	store         outbound.ObjectStore
	bucket        string
	presignExpiry time.Duration

	entries []ManifestEntry
	seen    map[string]int // item name to entries index, latest reason wins
	paths   map[string]string
}

// NewErrorAggregator creates an aggregator publishing to the given bucket.
func NewErrorAggregator(store outbound.ObjectStore, bucket string, presignExpiry time.Duration) *ErrorAggregator {
	if presignExpiry <= 0 {
		presignExpiry = time.Hour
	}
	return &ErrorAggregator{
		store:         store,
		bucket:        bucket,
		presignExpiry: presignExpiry,
		seen:          make(map[string]int),
		paths:         make(map[string]string),
	}
}

// Record adds terminal failures from one batch outcome. Recording the same
// item twice keeps the latest reason.
func (a *ErrorAggregator) Record(failed []FailedItem) {
	for _, f := range failed {
		if idx, ok := a.seen[f.Item.Name]; ok {
			a.entries[idx].Reason = f.Reason
			continue
		}
		a.seen[f.Item.Name] = len(a.entries)
		a.entries = append(a.entries, ManifestEntry{Item: f.Item.Name, Reason: f.Reason})
		a.paths[f.Item.Name] = f.Item.Path
	}
}

// Count returns the number of distinct failed items recorded.
func (a *ErrorAggregator) Count() int {
	return len(a.entries)
}

// Entries returns the recorded manifest entries in recording order.
func (a *ErrorAggregator) Entries() []ManifestEntry {
	return a.entries
}

// Publish writes the manifest and a zip of the failed files to object
// storage and returns the artifact description. Publishing nothing returns a
// zero artifact. Errors here are the caller's to log; the job outcome never
// depends on artifact publication.
func (a *ErrorAggregator) Publish(ctx context.Context, tenantID, sourceFileName, scratchDir string) (ErrorArtifact, error) {
	if len(a.entries) == 0 {
		return ErrorArtifact{}, nil
	}

	base := strings.TrimSuffix(sourceFileName, path.Ext(sourceFileName))
	manifestKey := fmt.Sprintf("errors/%s_%s_errorfile.txt", tenantID, base)
	bundleKey := fmt.Sprintf("errors/%s_%s_failed_bundle.zip", tenantID, base)

	manifestPath := filepath.Join(scratchDir, "errorfile.txt")
	if err := a.writeManifest(manifestPath); err != nil {
		return ErrorArtifact{}, fmt.Errorf("write error manifest: %w", err)
	}
	if err := a.store.Upload(ctx, a.bucket, manifestKey, manifestPath, "text/plain"); err != nil {
		return ErrorArtifact{}, fmt.Errorf("upload error manifest: %w", err)
	}

	artifact := ErrorArtifact{ManifestKey: manifestKey, Entries: len(a.entries)}

	bundlePath := filepath.Join(scratchDir, "failed_bundle.zip")
	if err := a.writeBundle(bundlePath); err != nil {
		slogger.Warn(ctx, "failed to build failed-files bundle",
			slogger.Fields2("tenant_id", tenantID, "error", err.Error()))
	} else if err := a.store.Upload(ctx, a.bucket, bundleKey, bundlePath, "application/zip"); err != nil {
		slogger.Warn(ctx, "failed to upload failed-files bundle",
			slogger.Fields2("bundle_key", bundleKey, "error", err.Error()))
	} else {
		artifact.BundleKey = bundleKey
	}

	url, err := a.store.PresignGet(ctx, a.bucket, manifestKey, a.presignExpiry)
	if err != nil {
		slogger.Warn(ctx, "failed to presign error manifest",
			slogger.Fields2("manifest_key", manifestKey, "error", err.Error()))
	} else {
		artifact.DownloadURL = url
	}

	return artifact, nil
}

// writeManifest writes one JSON object per line so the artifact stays
// streamable for very large jobs.
func (a *ErrorAggregator) writeManifest(dest string) error {
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()

	enc := json.NewEncoder(out)
	for _, entry := range a.entries {
		if err := enc.Encode(entry); err != nil {
			return err
		}
	}
	return nil
}

// writeBundle zips the failed files that still exist on scratch storage.
func (a *ErrorAggregator) writeBundle(dest string) error {
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	for _, entry := range a.entries {
		srcPath := a.paths[entry.Item]
		if srcPath == "" {
			continue
		}
		src, err := os.Open(srcPath)
		if err != nil {
			// Extraction may have failed before this item hit disk.
			continue
		}
		w, err := zw.Create(entry.Item)
		if err != nil {
			src.Close()
			zw.Close()
			return err
		}
		if _, err := io.Copy(w, src); err != nil {
			src.Close()
			zw.Close()
			return err
		}
		src.Close()
	}
	return zw.Close()
}
