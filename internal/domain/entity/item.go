package entity

import "github.com/19karthik/document-migration/internal/domain/valueobject"

// Item is one document extracted from a bundle. Items are ephemeral: they
// live on scratch storage for the duration of a job and are owned by
// whichever batch currently holds them.
type Item struct {
	// Name is the item's path inside the bundle, unique within a job.
	Name string
	// Path is the absolute scratch-file location of the extracted document.
	Path string
	// Size is the uncompressed size in bytes.
	Size int64
	// Status tracks the item's upload state.
	Status valueobject.ItemStatus
	// LastError holds the most recent rejection reason, if any.
	LastError string
}
