package valueobject

import "fmt"

// ItemStatus represents the upload state of a single document inside a bundle.
type ItemStatus string

const (
	ItemStatusPending  ItemStatus = "pending"
	ItemStatusUploaded ItemStatus = "uploaded"
	ItemStatusFailed   ItemStatus = "failed"
)

// NewItemStatus creates a new ItemStatus with validation.
func NewItemStatus(status string) (ItemStatus, error) {
	switch s := ItemStatus(status); s {
	case ItemStatusPending, ItemStatusUploaded, ItemStatusFailed:
		return s, nil
	default:
		return "", fmt.Errorf("invalid item status: %s", status)
	}
}

// String returns the string representation of the status.
func (s ItemStatus) String() string {
	return string(s)
}

// IsTerminal returns true once the item has either uploaded or failed for good.
func (s ItemStatus) IsTerminal() bool {
	return s == ItemStatusUploaded || s == ItemStatusFailed
}
