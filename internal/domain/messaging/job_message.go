// Package messaging defines the message schemas exchanged over the job queue,
// including the migration job message and its dead-letter wrapper.
package messaging

import (
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MigrationJobMessage is the payload published to the migration subject. One
// message references one compressed bundle in object storage.
type MigrationJobMessage struct {
	MessageID       string    `json:"message_id"`
	Timestamp       time.Time `json:"timestamp"`
	ObjectID        string    `json:"object_id"`
	TenantID        string    `json:"tenant_id,omitempty"`
	S3Bucket        string    `json:"s3_bucket"`
	S3Key           string    `json:"s3_key"`
	FileType        string    `json:"file_type,omitempty"`
	TotalSize       int64     `json:"total_size,omitempty"`
	ArchivePassword string    `json:"archive_password,omitempty"`
	UploadedBy      string    `json:"uploaded_by,omitempty"`
	RetryAttempt    int       `json:"retry_attempt"`
	MaxRetries      int       `json:"max_retries"`
}

// Validate checks the message for required fields and basic consistency.
func (m *MigrationJobMessage) Validate() error {
	if m.MessageID == "" {
		return errors.New("message ID is required")
	}
	if m.ObjectID == "" {
		return errors.New("object ID is required")
	}
	if m.S3Bucket == "" {
		return errors.New("source bucket is required")
	}
	if m.S3Key == "" {
		return errors.New("source key is required")
	}
	if m.RetryAttempt < 0 {
		return errors.New("retry attempt cannot be negative")
	}
	if m.MaxRetries < 0 {
		return errors.New("max retries cannot be negative")
	}
	return nil
}

// FileName returns the bundle's base file name derived from the source key.
func (m *MigrationJobMessage) FileName() string {
	return path.Base(m.S3Key)
}

// Tenant returns the explicit tenant ID when present, otherwise the first
// path segment of the source key. Bundles are laid out as
// "<tenant>/<bundle>.zip" by the upload service.
func (m *MigrationJobMessage) Tenant() string {
	if m.TenantID != "" {
		return m.TenantID
	}
	key := strings.TrimPrefix(m.S3Key, "/")
	if idx := strings.IndexByte(key, '/'); idx > 0 {
		return key[:idx]
	}
	return ""
}

// Password returns the archive password. When the message carries no explicit
// password the token after the last underscore of the bundle's base name is
// used, matching how the upload service names protected bundles.
func (m *MigrationJobMessage) Password() string {
	if m.ArchivePassword != "" {
		return m.ArchivePassword
	}
	return PasswordFromBundleName(m.FileName())
}

// PasswordFromBundleName derives an archive password from a bundle file name
// of the form "<prefix>_<password>.zip". It returns an empty string when the
// name carries no underscore-delimited token.
func PasswordFromBundleName(name string) string {
	base := strings.TrimSuffix(name, path.Ext(name))
	idx := strings.LastIndexByte(base, '_')
	if idx < 0 || idx == len(base)-1 {
		return ""
	}
	return base[idx+1:]
}

// GenerateMessageID returns a unique message ID for publishing.
func GenerateMessageID() string {
	return fmt.Sprintf("msg-%s", uuid.New().String())
}

// NewMigrationJobMessage builds a publishable message with generated identity
// and timestamp.
func NewMigrationJobMessage(objectID, tenantID, bucket, key string) MigrationJobMessage {
	return MigrationJobMessage{
		MessageID: GenerateMessageID(),
		Timestamp: time.Now(),
		ObjectID:  objectID,
		TenantID:  tenantID,
		S3Bucket:  bucket,
		S3Key:     key,
	}
}
