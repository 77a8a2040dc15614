// Package storage defines the object store boundary for originals and
// thumbnails. The MinIO implementation works with any S3-compatible provider;
// swap providers by changing endpoint and credentials, not code.
package storage

import (
	"context"
	"io"
	"time"
)

// ObjectInfo describes a stored object for streaming responses.
type ObjectInfo struct {
	ContentType string
	Size        int64
}

// ObjectStore is the full object-storage surface used across the service.
// The raw bucket holds uploaded originals; the thumbnail bucket holds
// derived images. Writes to the thumbnail bucket are plain overwrites, so
// repeating one with identical bytes is harmless.
type ObjectStore interface {
	// PresignedPut returns a write-only URL scoped to exactly one key in the
	// raw bucket, valid for the given duration. It grants no read or list
	// capability.
	PresignedPut(ctx context.Context, fileKey string, expiry time.Duration) (string, error)

	// GetRaw opens the original object for a key. The caller must close the
	// reader.
	GetRaw(ctx context.Context, fileKey string) (io.ReadCloser, error)

	// PutThumbnail writes derived image bytes under the given key in the
	// thumbnail bucket.
	PutThumbnail(ctx context.Context, fileKey string, data []byte, contentType string) error

	// OpenThumbnail opens a thumbnail object for streaming. The caller must
	// close the reader.
	OpenThumbnail(ctx context.Context, fileKey string) (io.ReadCloser, ObjectInfo, error)

	// ThumbnailURL returns the browser-accessible URL for a thumbnail key.
	ThumbnailURL(fileKey string) string
}
