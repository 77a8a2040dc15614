// Package picture holds the image metadata model and its persistence.
package picture

import (
	"errors"
	"time"
)

// Status is the lifecycle state of a picture record.
type Status string

const (
	// StatusPending means the original was seen but no thumbnail exists yet.
	StatusPending Status = "pending"
	// StatusProcessed means the thumbnail exists and the record is terminal.
	StatusProcessed Status = "processed"
	// StatusFailed means processing ended permanently without a thumbnail.
	StatusFailed Status = "failed"
)

// Record is one row of the pictures table: a single uploaded original,
// keyed by its object key in the raw bucket.
type Record struct {
	FileKey       string     `json:"fileKey"`
	OwnerID       string     `json:"ownerId"`
	OriginalName  string     `json:"originalFileName"`
	ContentType   string     `json:"contentType,omitempty"`
	ThumbnailKey  string     `json:"thumbnailKey"`
	Status        Status     `json:"status"`
	Attempts      int        `json:"-"`
	FailureReason *string    `json:"-"`
	UploadedAt    *time.Time `json:"uploadedAt,omitempty"`
	CreatedAt     time.Time  `json:"-"`
	UpdatedAt     time.Time  `json:"-"`
}

// Terminal reports whether the record can no longer change state.
func (r *Record) Terminal() bool {
	return r.Status == StatusProcessed || r.Status == StatusFailed
}

// ErrNotFound is returned when no record exists for a file key.
var ErrNotFound = errors.New("picture not found")

// ErrTerminal is returned when an attempt is claimed for a record that has
// already reached a terminal state.
var ErrTerminal = errors.New("picture already in terminal state")
