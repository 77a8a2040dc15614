// Package grant issues single-purpose upload credentials for the raw bucket.
package grant

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/photoshare/service/internal/picture"
)

// ErrNoIdentity is returned when the caller's identity cannot be established.
var ErrNoIdentity = errors.New("caller identity required")

// ErrInvalidName is returned for a malformed or unsupported file name.
var ErrInvalidName = errors.New("invalid file name")

const maxNameLen = 255

// allowedExts lists the upload formats the thumbnail pipeline can decode.
// Rejecting anything else at grant time saves a guaranteed dead-letter later.
var allowedExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
}

// Grant is a short-lived, write-only credential scoped to one object key.
type Grant struct {
	URL       string    `json:"url"`
	FileKey   string    `json:"fileKey"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Presigner produces single-key write credentials for the raw bucket.
type Presigner interface {
	PresignedPut(ctx context.Context, fileKey string, expiry time.Duration) (string, error)
}

// Service issues upload grants. It is stateless: no metadata record is
// written at grant time, because a grant may never be redeemed. The record
// is created lazily by the worker on the first object-created event.
type Service struct {
	presigner Presigner
	ttl       time.Duration
}

// NewService creates a grant Service issuing credentials with the given lifetime.
func NewService(presigner Presigner, ttl time.Duration) *Service {
	return &Service{presigner: presigner, ttl: ttl}
}

// Issue validates the request, derives a collision-resistant object key
// scoped to the owner, and returns a presigned PUT URL for exactly that key.
func (s *Service) Issue(ctx context.Context, ownerID, fileName string) (*Grant, error) {
	if ownerID == "" {
		return nil, ErrNoIdentity
	}

	name, err := sanitizeFileName(fileName)
	if err != nil {
		return nil, err
	}

	fileKey := picture.NewFileKey(ownerID, name)
	expiresAt := time.Now().Add(s.ttl)

	url, err := s.presigner.PresignedPut(ctx, fileKey, s.ttl)
	if err != nil {
		return nil, fmt.Errorf("presign upload for %q: %w", fileKey, err)
	}

	return &Grant{URL: url, FileKey: fileKey, ExpiresAt: expiresAt}, nil
}

// sanitizeFileName reduces a client-supplied name to a safe base name and
// verifies length and extension. Path separators from either OS family are
// stripped, so "../../etc/passwd.jpg" becomes "passwd.jpg".
func sanitizeFileName(fileName string) (string, error) {
	name := strings.ReplaceAll(fileName, `\`, "/")
	name = path.Base(path.Clean("/" + name))
	if name == "/" || name == "." || name == "" {
		return "", fmt.Errorf("%w: empty name", ErrInvalidName)
	}
	if len(name) > maxNameLen {
		return "", fmt.Errorf("%w: name exceeds %d bytes", ErrInvalidName, maxNameLen)
	}
	ext := strings.ToLower(path.Ext(name))
	if !allowedExts[ext] {
		return "", fmt.Errorf("%w: unsupported extension %q", ErrInvalidName, ext)
	}
	return name, nil
}
