// Package gallery serves thumbnail listings and metadata to clients.
package gallery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/photoshare/service/internal/picture"
)

// Scope selects whose pictures a listing covers.
type Scope string

const (
	// ScopeAll lists every processed picture.
	ScopeAll Scope = "all"
	// ScopeMine lists only the caller's processed pictures.
	ScopeMine Scope = "mine"
)

// ErrNoIdentity is returned when the caller's identity cannot be established.
var ErrNoIdentity = errors.New("caller identity required")

// ErrBadCursor is returned for a continuation token the server did not mint.
var ErrBadCursor = errors.New("invalid continuation token")

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Thumbnail is one listing entry as served to clients. Only processed
// pictures ever become Thumbnails; pending and failed records are invisible.
type Thumbnail struct {
	Name         string    `json:"name"`
	OriginalName string    `json:"originalFileName"`
	ThumbnailURL string    `json:"thumbnailUrl"`
	OwnerID      string    `json:"ownerId"`
	UploadedAt   time.Time `json:"uploadedAt"`
}

// Page is one slice of a listing plus the token to fetch the next slice.
// An empty NextCursor means the listing is exhausted.
type Page struct {
	Thumbnails []Thumbnail `json:"thumbnails"`
	NextCursor string      `json:"nextCursor,omitempty"`
}

// Lister reads processed picture records from the metadata store.
type Lister interface {
	ListProcessed(ctx context.Context, f picture.ListFilter) ([]picture.Record, error)
}

// URLResolver builds browser-accessible URLs for thumbnail keys.
type URLResolver interface {
	ThumbnailURL(fileKey string) string
}

// Service contains the listing business logic. It exposes no write
// capability of any kind.
type Service struct {
	repo Lister
	urls URLResolver
}

// NewService creates a gallery Service.
func NewService(repo Lister, urls URLResolver) *Service {
	return &Service{repo: repo, urls: urls}
}

// List returns one page of thumbnails. callerID is required for ScopeMine;
// cursorToken and limit control pagination, with limit clamped to sane bounds.
func (s *Service) List(ctx context.Context, callerID string, scope Scope, cursorToken string, limit int) (*Page, error) {
	if callerID == "" {
		return nil, ErrNoIdentity
	}

	owner := ""
	if scope == ScopeMine {
		owner = callerID
	}

	cur, err := decodeCursor(cursorToken)
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	records, err := s.repo.ListProcessed(ctx, picture.ListFilter{
		OwnerID:         owner,
		AfterUploadedAt: cur.UploadedAt,
		AfterKey:        cur.FileKey,
		Limit:           limit,
	})
	if err != nil {
		return nil, fmt.Errorf("list thumbnails: %w", err)
	}

	page := &Page{Thumbnails: make([]Thumbnail, 0, len(records))}
	for _, rec := range records {
		if rec.UploadedAt == nil {
			continue
		}
		page.Thumbnails = append(page.Thumbnails, Thumbnail{
			Name:         rec.ThumbnailKey,
			OriginalName: rec.OriginalName,
			ThumbnailURL: s.urls.ThumbnailURL(rec.ThumbnailKey),
			OwnerID:      rec.OwnerID,
			UploadedAt:   *rec.UploadedAt,
		})
	}

	if last := len(records) - 1; len(records) == limit && records[last].UploadedAt != nil {
		page.NextCursor = encodeCursor(cursor{
			UploadedAt: *records[last].UploadedAt,
			FileKey:    records[last].FileKey,
		})
	}

	return page, nil
}
