package picture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository handles all pictures table operations. Concurrent workers never
// coordinate through locks; every state transition below is a single
// conditional statement so duplicate event deliveries collapse to no-ops.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new Repository with the given connection pool.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const recordColumns = `file_key, owner_id, original_name, content_type, thumbnail_key,
	 status, attempts, failure_reason, uploaded_at, created_at, updated_at`

func scanRecord(row pgx.Row) (*Record, error) {
	rec := &Record{}
	err := row.Scan(&rec.FileKey, &rec.OwnerID, &rec.OriginalName, &rec.ContentType,
		&rec.ThumbnailKey, &rec.Status, &rec.Attempts, &rec.FailureReason,
		&rec.UploadedAt, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// GetByKey fetches the record for a file key.
func (r *Repository) GetByKey(ctx context.Context, fileKey string) (*Record, error) {
	rec, err := scanRecord(r.db.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM pictures WHERE file_key = $1`, fileKey))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get picture by key: %w", err)
	}
	return rec, nil
}

// ClaimAttempt registers one processing attempt for a file key and returns
// the attempt number. The first claim creates the pending row; later claims
// bump the counter. A claim against a terminal row returns ErrTerminal, which
// is how a redelivered event for finished work is detected atomically even
// when two workers race on the same key.
func (r *Repository) ClaimAttempt(ctx context.Context, fileKey, ownerID string) (int, error) {
	var attempts int
	err := r.db.QueryRow(ctx,
		`INSERT INTO pictures (file_key, owner_id, status, attempts)
		 VALUES ($1, $2, 'pending', 1)
		 ON CONFLICT (file_key) DO UPDATE
		 SET attempts = pictures.attempts + 1, updated_at = now()
		 WHERE pictures.status = 'pending'
		 RETURNING attempts`,
		fileKey, ownerID,
	).Scan(&attempts)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrTerminal
	}
	if err != nil {
		return 0, fmt.Errorf("claim attempt: %w", err)
	}
	return attempts, nil
}

// MarkProcessed moves a record to the processed terminal state. Only pending
// (or missing) rows transition; a record that is already terminal is left
// untouched, which makes the call safe to repeat on redelivery.
func (r *Repository) MarkProcessed(ctx context.Context, fileKey, ownerID, originalName, contentType, thumbnailKey string, uploadedAt time.Time) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO pictures (file_key, owner_id, original_name, content_type, thumbnail_key, status, uploaded_at)
		 VALUES ($1, $2, $3, $4, $5, 'processed', $6)
		 ON CONFLICT (file_key) DO UPDATE
		 SET owner_id = EXCLUDED.owner_id,
		     original_name = EXCLUDED.original_name,
		     content_type = EXCLUDED.content_type,
		     thumbnail_key = EXCLUDED.thumbnail_key,
		     status = 'processed',
		     uploaded_at = EXCLUDED.uploaded_at,
		     failure_reason = NULL,
		     updated_at = now()
		 WHERE pictures.status = 'pending'`,
		fileKey, ownerID, originalName, contentType, thumbnailKey, uploadedAt)
	if err != nil {
		return fmt.Errorf("mark picture processed: %w", err)
	}
	return nil
}

// MarkFailed moves a record to the failed terminal state with an
// operator-visible reason. Terminal rows are left untouched.
func (r *Repository) MarkFailed(ctx context.Context, fileKey, ownerID, reason string) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO pictures (file_key, owner_id, status, failure_reason)
		 VALUES ($1, $2, 'failed', $3)
		 ON CONFLICT (file_key) DO UPDATE
		 SET status = 'failed',
		     failure_reason = EXCLUDED.failure_reason,
		     updated_at = now()
		 WHERE pictures.status = 'pending'`,
		fileKey, ownerID, reason)
	if err != nil {
		return fmt.Errorf("mark picture failed: %w", err)
	}
	return nil
}

// ListFilter narrows a ListProcessed call. A zero AfterUploadedAt means
// "start from the newest record"; OwnerID empty means all owners.
type ListFilter struct {
	OwnerID         string
	AfterUploadedAt time.Time
	AfterKey        string
	Limit           int
}

// ListProcessed returns processed records in (uploaded_at DESC, file_key DESC)
// order, starting strictly after the filter's cursor position. Pending and
// failed rows never appear in listings.
func (r *Repository) ListProcessed(ctx context.Context, f ListFilter) ([]Record, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+recordColumns+`
		 FROM pictures
		 WHERE status = 'processed'
		   AND ($1 = '' OR owner_id = $1)
		   AND ($2::timestamptz IS NULL
		        OR uploaded_at < $2
		        OR (uploaded_at = $2 AND file_key < $3))
		 ORDER BY uploaded_at DESC, file_key DESC
		 LIMIT $4`,
		f.OwnerID, nullableTime(f.AfterUploadedAt), f.AfterKey, f.Limit)
	if err != nil {
		return nil, fmt.Errorf("list processed pictures: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan picture row: %w", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list processed pictures: %w", err)
	}
	return out, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
