package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/photoshare/service/internal/picture"
	"github.com/photoshare/service/internal/storage"
)

// ErrTransient marks a failure worth retrying: storage timeouts, throttling,
// or an original that is not visible yet. Everything else is terminal.
var ErrTransient = errors.New("transient failure")

// RecordStore is the metadata-store surface the processor needs. All
// transitions behind it are conditional upserts, which is the only
// cross-instance coordination the pipeline relies on.
type RecordStore interface {
	GetByKey(ctx context.Context, fileKey string) (*picture.Record, error)
	ClaimAttempt(ctx context.Context, fileKey, ownerID string) (int, error)
	MarkProcessed(ctx context.Context, fileKey, ownerID, originalName, contentType, thumbnailKey string, uploadedAt time.Time) error
	MarkFailed(ctx context.Context, fileKey, ownerID, reason string) error
}

// ObjectStore is the object-storage surface the processor needs.
type ObjectStore interface {
	GetRaw(ctx context.Context, fileKey string) (io.ReadCloser, error)
	PutThumbnail(ctx context.Context, fileKey string, data []byte, contentType string) error
}

// Processor handles one raw-object-created event at a time. Its effects per
// file key are exactly one thumbnail write and one terminal metadata upsert,
// no matter how many times the event is delivered.
type Processor struct {
	records     RecordStore
	objects     ObjectStore
	maxAttempts int
	now         func() time.Time
}

// NewProcessor creates a Processor with the given retry budget.
func NewProcessor(records RecordStore, objects ObjectStore, maxAttempts int) *Processor {
	return &Processor{
		records:     records,
		objects:     objects,
		maxAttempts: maxAttempts,
		now:         time.Now,
	}
}

// Process runs the pipeline for one event. A nil return means the event is
// fully settled (processed, permanently failed, or a duplicate of settled
// work) and may be acknowledged. An ErrTransient return means the attempt
// should be redelivered with backoff; no partial effect of the attempt needs
// cleanup, because the thumbnail write is an idempotent overwrite and the
// metadata upsert only ever fires once per key.
func (p *Processor) Process(ctx context.Context, ev Event) error {
	fileKey := ev.FileKey

	// Idempotent short-circuit: terminal records swallow redeliveries.
	rec, err := p.records.GetByKey(ctx, fileKey)
	if err != nil && !errors.Is(err, picture.ErrNotFound) {
		return fmt.Errorf("%w: lookup %q: %v", ErrTransient, fileKey, err)
	}
	if rec != nil && rec.Terminal() {
		log.Printf("worker: %q already %s, skipping", fileKey, rec.Status)
		return nil
	}

	ownerID, originalName, err := picture.SplitKey(fileKey)
	if err != nil {
		// Objects that were not named by the grant service are not ours to
		// process. Acknowledge and move on.
		log.Printf("worker: ignoring foreign object %q: %v", fileKey, err)
		return nil
	}

	attempts, err := p.records.ClaimAttempt(ctx, fileKey, ownerID)
	if errors.Is(err, picture.ErrTerminal) {
		log.Printf("worker: %q settled concurrently, skipping", fileKey)
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: claim %q: %v", ErrTransient, fileKey, err)
	}
	if attempts > p.maxAttempts {
		reason := fmt.Sprintf("retry budget exhausted after %d attempts", attempts-1)
		return p.deadLetter(ctx, fileKey, ownerID, reason)
	}

	data, err := p.fetchOriginal(ctx, fileKey)
	if errors.Is(err, ErrPermanentDecode) {
		return p.deadLetter(ctx, fileKey, ownerID, err.Error())
	}
	if err != nil {
		return err
	}

	thumb, contentType, err := makeThumbnail(data)
	if errors.Is(err, ErrPermanentDecode) {
		return p.deadLetter(ctx, fileKey, ownerID, err.Error())
	}
	if err != nil {
		return fmt.Errorf("%w: thumbnail %q: %v", ErrTransient, fileKey, err)
	}

	// Same key in the thumbnail bucket; redelivery overwrites with
	// byte-identical content.
	thumbnailKey := fileKey
	if err := p.objects.PutThumbnail(ctx, thumbnailKey, thumb, contentType); err != nil {
		return fmt.Errorf("%w: write thumbnail %q: %v", ErrTransient, fileKey, err)
	}

	// A crash between the write above and this upsert is safe: the next
	// delivery redoes the resize deterministically and completes here.
	if err := p.records.MarkProcessed(ctx, fileKey, ownerID, originalName, contentType, thumbnailKey, p.now().UTC()); err != nil {
		return fmt.Errorf("%w: mark processed %q: %v", ErrTransient, fileKey, err)
	}

	log.Printf("worker: processed %q (attempt %d)", fileKey, attempts)
	return nil
}

func (p *Processor) fetchOriginal(ctx context.Context, fileKey string) ([]byte, error) {
	obj, err := p.objects.GetRaw(ctx, fileKey)
	if err != nil {
		// Not-found is retryable too: the notification can land before the
		// object is visible to readers.
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, fmt.Errorf("%w: original %q not visible yet", ErrTransient, fileKey)
		}
		return nil, fmt.Errorf("%w: fetch %q: %v", ErrTransient, fileKey, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("%w: read %q: %v", ErrTransient, fileKey, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: original %q is empty", ErrPermanentDecode, fileKey)
	}
	return data, nil
}

// deadLetter records a terminal failure and surfaces it for operators. The
// event itself is then acknowledged; failed keys are never retried.
func (p *Processor) deadLetter(ctx context.Context, fileKey, ownerID, reason string) error {
	if err := p.records.MarkFailed(ctx, fileKey, ownerID, reason); err != nil {
		return fmt.Errorf("%w: mark failed %q: %v", ErrTransient, fileKey, err)
	}
	log.Printf("worker: DEAD-LETTER %q: %s", fileKey, reason)
	return nil
}
