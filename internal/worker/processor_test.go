package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/disintegration/imaging"

	"github.com/photoshare/service/internal/picture"
	"github.com/photoshare/service/internal/storage"
)

// memRecords mirrors the repository's conditional-upsert semantics in memory.
type memRecords struct {
	recs          map[string]*picture.Record
	claims        int
	processedCnt  int
	failedCnt     int
	getErr        error
	claimErr      error
	markProcessed error
}

func newMemRecords() *memRecords {
	return &memRecords{recs: map[string]*picture.Record{}}
}

func (m *memRecords) GetByKey(ctx context.Context, fileKey string) (*picture.Record, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	rec, ok := m.recs[fileKey]
	if !ok {
		return nil, picture.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *memRecords) ClaimAttempt(ctx context.Context, fileKey, ownerID string) (int, error) {
	if m.claimErr != nil {
		return 0, m.claimErr
	}
	m.claims++
	rec, ok := m.recs[fileKey]
	if !ok {
		m.recs[fileKey] = &picture.Record{FileKey: fileKey, OwnerID: ownerID, Status: picture.StatusPending, Attempts: 1}
		return 1, nil
	}
	if rec.Terminal() {
		return 0, picture.ErrTerminal
	}
	rec.Attempts++
	return rec.Attempts, nil
}

func (m *memRecords) MarkProcessed(ctx context.Context, fileKey, ownerID, originalName, contentType, thumbnailKey string, uploadedAt time.Time) error {
	if m.markProcessed != nil {
		return m.markProcessed
	}
	rec, ok := m.recs[fileKey]
	if ok && rec.Terminal() {
		return nil
	}
	if !ok {
		rec = &picture.Record{FileKey: fileKey}
		m.recs[fileKey] = rec
	}
	rec.OwnerID = ownerID
	rec.OriginalName = originalName
	rec.ContentType = contentType
	rec.ThumbnailKey = thumbnailKey
	rec.Status = picture.StatusProcessed
	rec.UploadedAt = &uploadedAt
	m.processedCnt++
	return nil
}

func (m *memRecords) MarkFailed(ctx context.Context, fileKey, ownerID, reason string) error {
	rec, ok := m.recs[fileKey]
	if ok && rec.Terminal() {
		return nil
	}
	if !ok {
		rec = &picture.Record{FileKey: fileKey, OwnerID: ownerID}
		m.recs[fileKey] = rec
	}
	rec.Status = picture.StatusFailed
	rec.FailureReason = &reason
	m.failedCnt++
	return nil
}

type memObjects struct {
	raw    map[string][]byte
	thumbs map[string][]byte
	gets   int
	puts   int
	putErr error
}

func newMemObjects() *memObjects {
	return &memObjects{raw: map[string][]byte{}, thumbs: map[string][]byte{}}
}

func (m *memObjects) GetRaw(ctx context.Context, fileKey string) (io.ReadCloser, error) {
	m.gets++
	data, ok := m.raw[fileKey]
	if !ok {
		return nil, fmt.Errorf("object %q: %w", fileKey, storage.ErrObjectNotFound)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memObjects) PutThumbnail(ctx context.Context, fileKey string, data []byte, contentType string) error {
	if m.putErr != nil {
		return m.putErr
	}
	m.puts++
	m.thumbs[fileKey] = append([]byte(nil), data...)
	return nil
}

const testKey = "u1/cat-20250815-143022-abc12345.jpg"

func testEvent(key string) Event {
	return Event{Bucket: "photoshare-raw", FileKey: key, EventName: "s3:ObjectCreated:Put"}
}

func newTestProcessor(records *memRecords, objects *memObjects) *Processor {
	p := NewProcessor(records, objects, 5)
	p.now = func() time.Time { return time.Date(2025, 8, 15, 15, 0, 0, 0, time.UTC) }
	return p
}

func TestProcessSuccess(t *testing.T) {
	records := newMemRecords()
	objects := newMemObjects()
	objects.raw[testKey] = encodeTestImage(t, 500, 500, imaging.JPEG)

	p := newTestProcessor(records, objects)
	if err := p.Process(context.Background(), testEvent(testKey)); err != nil {
		t.Fatalf("Process: %v", err)
	}

	if objects.puts != 1 {
		t.Errorf("thumbnail writes = %d, want 1", objects.puts)
	}
	if w, h := decodeDims(t, objects.thumbs[testKey]); w != ThumbSize || h != ThumbSize {
		t.Errorf("thumbnail is %dx%d", w, h)
	}

	rec := records.recs[testKey]
	if rec == nil || rec.Status != picture.StatusProcessed {
		t.Fatalf("record not processed: %+v", rec)
	}
	if rec.OwnerID != "u1" {
		t.Errorf("ownerId = %q, want u1 (recovered from key prefix)", rec.OwnerID)
	}
	if rec.OriginalName != "cat.jpg" {
		t.Errorf("originalName = %q, want cat.jpg", rec.OriginalName)
	}
	if rec.ThumbnailKey != testKey {
		t.Errorf("thumbnailKey = %q, want %q", rec.ThumbnailKey, testKey)
	}
	if rec.UploadedAt == nil {
		t.Error("uploadedAt not set")
	}
}

// Delivering the same creation event N times must leave exactly one terminal
// record and one thumbnail write.
func TestProcessDuplicateDelivery(t *testing.T) {
	records := newMemRecords()
	objects := newMemObjects()
	objects.raw["u1/dog-20250815-143022-00c0ffee.png"] = encodeTestImage(t, 300, 300, imaging.PNG)
	ev := testEvent("u1/dog-20250815-143022-00c0ffee.png")

	p := newTestProcessor(records, objects)
	for i := 0; i < 3; i++ {
		if err := p.Process(context.Background(), ev); err != nil {
			t.Fatalf("delivery %d: %v", i+1, err)
		}
	}

	if objects.puts != 1 {
		t.Errorf("thumbnail writes = %d, want 1", objects.puts)
	}
	if records.processedCnt != 1 {
		t.Errorf("processed upserts = %d, want 1", records.processedCnt)
	}
	if st := records.recs[ev.FileKey].Status; st != picture.StatusProcessed {
		t.Errorf("status = %s", st)
	}
}

func TestProcessConcurrentClaimRace(t *testing.T) {
	records := newMemRecords()
	records.claimErr = picture.ErrTerminal
	objects := newMemObjects()
	objects.raw[testKey] = encodeTestImage(t, 200, 200, imaging.JPEG)

	p := newTestProcessor(records, objects)
	if err := p.Process(context.Background(), testEvent(testKey)); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if objects.puts != 0 {
		t.Errorf("thumbnail written despite losing the claim race")
	}
}

func TestProcessFailedKeyIsNotRetried(t *testing.T) {
	records := newMemRecords()
	reason := "undecodable"
	records.recs[testKey] = &picture.Record{FileKey: testKey, Status: picture.StatusFailed, FailureReason: &reason}
	objects := newMemObjects()

	p := newTestProcessor(records, objects)
	if err := p.Process(context.Background(), testEvent(testKey)); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if objects.gets != 0 || records.claims != 0 {
		t.Error("terminal failed record triggered new work")
	}
}

func TestProcessTransientFetch(t *testing.T) {
	records := newMemRecords()
	objects := newMemObjects() // no raw object: not visible yet

	p := newTestProcessor(records, objects)
	err := p.Process(context.Background(), testEvent(testKey))
	if !errors.Is(err, ErrTransient) {
		t.Fatalf("err = %v, want ErrTransient", err)
	}

	rec := records.recs[testKey]
	if rec.Status != picture.StatusPending {
		t.Errorf("status = %s, want pending (eligible for redelivery)", rec.Status)
	}
	if records.failedCnt != 0 {
		t.Error("transient failure must not dead-letter")
	}
}

func TestProcessPermanentDecode(t *testing.T) {
	records := newMemRecords()
	objects := newMemObjects()
	objects.raw[testKey] = []byte("this is a text file named .jpg")

	p := newTestProcessor(records, objects)
	if err := p.Process(context.Background(), testEvent(testKey)); err != nil {
		t.Fatalf("Process: %v", err)
	}

	if objects.puts != 0 {
		t.Error("undecodable input must not produce a thumbnail write")
	}
	rec := records.recs[testKey]
	if rec.Status != picture.StatusFailed || rec.FailureReason == nil {
		t.Fatalf("record not dead-lettered: %+v", rec)
	}

	// Redelivery of the failed key is a no-op.
	claimsBefore := records.claims
	if err := p.Process(context.Background(), testEvent(testKey)); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if records.claims != claimsBefore {
		t.Error("failed key was retried")
	}
}

func TestProcessRetryBudgetExhausted(t *testing.T) {
	records := newMemRecords()
	records.recs[testKey] = &picture.Record{
		FileKey: testKey, OwnerID: "u1", Status: picture.StatusPending, Attempts: 5,
	}
	objects := newMemObjects()
	objects.raw[testKey] = encodeTestImage(t, 200, 200, imaging.JPEG)

	p := newTestProcessor(records, objects)
	if err := p.Process(context.Background(), testEvent(testKey)); err != nil {
		t.Fatalf("Process: %v", err)
	}

	rec := records.recs[testKey]
	if rec.Status != picture.StatusFailed {
		t.Fatalf("status = %s, want failed after exhausted budget", rec.Status)
	}
	if objects.gets != 0 {
		t.Error("no fetch should happen once the budget is exhausted")
	}
}

// A crash between the thumbnail write and the metadata upsert must be
// recoverable: redelivery redoes the resize and lands byte-identical bytes.
func TestProcessCrashBeforeMetadata(t *testing.T) {
	records := newMemRecords()
	objects := newMemObjects()
	objects.raw[testKey] = encodeTestImage(t, 500, 500, imaging.JPEG)

	p := newTestProcessor(records, objects)

	// First attempt: thumbnail written, metadata upsert "crashes".
	records.markProcessed = errors.New("connection reset")
	err := p.Process(context.Background(), testEvent(testKey))
	if !errors.Is(err, ErrTransient) {
		t.Fatalf("err = %v, want ErrTransient", err)
	}
	firstBytes := append([]byte(nil), objects.thumbs[testKey]...)

	// Redelivery completes the pipeline.
	records.markProcessed = nil
	if err := p.Process(context.Background(), testEvent(testKey)); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if records.recs[testKey].Status != picture.StatusProcessed {
		t.Fatal("record not processed after redelivery")
	}
	if !bytes.Equal(firstBytes, objects.thumbs[testKey]) {
		t.Error("redelivered thumbnail bytes differ from the first write")
	}
}

func TestProcessIgnoresForeignKeys(t *testing.T) {
	records := newMemRecords()
	objects := newMemObjects()

	p := newTestProcessor(records, objects)
	if err := p.Process(context.Background(), testEvent("stray-object.jpg")); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if records.claims != 0 || objects.gets != 0 {
		t.Error("foreign object key triggered processing")
	}
}
