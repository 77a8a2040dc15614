package worker

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/segmentio/kafka-go"

	"github.com/photoshare/service/internal/picture"
)

type fakeReader struct {
	msgs    []kafka.Message
	next    int
	commits int
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if f.next >= len(f.msgs) {
		return kafka.Message{}, io.EOF
	}
	msg := f.msgs[f.next]
	f.next++
	return msg, nil
}

func (f *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	f.commits += len(msgs)
	return nil
}

func notificationFor(key string) []byte {
	return []byte(fmt.Sprintf(
		`{"EventName":"s3:ObjectCreated:Put","Key":"photoshare-raw/%s"}`, key))
}

func TestConsumerRun(t *testing.T) {
	records := newMemRecords()
	objects := newMemObjects()
	objects.raw[testKey] = encodeTestImage(t, 400, 400, imaging.JPEG)

	reader := &fakeReader{msgs: []kafka.Message{
		{Value: []byte("not json at all")},
		{Value: notificationFor(testKey)},
	}}

	c := NewConsumer(reader, newTestProcessor(records, objects), time.Second)
	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// The malformed message is skipped, both messages are acknowledged.
	if reader.commits != 2 {
		t.Errorf("commits = %d, want 2", reader.commits)
	}
	if rec := records.recs[testKey]; rec == nil || rec.Status != picture.StatusProcessed {
		t.Fatalf("record not processed: %+v", rec)
	}
}

func TestConsumerDoesNotRetryPermanentFailures(t *testing.T) {
	records := newMemRecords()
	objects := newMemObjects()
	objects.raw[testKey] = []byte("garbage bytes")

	reader := &fakeReader{msgs: []kafka.Message{{Value: notificationFor(testKey)}}}

	c := NewConsumer(reader, newTestProcessor(records, objects), time.Second)
	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if records.claims != 1 {
		t.Errorf("claims = %d, want exactly 1 (no retries)", records.claims)
	}
	if rec := records.recs[testKey]; rec.Status != picture.StatusFailed {
		t.Errorf("status = %s, want failed", rec.Status)
	}
	if reader.commits != 1 {
		t.Errorf("commits = %d, want 1 (dead-lettered events are acknowledged)", reader.commits)
	}
}
