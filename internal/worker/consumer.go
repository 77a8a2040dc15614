package worker

import (
	"context"
	"errors"
	"io"
	"log"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	initialBackoff = 2 * time.Second
	maxBackoff     = 30 * time.Second
)

// MessageReader is the subset of kafka.Reader the consumer uses. Fetch and
// commit are split so a message is acknowledged only after its events are
// settled; an uncommitted message is redelivered by the broker.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Consumer drives the processor from a Kafka topic carrying bucket
// notifications. One message is handled at a time; failures are scoped per
// file key and never stop the loop.
type Consumer struct {
	reader  MessageReader
	proc    *Processor
	timeout time.Duration
}

// NewConsumer creates a Consumer with the given per-attempt timeout.
func NewConsumer(reader MessageReader, proc *Processor, timeout time.Duration) *Consumer {
	return &Consumer{reader: reader, proc: proc, timeout: timeout}
}

// Run consumes until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				return nil
			}
			log.Printf("worker: fetch message: %v", err)
			continue
		}

		c.handle(ctx, msg.Value)

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			// Not committing is safe: the message comes back and the
			// processor's idempotency checks absorb the duplicate.
			log.Printf("worker: commit message: %v", err)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, payload []byte) {
	events, err := ParseNotification(payload)
	if err != nil {
		log.Printf("worker: skipping malformed notification: %v", err)
		return
	}

	for _, ev := range events {
		if !ev.Created() {
			continue
		}
		c.processWithRetry(ctx, ev)
	}
}

// processWithRetry retries transient failures with exponential backoff. The
// loop is bounded by the attempt counter in the metadata store: once the
// budget is exhausted the processor dead-letters the key and returns nil.
func (c *Consumer) processWithRetry(ctx context.Context, ev Event) {
	backoff := initialBackoff
	for {
		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		err := c.proc.Process(attemptCtx, ev)
		cancel()

		if err == nil {
			return
		}
		if !errors.Is(err, ErrTransient) {
			log.Printf("worker: %q: non-retryable: %v", ev.FileKey, err)
			return
		}

		log.Printf("worker: %q: %v, retrying in %s", ev.FileKey, err, backoff)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff *= 2; backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
