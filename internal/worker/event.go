// Package worker turns raw-object-created events into thumbnails and
// metadata records. Delivery is at least once, so every step is written to
// be safe under duplicate and concurrent redelivery of the same key.
package worker

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// Event is one object-storage notification as consumed by the worker.
type Event struct {
	Bucket    string
	FileKey   string
	EventName string
}

// Created reports whether the event announces a newly written object.
func (e Event) Created() bool {
	return strings.HasPrefix(e.EventName, "s3:ObjectCreated:")
}

// notification mirrors the bucket-notification JSON that MinIO publishes to
// Kafka (the same Records shape AWS S3 uses; object keys are URL-encoded).
type notification struct {
	EventName string `json:"EventName"`
	Key       string `json:"Key"`
	Records   []struct {
		EventName string `json:"eventName"`
		S3        struct {
			Bucket struct {
				Name string `json:"name"`
			} `json:"bucket"`
			Object struct {
				Key string `json:"key"`
			} `json:"object"`
		} `json:"s3"`
	} `json:"Records"`
}

// ParseNotification decodes one notification message into events. Messages
// without records fall back to the top-level "bucket/key" field.
func ParseNotification(data []byte) ([]Event, error) {
	var n notification
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("decode notification: %w", err)
	}

	if len(n.Records) == 0 {
		bucket, key, ok := strings.Cut(n.Key, "/")
		if !ok || key == "" {
			return nil, fmt.Errorf("notification has no records and no key: %q", n.Key)
		}
		return []Event{{Bucket: bucket, FileKey: key, EventName: n.EventName}}, nil
	}

	events := make([]Event, 0, len(n.Records))
	for _, rec := range n.Records {
		key, err := url.QueryUnescape(rec.S3.Object.Key)
		if err != nil {
			return nil, fmt.Errorf("unescape object key %q: %w", rec.S3.Object.Key, err)
		}
		events = append(events, Event{
			Bucket:    rec.S3.Bucket.Name,
			FileKey:   key,
			EventName: rec.EventName,
		})
	}
	return events, nil
}
