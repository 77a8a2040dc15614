package worker

import (
	"testing"
)

func TestParseNotificationRecords(t *testing.T) {
	payload := []byte(`{
		"EventName": "s3:ObjectCreated:Put",
		"Key": "photoshare-raw/u1/cat-20250815-143022-abc12345.jpg",
		"Records": [{
			"eventName": "s3:ObjectCreated:Put",
			"s3": {
				"bucket": {"name": "photoshare-raw"},
				"object": {"key": "u1%2Fcat-20250815-143022-abc12345.jpg", "size": 1024}
			}
		}]
	}`)

	events, err := ParseNotification(payload)
	if err != nil {
		t.Fatalf("ParseNotification: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}

	ev := events[0]
	if ev.Bucket != "photoshare-raw" {
		t.Errorf("bucket = %q", ev.Bucket)
	}
	if ev.FileKey != "u1/cat-20250815-143022-abc12345.jpg" {
		t.Errorf("url-encoded key not unescaped: %q", ev.FileKey)
	}
	if !ev.Created() {
		t.Error("object-created event not recognized")
	}
}

func TestParseNotificationFallbackKey(t *testing.T) {
	payload := []byte(`{"EventName":"s3:ObjectCreated:Put","Key":"photoshare-raw/u1/dog.png"}`)

	events, err := ParseNotification(payload)
	if err != nil {
		t.Fatalf("ParseNotification: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Bucket != "photoshare-raw" || events[0].FileKey != "u1/dog.png" {
		t.Errorf("unexpected event: %+v", events[0])
	}
}

func TestParseNotificationErrors(t *testing.T) {
	for _, payload := range []string{
		`not json`,
		`{"EventName":"s3:ObjectCreated:Put","Key":"bucketonly"}`,
	} {
		if _, err := ParseNotification([]byte(payload)); err == nil {
			t.Errorf("ParseNotification(%q): expected error", payload)
		}
	}
}

func TestEventCreated(t *testing.T) {
	tests := []struct {
		eventName string
		want      bool
	}{
		{"s3:ObjectCreated:Put", true},
		{"s3:ObjectCreated:CompleteMultipartUpload", true},
		{"s3:ObjectRemoved:Delete", false},
		{"s3:ObjectAccessed:Get", false},
		{"", false},
	}
	for _, tt := range tests {
		ev := Event{EventName: tt.eventName}
		if ev.Created() != tt.want {
			t.Errorf("Created(%q) = %v, want %v", tt.eventName, ev.Created(), tt.want)
		}
	}
}
