package gallery

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

// cursor marks a position in the (uploaded_at DESC, file_key DESC) listing
// order. It round-trips through an opaque token so clients can resume a
// listing without the server keeping any per-client state.
type cursor struct {
	UploadedAt time.Time
	FileKey    string
}

// encodeCursor serializes a cursor into an opaque continuation token.
func encodeCursor(c cursor) string {
	raw := c.UploadedAt.UTC().Format(time.RFC3339Nano) + "|" + c.FileKey
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// decodeCursor parses a continuation token. An empty token means "start from
// the beginning".
func decodeCursor(token string) (cursor, error) {
	if token == "" {
		return cursor{}, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return cursor{}, fmt.Errorf("%w: %v", ErrBadCursor, err)
	}
	ts, key, ok := strings.Cut(string(raw), "|")
	if !ok || key == "" {
		return cursor{}, ErrBadCursor
	}
	at, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return cursor{}, fmt.Errorf("%w: %v", ErrBadCursor, err)
	}
	return cursor{UploadedAt: at, FileKey: key}, nil
}
