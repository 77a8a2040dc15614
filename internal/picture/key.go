package picture

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// keySuffix matches the "-YYYYMMDD-HHMMSS-xxxxxxxx" marker appended by
// NewFileKey, so the original file name can be recovered from a key.
var keySuffix = regexp.MustCompile(`-\d{8}-\d{6}-[0-9a-f]{8}$`)

// NewFileKey builds an object key for a fresh upload:
//
//	<ownerID>/<base>-YYYYMMDD-HHMMSS-<uuid8><ext>
//
// The owner prefix scopes the key to the uploader; the timestamp plus UUID
// segment make collisions implausible across the bucket's lifetime, so no
// existence check is needed when two grants race on the same file name.
func NewFileKey(ownerID, fileName string) string {
	ext := strings.ToLower(path.Ext(fileName))
	base := strings.TrimSuffix(fileName, path.Ext(fileName))
	stamp := time.Now().UTC().Format("20060102-150405")
	suffix := uuid.NewString()[:8]
	return fmt.Sprintf("%s/%s-%s-%s%s", ownerID, base, stamp, suffix, ext)
}

// SplitKey recovers the owner ID and the original file name from a key
// produced by NewFileKey. The worker uses it because event notifications
// carry only the object key.
func SplitKey(fileKey string) (ownerID, originalName string, err error) {
	ownerID, rest, ok := strings.Cut(fileKey, "/")
	if !ok || ownerID == "" || rest == "" {
		return "", "", fmt.Errorf("malformed file key %q", fileKey)
	}
	ext := path.Ext(rest)
	base := strings.TrimSuffix(rest, ext)
	if m := keySuffix.FindString(base); m != "" {
		base = strings.TrimSuffix(base, m)
	}
	return ownerID, base + ext, nil
}
