package worker

import (
	"bytes"
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	// Register decoders for the allow-listed formats. JPEG and PNG come with
	// imaging; WEBP registers itself for image.Decode on import.
	_ "golang.org/x/image/webp"
)

// ThumbSize is the edge length of generated thumbnails.
const ThumbSize = 150

// ErrPermanentDecode marks an input that can never be processed: corrupt
// bytes or a format outside the allow-list. Such failures are terminal and
// must not be retried.
var ErrPermanentDecode = errors.New("undecodable or unsupported image")

// allowedFormats is the decode allow-list, keyed by the format names the
// registered decoders report.
var allowedFormats = map[string]bool{
	"jpeg": true,
	"png":  true,
	"webp": true,
}

// makeThumbnail decodes an original image and derives the thumbnail bytes
// plus their content type. The transform is a pure function of the input:
// aspect ratio is handled by scaling to cover and center-cropping to an
// exact ThumbSize square, and encoder settings are fixed, so redelivering
// the same original always yields byte-identical output.
//
// PNG sources stay PNG; JPEG and WEBP are encoded as JPEG quality 85
// (there is no WEBP encoder in the stack).
func makeThumbnail(data []byte) ([]byte, string, error) {
	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrPermanentDecode, err)
	}
	if !allowedFormats[format] {
		return nil, "", fmt.Errorf("%w: format %q", ErrPermanentDecode, format)
	}

	thumb := imaging.Thumbnail(src, ThumbSize, ThumbSize, imaging.Lanczos)

	var buf bytes.Buffer
	switch format {
	case "png":
		if err := imaging.Encode(&buf, thumb, imaging.PNG); err != nil {
			return nil, "", fmt.Errorf("encode thumbnail png: %w", err)
		}
		return buf.Bytes(), "image/png", nil
	default:
		if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
			return nil, "", fmt.Errorf("encode thumbnail jpeg: %w", err)
		}
		return buf.Bytes(), "image/jpeg", nil
	}
}
