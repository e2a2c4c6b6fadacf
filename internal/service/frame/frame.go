// Package frame decodes uploaded image bytes into frames for the pipeline.
package frame

import (
	"bytes"
	"errors"
	"fmt"
	"image"

	// Registered decoders for uploads.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DefaultMaxPixels bounds the declared size of a frame Decode accepts.
const DefaultMaxPixels = 40_000_000

// ErrUndecodable is returned for bytes that are not a supported image.
var ErrUndecodable = errors.New("invalid image")

// Decode returns the decoded frame and its format name, rejecting frames
// larger than DefaultMaxPixels.
func Decode(data []byte) (image.Image, string, error) {
	return DecodeLimited(data, DefaultMaxPixels)
}

// DecodeLimited is Decode with an explicit pixel limit. The header is
// checked before any pixel buffer is allocated. maxPixels <= 0 selects
// DefaultMaxPixels.
func DecodeLimited(data []byte, maxPixels int) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%w: empty body", ErrUndecodable)
	}
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, format, fmt.Errorf("%w: zero-sized %s", ErrUndecodable, format)
	}
	if int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return nil, format, fmt.Errorf("%w: %dx%d %s exceeds %d pixels", ErrUndecodable, cfg.Width, cfg.Height, format, maxPixels)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	if img.Bounds().Empty() {
		return nil, format, fmt.Errorf("%w: zero-sized %s", ErrUndecodable, format)
	}
	return img, format, nil
}
