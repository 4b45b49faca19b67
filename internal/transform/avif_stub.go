//go:build noavif

package transform

import (
	"errors"
	"image"
)

// encodeAVIF is a stub that returns an error when AVIF support is disabled.
// Build with -tags noavif to disable AVIF encoding support.
func encodeAVIF(img image.Image, quality int) ([]byte, error) {
	return nil, errors.New("avif encoder disabled (built with -tags noavif)")
}
