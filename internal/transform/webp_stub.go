//go:build nowebp

package transform

import (
	"errors"
	"image"
)

func encodeWebP(img image.Image, quality int) ([]byte, error) {
	return nil, errors.New("webp encoder disabled (built with -tags nowebp)")
}
