//go:build !noavif

package transform

import (
	"bytes"
	"image"

	"github.com/gen2brain/avif"
)

// encodeAVIF encodes an image to AVIF at the given quality. Speed 4 trades
// some encode time for noticeably better compression than the library
// default.
func encodeAVIF(img image.Image, quality int) ([]byte, error) {
	opts := avif.Options{
		Quality:           quality,
		QualityAlpha:      quality,
		Speed:             4,
		ChromaSubsampling: image.YCbCrSubsampleRatio420,
	}

	var buf bytes.Buffer
	if err := avif.Encode(&buf, img, opts); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
