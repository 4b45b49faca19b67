package transform

import (
	"bytes"
	"image"
	"image/jpeg"

	"github.com/disintegration/imaging"

	"imagekit/internal/imgerr"
)

// Encode renders m in the named format. Quality outside 1..100 is clamped
// here; rejecting out-of-range requests is the pipeline's job.
func Encode(m image.Image, format string, quality int) ([]byte, error) {
	if quality < 1 {
		quality = 1
	}
	if quality > 100 {
		quality = 100
	}

	// encoders want plain RGB(A) pixels, not YCbCr or paletted sources
	rgb := imaging.Clone(m)

	var (
		b   []byte
		err error
	)
	switch format {
	case "jpeg":
		var buf bytes.Buffer
		err = jpeg.Encode(&buf, rgb, &jpeg.Options{Quality: quality})
		b = buf.Bytes()
	case "webp":
		b, err = encodeWebP(rgb, quality)
	case "avif":
		b, err = encodeAVIF(rgb, quality)
	default:
		return nil, imgerr.New(imgerr.KindTransform, "unsupported output format")
	}
	if err != nil {
		return nil, imgerr.Wrap(imgerr.KindTransform, "encode failed", err)
	}
	return b, nil
}

// Ext returns the file extension used for cached artifacts of format.
func Ext(format string) string {
	switch format {
	case "jpeg":
		return "jpg"
	case "webp":
		return "webp"
	case "avif":
		return "avif"
	}
	return format
}
