// Package transform implements the decode / resize / encode pipeline. It
// does no I/O: callers hand it the raw source bytes and receive the encoded
// artifact. CPU-heavy work is gated behind a Processor so a burst of
// transforms cannot starve the request goroutines.
package transform

import (
	"context"
	"math"
	"runtime"

	"github.com/disintegration/imaging"

	"imagekit/internal/imgerr"
)

// resample filter used when resizing images
var resampleFilter = imaging.Lanczos

// Transform decodes b, resizes it according to w and h (0 means
// unconstrained) and re-encodes it in the target format at the given
// quality. Aspect ratio is always preserved.
func Transform(b []byte, w, h int, format string, quality int) ([]byte, error) {
	if DetectFormat(b) == "svg" {
		return transformSVG(b, w, h, format, quality)
	}

	m, err := Decode(b)
	if err != nil {
		return nil, imgerr.Wrap(imgerr.KindNotAnImage, "cannot decode source image", err)
	}

	bounds := m.Bounds()
	outW, outH := resizeDims(bounds.Dx(), bounds.Dy(), w, h)
	if outW != bounds.Dx() || outH != bounds.Dy() {
		m = imaging.Resize(m, outW, outH, resampleFilter)
	}

	return Encode(m, format, quality)
}

func transformSVG(b []byte, w, h int, format string, quality int) ([]byte, error) {
	origW, origH, err := svgIntrinsicSize(b)
	if err != nil {
		return nil, imgerr.Wrap(imgerr.KindNotAnImage, "cannot decode source image", err)
	}
	outW, outH := resizeDims(origW, origH, w, h)

	m, err := rasterizeSVG(b, outW, outH)
	if err != nil {
		return nil, imgerr.Wrap(imgerr.KindNotAnImage, "cannot decode source image", err)
	}
	// the renderer rounds independently; force the exact target size
	if m.Bounds().Dx() != outW || m.Bounds().Dy() != outH {
		m = imaging.Resize(m, outW, outH, resampleFilter)
	}

	return Encode(m, format, quality)
}

// resizeDims computes the output dimensions for a source of origW x origH:
// with neither bound the source size is kept; with one bound the other side
// scales to preserve aspect; with both the image fits the bounding box using
// the smaller of the two scale factors.
func resizeDims(origW, origH, w, h int) (int, int) {
	switch {
	case w <= 0 && h <= 0:
		return origW, origH
	case h <= 0:
		return w, atLeastOne(math.Round(float64(origH) * float64(w) / float64(origW)))
	case w <= 0:
		return atLeastOne(math.Round(float64(origW) * float64(h) / float64(origH))), h
	}

	scaleW := float64(w) / float64(origW)
	scaleH := float64(h) / float64(origH)
	scale := math.Min(scaleW, scaleH)
	return atLeastOne(math.Round(float64(origW) * scale)),
		atLeastOne(math.Round(float64(origH) * scale))
}

func atLeastOne(f float64) int {
	if f < 1 {
		return 1
	}
	return int(f)
}

// Processor bounds the number of concurrent transforms. Decode, resize and
// encode are CPU-bound; the semaphore keeps them from monopolizing the
// scheduler under load.
type Processor struct {
	sem chan struct{}
}

// NewProcessor sizes the worker gate. maxConcurrent <= 0 picks a default
// of 2x CPU cores capped at 32.
func NewProcessor(maxConcurrent int) *Processor {
	if maxConcurrent <= 0 {
		maxConcurrent = runtime.NumCPU() * 2
		if maxConcurrent > 32 {
			maxConcurrent = 32
		}
	}
	return &Processor{sem: make(chan struct{}, maxConcurrent)}
}

// Transform runs Transform under the concurrency gate. It returns early if
// ctx is done before a worker slot frees up.
func (p *Processor) Transform(ctx context.Context, b []byte, w, h int, format string, quality int) ([]byte, error) {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, imgerr.Wrap(imgerr.KindTransform, "transform canceled", ctx.Err())
	}
	defer func() { <-p.sem }()

	return Transform(b, w, h, format, quality)
}
