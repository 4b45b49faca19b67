package transform

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"math"
	"strings"

	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers"
)

// canvas sizes are in mm; intrinsic pixel size assumes CSS 96 DPI.
const svgDPI = 96.0

func svgIntrinsicSize(svgBytes []byte) (int, int, error) {
	c, err := canvas.ParseSVG(bytes.NewReader(preprocessSVG(svgBytes)))
	if err != nil {
		return 0, 0, fmt.Errorf("parse svg: %w", err)
	}
	w, h := c.Size()
	if w <= 0 || h <= 0 {
		return 0, 0, fmt.Errorf("invalid svg dimensions: %v x %v", w, h)
	}
	return int(math.Round(w / 25.4 * svgDPI)), int(math.Round(h / 25.4 * svgDPI)), nil
}

// rasterizeSVG renders an SVG document to a raster image of width x height
// pixels.
func rasterizeSVG(svgBytes []byte, width, height int) (image.Image, error) {
	c, err := canvas.ParseSVG(bytes.NewReader(preprocessSVG(svgBytes)))
	if err != nil {
		return nil, fmt.Errorf("parse svg: %w", err)
	}

	svgW, svgH := c.Size()
	if svgW <= 0 || svgH <= 0 {
		return nil, fmt.Errorf("invalid svg dimensions: %v x %v", svgW, svgH)
	}

	// Pick the DPI that reaches the target pixel size.
	dpiX := float64(width) / (svgW / 25.4)
	dpiY := float64(height) / (svgH / 25.4)
	dpi := math.Min(dpiX, dpiY)

	var buf bytes.Buffer
	if err := c.Write(&buf, renderers.PNG(canvas.DPI(dpi))); err != nil {
		return nil, fmt.Errorf("render svg: %w", err)
	}
	if buf.Len() == 0 {
		return nil, fmt.Errorf("svg rendered to empty buffer")
	}

	img, err := png.Decode(&buf)
	if err != nil {
		return nil, fmt.Errorf("decode rendered svg: %w", err)
	}
	return img, nil
}

// preprocessSVG fixes common SVG issues that cause rendering problems.
func preprocessSVG(data []byte) []byte {
	s := string(data)

	if !strings.Contains(s, "xmlns") && strings.Contains(s, "<svg") {
		s = strings.Replace(s, "<svg", `<svg xmlns="http://www.w3.org/2000/svg"`, 1)
	}

	// currentColor has no meaning outside a host document
	s = strings.ReplaceAll(s, "currentColor", "#000000")

	return []byte(s)
}
