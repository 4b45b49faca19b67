package transform

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

func TestResizeDims(t *testing.T) {
	tests := []struct {
		name         string
		origW, origH int
		w, h         int
		wantW, wantH int
	}{
		{"no bounds keeps size", 200, 100, 0, 0, 200, 100},
		{"width only scales height", 200, 100, 50, 0, 50, 25},
		{"height only scales width", 200, 100, 0, 25, 50, 25},
		{"both bounds, width limits", 200, 100, 50, 100, 50, 25},
		{"both bounds, height limits", 200, 100, 400, 25, 50, 25},
		{"box larger than source scales up", 200, 100, 400, 400, 400, 200},
		{"extreme shrink clamps to 1", 1000, 2, 10, 10, 10, 1},
		{"tall source in square box", 100, 400, 50, 50, 13, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotW, gotH := resizeDims(tt.origW, tt.origH, tt.w, tt.h)
			if gotW != tt.wantW || gotH != tt.wantH {
				t.Errorf("resizeDims(%d, %d, %d, %d) = %dx%d, want %dx%d",
					tt.origW, tt.origH, tt.w, tt.h, gotW, gotH, tt.wantW, tt.wantH)
			}
		})
	}
}

func TestResizeDimsFitsBox(t *testing.T) {
	// bounded output must never exceed the box
	dims := []struct{ origW, origH, w, h int }{
		{1920, 1080, 300, 300},
		{1080, 1920, 300, 300},
		{333, 777, 100, 50},
		{7, 5, 3, 2},
	}
	for _, d := range dims {
		gotW, gotH := resizeDims(d.origW, d.origH, d.w, d.h)
		if gotW > d.w || gotH > d.h {
			t.Errorf("resizeDims(%d, %d, %d, %d) = %dx%d exceeds box",
				d.origW, d.origH, d.w, d.h, gotW, gotH)
		}
		if gotW < 1 || gotH < 1 {
			t.Errorf("resizeDims(%d, %d, %d, %d) = %dx%d has zero dimension",
				d.origW, d.origH, d.w, d.h, gotW, gotH)
		}
	}
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"png", pngMagicBytes(), "png"},
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0}, "jpeg"},
		{"gif", []byte("GIF89a"), "gif"},
		{"bmp", []byte("BMxxxx"), "bmp"},
		{"ico", []byte{0, 0, 1, 0, 1, 0}, "ico"},
		{"webp", append([]byte("RIFF\x00\x00\x00\x00"), []byte("WEBP")...), "webp"},
		{"avif", append([]byte{0, 0, 0, 0x1C}, []byte("ftypavif")...), "avif"},
		{"tiff little endian", []byte{0x49, 0x49, 0x2A, 0x00}, "tiff"},
		{"svg", []byte(`<svg xmlns="http://www.w3.org/2000/svg"></svg>`), "svg"},
		{"svg with xml decl", []byte("<?xml version=\"1.0\"?>\n<svg></svg>"), "svg"},
		{"html is not svg", []byte("<html><body>nope</body></html>"), ""},
		{"garbage", []byte("hello world"), ""},
		{"empty", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectFormat(tt.data); got != tt.want {
				t.Errorf("DetectFormat = %q, want %q", got, tt.want)
			}
		})
	}
}

func pngMagicBytes() []byte {
	var buf bytes.Buffer
	png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 1, 1)))
	return buf.Bytes()
}

// testImage builds a gradient with some structure, so lossy encoders have
// something to chew on.
func testImage(w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{
				R: uint8(x * 255 / w),
				G: uint8(y * 255 / h),
				B: uint8((x ^ y) & 0xFF),
				A: 255,
			})
		}
	}
	var buf bytes.Buffer
	png.Encode(&buf, img)
	return buf.Bytes()
}

func TestTransformResizeToJPEG(t *testing.T) {
	src := testImage(200, 100)

	out, err := Transform(src, 50, 0, "jpeg", 75)
	if err != nil {
		t.Fatalf("Transform failed: %v", err)
	}

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("Output is not a valid JPEG: %v", err)
	}
	if cfg.Width != 50 || cfg.Height != 25 {
		t.Errorf("Expected 50x25 output, got %dx%d", cfg.Width, cfg.Height)
	}
}

func TestTransformNoResize(t *testing.T) {
	src := testImage(64, 48)

	out, err := Transform(src, 0, 0, "jpeg", 80)
	if err != nil {
		t.Fatalf("Transform failed: %v", err)
	}

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("Output is not a valid JPEG: %v", err)
	}
	if cfg.Width != 64 || cfg.Height != 48 {
		t.Errorf("Expected 64x48 output, got %dx%d", cfg.Width, cfg.Height)
	}
}

func TestTransformBadInput(t *testing.T) {
	if _, err := Transform([]byte("definitely not an image"), 50, 0, "jpeg", 80); err == nil {
		t.Error("Expected decode error for garbage input")
	}
}

func TestTransformUnsupportedFormat(t *testing.T) {
	if _, err := Transform(testImage(10, 10), 0, 0, "tiff", 80); err == nil {
		t.Error("Expected error for unsupported output format")
	}
}

func TestEncodeQualityAffectsJPEGSize(t *testing.T) {
	src := testImage(256, 256)

	low, err := Transform(src, 0, 0, "jpeg", 20)
	if err != nil {
		t.Fatalf("Transform q=20 failed: %v", err)
	}
	high, err := Transform(src, 0, 0, "jpeg", 95)
	if err != nil {
		t.Fatalf("Transform q=95 failed: %v", err)
	}

	if len(low) >= len(high) {
		t.Errorf("Expected q=20 smaller than q=95: %d vs %d", len(low), len(high))
	}
}

func TestEncodeQualityAffectsWebPSize(t *testing.T) {
	src := testImage(256, 256)

	low, err := Transform(src, 0, 0, "webp", 20)
	if err != nil {
		t.Fatalf("Transform q=20 failed: %v", err)
	}
	high, err := Transform(src, 0, 0, "webp", 80)
	if err != nil {
		t.Fatalf("Transform q=80 failed: %v", err)
	}

	if len(low) >= len(high) {
		t.Errorf("Expected lossy webp at q=20 smaller than q=80: %d vs %d", len(low), len(high))
	}
	t.Logf("webp sizes: q=20 %d bytes, q=80 %d bytes", len(low), len(high))
}

func TestInspect(t *testing.T) {
	format, w, h, err := Inspect(testImage(123, 45))
	if err != nil {
		t.Fatalf("Inspect failed: %v", err)
	}
	if format != "png" {
		t.Errorf("Expected png, got %s", format)
	}
	if w != 123 || h != 45 {
		t.Errorf("Expected 123x45, got %dx%d", w, h)
	}

	if _, _, _, err := Inspect([]byte("not an image")); err == nil {
		t.Error("Expected error for junk bytes")
	}
}

func TestExt(t *testing.T) {
	tests := []struct {
		format string
		want   string
	}{
		{"jpeg", "jpg"},
		{"webp", "webp"},
		{"avif", "avif"},
	}
	for _, tt := range tests {
		if got := Ext(tt.format); got != tt.want {
			t.Errorf("Ext(%s) = %s, want %s", tt.format, got, tt.want)
		}
	}
}
