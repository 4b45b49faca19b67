package transform

import (
	"bytes"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"

	"github.com/gen2brain/avif"
	ico "github.com/sergeymakinen/go-ico"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	xwebp "golang.org/x/image/webp"
)

// DetectFormat identifies an image container from its leading bytes.
// Returns one of "jpeg", "png", "gif", "webp", "avif", "bmp", "tiff",
// "ico", "svg", or "" when the prefix matches nothing known.
func DetectFormat(b []byte) string {
	switch {
	case len(b) >= 3 && b[0] == 0xFF && b[1] == 0xD8 && b[2] == 0xFF:
		return "jpeg"
	case len(b) >= 8 && bytes.Equal(b[:8], []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}):
		return "png"
	case len(b) >= 4 && bytes.Equal(b[:4], []byte("GIF8")):
		return "gif"
	case len(b) >= 12 && bytes.Equal(b[:4], []byte("RIFF")) && bytes.Equal(b[8:12], []byte("WEBP")):
		return "webp"
	case isAVIFBrand(b):
		return "avif"
	case len(b) >= 2 && b[0] == 'B' && b[1] == 'M':
		return "bmp"
	case len(b) >= 4 && (bytes.Equal(b[:4], []byte{0x49, 0x49, 0x2A, 0x00}) || bytes.Equal(b[:4], []byte{0x4D, 0x4D, 0x00, 0x2A})):
		return "tiff"
	case len(b) >= 4 && b[0] == 0 && b[1] == 0 && b[2] == 1 && b[3] == 0:
		return "ico"
	case looksLikeSVG(b):
		return "svg"
	}
	return ""
}

func isAVIFBrand(b []byte) bool {
	if len(b) < 12 || !bytes.Equal(b[4:8], []byte("ftyp")) {
		return false
	}
	brand := string(b[8:12])
	return brand == "avif" || brand == "avis"
}

func looksLikeSVG(b []byte) bool {
	head := b
	if len(head) > 512 {
		head = head[:512]
	}
	head = bytes.TrimLeft(head, " \t\r\n\xef\xbb\xbf")
	return bytes.HasPrefix(head, []byte("<svg")) ||
		(bytes.HasPrefix(head, []byte("<?xml")) && bytes.Contains(head, []byte("<svg")))
}

// Inspect sniffs b and returns its format and pixel dimensions without a
// full decode. SVG dimensions are the intrinsic size of the document.
func Inspect(b []byte) (format string, w, h int, err error) {
	format = DetectFormat(b)
	if format == "" {
		return "", 0, 0, errUnknownFormat
	}

	if format == "svg" {
		w, h, err = svgIntrinsicSize(b)
		return format, w, h, err
	}

	var cfg image.Config
	r := bytes.NewReader(b)
	switch format {
	case "jpeg":
		cfg, err = jpeg.DecodeConfig(r)
	case "png":
		cfg, err = png.DecodeConfig(r)
	case "gif":
		cfg, err = gif.DecodeConfig(r)
	case "webp":
		cfg, err = xwebp.DecodeConfig(r)
	case "avif":
		cfg, err = avif.DecodeConfig(r)
	case "bmp":
		cfg, err = bmp.DecodeConfig(r)
	case "tiff":
		cfg, err = tiff.DecodeConfig(r)
	case "ico":
		cfg, err = ico.DecodeConfig(r)
	}
	if err != nil {
		return format, 0, 0, err
	}
	return format, cfg.Width, cfg.Height, nil
}
