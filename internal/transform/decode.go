package transform

import (
	"bytes"
	"encoding/binary"
	"errors"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"sort"

	"github.com/gen2brain/avif"
	ico "github.com/sergeymakinen/go-ico"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	xwebp "golang.org/x/image/webp"
)

var errUnknownFormat = errors.New("unknown image format")

// Decode sniffs b and dispatches to the matching decoder. SVG sources are
// handled separately by the Transform path because they have no fixed
// raster size.
func Decode(b []byte) (image.Image, error) {
	switch DetectFormat(b) {
	case "jpeg":
		return jpeg.Decode(bytes.NewReader(b))
	case "png":
		return png.Decode(bytes.NewReader(b))
	case "gif":
		return gif.Decode(bytes.NewReader(b))
	case "webp":
		return xwebp.Decode(bytes.NewReader(b))
	case "avif":
		return avif.Decode(bytes.NewReader(b))
	case "bmp":
		return bmp.Decode(bytes.NewReader(b))
	case "tiff":
		return tiff.Decode(bytes.NewReader(b))
	case "ico":
		return decodeICOLargest(b)
	}
	return nil, errUnknownFormat
}

// decodeICOLargest decodes an ICO container, preferring the largest and
// deepest entry. PNG-compressed entries win over BMP ones of the same area.
func decodeICOLargest(b []byte) (image.Image, error) {
	if len(b) < 6 {
		return nil, errors.New("ico: too small")
	}

	r := bytes.NewReader(b)
	var reserved, icotype, count uint16
	_ = binary.Read(r, binary.LittleEndian, &reserved)
	_ = binary.Read(r, binary.LittleEndian, &icotype)
	_ = binary.Read(r, binary.LittleEndian, &count)

	if icotype != 1 || count == 0 {
		return ico.Decode(bytes.NewReader(b))
	}

	type entry struct {
		w, h         int
		size, offset uint32
		isPNG        bool
		bpp          int
	}
	entries := make([]entry, 0, count)

	for i := 0; i < int(count); i++ {
		var e [16]byte
		if _, err := io.ReadFull(r, e[:]); err != nil {
			break
		}
		w, h := int(e[0]), int(e[1])
		if w == 0 {
			w = 256
		}
		if h == 0 {
			h = 256
		}
		bpp := int(e[6])
		if bpp == 0 {
			bpp = 32
		}
		entries = append(entries, entry{
			w: w, h: h,
			size:   binary.LittleEndian.Uint32(e[8:12]),
			offset: binary.LittleEndian.Uint32(e[12:16]),
			bpp:    bpp,
		})
	}

	if len(entries) == 0 {
		return ico.Decode(bytes.NewReader(b))
	}

	pngMagic := []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}
	for i := range entries {
		e := &entries[i]
		if e.size == 0 || int(e.offset+e.size) > len(b) {
			continue
		}
		slice := b[e.offset : e.offset+e.size]
		if len(slice) >= 8 && bytes.Equal(slice[:8], pngMagic) {
			e.isPNG = true
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		areaI := entries[i].w * entries[i].h
		areaJ := entries[j].w * entries[j].h
		if areaI != areaJ {
			return areaI > areaJ
		}
		if entries[i].isPNG != entries[j].isPNG {
			return entries[i].isPNG
		}
		return entries[i].bpp > entries[j].bpp
	})

	for _, e := range entries {
		if e.size == 0 || int(e.offset+e.size) > len(b) {
			continue
		}
		slice := b[e.offset : e.offset+e.size]
		if e.isPNG {
			if img, err := png.Decode(bytes.NewReader(slice)); err == nil {
				return img, nil
			}
		}
		if img, err := bmp.Decode(bytes.NewReader(slice)); err == nil {
			return img, nil
		}
	}

	return ico.Decode(bytes.NewReader(b))
}
