// Package cache maps transformation fingerprints to encoded artifacts on
// disk. Artifacts are immutable once written; the temp-then-rename write
// discipline guarantees readers never observe a partial file.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"imagekit/internal/imgerr"
)

const tmpPattern = "imagekit_tmp_*"

// extensions the store recognizes, in lookup order
var knownExts = []string{"jpg", "webp", "avif"}

var extFormat = map[string]string{
	"jpg":  "jpeg",
	"webp": "webp",
	"avif": "avif",
}

var formatExt = map[string]string{
	"jpeg": "jpg",
	"webp": "webp",
	"avif": "avif",
}

// Cache is the capability set the pipeline depends on. DiskCache is the
// on-disk realization; alternate backends satisfy the same contract.
type Cache interface {
	// KeyFor derives the cache key from a canonical parameter string.
	KeyFor(canonical string) string

	// Get returns the stored artifact path and format for key, or ok=false.
	Get(key string) (path, format string, ok bool)

	// Put atomically stores data as the artifact for key.
	Put(key string, data []byte, format string) (path string, err error)

	// ETagFor returns the strong entity tag for key.
	ETagFor(key string) string

	// ContentTypeFor maps an output format to its MIME type.
	ContentTypeFor(format string) string
}

// DiskCache stores one file per key under a flat directory,
// named <key>.<ext>.
type DiskCache struct {
	dir string
}

// New creates the cache directory if needed and sweeps temp files leaked by
// a previous crash.
func New(dir string) (*DiskCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, imgerr.Wrap(imgerr.KindCache, "cannot create cache dir", err)
	}
	c := &DiskCache{dir: dir}
	c.sweepTemp()
	return c, nil
}

// Dir returns the cache directory.
func (c *DiskCache) Dir() string { return c.dir }

func (c *DiskCache) KeyFor(canonical string) string {
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

func (c *DiskCache) Get(key string) (string, string, bool) {
	for _, ext := range knownExts {
		path := filepath.Join(c.dir, key+"."+ext)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, extFormat[ext], true
		}
	}
	return "", "", false
}

func (c *DiskCache) Put(key string, data []byte, format string) (string, error) {
	ext, ok := formatExt[format]
	if !ok {
		return "", imgerr.New(imgerr.KindCache, fmt.Sprintf("no extension for format %q", format))
	}
	dest := filepath.Join(c.dir, key+"."+ext)

	tmp, err := os.CreateTemp(c.dir, tmpPattern)
	if err != nil {
		return "", imgerr.Wrap(imgerr.KindCache, "cache write failed", err)
	}
	tmpName := tmp.Name()
	defer func() {
		tmp.Close()
		os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		return "", imgerr.Wrap(imgerr.KindCache, "cache write failed", err)
	}
	if err := tmp.Sync(); err != nil {
		return "", imgerr.Wrap(imgerr.KindCache, "cache write failed", err)
	}
	if err := tmp.Close(); err != nil {
		return "", imgerr.Wrap(imgerr.KindCache, "cache write failed", err)
	}

	// rename is atomic on POSIX; re-putting the same key is a no-op race
	if err := os.Rename(tmpName, dest); err != nil {
		return "", imgerr.Wrap(imgerr.KindCache, "cache write failed", err)
	}
	return dest, nil
}

func (c *DiskCache) ETagFor(key string) string {
	return `"` + key + `"`
}

func (c *DiskCache) ContentTypeFor(format string) string {
	switch format {
	case "jpeg":
		return "image/jpeg"
	case "webp":
		return "image/webp"
	case "avif":
		return "image/avif"
	}
	return "application/octet-stream"
}

// sweepTemp removes temp files left behind by writers that were killed
// before their rename.
func (c *DiskCache) sweepTemp() {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return
	}
	prefix := strings.TrimSuffix(tmpPattern, "*")
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), prefix) {
			os.Remove(filepath.Join(c.dir, e.Name()))
		}
	}
}
