// Package config holds the immutable service configuration. Values are
// loaded from the environment (a .env file is honored when present) and may
// be overridden by flags in cmd/server before Validate is called.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultMaxInputSize = 8 << 20 // 8MiB
	DefaultQuality      = 80
	DefaultFetchTimeout = 30 * time.Second
)

// Formats the service can encode to.
var KnownFormats = []string{"jpeg", "webp", "avif"}

type Config struct {
	// Secret is the HMAC key for URL signing. Required.
	Secret []byte

	// CacheDir is the directory holding cached artifacts. Created on startup.
	CacheDir string

	// MaxInputSize caps the source image size in bytes.
	MaxInputSize int64

	// AllowedFormats is the subset of KnownFormats clients may request.
	AllowedFormats []string

	// DefaultFormat is used when the f parameter is omitted. May be empty,
	// in which case requests without f are rejected.
	DefaultFormat string

	// FetchTimeout is the hard deadline for upstream downloads.
	FetchTimeout time.Duration

	// SSRFProtect rejects source URLs resolving to private, loopback or
	// link-local hosts and validates IPs again at dial time.
	SSRFProtect bool

	Port string
}

// Load builds a Config from the environment. Flag overrides are applied by
// the caller before Validate.
func Load() Config {
	godotenv.Load()

	return Config{
		Secret:         []byte(os.Getenv("IMAGEKIT_SECRET")),
		CacheDir:       getEnv("IMAGEKIT_CACHE_DIR", "./cache_data"),
		MaxInputSize:   getEnvInt64("IMAGEKIT_MAX_INPUT_SIZE", DefaultMaxInputSize),
		AllowedFormats: splitList(getEnv("IMAGEKIT_FORMATS", "jpeg,webp,avif")),
		DefaultFormat:  getEnv("IMAGEKIT_DEFAULT_FORMAT", "webp"),
		FetchTimeout:   getEnvDuration("IMAGEKIT_FETCH_TIMEOUT", DefaultFetchTimeout),
		SSRFProtect:    getEnvBool("IMAGEKIT_SSRF_PROTECT", true),
		Port:           getEnv("PORT", "8080"),
	}
}

// Validate checks the invariants the rest of the service relies on.
func (c Config) Validate() error {
	if len(c.Secret) == 0 {
		return errors.New("config: secret must not be empty (set IMAGEKIT_SECRET)")
	}
	if c.CacheDir == "" {
		return errors.New("config: cache dir must not be empty")
	}
	if c.MaxInputSize <= 0 {
		return errors.New("config: max input size must be positive")
	}
	if len(c.AllowedFormats) == 0 {
		return errors.New("config: at least one allowed format is required")
	}
	for _, f := range c.AllowedFormats {
		if !isKnownFormat(f) {
			return fmt.Errorf("config: unknown format %q", f)
		}
	}
	if c.DefaultFormat != "" && !c.FormatAllowed(c.DefaultFormat) {
		return fmt.Errorf("config: default format %q is not in the allowed set", c.DefaultFormat)
	}
	return nil
}

// FormatAllowed reports whether clients may request format f.
func (c Config) FormatAllowed(f string) bool {
	for _, allowed := range c.AllowedFormats {
		if f == allowed {
			return true
		}
	}
	return false
}

func isKnownFormat(f string) bool {
	for _, k := range KnownFormats {
		if f == k {
			return true
		}
	}
	return false
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		val, err := strconv.ParseBool(value)
		if err == nil {
			return val
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if value, ok := os.LookupEnv(key); ok {
		val, err := strconv.ParseInt(value, 10, 64)
		if err == nil {
			return val
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		val, err := time.ParseDuration(value)
		if err == nil {
			return val
		}
	}
	return fallback
}
