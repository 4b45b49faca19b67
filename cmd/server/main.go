// imagekit server: signs transformation URLs and serves transformed images
// from a content-addressed disk cache.
package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/net/netutil"

	"imagekit/internal/cache"
	"imagekit/internal/config"
	"imagekit/internal/fetch"
	"imagekit/internal/handler"
	"imagekit/internal/security"
	"imagekit/internal/transform"
	"imagekit/pkg/logger"
	"imagekit/pkg/metrics"
	"imagekit/pkg/ratelimit"
)

func main() {
	cfg := config.Load()

	port := flag.String("port", cfg.Port, "TCP port to listen on")
	cacheDir := flag.String("cache-dir", cfg.CacheDir, "directory for cached artifacts")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	maxInputSize := flag.Int64("max-input-size", cfg.MaxInputSize, "maximum source image size in bytes")
	formats := flag.String("formats", strings.Join(cfg.AllowedFormats, ","), "comma separated list of allowed output formats")
	defaultFormat := flag.String("default-format", cfg.DefaultFormat, "output format when f is omitted (empty to require f)")
	ssrfProtect := flag.Bool("ssrf-protect", cfg.SSRFProtect, "reject private/loopback source hosts")
	workers := flag.Int("transform-workers", 0, "max concurrent transforms (0 = 2x CPU cores)")
	globalRate := flag.Int("rate", 0, "global requests per second (0 = unlimited)")
	globalBurst := flag.Int("rate-burst", 0, "global burst size")
	ipRate := flag.Int("ip-rate", 0, "per-IP requests per second (0 = unlimited)")
	ipBurst := flag.Int("ip-burst", 0, "per-IP burst size")
	maxConns := flag.Int("max-conns", 0, "max concurrent connections (0 = unlimited)")
	flag.Parse()

	logger.SetLevel(logger.ParseLevel(*logLevel))
	logger.Init()

	cfg.Port = *port
	cfg.CacheDir = *cacheDir
	cfg.MaxInputSize = *maxInputSize
	if *formats != "" {
		cfg.AllowedFormats = strings.Split(*formats, ",")
	}
	cfg.DefaultFormat = *defaultFormat
	cfg.SSRFProtect = *ssrfProtect

	if err := cfg.Validate(); err != nil {
		logger.Error("%v", err)
		os.Exit(1)
	}

	diskCache, err := cache.New(cfg.CacheDir)
	if err != nil {
		logger.Error("cache init failed: %v", err)
		os.Exit(1)
	}

	h := handler.New(cfg,
		diskCache,
		fetch.New(cfg.FetchTimeout, security.NewPolicy(cfg.SSRFProtect)),
		transform.NewProcessor(*workers),
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/img", h.Transform)
	mux.HandleFunc("/sign", h.Sign)
	mux.HandleFunc("/upload", h.Upload)
	mux.HandleFunc("/health", h.Health)
	mux.Handle("/metrics", metrics.Handler())

	var root http.Handler = mux
	limiter := ratelimit.NewLimiter(*globalRate, *globalBurst, *ipRate, *ipBurst)
	if limiter != nil {
		defer limiter.Stop()
		root = limiter.Middleware(root)
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           root,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", server.Addr)
	if err != nil {
		logger.Error("listen failed: %v", err)
		os.Exit(1)
	}
	if *maxConns > 0 {
		ln = netutil.LimitListener(ln, *maxConns)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	logger.Info("imagekit listening on %s (cache: %s)", server.Addr, cfg.CacheDir)
	if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed: %v", err)
		os.Exit(1)
	}
	logger.Info("imagekit stopped")
}
