// Package handler wires the signer, fetcher, transformer and cache into the
// HTTP surface: /img (transform), /sign, /upload and /health. Components
// return typed errors; this is the boundary where they are logged and
// mapped to status codes.
package handler

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"imagekit/internal/cache"
	"imagekit/internal/config"
	"imagekit/internal/fetch"
	"imagekit/internal/imgerr"
	"imagekit/internal/security"
	"imagekit/internal/signer"
	"imagekit/internal/transform"
	"imagekit/pkg/logger"
	"imagekit/pkg/metrics"
)

const cacheControl = "public, max-age=31536000, s-maxage=86400, immutable, stale-if-error=86400, stale-while-revalidate=60"
const cdnCacheControl = "max-age=86400"

type Handler struct {
	cfg     config.Config
	cache   cache.Cache
	group   *cache.Group
	fetcher *fetch.Fetcher
	proc    *transform.Processor
	policy  *security.Policy
}

func New(cfg config.Config, c cache.Cache, f *fetch.Fetcher, p *transform.Processor) *Handler {
	return &Handler{
		cfg:     cfg,
		cache:   c,
		group:   cache.NewGroup(),
		fetcher: f,
		proc:    p,
		policy:  security.NewPolicy(cfg.SSRFProtect),
	}
}

// request is a validated parameter set for one transformation.
type request struct {
	url     string
	width   int
	height  int
	format  string
	quality int
}

// paramsFromQuery flattens the query into the parameter map that feeds
// canonicalization. The first value wins for repeated keys.
func paramsFromQuery(q url.Values) map[string]string {
	params := make(map[string]string, len(q))
	for k, vs := range q {
		if len(vs) > 0 {
			params[k] = vs[0]
		}
	}
	return params
}

// validate checks parameter ranges and resolves the effective output
// format. requireURL is false for uploads, which carry their own bytes.
func (h *Handler) validate(params map[string]string, requireURL bool) (request, error) {
	req := request{quality: config.DefaultQuality}

	if raw, ok := params["url"]; ok {
		if _, err := h.policy.ValidateSourceURL(raw); err != nil {
			return req, imgerr.Wrap(imgerr.KindInvalidArgument, "invalid source URL", err)
		}
		req.url = raw
	} else if requireURL {
		return req, imgerr.New(imgerr.KindInvalidArgument, "missing url parameter")
	}

	var err error
	if req.width, err = positiveInt(params, "w"); err != nil {
		return req, err
	}
	if req.height, err = positiveInt(params, "h"); err != nil {
		return req, err
	}

	if qs, ok := params["q"]; ok {
		q, err := strconv.Atoi(qs)
		if err != nil || q < 1 || q > 100 {
			return req, imgerr.New(imgerr.KindInvalidArgument, "q must be an integer between 1 and 100")
		}
		req.quality = q
	}

	if f, ok := params["f"]; ok {
		if !h.cfg.FormatAllowed(f) {
			return req, imgerr.New(imgerr.KindInvalidArgument, "requested format is not allowed")
		}
		req.format = f
	} else if h.cfg.DefaultFormat != "" {
		req.format = h.cfg.DefaultFormat
	} else {
		return req, imgerr.New(imgerr.KindInvalidArgument, "missing f parameter and no default format is configured")
	}

	return req, nil
}

func positiveInt(params map[string]string, key string) (int, error) {
	s, ok := params[key]
	if !ok {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, imgerr.New(imgerr.KindInvalidArgument, key+" must be a positive integer")
	}
	return n, nil
}

// Transform handles GET /img: verify, look up, and produce on miss.
func (h *Handler) Transform(w http.ResponseWriter, r *http.Request) {
	params := paramsFromQuery(r.URL.Query())
	sig := params[signer.SigParam]

	if err := signer.Verify(params, sig, h.cfg.Secret, time.Now()); err != nil {
		logger.Warn("img: signature rejected: %v", err)
		h.writeError(w, "img", err)
		return
	}

	req, err := h.validate(params, true)
	if err != nil {
		logger.Warn("img: bad request: %v", err)
		h.writeError(w, "img", err)
		return
	}

	canonical := signer.Canonicalize(params)
	key := h.cache.KeyFor(canonical)
	etag := h.cache.ETagFor(key)

	if r.Header.Get("If-None-Match") == etag {
		h.writeCacheHeaders(w, etag)
		w.WriteHeader(http.StatusNotModified)
		metrics.RequestsTotal.WithLabelValues("img", "304").Inc()
		return
	}

	if path, format, ok := h.cache.Get(key); ok {
		metrics.CacheHits.Inc()
		h.serveArtifact(w, "img", path, format, etag)
		return
	}
	metrics.CacheMisses.Inc()

	res, shared, err := h.group.Do(key, func() (cache.Result, error) {
		// another flight may have landed between Get and Do
		if path, format, ok := h.cache.Get(key); ok {
			return cache.Result{Path: path, Format: format}, nil
		}
		return h.produce(r.Context(), key, req)
	})
	if err != nil {
		logger.Warn("img: produce failed for key %s: %v", key, err)
		h.writeError(w, "img", err)
		return
	}
	if shared {
		metrics.SingleflightMerges.Inc()
	}

	h.serveArtifact(w, "img", res.Path, res.Format, etag)
}

// produce runs the miss path: fetch, transform, cache write. It is detached
// from the requester's cancellation so a winner disconnect does not fail
// the waiters; the fetch deadline still bounds the work.
func (h *Handler) produce(reqCtx context.Context, key string, req request) (cache.Result, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(reqCtx), h.cfg.FetchTimeout)
	defer cancel()

	body, _, err := h.fetcher.Fetch(ctx, req.url, h.cfg.MaxInputSize)
	if err != nil {
		metrics.FetchErrors.Inc()
		return cache.Result{}, err
	}
	metrics.FetchBytes.Add(float64(len(body)))

	start := time.Now()
	encoded, err := h.proc.Transform(ctx, body, req.width, req.height, req.format, req.quality)
	if err != nil {
		return cache.Result{}, err
	}
	metrics.TransformDuration.WithLabelValues(req.format).Observe(time.Since(start).Seconds())

	path, err := h.cache.Put(key, encoded, req.format)
	if err != nil {
		return cache.Result{}, err
	}
	return cache.Result{Path: path, Format: req.format}, nil
}

func (h *Handler) serveArtifact(w http.ResponseWriter, endpoint, path, format, etag string) {
	f, err := os.Open(path)
	if err != nil {
		logger.Error("%s: cannot open artifact %s: %v", endpoint, path, err)
		h.writeError(w, endpoint, imgerr.Wrap(imgerr.KindCache, "cache read failed", err))
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		logger.Error("%s: cannot stat artifact %s: %v", endpoint, path, err)
		h.writeError(w, endpoint, imgerr.Wrap(imgerr.KindCache, "cache read failed", err))
		return
	}

	h.writeCacheHeaders(w, etag)
	w.Header().Set("Content-Type", h.cache.ContentTypeFor(format))
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	w.WriteHeader(http.StatusOK)
	io.Copy(w, f)
	metrics.RequestsTotal.WithLabelValues(endpoint, "200").Inc()
}

func (h *Handler) writeCacheHeaders(w http.ResponseWriter, etag string) {
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", cacheControl)
	w.Header().Set("CDN-Cache-Control", cdnCacheControl)
	w.Header().Set("Vary", "Accept-Encoding")
}

func (h *Handler) writeError(w http.ResponseWriter, endpoint string, err error) {
	status := imgerr.HTTPStatus(err)
	http.Error(w, imgerr.Message(err), status)
	metrics.RequestsTotal.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
}

// Health is a liveness probe.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, "ok\n")
}
