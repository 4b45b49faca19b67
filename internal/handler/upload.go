package handler

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"imagekit/internal/imgerr"
	"imagekit/pkg/logger"
	"imagekit/pkg/metrics"
)

// multipart bookkeeping on top of the image itself
const uploadOverhead = 1 << 20

// Upload handles POST /upload: one-shot transformation of client-provided
// bytes. No signature, no cache; the response is never stored downstream.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		metrics.RequestsTotal.WithLabelValues("upload", "405").Inc()
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxInputSize+uploadOverhead)
	if err := r.ParseMultipartForm(h.cfg.MaxInputSize + uploadOverhead); err != nil {
		h.writeError(w, "upload", imgerr.Wrap(imgerr.KindInvalidArgument, "invalid multipart body", err))
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		h.writeError(w, "upload", imgerr.New(imgerr.KindInvalidArgument, "missing file field"))
		return
	}
	defer file.Close()

	body, err := io.ReadAll(io.LimitReader(file, h.cfg.MaxInputSize+1))
	if err != nil {
		h.writeError(w, "upload", imgerr.Wrap(imgerr.KindInvalidArgument, "cannot read file field", err))
		return
	}
	if int64(len(body)) > h.cfg.MaxInputSize {
		h.writeError(w, "upload", imgerr.New(imgerr.KindTooLarge, "uploaded image exceeds size limit"))
		return
	}

	params := make(map[string]string)
	for _, key := range []string{"w", "h", "f", "q"} {
		if v := r.FormValue(key); v != "" {
			params[key] = v
		}
	}

	req, err := h.validate(params, false)
	if err != nil {
		logger.Warn("upload: bad request: %v", err)
		h.writeError(w, "upload", err)
		return
	}

	start := time.Now()
	encoded, err := h.proc.Transform(r.Context(), body, req.width, req.height, req.format, req.quality)
	if err != nil {
		logger.Warn("upload: transform failed: %v", err)
		h.writeError(w, "upload", err)
		return
	}
	metrics.TransformDuration.WithLabelValues(req.format).Observe(time.Since(start).Seconds())

	w.Header().Set("Content-Type", h.cache.ContentTypeFor(req.format))
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Length", strconv.Itoa(len(encoded)))
	w.WriteHeader(http.StatusOK)
	w.Write(encoded)
	metrics.RequestsTotal.WithLabelValues("upload", "200").Inc()
}
