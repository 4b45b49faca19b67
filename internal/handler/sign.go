package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"imagekit/internal/imgerr"
	"imagekit/internal/signer"
	"imagekit/pkg/logger"
	"imagekit/pkg/metrics"
)

// signResponse is the body of a successful GET /sign.
type signResponse struct {
	Canonical string `json:"canonical"`
	Sig       string `json:"sig"`
	SignedURL string `json:"signed_url"`
}

// Sign handles GET /sign: it canonicalizes the supplied parameters, signs
// them with the server secret and returns the ready-to-use transform URL.
func (h *Handler) Sign(w http.ResponseWriter, r *http.Request) {
	params := paramsFromQuery(r.URL.Query())
	// a stray sig has no business in the set being signed
	delete(params, signer.SigParam)

	if _, err := h.validate(params, true); err != nil {
		logger.Warn("sign: bad request: %v", err)
		h.writeError(w, "sign", err)
		return
	}

	if ts, ok := params[signer.ExpiryParam]; ok {
		// reject unusable expiries now rather than at verify time
		if err := checkExpiryParam(ts, time.Now()); err != nil {
			logger.Warn("sign: bad request: %v", err)
			h.writeError(w, "sign", err)
			return
		}
	}

	canonical := signer.Canonicalize(params)
	sig := signer.Sign(params, h.cfg.Secret)

	resp := signResponse{
		Canonical: canonical,
		Sig:       sig,
		SignedURL: "/img?" + canonical + "&" + signer.SigParam + "=" + sig,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
	metrics.RequestsTotal.WithLabelValues("sign", "200").Inc()
}

func checkExpiryParam(ts string, now time.Time) error {
	expiry, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return imgerr.New(imgerr.KindInvalidArgument, "t must be an integer unix timestamp")
	}
	if expiry <= now.Unix() {
		return imgerr.New(imgerr.KindInvalidArgument, "t is already in the past")
	}
	return nil
}
