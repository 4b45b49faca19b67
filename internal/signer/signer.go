// Package signer implements canonicalization and HMAC authentication of
// transformation parameters. The canonical string it produces doubles as
// the cache key input, so it must be byte-stable regardless of the query
// order the client used.
package signer

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
	"time"

	"imagekit/internal/imgerr"
)

// SigParam is the query parameter carrying the signature. It is excluded
// from canonicalization so the signature never signs itself.
const SigParam = "sig"

// ExpiryParam holds the Unix epoch seconds after which a signature is
// rejected.
const ExpiryParam = "t"

// Canonicalize serializes params as k=v pairs joined by &, sorted by key
// (byte-wise). The sig parameter is omitted; keys with empty values are
// kept as "k=".
func Canonicalize(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == SigParam {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(params[k])
	}
	return b.String()
}

// Sign returns the lowercase hex HMAC-SHA256 of the canonical parameter
// string under secret.
func Sign(params map[string]string, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(Canonicalize(params)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks sig against the expected signature for params and enforces
// the optional t expiry. A nil return means the request is authentic and
// current.
func Verify(params map[string]string, sig string, secret []byte, now time.Time) error {
	if sig == "" {
		return imgerr.New(imgerr.KindMissingSignature, "missing signature")
	}

	expected := Sign(params, secret)
	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return imgerr.New(imgerr.KindInvalidSignature, "invalid signature")
	}

	if ts, ok := params[ExpiryParam]; ok {
		expiry, err := strconv.ParseInt(ts, 10, 64)
		if err != nil {
			return imgerr.New(imgerr.KindInvalidSignature, "invalid signature")
		}
		if expiry <= now.Unix() {
			return imgerr.New(imgerr.KindExpired, "signature expired")
		}
	}

	return nil
}
