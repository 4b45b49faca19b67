package fetch

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"imagekit/internal/imgerr"
	"imagekit/internal/security"
	"imagekit/internal/transform"
)

const (
	UABrowser = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/141.0.0.0 Safari/537.36"

	maxRedirects = 8
)

// Fetcher downloads source images with a byte cap and MIME enforcement.
type Fetcher struct {
	client *http.Client
}

// New builds a Fetcher with the given upstream deadline. When policy
// protects private hosts, every dial revalidates the resolved addresses
// through it.
func New(timeout time.Duration, policy *security.Policy) *Fetcher {
	transport := &http.Transport{
		ForceAttemptHTTP2:   true,
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConnsPerHost: 4,
	}
	if policy.ProtectsPrivate() {
		transport.DialContext = policy.DialContext
	}

	return &Fetcher{
		client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) > maxRedirects {
					return errors.New("too many redirects")
				}
				if !security.AllowedScheme(req.URL) {
					return errors.New("blocked redirect scheme")
				}
				return nil
			},
		},
	}
}

// Fetch downloads url and returns the body bytes and upstream content type.
// It fails with TooLarge the moment the (decompressed) body exceeds
// maxBytes, with NotAnImage when the upstream MIME type is not image/* or
// the bytes do not carry a decodable image header, and with Upstream on
// non-2xx responses or network errors.
func (f *Fetcher) Fetch(ctx context.Context, url string, maxBytes int64) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", imgerr.Wrap(imgerr.KindInvalidArgument, "bad source URL", err)
	}
	req.Header.Set("User-Agent", UABrowser)
	req.Header.Set("Accept", "image/*,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Encoding", "gzip")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", imgerr.Wrap(imgerr.KindUpstream, "upstream fetch failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", imgerr.New(imgerr.KindUpstream, fmt.Sprintf("upstream returned status %d", resp.StatusCode))
	}

	ct := resp.Header.Get("Content-Type")
	if !isImageMIME(ct) {
		return nil, "", imgerr.New(imgerr.KindNotAnImage, "upstream content is not an image")
	}

	body, err := readBounded(resp, maxBytes)
	if err != nil {
		return nil, "", err
	}

	// a truthful header can still sit on top of junk bytes
	format, w, h, err := transform.Inspect(body)
	if err != nil {
		return nil, "", imgerr.New(imgerr.KindNotAnImage, "upstream bytes are not a decodable image")
	}
	if format != "svg" && (w <= 0 || h <= 0) {
		return nil, "", imgerr.New(imgerr.KindNotAnImage, "upstream image has zero dimensions")
	}

	return body, ct, nil
}

func isImageMIME(ct string) bool {
	mediaType := strings.TrimSpace(strings.SplitN(ct, ";", 2)[0])
	return strings.HasPrefix(strings.ToLower(mediaType), "image/")
}

func readBounded(resp *http.Response, maxBytes int64) ([]byte, error) {
	var reader io.Reader = resp.Body
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, imgerr.Wrap(imgerr.KindUpstream, "upstream sent bad gzip", err)
		}
		defer zr.Close()
		reader = zr
	}

	// read one byte past the cap so an exact overrun is detectable
	body, err := io.ReadAll(io.LimitReader(reader, maxBytes+1))
	if err != nil {
		return nil, imgerr.Wrap(imgerr.KindUpstream, "upstream read failed", err)
	}
	if int64(len(body)) > maxBytes {
		return nil, imgerr.New(imgerr.KindTooLarge, "source image exceeds size limit")
	}
	return body, nil
}
