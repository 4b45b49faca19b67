// The sign tool creates signed transform URLs for a source image, mirroring
// the /sign endpoint for operators and scripts.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"imagekit/internal/signer"
)

var (
	key     = flag.String("key", os.Getenv("IMAGEKIT_SECRET"), "signing key, or file containing key prefixed with '@'")
	width   = flag.Int("w", 0, "target width in pixels")
	height  = flag.Int("h", 0, "target height in pixels")
	format  = flag.String("f", "", "output format (jpeg, webp, avif)")
	quality = flag.Int("q", 0, "quality (1-100)")
	expiry  = flag.Int64("t", 0, "unix timestamp after which the URL is invalid")
)

func main() {
	flag.Parse()
	u := flag.Arg(0)
	if u == "" {
		fmt.Fprintln(os.Stderr, "usage: sign [flags] <source-url>")
		os.Exit(1)
	}

	k, err := parseKey(*key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error parsing key: %v\n", err)
		os.Exit(1)
	}
	if len(k) == 0 {
		fmt.Fprintln(os.Stderr, "no signing key (set -key or IMAGEKIT_SECRET)")
		os.Exit(1)
	}

	params := map[string]string{"url": u}
	if *width > 0 {
		params["w"] = strconv.Itoa(*width)
	}
	if *height > 0 {
		params["h"] = strconv.Itoa(*height)
	}
	if *format != "" {
		params["f"] = *format
	}
	if *quality > 0 {
		params["q"] = strconv.Itoa(*quality)
	}
	if *expiry > 0 {
		params["t"] = strconv.FormatInt(*expiry, 10)
	}

	canonical := signer.Canonicalize(params)
	sig := signer.Sign(params, k)

	fmt.Printf("canonical: %s\n", canonical)
	fmt.Printf("signature: %s\n", sig)
	fmt.Printf("url: /img?%s&sig=%s\n", canonical, sig)
}

func parseKey(s string) ([]byte, error) {
	if strings.HasPrefix(s, "@") {
		return os.ReadFile(s[1:])
	}
	return []byte(s), nil
}
