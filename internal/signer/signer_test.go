package signer

import (
	"errors"
	"testing"
	"time"

	"imagekit/internal/imgerr"
)

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		name   string
		params map[string]string
		want   string
	}{
		{
			name: "sorted by key",
			params: map[string]string{
				"url": "https://e.example/a.jpg",
				"w":   "400",
				"f":   "webp",
				"q":   "80",
			},
			want: "f=webp&q=80&url=https://e.example/a.jpg&w=400",
		},
		{
			name: "sig is excluded",
			params: map[string]string{
				"url": "https://e.example/a.jpg",
				"sig": "deadbeef",
			},
			want: "url=https://e.example/a.jpg",
		},
		{
			name: "empty values are kept",
			params: map[string]string{
				"url": "https://e.example/a.jpg",
				"f":   "",
			},
			want: "f=&url=https://e.example/a.jpg",
		},
		{
			name:   "empty map",
			params: map[string]string{},
			want:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Canonicalize(tt.params)
			if got != tt.want {
				t.Errorf("Canonicalize() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCanonicalizeStable(t *testing.T) {
	params := map[string]string{
		"url": "https://e.example/a.jpg",
		"w":   "400",
		"h":   "300",
		"f":   "jpeg",
		"q":   "75",
		"t":   "2000000000",
	}

	first := Canonicalize(params)
	for i := 0; i < 50; i++ {
		if got := Canonicalize(params); got != first {
			t.Fatalf("Canonicalize not stable: got %q, want %q", got, first)
		}
	}
}

func TestSignVerifyRoundTrip(t *testing.T) {
	secret := []byte("s0")
	params := map[string]string{
		"url": "https://e.example/a.jpg",
		"w":   "400",
		"f":   "webp",
		"q":   "80",
	}

	sig := Sign(params, secret)
	if len(sig) != 64 {
		t.Errorf("Expected 64 hex chars, got %d", len(sig))
	}

	if err := Verify(params, sig, secret, time.Now()); err != nil {
		t.Errorf("Verify of own signature failed: %v", err)
	}
}

func TestVerifySensitivity(t *testing.T) {
	secret := []byte("s0")
	base := map[string]string{
		"url": "https://e.example/a.jpg",
		"w":   "400",
	}
	sig := Sign(base, secret)

	t.Run("mutated parameter", func(t *testing.T) {
		tampered := map[string]string{
			"url": "https://e.example/a.jpg",
			"w":   "401",
		}
		err := Verify(tampered, sig, secret, time.Now())
		if !errors.Is(err, &imgerr.Error{Kind: imgerr.KindInvalidSignature}) {
			t.Errorf("Expected invalid signature, got %v", err)
		}
	})

	t.Run("added parameter", func(t *testing.T) {
		tampered := map[string]string{
			"url": "https://e.example/a.jpg",
			"w":   "400",
			"h":   "100",
		}
		err := Verify(tampered, sig, secret, time.Now())
		if !errors.Is(err, &imgerr.Error{Kind: imgerr.KindInvalidSignature}) {
			t.Errorf("Expected invalid signature, got %v", err)
		}
	})

	t.Run("wrong secret", func(t *testing.T) {
		err := Verify(base, sig, []byte("s1"), time.Now())
		if !errors.Is(err, &imgerr.Error{Kind: imgerr.KindInvalidSignature}) {
			t.Errorf("Expected invalid signature, got %v", err)
		}
	})
}

func TestVerifyMissingSignature(t *testing.T) {
	err := Verify(map[string]string{"url": "https://e.example/a.jpg"}, "", []byte("s0"), time.Now())
	if !errors.Is(err, &imgerr.Error{Kind: imgerr.KindMissingSignature}) {
		t.Errorf("Expected missing signature, got %v", err)
	}
}

func TestVerifyExpiryBoundary(t *testing.T) {
	secret := []byte("s0")
	expiry := int64(1000)
	params := map[string]string{
		"url": "https://e.example/a.jpg",
		"t":   "1000",
	}
	sig := Sign(params, secret)

	tests := []struct {
		name    string
		now     int64
		expired bool
	}{
		{"one second before", expiry - 1, false},
		{"exactly at expiry", expiry, true},
		{"one second after", expiry + 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Verify(params, sig, secret, time.Unix(tt.now, 0))
			gotExpired := errors.Is(err, &imgerr.Error{Kind: imgerr.KindExpired})
			if gotExpired != tt.expired {
				t.Errorf("Verify at now=%d: expired=%v, want %v (err=%v)", tt.now, gotExpired, tt.expired, err)
			}
			if !tt.expired && err != nil {
				t.Errorf("Expected success at now=%d, got %v", tt.now, err)
			}
		})
	}
}

func TestVerifyMalformedExpiry(t *testing.T) {
	secret := []byte("s0")
	params := map[string]string{
		"url": "https://e.example/a.jpg",
		"t":   "not-a-number",
	}
	sig := Sign(params, secret)

	err := Verify(params, sig, secret, time.Now())
	if !errors.Is(err, &imgerr.Error{Kind: imgerr.KindInvalidSignature}) {
		t.Errorf("Expected invalid signature for malformed t, got %v", err)
	}
}
