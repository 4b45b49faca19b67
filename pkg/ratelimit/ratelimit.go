// Package ratelimit provides a token-bucket limiter with a global budget
// and a per-client-IP budget. A rate of 0 disables the corresponding
// budget; when both are 0 NewLimiter returns nil, meaning unlimited.
package ratelimit

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	ipIdleTTL       = 10 * time.Minute
	cleanupInterval = time.Minute
)

type tokenBucket struct {
	lim *rate.Limiter
}

func newTokenBucket(r, burst int) *tokenBucket {
	// a burst below 1 would refuse every request
	if burst < 1 {
		burst = r
	}
	return &tokenBucket{lim: rate.NewLimiter(rate.Limit(r), burst)}
}

func (b *tokenBucket) allow() bool {
	return b.lim.Allow()
}

type ipEntry struct {
	bucket   *tokenBucket
	lastSeen time.Time
}

type Limiter struct {
	global  *tokenBucket
	ipRate  int
	ipBurst int

	mu    sync.Mutex
	perIP map[string]*ipEntry

	done chan struct{}
}

// NewLimiter builds a Limiter. Returns nil when both rates are zero.
func NewLimiter(globalRate, globalBurst, ipRate, ipBurst int) *Limiter {
	if globalRate <= 0 && ipRate <= 0 {
		return nil
	}

	l := &Limiter{
		ipRate:  ipRate,
		ipBurst: ipBurst,
		perIP:   make(map[string]*ipEntry),
		done:    make(chan struct{}),
	}
	if globalRate > 0 {
		l.global = newTokenBucket(globalRate, globalBurst)
	}

	go l.cleanupLoop()
	return l
}

// Allow reports whether a request from ip may proceed.
func (l *Limiter) Allow(ip string) bool {
	if l.global != nil && !l.global.allow() {
		return false
	}
	if l.ipRate <= 0 {
		return true
	}

	l.mu.Lock()
	e, ok := l.perIP[ip]
	if !ok {
		e = &ipEntry{bucket: newTokenBucket(l.ipRate, l.ipBurst)}
		l.perIP[ip] = e
	}
	e.lastSeen = time.Now()
	l.mu.Unlock()

	return e.bucket.allow()
}

// Stop terminates the idle-entry cleanup goroutine.
func (l *Limiter) Stop() {
	close(l.done)
}

func (l *Limiter) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-ipIdleTTL)
			l.mu.Lock()
			for ip, e := range l.perIP {
				if e.lastSeen.Before(cutoff) {
					delete(l.perIP, ip)
				}
			}
			l.mu.Unlock()
		}
	}
}

// Middleware wraps next with the limiter. A nil *Limiter passes everything
// through.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	if l == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}
		if !l.Allow(ip) {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
