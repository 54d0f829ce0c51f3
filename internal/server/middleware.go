package server

import (
	"container/list"
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// CORSMiddleware lets the authoring host, which runs on another origin,
// call the service. If origins is empty, CORS headers are not added.
func CORSMiddleware(origins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if len(origins) == 0 {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			allowed, allowAll := originAllowed(origins, origin)

			if allowed && origin != "" {
				if allowAll {
					w.Header().Set("Access-Control-Allow-Origin", "*")
				} else {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Add("Vary", "Origin")
				}
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
				w.Header().Set("Access-Control-Max-Age", "86400")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// originAllowed matches origin against the configured list; "*" allows any.
func originAllowed(origins []string, origin string) (allowed, allowAll bool) {
	for _, o := range origins {
		if o == "*" {
			return true, true
		}
		if o == origin {
			return true, false
		}
	}
	return false, false
}

// SecurityHeadersMiddleware adds security headers to all responses. The
// report is shown in an iframe on the authoring host, so framing is
// limited to frameAncestors rather than denied.
func SecurityHeadersMiddleware(frameAncestors []string) func(http.Handler) http.Handler {
	ancestors := "'self'"
	for _, o := range frameAncestors {
		if o == "*" {
			ancestors = "*"
			break
		}
		ancestors += " " + o
	}
	csp := "default-src 'self'; " +
		"script-src 'self'; " +
		"style-src 'self' 'unsafe-inline'; " +
		"img-src 'self' data:; " +
		"connect-src 'self'; " +
		"frame-ancestors " + ancestors

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			w.Header().Set("Content-Security-Policy", csp)
			next.ServeHTTP(w, r)
		})
	}
}

const (
	defaultMaxIPs  = 1000
	sweepInterval  = 5 * time.Minute
	idleExpiry     = 10 * time.Minute
	evictLogPeriod = 30 * time.Second
)

// bucket is one client's token bucket and its LRU position.
type bucket struct {
	ip       string
	limiter  *rate.Limiter
	lastSeen time.Time
}

// clientLimiter keeps a bounded set of per-IP buckets, least recently used
// first out.
type clientLimiter struct {
	rps    rate.Limit
	burst  int
	maxIPs int

	mu      sync.Mutex
	buckets map[string]*list.Element
	lru     *list.List // front is most recent

	evicted int
	lastLog time.Time
	nowFunc func() time.Time
}

func newClientLimiter(rps float64, burst, maxIPs int) *clientLimiter {
	if maxIPs <= 0 {
		maxIPs = defaultMaxIPs
	}
	return &clientLimiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		maxIPs:  maxIPs,
		buckets: make(map[string]*list.Element),
		lru:     list.New(),
		nowFunc: time.Now,
	}
}

func (c *clientLimiter) allow(ip string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.nowFunc()
	if e, ok := c.buckets[ip]; ok {
		c.lru.MoveToFront(e)
		b := e.Value.(*bucket)
		b.lastSeen = now
		return b.limiter.AllowN(now, 1)
	}

	if c.lru.Len() >= c.maxIPs {
		c.evictOldest(now)
	}
	b := &bucket{ip: ip, limiter: rate.NewLimiter(c.rps, c.burst), lastSeen: now}
	c.buckets[ip] = c.lru.PushFront(b)
	return b.limiter.AllowN(now, 1)
}

// evictOldest drops the least recently used bucket. Callers hold mu.
func (c *clientLimiter) evictOldest(now time.Time) {
	back := c.lru.Back()
	if back == nil {
		return
	}
	c.lru.Remove(back)
	delete(c.buckets, back.Value.(*bucket).ip)
	c.evicted++
	if now.Sub(c.lastLog) >= evictLogPeriod {
		log.Printf("[RateLimit] Evicted %d least-recent IP(s) (at capacity: %d IPs)", c.evicted, c.maxIPs)
		c.lastLog = now
		c.evicted = 0
	}
}

// sweep drops buckets idle for longer than idleExpiry. The LRU list is in
// access order, so the oldest entries sit at the back.
func (c *clientLimiter) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.nowFunc()
	for e := c.lru.Back(); e != nil; {
		b := e.Value.(*bucket)
		if now.Sub(b.lastSeen) <= idleExpiry {
			break
		}
		prev := e.Prev()
		c.lru.Remove(e)
		delete(c.buckets, b.ip)
		e = prev
	}
}

func (c *clientLimiter) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// RateLimitMiddleware throttles each client IP with its own token bucket.
// At most maxIPs buckets are kept (1000 when maxIPs <= 0).
//
// Idle buckets are swept until ctx is cancelled; the returned channel is
// closed once the sweeper has exited.
func RateLimitMiddleware(ctx context.Context, rps float64, burst int, maxIPs int) (func(http.Handler) http.Handler, <-chan struct{}) {
	limiter := newClientLimiter(rps, burst, maxIPs)

	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				limiter.sweep()
			case <-ctx.Done():
				return
			}
		}
	}()

	mw := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.allow(getClientIP(r)) {
				w.Header().Set("Retry-After", "1")
				writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
	return mw, done
}

// getClientIP extracts the client IP from the request. Forwarding headers
// are trusted only from loopback or private peers.
func getClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}

	peerIP := net.ParseIP(host)
	trustedProxy := peerIP != nil && (peerIP.IsLoopback() || peerIP.IsPrivate())

	if trustedProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			return strings.TrimSpace(first)
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return strings.TrimSpace(xri)
		}
	}

	if peerIP != nil {
		return peerIP.String()
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[Server] Failed to encode response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
