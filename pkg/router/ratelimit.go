// Copyright (c) 2012-2024 Eli Janssen
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package router

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cactus/mlog"
	"golang.org/x/time/rate"

	"github.com/contentscope/gateway/pkg/web"
)

const rateLimiterExpiry = 5 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a per-client token bucket limiter, keyed on the remote
// ip address. Idle clients are forgotten after a few minutes.
type RateLimiter struct {
	limit rate.Limit
	burst int
	now   func() time.Time

	// path prefixes that are never limited
	exempt []string

	mu        sync.Mutex
	visitors  map[string]*visitor
	lastSweep time.Time
}

// NewRateLimiter returns a limiter allowing perMinute requests per minute
// per client, with bursts of up to burst requests.
func NewRateLimiter(perMinute, burst int) *RateLimiter {
	return &RateLimiter{
		limit:    rate.Limit(float64(perMinute) / 60),
		burst:    burst,
		now:      time.Now,
		visitors: make(map[string]*visitor),
	}
}

// Exempt excludes requests under the given path prefixes from limiting.
func (rl *RateLimiter) Exempt(prefixes ...string) *RateLimiter {
	rl.exempt = append(rl.exempt, prefixes...)
	return rl
}

func (rl *RateLimiter) exempted(path string) bool {
	if path == "/health" || strings.HasPrefix(path, "/health/") {
		return true
	}
	for _, prefix := range rl.exempt {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// Allow reports whether the client identified by key may proceed now.
func (rl *RateLimiter) Allow(key string) bool {
	now := rl.now()

	rl.mu.Lock()
	if now.Sub(rl.lastSweep) > rateLimiterExpiry {
		for k, v := range rl.visitors {
			if now.Sub(v.lastSeen) > rateLimiterExpiry {
				delete(rl.visitors, k)
			}
		}
		rl.lastSweep = now
	}
	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.visitors[key] = v
	}
	v.lastSeen = now
	rl.mu.Unlock()

	return v.limiter.AllowN(now, 1)
}

// Len returns the number of clients currently tracked.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.visitors)
}

func (rl *RateLimiter) retryAfter() string {
	if rl.limit <= 0 {
		return "60"
	}
	return strconv.Itoa(int(math.Ceil(1 / float64(rl.limit))))
}

// Middleware rejects clients over their limit with a JSON 429. Health
// endpoints and exempt prefixes are never limited.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.exempted(r.URL.EscapedPath()) {
			next.ServeHTTP(w, r)
			return
		}

		key := clientIP(r)
		if !rl.Allow(key) {
			if mlog.HasDebug() {
				mlog.Debugm("rate limit exceeded", mlog.Map{
					"client":     key,
					"path":       r.URL.Path,
					"request_id": web.RequestID(r.Context()),
				})
			}
			w.Header().Set("Retry-After", rl.retryAfter())
			web.WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
