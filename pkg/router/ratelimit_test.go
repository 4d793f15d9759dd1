// Copyright (c) 2012-2024 Eli Janssen
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package router

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"

	"github.com/contentscope/gateway/pkg/web"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func newFakeLimiter(perMinute, burst int) (*RateLimiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	rl := NewRateLimiter(perMinute, burst)
	rl.now = clock.now
	return rl, clock
}

func TestRateLimiterBurstThenReject(t *testing.T) {
	t.Parallel()
	rl, _ := newFakeLimiter(60, 3)
	h := newTestRouter(rl).Handler()

	for i := 0; i < 3; i++ {
		resp := do(h, http.MethodGet, "/", nil)
		assert.Check(t, is.Equal(http.StatusOK, resp.StatusCode), "request %d", i)
	}

	resp := do(h, http.MethodGet, "/", nil)
	assert.Check(t, is.Equal(http.StatusTooManyRequests, resp.StatusCode))
	assert.Check(t, is.Equal("1", resp.Header.Get("Retry-After")))
	assert.Check(t, web.IsJSON(resp.Header))

	var body web.ErrorBody
	assert.NilError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Check(t, is.Equal("rate limit exceeded", body.Message))
}

func TestRateLimiterRefills(t *testing.T) {
	t.Parallel()
	rl, clock := newFakeLimiter(60, 1)

	assert.Check(t, rl.Allow("a"))
	assert.Check(t, !rl.Allow("a"))
	clock.t = clock.t.Add(time.Second)
	assert.Check(t, rl.Allow("a"))
}

func TestRateLimiterPerClient(t *testing.T) {
	t.Parallel()
	rl, _ := newFakeLimiter(1, 1)

	assert.Check(t, rl.Allow("a"))
	assert.Check(t, rl.Allow("b"))
	assert.Check(t, !rl.Allow("a"))
	assert.Check(t, is.Equal(2, rl.Len()))
}

func TestRateLimiterHealthExempt(t *testing.T) {
	t.Parallel()
	rl, _ := newFakeLimiter(1, 1)
	h := newTestRouter(rl).Handler()

	for i := 0; i < 5; i++ {
		resp := do(h, http.MethodGet, "/health", nil)
		assert.Check(t, is.Equal(http.StatusOK, resp.StatusCode))
	}
	assert.Check(t, is.Equal(0, rl.Len()))
}

func TestRateLimiterExemptPrefix(t *testing.T) {
	t.Parallel()
	rl, _ := newFakeLimiter(1, 1)
	rl.Exempt("/proxy/image/")
	h := newTestRouter(rl).Handler()

	for i := 0; i < 5; i++ {
		resp := do(h, http.MethodGet, "/proxy/image/evil.com%2Fx.jpg", nil)
		assert.Check(t, resp.StatusCode != http.StatusTooManyRequests)
	}
	assert.Check(t, is.Equal(0, rl.Len()))

	resp := do(h, http.MethodGet, "/", nil)
	assert.Check(t, resp.StatusCode != http.StatusTooManyRequests)
	resp = do(h, http.MethodGet, "/", nil)
	assert.Check(t, is.Equal(http.StatusTooManyRequests, resp.StatusCode))
}

func TestRateLimiterForgetsIdleClients(t *testing.T) {
	t.Parallel()
	rl, clock := newFakeLimiter(1, 1)

	assert.Check(t, rl.Allow("a"))
	clock.t = clock.t.Add(rateLimiterExpiry + time.Second)
	assert.Check(t, rl.Allow("b"))
	assert.Check(t, is.Equal(1, rl.Len()))
}
