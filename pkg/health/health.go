// Copyright (c) 2012-2024 Eli Janssen
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package health serves the gateway's liveness and readiness endpoints.
package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/cactus/mlog"

	"github.com/contentscope/gateway/pkg/web"
)

// ReadinessTimeout bounds a full readiness probe.
const ReadinessTimeout = 5 * time.Second

// Check is a named readiness check.
type Check struct {
	Name  string
	Check func(ctx context.Context) error
}

// Checker runs readiness checks and reports process uptime.
type Checker struct {
	started time.Time
	now     func() time.Time
	timeout time.Duration

	mu     sync.RWMutex
	checks []Check
}

// New returns a Checker with the given readiness checks.
func New(checks ...Check) *Checker {
	return &Checker{
		started: time.Now(),
		now:     time.Now,
		timeout: ReadinessTimeout,
		checks:  checks,
	}
}

// Add registers another readiness check.
func (c *Checker) Add(check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks = append(c.checks, check)
}

// Healthy always reports the process as healthy.
func (c *Checker) Healthy(w http.ResponseWriter, r *http.Request) {
	_ = web.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// Live reports the process uptime in seconds.
func (c *Checker) Live(w http.ResponseWriter, r *http.Request) {
	_ = web.WriteJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": c.now().Sub(c.started).Seconds(),
	})
}

// Ready runs the readiness checks in order and answers 503 naming the
// first one that fails.
func (c *Checker) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), c.timeout)
	defer cancel()

	if name, err := c.Run(ctx); err != nil {
		mlog.Printm("readiness check failed", mlog.Map{
			"check":      name,
			"err":        err,
			"request_id": web.RequestID(r.Context()),
		})
		_ = web.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":       "unhealthy",
			"failed_check": name,
			"error":        err.Error(),
		})
		return
	}
	_ = web.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// Run executes every check, stopping at the first failure. It returns the
// failing check's name along with its error.
func (c *Checker) Run(ctx context.Context) (string, error) {
	c.mu.RLock()
	checks := c.checks
	c.mu.RUnlock()

	for _, hc := range checks {
		if err := hc.Check(ctx); err != nil {
			return hc.Name, err
		}
	}
	return "", nil
}
