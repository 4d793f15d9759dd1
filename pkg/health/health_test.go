// Copyright (c) 2012-2024 Eli Janssen
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

func get(h http.HandlerFunc) (*http.Response, map[string]any) {
	record := httptest.NewRecorder()
	h(record, httptest.NewRequest(http.MethodGet, "http://gateway.example/health", nil))
	resp := record.Result()
	body := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	return resp, body
}

func passing(name string) Check {
	return Check{Name: name, Check: func(context.Context) error { return nil }}
}

func TestHealthy(t *testing.T) {
	t.Parallel()
	resp, body := get(New().Healthy)
	assert.Check(t, is.Equal(http.StatusOK, resp.StatusCode))
	assert.Check(t, is.DeepEqual(map[string]any{"status": "healthy"}, body))
}

func TestLive(t *testing.T) {
	t.Parallel()
	c := New()
	c.now = func() time.Time { return c.started.Add(90 * time.Second) }

	resp, body := get(c.Live)
	assert.Check(t, is.Equal(http.StatusOK, resp.StatusCode))
	assert.Check(t, is.Equal("ok", body["status"]))
	assert.Check(t, is.Equal(90.0, body["uptime"]))
}

func TestReady(t *testing.T) {
	t.Parallel()
	c := New(passing("postgres"), passing("redis"))

	resp, body := get(c.Ready)
	assert.Check(t, is.Equal(http.StatusOK, resp.StatusCode))
	assert.Check(t, is.DeepEqual(map[string]any{"status": "ready"}, body))
}

func TestReadyNamesFailingCheck(t *testing.T) {
	t.Parallel()
	var laterRan bool
	c := New(passing("postgres"))
	c.Add(Check{Name: "broker", Check: func(context.Context) error { return errors.New("connection refused") }})
	c.Add(Check{Name: "cache", Check: func(context.Context) error { laterRan = true; return nil }})

	resp, body := get(c.Ready)
	assert.Check(t, is.Equal(http.StatusServiceUnavailable, resp.StatusCode))
	assert.Check(t, is.Equal("unhealthy", body["status"]))
	assert.Check(t, is.Equal("broker", body["failed_check"]))
	assert.Check(t, is.Equal("connection refused", body["error"]))
	assert.Check(t, !laterRan)
}

func TestReadyTimeout(t *testing.T) {
	t.Parallel()
	c := New(Check{Name: "slow", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})
	c.timeout = 50 * time.Millisecond

	resp, body := get(c.Ready)
	assert.Check(t, is.Equal(http.StatusServiceUnavailable, resp.StatusCode))
	assert.Check(t, is.Equal("slow", body["failed_check"]))
}

func TestDependencyConstructors(t *testing.T) {
	t.Parallel()

	_, _, err := Postgres("postgres", "postgres://[::1")
	assert.Check(t, err != nil)
	_, _, err = Redis("cache", "http://localhost:6379")
	assert.Check(t, err != nil)

	pg, closePool, err := Postgres("postgres", "postgres://user:pw@127.0.0.1:1/db?connect_timeout=1")
	assert.NilError(t, err)
	defer closePool()
	rd, closeClient, err := Redis("cache", "redis://127.0.0.1:1/0")
	assert.NilError(t, err)
	defer func() { _ = closeClient() }()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	name, err := New(pg, rd).Run(ctx)
	assert.Check(t, err != nil)
	assert.Check(t, is.Equal("postgres", name))

	name, err = New(rd).Run(ctx)
	assert.Check(t, err != nil)
	assert.Check(t, is.Equal("cache", name))
}
