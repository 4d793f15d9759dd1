// Copyright (c) 2012-2024 Eli Janssen
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package imgproxy

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"

	"github.com/contentscope/gateway/pkg/assets"
)

const fallbackBody = "fallback-png"

// upstream is a test image server that every proxy dial is routed to,
// whatever host the target url names.
type upstream struct {
	*httptest.Server
	hits atomic.Int64
}

func newUpstream(t *testing.T, tls bool, h http.HandlerFunc) *upstream {
	t.Helper()
	up := &upstream{}
	counted := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		up.hits.Add(1)
		h(w, r)
	})
	if tls {
		up.Server = httptest.NewTLSServer(counted)
	} else {
		up.Server = httptest.NewServer(counted)
	}
	t.Cleanup(up.Close)
	return up
}

func testConfig(up *upstream) Config {
	c := DefaultConfig()
	c.RequestTimeout = 2 * time.Second
	c.AllowPrivateNetworks = true
	if up != nil {
		addr := up.Listener.Addr().String()
		c.dialContext = func(ctx context.Context, network, _ string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(ctx, network, addr)
		}
	}
	return c
}

func newFallback(t *testing.T) *assets.Asset {
	t.Helper()
	path := filepath.Join(t.TempDir(), "default-avatar.png")
	assert.NilError(t, os.WriteFile(path, []byte(fallbackBody), 0o644))
	a, err := assets.Provision(path, "image/png", FallbackHeader)
	assert.NilError(t, err)
	return a
}

func newTestProxy(t *testing.T, c Config) *Proxy {
	t.Helper()
	p, err := New(c, newFallback(t))
	assert.NilError(t, err)
	return p
}

func processRequest(t *testing.T, p http.Handler, method, path string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(method, "http://gateway.example"+path, nil)
	record := httptest.NewRecorder()
	p.ServeHTTP(record, req)
	return record.Result()
}

func bodyAssert(t *testing.T, expected string, resp *http.Response) {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	assert.Check(t, err)
	assert.Check(t, is.Equal(expected, string(body)))
}

func headerAssert(t *testing.T, expected, name string, resp *http.Response) {
	t.Helper()
	assert.Check(t,
		is.Equal(expected, resp.Header.Get(name)),
		"response header %s mismatch", name,
	)
}

func statusCodeAssert(t *testing.T, expected int, resp *http.Response) {
	t.Helper()
	assert.Check(t,
		is.Equal(expected, resp.StatusCode),
		"Expected %d but got '%d' instead",
		expected, resp.StatusCode,
	)
}

func fallbackAssert(t *testing.T, resp *http.Response) {
	t.Helper()
	statusCodeAssert(t, http.StatusOK, resp)
	headerAssert(t, "image/png", "Content-Type", resp)
	headerAssert(t, CacheControl, "Cache-Control", resp)
	headerAssert(t, "*", "Access-Control-Allow-Origin", resp)
	bodyAssert(t, fallbackBody, resp)
}
