// Copyright (c) 2012-2024 Eli Janssen
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package imgproxy provides an HTTP image proxy restricted to an allow-list
// of domains, which substitutes a local fallback asset whenever a target
// is rejected or cannot be fetched.
package imgproxy

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cactus/mlog"
	servertiming "github.com/mitchellh/go-server-timing"
	"golang.org/x/net/http/httpproxy"

	"github.com/contentscope/gateway/pkg/web"
)

// DefaultPathPrefix is the path the proxy is mounted on. Everything after
// it is the percent-encoded target url.
const DefaultPathPrefix = "/proxy/image/"

// Config holds configuration data used when creating a Proxy with New.
type Config struct {
	// PathPrefix is stripped from the escaped request path to get the target.
	PathPrefix string
	// AllowList is the set of domain substrings a target must contain.
	AllowList []string
	// UserAgent and Referer are sent upstream on every fetch.
	UserAgent string
	Referer   string
	// RequestTimeout is a timeout for fetching upstream data.
	RequestTimeout time.Duration
	// MaxRedirects is the maximum number of redirects to follow.
	MaxRedirects int
	// MaxSize is the maximum image size (in bytes). 0 disables the limit.
	MaxSize int64
	// Keepalive enable/disable
	DisableKeepAlivesBE bool
	// AllowPrivateNetworks permits fetching from loopback, link local and
	// private addresses.
	AllowPrivateNetworks bool
	// UpstreamProxy, if set, routes fetches through an http proxy.
	UpstreamProxy *httpproxy.Config

	// replaces the transport dialer (tests)
	dialContext func(ctx context.Context, network, addr string) (net.Conn, error)
}

// DefaultConfig returns a Config with the stock allow-list and upstream
// identity.
func DefaultConfig() Config {
	return Config{
		PathPrefix:     DefaultPathPrefix,
		AllowList:      DefaultAllowList,
		UserAgent:      DefaultUserAgent,
		Referer:        DefaultReferer,
		RequestTimeout: 30 * time.Second,
		MaxRedirects:   10,
		MaxSize:        5 * 1024 * 1024,
	}
}

// FallbackServer serves the substitute asset for failed proxy requests.
type FallbackServer interface {
	Serve(w http.ResponseWriter, req *http.Request) error
}

// MetricsCollector receives counts of proxied requests.
type MetricsCollector interface {
	AddServed()
	AddBytes(int64)
	AddFallback()
}

// Outcome is the result of resolving a proxy request.
type Outcome int

const (
	// OutcomeRelayed means the image was fetched and can be relayed.
	OutcomeRelayed Outcome = iota
	// OutcomeRejected means the target failed the allow-list check.
	OutcomeRejected
	// OutcomeFetchFailed means the upstream fetch failed.
	OutcomeFetchFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRelayed:
		return "relayed"
	case OutcomeRejected:
		return "rejected"
	case OutcomeFetchFailed:
		return "fetch_failed"
	default:
		return "unknown"
	}
}

// Result is a resolved proxy request.
type Result struct {
	Outcome Outcome
	Target  string
	Image   *Image
	Err     error
}

// A Proxy fetches allow-listed images and relays them to the client.
type Proxy struct {
	config   *Config
	fetcher  *Fetcher
	fallback FallbackServer
	metrics  MetricsCollector
}

// New returns a new Proxy. Returns an error if Proxy could not be constructed.
func New(pc Config, fallback FallbackServer) (*Proxy, error) {
	if pc.PathPrefix == "" {
		pc.PathPrefix = DefaultPathPrefix
	}
	if len(pc.AllowList) == 0 {
		return nil, errors.New("image proxy allow-list is empty")
	}

	fetcher, err := NewFetcher(pc)
	if err != nil {
		return nil, err
	}

	return &Proxy{
		config:   &pc,
		fetcher:  fetcher,
		fallback: fallback,
	}, nil
}

// SetMetricsCollector sets a proxy metrics (MetricsCollector interface) for
// the proxy
func (p *Proxy) SetMetricsCollector(pm MetricsCollector) {
	p.metrics = pm
}

// Resolve validates the escaped path segment and fetches the target.
// rawQuery is not part of the allow-list check; it is appended to the
// target verbatim once the path passed. Validation failures never reach
// the network.
func (p *Proxy) Resolve(ctx context.Context, rawPath, rawQuery string) Result {
	target, err := Validate(rawPath, p.config.AllowList)
	if err != nil {
		return Result{Outcome: OutcomeRejected, Err: err}
	}
	target = WithQuery(target, rawQuery)

	var m *servertiming.Metric
	if h := servertiming.FromContext(ctx); h != nil {
		m = h.NewMetric("fetch").WithDesc("upstream image fetch").Start()
	}
	start := time.Now()
	img, err := p.fetcher.Fetch(ctx, target)
	fetchDuration.Observe(time.Since(start).Seconds())
	if m != nil {
		m.Stop()
	}

	if err != nil {
		return Result{Outcome: OutcomeFetchFailed, Target: target, Err: err}
	}
	return Result{Outcome: OutcomeRelayed, Target: target, Image: img}
}

// ServeHTTP resolves the target encoded in the request path and relays the
// image. Rejected or failed targets are answered with the fallback asset;
// only a failure to serve the fallback produces an error status.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	// the escaped path keeps %2F intact, so the target is only decoded once
	rawPath := strings.TrimPrefix(req.URL.EscapedPath(), p.config.PathPrefix)

	if mlog.HasDebug() {
		mlog.Debugm("client request", mlog.Map{
			"req":        httpReqToMlogMap(req),
			"request_id": web.RequestID(req.Context()),
		})
	}

	res := p.Resolve(req.Context(), rawPath, req.URL.RawQuery)
	requestsTotal.WithLabelValues(res.Outcome.String()).Inc()

	if res.Outcome != OutcomeRelayed {
		// handle client aborting request early in the request lifetime
		if errors.Is(res.Err, context.Canceled) {
			if mlog.HasDebug() {
				mlog.Debugm("client aborted request (early)", mlog.Map{"target": res.Target})
			}
			return
		}
		mlog.Printm("image proxy fallback", mlog.Map{
			"outcome":    res.Outcome.String(),
			"err":        res.Err,
			"request_id": web.RequestID(req.Context()),
		})
		p.serveFallback(w, req)
		return
	}

	written, err := Relay(w, req, res.Image)
	bytesRelayed.Add(float64(written))
	if p.metrics != nil {
		p.metrics.AddServed()
		p.metrics.AddBytes(written)
	}
	if err != nil {
		responseFailed.Inc()
		p.logWriteError(req, err)
		return
	}

	if mlog.HasDebug() {
		mlog.Debugm("response to client", mlog.Map{
			"target":       res.Target,
			"content_type": res.Image.ContentType,
			"bytes":        written,
		})
	}
}

func (p *Proxy) serveFallback(w http.ResponseWriter, req *http.Request) {
	if p.metrics != nil {
		p.metrics.AddFallback()
	}

	if p.fallback == nil {
		fallbackFailed.Inc()
		web.WriteError(w, http.StatusInternalServerError, "fallback asset unavailable")
		return
	}

	sw := &statusWriter{ResponseWriter: w}
	if err := p.fallback.Serve(sw, req); err != nil {
		fallbackFailed.Inc()
		mlog.Printm("error serving fallback asset", mlog.Map{"err": err})
		// too late for an error response once the status line went out
		if !sw.wroteHeader {
			web.WriteError(w, http.StatusInternalServerError, err.Error())
		}
	}
}

func (p *Proxy) logWriteError(req *http.Request, err error) {
	switch {
	case errors.Is(err, context.Canceled):
		// client aborted/closed request, which is why copy failed to finish
		if mlog.HasDebug() {
			mlog.Debugm("client aborted request (late)", mlog.Map{"path": req.URL.Path})
		}
	case errors.Is(err, io.ErrShortWrite), isBrokenPipe(err):
		// only log broken pipe errors at debug level
		if mlog.HasDebug() {
			mlog.Debugm("error writing response", mlog.Map{"err": err, "path": req.URL.Path})
		}
	default:
		mlog.Printm("error writing response", mlog.Map{"err": err, "path": req.URL.Path})
	}
}

// statusWriter records whether a status line was sent.
type statusWriter struct {
	http.ResponseWriter
	wroteHeader bool
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.wroteHeader = true
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	sw.wroteHeader = true
	return sw.ResponseWriter.Write(b)
}

func (sw *statusWriter) Unwrap() http.ResponseWriter {
	return sw.ResponseWriter
}
