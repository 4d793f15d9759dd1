// Copyright (c) 2012-2024 Eli Janssen
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/cactus/mlog"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/version"
	"golang.org/x/net/http/httpproxy"

	"github.com/contentscope/gateway/pkg/assets"
	"github.com/contentscope/gateway/pkg/health"
	"github.com/contentscope/gateway/pkg/imgproxy"
	"github.com/contentscope/gateway/pkg/router"
	"github.com/contentscope/gateway/pkg/settings"
	"github.com/contentscope/gateway/pkg/stats"
	"github.com/contentscope/gateway/pkg/web"
)

// app is the wired gateway: everything read from disk or the environment
// has been loaded by the time newApp returns.
type app struct {
	router  *router.Router
	closers []func()
	once    sync.Once
}

// Handler returns the router with its middleware.
func (a *app) Handler() http.Handler {
	return a.router.Handler()
}

// Close releases dependency clients. Safe to call more than once.
func (a *app) Close() {
	a.once.Do(func() {
		for _, c := range a.closers {
			c()
		}
	})
}

func newApp(cli *CLI, s settings.Settings) (*app, error) {
	a := &app{}

	origins := append([]string(nil), s.Security.CORSOrigins...)
	if cli.OriginsFile != "" {
		fileOrigins, err := loadOrigins(cli.OriginsFile)
		if err != nil {
			return nil, err
		}
		origins = append(origins, fileOrigins...)
	}
	origins = append(origins, cli.CORSOrigins...)

	fallback, err := assets.Provision(s.ImageProxy.FallbackPath, "image/png", imgproxy.FallbackHeader)
	if err != nil {
		return nil, fmt.Errorf("provisioning fallback image: %w", err)
	}
	favicon, err := assets.Provision(filepath.Join(cli.StaticDir, "favicon.ico"), "image/x-icon", nil)
	if err != nil {
		return nil, fmt.Errorf("provisioning favicon: %w", err)
	}

	pages, err := web.LoadPages(cli.TemplatesDir, web.IndexData{
		Title:     "Content Analysis",
		Version:   version.Version,
		Platforms: s.Analysis.SupportedPlatforms,
	})
	if err != nil {
		return nil, err
	}

	pc := imgproxy.DefaultConfig()
	pc.AllowList = s.ImageProxy.AllowList
	pc.UserAgent = s.Bilibili.UserAgent
	pc.Referer = s.Bilibili.Referer
	pc.RequestTimeout = time.Duration(s.ImageProxy.Timeout)
	if cli.ReqTimeout > 0 {
		pc.RequestTimeout = cli.ReqTimeout
	}
	pc.MaxRedirects = cli.MaxRedirects
	// convert from KB to Bytes
	pc.MaxSize = cli.MaxSize * 1024
	pc.DisableKeepAlivesBE = cli.DisableKeepAlivesBE
	pc.AllowPrivateNetworks = cli.AllowPrivateNetworks
	pc.UpstreamProxy = httpproxy.FromEnvironment()

	proxy, err := imgproxy.New(pc, fallback)
	if err != nil {
		return nil, err
	}

	checker := health.New()
	if cli.CheckDeps {
		if err := a.addDependencyChecks(checker, s); err != nil {
			a.Close()
			return nil, err
		}
	}

	var limiter *router.RateLimiter
	if cli.RateLimit {
		// image responses are always 2xx, so the proxy path is exempt
		limiter = router.NewRateLimiter(s.Security.RequestsPerMinute, s.Security.BurstSize).
			Exempt(pc.PathPrefix)
		mlog.Printm("enabling rate limiting", mlog.Map{
			"per_minute": s.Security.RequestsPerMinute,
			"burst":      s.Security.BurstSize,
		})
	}

	a.router = router.New(router.Config{
		ServerName: ServerName,
		AddHeaders: parseHeaders(cli.AddHeaders),
		Origins:    router.NewOrigins(origins...),
		Limiter:    limiter,
	})

	a.router.Handle("/", pages)
	a.router.Handle("/favicon.ico", favicon)
	a.router.Handle("/health", http.HandlerFunc(checker.Healthy))
	a.router.Handle("/health/live", http.HandlerFunc(checker.Live))
	a.router.Handle("/health/ready", http.HandlerFunc(checker.Ready))
	a.router.HandlePrefix(pc.PathPrefix, proxy)
	a.router.HandlePrefix("/static/",
		http.StripPrefix("/static", http.FileServer(http.Dir(cli.StaticDir))))

	if cli.Stats {
		ps := &stats.ProxyStats{}
		proxy.SetMetricsCollector(ps)
		mlog.Printm("enabling stats", mlog.Map{"path": "/status"})
		a.router.Handle("/status", stats.Handler(ps))
	}

	if cli.Metrics {
		mlog.Printm("enabling metrics", mlog.Map{"path": "/metrics"})
		a.router.Handle("/metrics", promhttp.Handler())
	}

	return a, nil
}

func (a *app) addDependencyChecks(checker *health.Checker, s settings.Settings) error {
	pg, closePool, err := health.Postgres("postgres", s.Database.PostgresURL)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, closePool)
	checker.Add(pg)

	// the cache and the task broker usually share a redis server, but
	// they are configured separately
	redisChecks := []struct{ name, url string }{
		{"redis", s.Database.RedisURL},
		{"broker", s.Tasks.BrokerURL},
	}
	for _, rc := range redisChecks {
		check, closeClient, err := health.Redis(rc.name, rc.url)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() { _ = closeClient() })
		checker.Add(check)
	}

	mlog.Printm("enabling dependency checks", mlog.Map{"path": "/health/ready"})
	return nil
}
