// Copyright (c) 2012-2024 Eli Janssen
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// gateway daemon
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/cactus/mlog"
	"github.com/joho/godotenv"
	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"
	versioncollector "github.com/prometheus/client_golang/prometheus/collectors/version"
	"github.com/prometheus/common/version"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/contentscope/gateway/pkg/settings"
)

// ServerName holds the server name string
const ServerName = "gateway"

// CLI holds the command line flags. Most have an environment fallback.
type CLI struct {
	Version kong.VersionFlag `name:"version" short:"V" help:"Print version information and quit"`

	Config      string `name:"config" env:"GATEWAY_CONFIG" help:"YAML settings file, applied before environment overrides"`
	PrintConfig bool   `name:"print-config" help:"Print the effective settings and quit"`

	Listen       string   `name:"listen" env:"HOST" default:"0.0.0.0" help:"Address to bind to for HTTP"`
	Port         int      `name:"port" env:"PORT" default:"8000" help:"Port to bind to for HTTP. 0 disables the plain HTTP listener"`
	SSLListen    string   `name:"ssl-listen" help:"Address:Port to bind to for HTTPS/SSL/TLS"`
	SSLKey       string   `name:"ssl-key" help:"ssl private key (key.pem) path"`
	SSLCert      string   `name:"ssl-cert" help:"ssl cert (cert.pem) path"`
	EnableHTTP3  bool     `name:"http3" help:"Also serve HTTP/3 on the ssl-listen address"`
	AddHeaders   []string `name:"header" short:"H" help:"Extra header to return for each response. This option can be used multiple times to add multiple headers"`
	StaticDir    string   `name:"static-dir" default:"static" help:"Directory served at /static/"`
	TemplatesDir string   `name:"templates-dir" default:"templates" help:"Directory holding page templates"`
	OriginsFile  string   `name:"origins-file" help:"Text file of allowed CORS origins (one per line)"`
	CORSOrigins  []string `name:"cors-origin" help:"Allowed CORS origin. This option can be used multiple times"`

	MaxSize              int64         `name:"max-size" default:"5120" help:"Max proxied image size (KB). 0 disables the limit"`
	MaxRedirects         int           `name:"max-redirects" default:"10" help:"Maximum number of redirects to follow"`
	ReqTimeout           time.Duration `name:"timeout" help:"Upstream image request timeout. Overrides the image proxy timeout setting"`
	AllowPrivateNetworks bool          `name:"allow-private-networks" help:"Allow proxying images from private, loopback and link local networks"`
	DisableKeepAlivesFE  bool          `name:"no-fk" help:"Disable frontend http keep-alive support"`
	DisableKeepAlivesBE  bool          `name:"no-bk" help:"Disable backend http keep-alive support"`

	Metrics   bool `name:"metrics" help:"Enable Prometheus compatible metrics endpoint at /metrics"`
	Stats     bool `name:"stats" help:"Enable stats collection and reporting at /status"`
	CheckDeps bool `name:"check-deps" env:"CHECK_DEPS" help:"Ping postgres and redis on /health/ready"`
	RateLimit bool `name:"rate-limit" env:"RATE_LIMIT" help:"Enable per-client rate limiting. The image proxy path is never limited"`

	LogFormat string `name:"log-format" enum:"auto,plain,json,structured" default:"auto" help:"Log output format (auto,plain,json,structured)"`
	NoLogTS   bool   `name:"no-log-ts" help:"Do not add a timestamp to logging"`
	Verbose   bool   `name:"verbose" short:"v" help:"Show verbose (debug) log level output"`
}

func setupLogging(cli *CLI) {
	switch cli.LogFormat {
	case "json":
		mlog.SetEmitter(&mlog.FormatWriterJSON{})
	case "structured":
		mlog.SetEmitter(&mlog.FormatWriterStructured{})
	case "plain":
		mlog.SetEmitter(&mlog.FormatWriterPlain{})
	default:
		if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
			mlog.SetEmitter(&mlog.FormatWriterPlain{})
		} else {
			mlog.SetEmitter(&mlog.FormatWriterJSON{})
		}
	}

	mlog.SetFlags(mlog.Lstd)
	if cli.NoLogTS {
		mlog.SetFlags(mlog.Flags() ^ mlog.Ltimestamp)
	}

	if cli.Verbose {
		mlog.SetFlags(mlog.Flags() | mlog.Ldebug)
		mlog.Debug("debug logging enabled")
	}
}

func (cli *CLI) validate() error {
	if cli.Port == 0 && cli.SSLListen == "" {
		return errors.New("one of port or ssl-listen required")
	}
	if cli.SSLListen != "" && cli.SSLKey == "" {
		return errors.New("ssl-key is required when specifying ssl-listen")
	}
	if cli.SSLListen != "" && cli.SSLCert == "" {
		return errors.New("ssl-cert is required when specifying ssl-listen")
	}
	if cli.EnableHTTP3 && cli.SSLListen == "" {
		return errors.New("http3 requires ssl-listen")
	}
	if cli.MaxSize < 0 {
		return errors.New("max-size must not be negative")
	}
	return nil
}

func parseHeaders(headers []string) map[string]string {
	addHeaders := make(map[string]string)
	for _, v := range headers {
		s := strings.SplitN(v, ":", 2)
		if len(s) != 2 {
			mlog.Printm("ignoring bad header", mlog.Map{"header": v})
			continue
		}

		s0 := strings.TrimSpace(s[0])
		s1 := strings.TrimSpace(s[1])

		if len(s0) == 0 || len(s1) == 0 {
			mlog.Printm("ignoring bad header", mlog.Map{"header": v})
			continue
		}
		addHeaders[s0] = s1
	}
	return addHeaders
}

func main() {
	// .env values never override variables already set
	envErr := godotenv.Load()

	cli := CLI{}
	kctx := kong.Parse(&cli,
		kong.Name(ServerName),
		kong.Description("Content analysis gateway: landing page, health and bilibili image proxy"),
		kong.UsageOnError(),
		kong.Vars{"version": version.Print(ServerName)},
	)

	setupLogging(&cli)

	if envErr != nil && !errors.Is(envErr, fs.ErrNotExist) {
		mlog.Printm("could not load .env file", mlog.Map{"err": envErr})
	} else if envErr == nil && mlog.HasDebug() {
		mlog.Debugm("loaded .env file", mlog.Map{})
	}

	if _, err := maxprocs.Set(maxprocs.Logger(mlog.Debugf)); err != nil {
		mlog.Printm("could not set GOMAXPROCS", mlog.Map{"err": err})
	}

	if err := cli.validate(); err != nil {
		kctx.FatalIfErrorf(err)
	}

	s, err := settings.Load(os.LookupEnv, cli.Config)
	if err != nil {
		mlog.Fatal("Error loading settings: ", err)
	}

	if cli.PrintConfig {
		fmt.Print(s.Tree())
		return
	}

	app, err := newApp(&cli, s)
	if err != nil {
		mlog.Fatal("Error creating gateway: ", err)
	}
	defer app.Close()

	if cli.Metrics {
		prometheus.MustRegister(versioncollector.NewCollector(ServerName))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mlog.Infom("starting gateway", mlog.Map{
		"version":  version.Version,
		"revision": version.Revision,
	})
	if err := serve(ctx, &cli, app.Handler()); err != nil {
		mlog.Printm("server error", mlog.Map{"err": err})
		app.Close()
		os.Exit(1)
	}
	mlog.Print("server stopped")
}
