// Copyright (c) 2012-2024 Eli Janssen
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/cactus/mlog"
	"github.com/quic-go/quic-go/http3"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

// serve runs the configured listeners until ctx is done or one of them
// fails, then shuts the rest down.
func serve(ctx context.Context, cli *CLI, handler http.Handler) error {
	g, ctx := errgroup.WithContext(ctx)
	var shutdowns []func(context.Context) error

	run := func(name, addr string, listen func() error) {
		g.Go(func() error {
			mlog.Printm("starting server", mlog.Map{"server": name, "addr": addr})
			err := listen()
			if ctx.Err() != nil || errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		})
	}

	if cli.Port != 0 {
		addr := net.JoinHostPort(cli.Listen, strconv.Itoa(cli.Port))
		srv := newServer(addr, handler, cli.DisableKeepAlivesFE)
		shutdowns = append(shutdowns, srv.Shutdown)
		run("http", addr, srv.ListenAndServe)
	}

	if cli.SSLListen != "" {
		tlsHandler := handler
		if cli.EnableHTTP3 {
			h3 := &http3.Server{
				Addr:    cli.SSLListen,
				Handler: handler,
			}
			shutdowns = append(shutdowns, func(context.Context) error { return h3.Close() })
			run("http3", cli.SSLListen, func() error {
				return h3.ListenAndServeTLS(cli.SSLCert, cli.SSLKey)
			})
			tlsHandler = advertiseHTTP3(h3, handler)
		}

		srv := newServer(cli.SSLListen, tlsHandler, cli.DisableKeepAlivesFE)
		shutdowns = append(shutdowns, srv.Shutdown)
		run("https", cli.SSLListen, func() error {
			return srv.ListenAndServeTLS(cli.SSLCert, cli.SSLKey)
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs []error
		for _, shutdown := range shutdowns {
			errs = append(errs, shutdown(sctx))
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}

func newServer(addr string, handler http.Handler, disableKeepAlives bool) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	srv.SetKeepAlivesEnabled(!disableKeepAlives)
	return srv
}

// advertiseHTTP3 adds the Alt-Svc header, so clients arriving over tcp
// learn about the quic listener.
func advertiseHTTP3(h3 *http3.Server, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := h3.SetQUICHeaders(w.Header()); err != nil && mlog.HasDebug() {
			mlog.Debugm("could not set quic headers", mlog.Map{"err": err})
		}
		next.ServeHTTP(w, r)
	})
}
