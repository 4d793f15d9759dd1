// Copyright (c) 2012-2024 Eli Janssen
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package router is the gateway's http front door: a small special purpose
// router plus the middleware every response passes through.
package router

import (
	"net/http"
	"sort"
	"strings"
)

// Preflight header values.
const (
	AllowMethods         = "GET, POST, PUT, DELETE, OPTIONS"
	AllowHeaders         = "Content-Type, Authorization, X-Requested-With"
	PreflightAllowHeader = "Content-Type, Authorization, X-Requested-With, Cookie"
	ExposeHeaders        = "Set-Cookie"
)

// Config holds configuration data used when creating a Router with New.
type Config struct {
	// ServerName is sent in the Server header of every response.
	ServerName string
	// AddHeaders are extra headers set on every response.
	AddHeaders map[string]string
	// Origins are allowed credentialed cross-origin access to JSON
	// endpoints, and are echoed back on preflight requests.
	Origins *Origins
	// Limiter, if set, rate limits clients. Health endpoints are exempt.
	Limiter *RateLimiter
}

type prefixRoute struct {
	prefix  string
	handler http.Handler
}

// Router is a basic, special purpose, http router. Exact paths are matched
// against the decoded path; prefixes are matched against the escaped path,
// so encoded slashes in a proxied target url survive routing.
//
// Routes must be registered before the router starts serving.
type Router struct {
	config   Config
	routes   map[string]http.Handler
	prefixes []prefixRoute
}

// New returns a new Router.
func New(c Config) *Router {
	return &Router{
		config: c,
		routes: make(map[string]http.Handler),
	}
}

// Handle registers h for requests whose path is exactly path.
func (dr *Router) Handle(path string, h http.Handler) {
	dr.routes[path] = h
}

// HandlePrefix registers h for requests whose escaped path starts with
// prefix. The longest matching prefix wins.
func (dr *Router) HandlePrefix(prefix string, h http.Handler) {
	dr.prefixes = append(dr.prefixes, prefixRoute{prefix: prefix, handler: h})
	sort.SliceStable(dr.prefixes, func(i, j int) bool {
		return len(dr.prefixes[i].prefix) > len(dr.prefixes[j].prefix)
	})
}

// SetHeaders sets the default headers on the response
func (dr *Router) SetHeaders(w http.ResponseWriter) {
	h := w.Header()
	for k, v := range dr.config.AddHeaders {
		h.Set(k, v)
	}
	h.Set("Date", formattedDate.String())
	h.Set("Server", dr.config.ServerName)
}

// Preflight answers a CORS preflight request. Only configured origins get
// the access-control headers; anyone else gets an empty 200.
func (dr *Router) Preflight(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	h := w.Header()
	h.Add("Vary", "Origin")
	if dr.config.Origins.Allowed(origin) {
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Allow-Methods", AllowMethods)
		h.Set("Access-Control-Allow-Headers", PreflightAllowHeader)
		h.Set("Access-Control-Allow-Credentials", "true")
		h.Set("Access-Control-Expose-Headers", ExposeHeaders)
	}
	h.Set("Content-Length", "0")
	w.WriteHeader(http.StatusOK)
}

// ServeHTTP dispatches the request to the registered handler. It applies
// no middleware; see Handler.
func (dr *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		dr.Preflight(w, r)
		return
	}

	if r.Method != http.MethodHead && r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET, HEAD, OPTIONS")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	if h, ok := dr.routes[r.URL.Path]; ok {
		h.ServeHTTP(w, r)
		return
	}

	escaped := r.URL.EscapedPath()
	for _, pr := range dr.prefixes {
		if strings.HasPrefix(escaped, pr.prefix) {
			pr.handler.ServeHTTP(w, r)
			return
		}
	}

	http.Error(w, "404 Not Found", http.StatusNotFound)
}

// Handler returns the router wrapped in its middleware, outermost first:
// request id, panic recovery, default headers, rate limiting, response
// header policy, server timing.
func (dr *Router) Handler() http.Handler {
	var h http.Handler = dr
	h = serverTiming(h)
	h = dr.headerPolicy(h)
	if dr.config.Limiter != nil {
		h = dr.config.Limiter.Middleware(h)
	}
	h = dr.defaultHeaders(h)
	h = recoverer(h)
	h = requestID(h)
	return h
}
