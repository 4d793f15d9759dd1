// Copyright (c) 2012-2024 Eli Janssen
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package router

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/cactus/mlog"
	"github.com/google/uuid"
	servertiming "github.com/mitchellh/go-server-timing"

	"github.com/contentscope/gateway/pkg/web"
)

// RequestIDHeader carries the request id, in both directions.
const RequestIDHeader = "X-Request-Id"

// UnhandledError is a panic recovered while serving a request.
type UnhandledError struct {
	Value any
	Stack []byte
}

func (e *UnhandledError) Error() string {
	return fmt.Sprintf("unhandled error: %v", e.Value)
}

// Unwrap returns the panic value when it was an error.
func (e *UnhandledError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(web.WithRequestID(r.Context(), id)))
	})
}

func recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			v := recover()
			if v == nil {
				return
			}
			// net/http uses this to abort a response; let it through
			if v == http.ErrAbortHandler {
				panic(v)
			}
			err := &UnhandledError{Value: v, Stack: debug.Stack()}
			mlog.Printm("request failed", mlog.Map{
				"err":        err,
				"path":       r.URL.Path,
				"request_id": web.RequestID(r.Context()),
			})
			if mlog.HasDebug() {
				mlog.Debugm("panic stack", mlog.Map{"stack": string(err.Stack)})
			}
			web.WriteError(w, http.StatusInternalServerError, err.Error())
		}()
		next.ServeHTTP(w, r)
	})
}

func (dr *Router) defaultHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dr.SetHeaders(w)
		next.ServeHTTP(w, r)
	})
}

func serverTiming(next http.Handler) http.Handler {
	return servertiming.Middleware(next, nil)
}

// headerPolicy sets response headers that depend on the kind of response
// being sent. Non-JSON responses get the browser security headers and
// permissive CORS. JSON responses get credentialed CORS, but only for an
// allowed Origin.
func (dr *Router) headerPolicy(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		hw := &hookWriter{
			ResponseWriter: w,
			hook: func(h http.Header) {
				if web.IsJSON(h) {
					if dr.config.Origins.Allowed(origin) {
						h.Set("Access-Control-Allow-Origin", origin)
						h.Set("Access-Control-Allow-Credentials", "true")
						h.Add("Vary", "Origin")
					}
					return
				}
				h.Set("X-Content-Type-Options", "nosniff")
				h.Set("X-Frame-Options", "DENY")
				h.Set("X-XSS-Protection", "1; mode=block")
				h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
				// a preflight answer already carries its own cors headers
				if h.Get("Access-Control-Allow-Origin") == "" {
					h.Set("Access-Control-Allow-Origin", "*")
					h.Set("Access-Control-Allow-Methods", AllowMethods)
					h.Set("Access-Control-Allow-Headers", AllowHeaders)
				}
			},
		}
		next.ServeHTTP(hw, r)
	})
}

// hookWriter runs hook once, right before the response headers are sent.
type hookWriter struct {
	http.ResponseWriter
	hook  func(http.Header)
	fired bool
}

func (hw *hookWriter) fire() {
	if hw.fired {
		return
	}
	hw.fired = true
	hw.hook(hw.ResponseWriter.Header())
}

func (hw *hookWriter) WriteHeader(code int) {
	hw.fire()
	hw.ResponseWriter.WriteHeader(code)
}

func (hw *hookWriter) Write(b []byte) (int, error) {
	hw.fire()
	return hw.ResponseWriter.Write(b)
}

func (hw *hookWriter) Flush() {
	hw.fire()
	if f, ok := hw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (hw *hookWriter) Unwrap() http.ResponseWriter {
	return hw.ResponseWriter
}
