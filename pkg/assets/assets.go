// Copyright (c) 2012-2024 Eli Janssen
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package assets provisions static files at startup and serves them from
// memory, so request handlers never touch the filesystem.
package assets

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cactus/mlog"
)

// ErrUnavailable is returned when serving an asset that was never
// provisioned.
var ErrUnavailable = errors.New("asset unavailable")

// An Asset is an immutable in-memory copy of a provisioned file.
type Asset struct {
	path        string
	contentType string
	header      http.Header
	body        []byte
	modTime     time.Time
}

// Provision makes sure the file at path exists, creating it empty (along
// with its directory) when it does not, then loads it. Concurrent calls for
// the same path create at most one file.
func Provision(path, contentType string, header http.Header) (*Asset, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating asset dir: %w", err)
	}

	// #nosec G304
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	switch {
	case err == nil:
		if err := f.Close(); err != nil {
			return nil, fmt.Errorf("creating asset %s: %w", path, err)
		}
		mlog.Infom("created empty asset", mlog.Map{"path": path})
	case errors.Is(err, fs.ErrExist):
	default:
		return nil, fmt.Errorf("creating asset %s: %w", path, err)
	}

	// #nosec G304
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading asset %s: %w", path, err)
	}
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("reading asset %s: %w", path, err)
	}

	return &Asset{
		path:        path,
		contentType: contentType,
		header:      header.Clone(),
		body:        body,
		modTime:     fi.ModTime().UTC(),
	}, nil
}

// Path returns the file the asset was loaded from.
func (a *Asset) Path() string {
	return a.path
}

// Len returns the size of the asset body.
func (a *Asset) Len() int {
	return len(a.body)
}

// Serve writes the asset with a 200 status.
func (a *Asset) Serve(w http.ResponseWriter, req *http.Request) error {
	if a == nil {
		return ErrUnavailable
	}

	h := w.Header()
	for k, vv := range a.header {
		h[k] = vv
	}
	h.Set("Content-Type", a.contentType)
	h.Set("Content-Length", strconv.Itoa(len(a.body)))
	h.Set("Last-Modified", a.modTime.Format(http.TimeFormat))
	w.WriteHeader(http.StatusOK)

	if req.Method == http.MethodHead || len(a.body) == 0 {
		return nil
	}
	_, err := w.Write(a.body)
	return err
}

// ServeHTTP fulfills the http.Handler interface.
func (a *Asset) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if err := a.Serve(w, req); err != nil {
		if errors.Is(err, ErrUnavailable) {
			http.Error(w, "404 Not Found", http.StatusNotFound)
			return
		}
		if mlog.HasDebug() {
			mlog.Debugm("error writing asset", mlog.Map{"path": a.path, "err": err})
		}
	}
}
