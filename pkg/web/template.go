// Copyright (c) 2012-2024 Eli Janssen
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package web

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/cactus/mlog"
)

// IndexTemplate is the template rendered for the landing page.
const IndexTemplate = "index.html"

var errNoTemplates = errors.New("no templates loaded")

// RenderError is returned when a page template fails to render.
type RenderError struct {
	Template string
	Err      error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("rendering %s: %s", e.Template, e.Err)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}

// IndexData is passed to the landing page template.
type IndexData struct {
	Title     string
	Version   string
	Platforms []string
	Path      string
}

// Pages renders html templates loaded from a directory at startup.
type Pages struct {
	tmpl *template.Template
	data IndexData
}

// LoadPages parses every *.html file in dir. The directory is created if
// it is missing; an empty directory yields Pages that fail every render.
func LoadPages(dir string, data IndexData) (*Pages, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating templates dir: %w", err)
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.html"))
	if err != nil {
		return nil, err
	}

	p := &Pages{data: data}
	if len(files) == 0 {
		mlog.Printm("no templates found", mlog.Map{"dir": dir})
		return p, nil
	}

	p.tmpl, err = template.ParseFiles(files...)
	if err != nil {
		return nil, fmt.Errorf("parsing templates: %w", err)
	}

	if mlog.HasDebug() {
		mlog.Debugm("loaded templates", mlog.Map{"dir": dir, "files": files})
	}
	return p, nil
}

// Render executes the named template into a buffer, so a failure never
// leaves a half written page.
func (p *Pages) Render(name string, data any) ([]byte, error) {
	if p == nil || p.tmpl == nil {
		return nil, &RenderError{Template: name, Err: errNoTemplates}
	}
	var buf bytes.Buffer
	if err := p.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, &RenderError{Template: name, Err: err}
	}
	return buf.Bytes(), nil
}

// ServeHTTP renders the landing page. Render failures are reported as a
// JSON 500.
func (p *Pages) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	data := p.data
	data.Path = req.URL.Path

	b, err := p.Render(IndexTemplate, data)
	if err != nil {
		mlog.Printm("error rendering template", mlog.Map{"err": err})
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/html; charset=utf-8")
	h.Set("Content-Length", strconv.Itoa(len(b)))
	w.WriteHeader(http.StatusOK)
	if req.Method == http.MethodHead {
		return
	}
	if _, err := w.Write(b); err != nil && mlog.HasDebug() {
		mlog.Debugm("error writing page", mlog.Map{"err": err})
	}
}
