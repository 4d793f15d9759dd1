// Copyright (c) 2012-2024 Eli Janssen
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

func TestWriteError(t *testing.T) {
	t.Parallel()
	record := httptest.NewRecorder()
	record.Header().Set("Content-Length", "12")
	WriteError(record, http.StatusTooManyRequests, "slow down")

	resp := record.Result()
	assert.Check(t, is.Equal(http.StatusTooManyRequests, resp.StatusCode))
	assert.Check(t, IsJSON(resp.Header))
	assert.Check(t, is.Equal("", resp.Header.Get("Content-Length")))

	var body ErrorBody
	assert.NilError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Check(t, is.DeepEqual(ErrorBody{Success: false, Message: "slow down"}, body))
}

func TestWriteJSONUnencodable(t *testing.T) {
	t.Parallel()
	record := httptest.NewRecorder()
	err := WriteJSON(record, http.StatusOK, map[string]any{"c": make(chan int)})
	assert.Check(t, errors.Is(err, ErrEncode))
	assert.Check(t, !IsJSON(record.Header()))
}

func TestRequestID(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	assert.Check(t, is.Equal("", RequestID(ctx)))
	assert.Check(t, is.Equal("abc", RequestID(WithRequestID(ctx, "abc"))))
}

func writeTemplate(t *testing.T, dir, name, body string) {
	t.Helper()
	assert.NilError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestPagesServeIndex(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeTemplate(t, dir, IndexTemplate, `<h1>{{.Title}} {{.Version}}</h1>{{range .Platforms}}<li>{{.}}</li>{{end}}<p>{{.Path}}</p>`)

	p, err := LoadPages(dir, IndexData{Title: "gateway", Version: "1.0", Platforms: []string{"bilibili"}})
	assert.NilError(t, err)

	req := httptest.NewRequest(http.MethodGet, "http://gateway.example/", nil)
	record := httptest.NewRecorder()
	p.ServeHTTP(record, req)
	resp := record.Result()

	assert.Check(t, is.Equal(http.StatusOK, resp.StatusCode))
	assert.Check(t, is.Equal("text/html; charset=utf-8", resp.Header.Get("Content-Type")))
	body, _ := io.ReadAll(resp.Body)
	assert.Check(t, is.Equal("<h1>gateway 1.0</h1><li>bilibili</li><p>/</p>", string(body)))
}

func TestPagesRenderFailure(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeTemplate(t, dir, IndexTemplate, `{{.Missing.Field}}`)

	p, err := LoadPages(dir, IndexData{})
	assert.NilError(t, err)

	_, err = p.Render(IndexTemplate, IndexData{})
	var re *RenderError
	assert.Check(t, errors.As(err, &re))

	req := httptest.NewRequest(http.MethodGet, "http://gateway.example/", nil)
	record := httptest.NewRecorder()
	p.ServeHTTP(record, req)
	resp := record.Result()
	assert.Check(t, is.Equal(http.StatusInternalServerError, resp.StatusCode))
	assert.Check(t, IsJSON(resp.Header))

	var body ErrorBody
	assert.NilError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Check(t, !body.Success)
	assert.Check(t, is.Contains(body.Message, IndexTemplate))
}

func TestPagesEmptyDir(t *testing.T) {
	t.Parallel()
	dir := filepath.Join(t.TempDir(), "templates")

	p, err := LoadPages(dir, IndexData{})
	assert.NilError(t, err)
	_, err = os.Stat(dir)
	assert.NilError(t, err)

	_, err = p.Render(IndexTemplate, nil)
	assert.Check(t, errors.Is(err, errNoTemplates))
}

func TestPagesBadTemplate(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeTemplate(t, dir, IndexTemplate, `{{ if }}`)
	_, err := LoadPages(dir, IndexData{})
	assert.Check(t, is.ErrorContains(err, "parsing templates"))
}
