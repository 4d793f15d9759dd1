// Copyright (c) 2012-2024 Eli Janssen
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package web holds the response helpers and page rendering shared by the
// gateway's HTTP handlers.
package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/cactus/mlog"
)

// JSONContentType is the Content-Type of every JSON response.
const JSONContentType = "application/json"

// ErrorBody is the JSON body of failed requests.
type ErrorBody struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ErrEncode is wrapped by WriteJSON errors that happened before anything
// was written, so the caller can still send an error response.
var ErrEncode = errors.New("encoding json response")

// WriteJSON encodes v as the response body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEncode, err)
	}
	b = append(b, '\n')

	h := w.Header()
	h.Set("Content-Type", JSONContentType)
	h.Del("Content-Length")
	w.WriteHeader(status)
	_, err = w.Write(b)
	return err
}

// WriteError writes a {"success": false, "message": ...} body.
func WriteError(w http.ResponseWriter, status int, message string) {
	err := WriteJSON(w, status, ErrorBody{Success: false, Message: message})
	if err != nil && mlog.HasDebug() {
		mlog.Debugm("error writing error response", mlog.Map{"err": err, "status": status})
	}
}

// IsJSON reports whether the response headers declare a JSON body.
func IsJSON(h http.Header) bool {
	return h.Get("Content-Type") == JSONContentType
}
