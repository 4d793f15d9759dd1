// Copyright (c) 2012-2024 Eli Janssen
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package imgproxy

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
)

// Relay writes img to w with the relay headers and a 200 status. The body
// is copied in pooled chunks rather than a single write. It returns the
// number of body bytes written.
func Relay(w http.ResponseWriter, req *http.Request, img *Image) (int64, error) {
	h := w.Header()
	for k, v := range RelayHeaders {
		h.Set(k, v)
	}
	h.Set("Content-Type", img.ContentType)
	h.Set("Content-Length", strconv.Itoa(len(img.Body)))
	w.WriteHeader(http.StatusOK)

	if req.Method == http.MethodHead {
		return 0, nil
	}

	// get a []byte from bufpool, and put it back on defer
	buf := bufPool.Get().(*[]byte)
	defer bufPool.Put(buf)

	// hide ReaderFrom/WriterTo so CopyBuffer actually uses buf
	return io.CopyBuffer(
		struct{ io.Writer }{w},
		struct{ io.Reader }{bytes.NewReader(img.Body)},
		*buf,
	)
}
