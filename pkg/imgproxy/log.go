// Copyright (c) 2012-2024 Eli Janssen
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package imgproxy

import (
	"net/http"

	"github.com/cactus/mlog"
)

func httpReqToMlogMap(req *http.Request) mlog.Map {
	return mlog.Map{
		"method":         req.Method,
		"url":            req.URL.String(),
		"proto":          req.Proto,
		"header":         req.Header,
		"content_length": req.ContentLength,
		"host":           req.Host,
		"remote_addr":    req.RemoteAddr,
	}
}

func httpRespToMlogMap(resp *http.Response) mlog.Map {
	return mlog.Map{
		"status":            resp.StatusCode,
		"proto":             resp.Proto,
		"header":            resp.Header,
		"content_length":    resp.ContentLength,
		"transfer_encoding": resp.TransferEncoding,
	}
}
