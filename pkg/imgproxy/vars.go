// Copyright (c) 2012-2024 Eli Janssen
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package imgproxy

import "net/http"

const (
	// DefaultUserAgent is sent on every upstream image request.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
	// DefaultReferer is sent on every upstream image request. The image
	// hosts refuse hotlinked requests without it.
	DefaultReferer = "https://www.bilibili.com"

	// DefaultContentType replaces upstream content types that are not images.
	DefaultContentType = "image/jpeg"

	// CacheControl is the cache policy for relayed and fallback images.
	CacheControl = "public, max-age=31536000"
)

// upstreamHeaders are the fixed request headers for outgoing fetches.
// User-Agent and Referer are filled in from Config.
var upstreamHeaders = map[string]string{
	"Accept":          "image/webp,image/apng,image/*,*/*;q=0.8",
	"Accept-Encoding": "gzip, deflate, br",
	"Connection":      "keep-alive",
}

// RelayHeaders are set on every relayed image response, in addition to
// Content-Type and Content-Length.
var RelayHeaders = map[string]string{
	"Cache-Control":               CacheControl,
	"Access-Control-Allow-Origin": "*",
	"X-Frame-Options":             "DENY",
	"X-Content-Type-Options":      "nosniff",
}

// FallbackHeader is set on the fallback asset response.
var FallbackHeader = http.Header{
	"Cache-Control":               {CacheControl},
	"Access-Control-Allow-Origin": {"*"},
}

// networks to reject
var rejectIPv4Networks = mustParseNetmasks(
	[]string{
		// ipv4 loopback
		"127.0.0.0/8",
		// ipv4 link local
		"169.254.0.0/16",
		// ipv4 rfc1918
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		// carrier grade nat
		"100.64.0.0/10",
	},
)

var rejectIPv6Networks = mustParseNetmasks(
	[]string{
		// ipv6 loopback
		"::1/128",
		// ipv6 link local
		"fe80::/10",
		// old ipv6 site local
		"fec0::/10",
		// ipv6 ULA
		"fc00::/7",
		// ipv4 mapped onto ipv6
		"::ffff:0:0/96",
	},
)
