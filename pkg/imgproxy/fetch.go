// Copyright (c) 2012-2024 Eli Janssen
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package imgproxy

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/cactus/mlog"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
)

var (
	// ErrRedirect is wrapped by fetch errors caused by a rejected redirect.
	ErrRedirect = errors.New("redirect rejected")
	// ErrDeniedNetwork is wrapped by fetch errors caused by a dial to a
	// private or otherwise non-routable address.
	ErrDeniedNetwork = errors.New("denied network")
)

// FetchError is returned by Fetch when the upstream could not be reached,
// answered with a non-2xx status, or sent a body that could not be read.
type FetchError struct {
	URL string
	// StatusCode is the upstream status, or 0 if no response was received.
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: upstream status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %s", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Image is a fully read upstream image.
type Image struct {
	// ContentType is always an image/* type.
	ContentType string
	Body        []byte
}

// Fetcher retrieves images from allow-listed hosts.
type Fetcher struct {
	client    *http.Client
	header    http.Header
	maxSize   int64
	allowList []string
}

// NewFetcher returns a Fetcher built from the passed Config.
func NewFetcher(pc Config) (*Fetcher, error) {
	ups, err := newUpstreamProxies(pc.UpstreamProxy)
	if err != nil {
		return nil, err
	}

	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	if !pc.AllowPrivateNetworks {
		dialer.Control = func(network, address string, _ syscall.RawConn) error {
			host, port, err := net.SplitHostPort(address)
			if err != nil {
				return err
			}
			if ups.matches(host, port) {
				return nil
			}
			if ip := net.ParseIP(host); ip != nil && isRejectedIP(ip) {
				return fmt.Errorf("dial %s: %w", address, ErrDeniedNetwork)
			}
			return nil
		}
	}

	dialContext := dialer.DialContext
	if pc.dialContext != nil {
		dialContext = pc.dialContext
	}

	tr := &http.Transport{
		Proxy:               ups.transportProxy(),
		DialContext:         dialContext,
		TLSHandshakeTimeout: 10 * time.Second,
		// image hosts serve certificates for a zoo of cdn names
		// #nosec G402
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true},

		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   8,
		IdleConnTimeout:       30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,

		DisableKeepAlives: pc.DisableKeepAlivesBE,
		// Accept-Encoding is sent explicitly, so the transport would not
		// decode anyway. decodeBody handles it.
		DisableCompression: true,
	}

	header := make(http.Header, len(upstreamHeaders)+2)
	for k, v := range upstreamHeaders {
		header.Set(k, v)
	}
	header.Set("User-Agent", pc.UserAgent)
	header.Set("Referer", pc.Referer)

	f := &Fetcher{
		client: &http.Client{
			Transport: tr,
			Timeout:   pc.RequestTimeout,
		},
		header:    header,
		maxSize:   pc.MaxSize,
		allowList: pc.AllowList,
	}

	maxRedirects := pc.MaxRedirects
	f.client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			if mlog.HasDebug() {
				mlog.Debugm("got bad redirect: too many redirects", mlog.Map{"url": req.URL.String()})
			}
			return fmt.Errorf("too many redirects: %w", ErrRedirect)
		}
		if !Allowed(req.URL.String(), f.allowList) {
			if mlog.HasDebug() {
				mlog.Debugm("got bad redirect: target not allowed", mlog.Map{"url": req.URL.String()})
			}
			return fmt.Errorf("redirect to %s: %w", req.URL.Host, ErrRedirect)
		}
		// the client copies headers from the first request on redirect,
		// so the referer and user agent carry over.
		return nil
	}

	return f, nil
}

// Fetch retrieves target, which must already be validated. On any failure
// a *FetchError is returned and no bytes are.
func (f *Fetcher) Fetch(ctx context.Context, target string) (*Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &FetchError{URL: target, Err: err}
	}
	for k, vv := range f.header {
		req.Header[k] = vv
	}

	if mlog.HasDebug() {
		mlog.Debugm("built outgoing request", mlog.Map{"req": httpReqToMlogMap(req)})
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: target, Err: err}
	}
	defer resp.Body.Close()

	if mlog.HasDebug() {
		mlog.Debugm("response from upstream", mlog.Map{"resp": httpRespToMlogMap(resp)})
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{
			URL:        target,
			StatusCode: resp.StatusCode,
			Err:        errors.New(http.StatusText(resp.StatusCode)),
		}
	}

	// bail early when the upstream is honest about the size
	if f.maxSize > 0 && resp.ContentLength > f.maxSize {
		return nil, &FetchError{URL: target, Err: errSizeExceeded}
	}

	raw, err := readAllLimited(resp.Body, f.maxSize)
	if err != nil {
		return nil, &FetchError{URL: target, Err: err}
	}

	body, err := decodeBody(resp.Header.Get("Content-Encoding"), raw, f.maxSize)
	if err != nil {
		return nil, &FetchError{URL: target, Err: err}
	}

	return &Image{
		ContentType: imageContentType(resp.Header.Get("Content-Type")),
		Body:        body,
	}, nil
}

// imageContentType returns ct when it names an image type, and
// DefaultContentType otherwise.
func imageContentType(ct string) string {
	if !strings.HasPrefix(ct, "image/") {
		return DefaultContentType
	}
	return ct
}

// decodeBody undoes the content-coding of an upstream body. Codings are
// applied in order, so they are removed in reverse.
func decodeBody(contentEncoding string, body []byte, maxSize int64) ([]byte, error) {
	if contentEncoding == "" {
		return body, nil
	}

	codings := strings.Split(contentEncoding, ",")
	for i := len(codings) - 1; i >= 0; i-- {
		var (
			r   io.Reader
			err error
		)

		switch coding := strings.ToLower(strings.TrimSpace(codings[i])); coding {
		case "", "identity":
			continue
		case "gzip", "x-gzip":
			r, err = gzip.NewReader(bytes.NewReader(body))
		case "deflate":
			// "deflate" is supposed to be zlib wrapped, but plenty of
			// servers send a raw deflate stream.
			r, err = zlib.NewReader(bytes.NewReader(body))
			if err != nil {
				r, err = flate.NewReader(bytes.NewReader(body)), nil
			}
		case "br":
			r = brotli.NewReader(bytes.NewReader(body))
		default:
			return nil, fmt.Errorf("unsupported content encoding %q", coding)
		}
		if err != nil {
			return nil, fmt.Errorf("decoding %s body: %w", codings[i], err)
		}

		body, err = readAllLimited(r, maxSize)
		if err != nil {
			return nil, fmt.Errorf("decoding %s body: %w", codings[i], err)
		}
	}
	return body, nil
}
