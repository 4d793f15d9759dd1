// Copyright (c) 2012-2024 Eli Janssen
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package imgproxy

import (
	"fmt"
	"net"
	"net/http"
	"net/url"

	"golang.org/x/net/http/httpproxy"
)

// upstreamProxy describes a configured outbound http(s) proxy. Dials to
// it are exempt from private network rejection, since proxies commonly
// live on internal addresses.
type upstreamProxy struct {
	host      string
	port      string
	addresses []net.IP
}

func (up *upstreamProxy) matches(host, port string) bool {
	if up == nil || up.port != port {
		return false
	}
	if up.host == host {
		return true
	}

	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	for i := range up.addresses {
		if ip.Equal(up.addresses[i]) {
			return true
		}
	}
	return false
}

func parseUpstreamProxy(proxy string) (*upstreamProxy, error) {
	if proxy == "" {
		return nil, nil
	}

	proxyURL, err := url.Parse(proxy)
	if err != nil ||
		(proxyURL.Scheme != "http" &&
			proxyURL.Scheme != "https" &&
			proxyURL.Scheme != "socks5") {
		// proxy was bogus. Try prepending "http://" to it and
		// see if that parses correctly.
		proxyURL, err = url.Parse("http://" + proxy)
	}
	if err != nil {
		return nil, fmt.Errorf("invalid proxy address %q: %w", proxy, err)
	}

	up := &upstreamProxy{
		host: proxyURL.Hostname(),
		port: proxyURL.Port(),
	}
	if up.port == "" {
		up.port = "80"
		if proxyURL.Scheme == "https" {
			up.port = "443"
		}
	}

	if ip := net.ParseIP(up.host); ip != nil {
		up.addresses = append(up.addresses, ip)
	} else if ips, err := net.LookupIP(up.host); err == nil {
		up.addresses = append(up.addresses, ips...)
	}

	return up, nil
}

// upstreamProxies holds the proxies from an httpproxy.Config along with the
// transport proxy func built from it.
type upstreamProxies struct {
	list      []*upstreamProxy
	proxyFunc func(*url.URL) (*url.URL, error)
}

func newUpstreamProxies(cfg *httpproxy.Config) (*upstreamProxies, error) {
	if cfg == nil {
		return &upstreamProxies{}, nil
	}

	ups := &upstreamProxies{proxyFunc: cfg.ProxyFunc()}
	for _, p := range []string{cfg.HTTPProxy, cfg.HTTPSProxy} {
		up, err := parseUpstreamProxy(p)
		if err != nil {
			return nil, err
		}
		if up != nil {
			ups.list = append(ups.list, up)
		}
	}
	return ups, nil
}

func (ups *upstreamProxies) matches(host, port string) bool {
	for _, up := range ups.list {
		if up.matches(host, port) {
			return true
		}
	}
	return false
}

// transportProxy adapts the proxy func for use as http.Transport.Proxy.
func (ups *upstreamProxies) transportProxy() func(*http.Request) (*url.URL, error) {
	if ups.proxyFunc == nil {
		return nil
	}
	return func(req *http.Request) (*url.URL, error) {
		return ups.proxyFunc(req.URL)
	}
}
