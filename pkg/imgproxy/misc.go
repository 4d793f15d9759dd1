// Copyright (c) 2012-2024 Eli Janssen
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package imgproxy

import (
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"syscall"
)

var errSizeExceeded = errors.New("content length exceeded")

func isBrokenPipe(err error) bool {
	var opErr *net.OpError
	if !errors.As(err, &opErr) {
		return errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ECONNRESET)
	}

	var syscallErr *os.SyscallError
	if errors.As(opErr.Err, &syscallErr) {
		switch syscallErr.Err {
		case syscall.EPIPE, syscall.ECONNRESET:
			return true
		default:
			return false
		}
	}

	switch opErr.Err {
	case syscall.EPIPE, syscall.ECONNRESET:
		return true
	default:
		return false
	}
}

func mustParseNetmask(s string) *net.IPNet {
	_, ipnet, err := net.ParseCIDR(s)
	if err != nil {
		panic(`misc: mustParseNetmask(` + s + `): ` + err.Error())
	}
	return ipnet
}

func mustParseNetmasks(networks []string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(networks))
	for _, s := range networks {
		nets = append(nets, mustParseNetmask(s))
	}
	return nets
}

func isRejectedIP(ip net.IP) bool {
	if !ip.IsGlobalUnicast() {
		return true
	}

	// test whether address is ipv4 or ipv6, to pick the proper filter list
	// (otherwise address may be 16 byte representation in go but not an actual
	// ipv6 address. this also helps avoid accidentally matching the
	// "::ffff:0:0/96" netblock
	checker := rejectIPv4Networks
	if ip.To4() == nil {
		checker = rejectIPv6Networks
	}

	for _, ipnet := range checker {
		if ipnet.Contains(ip) {
			return true
		}
	}

	return false
}

// readAllLimited reads r to EOF. When max > 0 and r yields more than max
// bytes, errSizeExceeded is returned and the partial data is discarded.
func readAllLimited(r io.Reader, max int64) ([]byte, error) {
	if max <= 0 {
		return io.ReadAll(r)
	}
	b, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > max {
		return nil, errSizeExceeded
	}
	return b, nil
}

var bufPool = sync.Pool{
	New: func() interface{} {
		// note: 32 * 1024 is the size used by io.Copy by default.
		buf := make([]byte, 32*1024)
		return &buf
	},
}
