// Copyright (c) 2012-2024 Eli Janssen
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package imgproxy

import (
	"net/url"
	"strings"
)

// DefaultAllowList is the set of domain substrings image targets must contain.
var DefaultAllowList = []string{"bilibili.com", "hdslb.com"}

// ValidationError is returned when a proxy target is not permitted.
type ValidationError struct {
	// Target is the normalized url (or the raw path segment, if it could
	// not be decoded).
	Target string
	// Err is set when the path segment could not be percent-decoded.
	Err error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return "target not permitted: " + e.Err.Error()
	}
	return "target not permitted: " + e.Target
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Validate percent-decodes a raw path segment, prepends https:// when no
// scheme is present, and checks the result against the allow-list.
// Matching is a case-insensitive substring match against the whole url.
func Validate(rawPath string, allowList []string) (string, error) {
	target, err := url.PathUnescape(rawPath)
	if err != nil {
		return "", &ValidationError{Target: rawPath, Err: err}
	}

	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		target = "https://" + target
	}

	if !Allowed(target, allowList) {
		return "", &ValidationError{Target: target}
	}
	return target, nil
}

// Allowed reports whether target contains one of the allow-list entries.
func Allowed(target string, allowList []string) bool {
	lower := strings.ToLower(target)
	for _, domain := range allowList {
		domain = strings.ToLower(strings.TrimSpace(domain))
		if domain == "" {
			continue
		}
		if strings.Contains(lower, domain) {
			return true
		}
	}
	return false
}

// WithQuery appends an undecoded query string to a validated target.
func WithQuery(target, rawQuery string) string {
	if rawQuery == "" {
		return target
	}
	if strings.Contains(target, "?") {
		return target + "&" + rawQuery
	}
	return target + "?" + rawQuery
}
