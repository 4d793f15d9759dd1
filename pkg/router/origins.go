// Copyright (c) 2012-2024 Eli Janssen
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package router

import "strings"

// Origins is an immutable set of allowed cross-origin request origins.
// A nil *Origins allows nothing.
type Origins struct {
	list []string
	set  map[string]struct{}
}

// NewOrigins returns the set of non-empty origins, with surrounding space
// and trailing slashes removed.
func NewOrigins(origins ...string) *Origins {
	o := &Origins{set: make(map[string]struct{}, len(origins))}
	for _, origin := range origins {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		if origin == "" {
			continue
		}
		if _, ok := o.set[origin]; ok {
			continue
		}
		o.set[origin] = struct{}{}
		o.list = append(o.list, origin)
	}
	return o
}

// Allowed reports whether origin is in the set. Matching is exact.
func (o *Origins) Allowed(origin string) bool {
	if o == nil || origin == "" {
		return false
	}
	_, ok := o.set[origin]
	return ok
}

// List returns the origins in the order they were given.
func (o *Origins) List() []string {
	if o == nil {
		return nil
	}
	return append([]string(nil), o.list...)
}
