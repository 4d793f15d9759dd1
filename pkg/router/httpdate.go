// Copyright (c) 2012-2024 Eli Janssen
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package router

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// httpDate caches the formatted Date header value, refreshed once a second
// so handlers never format a timestamp per response.
type httpDate struct {
	stamp   atomic.Pointer[string]
	startup sync.Once
}

func (d *httpDate) String() string {
	if s := d.stamp.Load(); s != nil {
		return *s
	}
	return d.update(time.Now())
}

func (d *httpDate) update(t time.Time) string {
	s := t.UTC().Format(http.TimeFormat)
	d.stamp.Store(&s)
	return s
}

// start spawns the single refresher goroutine.
func (d *httpDate) start() {
	d.startup.Do(func() {
		d.update(time.Now())
		go func() {
			ticker := time.NewTicker(time.Second)
			defer ticker.Stop()
			for t := range ticker.C {
				d.update(t)
			}
		}()
	})
}

func newHTTPDate() *httpDate {
	d := &httpDate{}
	d.start()
	return d
}

var formattedDate = newHTTPDate()
