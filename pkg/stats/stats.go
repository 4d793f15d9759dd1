// Copyright (c) 2012-2024 Eli Janssen
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package stats

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/cactus/mlog"

	"github.com/contentscope/gateway/pkg/web"
)

// ProxyStats is the counter container
type ProxyStats struct {
	clients   atomic.Uint64
	bytes     atomic.Uint64
	fallbacks atomic.Uint64
}

// Snapshot is a point in time copy of the counters.
type Snapshot struct {
	ClientsServed   uint64 `json:"clients_served"`
	BytesServed     uint64 `json:"bytes_served"`
	FallbacksServed uint64 `json:"fallbacks_served"`
}

// AddServed increments the number of clients served counter
func (ps *ProxyStats) AddServed() {
	ps.clients.Add(1)
}

// AddBytes increments the number of bytes served counter
func (ps *ProxyStats) AddBytes(bc int64) {
	if bc <= 0 {
		return
	}
	ps.bytes.Add(uint64(bc))
}

// AddFallback increments the number of fallback assets served counter
func (ps *ProxyStats) AddFallback() {
	ps.fallbacks.Add(1)
}

// GetStats returns the current counters.
func (ps *ProxyStats) GetStats() Snapshot {
	return Snapshot{
		ClientsServed:   ps.clients.Load(),
		BytesServed:     ps.bytes.Load(),
		FallbacksServed: ps.fallbacks.Load(),
	}
}

// Handler returns an http.HandlerFunc that returns running totals and
// stats about the server.
func Handler(ps *ProxyStats) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := web.WriteJSON(w, http.StatusOK, ps.GetStats())
		switch {
		case err == nil:
		case errors.Is(err, web.ErrEncode):
			web.WriteError(w, http.StatusInternalServerError, err.Error())
		default:
			// status already sent
			if mlog.HasDebug() {
				mlog.Debugm("error writing stats", mlog.Map{"err": err})
			}
		}
	}
}
