// Package metrics counts what the drivers do with the economy.
package metrics

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"
)

// Collector gathers counters. The zero value is not usable; call New.
type Collector struct {
	Ticks          atomic.Int64
	TickErrors     atomic.Int64
	ManualActions  atomic.Int64
	Purchases      atomic.Int64
	RejectedFunds  atomic.Int64
	RejectedKind   atomic.Int64
	RejectedInput  atomic.Int64
	RateLimited    atomic.Int64
	WSConnections  atomic.Int64
	WSMessagesIn   atomic.Int64
	WSMessagesOut  atomic.Int64
	WSDroppedSends atomic.Int64

	startTime time.Time
}

// New creates a collector whose uptime starts now.
func New() *Collector {
	return &Collector{startTime: time.Now()}
}

// Snapshot returns current metrics as a map.
func (c *Collector) Snapshot() map[string]interface{} {
	return map[string]interface{}{
		"uptime_seconds": time.Since(c.startTime).Seconds(),

		"loop": map[string]interface{}{
			"ticks":  c.Ticks.Load(),
			"errors": c.TickErrors.Load(),
		},

		"economy": map[string]interface{}{
			"manual_actions": c.ManualActions.Load(),
			"purchases":      c.Purchases.Load(),
			"rejected": map[string]interface{}{
				"insufficient_funds": c.RejectedFunds.Load(),
				"unknown_kind":       c.RejectedKind.Load(),
				"invalid_input":      c.RejectedInput.Load(),
				"rate_limited":       c.RateLimited.Load(),
			},
		},

		"websocket": map[string]interface{}{
			"active_connections": c.WSConnections.Load(),
			"messages_in":        c.WSMessagesIn.Load(),
			"messages_out":       c.WSMessagesOut.Load(),
			"dropped_sends":      c.WSDroppedSends.Load(),
		},
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (c *Collector) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache")
		json.NewEncoder(w).Encode(c.Snapshot())
	}
}
