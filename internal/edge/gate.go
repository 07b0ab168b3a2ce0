package edge

import (
	"sync/atomic"
	"time"
)

// Gate decides whether an edge event reaches the handler.
// An event passes when the gate is open and its timestamp is not older than
// the last ClearPending watermark.
type Gate struct {
	open      atomic.Bool
	watermark atomic.Int64
}

// Open lets events through.
func (g *Gate) Open() { g.open.Store(true) }

// Shut blocks all events.
func (g *Gate) Shut() { g.open.Store(false) }

// IsOpen reports whether events are let through.
func (g *Gate) IsOpen() bool { return g.open.Load() }

// Clear drops every event stamped before now.
func (g *Gate) Clear(now time.Duration) { g.watermark.Store(int64(now)) }

// Admit reports whether an event stamped ts should be delivered.
func (g *Gate) Admit(ts time.Duration) bool {
	return g.open.Load() && int64(ts) >= g.watermark.Load()
}
