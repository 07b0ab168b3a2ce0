// Package reader turns a polled Wiegand decoder into a stream of events.
// Time is always injectable via time.Time parameters.
package reader

import (
	"time"

	"github.com/sweeney/wiegand-reader/internal/wiegand"
)

// EventType identifies what the monitor observed.
type EventType string

const (
	EventFrame   EventType = "FRAME"
	EventError   EventType = "ERROR"
	EventOverrun EventType = "OVERRUN"
)

// Event is something worth publishing.
type Event struct {
	Timestamp     time.Time
	Type          EventType
	BitCount      int    // FRAME only
	Bits          string // FRAME only, '0'/'1' in receive order
	Hex           string // FRAME only
	ElapsedMicros uint32 // FRAME only
	Dropped       uint64 // OVERRUN only, frames lost since the previous poll
}

// FrameSource is the part of *wiegand.Decoder the monitor drives.
type FrameSource interface {
	TakeFrame() (wiegand.Frame, bool)
	Status() wiegand.State
	Clear()
	Overruns() uint64
}

// Counts tracks how many of each event occurred since startup.
type Counts struct {
	Frames   int
	Errors   int
	Overruns uint64
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Counts    Counts
}
