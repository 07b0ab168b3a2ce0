package reader

import (
	"time"

	"github.com/sweeney/wiegand-reader/internal/wiegand"
)

// Monitor polls a decoder and reports completed frames and errors.
// Not safe for concurrent use; it is driven from a single poll loop.
type Monitor struct {
	dec           FrameSource
	startTime     time.Time
	counts        Counts
	lastFrame     *Event
	lastHeartbeat time.Time
}

// NewMonitor creates a Monitor for dec.
// The startTime is used for calculating uptime in heartbeat events.
func NewMonitor(dec FrameSource, startTime time.Time) *Monitor {
	return &Monitor{
		dec:           dec,
		startTime:     startTime,
		lastHeartbeat: startTime,
	}
}

// Process polls the decoder once and returns any events that should be emitted.
// A finished frame is taken in the same step as the poll, and an error is
// consumed by clearing the decoder, so the next frame can start without an
// overrun.
func (m *Monitor) Process(t time.Time) []Event {
	var events []Event

	f, finished := m.dec.TakeFrame()

	// Overruns happen in the edge handler; pick them up on the poll.
	if n := m.dec.Overruns(); n > m.counts.Overruns {
		events = append(events, Event{
			Timestamp: t,
			Type:      EventOverrun,
			Dropped:   n - m.counts.Overruns,
		})
		m.counts.Overruns = n
	}

	switch {
	case finished:
		e := Event{
			Timestamp:     t,
			Type:          EventFrame,
			BitCount:      f.BitCount,
			Bits:          f.BitString(),
			Hex:           f.Hex(),
			ElapsedMicros: f.TotalMicros,
		}
		m.counts.Frames++
		m.lastFrame = &e
		events = append(events, e)
	case m.dec.Status() == wiegand.Error:
		m.dec.Clear()
		m.counts.Errors++
		events = append(events, Event{Timestamp: t, Type: EventError})
	}

	return events
}

// CurrentStatus returns the decoder status as of the last poll.
func (m *Monitor) CurrentStatus() wiegand.State {
	return m.dec.Status()
}

// LastFrame returns the most recent frame event, or nil if none was seen.
func (m *Monitor) LastFrame() *Event {
	if m.lastFrame == nil {
		return nil
	}
	e := *m.lastFrame
	return &e
}

// CountsSnapshot returns a copy of the current counts.
func (m *Monitor) CountsSnapshot() Counts {
	return m.counts
}

// CheckHeartbeat returns heartbeat data if the interval has elapsed since the
// last heartbeat (or startup). Returns nil if the interval has not elapsed,
// or if interval is <= 0 (disabled).
func (m *Monitor) CheckHeartbeat(now time.Time, interval time.Duration) *HeartbeatData {
	if interval <= 0 {
		return nil
	}
	if now.Sub(m.lastHeartbeat) < interval {
		return nil
	}

	m.lastHeartbeat = now
	return &HeartbeatData{
		Timestamp: now,
		Uptime:    now.Sub(m.startTime),
		Counts:    m.counts,
	}
}
