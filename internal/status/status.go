// Package status keeps the reader's current state for the HTTP page and
// MQTT system events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/wiegand-reader/internal/reader"
	"github.com/sweeney/wiegand-reader/internal/wiegand"
)

// NetworkInfo is the host's network state. It is kept here so status does
// not import internal/mqtt.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config is the daemon configuration shown on the status page.
type Config struct {
	Backend          string
	D0               int
	D1               int
	PollMs           int64
	MaxBitIntervalUs uint32
	HeartbeatMs      int64
	Broker           string
	HTTPAddr         string
}

// Snapshot is a point-in-time copy of the daemon state.
type Snapshot struct {
	Decoder       wiegand.State
	Suspended     bool
	Counts        reader.Counts
	LastFrame     *reader.Event
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Update records the decoder status, counts and most recent frame.
// Called from runLoop on every tick. last may be nil.
func (t *Tracker) Update(st wiegand.State, counts reader.Counts, last *reader.Event) {
	t.mu.Lock()
	t.snap.Decoder = st
	t.snap.Counts = counts
	t.snap.LastFrame = last
	t.mu.Unlock()
}

// SetSuspended records whether capture is suspended.
func (t *Tracker) SetSuspended(suspended bool) {
	t.mu.Lock()
	t.snap.Suspended = suspended
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a copy of the daemon state with Now set to the
// current time.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	if s.LastFrame != nil {
		f := *s.LastFrame
		s.LastFrame = &f
	}
	s.Now = time.Now()
	return s
}
