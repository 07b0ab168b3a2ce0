package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/wiegand-reader/internal/wiegand"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Decoder       string       `json:"decoder"`
	Suspended     bool         `json:"suspended"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"event_counts"`
	LastFrame     *FrameJSON   `json:"last_frame,omitempty"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	Frames   int    `json:"frames"`
	Errors   int    `json:"errors"`
	Overruns uint64 `json:"overruns"`
}

// FrameJSON is the most recent frame.
type FrameJSON struct {
	Timestamp     string `json:"timestamp"`
	Bits          string `json:"bits"`
	Hex           string `json:"hex"`
	BitCount      int    `json:"bit_count"`
	ElapsedMicros uint32 `json:"elapsed_us"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Backend          string `json:"backend"`
	D0               int    `json:"d0"`
	D1               int    `json:"d1"`
	PollMs           int64  `json:"poll_ms"`
	MaxBitIntervalUs uint32 `json:"max_bit_interval_us"`
	HeartbeatMs      int64  `json:"heartbeat_ms"`
	Broker           string `json:"broker"`
	HTTPAddr         string `json:"http_addr"`
}

// DecoderLabel renders the decoder state for display. The zero value
// reads UNINITIALIZED.
func DecoderLabel(s wiegand.State) string {
	switch s {
	case wiegand.Uninitialized:
		return "UNINITIALIZED"
	case wiegand.Idle:
		return "IDLE"
	case wiegand.Receiving:
		return "RECEIVING"
	case wiegand.Done:
		return "DONE"
	case wiegand.Error:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		Decoder:       DecoderLabel(snap.Decoder),
		Suspended:     snap.Suspended,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Frames:   snap.Counts.Frames,
			Errors:   snap.Counts.Errors,
			Overruns: snap.Counts.Overruns,
		},
		Config: ConfigJSON{
			Backend:          snap.Config.Backend,
			D0:               snap.Config.D0,
			D1:               snap.Config.D1,
			PollMs:           snap.Config.PollMs,
			MaxBitIntervalUs: snap.Config.MaxBitIntervalUs,
			HeartbeatMs:      snap.Config.HeartbeatMs,
			Broker:           snap.Config.Broker,
			HTTPAddr:         snap.Config.HTTPAddr,
		},
	}

	if f := snap.LastFrame; f != nil {
		inner.LastFrame = &FrameJSON{
			Timestamp:     f.Timestamp.UTC().Format(time.RFC3339Nano),
			Bits:          f.Bits,
			Hex:           f.Hex,
			BitCount:      f.BitCount,
			ElapsedMicros: f.ElapsedMicros,
		}
	}

	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
