// Package mqtt publishes reader events to an MQTT broker, with a fake for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/wiegand-reader/internal/reader"
)

// Topics derives the frame and system topics from a prefix and client ID,
// e.g. "wiegand/front-door/frames".
func Topics(prefix, clientID string) (frames, system string) {
	base := prefix + "/" + clientID
	return base + "/frames", base + "/system"
}

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a reader event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event reader.Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT", "SUSPENDED"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload is the MQTT message for a reader event.
type Payload struct {
	Frame FramePayload `json:"frame"`
}

// FramePayload contains the event details. Frame fields are omitted for
// ERROR and OVERRUN events.
type FramePayload struct {
	Timestamp     string `json:"timestamp"`
	Event         string `json:"event"`
	Bits          string `json:"bits,omitempty"`
	Hex           string `json:"hex,omitempty"`
	BitCount      int    `json:"bit_count,omitempty"`
	ElapsedMicros uint32 `json:"elapsed_us,omitempty"`
	Dropped       uint64 `json:"dropped,omitempty"`
}

// FormatPayload creates the JSON payload for a reader event.
func FormatPayload(event reader.Event) ([]byte, error) {
	payload := Payload{
		Frame: FramePayload{
			Timestamp:     event.Timestamp.UTC().Format(time.RFC3339Nano),
			Event:         string(event.Type),
			Bits:          event.Bits,
			Hex:           event.Hex,
			BitCount:      event.BitCount,
			ElapsedMicros: event.ElapsedMicros,
			Dropped:       event.Dropped,
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
