// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/roast-timer/internal/logic"
)

// Topic is the MQTT topic for roast events.
const Topic = "kitchen/roaster/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "kitchen/roaster/system"

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a roast event to the broker.
	// Returns error if publishing fails (should not abort the roast).
	Publish(event logic.Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Roast RoastPayload `json:"roast"`
}

// RoastPayload contains the roast event details.
type RoastPayload struct {
	Timestamp string   `json:"timestamp"`
	Event     string   `json:"event"`
	Category  string   `json:"category"`
	State     string   `json:"state"`
	Phase     string   `json:"phase,omitempty"`
	Elapsed   string   `json:"elapsed"`
	Seconds   float64  `json:"seconds"`
	Temp      *float64 `json:"temp,omitempty"`
	ROR       *float64 `json:"ror,omitempty"`
	Message   string   `json:"message,omitempty"`
}

func optional(v logic.NullFloat) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

// FormatPayload creates the JSON payload for a roast event.
func FormatPayload(event logic.Event) ([]byte, error) {
	payload := Payload{
		Roast: RoastPayload{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     string(event.Type),
			Category:  string(event.Category),
			State:     string(event.State),
			Phase:     string(event.Phase),
			Elapsed:   logic.FormatElapsed(event.Elapsed),
			Seconds:   event.Elapsed.Seconds(),
			Temp:      optional(event.Reading.Temp),
			ROR:       optional(event.Reading.ROR),
			Message:   event.Message,
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
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
// If event.RawPayload is set, it is returned directly (used for status snapshots).
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
