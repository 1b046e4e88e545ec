// Package mqtt provides telemetry publishing with abstraction for testing.
// Dashboards subscribe to these topics; delivery here is best-effort and
// never a substitute for the notification channels.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/belt-sentinel/internal/logic"
)

// Topic is the MQTT topic for safety state transitions.
const Topic = "care/belt/sentinel/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "care/belt/sentinel/system"

// Publisher publishes telemetry to MQTT.
type Publisher interface {
	// Publish sends a safety transition to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event TransitionEvent) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// TransitionEvent represents a safety state change to be published.
type TransitionEvent struct {
	Timestamp time.Time
	From      logic.SafetyState
	To        logic.SafetyState
	EpisodeID string
	DeviceID  string
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Belt BeltPayload `json:"belt"`
}

// BeltPayload contains the transition details.
type BeltPayload struct {
	Timestamp string `json:"timestamp"`
	DeviceID  string `json:"device_id"`
	From      string `json:"from"`
	To        string `json:"to"`
	EpisodeID string `json:"episode_id,omitempty"`
}

// FormatPayload creates the JSON payload for a transition event.
func FormatPayload(event TransitionEvent) ([]byte, error) {
	payload := Payload{
		Belt: BeltPayload{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			DeviceID:  event.DeviceID,
			From:      string(event.From),
			To:        string(event.To),
			EpisodeID: event.EpisodeID,
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
