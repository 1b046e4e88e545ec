// Package logic contains pure business logic for safety state classification.
// This package does no I/O and never blocks; time always arrives via the
// Sample timestamp, so everything here is deterministic and testable.
package logic

import "time"

// SafetyState is the discrete state derived from belt sensor readings.
type SafetyState string

const (
	StateNormal         SafetyState = "NORMAL"
	StatePreFall        SafetyState = "PRE_FALL"
	StateSuddenMovement SafetyState = "SUDDEN_MOVEMENT"
	StateFallConfirmed  SafetyState = "FALL_CONFIRMED"
)

// AlertKind identifies the class of a guardian notification.
type AlertKind string

const (
	KindPreFall AlertKind = "PRE_FALL"
	KindFall    AlertKind = "FALL"
	// KindEmergency is the escalated, emergency-call class alert raised when
	// a fall is not acknowledged within the escalation window.
	KindEmergency AlertKind = "EMERGENCY"
)

// Sample is one reading from the belt sensor package.
// Immutable once created; consumed once by the classifier.
type Sample struct {
	Time            time.Time
	AccelMagnitudeG float64 // acceleration vector magnitude, 1.0 at rest
	HeartRateBpm    float64
	SpO2Pct         float64
	BodyTempC       float64
	Worn            bool // belt is in skin contact (derived upstream)
}

// Thresholds holds the configurable classification bands.
// The acceleration bands are half-open: (Instability, Sudden] is the
// pre-fall band, (Sudden, Fall] is sudden movement, above Fall is a fall.
type Thresholds struct {
	InstabilityG     float64
	SuddenG          float64
	FallG            float64
	HeartRateLowBpm  float64
	HeartRateHighBpm float64
	SpO2LowPct       float64
}

// DefaultThresholds returns the reference deployment bands.
func DefaultThresholds() Thresholds {
	return Thresholds{
		InstabilityG:     1.1,
		SuddenG:          1.5,
		FallG:            1.8,
		HeartRateLowBpm:  50,
		HeartRateHighBpm: 120,
		SpO2LowPct:       90,
	}
}

// AlertEvent is a dispatchable notification, created exactly once per
// episode-open transition.
type AlertEvent struct {
	Kind      AlertKind
	EpisodeID string
	DeviceID  string
	Message   string
	CreatedAt time.Time
}

// Episode is a maximal interval during which an alerting state stays active
// without an intervening return to NORMAL.
type Episode struct {
	ID       string
	Kind     AlertKind
	OpenedAt time.Time
}

// EventCounts tracks alerting activity since startup.
type EventCounts struct {
	PreFall        int
	Fall           int
	SuddenMovement int
	Anomalies      int // samples absorbed as sensor/input anomalies
}
