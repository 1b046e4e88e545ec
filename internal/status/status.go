// Package status provides a thread-safe status tracker for the
// belt-sentinel daemon. It is read by the HTTP handlers and serialized
// into MQTT lifecycle events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/belt-sentinel/internal/alert"
	"github.com/sweeney/belt-sentinel/internal/logic"
)

// NetworkInfo contains network state as reported by the host helper.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	PollMs         int64
	CooldownMs     int64
	EscalationMs   int64
	Broker         string
	HTTPPort       string
	RemoteURL      string
	ModemRecipient string
}

// DispatchInfo is the most recent channel attempt.
type DispatchInfo struct {
	Channel string
	Kind    logic.AlertKind
	Outcome alert.Outcome
	At      time.Time
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type — safe to use after the lock is released.
type Snapshot struct {
	State              logic.SafetyState
	FallEpisodeID      string
	Escalation         alert.EscalationState
	EscalationDeadline time.Time
	Counts             logic.EventCounts
	LastDispatch       *DispatchInfo
	LastSampleAt       time.Time
	StartTime          time.Time
	Now                time.Time
	MQTTConnected      bool
	RemoteAvailable    bool
	ModemAvailable     bool
	Network            *NetworkInfo
	Config             Config
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
			State:     logic.StateNormal,
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Update sets the classifier-side view. Called from the loop on every tick.
// A zero lastSampleAt keeps the previous value.
func (t *Tracker) Update(state logic.SafetyState, fallEpisodeID string, counts logic.EventCounts, lastSampleAt time.Time) {
	t.mu.Lock()
	t.snap.State = state
	t.snap.FallEpisodeID = fallEpisodeID
	t.snap.Counts = counts
	if !lastSampleAt.IsZero() {
		t.snap.LastSampleAt = lastSampleAt
	}
	t.mu.Unlock()
}

// SetEscalation sets the countdown state and deadline.
func (t *Tracker) SetEscalation(state alert.EscalationState, deadline time.Time) {
	t.mu.Lock()
	t.snap.Escalation = state
	t.snap.EscalationDeadline = deadline
	t.mu.Unlock()
}

// RecordAttempt notes the most recent channel attempt. Implements the
// dispatcher's AttemptSink.
func (t *Tracker) RecordAttempt(a alert.Attempt) {
	t.mu.Lock()
	t.snap.LastDispatch = &DispatchInfo{
		Channel: a.Channel,
		Kind:    a.Event.Kind,
		Outcome: a.Outcome,
		At:      a.StartedAt,
	}
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetChannelHealth sets the notification channel availability.
func (t *Tracker) SetChannelHealth(remote, modem bool) {
	t.mu.Lock()
	t.snap.RemoteAvailable = remote
	t.snap.ModemAvailable = modem
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
