package alert

import (
	"time"

	"github.com/sweeney/belt-sentinel/internal/logic"
)

// EscalationState is the acknowledgment countdown state.
type EscalationState string

const (
	EscalationIdle         EscalationState = "IDLE"
	EscalationArmed        EscalationState = "ARMED"
	EscalationAcknowledged EscalationState = "ACKNOWLEDGED"
	EscalationExpired      EscalationState = "EXPIRED"
)

// EscalationTimer waits for the wearer to confirm they are OK after a fall
// alert. Single-writer: only the daemon loop calls into it. An escalation
// window opens for every real fall dispatch attempt, whether or not the
// notification itself succeeded.
type EscalationTimer struct {
	window time.Duration

	state    EscalationState
	deadline time.Time
	fall     logic.AlertEvent
}

// NewEscalationTimer creates an idle timer with the given window.
func NewEscalationTimer(window time.Duration) *EscalationTimer {
	return &EscalationTimer{window: window, state: EscalationIdle}
}

// Arm starts the countdown for the given fall event. Only an idle timer
// arms; a second dispatch for the same fall leaves the running countdown
// untouched.
func (t *EscalationTimer) Arm(fall logic.AlertEvent, now time.Time) {
	if t.state != EscalationIdle {
		return
	}
	t.state = EscalationArmed
	t.deadline = now.Add(t.window)
	t.fall = fall
}

// Acknowledge handles the wearer's "I'm OK" input. Returns true if the
// timer was armed and is now acknowledged; any other state is a no-op
// (the caller still force-resets the safety state).
func (t *EscalationTimer) Acknowledge() bool {
	if t.state != EscalationArmed {
		return false
	}
	t.state = EscalationAcknowledged
	return true
}

// CheckDeadline advances the countdown. When the deadline passes without
// acknowledgment it transitions to EXPIRED exactly once and returns the
// higher-severity event to dispatch: same episode, EMERGENCY kind, so it
// bypasses the fall's dedup entries. A distinct event, not a retry.
func (t *EscalationTimer) CheckDeadline(now time.Time) *logic.AlertEvent {
	if t.state != EscalationArmed || now.Before(t.deadline) {
		return nil
	}
	t.state = EscalationExpired
	return &logic.AlertEvent{
		Kind:      logic.KindEmergency,
		EpisodeID: t.fall.EpisodeID,
		DeviceID:  t.fall.DeviceID,
		Message:   "No response to fall alert: " + t.fall.Message,
		CreatedAt: now,
	}
}

// Reset returns the timer to idle. Called when the safety state leaves
// FALL_CONFIRMED.
func (t *EscalationTimer) Reset() {
	t.state = EscalationIdle
	t.deadline = time.Time{}
	t.fall = logic.AlertEvent{}
}

// State returns the current countdown state.
func (t *EscalationTimer) State() EscalationState {
	return t.state
}

// Deadline returns the armed deadline (zero unless armed).
func (t *EscalationTimer) Deadline() time.Time {
	if t.state != EscalationArmed {
		return time.Time{}
	}
	return t.deadline
}
