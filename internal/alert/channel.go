// Package alert contains the dispatch and escalation engine: the channel
// policy, the per-episode dedup ledger, and the acknowledgment countdown.
package alert

import (
	"context"
	"time"

	"github.com/sweeney/belt-sentinel/internal/logic"
)

// Channel is an independent notification transport with its own failure
// modes. Implementations must respect the context deadline; a stalled
// transport can never stall the caller past it.
type Channel interface {
	// Name identifies the channel for logging and the ledger.
	Name() string

	// Available reports whether the transport is currently usable
	// (network reachable, modem registered). Unavailable is distinct from
	// failed: it causes an immediate skip instead of a wasted timeout.
	// Must not block; the sampling loop reads it every tick.
	Available() bool

	// Send delivers one alert. A nil error is the only success.
	Send(ctx context.Context, event logic.AlertEvent) error
}

// Outcome classifies a dispatch call.
type Outcome string

const (
	OutcomeSuccess  Outcome = "SUCCESS"
	OutcomeFailed   Outcome = "FAILED"
	OutcomeSkipped  Outcome = "SKIPPED"
	OutcomeDeduped  Outcome = "DEDUPED"
	OutcomeTimedOut Outcome = "TIMED_OUT"
	// OutcomeAccepted means the event passed the gate and dedup precheck
	// and is queued for delivery; no attempt has run yet.
	OutcomeAccepted Outcome = "ACCEPTED"
)

// Attempt records one channel invocation for an event.
type Attempt struct {
	Channel   string
	Event     logic.AlertEvent
	StartedAt time.Time
	Duration  time.Duration
	Outcome   Outcome
	Err       string
}
