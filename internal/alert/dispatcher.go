package alert

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/belt-sentinel/internal/logic"
)

// Config holds dispatch policy knobs.
type Config struct {
	// MinRetryInterval is the cooldown between dispatch calls of any kind.
	// A call inside the cooldown is a no-op returning SKIPPED, so a noisy
	// sensor stream cannot re-trigger sends before the prior attempt has
	// even completed. Emergency sends bypass the cooldown: they are
	// timer-driven, not sensor-driven.
	MinRetryInterval time.Duration

	// SendTimeout bounds each individual channel attempt.
	SendTimeout time.Duration

	// QueueSize bounds the async delivery queue used by Run/Enqueue.
	QueueSize int
}

// AttemptSink receives every channel attempt for telemetry (journal,
// status tracker). Implementations must not block for long.
type AttemptSink interface {
	RecordAttempt(a Attempt)
}

// Dispatcher tries an ordered list of channels for each alert, applying
// the cooldown gate and the dedup ledger. Channel order is policy: the
// preferred (cheap, fast) channel first, each tried only while Available.
type Dispatcher struct {
	channels []Channel
	cfg      Config
	sink     AttemptSink
	logger   *zap.Logger
	now      func() time.Time

	mu          sync.Mutex
	ledger      *Ledger
	lastAttempt time.Time

	queue chan logic.AlertEvent
}

// NewDispatcher creates a Dispatcher with the given channel order.
func NewDispatcher(channels []Channel, cfg Config, sink AttemptSink, logger *zap.Logger) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 8
	}
	return &Dispatcher{
		channels: channels,
		cfg:      cfg,
		sink:     sink,
		logger:   logger,
		now:      time.Now,
		ledger:   NewLedger(),
		queue:    make(chan logic.AlertEvent, cfg.QueueSize),
	}
}

// Dispatch synchronously delivers one alert: gate, dedup, then the channel
// sequence. Returns SUCCESS as soon as one channel succeeds (no further
// channel is tried for the episode), FAILED when every channel failed or
// was unavailable, SKIPPED/DEDUPED when the call was a no-op.
func (d *Dispatcher) Dispatch(ctx context.Context, event logic.AlertEvent) Outcome {
	if out, ok := d.admit(event); !ok {
		return out
	}
	return d.deliver(ctx, event)
}

// Enqueue applies the gate and dedup precheck on the caller's thread, then
// hands the event to the Run worker so a slow transport never blocks the
// sampling loop. Returns ACCEPTED and true when a real delivery was queued
// (the escalation timer arms on exactly that); the attempt outcome itself
// reaches the sink once the worker has run it.
func (d *Dispatcher) Enqueue(event logic.AlertEvent) (Outcome, bool) {
	out, ok := d.admit(event)
	if !ok {
		return out, false
	}
	select {
	case d.queue <- event:
		return OutcomeAccepted, true
	default:
		// Queue full means deliveries are badly backed up; treat like the
		// cooldown gate and let a later edge retry.
		d.logger.Warn("dispatch queue full, dropping alert",
			zap.String("kind", string(event.Kind)),
			zap.String("episode_id", event.EpisodeID),
		)
		return OutcomeSkipped, false
	}
}

// Run consumes the queue until ctx is cancelled. Single worker: ledger
// updates stay serialized and the modem is never driven concurrently.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-d.queue:
			d.deliver(ctx, event)
		}
	}
}

// CloseEpisode garbage-collects the ledger entries for a closed episode.
func (d *Dispatcher) CloseEpisode(episodeID string) {
	d.mu.Lock()
	d.ledger.CloseEpisode(episodeID)
	d.mu.Unlock()
}

// admit applies the cooldown gate and the already-delivered check.
// Advances the cooldown clock only when the event is admitted.
func (d *Dispatcher) admit(event logic.AlertEvent) (Outcome, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if event.Kind != logic.KindEmergency &&
		!d.lastAttempt.IsZero() && now.Sub(d.lastAttempt) < d.cfg.MinRetryInterval {
		return OutcomeSkipped, false
	}
	if d.ledger.Delivered(event.EpisodeID, event.Kind) {
		return OutcomeDeduped, false
	}
	d.lastAttempt = now
	return OutcomeAccepted, true
}

func (d *Dispatcher) deliver(ctx context.Context, event logic.AlertEvent) Outcome {
	for _, ch := range d.channels {
		if !ch.Available() {
			d.logger.Info("channel unavailable, skipping",
				zap.String("channel", ch.Name()),
				zap.String("kind", string(event.Kind)),
			)
			continue
		}

		d.mu.Lock()
		dup := d.ledger.ChannelSucceeded(event.EpisodeID, event.Kind, ch.Name())
		d.mu.Unlock()
		if dup {
			continue
		}

		attempt := d.try(ctx, ch, event)
		if d.sink != nil {
			d.sink.RecordAttempt(attempt)
		}

		if attempt.Outcome == OutcomeSuccess {
			d.mu.Lock()
			d.ledger.RecordSuccess(event.EpisodeID, event.Kind, ch.Name())
			d.mu.Unlock()
			d.logger.Info("alert delivered",
				zap.String("channel", ch.Name()),
				zap.String("kind", string(event.Kind)),
				zap.String("episode_id", event.EpisodeID),
			)
			return OutcomeSuccess
		}

		d.logger.Warn("channel attempt failed",
			zap.String("channel", ch.Name()),
			zap.String("kind", string(event.Kind)),
			zap.String("outcome", string(attempt.Outcome)),
			zap.String("error", attempt.Err),
		)
	}

	// Total delivery failure. The episode stays open so a fresh edge gets a
	// fresh attempt; this must never disappear from telemetry.
	d.logger.Error("all channels exhausted, alert undelivered",
		zap.String("kind", string(event.Kind)),
		zap.String("episode_id", event.EpisodeID),
	)
	return OutcomeFailed
}

func (d *Dispatcher) try(ctx context.Context, ch Channel, event logic.AlertEvent) Attempt {
	started := d.now()
	sendCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
	err := ch.Send(sendCtx, event)
	cancel()

	attempt := Attempt{
		Channel:   ch.Name(),
		Event:     event,
		StartedAt: started,
		Duration:  d.now().Sub(started),
		Outcome:   OutcomeSuccess,
	}
	if err != nil {
		attempt.Outcome = OutcomeFailed
		if sendCtx.Err() == context.DeadlineExceeded {
			attempt.Outcome = OutcomeTimedOut
		}
		attempt.Err = err.Error()
	}
	return attempt
}
