package internal

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/belt-sentinel/internal/alert"
	"github.com/sweeney/belt-sentinel/internal/logic"
	"github.com/sweeney/belt-sentinel/internal/mqtt"
	"github.com/sweeney/belt-sentinel/internal/sensor"
)

func calm() logic.Sample {
	return logic.Sample{AccelMagnitudeG: 1.0, HeartRateBpm: 72, SpO2Pct: 98, BodyTempC: 36.6, Worn: true}
}

func impact(mag float64) logic.Sample {
	s := calm()
	s.AccelMagnitudeG = mag
	return s
}

// TestIntegrationFallToAcknowledgment drives the whole pipeline with fakes:
// sample stream in, classified transitions out over MQTT, one delivered
// alert per episode, countdown stopped by the wearer.
func TestIntegrationFallToAcknowledgment(t *testing.T) {
	samples := []logic.Sample{
		calm(),      // t=0
		calm(),      // t=200ms
		impact(2.2), // t=400ms  fall
		calm(),      // t=600ms  sticky
		calm(),      // t=800ms  sticky
	}

	source := sensor.NewFakeSource(samples)
	publisher := mqtt.NewFakePublisher()
	remote := alert.NewFakeChannel("remote")
	local := alert.NewFakeChannel("modem")
	dispatcher := alert.NewDispatcher(
		[]alert.Channel{remote, local},
		alert.Config{MinRetryInterval: 30 * time.Second, SendTimeout: time.Second},
		nil, zap.NewNop(),
	)
	escalation := alert.NewEscalationTimer(60 * time.Second)
	monitor := logic.NewMonitor("belt-01", logic.DefaultThresholds())

	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	poll := 200 * time.Millisecond

	for i := range samples {
		s, err := source.Read()
		if err != nil {
			t.Fatalf("sample %d: read error: %v", i, err)
		}
		now := start.Add(time.Duration(i) * poll)
		s.Time = now

		prev := monitor.State()
		res := monitor.Process(s)
		if res.State != prev {
			publisher.Publish(mqtt.TransitionEvent{
				Timestamp: now, From: prev, To: res.State,
				DeviceID: "belt-01",
			})
		}
		for _, ev := range res.Alerts {
			if out := dispatcher.Dispatch(context.Background(), ev); out == alert.OutcomeSuccess && ev.Kind == logic.KindFall {
				escalation.Arm(ev, now)
			}
		}
		if em := escalation.CheckDeadline(now); em != nil {
			dispatcher.Dispatch(context.Background(), *em)
		}
	}

	// One transition, one delivery on the preferred channel.
	if len(publisher.Events) != 1 {
		t.Fatalf("expected 1 transition, got %d", len(publisher.Events))
	}
	if publisher.Events[0].To != logic.StateFallConfirmed {
		t.Errorf("transition to: got %s", publisher.Events[0].To)
	}
	if remote.SentCount() != 1 {
		t.Errorf("remote sends: got %d, want 1", remote.SentCount())
	}
	if local.SentCount() != 0 {
		t.Errorf("modem sends: got %d, want 0", local.SentCount())
	}
	if escalation.State() != alert.EscalationArmed {
		t.Fatalf("escalation: got %s, want ARMED", escalation.State())
	}

	// Wearer presses the button.
	if !escalation.Acknowledge() {
		t.Fatal("expected countdown to stop")
	}
	escalation.Reset()
	closed := monitor.Reset()
	for _, id := range closed {
		dispatcher.CloseEpisode(id)
	}
	if monitor.State() != logic.StateNormal {
		t.Errorf("state after ack: got %s", monitor.State())
	}

	// Long after the original deadline: nothing fires.
	if em := escalation.CheckDeadline(start.Add(time.Hour)); em != nil {
		t.Errorf("acknowledged fall must not escalate, got %+v", em)
	}
}

// TestIntegrationEscalationDeliversEmergency covers the no-response path:
// the fall alert fails on every channel, the countdown still runs, and the
// emergency goes out when a channel recovers.
func TestIntegrationEscalationDeliversEmergency(t *testing.T) {
	remote := alert.NewFakeChannel("remote")
	remote.SendError = errors.New("network down")
	local := alert.NewFakeChannel("modem")
	local.SendError = errors.New("no carrier")
	dispatcher := alert.NewDispatcher(
		[]alert.Channel{remote, local},
		alert.Config{MinRetryInterval: 30 * time.Second, SendTimeout: time.Second},
		nil, zap.NewNop(),
	)
	escalation := alert.NewEscalationTimer(60 * time.Second)
	monitor := logic.NewMonitor("belt-01", logic.DefaultThresholds())

	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	s := impact(2.5)
	s.Time = start
	res := monitor.Process(s)
	if len(res.Alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(res.Alerts))
	}
	fall := res.Alerts[0]

	// Every channel fails, but the countdown starts anyway: an undelivered
	// alert is exactly the case that must escalate.
	if out := dispatcher.Dispatch(context.Background(), fall); out != alert.OutcomeFailed {
		t.Fatalf("fall dispatch: got %s, want FAILED", out)
	}
	escalation.Arm(fall, start)

	// The modem comes back before the deadline expires.
	local.SendError = nil

	em := escalation.CheckDeadline(start.Add(61 * time.Second))
	if em == nil {
		t.Fatal("expected emergency at deadline")
	}
	if out := dispatcher.Dispatch(context.Background(), *em); out != alert.OutcomeSuccess {
		t.Fatalf("emergency dispatch: got %s", out)
	}

	var gotEmergency bool
	for _, ev := range local.Sent {
		if ev.Kind == logic.KindEmergency && ev.EpisodeID == fall.EpisodeID {
			gotEmergency = true
		}
	}
	if !gotEmergency {
		t.Error("expected the emergency SMS referencing the fall episode")
	}
}

// TestIntegrationStatusPayloadShape pins the transition payload the
// dashboards consume.
func TestIntegrationStatusPayloadShape(t *testing.T) {
	publisher := mqtt.NewFakePublisher()
	publisher.Publish(mqtt.TransitionEvent{
		Timestamp: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
		From:      logic.StateNormal,
		To:        logic.StateFallConfirmed,
		EpisodeID: "ep-1",
		DeviceID:  "belt-01",
	})

	var decoded map[string]map[string]any
	if err := json.Unmarshal(publisher.Payloads[0], &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	belt := decoded["belt"]
	if belt == nil {
		t.Fatal("expected top-level belt object")
	}
	if belt["to"] != "FALL_CONFIRMED" {
		t.Errorf("to: got %v", belt["to"])
	}
	if belt["episode_id"] != "ep-1" {
		t.Errorf("episode_id: got %v", belt["episode_id"])
	}
}
