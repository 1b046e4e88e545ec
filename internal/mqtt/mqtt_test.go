package mqtt

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sweeney/belt-sentinel/internal/logic"
)

func TestTopics(t *testing.T) {
	if Topic != "care/belt/sentinel/events" {
		t.Errorf("Topic: got %q", Topic)
	}
	if TopicSystem != "care/belt/sentinel/system" {
		t.Errorf("TopicSystem: got %q", TopicSystem)
	}
}

func TestFormatPayload(t *testing.T) {
	event := TransitionEvent{
		Timestamp: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
		From:      logic.StateNormal,
		To:        logic.StateFallConfirmed,
		EpisodeID: "ep-1",
		DeviceID:  "belt-01",
	}

	data, err := FormatPayload(event)
	if err != nil {
		t.Fatalf("FormatPayload: %v", err)
	}

	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.Belt.Timestamp != "2026-01-01T12:00:00Z" {
		t.Errorf("timestamp: got %q", p.Belt.Timestamp)
	}
	if p.Belt.From != "NORMAL" || p.Belt.To != "FALL_CONFIRMED" {
		t.Errorf("transition: got %s -> %s", p.Belt.From, p.Belt.To)
	}
	if p.Belt.EpisodeID != "ep-1" {
		t.Errorf("episode_id: got %q", p.Belt.EpisodeID)
	}
	if p.Belt.DeviceID != "belt-01" {
		t.Errorf("device_id: got %q", p.Belt.DeviceID)
	}
}

func TestFormatPayloadExactJSON(t *testing.T) {
	event := TransitionEvent{
		Timestamp: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
		From:      logic.StateNormal,
		To:        logic.StateSuddenMovement,
		DeviceID:  "belt-01",
	}

	data, err := FormatPayload(event)
	if err != nil {
		t.Fatalf("FormatPayload: %v", err)
	}

	want := `{"belt":{"timestamp":"2026-01-01T12:00:00Z","device_id":"belt-01","from":"NORMAL","to":"SUDDEN_MOVEMENT"}}`
	if string(data) != want {
		t.Errorf("payload:\ngot  %s\nwant %s", data, want)
	}
}

func TestFormatPayloadTimezoneConversion(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	event := TransitionEvent{
		Timestamp: time.Date(2026, 1, 1, 13, 0, 0, 0, loc),
		From:      logic.StateNormal,
		To:        logic.StateFallConfirmed,
		DeviceID:  "belt-01",
	}

	data, _ := FormatPayload(event)
	var p Payload
	json.Unmarshal(data, &p)
	if p.Belt.Timestamp != "2026-01-01T12:00:00Z" {
		t.Errorf("expected UTC timestamp, got %q", p.Belt.Timestamp)
	}
}

func TestFormatSystemPayload(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
		Event:     "SHUTDOWN",
		Reason:    "SIGTERM",
	}

	data, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("FormatSystemPayload: %v", err)
	}

	want := `{"system":{"timestamp":"2026-01-01T12:00:00Z","event":"SHUTDOWN","reason":"SIGTERM"}}`
	if string(data) != want {
		t.Errorf("payload:\ngot  %s\nwant %s", data, want)
	}
}

func TestFormatSystemPayloadOmitsEmptyReason(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
		Event:     "OFFLINE",
	}

	data, _ := FormatSystemPayload(event)
	want := `{"system":{"timestamp":"2026-01-01T12:00:00Z","event":"OFFLINE"}}`
	if string(data) != want {
		t.Errorf("payload:\ngot  %s\nwant %s", data, want)
	}
}

func TestFormatSystemPayloadRawPassthrough(t *testing.T) {
	raw := []byte(`{"status":{"state":"NORMAL"}}`)
	event := SystemEvent{
		Timestamp:  time.Now(),
		Event:      "STARTUP",
		RawPayload: raw,
	}

	data, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("FormatSystemPayload: %v", err)
	}
	if string(data) != string(raw) {
		t.Errorf("expected raw payload passthrough, got %s", data)
	}
}

func TestFakePublisher(t *testing.T) {
	pub := NewFakePublisher()
	event := TransitionEvent{
		Timestamp: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
		From:      logic.StateNormal,
		To:        logic.StateFallConfirmed,
		EpisodeID: "ep-1",
		DeviceID:  "belt-01",
	}

	if err := pub.Publish(event); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(pub.Events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(pub.Events))
	}
	if pub.Events[0].To != logic.StateFallConfirmed {
		t.Errorf("event To: got %s", pub.Events[0].To)
	}
	if len(pub.Payloads) != 1 {
		t.Fatalf("expected 1 payload, got %d", len(pub.Payloads))
	}

	var p Payload
	if err := json.Unmarshal(pub.Payloads[0], &p); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if p.Belt.EpisodeID != "ep-1" {
		t.Errorf("payload episode_id: got %q", p.Belt.EpisodeID)
	}
}

func TestFakePublisherError(t *testing.T) {
	pub := NewFakePublisher()
	pub.PublishError = errors.New("broker unreachable")

	err := pub.Publish(TransitionEvent{Timestamp: time.Now()})
	if err == nil {
		t.Fatal("expected error")
	}
	if len(pub.Events) != 0 {
		t.Errorf("failed publish must not record events, got %d", len(pub.Events))
	}
}

func TestFakePublisherSystemEvents(t *testing.T) {
	pub := NewFakePublisher()

	if err := pub.PublishSystem(SystemEvent{
		Timestamp: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
		Event:     "STARTUP",
		Retained:  true,
	}); err != nil {
		t.Fatalf("PublishSystem: %v", err)
	}

	if len(pub.SystemEvents) != 1 {
		t.Fatalf("expected 1 system event, got %d", len(pub.SystemEvents))
	}
	if pub.SystemEvents[0].Event != "STARTUP" {
		t.Errorf("event: got %q", pub.SystemEvents[0].Event)
	}
	if !pub.SystemEvents[0].Retained {
		t.Error("expected retained flag recorded")
	}
}

func TestFakePublisherClose(t *testing.T) {
	pub := NewFakePublisher()
	if err := pub.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !pub.Closed {
		t.Error("expected Closed=true")
	}
}

func TestFakePublisherReset(t *testing.T) {
	pub := NewFakePublisher()
	pub.Publish(TransitionEvent{Timestamp: time.Now()})
	pub.PublishSystem(SystemEvent{Timestamp: time.Now(), Event: "STARTUP"})
	pub.Connected = true

	pub.Reset()
	if len(pub.Events) != 0 || len(pub.SystemEvents) != 0 {
		t.Error("expected no recorded events after Reset")
	}
	if pub.Connected {
		t.Error("expected Connected=false after Reset")
	}
}

func TestFakePublisherPreservesEventOrder(t *testing.T) {
	pub := NewFakePublisher()
	transitions := []struct {
		from, to logic.SafetyState
	}{
		{logic.StateNormal, logic.StatePreFall},
		{logic.StatePreFall, logic.StateSuddenMovement},
		{logic.StateSuddenMovement, logic.StateFallConfirmed},
	}
	for _, tr := range transitions {
		pub.Publish(TransitionEvent{Timestamp: time.Now(), From: tr.from, To: tr.to})
	}

	if len(pub.Events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(pub.Events))
	}
	for i, tr := range transitions {
		if pub.Events[i].From != tr.from || pub.Events[i].To != tr.to {
			t.Errorf("event %d: got %s -> %s, want %s -> %s",
				i, pub.Events[i].From, pub.Events[i].To, tr.from, tr.to)
		}
	}
}
