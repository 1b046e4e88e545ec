package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event              string        `json:"event,omitempty"`
	Reason             string        `json:"reason,omitempty"`
	State              string        `json:"state"`
	FallEpisodeID      string        `json:"fall_episode_id,omitempty"`
	Escalation         string        `json:"escalation"`
	EscalationDeadline string        `json:"escalation_deadline,omitempty"`
	UptimeSeconds      int64         `json:"uptime_seconds"`
	StartTime          string        `json:"start_time"`
	Timestamp          string        `json:"timestamp"`
	LastSample         string        `json:"last_sample,omitempty"`
	MQTT               MQTTStatus    `json:"mqtt"`
	Channels           ChannelsJSON  `json:"channels"`
	LastDispatch       *DispatchJSON `json:"last_dispatch,omitempty"`
	Counts             CountsJSON    `json:"event_counts"`
	Network            *NetworkJSON  `json:"network,omitempty"`
	Config             ConfigJSON    `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// ChannelsJSON reports notification channel availability.
type ChannelsJSON struct {
	RemoteAvailable bool `json:"remote_available"`
	ModemAvailable  bool `json:"modem_available"`
}

// DispatchJSON is the JSON representation of the last channel attempt.
type DispatchJSON struct {
	Channel string `json:"channel"`
	Kind    string `json:"kind"`
	Outcome string `json:"outcome"`
	At      string `json:"at"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	PreFall        int `json:"pre_fall"`
	Fall           int `json:"fall"`
	SuddenMovement int `json:"sudden_movement"`
	Anomalies      int `json:"anomalies"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	PollMs         int64  `json:"poll_ms"`
	CooldownMs     int64  `json:"cooldown_ms"`
	EscalationMs   int64  `json:"escalation_ms"`
	Broker         string `json:"broker"`
	HTTPPort       string `json:"http_port"`
	RemoteURL      string `json:"remote_url,omitempty"`
	ModemRecipient string `json:"modem_recipient,omitempty"`
}

func buildInner(snap Snapshot) StatusInner {
	state := string(snap.State)
	if state == "" {
		state = "UNKNOWN"
	}
	escalation := string(snap.Escalation)
	if escalation == "" {
		escalation = "IDLE"
	}

	inner := StatusInner{
		State:         state,
		FallEpisodeID: snap.FallEpisodeID,
		Escalation:    escalation,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Channels: ChannelsJSON{
			RemoteAvailable: snap.RemoteAvailable,
			ModemAvailable:  snap.ModemAvailable,
		},
		Counts: CountsJSON{
			PreFall:        snap.Counts.PreFall,
			Fall:           snap.Counts.Fall,
			SuddenMovement: snap.Counts.SuddenMovement,
			Anomalies:      snap.Counts.Anomalies,
		},
		Config: ConfigJSON{
			PollMs:         snap.Config.PollMs,
			CooldownMs:     snap.Config.CooldownMs,
			EscalationMs:   snap.Config.EscalationMs,
			Broker:         snap.Config.Broker,
			HTTPPort:       snap.Config.HTTPPort,
			RemoteURL:      snap.Config.RemoteURL,
			ModemRecipient: snap.Config.ModemRecipient,
		},
	}

	if !snap.EscalationDeadline.IsZero() {
		inner.EscalationDeadline = snap.EscalationDeadline.UTC().Format(time.RFC3339)
	}
	if !snap.LastSampleAt.IsZero() {
		inner.LastSample = snap.LastSampleAt.UTC().Format(time.RFC3339)
	}
	if snap.LastDispatch != nil {
		inner.LastDispatch = &DispatchJSON{
			Channel: snap.LastDispatch.Channel,
			Kind:    string(snap.LastDispatch.Kind),
			Outcome: string(snap.LastDispatch.Outcome),
			At:      snap.LastDispatch.At.UTC().Format(time.RFC3339),
		}
	}
	return inner
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
