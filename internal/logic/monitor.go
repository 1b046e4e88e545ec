package logic

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// Monitor owns the current safety state and the open alert episodes.
// It is the single writer of both; the daemon loop calls Process once per
// sample and Reset on wearer acknowledgment.
type Monitor struct {
	th       Thresholds
	deviceID string

	state    SafetyState
	episodes map[AlertKind]*Episode

	lastGood Sample

	counts EventCounts
	newID  func() string
}

// Result is the outcome of processing one sample.
type Result struct {
	State SafetyState
	// Alerts contains the events raised by episode-open transitions,
	// at most one per alerting kind. Empty while the state merely persists.
	Alerts []AlertEvent
	// ClosedEpisodes lists episode IDs closed by a return to NORMAL.
	ClosedEpisodes []string
}

// NewMonitor creates a Monitor starting in NORMAL.
func NewMonitor(deviceID string, th Thresholds) *Monitor {
	return &Monitor{
		th:       th,
		deviceID: deviceID,
		state:    StateNormal,
		episodes: make(map[AlertKind]*Episode),
		newID:    uuid.NewString,
	}
}

// Process sanitizes the sample, classifies it, and applies episode
// bookkeeping. Alerts are emitted only on the state-change edge that opens
// an episode, never while the classifier keeps outputting the same state.
func (m *Monitor) Process(s Sample) Result {
	s = m.sanitize(s)

	prev := m.state
	next := Classify(prev, s, m.th)
	m.state = next

	res := Result{State: next}

	if next == StateSuddenMovement && prev != StateSuddenMovement {
		m.counts.SuddenMovement++
	}

	switch next {
	case StateFallConfirmed:
		if m.episodes[KindFall] == nil {
			ep := m.openEpisode(KindFall, s.Time)
			m.counts.Fall++
			res.Alerts = append(res.Alerts, AlertEvent{
				Kind:      KindFall,
				EpisodeID: ep.ID,
				DeviceID:  m.deviceID,
				Message:   fmt.Sprintf("Fall detected (%.2fg)", s.AccelMagnitudeG),
				CreatedAt: s.Time,
			})
		}
	case StatePreFall:
		if m.episodes[KindPreFall] == nil {
			ep := m.openEpisode(KindPreFall, s.Time)
			m.counts.PreFall++
			res.Alerts = append(res.Alerts, AlertEvent{
				Kind:      KindPreFall,
				EpisodeID: ep.ID,
				DeviceID:  m.deviceID,
				Message:   fmt.Sprintf("Instability with abnormal vitals (%.2fg, HR %.0f, SpO2 %.0f%%)", s.AccelMagnitudeG, s.HeartRateBpm, s.SpO2Pct),
				CreatedAt: s.Time,
			})
		}
	case StateNormal:
		// A pre-fall episode survives excursions into SUDDEN_MOVEMENT;
		// only NORMAL closes it.
		res.ClosedEpisodes = m.closeEpisode(KindPreFall, res.ClosedEpisodes)
	}

	return res
}

// Reset force-returns the state to NORMAL and closes every open episode.
// This is the wearer acknowledgment path, the only way out of
// FALL_CONFIRMED. Returns the closed episode IDs.
func (m *Monitor) Reset() []string {
	var closed []string
	closed = m.closeEpisode(KindFall, closed)
	closed = m.closeEpisode(KindPreFall, closed)
	m.state = StateNormal
	return closed
}

// State returns the current safety state.
func (m *Monitor) State() SafetyState {
	return m.state
}

// DeviceID returns the monitored device's identifier.
func (m *Monitor) DeviceID() string {
	return m.deviceID
}

// FallEpisode returns the open fall episode, or nil.
func (m *Monitor) FallEpisode() *Episode {
	return m.episodes[KindFall]
}

// CountsSnapshot returns a copy of the event counters.
func (m *Monitor) CountsSnapshot() EventCounts {
	return m.counts
}

func (m *Monitor) openEpisode(kind AlertKind, at time.Time) *Episode {
	ep := &Episode{ID: m.newID(), Kind: kind, OpenedAt: at}
	m.episodes[kind] = ep
	return ep
}

func (m *Monitor) closeEpisode(kind AlertKind, closed []string) []string {
	if ep := m.episodes[kind]; ep != nil {
		closed = append(closed, ep.ID)
		delete(m.episodes, kind)
	}
	return closed
}

// Physically plausible reading ranges. Anything outside is a sensor
// anomaly, absorbed rather than classified.
const (
	maxAccelG    = 16 // MPU6050-class full scale
	maxHeartRate = 250
	maxBodyTemp  = 45
	minBodyTemp  = 25
)

// sanitize absorbs malformed or out-of-range readings: each bad field is
// replaced with the most recent known-good value, and Worn is forced to
// false so garbage can never trigger a fall or pre-fall on its own.
func (m *Monitor) sanitize(s Sample) Sample {
	anomalous := false

	if !validMag(s.AccelMagnitudeG) {
		s.AccelMagnitudeG = m.lastGood.AccelMagnitudeG
		anomalous = true
	}
	if !validRange(s.HeartRateBpm, 0, maxHeartRate) {
		s.HeartRateBpm = m.lastGood.HeartRateBpm
		anomalous = true
	}
	if !validRange(s.SpO2Pct, 0, 100) {
		s.SpO2Pct = m.lastGood.SpO2Pct
		anomalous = true
	}
	if !validRange(s.BodyTempC, minBodyTemp, maxBodyTemp) {
		s.BodyTempC = m.lastGood.BodyTempC
		anomalous = true
	}

	if anomalous {
		s.Worn = false
		m.counts.Anomalies++
		return s
	}

	m.lastGood = s
	return s
}

func validMag(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0 && v <= maxAccelG
}

func validRange(v, lo, hi float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= lo && v <= hi
}
