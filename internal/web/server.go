// Package web provides the HTTP surface of the belt-sentinel daemon:
// the status page, the sample ingest endpoint the belt hardware posts to,
// and the UI acknowledgment callback.
package web

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/sweeney/belt-sentinel/internal/logic"
	"github.com/sweeney/belt-sentinel/internal/sensor"
	"github.com/sweeney/belt-sentinel/internal/status"
)

// Server serves status and ingest over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	store      *sensor.IngestStore

	// ack delivers the wearer's "I'm OK" to the daemon loop.
	ack func()
}

// New creates a Server. ack may be nil when no acknowledgment path is wired.
func New(addr string, tracker *status.Tracker, store *sensor.IngestStore, ack func()) *Server {
	s := &Server{tracker: tracker, store: store, ack: ack}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/index.json", s.handleJSON)
	mux.HandleFunc("/api/sample", s.handleSample)
	mux.HandleFunc("/api/ack", s.handleAck)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, snap)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

// samplePayload is what the belt hardware posts. Field names match the
// ESP32 firmware.
type samplePayload struct {
	DeviceID     string  `json:"deviceId"`
	Acceleration float64 `json:"acceleration"`
	HeartRate    float64 `json:"heartRate"`
	SpO2         float64 `json:"spo2"`
	Temperature  float64 `json:"temperature"`
	BeltWorn     bool    `json:"beltWorn"`
	Timestamp    int64   `json:"timestamp"` // ms since epoch; 0 = server time
}

func (s *Server) handleSample(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, `{"status":"error","message":"POST required"}`, http.StatusMethodNotAllowed)
		return
	}

	var p samplePayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		// Malformed input must never crash the loop; reject and move on.
		http.Error(w, `{"status":"error","message":"bad payload"}`, http.StatusBadRequest)
		return
	}

	sampleTime := time.Now()
	if p.Timestamp > 0 {
		sampleTime = time.UnixMilli(p.Timestamp)
	}

	s.store.Put(logic.Sample{
		Time:            sampleTime,
		AccelMagnitudeG: p.Acceleration,
		HeartRateBpm:    p.HeartRate,
		SpO2Pct:         p.SpO2,
		BodyTempC:       p.Temperature,
		Worn:            p.BeltWorn,
	})

	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"success"}`))
}

func (s *Server) handleAck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, `{"status":"error","message":"POST required"}`, http.StatusMethodNotAllowed)
		return
	}
	if s.ack != nil {
		s.ack()
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"acknowledged"}`))
}
