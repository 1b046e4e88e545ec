// Package sensor provides the sample source with hardware abstraction.
// The belt hardware pushes readings over HTTP into an IngestStore; the
// fake returns scripted samples for tests.
package sensor

import (
	"sync"
	"time"

	"github.com/sweeney/belt-sentinel/internal/logic"
)

// Source supplies the latest belt reading once per poll tick.
type Source interface {
	// Read returns the most recent sample. It never blocks; a source with
	// nothing useful to report returns a sample with Worn=false rather
	// than an error, so the loop keeps running.
	Read() (logic.Sample, error)

	// Close releases source resources.
	Close() error
}

// IngestStore holds the latest sample pushed by the belt hardware.
// Safe for concurrent use: the HTTP handler writes, the poll loop reads.
type IngestStore struct {
	mu         sync.Mutex
	sample     logic.Sample
	receivedAt time.Time

	staleAfter time.Duration
	now        func() time.Time
}

// NewIngestStore creates a store. Samples older than staleAfter degrade to
// Worn=false: a belt that stopped reporting cannot fall.
func NewIngestStore(staleAfter time.Duration) *IngestStore {
	return &IngestStore{staleAfter: staleAfter, now: time.Now}
}

// Put stores a freshly ingested sample.
func (s *IngestStore) Put(sample logic.Sample) {
	s.mu.Lock()
	s.sample = sample
	s.receivedAt = s.now()
	s.mu.Unlock()
}

// Read returns the latest sample, with Worn forced to false when no fresh
// data has arrived.
func (s *IngestStore) Read() (logic.Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sample := s.sample
	if s.receivedAt.IsZero() || s.now().Sub(s.receivedAt) > s.staleAfter {
		sample.Worn = false
	}
	if sample.Time.IsZero() {
		sample.Time = s.now()
	}
	return sample, nil
}

// Close is a no-op; the store owns no resources.
func (s *IngestStore) Close() error { return nil }

// LastReceived returns when a sample last arrived (zero if never).
func (s *IngestStore) LastReceived() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.receivedAt
}
