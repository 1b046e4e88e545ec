package alert

import (
	"context"
	"sync"

	"github.com/sweeney/belt-sentinel/internal/logic"
)

// FakeChannel records sent events for test assertions.
type FakeChannel struct {
	mu sync.Mutex

	// ChannelName is returned by Name.
	ChannelName string

	// Unavailable makes Available return false.
	Unavailable bool

	// SendError, if set, is returned by Send.
	SendError error

	// SendFunc, if set, replaces the default Send behavior entirely.
	SendFunc func(ctx context.Context, event logic.AlertEvent) error

	// Sent contains every event passed to Send.
	Sent []logic.AlertEvent
}

// NewFakeChannel creates a FakeChannel with the given name.
func NewFakeChannel(name string) *FakeChannel {
	return &FakeChannel{ChannelName: name}
}

// Name returns the configured channel name.
func (f *FakeChannel) Name() string { return f.ChannelName }

// Available reports the configured availability.
func (f *FakeChannel) Available() bool { return !f.Unavailable }

// Send records the event and returns the configured error.
func (f *FakeChannel) Send(ctx context.Context, event logic.AlertEvent) error {
	f.mu.Lock()
	f.Sent = append(f.Sent, event)
	f.mu.Unlock()

	if f.SendFunc != nil {
		return f.SendFunc(ctx, event)
	}
	return f.SendError
}

// SentCount returns the number of recorded sends.
func (f *FakeChannel) SentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Sent)
}
