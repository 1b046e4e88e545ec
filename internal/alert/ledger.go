package alert

import "github.com/sweeney/belt-sentinel/internal/logic"

type ledgerKey struct {
	episodeID string
	kind      logic.AlertKind
}

// Ledger tracks, per episode and alert kind, which channels have already
// succeeded. Keying by kind is what lets an escalated EMERGENCY send reuse
// the fall's episode ID while getting fresh entries. Not safe for
// concurrent use; the dispatcher serializes access.
type Ledger struct {
	succeeded map[ledgerKey]map[string]bool
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{succeeded: make(map[ledgerKey]map[string]bool)}
}

// Delivered reports whether any channel has succeeded for this episode and
// kind. Once true, no further channel may be tried for it.
func (l *Ledger) Delivered(episodeID string, kind logic.AlertKind) bool {
	return len(l.succeeded[ledgerKey{episodeID, kind}]) > 0
}

// ChannelSucceeded reports whether the named channel already succeeded for
// this episode and kind.
func (l *Ledger) ChannelSucceeded(episodeID string, kind logic.AlertKind, channel string) bool {
	return l.succeeded[ledgerKey{episodeID, kind}][channel]
}

// RecordSuccess marks the channel as succeeded for the episode and kind.
func (l *Ledger) RecordSuccess(episodeID string, kind logic.AlertKind, channel string) {
	k := ledgerKey{episodeID, kind}
	if l.succeeded[k] == nil {
		l.succeeded[k] = make(map[string]bool)
	}
	l.succeeded[k][channel] = true
}

// CloseEpisode drops every entry for the episode. Called when the episode
// closes; a later re-entry gets a new episode ID and a clean slate.
func (l *Ledger) CloseEpisode(episodeID string) {
	for k := range l.succeeded {
		if k.episodeID == episodeID {
			delete(l.succeeded, k)
		}
	}
}
