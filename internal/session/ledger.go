package session

import (
	"sort"
	"time"

	"quicklabel/internal/model"
)

// Ledger holds the most recent pending change per image id. It is the
// source of truth for what a commit will do. Label and delete are mutually
// exclusive per image: staging either replaces whatever was pending.
//
// Ledger is not safe for concurrent use; the owning Store serializes access.
type Ledger struct {
	byID map[string]*model.StagedChange
	seq  int64
}

func NewLedger() *Ledger {
	return &Ledger{byID: map[string]*model.StagedChange{}}
}

// Stage records or supersedes the pending change for ch.ImageID and returns
// the recorded entry with its sequence number assigned.
func (l *Ledger) Stage(ch model.StagedChange) model.StagedChange {
	l.seq++
	ch.Seq = l.seq
	if ch.Timestamp.IsZero() {
		ch.Timestamp = time.Now().UTC()
	}
	l.byID[ch.ImageID] = &ch
	return ch
}

// Restore re-inserts a previously recorded change verbatim, keeping its
// original sequence number. Used by undo and by session load.
func (l *Ledger) Restore(ch model.StagedChange) {
	cp := ch
	l.byID[ch.ImageID] = &cp
	if ch.Seq > l.seq {
		l.seq = ch.Seq
	}
}

// Clear removes the pending change for id, if any.
func (l *Ledger) Clear(id string) {
	delete(l.byID, id)
}

// Get returns a copy of the pending change for id.
func (l *Ledger) Get(id string) (model.StagedChange, bool) {
	ch, ok := l.byID[id]
	if !ok {
		return model.StagedChange{}, false
	}
	return *ch, true
}

// Pending returns all current entries in staging order.
func (l *Ledger) Pending() []model.StagedChange {
	out := make([]model.StagedChange, 0, len(l.byID))
	for _, ch := range l.byID {
		out = append(out, *ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

func (l *Ledger) Count() int { return len(l.byID) }

func (l *Ledger) HasChanges() bool { return len(l.byID) > 0 }
