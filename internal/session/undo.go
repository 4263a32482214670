package session

import (
	"time"

	"quicklabel/internal/model"
)

// DefaultUndoDepth bounds the undo stack; the oldest entries fall off first.
const DefaultUndoDepth = 100

// UndoStack is an append-only log of reversible actions with LIFO pops.
// Not safe for concurrent use; the owning Store serializes access.
type UndoStack struct {
	entries []model.UndoEntry
	seq     int64
	depth   int
}

func NewUndoStack(depth int) *UndoStack {
	if depth <= 0 {
		depth = DefaultUndoDepth
	}
	return &UndoStack{depth: depth}
}

// Push appends an entry, assigning it the next sequence number, and trims
// the oldest entries beyond the configured depth.
func (u *UndoStack) Push(e model.UndoEntry) {
	u.seq++
	e.Seq = u.seq
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	u.entries = append(u.entries, e)
	if len(u.entries) > u.depth {
		u.entries = u.entries[len(u.entries)-u.depth:]
	}
}

// PopLast removes and returns the most recent entry.
func (u *UndoStack) PopLast() (model.UndoEntry, bool) {
	if len(u.entries) == 0 {
		return model.UndoEntry{}, false
	}
	e := u.entries[len(u.entries)-1]
	u.entries = u.entries[:len(u.entries)-1]
	return e, true
}

func (u *UndoStack) Len() int { return len(u.entries) }

// InvalidateImages drops every entry referencing one of the given ids.
// Called after a commit: those images are no longer ledger-controlled.
func (u *UndoStack) InvalidateImages(ids map[string]bool) {
	if len(ids) == 0 || len(u.entries) == 0 {
		return
	}
	kept := u.entries[:0]
	for _, e := range u.entries {
		if !ids[e.ImageID] {
			kept = append(kept, e)
		}
	}
	u.entries = kept
}

// Entries returns a copy of the stack, oldest first.
func (u *UndoStack) Entries() []model.UndoEntry {
	out := make([]model.UndoEntry, len(u.entries))
	copy(out, u.entries)
	return out
}

// Load replaces the stack contents, e.g. when resuming a persisted session.
func (u *UndoStack) Load(entries []model.UndoEntry) {
	u.entries = append(u.entries[:0], entries...)
	for _, e := range entries {
		if e.Seq > u.seq {
			u.seq = e.Seq
		}
	}
}
