// Package replica maintains a client-side mirror of the server session:
// optimistic local updates, reconciliation from authoritative broadcasts,
// and the supporting pieces a keyboard client needs (prefetch cache,
// reconnect backoff, chord detection).
package replica

import (
	"sync"

	"quicklabel/internal/model"
	"quicklabel/internal/ws"
)

// Event is delivered to the UI after the mirror has been updated from a
// server message. The UI reads the new state via State()/Stats().
type Event struct {
	Type    string
	Message string // human-readable detail, set for errors and undo
}

// Replica is the local mirror of the session. Local mutations are applied
// optimistically; every server broadcast is authoritative and overwrites
// the optimistic guess, so replicas converge even when guesses were wrong.
type Replica struct {
	mu         sync.Mutex
	state      model.SessionState
	stats      model.Stats
	lastCommit *model.CommitResult
	lastError  string
	degraded   bool
}

func New() *Replica {
	return &Replica{}
}

// State returns a copy of the mirrored session state.
func (r *Replica) State() model.SessionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.state
	st.Images = append([]model.Image(nil), r.state.Images...)
	st.Classes = append([]string(nil), r.state.Classes...)
	return st
}

func (r *Replica) Stats() model.Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// Current returns the image under the mirrored cursor.
func (r *Replica) Current() (model.Image, int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.state.CurrentIndex
	if i < 0 || i >= len(r.state.Images) {
		return model.Image{}, i, false
	}
	return r.state.Images[i], i, true
}

// ImageIDs returns the catalog order, for prefetch planning.
func (r *Replica) ImageIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, len(r.state.Images))
	for i, img := range r.state.Images {
		ids[i] = img.ID
	}
	return ids
}

// LastCommit returns the most recent commit result seen, if any.
func (r *Replica) LastCommit() *model.CommitResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastCommit
}

func (r *Replica) LastError() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastError
}

// Degraded reports whether the server link is down. A degraded replica
// keeps rendering its mirror read-only.
func (r *Replica) Degraded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.degraded
}

func (r *Replica) setDegraded(v bool) {
	r.mu.Lock()
	r.degraded = v
	r.mu.Unlock()
}

// OptimisticLabel updates the mirror before the server confirms, so the
// keypress feels instant. The broadcast that follows overwrites this.
func (r *Replica) OptimisticLabel(imageID string, classIndex int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i, ok := r.find(imageID); ok {
		idx := classIndex
		img := &r.state.Images[i]
		img.Label = &idx
		if classIndex >= 0 && classIndex < len(r.state.Classes) {
			name := r.state.Classes[classIndex]
			img.ClassName = &name
		}
		img.MarkedForDeletion = false
	}
}

// OptimisticDelete marks the image deleted in the mirror.
func (r *Replica) OptimisticDelete(imageID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i, ok := r.find(imageID); ok {
		img := &r.state.Images[i]
		img.Label = nil
		img.ClassName = nil
		img.MarkedForDeletion = true
	}
}

// OptimisticNavigate moves the mirrored cursor immediately.
func (r *Replica) OptimisticNavigate(index int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if index < 0 {
		index = 0
	}
	if max := len(r.state.Images) - 1; max >= 0 && index > max {
		index = max
	}
	r.state.CurrentIndex = index
}

// Apply reconciles one server envelope into the mirror and returns the
// event to surface to the UI. needSync is true when the mirror cannot
// reconcile incrementally and a full state_update should be requested.
func (r *Replica) Apply(env ws.Envelope) (Event, bool, error) {
	switch env.Type {
	case ws.TypeStateUpdate:
		var st model.SessionState
		if err := env.DecodePayload(&st); err != nil {
			return Event{}, false, err
		}
		r.mu.Lock()
		r.state = st
		r.recountLocked()
		r.mu.Unlock()
		return Event{Type: env.Type}, false, nil

	case ws.TypeImageLabeled:
		var p ws.ImageLabeled
		if err := env.DecodePayload(&p); err != nil {
			return Event{}, false, err
		}
		r.upsert(p.Image, p.Stats)
		return Event{Type: env.Type}, false, nil

	case ws.TypeImageDeleted:
		var p ws.ImageDeleted
		if err := env.DecodePayload(&p); err != nil {
			return Event{}, false, err
		}
		r.upsert(p.Image, p.Stats)
		return Event{Type: env.Type}, false, nil

	case ws.TypeUndoCompleted:
		var p ws.UndoCompleted
		if err := env.DecodePayload(&p); err != nil {
			return Event{}, false, err
		}
		r.upsert(p.Image, p.Stats)
		return Event{Type: env.Type, Message: p.Description}, false, nil

	case ws.TypeChangesCommitted:
		var p ws.ChangesCommitted
		if err := env.DecodePayload(&p); err != nil {
			return Event{}, false, err
		}
		r.mu.Lock()
		res := p.Result
		r.lastCommit = &res
		r.stats = p.Stats
		r.mu.Unlock()
		// Committed images left the catalog; re-pull the full state.
		return Event{Type: env.Type}, true, nil

	case ws.TypeError:
		var p ws.ErrorPayload
		if err := env.DecodePayload(&p); err != nil {
			return Event{}, false, err
		}
		r.mu.Lock()
		r.lastError = p.Message
		r.mu.Unlock()
		return Event{Type: env.Type, Message: p.Message}, false, nil
	}
	return Event{Type: env.Type}, false, nil
}

func (r *Replica) find(imageID string) (int, bool) {
	for i := range r.state.Images {
		if r.state.Images[i].ID == imageID {
			return i, true
		}
	}
	return 0, false
}

func (r *Replica) upsert(img model.Image, stats model.Stats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i, ok := r.find(img.ID); ok {
		r.state.Images[i] = img
	} else {
		r.state.Images = append(r.state.Images, img)
	}
	r.stats = stats
}

// recountLocked rebuilds stats from the mirror after a full state_update,
// which carries no stats of its own.
func (r *Replica) recountLocked() {
	st := model.Stats{PerClass: map[string]int{}, TotalImages: len(r.state.Images)}
	for _, c := range r.state.Classes {
		st.PerClass[c] = 0
	}
	for _, img := range r.state.Images {
		switch {
		case img.MarkedForDeletion:
			st.DeletedCount++
		case img.Label != nil:
			st.LabeledCount++
			if img.ClassName != nil {
				st.PerClass[*img.ClassName]++
			}
		}
	}
	st.UnlabeledCount = st.TotalImages - st.LabeledCount - st.DeletedCount
	if st.TotalImages > 0 {
		st.ProgressPercent = float64(st.LabeledCount) / float64(st.TotalImages) * 100
	}
	r.stats = st
}
