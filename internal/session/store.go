package session

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"quicklabel/internal/catalog"
	"quicklabel/internal/commit"
	"quicklabel/internal/model"
	"quicklabel/internal/store"
)

// Store is the authoritative session state: catalog + ledger + undo stack +
// cursor. Every mutating operation runs as a critical section and persists a
// snapshot afterwards, so a crash loses at most the in-flight call.
//
// Store is constructed once per server process and passed by reference;
// replicas only ever hold disposable copies of its Snapshot.
type Store struct {
	mu sync.Mutex

	root    string
	classes []string

	images    []model.Image
	index     map[string]int
	ledger    *Ledger
	undo      *UndoStack
	cursor    int
	committed map[string]bool

	currentFolder string
	createdAt     time.Time

	st        store.Store
	listeners []func()
	log       *slog.Logger
}

// New loads or creates the session for root. A persisted session file is
// merged with a fresh scan: ledger and undo entries for images that still
// exist are restored exactly; entries for vanished files are dropped.
func New(root string, classes []string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	root = filepath.Clean(root)

	s := &Store{
		root:      root,
		classes:   append([]string(nil), classes...),
		ledger:    NewLedger(),
		undo:      NewUndoStack(DefaultUndoDepth),
		committed: map[string]bool{},
		createdAt: time.Now().UTC(),
		st:        store.ForWorkingDir(root),
		log:       logger,
	}

	if err := s.st.Ensure(); err != nil {
		return nil, fmt.Errorf("failed to create state dir: %w", err)
	}

	ids, err := catalog.Scan(root)
	if err != nil {
		return nil, err
	}

	sf, err := s.st.LoadSession()
	if err != nil {
		// A corrupt session file should not brick the tool.
		logger.Error("failed to load session file, starting fresh", "error", err)
		sf = nil
	}

	s.buildImages(ids)

	if sf != nil {
		s.restoreFrom(sf, logger)
		logger.Info("restored session",
			"images", len(s.images), "staged", s.ledger.Count(), "undo", s.undo.Len())
	} else {
		logger.Info("created session", "images", len(s.images))
	}

	s.clampCursorLocked()
	s.persistLocked("session_start", "", fmt.Sprintf("images=%d", len(s.images)))
	return s, nil
}

// buildImages rebuilds the catalog from scanned ids, inferring initial
// labels from class-named folders.
func (s *Store) buildImages(ids []string) {
	s.images = make([]model.Image, 0, len(ids))
	s.index = make(map[string]int, len(ids))
	for _, id := range ids {
		img := model.Image{ID: id, Filename: filepath.Base(filepath.FromSlash(id))}
		if li := catalog.InferLabel(id, s.classes); li != nil {
			v := *li
			name := s.classes[v]
			img.Label = &v
			img.ClassName = &name
		}
		s.index[img.ID] = len(s.images)
		s.images = append(s.images, img)
	}
}

func (s *Store) restoreFrom(sf *model.SessionFile, logger *slog.Logger) {
	if !sf.CreatedAt.IsZero() {
		s.createdAt = sf.CreatedAt
	}
	if len(sf.Classes) > 0 && !equalStrings(sf.Classes, s.classes) {
		logger.Warn("session classes differ from requested; using requested",
			"session", sf.Classes, "requested", s.classes)
	}

	for _, ch := range sf.StagedChanges {
		i, ok := s.index[ch.ImageID]
		if !ok {
			logger.Warn("dropping staged change for missing image", "image", ch.ImageID)
			continue
		}
		s.ledger.Restore(ch)
		applyChange(&s.images[i], ch)
	}

	var kept []model.UndoEntry
	for _, e := range sf.UndoStack {
		if _, ok := s.index[e.ImageID]; ok {
			kept = append(kept, e)
		}
	}
	s.undo.Load(kept)

	s.cursor = sf.CurrentIndex
}

// applyChange applies a staged change to the image's observable fields.
func applyChange(img *model.Image, ch model.StagedChange) {
	switch ch.Action {
	case model.ActionLabel:
		img.Label = copyInt(ch.ClassIndex)
		img.ClassName = copyString(ch.ClassName)
		img.MarkedForDeletion = false
	case model.ActionDelete:
		img.Label = nil
		img.ClassName = nil
		img.MarkedForDeletion = true
	case model.ActionClear:
		img.Label = nil
		img.ClassName = nil
		img.MarkedForDeletion = false
	}
}

// OnChange registers a callback fired after every state mutation, outside
// the critical section. The web layer uses this to broadcast deltas.
func (s *Store) OnChange(fn func()) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

func (s *Store) notify() {
	s.mu.Lock()
	ls := append([]func(){}, s.listeners...)
	s.mu.Unlock()
	for _, fn := range ls {
		fn()
	}
}

// Label stages a class label for the image and returns the class name.
func (s *Store) Label(imageID string, classIndex int) (string, error) {
	s.mu.Lock()
	if classIndex < 0 || classIndex >= len(s.classes) {
		s.mu.Unlock()
		return "", InvalidClassError{ClassIndex: classIndex, NumClasses: len(s.classes)}
	}
	i, ok := s.index[imageID]
	if !ok {
		s.mu.Unlock()
		return "", InvalidImageError{ImageID: imageID}
	}

	img := &s.images[i]
	name := s.classes[classIndex]
	idx := classIndex

	s.undo.Push(model.UndoEntry{
		ImageID:       imageID,
		Action:        model.ActionLabel,
		PrevLabel:     copyInt(img.Label),
		PrevClassName: copyString(img.ClassName),
		PrevDeleted:   img.MarkedForDeletion,
		PrevChange:    ledgerSnapshot(s.ledger, imageID),
	})

	img.Label = &idx
	img.ClassName = &name
	img.MarkedForDeletion = false
	s.ledger.Stage(model.StagedChange{
		ImageID:    imageID,
		Action:     model.ActionLabel,
		ClassIndex: &idx,
		ClassName:  &name,
	})

	s.persistLocked("label", imageID, fmt.Sprintf("class=%d name=%s", classIndex, name))
	s.mu.Unlock()
	s.notify()
	return name, nil
}

// Delete stages the image for deletion, clearing any pending label.
func (s *Store) Delete(imageID string) error {
	s.mu.Lock()
	i, ok := s.index[imageID]
	if !ok {
		s.mu.Unlock()
		return InvalidImageError{ImageID: imageID}
	}

	img := &s.images[i]
	s.undo.Push(model.UndoEntry{
		ImageID:       imageID,
		Action:        model.ActionDelete,
		PrevLabel:     copyInt(img.Label),
		PrevClassName: copyString(img.ClassName),
		PrevDeleted:   img.MarkedForDeletion,
		PrevChange:    ledgerSnapshot(s.ledger, imageID),
	})

	img.Label = nil
	img.ClassName = nil
	img.MarkedForDeletion = true
	s.ledger.Stage(model.StagedChange{
		ImageID: imageID,
		Action:  model.ActionDelete,
	})

	s.persistLocked("delete", imageID, "")
	s.mu.Unlock()
	s.notify()
	return nil
}

// UndoResult describes what an undo restored.
type UndoResult struct {
	ImageID     string
	UndoneKind  model.ActionKind
	Description string
	Image       model.Image
}

// Undo pops the most recent action and restores the image to its exact
// pre-action observable state, re-staging or clearing the ledger entry so
// the ledger stays consistent with the restored state.
func (s *Store) Undo() (UndoResult, error) {
	s.mu.Lock()
	e, ok := s.undo.PopLast()
	if !ok {
		s.mu.Unlock()
		return UndoResult{}, ErrNothingToUndo
	}
	if s.committed[e.ImageID] {
		s.mu.Unlock()
		return UndoResult{}, StaleUndoError{ImageID: e.ImageID}
	}
	i, ok := s.index[e.ImageID]
	if !ok {
		s.mu.Unlock()
		return UndoResult{}, InvalidImageError{ImageID: e.ImageID}
	}

	img := &s.images[i]
	img.Label = copyInt(e.PrevLabel)
	img.ClassName = copyString(e.PrevClassName)
	img.MarkedForDeletion = e.PrevDeleted
	if e.PrevChange != nil {
		s.ledger.Restore(*e.PrevChange)
	} else {
		s.ledger.Clear(e.ImageID)
	}

	res := UndoResult{
		ImageID:     e.ImageID,
		UndoneKind:  e.Action,
		Description: fmt.Sprintf("undid %s on %s", e.Action, e.ImageID),
		Image:       *img,
	}
	s.persistLocked("undo", e.ImageID, string(e.Action))
	s.mu.Unlock()
	s.notify()
	return res, nil
}

// Navigate moves the cursor: next, previous, first, last, or index.
// Out-of-range targets clamp to the catalog bounds.
func (s *Store) Navigate(direction string, index int) int {
	s.mu.Lock()
	if len(s.images) == 0 {
		s.cursor = 0
		s.mu.Unlock()
		return 0
	}
	switch direction {
	case "next":
		s.cursor++
	case "previous":
		s.cursor--
	case "first":
		s.cursor = 0
	case "last":
		s.cursor = len(s.images) - 1
	case "index":
		s.cursor = index
	}
	s.clampCursorLocked()
	cur := s.cursor
	s.persistLocked("navigate", "", fmt.Sprintf("index=%d", cur))
	s.mu.Unlock()
	s.notify()
	return cur
}

func (s *Store) clampCursorLocked() {
	if s.cursor < 0 {
		s.cursor = 0
	}
	if max := len(s.images) - 1; s.cursor > max {
		if max < 0 {
			s.cursor = 0
		} else {
			s.cursor = max
		}
	}
}

// Preview computes, without side effects, the filesystem operations a
// commit would perform right now.
func (s *Store) Preview() model.CommitPreview {
	s.mu.Lock()
	defer s.mu.Unlock()
	return commit.Preview(s.ledger.Pending(), s.classes)
}

// Commit applies the ledger to the filesystem: moves first, then deletes,
// best-effort per item. Only successfully applied entries are cleared;
// committed images leave the active catalog and their undo entries are
// invalidated. Failed items stay staged so the operator can retry.
func (s *Store) Commit(ctx context.Context) model.CommitResult {
	s.mu.Lock()

	pending := s.ledger.Pending()
	preview := commit.Preview(pending, s.classes)
	applied := commit.Apply(ctx, s.root, preview)

	appliedIDs := map[string]bool{}
	for _, id := range applied.MovedIDs {
		appliedIDs[id] = true
	}
	for _, id := range applied.DeletedIDs {
		appliedIDs[id] = true
	}
	// Entries with no filesystem effect (already in place, clears) commit
	// trivially unless their fs counterpart failed.
	failed := map[string]bool{}
	for _, id := range applied.FailedIDs {
		failed[id] = true
	}
	for _, ch := range pending {
		if !appliedIDs[ch.ImageID] && !failed[ch.ImageID] {
			appliedIDs[ch.ImageID] = true
		}
	}

	removed := map[string]bool{}
	for _, id := range applied.MovedIDs {
		removed[id] = true
	}
	for _, id := range applied.DeletedIDs {
		removed[id] = true
	}

	for id := range appliedIDs {
		s.ledger.Clear(id)
	}
	s.undo.InvalidateImages(appliedIDs)
	for id := range removed {
		s.committed[id] = true
	}
	if len(removed) > 0 {
		kept := s.images[:0]
		for _, img := range s.images {
			if !removed[img.ID] {
				kept = append(kept, img)
			}
		}
		s.images = kept
		s.index = make(map[string]int, len(s.images))
		for i, img := range s.images {
			s.index[img.ID] = i
		}
	}
	s.clampCursorLocked()

	s.persistLocked("commit", "", fmt.Sprintf(
		"moves=%d deletes=%d errors=%d",
		applied.Result.MovesApplied, applied.Result.DeletesApplied, len(applied.Result.Errors)))
	s.mu.Unlock()
	s.notify()
	return applied.Result
}

// Snapshot returns a defensive, consistent copy of the full session state.
func (s *Store) Snapshot() model.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() model.SessionState {
	return model.SessionState{
		Version:          store.SessionVersion,
		WorkingDirectory: s.root,
		Classes:          append([]string(nil), s.classes...),
		Images:           copyImages(s.images),
		CurrentIndex:     s.cursor,
		StagedChanges:    s.ledger.Pending(),
		UndoStack:        s.undo.Entries(),
	}
}

// Stats summarizes labeling progress. Deleted images count separately from
// labeled ones; progress is labeled over total.
func (s *Store) Stats() model.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := model.Stats{PerClass: map[string]int{}}
	for _, c := range s.classes {
		st.PerClass[c] = 0
	}
	for _, img := range s.images {
		switch {
		case img.MarkedForDeletion:
			st.DeletedCount++
		case img.Label != nil:
			st.LabeledCount++
			if *img.Label >= 0 && *img.Label < len(s.classes) {
				st.PerClass[s.classes[*img.Label]]++
			}
		}
	}
	st.TotalImages = len(s.images)
	st.UnlabeledCount = st.TotalImages - st.LabeledCount - st.DeletedCount
	if st.TotalImages > 0 {
		st.ProgressPercent = float64(st.LabeledCount) / float64(st.TotalImages) * 100
		st.ProgressPercent = float64(int(st.ProgressPercent*10+0.5)) / 10
	}
	return st
}

// SessionInfo backs the resume-or-fresh prompt.
func (s *Store) SessionInfo() model.SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	info := model.SessionInfo{UndoDepth: s.undo.Len()}
	for _, ch := range s.ledger.Pending() {
		switch ch.Action {
		case model.ActionLabel:
			info.LabelsCount++
		case model.ActionDelete:
			info.DeletionsCount++
		}
	}
	info.HasPendingChanges = s.ledger.HasChanges()
	return info
}

// ChangeCount is the cheap pending-change summary for the commit badge.
func (s *Store) ChangeCount() model.ChangeCount {
	p := s.Preview()
	return model.ChangeCount{
		UserChangesCount: p.TotalChanges,
		HasChanges:       p.TotalChanges > 0,
		Breakdown: map[string]int{
			"moves":     len(p.Moves),
			"deletions": len(p.Deletes),
		},
	}
}

// ChangeDiff lists every pending transition, oldest staged first.
func (s *Store) ChangeDiff() model.ChangeDiff {
	s.mu.Lock()
	defer s.mu.Unlock()

	var diff model.ChangeDiff
	for _, ch := range s.ledger.Pending() {
		item := model.ChangeDiffItem{
			ImageID:   ch.ImageID,
			PrevLabel: catalog.InferLabel(ch.ImageID, s.classes),
		}
		switch ch.Action {
		case model.ActionLabel:
			item.NewLabel = copyInt(ch.ClassIndex)
			if item.PrevLabel != nil {
				item.ChangeType = "relabel"
			} else {
				item.ChangeType = "new_label"
			}
		case model.ActionDelete:
			item.ChangeType = "deletion"
		case model.ActionClear:
			item.ChangeType = "unlabel"
		}
		diff.Changes = append(diff.Changes, item)
	}
	diff.TotalChanges = len(diff.Changes)
	return diff
}

// ClearSession discards all staged changes and the undo stack and rebuilds
// the catalog from disk. The previous session file is backed up first.
func (s *Store) ClearSession() error {
	s.mu.Lock()

	if path, err := s.st.BackupSession(); err != nil {
		s.log.Warn("session backup failed", "error", err)
	} else if path != "" {
		s.log.Info("backed up session", "path", path)
	}

	ids, err := catalog.Scan(s.root)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.ledger = NewLedger()
	s.undo = NewUndoStack(DefaultUndoDepth)
	s.committed = map[string]bool{}
	s.buildImages(ids)
	s.cursor = 0
	s.createdAt = time.Now().UTC()

	s.persistLocked("session_clear", "", "")
	s.mu.Unlock()
	s.notify()
	return nil
}

// NavigateFolder switches the subfolder context used by folder listings.
func (s *Store) NavigateFolder(folder string) ([]model.Breadcrumb, int, error) {
	folder = strings.Trim(strings.TrimSpace(folder), "/")
	if strings.Contains(folder, "..") {
		return nil, 0, fmt.Errorf("invalid folder: %s", folder)
	}
	target := s.root
	if folder != "" {
		target = filepath.Join(s.root, filepath.FromSlash(folder))
	}
	st, err := os.Stat(target)
	if err != nil || !st.IsDir() {
		return nil, 0, fmt.Errorf("folder not found: %s", folder)
	}

	s.mu.Lock()
	s.currentFolder = folder
	count := 0
	prefix := folder + "/"
	for _, img := range s.images {
		if folder == "" || strings.HasPrefix(img.ID, prefix) {
			count++
		}
	}
	s.mu.Unlock()
	s.notify()
	return catalog.Breadcrumbs(folder), count, nil
}

// CurrentFolder returns the active subfolder context ("" = root).
func (s *Store) CurrentFolder() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentFolder
}

// Subfolders lists navigable folders under the current context, with
// labeled counts filled in from session state.
func (s *Store) Subfolders() (model.SubfolderList, error) {
	cur := s.CurrentFolder()
	list, err := catalog.Subfolders(s.root, cur)
	if err != nil {
		return model.SubfolderList{}, err
	}

	s.mu.Lock()
	for i := range list.Subfolders {
		prefix := list.Subfolders[i].Path + "/"
		for _, img := range s.images {
			if strings.HasPrefix(img.ID, prefix) && img.Label != nil {
				list.Subfolders[i].LabeledCount++
			}
		}
	}
	s.mu.Unlock()
	return list, nil
}

// CurrentImage returns the image under the cursor.
func (s *Store) CurrentImage() (model.Image, int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cursor < 0 || s.cursor >= len(s.images) {
		return model.Image{}, s.cursor, false
	}
	img := s.images[s.cursor]
	return img, s.cursor, true
}

// ImageByID returns a copy of the image with the given id.
func (s *Store) ImageByID(id string) (model.Image, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[id]
	if !ok {
		return model.Image{}, false
	}
	return s.images[i], true
}

// Classes returns the session's ordered class list.
func (s *Store) Classes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.classes...)
}

// Root returns the working directory.
func (s *Store) Root() string { return s.root }

// History returns the most recent history events, newest first.
func (s *Store) History(ctx context.Context, limit int) ([]model.HistoryEvent, error) {
	return s.st.ReadHistory(ctx, limit)
}

// persistLocked writes the session file and appends a history event.
// Persistence failure is logged, never fatal: the in-memory session stays
// authoritative and the operator can retry.
func (s *Store) persistLocked(action, imageID, details string) {
	sf := &model.SessionFile{
		WorkingDirectory: s.root,
		Classes:          append([]string(nil), s.classes...),
		Images:           copyImages(s.images),
		CurrentIndex:     s.cursor,
		StagedChanges:    s.ledger.Pending(),
		UndoStack:        s.undo.Entries(),
		CreatedAt:        s.createdAt,
	}
	if err := s.st.SaveSession(sf); err != nil {
		s.log.Error("failed to persist session", "error", err)
	}
	if err := s.st.AppendHistory(context.Background(), action, imageID, details); err != nil {
		s.log.Warn("failed to append history", "action", action, "error", err)
	}
}

func copyImages(in []model.Image) []model.Image {
	out := make([]model.Image, len(in))
	for i, img := range in {
		out[i] = img
		out[i].Label = copyInt(img.Label)
		out[i].ClassName = copyString(img.ClassName)
	}
	return out
}

func ledgerSnapshot(l *Ledger, id string) *model.StagedChange {
	if ch, ok := l.Get(id); ok {
		return &ch
	}
	return nil
}

func copyInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func copyString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
