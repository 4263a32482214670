package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"quicklabel/internal/model"
)

var testClasses = []string{"cat", "dog"}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fixtureDir(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	for _, rel := range []string{"a.jpg", "b.jpg", "cat/c.jpg"} {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(rel), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	return root
}

func newStore(t *testing.T, root string) *Store {
	t.Helper()
	s, err := New(root, testClasses, quietLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestNewInfersFolderLabels(t *testing.T) {
	s := newStore(t, fixtureDir(t))

	snap := s.Snapshot()
	if len(snap.Images) != 3 {
		t.Fatalf("images = %d, want 3", len(snap.Images))
	}
	c, ok := s.ImageByID("cat/c.jpg")
	if !ok || c.Label == nil || *c.Label != 0 {
		t.Fatalf("cat/c.jpg = %+v", c)
	}
	a, _ := s.ImageByID("a.jpg")
	if a.Label != nil {
		t.Fatalf("a.jpg should start unlabeled: %+v", a)
	}
}

func TestLabelValidation(t *testing.T) {
	s := newStore(t, fixtureDir(t))

	var ie InvalidImageError
	if _, err := s.Label("nope.jpg", 0); !errors.As(err, &ie) {
		t.Fatalf("err = %v, want InvalidImageError", err)
	}
	var ce InvalidClassError
	if _, err := s.Label("a.jpg", 5); !errors.As(err, &ce) {
		t.Fatalf("err = %v, want InvalidClassError", err)
	}
}

func TestLabelDeleteStaging(t *testing.T) {
	s := newStore(t, fixtureDir(t))

	name, err := s.Label("a.jpg", 1)
	if err != nil || name != "dog" {
		t.Fatalf("Label: %v, %q", err, name)
	}
	img, _ := s.ImageByID("a.jpg")
	if img.Label == nil || *img.Label != 1 || img.MarkedForDeletion {
		t.Fatalf("image = %+v", img)
	}

	if err := s.Delete("a.jpg"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	img, _ = s.ImageByID("a.jpg")
	if img.Label != nil || !img.MarkedForDeletion {
		t.Fatalf("delete did not supersede label: %+v", img)
	}

	// One ledger entry per image, whatever the history.
	snap := s.Snapshot()
	count := 0
	for _, ch := range snap.StagedChanges {
		if ch.ImageID == "a.jpg" {
			count++
			if ch.Action != model.ActionDelete {
				t.Fatalf("pending action = %s", ch.Action)
			}
		}
	}
	if count != 1 {
		t.Fatalf("entries for a.jpg = %d, want 1", count)
	}
}

func TestUndoRestoresExactState(t *testing.T) {
	s := newStore(t, fixtureDir(t))

	s.Label("a.jpg", 0)
	s.Label("a.jpg", 1)
	s.Delete("a.jpg")

	// Undo delete: back to dog label.
	res, err := s.Undo()
	if err != nil {
		t.Fatalf("Undo: %v", err)
	}
	if res.ImageID != "a.jpg" || res.UndoneKind != model.ActionDelete {
		t.Fatalf("res = %+v", res)
	}
	img, _ := s.ImageByID("a.jpg")
	if img.Label == nil || *img.Label != 1 || img.MarkedForDeletion {
		t.Fatalf("after undo 1: %+v", img)
	}

	// Undo relabel: back to cat.
	if _, err := s.Undo(); err != nil {
		t.Fatalf("Undo: %v", err)
	}
	img, _ = s.ImageByID("a.jpg")
	if img.Label == nil || *img.Label != 0 {
		t.Fatalf("after undo 2: %+v", img)
	}

	// Undo first label: back to initial, ledger empty.
	if _, err := s.Undo(); err != nil {
		t.Fatalf("Undo: %v", err)
	}
	img, _ = s.ImageByID("a.jpg")
	if img.Label != nil || img.MarkedForDeletion {
		t.Fatalf("after undo 3: %+v", img)
	}
	if n := len(s.Snapshot().StagedChanges); n != 0 {
		t.Fatalf("staged = %d, want 0", n)
	}

	if _, err := s.Undo(); !errors.Is(err, ErrNothingToUndo) {
		t.Fatalf("err = %v, want ErrNothingToUndo", err)
	}
}

func TestNavigateClamps(t *testing.T) {
	s := newStore(t, fixtureDir(t))

	if cur := s.Navigate("last", 0); cur != 2 {
		t.Fatalf("last = %d", cur)
	}
	if cur := s.Navigate("next", 0); cur != 2 {
		t.Fatalf("next past end = %d", cur)
	}
	if cur := s.Navigate("first", 0); cur != 0 {
		t.Fatalf("first = %d", cur)
	}
	if cur := s.Navigate("previous", 0); cur != 0 {
		t.Fatalf("previous past start = %d", cur)
	}
	if cur := s.Navigate("index", 1); cur != 1 {
		t.Fatalf("index = %d", cur)
	}
}

func TestSessionRoundTrip(t *testing.T) {
	root := fixtureDir(t)
	s := newStore(t, root)
	s.Label("a.jpg", 1)
	s.Delete("b.jpg")
	s.Navigate("index", 2)

	// A second store over the same directory resumes the session.
	s2 := newStore(t, root)
	snap1, snap2 := s.Snapshot(), s2.Snapshot()

	if snap2.CurrentIndex != snap1.CurrentIndex {
		t.Fatalf("cursor = %d, want %d", snap2.CurrentIndex, snap1.CurrentIndex)
	}
	if len(snap2.StagedChanges) != len(snap1.StagedChanges) {
		t.Fatalf("staged = %d, want %d", len(snap2.StagedChanges), len(snap1.StagedChanges))
	}
	for i := range snap1.StagedChanges {
		a, b := snap1.StagedChanges[i], snap2.StagedChanges[i]
		if a.ImageID != b.ImageID || a.Action != b.Action || a.Seq != b.Seq {
			t.Fatalf("staged[%d]: %+v != %+v", i, a, b)
		}
	}
	if len(snap2.UndoStack) != len(snap1.UndoStack) {
		t.Fatalf("undo = %d, want %d", len(snap2.UndoStack), len(snap1.UndoStack))
	}
	img, _ := s2.ImageByID("b.jpg")
	if !img.MarkedForDeletion {
		t.Fatalf("restored b.jpg = %+v", img)
	}

	// Undo still works across the reload.
	if _, err := s2.Undo(); err != nil {
		t.Fatalf("Undo after reload: %v", err)
	}
	img, _ = s2.ImageByID("b.jpg")
	if img.MarkedForDeletion {
		t.Fatalf("undo after reload did not restore: %+v", img)
	}
}

func TestCommitAppliesAndClears(t *testing.T) {
	root := fixtureDir(t)
	s := newStore(t, root)
	s.Label("a.jpg", 0)
	s.Delete("b.jpg")

	preview := s.Preview()
	if len(preview.Moves) != 1 || len(preview.Deletes) != 1 {
		t.Fatalf("preview = %+v", preview)
	}

	res := s.Commit(context.Background())
	if !res.Success || res.MovesApplied != 1 || res.DeletesApplied != 1 {
		t.Fatalf("result = %+v", res)
	}

	if _, err := os.Stat(filepath.Join(root, "cat", "a.jpg")); err != nil {
		t.Fatalf("moved file missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "b.jpg")); err == nil {
		t.Fatalf("b.jpg should be deleted")
	}

	snap := s.Snapshot()
	if len(snap.StagedChanges) != 0 {
		t.Fatalf("ledger not cleared: %+v", snap.StagedChanges)
	}
	// Committed images leave the active catalog.
	if len(snap.Images) != 1 || snap.Images[0].ID != "cat/c.jpg" {
		t.Fatalf("images = %+v", snap.Images)
	}

	var e InvalidImageError
	if _, err := s.Label("a.jpg", 0); !errors.As(err, &e) {
		t.Fatalf("label after commit: %v, want InvalidImageError", err)
	}
	if _, err := s.Undo(); !errors.Is(err, ErrNothingToUndo) {
		t.Fatalf("undo after commit: %v, want ErrNothingToUndo", err)
	}
}

func TestCommitKeepsFailedEntriesStaged(t *testing.T) {
	root := fixtureDir(t)
	s := newStore(t, root)
	s.Label("b.jpg", 0)

	// Occupy the destination so the move fails.
	dest := filepath.Join(root, "cat", "b.jpg")
	if err := os.WriteFile(dest, []byte("occupied"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	res := s.Commit(context.Background())
	if res.Success || res.MovesApplied != 0 {
		t.Fatalf("result = %+v", res)
	}
	// The failed entry survives for a retry.
	if n := len(s.Snapshot().StagedChanges); n != 1 {
		t.Fatalf("staged = %d, want 1", n)
	}
	if _, ok := s.ImageByID("b.jpg"); !ok {
		t.Fatalf("b.jpg should stay in the catalog")
	}
}

func TestStatsProgress(t *testing.T) {
	s := newStore(t, fixtureDir(t))
	s.Label("a.jpg", 1)
	s.Delete("b.jpg")

	st := s.Stats()
	if st.TotalImages != 3 || st.LabeledCount != 2 || st.DeletedCount != 1 || st.UnlabeledCount != 0 {
		t.Fatalf("stats = %+v", st)
	}
	if st.PerClass["cat"] != 1 || st.PerClass["dog"] != 1 {
		t.Fatalf("per class = %v", st.PerClass)
	}
}

func TestClearSessionResets(t *testing.T) {
	root := fixtureDir(t)
	s := newStore(t, root)
	s.Label("a.jpg", 1)

	if err := s.ClearSession(); err != nil {
		t.Fatalf("ClearSession: %v", err)
	}
	snap := s.Snapshot()
	if len(snap.StagedChanges) != 0 || len(snap.UndoStack) != 0 || snap.CurrentIndex != 0 {
		t.Fatalf("snap = %+v", snap)
	}
	img, _ := s.ImageByID("a.jpg")
	if img.Label != nil {
		t.Fatalf("label survived clear: %+v", img)
	}
}

func TestChangeCountAndDiff(t *testing.T) {
	s := newStore(t, fixtureDir(t))
	s.Label("a.jpg", 0)
	s.Label("cat/c.jpg", 1)
	s.Delete("b.jpg")

	cc := s.ChangeCount()
	if !cc.HasChanges || cc.UserChangesCount != 3 {
		t.Fatalf("count = %+v", cc)
	}
	diff := s.ChangeDiff()
	if diff.TotalChanges != 3 {
		t.Fatalf("diff = %+v", diff)
	}
	byID := map[string]model.ChangeDiffItem{}
	for _, it := range diff.Changes {
		byID[it.ImageID] = it
	}

	// First-time label: no prior label to report.
	if it := byID["a.jpg"]; it.ChangeType != "new_label" || it.PrevLabel != nil {
		t.Fatalf("a.jpg = %+v", it)
	}
	// Folder already supplied a label, so this is a relabel carrying it.
	it := byID["cat/c.jpg"]
	if it.ChangeType != "relabel" {
		t.Fatalf("cat/c.jpg change type = %q", it.ChangeType)
	}
	if it.PrevLabel == nil || *it.PrevLabel != 0 {
		t.Fatalf("cat/c.jpg prev label = %v", it.PrevLabel)
	}
	if it.NewLabel == nil || *it.NewLabel != 1 {
		t.Fatalf("cat/c.jpg new label = %v", it.NewLabel)
	}
	if it := byID["b.jpg"]; it.ChangeType != "deletion" {
		t.Fatalf("b.jpg = %+v", it)
	}
}

func TestUndoRefusesCommittedImage(t *testing.T) {
	s := newStore(t, fixtureDir(t))
	s.Label("a.jpg", 0)

	// An undo entry must never act on a committed image, even if one
	// survived commit-time invalidation.
	s.mu.Lock()
	s.committed["a.jpg"] = true
	s.mu.Unlock()

	_, err := s.Undo()
	var stale StaleUndoError
	if !errors.As(err, &stale) {
		t.Fatalf("err = %T %v, want StaleUndoError", err, err)
	}
	if stale.ImageID != "a.jpg" {
		t.Fatalf("image id = %q", stale.ImageID)
	}
}
