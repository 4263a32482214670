package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"quicklabel/internal/model"
	"quicklabel/internal/session"
)

func testServer(t *testing.T) (*httptest.Server, *session.Store) {
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
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sess, err := session.New(root, []string{"cat", "dog"}, logger)
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}
	srv, err := NewServer(ServerConfig{Session: sess, Log: logger})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	t.Cleanup(srv.Hub().CloseAll)
	return ts, sess
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func TestHealthAndSession(t *testing.T) {
	ts, _ := testServer(t)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("health: %v %v", err, resp)
	}
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/api/session")
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	var snap model.SessionState
	decode(t, resp, &snap)
	if len(snap.Images) != 3 {
		t.Fatalf("images = %d", len(snap.Images))
	}
}

func TestLabelUndoCommitFlow(t *testing.T) {
	ts, sess := testServer(t)

	resp := postJSON(t, ts.URL+"/api/label", map[string]any{"image_id": "a.jpg", "class_index": 0})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("label status = %d", resp.StatusCode)
	}
	var labelOut struct {
		ClassName string `json:"class_name"`
	}
	decode(t, resp, &labelOut)
	if labelOut.ClassName != "cat" {
		t.Fatalf("class_name = %q", labelOut.ClassName)
	}

	resp = postJSON(t, ts.URL+"/api/delete", map[string]any{"image_id": "b.jpg"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = postJSON(t, ts.URL+"/api/undo", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("undo status = %d", resp.StatusCode)
	}
	var undoOut struct {
		ImageID string `json:"image_id"`
	}
	decode(t, resp, &undoOut)
	if undoOut.ImageID != "b.jpg" {
		t.Fatalf("undone = %q", undoOut.ImageID)
	}

	var preview model.CommitPreview
	resp, err := http.Get(ts.URL + "/api/changes/preview")
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	decode(t, resp, &preview)
	if len(preview.Moves) != 1 || len(preview.Deletes) != 0 {
		t.Fatalf("preview = %+v", preview)
	}

	resp = postJSON(t, ts.URL+"/api/changes/commit", nil)
	var result model.CommitResult
	decode(t, resp, &result)
	if !result.Success || result.MovesApplied != 1 {
		t.Fatalf("result = %+v", result)
	}

	if _, ok := sess.ImageByID("a.jpg"); ok {
		t.Fatalf("committed image still in catalog")
	}
}

func TestLabelErrors(t *testing.T) {
	ts, _ := testServer(t)

	resp := postJSON(t, ts.URL+"/api/label", map[string]any{"image_id": "nope.jpg", "class_index": 0})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown image status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = postJSON(t, ts.URL+"/api/label", map[string]any{"image_id": "a.jpg", "class_index": 9})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad class status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = postJSON(t, ts.URL+"/api/undo", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty undo status = %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestImageFileServingAndValidation(t *testing.T) {
	ts, _ := testServer(t)

	resp, err := http.Get(ts.URL + "/api/images/cat/c.jpg")
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("fetch: %v %d", err, resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "cat/c.jpg" {
		t.Fatalf("body = %q", body)
	}

	for _, id := range []string{"../secret.jpg", "missing.jpg", "a.txt"} {
		resp, err := http.Get(ts.URL + "/api/images/" + id)
		if err != nil {
			t.Fatalf("GET %s: %v", id, err)
		}
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			t.Errorf("%s served, want rejection", id)
		}
	}
}

func TestStatsAndChangeCount(t *testing.T) {
	ts, _ := testServer(t)

	postJSON(t, ts.URL+"/api/label", map[string]any{"image_id": "a.jpg", "class_index": 1}).Body.Close()

	var stats model.Stats
	resp, _ := http.Get(ts.URL + "/api/stats")
	decode(t, resp, &stats)
	// a.jpg labeled now, cat/c.jpg labeled from its folder.
	if stats.LabeledCount != 2 {
		t.Fatalf("stats = %+v", stats)
	}

	var cc model.ChangeCount
	resp, _ = http.Get(ts.URL + "/api/changes/count")
	decode(t, resp, &cc)
	if !cc.HasChanges || cc.UserChangesCount != 1 {
		t.Fatalf("count = %+v", cc)
	}
}

func TestSessionInfoAndClear(t *testing.T) {
	ts, sess := testServer(t)

	postJSON(t, ts.URL+"/api/label", map[string]any{"image_id": "a.jpg", "class_index": 0}).Body.Close()

	var info model.SessionInfo
	resp, _ := http.Get(ts.URL + "/api/session/info")
	decode(t, resp, &info)
	if !info.HasPendingChanges || info.LabelsCount != 1 {
		t.Fatalf("info = %+v", info)
	}

	postJSON(t, ts.URL+"/api/session/clear", nil).Body.Close()
	if sess.SessionInfo().HasPendingChanges {
		t.Fatalf("clear did not reset pending changes")
	}
}

func TestSubfoldersAndFormat(t *testing.T) {
	ts, _ := testServer(t)

	var list model.SubfolderList
	resp, _ := http.Get(ts.URL + "/api/subfolders")
	decode(t, resp, &list)
	if !list.HasSubfolders || len(list.Subfolders) != 1 || list.Subfolders[0].Name != "cat" {
		t.Fatalf("subfolders = %+v", list)
	}

	var info model.FormatInfo
	resp, _ = http.Get(ts.URL + "/api/format")
	decode(t, resp, &info)
	if info.Format != "folder" {
		t.Fatalf("format = %+v", info)
	}
}

func TestErrStatusAndCode(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{session.InvalidImageError{ImageID: "x.jpg"}, http.StatusNotFound, "invalid_image"},
		{session.InvalidClassError{ClassIndex: 9, NumClasses: 2}, http.StatusBadRequest, "invalid_request"},
		{session.StaleUndoError{ImageID: "x.jpg"}, http.StatusConflict, "stale_undo"},
		{session.ErrNothingToUndo, http.StatusBadRequest, "nothing_to_undo"},
		{errors.New("boom"), http.StatusInternalServerError, "internal"},
	}
	for _, c := range cases {
		if got := errStatus(c.err); got != c.status {
			t.Errorf("errStatus(%v) = %d, want %d", c.err, got, c.status)
		}
		if got := errCode(c.err); got != c.code {
			t.Errorf("errCode(%v) = %q, want %q", c.err, got, c.code)
		}
	}
}
