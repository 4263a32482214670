package model

import "time"

// ActionKind is the kind of a staged (uncommitted) change.
type ActionKind string

const (
	ActionLabel  ActionKind = "label"
	ActionDelete ActionKind = "delete"
	ActionClear  ActionKind = "clear"
)

// Image is one entry in the active catalog. The ID is the path relative to
// the working directory and is stable for the lifetime of the session.
type Image struct {
	ID                string  `json:"id"`
	Filename          string  `json:"filename"`
	Label             *int    `json:"label"`
	ClassName         *string `json:"class_name"`
	MarkedForDeletion bool    `json:"marked_for_deletion"`
}

// StagedChange is the most recent pending change for one image. The ledger
// holds at most one per image id; a later change supersedes an earlier one.
type StagedChange struct {
	ImageID    string     `json:"image_id"`
	Action     ActionKind `json:"action"`
	ClassIndex *int       `json:"class_index,omitempty"`
	ClassName  *string    `json:"class_name,omitempty"`
	Seq        int64      `json:"seq"`
	Timestamp  time.Time  `json:"timestamp"`
}

// UndoEntry captures the observable state of an image immediately before a
// mutating action, plus the ledger entry it displaced, so one undo restores
// both exactly.
type UndoEntry struct {
	ImageID       string        `json:"image_id"`
	Action        ActionKind    `json:"action"`
	PrevLabel     *int          `json:"previous_label,omitempty"`
	PrevClassName *string       `json:"previous_class_name,omitempty"`
	PrevDeleted   bool          `json:"previous_deleted"`
	PrevChange    *StagedChange `json:"previous_change,omitempty"`
	Seq           int64         `json:"seq"`
	Timestamp     time.Time     `json:"timestamp"`
}

// SessionFile is the on-disk schema of .quicklabel/session.json.
type SessionFile struct {
	Version          string         `json:"version"`
	WorkingDirectory string         `json:"working_directory"`
	Classes          []string       `json:"classes"`
	Images           []Image        `json:"images"`
	CurrentIndex     int            `json:"current_index"`
	StagedChanges    []StagedChange `json:"staged_changes"`
	UndoStack        []UndoEntry    `json:"undo_stack"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// SessionState is the full session projection returned by GET /api/session.
type SessionState struct {
	Version          string         `json:"version"`
	WorkingDirectory string         `json:"working_directory"`
	Classes          []string       `json:"classes"`
	Images           []Image        `json:"images"`
	CurrentIndex     int            `json:"current_index"`
	StagedChanges    []StagedChange `json:"staged_changes"`
	UndoStack        []UndoEntry    `json:"undo_stack"`
}

// Stats is the labeling progress summary returned by GET /api/stats.
type Stats struct {
	TotalImages     int            `json:"total_images"`
	LabeledCount    int            `json:"labeled_count"`
	UnlabeledCount  int            `json:"unlabeled_count"`
	DeletedCount    int            `json:"deleted_count"`
	PerClass        map[string]int `json:"per_class"`
	ProgressPercent float64        `json:"progress_percent"`
}

// PreviewChange is a single move or delete in a commit preview.
type PreviewChange struct {
	Action      string `json:"action"`
	Source      string `json:"source"`
	Destination string `json:"destination,omitempty"`
}

// CommitPreview is the read-only projection of the ledger into the
// filesystem operations a commit would perform. Never persisted.
type CommitPreview struct {
	TotalChanges int             `json:"total_changes"`
	Moves        []PreviewChange `json:"moves"`
	Deletes      []PreviewChange `json:"deletes"`
	Warnings     []string        `json:"warnings"`
}

// CommitResult reports what a commit actually applied. Per-item failures are
// collected in Errors; successfully applied items are never rolled back.
type CommitResult struct {
	Success        bool     `json:"success"`
	MovesApplied   int      `json:"moves_completed"`
	DeletesApplied int      `json:"deletes_completed"`
	Errors         []string `json:"errors"`
}

// SessionInfo backs the resume-or-fresh prompt on client startup.
type SessionInfo struct {
	HasPendingChanges bool `json:"has_pending_changes"`
	LabelsCount       int  `json:"labels_count"`
	DeletionsCount    int  `json:"deletions_count"`
	UndoDepth         int  `json:"undo_depth"`
}

// ChangeCount is the lightweight pending-change summary for GET /api/changes/count.
type ChangeCount struct {
	UserChangesCount int            `json:"user_changes_count"`
	HasChanges       bool           `json:"has_changes"`
	Breakdown        map[string]int `json:"breakdown"`
}

// ChangeDiffItem is one old->new label transition in GET /api/changes/diff.
type ChangeDiffItem struct {
	ImageID    string `json:"image_id"`
	PrevLabel  *int   `json:"previous_label,omitempty"`
	NewLabel   *int   `json:"new_label,omitempty"`
	ChangeType string `json:"change_type"`
}

type ChangeDiff struct {
	Changes      []ChangeDiffItem `json:"changes"`
	TotalChanges int              `json:"total_changes"`
}

// SubfolderInfo describes one navigable subfolder of the working directory.
type SubfolderInfo struct {
	Path         string `json:"path"`
	Name         string `json:"name"`
	ImageCount   int    `json:"image_count"`
	LabeledCount int    `json:"labeled_count"`
}

type SubfolderList struct {
	CurrentFolder string          `json:"current_folder"`
	Subfolders    []SubfolderInfo `json:"subfolders"`
	HasSubfolders bool            `json:"has_subfolders"`
}

type Breadcrumb struct {
	Path      string `json:"path"`
	Name      string `json:"name"`
	IsCurrent bool   `json:"is_current"`
}

// FormatInfo is the detected annotation layout of the working directory.
type FormatInfo struct {
	Format          string   `json:"format"`
	FormatLabel     string   `json:"format_label"`
	ClassFolders    []string `json:"class_folders,omitempty"`
	ClassesFromDirs []string `json:"classes_from_dirs,omitempty"`
	Confidence      float64  `json:"confidence"`
}

// HistoryEvent is one row of the append-only action history.
type HistoryEvent struct {
	ID      int64     `json:"id"`
	At      time.Time `json:"at"`
	Action  string    `json:"action"`
	ImageID string    `json:"image_id,omitempty"`
	Details string    `json:"details,omitempty"`
}
