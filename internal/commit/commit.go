package commit

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"quicklabel/internal/model"
	"quicklabel/internal/store"
)

// Preview projects the pending ledger entries into the filesystem operations
// a commit would perform. Destinations that collide are reported as warnings;
// the first writer wins at commit time and later writers fail per-item.
func Preview(changes []model.StagedChange, classes []string) model.CommitPreview {
	p := model.CommitPreview{
		Moves:    []model.PreviewChange{},
		Deletes:  []model.PreviewChange{},
		Warnings: []string{},
	}

	destSeen := map[string]string{} // destination -> first source
	for _, ch := range changes {
		switch ch.Action {
		case model.ActionDelete:
			p.Deletes = append(p.Deletes, model.PreviewChange{
				Action: "delete",
				Source: ch.ImageID,
			})
		case model.ActionLabel:
			if ch.ClassIndex == nil || *ch.ClassIndex < 0 || *ch.ClassIndex >= len(classes) {
				continue
			}
			dest := Destination(ch.ImageID, classes[*ch.ClassIndex], classes)
			if dest == ch.ImageID {
				// Already in the right class folder; nothing to move.
				continue
			}
			if first, dup := destSeen[dest]; dup {
				p.Warnings = append(p.Warnings, fmt.Sprintf(
					"destination collision: %s and %s both map to %s", first, ch.ImageID, dest))
			} else {
				destSeen[dest] = ch.ImageID
			}
			p.Moves = append(p.Moves, model.PreviewChange{
				Action:      "move",
				Source:      ch.ImageID,
				Destination: dest,
			})
		}
	}

	p.TotalChanges = len(p.Moves) + len(p.Deletes)
	return p
}

// Destination computes where a labeled image will live after commit.
//
// The deepest path segment matching any class name is replaced with the new
// class name, so relabeling moves the file between sibling class folders
// (20230919/up/img.png -> 20230919/down/img.png). When no segment matches,
// the class folder is appended before the filename.
func Destination(imageID, className string, classes []string) string {
	lower := make(map[string]bool, len(classes))
	for _, c := range classes {
		lower[strings.ToLower(c)] = true
	}

	dir, file := path.Split(imageID)
	parts := splitClean(dir)
	replaced := false
	for i := len(parts) - 1; i >= 0; i-- {
		if lower[strings.ToLower(parts[i])] {
			parts[i] = className
			replaced = true
			break
		}
	}
	if !replaced {
		parts = append(parts, className)
	}
	return strings.Join(append(parts, file), "/")
}

// Applied reports the outcome of Apply plus exactly which ledger entries
// were carried out, so the caller clears only those.
type Applied struct {
	Result     model.CommitResult
	MovedIDs   []string
	DeletedIDs []string
	FailedIDs  []string
}

// Apply performs the preview's moves then deletes against root. Each item is
// attempted independently; a failure is recorded and the rest proceed. Moves
// run first so a delete can never destroy a file a move was about to relocate.
func Apply(ctx context.Context, root string, p model.CommitPreview) Applied {
	a := Applied{Result: model.CommitResult{Errors: []string{}}}

	for _, mv := range p.Moves {
		if err := ctx.Err(); err != nil {
			a.Result.Errors = append(a.Result.Errors, fmt.Sprintf("move %s: %v", mv.Source, err))
			a.FailedIDs = append(a.FailedIDs, mv.Source)
			continue
		}
		src := filepath.Join(root, filepath.FromSlash(mv.Source))
		dst := filepath.Join(root, filepath.FromSlash(mv.Destination))
		if _, err := os.Stat(dst); err == nil {
			a.Result.Errors = append(a.Result.Errors, fmt.Sprintf(
				"failed to move %s: destination exists: %s", mv.Source, mv.Destination))
			a.FailedIDs = append(a.FailedIDs, mv.Source)
			continue
		}
		if err := moveFile(src, dst); err != nil {
			a.Result.Errors = append(a.Result.Errors, fmt.Sprintf("failed to move %s: %v", mv.Source, err))
			a.FailedIDs = append(a.FailedIDs, mv.Source)
			continue
		}
		a.Result.MovesApplied++
		a.MovedIDs = append(a.MovedIDs, mv.Source)
	}

	for _, del := range p.Deletes {
		if err := ctx.Err(); err != nil {
			a.Result.Errors = append(a.Result.Errors, fmt.Sprintf("delete %s: %v", del.Source, err))
			a.FailedIDs = append(a.FailedIDs, del.Source)
			continue
		}
		if err := os.Remove(filepath.Join(root, filepath.FromSlash(del.Source))); err != nil {
			a.Result.Errors = append(a.Result.Errors, fmt.Sprintf("failed to delete %s: %v", del.Source, err))
			a.FailedIDs = append(a.FailedIDs, del.Source)
			continue
		}
		a.Result.DeletesApplied++
		a.DeletedIDs = append(a.DeletedIDs, del.Source)
	}

	a.Result.Success = len(a.Result.Errors) == 0
	return a
}

// moveFile renames src to dst, creating the destination directory. A rename
// across filesystems falls back to copy-then-remove.
func moveFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if err := store.CopyFile(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}

func splitClean(dir string) []string {
	dir = strings.Trim(dir, "/")
	if dir == "" {
		return nil
	}
	return strings.Split(dir, "/")
}
