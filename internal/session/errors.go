package session

import (
	"errors"
	"fmt"
)

// ErrNothingToUndo is returned by Undo when the stack is empty.
var ErrNothingToUndo = errors.New("nothing to undo")

// InvalidImageError reports a label/delete/undo that referenced an image id
// the active catalog does not contain.
type InvalidImageError struct {
	ImageID string
}

func (e InvalidImageError) Error() string {
	return fmt.Sprintf("image not found: %s", e.ImageID)
}

// InvalidClassError reports a label whose class index is outside the class list.
type InvalidClassError struct {
	ClassIndex int
	NumClasses int
}

func (e InvalidClassError) Error() string {
	return fmt.Sprintf("invalid class index: %d (have %d classes)", e.ClassIndex, e.NumClasses)
}

// StaleUndoError reports an undo that targets an image already committed.
// Committed images are no longer ledger-controlled, so their undo entries
// cannot be applied. Commit invalidates the undo entries of every applied
// image, so this only surfaces if the stack and the committed set ever
// disagree.
type StaleUndoError struct {
	ImageID string
}

func (e StaleUndoError) Error() string {
	return fmt.Sprintf("cannot undo: image already committed: %s", e.ImageID)
}
