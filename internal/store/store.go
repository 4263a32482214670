package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"quicklabel/internal/model"
)

const (
	sessionFileName = "session.json"
	historyFileName = "history.sqlite"

	// SessionVersion is the persisted schema version.
	SessionVersion = "1.0"
)

// Store persists session state under <working dir>/.quicklabel/.
type Store struct {
	Dir string // the .quicklabel state dir
}

// ForWorkingDir returns the store rooted at dir's state folder.
func ForWorkingDir(workingDir string) Store {
	return Store{Dir: filepath.Join(filepath.Clean(workingDir), ".quicklabel")}
}

func (s Store) Ensure() error {
	return os.MkdirAll(s.Dir, 0o755)
}

func (s Store) sessionPath() string {
	return filepath.Join(s.Dir, sessionFileName)
}

func (s Store) historyPath() string {
	return filepath.Join(s.Dir, historyFileName)
}

// LoadSession reads the persisted session file. A missing file returns
// (nil, nil): the caller starts a fresh session.
func (s Store) LoadSession() (*model.SessionFile, error) {
	b, err := os.ReadFile(s.sessionPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var sf model.SessionFile
	if err := json.Unmarshal(b, &sf); err != nil {
		return nil, fmt.Errorf("corrupt session file %s: %w", s.sessionPath(), err)
	}
	return &sf, nil
}

// SaveSession writes the session file atomically (temp + rename) so a crash
// mid-write never leaves a torn file behind.
func (s Store) SaveSession(sf *model.SessionFile) error {
	if err := s.Ensure(); err != nil {
		return err
	}
	sf.Version = SessionVersion
	sf.UpdatedAt = time.Now().UTC()
	if sf.CreatedAt.IsZero() {
		sf.CreatedAt = sf.UpdatedAt
	}

	b, err := json.MarshalIndent(sf, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.Dir, sessionFileName+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(append(b, '\n')); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, s.sessionPath())
}

// ClearSessionFile removes the persisted session (fresh-session request).
func (s Store) ClearSessionFile() error {
	err := os.Remove(s.sessionPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// SessionFileExists reports whether a persisted session is present.
func (s Store) SessionFileExists() bool {
	_, err := os.Stat(s.sessionPath())
	return err == nil
}
