package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// BackupSession copies the current session file into backups/ before a
// destructive operation (session clear). Returns the backup path, or ""
// when there was nothing to back up.
func (s Store) BackupSession() (string, error) {
	src := s.sessionPath()
	if _, err := os.Stat(src); err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	ts := time.Now().UTC().Format("20060102-150405")
	dest := filepath.Join(s.Dir, "backups", fmt.Sprintf("session-%s.json", ts))
	if err := CopyFile(src, dest); err != nil {
		return "", err
	}
	return dest, nil
}
