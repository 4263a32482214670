package catalog

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// StateDirName is the per-directory state dir; it is never scanned.
const StateDirName = ".quicklabel"

var imageExts = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".tiff": "image/tiff",
	".tif":  "image/tiff",
}

// IsImage reports whether the path has a recognized image extension.
func IsImage(path string) bool {
	_, ok := imageExts[strings.ToLower(filepath.Ext(path))]
	return ok
}

// MIMEType returns the content type for an image id, defaulting to
// application/octet-stream for unknown extensions.
func MIMEType(id string) string {
	if mt, ok := imageExts[strings.ToLower(filepath.Ext(id))]; ok {
		return mt
	}
	return "application/octet-stream"
}

// Scan walks root recursively and returns the relative path of every image
// file, sorted. The state dir and dot-directories are skipped.
func Scan(root string) ([]string, error) {
	root = filepath.Clean(root)
	var ids []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !IsImage(path) {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		ids = append(ids, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}

// ValidateID rejects ids that could escape root or that do not look like an
// image. Returns nil when the id is safe to resolve.
func ValidateID(id, root string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("empty image id")
	}
	if strings.Contains(id, "..") {
		return errors.New("path traversal (..) not allowed")
	}
	if strings.ContainsRune(id, 0) {
		return errors.New("null bytes not allowed in path")
	}
	if !IsImage(id) {
		return fmt.Errorf("unsupported image extension: %s", filepath.Ext(id))
	}
	abs := filepath.Join(filepath.Clean(root), filepath.FromSlash(id))
	rel, err := filepath.Rel(filepath.Clean(root), abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return errors.New("path escapes working directory")
	}
	return nil
}

// Resolve turns an image id back into an absolute path under root.
// Callers must ValidateID first.
func Resolve(id, root string) string {
	return filepath.Join(filepath.Clean(root), filepath.FromSlash(id))
}

// InferLabel returns the class index implied by the deepest path segment of
// the id that matches a class name (case-insensitive), or nil.
//
// This is the ResNet-style folder convention: batch1/dog/img.png => dog.
func InferLabel(id string, classes []string) *int {
	byName := make(map[string]int, len(classes))
	for i, c := range classes {
		byName[strings.ToLower(c)] = i
	}
	dir := filepath.ToSlash(filepath.Dir(filepath.FromSlash(id)))
	if dir == "." {
		return nil
	}
	parts := strings.Split(dir, "/")
	for i := len(parts) - 1; i >= 0; i-- {
		if idx, ok := byName[strings.ToLower(parts[i])]; ok {
			return &idx
		}
	}
	return nil
}

// ValidateRoot checks that dir exists, is a directory, and is both readable
// and writable. The write probe matters: commit needs to create class
// folders and the state dir lives under the root.
func ValidateRoot(dir string) []string {
	st, err := os.Stat(dir)
	if err != nil {
		return []string{fmt.Sprintf("directory does not exist: %s", dir)}
	}
	if !st.IsDir() {
		return []string{fmt.Sprintf("path is not a directory: %s", dir)}
	}
	var issues []string
	if _, err := os.ReadDir(dir); err != nil {
		issues = append(issues, fmt.Sprintf("no read permission: %s", dir))
	}
	probe, err := os.CreateTemp(dir, ".quicklabel-probe-*")
	if err != nil {
		issues = append(issues, fmt.Sprintf("no write permission: %s", dir))
	} else {
		name := probe.Name()
		_ = probe.Close()
		_ = os.Remove(name)
	}
	return issues
}
