package catalog

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"quicklabel/internal/model"
)

const (
	FormatFolder  = "folder"
	FormatUnknown = "unknown"

	// maxFormatDepth bounds the detection walk; class folders deeper than
	// this are not part of any layout we recognize.
	maxFormatDepth = 5
)

// DetectFormat inspects the directory layout and reports whether it follows
// the folder-classification convention (class-named directories holding
// images). Confidence is a coarse score, not a probability.
func DetectFormat(root string) model.FormatInfo {
	root = filepath.Clean(root)
	folderSet := map[string]struct{}{}

	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fs.SkipDir
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		if rel != "." && strings.Count(filepath.ToSlash(rel), "/") >= maxFormatDepth {
			return filepath.SkipDir
		}
		if path != root && dirHasImages(path) {
			folderSet[d.Name()] = struct{}{}
		}
		return nil
	})

	if len(folderSet) == 0 {
		return model.FormatInfo{Format: FormatUnknown, FormatLabel: "Unknown", Confidence: 1.0}
	}

	folders := make([]string, 0, len(folderSet))
	for name := range folderSet {
		folders = append(folders, name)
	}
	sort.Strings(folders)

	return model.FormatInfo{
		Format:          FormatFolder,
		FormatLabel:     "Folder Classification",
		ClassFolders:    folders,
		ClassesFromDirs: folders,
		Confidence:      0.95,
	}
}

func dirHasImages(dir string) bool {
	ents, err := filepath.Glob(filepath.Join(dir, "*"))
	if err != nil {
		return false
	}
	for _, e := range ents {
		if IsImage(e) {
			return true
		}
	}
	return false
}
