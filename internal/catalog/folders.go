package catalog

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"quicklabel/internal/model"
)

// Subfolders lists the navigable child folders of current (relative to
// root), with per-folder image counts. Dot-directories are hidden.
func Subfolders(root, current string) (model.SubfolderList, error) {
	base := filepath.Clean(root)
	if current != "" {
		base = filepath.Join(base, filepath.FromSlash(current))
	}
	ents, err := os.ReadDir(base)
	if err != nil {
		return model.SubfolderList{}, err
	}

	var subs []model.SubfolderInfo
	for _, ent := range ents {
		if !ent.IsDir() || strings.HasPrefix(ent.Name(), ".") {
			continue
		}
		rel := ent.Name()
		if current != "" {
			rel = current + "/" + ent.Name()
		}
		subs = append(subs, model.SubfolderInfo{
			Path:       rel,
			Name:       ent.Name(),
			ImageCount: countImages(filepath.Join(base, ent.Name())),
		})
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].Name < subs[j].Name })

	return model.SubfolderList{
		CurrentFolder: current,
		Subfolders:    subs,
		HasSubfolders: len(subs) > 0,
	}, nil
}

// countImages counts image files directly inside dir (non-recursive).
func countImages(dir string) int {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	n := 0
	for _, ent := range ents {
		if !ent.IsDir() && IsImage(ent.Name()) {
			n++
		}
	}
	return n
}

// Breadcrumbs splits a relative folder path into a root-first trail.
func Breadcrumbs(folder string) []model.Breadcrumb {
	crumbs := []model.Breadcrumb{{Path: "", Name: "root", IsCurrent: folder == ""}}
	folder = strings.Trim(strings.TrimSpace(folder), "/")
	if folder == "" {
		return crumbs
	}
	parts := strings.Split(folder, "/")
	acc := ""
	for i, part := range parts {
		if acc == "" {
			acc = part
		} else {
			acc = acc + "/" + part
		}
		crumbs = append(crumbs, model.Breadcrumb{
			Path:      acc,
			Name:      part,
			IsCurrent: i == len(parts)-1,
		})
	}
	return crumbs
}
