package pipeline

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// ScanSources sammelt alle PDF-Dateien unterhalb von dir, sortiert. limit <= 0 bedeutet unbegrenzt.
func ScanSources(dir string, limit int) ([]string, error) {
	var sources []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".pdf") {
			sources = append(sources, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(sources)
	if limit > 0 && len(sources) > limit {
		sources = sources[:limit]
	}
	return sources, nil
}
