package anacrolix

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// removeTorrentFiles deletes files (slash separated, relative to baseDir).
// Paths that escape baseDir are rejected before anything is removed.
func removeTorrentFiles(baseDir string, files []string) error {
	if strings.TrimSpace(baseDir) == "" {
		return errors.New("save path not configured")
	}

	baseAbs, err := filepath.Abs(baseDir)
	if err != nil {
		return err
	}
	baseAbs = filepath.Clean(baseAbs)

	fullPaths := make([]string, 0, len(files))
	for _, file := range files {
		if strings.TrimSpace(file) == "" {
			return errors.New("invalid file path")
		}
		if filepath.IsAbs(file) {
			return errors.New("invalid file path")
		}
		fullPath := filepath.Clean(filepath.Join(baseAbs, filepath.FromSlash(file)))
		if !strings.HasPrefix(fullPath, baseAbs+string(os.PathSeparator)) {
			return errors.New("invalid file path")
		}
		fullPaths = append(fullPaths, fullPath)
	}

	dirs := make(map[string]struct{})
	for _, fullPath := range fullPaths {
		if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
			return err
		}
		for dir := filepath.Dir(fullPath); dir != baseAbs && strings.HasPrefix(dir, baseAbs); dir = filepath.Dir(dir) {
			dirs[dir] = struct{}{}
		}
	}
	pruneEmptyDirs(dirs)
	return nil
}

// pruneEmptyDirs removes the given directories deepest first, leaving any
// that still hold files.
func pruneEmptyDirs(dirs map[string]struct{}) {
	ordered := make([]string, 0, len(dirs))
	for dir := range dirs {
		ordered = append(ordered, dir)
	}
	// Longer paths are deeper.
	sort.Slice(ordered, func(i, j int) bool { return len(ordered[i]) > len(ordered[j]) })
	for _, dir := range ordered {
		_ = os.Remove(dir)
	}
}
