package browser

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"
)

const (
	// screenshotMaxAge is how long screenshots are kept.
	screenshotMaxAge = 24 * time.Hour

	// screenshotMaxCount bounds the screenshot directory.
	screenshotMaxCount = 100
)

// CleanScreenshots deletes screenshots older than 24 hours and trims the
// directory to the newest 100 files. Returns how many files were removed.
func CleanScreenshots(dir string, logger *slog.Logger) int {
	if logger == nil {
		logger = slog.Default()
	}
	if dir == "" {
		return 0
	}

	matches, err := filepath.Glob(filepath.Join(dir, "*.jpg"))
	if err != nil {
		return 0
	}

	type shot struct {
		path    string
		modTime time.Time
	}
	var shots []shot
	removed := 0
	cutoff := time.Now().Add(-screenshotMaxAge)

	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(path); err == nil {
				removed++
			}
			continue
		}
		shots = append(shots, shot{path: path, modTime: info.ModTime()})
	}

	if len(shots) > screenshotMaxCount {
		sort.Slice(shots, func(i, j int) bool { return shots[i].modTime.After(shots[j].modTime) })
		for _, s := range shots[screenshotMaxCount:] {
			if err := os.Remove(s.path); err == nil {
				removed++
			}
		}
	}

	if removed > 0 {
		logger.Info("screenshot janitor removed files", "count", removed)
	}
	return removed
}

// ScreenshotPath resolves a screenshot id to its file path, or empty when
// it does not exist.
func ScreenshotPath(dir, id string) string {
	if dir == "" || id == "" || filepath.Base(id) != id {
		return ""
	}
	path := filepath.Join(dir, id+".jpg")
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}
