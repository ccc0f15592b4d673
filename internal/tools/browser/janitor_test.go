package browser

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestCleanScreenshotsByAge(t *testing.T) {
	dir := t.TempDir()

	fresh := filepath.Join(dir, "fresh.jpg")
	stale := filepath.Join(dir, "stale.jpg")
	os.WriteFile(fresh, []byte("x"), 0o644)
	os.WriteFile(stale, []byte("x"), 0o644)
	old := time.Now().Add(-25 * time.Hour)
	os.Chtimes(stale, old, old)

	removed := CleanScreenshots(dir, nil)
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale screenshot not deleted")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Error("fresh screenshot deleted")
	}
}

func TestCleanScreenshotsByCount(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < screenshotMaxCount+10; i++ {
		path := filepath.Join(dir, fmt.Sprintf("s%03d.jpg", i))
		os.WriteFile(path, []byte("x"), 0o644)
		mod := time.Now().Add(-time.Duration(i) * time.Minute)
		os.Chtimes(path, mod, mod)
	}

	removed := CleanScreenshots(dir, nil)
	if removed != 10 {
		t.Errorf("removed = %d, want 10", removed)
	}

	matches, _ := filepath.Glob(filepath.Join(dir, "*.jpg"))
	if len(matches) != screenshotMaxCount {
		t.Errorf("%d screenshots remain, want %d", len(matches), screenshotMaxCount)
	}
	// The newest files survive.
	if _, err := os.Stat(filepath.Join(dir, "s000.jpg")); err != nil {
		t.Error("newest screenshot was trimmed")
	}
}

func TestScreenshotPath(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "abc.jpg"), []byte("x"), 0o644)

	if p := ScreenshotPath(dir, "abc"); p == "" {
		t.Error("existing screenshot should resolve")
	}
	if p := ScreenshotPath(dir, "missing"); p != "" {
		t.Error("missing screenshot should not resolve")
	}
	if p := ScreenshotPath(dir, "../abc"); p != "" {
		t.Error("traversal in id should not resolve")
	}
}
