package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaultsWhenFileAbsent(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.MaxConcurrentRuns != 3 || cfg.ListenAddr != ":8080" {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "helper.yaml")
	os.WriteFile(path, []byte("listen_addr: \":9999\"\nmax_concurrent_runs: 5\n"), 0o644)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ListenAddr != ":9999" || cfg.MaxConcurrentRuns != 5 {
		t.Errorf("file values not applied: %+v", cfg)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-test-key")
	t.Setenv("HELPER_LISTEN_ADDR", ":7777")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.APIKey != "sk-test-key" || cfg.ListenAddr != ":7777" {
		t.Errorf("env values not applied: %+v", cfg)
	}
}

func TestLoadSanitizesInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "helper.yaml")
	os.WriteFile(path, []byte("max_concurrent_runs: -2\nrequests_per_minute: 0\n"), 0o644)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.MaxConcurrentRuns != 3 || cfg.RequestsPerMinute != 10 {
		t.Errorf("invalid values should fall back to defaults: %+v", cfg)
	}
}

func TestDerivedPaths(t *testing.T) {
	cfg := Default()
	cfg.DataDir = "/var/lib/helper"
	if cfg.DatabasePath() != "/var/lib/helper/helper.db" {
		t.Errorf("db path = %s", cfg.DatabasePath())
	}
	if cfg.ScreenshotDir() != "/var/lib/helper/screenshots" {
		t.Errorf("screenshot dir = %s", cfg.ScreenshotDir())
	}
}

func TestEnsureDirs(t *testing.T) {
	cfg := Default()
	base := t.TempDir()
	cfg.DataDir = filepath.Join(base, "data")
	cfg.WorkspaceDir = filepath.Join(base, "ws")
	if err := cfg.EnsureDirs(); err != nil {
		t.Fatal(err)
	}
	for _, dir := range []string{cfg.DataDir, cfg.WorkspaceDir, cfg.ScreenshotDir()} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Errorf("%s not created", dir)
		}
	}
}
