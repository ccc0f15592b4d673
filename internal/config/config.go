// Package config loads the startup configuration from a YAML file and
// the environment. Runtime-tunable keys live in the store's config KV,
// not here.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the startup configuration.
type Config struct {
	// APIKey authenticates against the LLM API. Taken from
	// ANTHROPIC_API_KEY when empty.
	APIKey string `yaml:"api_key"`

	// Model is the primary model for agent runs.
	Model string `yaml:"model"`

	// ReflectionModel is the small model the consciousness loop uses.
	ReflectionModel string `yaml:"reflection_model"`

	// DataDir holds the databases and screenshots.
	DataDir string `yaml:"data_dir"`

	// WorkspaceDir is where the agent works and deliverables land.
	WorkspaceDir string `yaml:"workspace_dir"`

	// ListenAddr is the HTTP surface address.
	ListenAddr string `yaml:"listen_addr"`

	// MaxConcurrentRuns caps simultaneous chat agent runs.
	MaxConcurrentRuns int `yaml:"max_concurrent_runs"`

	// RequestsPerMinute is the LLM token bucket refill rate.
	RequestsPerMinute float64 `yaml:"requests_per_minute"`

	// ShutdownTimeout bounds each teardown hook.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Model:             "claude-sonnet-4-20250514",
		ReflectionModel:   "claude-3-5-haiku-20241022",
		DataDir:           "data",
		WorkspaceDir:      "workspace",
		ListenAddr:        ":8080",
		MaxConcurrentRuns: 3,
		RequestsPerMinute: 10,
		ShutdownTimeout:   15 * time.Second,
	}
}

// Load reads the config file at path (optional) over the defaults, then
// applies the environment. A .env file next to the working directory is
// loaded first when present.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("read config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if addr := os.Getenv("HELPER_LISTEN_ADDR"); addr != "" {
		cfg.ListenAddr = addr
	}
	if dir := os.Getenv("HELPER_DATA_DIR"); dir != "" {
		cfg.DataDir = dir
	}
	if dir := os.Getenv("HELPER_WORKSPACE_DIR"); dir != "" {
		cfg.WorkspaceDir = dir
	}

	if cfg.MaxConcurrentRuns <= 0 {
		cfg.MaxConcurrentRuns = Default().MaxConcurrentRuns
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = Default().RequestsPerMinute
	}
	return cfg, nil
}

// DatabasePath returns the main database file path.
func (c Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "helper.db")
}

// VectorPath returns the vector side-index file path.
func (c Config) VectorPath() string {
	return filepath.Join(c.DataDir, "helper-vectors.db")
}

// ScreenshotDir returns the browser screenshot directory.
func (c Config) ScreenshotDir() string {
	return filepath.Join(c.DataDir, "screenshots")
}

// EnsureDirs creates the directories the runtime needs.
func (c Config) EnsureDirs() error {
	for _, dir := range []string{c.DataDir, c.WorkspaceDir, c.ScreenshotDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}
