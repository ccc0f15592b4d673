// Package browser implements the browser tool: a lazily started headless
// browser shared by all tool calls, with one reused page, age-based
// recycling, idle page closing, and a screenshot janitor.
package browser

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
)

const (
	// DefaultMaxAge force-recycles the browser process.
	DefaultMaxAge = 30 * time.Minute

	// DefaultIdleTimeout closes the page when no call has used it.
	DefaultIdleTimeout = 5 * time.Minute
)

// SessionConfig configures the shared browser session.
type SessionConfig struct {
	ScreenshotDir string
	MaxAge        time.Duration
	IdleTimeout   time.Duration
	Headless      bool
}

// DefaultSessionConfig returns the default session configuration.
func DefaultSessionConfig(screenshotDir string) SessionConfig {
	return SessionConfig{
		ScreenshotDir: screenshotDir,
		MaxAge:        DefaultMaxAge,
		IdleTimeout:   DefaultIdleTimeout,
		Headless:      true,
	}
}

type session struct {
	pw        *playwright.Playwright
	browser   playwright.Browser
	page      playwright.Page
	startedAt time.Time
	lastUsed  time.Time
}

// Manager owns the singleton browser session. All access is serialized:
// one tool call drives the page at a time.
type Manager struct {
	mu     sync.Mutex
	sess   *session
	cfg    SessionConfig
	logger *slog.Logger
	closed bool
}

// NewManager creates a browser manager. The browser itself starts lazily
// on first use.
func NewManager(cfg SessionConfig, logger *slog.Logger) *Manager {
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultMaxAge
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{cfg: cfg, logger: logger}
}

// withPage runs fn against the current page under the session lock,
// starting or recycling the browser as needed.
func (m *Manager) withPage(fn func(page playwright.Page) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("browser manager is closed")
	}

	if m.sess != nil && time.Since(m.sess.startedAt) > m.cfg.MaxAge {
		m.logger.Info("recycling aged browser", "age", time.Since(m.sess.startedAt).Round(time.Second))
		m.teardownLocked()
	}

	if err := m.ensureLocked(); err != nil {
		return err
	}
	m.sess.lastUsed = time.Now()
	return fn(m.sess.page)
}

// ensureLocked starts the browser and page if absent. Must be called with
// the lock held.
func (m *Manager) ensureLocked() error {
	if m.sess == nil {
		pw, err := playwright.Run()
		if err != nil {
			return fmt.Errorf("start playwright: %w", err)
		}
		browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
			Headless: playwright.Bool(m.cfg.Headless),
		})
		if err != nil {
			pw.Stop()
			return fmt.Errorf("launch browser: %w", err)
		}
		m.sess = &session{pw: pw, browser: browser, startedAt: time.Now()}
		m.logger.Info("browser started")
	}

	if m.sess.page == nil || m.sess.page.IsClosed() {
		page, err := m.sess.browser.NewPage()
		if err != nil {
			return fmt.Errorf("open page: %w", err)
		}
		m.sess.page = page
	}
	return nil
}

// CloseIdlePage closes the page when it has sat unused past the idle
// timeout. The browser process stays warm. Called periodically by the
// runtime.
func (m *Manager) CloseIdlePage() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sess == nil || m.sess.page == nil || m.sess.page.IsClosed() {
		return
	}
	if time.Since(m.sess.lastUsed) < m.cfg.IdleTimeout {
		return
	}
	if err := m.sess.page.Close(); err != nil {
		m.logger.Warn("failed to close idle page", "error", err)
	}
	m.sess.page = nil
	m.logger.Debug("closed idle browser page")
}

// teardownLocked stops the session. Must be called with the lock held.
func (m *Manager) teardownLocked() {
	if m.sess == nil {
		return
	}
	if m.sess.page != nil && !m.sess.page.IsClosed() {
		if err := m.sess.page.Close(); err != nil {
			m.logger.Warn("failed to close page", "error", err)
		}
	}
	if err := m.sess.browser.Close(); err != nil {
		m.logger.Warn("failed to close browser", "error", err)
	}
	if err := m.sess.pw.Stop(); err != nil {
		m.logger.Warn("failed to stop playwright", "error", err)
	}
	m.sess = nil
}

// Close stops the browser session permanently.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teardownLocked()
	m.closed = true
}

// ScreenshotDir returns where screenshots are stored.
func (m *Manager) ScreenshotDir() string { return m.cfg.ScreenshotDir }
