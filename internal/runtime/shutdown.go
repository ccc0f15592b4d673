package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// HookFunc is one teardown step. It receives a context that expires when
// the hook overruns its timeout.
type HookFunc func(ctx context.Context) error

type hook struct {
	name string
	fn   HookFunc
}

// Shutdown coordinates ordered teardown: hooks run in reverse
// registration order, each isolated from the others' failures and
// panics.
type Shutdown struct {
	mu           sync.Mutex
	hooks        []hook
	done         chan struct{}
	shuttingDown atomic.Bool
	once         sync.Once
	perHook      time.Duration
	logger       *slog.Logger
}

// NewShutdown creates a coordinator. perHook bounds each hook's runtime;
// zero means 15 seconds.
func NewShutdown(perHook time.Duration, logger *slog.Logger) *Shutdown {
	if perHook <= 0 {
		perHook = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Shutdown{
		done:    make(chan struct{}),
		perHook: perHook,
		logger:  logger,
	}
}

// Register adds a teardown hook. Hooks registered later run earlier.
func (s *Shutdown) Register(name string, fn HookFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, hook{name: name, fn: fn})
}

// IsShuttingDown reports whether shutdown has begun, so long-running
// loops can exit cooperatively.
func (s *Shutdown) IsShuttingDown() bool {
	return s.shuttingDown.Load()
}

// Done is closed when shutdown begins.
func (s *Shutdown) Done() <-chan struct{} {
	return s.done
}

// Run executes the hooks in reverse registration order. Safe to call more
// than once; only the first call tears down.
func (s *Shutdown) Run(ctx context.Context) {
	s.once.Do(func() {
		s.shuttingDown.Store(true)
		close(s.done)

		s.mu.Lock()
		hooks := make([]hook, len(s.hooks))
		copy(hooks, s.hooks)
		s.mu.Unlock()

		s.logger.Info("shutdown started", "hooks", len(hooks))
		start := time.Now()
		for i := len(hooks) - 1; i >= 0; i-- {
			s.runHook(ctx, hooks[i])
		}
		s.logger.Info("shutdown complete", "duration", time.Since(start).Round(time.Millisecond))
	})
}

// runHook executes one hook with failure isolation and a timeout.
func (s *Shutdown) runHook(ctx context.Context, h hook) {
	hookCtx, cancel := context.WithTimeout(ctx, s.perHook)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- fmt.Errorf("panic: %v", rec)
			}
		}()
		done <- h.fn(hookCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			s.logger.Warn("shutdown hook failed", "hook", h.name, "error", err)
		} else {
			s.logger.Debug("shutdown hook complete", "hook", h.name)
		}
	case <-hookCtx.Done():
		s.logger.Warn("shutdown hook timed out", "hook", h.name, "timeout", s.perHook)
	}
}
