// Package runtime owns the lifecycle of every shared component: store,
// event bus, tool registry, browser, rate limiter, consciousness driver,
// and the shutdown coordinator. Components are plain values handed to
// their consumers; nothing here is a package-level singleton.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Wick-Lim/helper/internal/agent"
	"github.com/Wick-Lim/helper/internal/config"
	"github.com/Wick-Lim/helper/internal/conscious"
	"github.com/Wick-Lim/helper/internal/embeddings"
	"github.com/Wick-Lim/helper/internal/events"
	"github.com/Wick-Lim/helper/internal/providers"
	"github.com/Wick-Lim/helper/internal/ratelimit"
	"github.com/Wick-Lim/helper/internal/store"
	"github.com/Wick-Lim/helper/internal/tools/browser"
	"github.com/Wick-Lim/helper/internal/tools/code"
	"github.com/Wick-Lim/helper/internal/tools/file"
	"github.com/Wick-Lim/helper/internal/tools/memorytool"
	"github.com/Wick-Lim/helper/internal/tools/shell"
	"github.com/Wick-Lim/helper/internal/tools/wait"
	"github.com/Wick-Lim/helper/internal/tools/web"
	"github.com/Wick-Lim/helper/internal/usage"
	"github.com/Wick-Lim/helper/pkg/models"
	"github.com/robfig/cron/v3"
)

// ErrTooManyRuns signals the chat concurrency cap; surfaces translate it
// into a rate-limit response.
var ErrTooManyRuns = errors.New("too many concurrent runs")

// interruptLease is how long a user chat suppresses the consciousness
// loop.
const interruptLease = 60 * time.Second

// Runtime is the top-level handle wiring the agent core together.
type Runtime struct {
	Config   config.Config
	Store    *store.Store
	Bus      *events.Bus
	Registry *agent.Registry
	Executor *agent.Executor
	Limiter  *ratelimit.Bucket
	Usage    *usage.Tracker
	Loop     *agent.Loop
	Browser  *browser.Manager
	Driver   *conscious.Driver
	Shutdown *Shutdown
	Metrics  *Metrics
	Embed    embeddings.Func

	logger   *slog.Logger
	cron     *cron.Cron
	runSlots chan struct{}
	codeTool *code.Tool
}

// New builds the runtime from startup configuration. Teardown hooks are
// registered as each component comes up, so a partial failure still
// tears down cleanly via Shutdown.Run.
func New(cfg config.Config, logger *slog.Logger) (*Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.EnsureDirs(); err != nil {
		return nil, err
	}

	r := &Runtime{
		Config:   cfg,
		Shutdown: NewShutdown(cfg.ShutdownTimeout, logger),
		Metrics:  NewMetrics(),
		Usage:    usage.NewTracker(),
		Embed:    embeddings.Local(embeddings.Dimension),
		logger:   logger,
		runSlots: make(chan struct{}, cfg.MaxConcurrentRuns),
	}

	r.Bus = events.NewBus(events.WithLogger(logger))
	r.Shutdown.Register("event-bus", func(context.Context) error {
		r.Bus.Close()
		return nil
	})

	st, err := store.Open(store.Config{
		Path:       cfg.DatabasePath(),
		VectorPath: cfg.VectorPath(),
		Dimension:  embeddings.Dimension,
	}, store.WithLogger(logger), store.WithBus(r.Bus))
	if err != nil {
		r.Shutdown.Run(context.Background())
		return nil, fmt.Errorf("open store: %w", err)
	}
	r.Store = st
	r.Shutdown.Register("store", func(context.Context) error {
		return st.Close()
	})

	r.Browser = browser.NewManager(browser.DefaultSessionConfig(cfg.ScreenshotDir()), logger)
	r.Shutdown.Register("browser", func(context.Context) error {
		r.Browser.Close()
		return nil
	})

	r.Registry = agent.NewRegistry(logger)
	r.registerTools()

	r.Limiter = ratelimit.NewBucket(ratelimit.Config{
		TokensPerInterval: cfg.RequestsPerMinute,
		Interval:          time.Minute,
		Capacity:          cfg.RequestsPerMinute,
	})

	r.Executor = agent.NewExecutor(r.Registry, r.executorConfig(), logger)

	primary, err := providers.NewAnthropic(providers.AnthropicConfig{
		APIKey:       cfg.APIKey,
		DefaultModel: cfg.Model,
	})
	if err != nil {
		r.Shutdown.Run(context.Background())
		return nil, fmt.Errorf("llm provider: %w", err)
	}
	reflection, err := providers.NewAnthropic(providers.AnthropicConfig{
		APIKey:       cfg.APIKey,
		DefaultModel: cfg.ReflectionModel,
		MaxTokens:    1024,
	})
	if err != nil {
		r.Shutdown.Run(context.Background())
		return nil, fmt.Errorf("reflection provider: %w", err)
	}

	contexts := agent.NewContextBuilder(st, r.Registry, conscious.DefaultSessionID, logger)
	loop, err := agent.NewLoop(agent.LoopDeps{
		Provider:     primary,
		Registry:     r.Registry,
		Executor:     r.Executor,
		Store:        st,
		Contexts:     contexts,
		Limiter:      r.Limiter,
		Usage:        r.Usage,
		ShuttingDown: r.Shutdown.IsShuttingDown,
		Logger:       logger,
	})
	if err != nil {
		r.Shutdown.Run(context.Background())
		return nil, err
	}
	r.Loop = loop

	r.Driver = conscious.New(conscious.Config{
		SessionID:    conscious.DefaultSessionID,
		WorkspaceDir: cfg.WorkspaceDir,
		Embed:        r.Embed,
	}, st, loop, reflection, logger)

	r.startCron()
	return r, nil
}

// registerTools wires the built-in tool set.
func (r *Runtime) registerTools() {
	workdirs := []string{r.Config.WorkspaceDir}
	r.Registry.Register(shell.New(workdirs, r.logger))
	r.Registry.Register(file.New(workdirs))
	r.Registry.Register(web.New())
	r.codeTool = code.New(r.Config.WorkspaceDir, func() time.Duration {
		ms, err := r.Store.ConfigInt(context.Background(), "code_timeout_ms")
		if err != nil {
			return 0
		}
		return time.Duration(ms) * time.Millisecond
	})
	r.Registry.Register(r.codeTool)
	r.Registry.Register(browser.New(r.Browser))
	r.Registry.Register(memorytool.New(r.Store))
	r.Registry.Register(wait.New())
}

// executorConfig reads executor tunables live from the config KV.
func (r *Runtime) executorConfig() agent.ExecutorConfig {
	cfg := agent.DefaultExecutorConfig()
	cfg.TimeoutFor = func(tool string) time.Duration {
		key := "tool_timeout_ms"
		if tool == "code" {
			key = "code_timeout_ms"
		}
		ms, err := r.Store.ConfigInt(context.Background(), key)
		if err != nil {
			return 0
		}
		return time.Duration(ms) * time.Millisecond
	}
	cfg.MaxOutputChars = func() int {
		chars, err := r.Store.ConfigInt(context.Background(), "max_output_chars")
		if err != nil {
			return 0
		}
		return chars
	}
	return cfg
}

// startCron schedules the background maintenance: hourly survival debt,
// screenshot and snippet janitors, and the browser idle-page check.
func (r *Runtime) startCron() {
	c := cron.New()
	c.Schedule(cron.Every(time.Hour), cron.FuncJob(func() {
		if _, err := r.Store.ApplyHourlyDebt(context.Background(), time.Now()); err != nil {
			r.logger.Warn("scheduled debt application failed", "error", err)
		}
	}))
	c.Schedule(cron.Every(time.Hour), cron.FuncJob(func() {
		browser.CleanScreenshots(r.Config.ScreenshotDir(), r.logger)
	}))
	c.Schedule(cron.Every(time.Hour), cron.FuncJob(func() {
		r.codeTool.CleanupStale()
	}))
	c.Schedule(cron.Every(time.Minute), cron.FuncJob(func() {
		r.Browser.CloseIdlePage()
	}))
	c.Start()
	r.cron = c
	r.Shutdown.Register("cron", func(ctx context.Context) error {
		stopped := r.cron.Stop()
		select {
		case <-stopped.Done():
		case <-ctx.Done():
		}
		return nil
	})
}

// StartConsciousness launches the autonomous driver. Returns when the
// driver exits.
func (r *Runtime) StartConsciousness(ctx context.Context) error {
	return r.Driver.Start(ctx)
}

// RunChat starts one user agent run, enforcing the concurrency cap.
// Returns ErrTooManyRuns when all slots are taken. The user interaction
// takes a lease that suppresses the consciousness loop.
func (r *Runtime) RunChat(ctx context.Context, message, sessionID string, images []models.Image) (<-chan models.Event, error) {
	select {
	case r.runSlots <- struct{}{}:
	default:
		r.Metrics.ChatRejected.Inc()
		return nil, ErrTooManyRuns
	}

	r.Metrics.ChatRuns.Inc()
	r.Metrics.ActiveRuns.Inc()
	r.Driver.Interrupt(interruptLease)

	inner := r.Loop.Run(ctx, message, agent.LoopOptions{
		SessionID: sessionID,
		Images:    images,
	})

	out := make(chan models.Event, 8)
	go func() {
		defer func() {
			<-r.runSlots
			r.Metrics.ActiveRuns.Dec()
			close(out)
		}()
		for ev := range inner {
			select {
			case out <- ev:
			case <-ctx.Done():
				// Consumer is gone; drain the run so it can finish and
				// release the slot.
				for range inner {
				}
				return
			}
		}
	}()
	return out, nil
}

// ActiveRuns reports how many chat runs are in flight.
func (r *Runtime) ActiveRuns() int {
	return len(r.runSlots)
}

// Close tears the runtime down in reverse construction order.
func (r *Runtime) Close(ctx context.Context) {
	r.Shutdown.Run(ctx)
}
