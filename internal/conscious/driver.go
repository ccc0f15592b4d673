package conscious

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Wick-Lim/helper/internal/agent"
	"github.com/Wick-Lim/helper/internal/embeddings"
	"github.com/Wick-Lim/helper/internal/store"
	"github.com/Wick-Lim/helper/pkg/models"
)

// Phase is the binary mode of the consciousness loop.
type Phase int

const (
	// PhaseInvestigate researches before committing to work.
	PhaseInvestigate Phase = iota
	// PhaseExecute produces deliverables.
	PhaseExecute
)

// DefaultSessionID is the reserved session the driver runs under.
const DefaultSessionID = "autonomous"

// MaxInvestigationCycles is how many investigation cycles run before
// execution is forced.
const MaxInvestigationCycles = 2

const (
	cycleSleep       = 2 * time.Second
	interruptedSleep = 5 * time.Second
	errorSleep       = 10 * time.Second

	reflectionWindow   = 12 // autonomous conversation rows kept
	recentTaskWindow   = 5  // tasks checked for repetition
	avoidListWindow    = 20 // tasks fed to synthesis as avoid-list
	fakeryWindow       = 3  // thoughts checked for fakery
	synthesisAttempts  = 3
	conversationTrimAt = 5 // cycles between conversation trims

	// deliverableMinBytes is the minimum content length for a created
	// file to count as real work.
	deliverableMinBytes = 50

	creditFull    = 1.0
	creditPartial = 0.5
)

// Config configures the driver.
type Config struct {
	// SessionID is the reserved autonomous session.
	SessionID string

	// WorkspaceDir is scanned for deliverables after each action.
	WorkspaceDir string

	// TokenPattern overrides the repetition tokenizer.
	TokenPattern *regexp.Regexp

	// Embed produces vectors for knowledge captured from completed work.
	// Nil disables vector indexing; the knowledge rows are still saved.
	Embed embeddings.Func
}

// Driver is the consciousness loop. One logical driver runs per process;
// Start refuses a second concurrent run.
type Driver struct {
	cfg        Config
	store      *store.Store
	loop       *agent.Loop
	reflection agent.Provider // the small reflection model
	logger     *slog.Logger

	running        atomic.Bool
	leaseUntil     atomic.Int64 // unix nanos; user interaction suppresses cycles
	investigations int
	forceExecute   bool
	cycles         int
}

// New creates a driver.
func New(cfg Config, st *store.Store, loop *agent.Loop, reflection agent.Provider, logger *slog.Logger) *Driver {
	if cfg.SessionID == "" {
		cfg.SessionID = DefaultSessionID
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{
		cfg:        cfg,
		store:      st,
		loop:       loop,
		reflection: reflection,
		logger:     logger,
	}
}

// SessionID returns the autonomous session id.
func (d *Driver) SessionID() string { return d.cfg.SessionID }

// Interrupt suppresses autonomous cycles for the given duration. User
// chat surfaces take this lease so the driver yields while a human is
// interacting.
func (d *Driver) Interrupt(duration time.Duration) {
	until := time.Now().Add(duration).UnixNano()
	for {
		current := d.leaseUntil.Load()
		if until <= current || d.leaseUntil.CompareAndSwap(current, until) {
			return
		}
	}
}

func (d *Driver) interrupted() bool {
	return time.Now().UnixNano() < d.leaseUntil.Load()
}

// Start runs the loop until ctx is cancelled. Returns an error when the
// driver is already running.
func (d *Driver) Start(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return fmt.Errorf("consciousness driver already running")
	}
	defer d.running.Store(false)

	if err := d.genesis(ctx); err != nil {
		d.logger.Warn("genesis reflection failed", "error", err)
	}

	for ctx.Err() == nil {
		if d.interrupted() {
			if !sleep(ctx, interruptedSleep) {
				break
			}
			continue
		}

		if err := d.cycle(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}
			d.logger.Error("consciousness cycle failed", "error", err)
			if !sleep(ctx, errorSleep) {
				break
			}
			continue
		}
		if !sleep(ctx, cycleSleep) {
			break
		}
	}
	d.logger.Info("consciousness driver stopped")
	return nil
}

// genesis runs the one-shot first reflection when the thoughts table is
// empty. It uses the reflection model.
func (d *Driver) genesis(ctx context.Context) error {
	count, err := d.store.CountThoughts(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	resp, err := d.reflection.Complete(ctx, &agent.CompletionRequest{
		Messages: []agent.ChatMessage{{Role: agent.ChatRoleUser, Content: genesisPrompt}},
	})
	if err != nil {
		return err
	}
	_, err = d.store.SaveThought(ctx, resp.Text, summarize(resp.Text), "genesis")
	if err == nil {
		d.logger.Info("genesis thought recorded")
	}
	return err
}

// cycle runs one full consciousness iteration.
func (d *Driver) cycle(ctx context.Context) error {
	d.cycles++

	if _, err := d.store.ApplyHourlyDebt(ctx, time.Now()); err != nil {
		d.logger.Warn("failed to apply hourly debt", "error", err)
	}

	phase := PhaseInvestigate
	if d.forceExecute || d.investigations >= MaxInvestigationCycles {
		phase = PhaseExecute
	}

	poisoned, err := d.detectPoisonedState(ctx)
	if err != nil {
		return err
	}
	actionPrompt := ""
	if poisoned {
		d.logger.Warn("repetition or fakery detected, resetting autonomous state")
		if err := d.store.ClearConversation(ctx, d.cfg.SessionID); err != nil {
			d.logger.Warn("failed to clear autonomous conversation", "error", err)
		}
		phase = PhaseExecute
		d.forceExecute = true
		actionPrompt = stopRepeatingDirective
	}

	reflection, err := d.reflect(ctx, phase)
	if err != nil {
		return fmt.Errorf("reflection: %w", err)
	}

	if actionPrompt == "" {
		switch phase {
		case PhaseInvestigate:
			actionPrompt = reflection
		case PhaseExecute:
			actionPrompt, err = d.synthesizeTask(ctx)
			if err != nil {
				return fmt.Errorf("task synthesis: %w", err)
			}
		}
	}

	progress := d.act(ctx, actionPrompt)

	if progress.real() {
		d.investigations = 0
		d.forceExecute = false
		credit := creditPartial
		reason := "partial autonomous progress"
		if progress.deliverable && progress.completed {
			credit = creditFull
			reason = "autonomous deliverable completed"
		}
		if err := d.store.AppendLedger(ctx, credit, reason); err != nil {
			d.logger.Warn("failed to credit survival ledger", "error", err)
		}
		d.captureKnowledge(ctx, actionPrompt)
	} else {
		d.investigations++
	}

	d.maintain(ctx)
	return nil
}

// detectPoisonedState checks recent tasks for repetition and recent
// thoughts for fakery.
func (d *Driver) detectPoisonedState(ctx context.Context) (bool, error) {
	tasks, err := d.store.RecentTasks(ctx, d.cfg.SessionID, recentTaskWindow)
	if err != nil {
		return false, err
	}
	descriptions := make([]string, 0, len(tasks))
	for _, t := range tasks {
		descriptions = append(descriptions, t.Description)
	}
	if IsRepeating(descriptions, d.cfg.TokenPattern) {
		return true, nil
	}

	thoughts, err := d.store.RecentThoughts(ctx, fakeryWindow)
	if err != nil {
		return false, err
	}
	contents := make([]string, 0, len(thoughts))
	for _, th := range thoughts {
		contents = append(contents, th.Content)
	}
	return IsFaking(contents), nil
}

// reflect asks the reflection model for the next step and saves the reply
// as a thought.
func (d *Driver) reflect(ctx context.Context, phase Phase) (string, error) {
	balance, err := d.store.Balance(ctx)
	if err != nil {
		return "", err
	}
	thoughts, err := d.store.RecentThoughts(ctx, 5)
	if err != nil {
		return "", err
	}

	messages := d.autonomousHistory(ctx)
	messages = append(messages, agent.ChatMessage{
		Role:    agent.ChatRoleUser,
		Content: reflectionPrompt(phase, balance, thoughts),
	})

	resp, err := d.reflection.Complete(ctx, &agent.CompletionRequest{Messages: messages})
	if err != nil {
		return "", err
	}

	category := "investigation"
	if phase == PhaseExecute {
		category = "execution"
	}
	if _, err := d.store.SaveThought(ctx, resp.Text, summarize(resp.Text), category); err != nil {
		d.logger.Warn("failed to save thought", "error", err)
	}
	return resp.Text, nil
}

// autonomousHistory loads the last rows of the autonomous conversation as
// chat messages.
func (d *Driver) autonomousHistory(ctx context.Context) []agent.ChatMessage {
	rows, err := d.store.ConversationHistory(ctx, d.cfg.SessionID, reflectionWindow)
	if err != nil {
		d.logger.Warn("failed to load autonomous history", "error", err)
		return nil
	}
	messages := make([]agent.ChatMessage, 0, len(rows))
	for _, row := range rows {
		role := agent.ChatRoleUser
		if row.Role == models.RoleModel {
			role = agent.ChatRoleModel
		}
		messages = append(messages, agent.ChatMessage{Role: role, Content: row.Content})
	}
	return messages
}

// synthesizeTask asks the reflection model for a fresh task that does not
// overlap recent work, retrying a bounded number of times.
func (d *Driver) synthesizeTask(ctx context.Context) (string, error) {
	tasks, err := d.store.RecentTasks(ctx, d.cfg.SessionID, avoidListWindow)
	if err != nil {
		return "", err
	}
	avoid := make([]string, 0, len(tasks))
	for _, t := range tasks {
		avoid = append(avoid, t.Description)
	}
	checkWindow := avoid
	if len(checkWindow) > recentTaskWindow {
		checkWindow = checkWindow[:recentTaskWindow]
	}

	var candidate string
	for attempt := 1; attempt <= synthesisAttempts; attempt++ {
		resp, err := d.reflection.Complete(ctx, &agent.CompletionRequest{
			Messages: []agent.ChatMessage{{Role: agent.ChatRoleUser, Content: synthesisPrompt(avoid)}},
		})
		if err != nil {
			return "", err
		}
		candidate = strings.TrimSpace(resp.Text)
		if candidate == "" {
			continue
		}
		if !TooSimilar(candidate, checkWindow, d.cfg.TokenPattern) {
			return candidate, nil
		}
		d.logger.Info("synthesized task overlaps recent work, retrying", "attempt", attempt)
	}
	if candidate == "" {
		return "", fmt.Errorf("reflection model produced no task")
	}
	// All attempts overlapped; run the last candidate anyway rather than
	// stalling the loop.
	return candidate, nil
}

// actionProgress summarizes what one autonomous action achieved.
type actionProgress struct {
	completed   bool // the run reached done
	usedBrowser bool
	wroteFile   bool // a file tool write was attempted
	deliverable bool // a real file landed in the workspace
}

func (p actionProgress) real() bool {
	return p.deliverable || (p.completed && p.wroteFile)
}

// act runs one autonomous action through the agent loop and observes its
// event stream.
func (d *Driver) act(ctx context.Context, prompt string) actionProgress {
	started := time.Now()
	var progress actionProgress

	events := d.loop.Run(ctx, prompt, agent.LoopOptions{SessionID: d.cfg.SessionID})
	for ev := range events {
		switch ev.Type {
		case models.EventToolCall:
			switch ev.ToolName {
			case "browser":
				progress.usedBrowser = true
			case "file":
				if strings.Contains(string(ev.Args), `"write"`) || strings.Contains(string(ev.Args), `"append"`) {
					progress.wroteFile = true
				}
			}
		case models.EventDone:
			progress.completed = true
		}
	}

	progress.deliverable = d.findDeliverable(started)
	return progress
}

// findDeliverable re-reads the workspace: a file created during the
// action counts only if its content exceeds the minimum size.
func (d *Driver) findDeliverable(since time.Time) bool {
	if d.cfg.WorkspaceDir == "" {
		return false
	}
	found := false
	filepath.WalkDir(d.cfg.WorkspaceDir, func(path string, entry os.DirEntry, err error) error {
		if err != nil || found || entry.IsDir() {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().After(since) && info.Size() > deliverableMinBytes {
			found = true
		}
		return nil
	})
	return found
}

// captureKnowledge records completed work as a knowledge row so later
// cycles can recall what already exists.
func (d *Driver) captureKnowledge(ctx context.Context, task string) {
	content := "Completed autonomous task: " + task
	var vector []float32
	if d.cfg.Embed != nil {
		v, err := d.cfg.Embed(ctx, content)
		if err != nil {
			d.logger.Warn("embedding failed for captured knowledge", "error", err)
		} else {
			vector = v
		}
	}
	if _, err := d.store.SaveKnowledge(ctx, content, summarize(task), "autonomous", 5, vector); err != nil {
		d.logger.Warn("failed to capture knowledge", "error", err)
	}
}

// maintain prunes knowledge and thoughts each cycle and trims the
// autonomous conversation every few cycles.
func (d *Driver) maintain(ctx context.Context) {
	if _, err := d.store.PruneKnowledge(ctx); err != nil {
		d.logger.Warn("knowledge prune failed", "error", err)
	}
	if _, err := d.store.PruneThoughts(ctx, store.DefaultThoughtRetention); err != nil {
		d.logger.Warn("thought prune failed", "error", err)
	}
	if d.cycles%conversationTrimAt == 0 {
		if _, err := d.store.PruneConversation(ctx, d.cfg.SessionID, reflectionWindow); err != nil {
			d.logger.Warn("conversation trim failed", "error", err)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
