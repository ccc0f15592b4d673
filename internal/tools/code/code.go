// Package code implements the code tool: snippets executed through an
// interpreter with a timeout and combined output.
package code

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/Wick-Lim/helper/internal/agent"
	"github.com/Wick-Lim/helper/internal/redact"
	"github.com/Wick-Lim/helper/pkg/models"
)

// DefaultTimeout applies when the runtime does not override it.
const DefaultTimeout = 60 * time.Second

const killGrace = 5 * time.Second

// language describes one supported interpreter.
type language struct {
	extension   string
	interpreter string
	args        []string
}

var languages = map[string]language{
	"python":     {extension: ".py", interpreter: "python3"},
	"javascript": {extension: ".js", interpreter: "node"},
	"bash":       {extension: ".sh", interpreter: "bash"},
}

// languageAliases fold common model spellings into canonical names.
var languageAliases = map[string]string{
	"py": "python", "python3": "python",
	"js": "javascript", "node": "javascript", "nodejs": "javascript",
	"sh": "bash", "shell": "bash",
}

// Tool executes code snippets.
type Tool struct {
	workdir string
	timeout func() time.Duration
}

// New creates the code tool. Snippets run in workdir; timeout is read per
// invocation so the configured value applies live (nil means the
// default).
func New(workdir string, timeout func() time.Duration) *Tool {
	return &Tool{workdir: workdir, timeout: timeout}
}

func (t *Tool) Name() string { return "code" }

func (t *Tool) Description() string {
	return "Execute a code snippet in python, javascript, or bash and return combined stdout and stderr."
}

type input struct {
	Language string `json:"language" jsonschema:"description=One of: python javascript bash"`
	Code     string `json:"code" jsonschema:"description=The snippet to execute"`
}

func (t *Tool) Schema() json.RawMessage {
	return agent.SchemaFor(&input{})
}

func (t *Tool) Execute(ctx context.Context, args json.RawMessage) (*models.ToolResult, error) {
	var in input
	if err := json.Unmarshal(args, &in); err != nil {
		return agent.FailureResult("invalid arguments: %v", err), nil
	}
	if strings.TrimSpace(in.Code) == "" {
		return agent.FailureResult("code is required"), nil
	}

	name := strings.ToLower(strings.TrimSpace(in.Language))
	if canonical, ok := languageAliases[name]; ok {
		name = canonical
	}
	lang, ok := languages[name]
	if !ok {
		return agent.FailureResult("unsupported language %q, use python, javascript, or bash", in.Language), nil
	}

	tmp, err := os.CreateTemp(t.workdir, "snippet-*"+lang.extension)
	if err != nil {
		return agent.FailureResult("create temp file: %v", err), nil
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.WriteString(in.Code); err != nil {
		tmp.Close()
		return agent.FailureResult("write snippet: %v", err), nil
	}
	tmp.Close()

	timeout := DefaultTimeout
	if t.timeout != nil {
		if d := t.timeout(); d > 0 {
			timeout = d
		}
	}
	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	argv := append(append([]string{}, lang.args...), tmp.Name())
	cmd := exec.CommandContext(cmdCtx, lang.interpreter, argv...)
	cmd.Dir = t.workdir
	cmd.Env = redact.SafeEnviron()
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
	}
	cmd.WaitDelay = killGrace

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	runErr := cmd.Run()
	output := out.String()

	if cmdCtx.Err() == context.DeadlineExceeded {
		return &models.ToolResult{
			Success: false,
			Output:  output,
			Error:   fmt.Sprintf("execution timed out after %s", timeout),
		}, nil
	}
	if runErr != nil {
		exitCode := -1
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
		return &models.ToolResult{
			Success: false,
			Output:  output,
			Error:   fmt.Sprintf("Exit code: %d", exitCode),
		}, nil
	}
	return agent.SuccessResult(output), nil
}

// cleanupSnippets removes stale snippet temp files left by crashed runs.
func cleanupSnippets(workdir string) {
	matches, err := filepath.Glob(filepath.Join(workdir, "snippet-*"))
	if err != nil {
		return
	}
	cutoff := time.Now().Add(-24 * time.Hour)
	for _, m := range matches {
		if info, err := os.Stat(m); err == nil && info.ModTime().Before(cutoff) {
			os.Remove(m)
		}
	}
}

// CleanupStale removes snippet temp files older than a day.
func (t *Tool) CleanupStale() {
	cleanupSnippets(t.workdir)
}
