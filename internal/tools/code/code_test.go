package code

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Wick-Lim/helper/pkg/models"
)

func call(t *testing.T, tool *Tool, args string) *models.ToolResult {
	t.Helper()
	res, err := tool.Execute(context.Background(), json.RawMessage(args))
	if err != nil {
		t.Fatalf("execute error: %v", err)
	}
	return res
}

func requireInterpreter(t *testing.T, name string) {
	t.Helper()
	if _, err := exec.LookPath(name); err != nil {
		t.Skipf("%s not installed", name)
	}
}

func TestCodeBash(t *testing.T) {
	requireInterpreter(t, "bash")
	tool := New(t.TempDir(), nil)
	res := call(t, tool, `{"language":"bash","code":"echo out; echo err >&2"}`)
	if !res.Success {
		t.Fatalf("bash failed: %s", res.Error)
	}
	if !strings.Contains(res.Output, "out") || !strings.Contains(res.Output, "err") {
		t.Errorf("combined output missing streams: %q", res.Output)
	}
}

func TestCodePython(t *testing.T) {
	requireInterpreter(t, "python3")
	tool := New(t.TempDir(), nil)
	res := call(t, tool, `{"language":"python","code":"print('UUID'.lower())"}`)
	if !res.Success || !strings.Contains(res.Output, "uuid") {
		t.Errorf("python result: %+v", res)
	}
}

func TestCodeLanguageAliases(t *testing.T) {
	requireInterpreter(t, "bash")
	tool := New(t.TempDir(), nil)
	res := call(t, tool, `{"language":"sh","code":"echo aliased"}`)
	if !res.Success || !strings.Contains(res.Output, "aliased") {
		t.Errorf("alias sh should run as bash: %+v", res)
	}
}

func TestCodeUnsupportedLanguage(t *testing.T) {
	tool := New(t.TempDir(), nil)
	res := call(t, tool, `{"language":"cobol","code":"DISPLAY 'HI'."}`)
	if res.Success || !strings.Contains(res.Error, "unsupported language") {
		t.Errorf("cobol should be rejected: %+v", res)
	}
}

func TestCodeMissingCode(t *testing.T) {
	tool := New(t.TempDir(), nil)
	res := call(t, tool, `{"language":"bash"}`)
	if res.Success {
		t.Error("empty code should fail")
	}
}

func TestCodeExitCode(t *testing.T) {
	requireInterpreter(t, "bash")
	tool := New(t.TempDir(), nil)
	res := call(t, tool, `{"language":"bash","code":"exit 7"}`)
	if res.Success || res.Error != "Exit code: 7" {
		t.Errorf("exit propagation: %+v", res)
	}
}

func TestCleanupStale(t *testing.T) {
	dir := t.TempDir()
	tool := New(dir, nil)

	stale := filepath.Join(dir, "snippet-old.py")
	fresh := filepath.Join(dir, "snippet-new.py")
	os.WriteFile(stale, []byte("print('x')"), 0o644)
	os.WriteFile(fresh, []byte("print('y')"), 0o644)
	old := time.Now().Add(-25 * time.Hour)
	os.Chtimes(stale, old, old)

	tool.CleanupStale()

	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale snippet not removed")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Error("fresh snippet should survive")
	}
}

func TestCodeTimeout(t *testing.T) {
	requireInterpreter(t, "bash")
	tool := New(t.TempDir(), func() time.Duration { return 200 * time.Millisecond })
	start := time.Now()
	res := call(t, tool, `{"language":"bash","code":"sleep 30"}`)
	if res.Success || !strings.Contains(res.Error, "timed out") {
		t.Errorf("timeout result: %+v", res)
	}
	if time.Since(start) > 15*time.Second {
		t.Error("hard kill did not trigger")
	}
}
