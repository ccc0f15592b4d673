// Package file implements the file tool: workspace-scoped reads, writes,
// and listings with a denylist of sensitive names.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Wick-Lim/helper/internal/agent"
	"github.com/Wick-Lim/helper/pkg/models"
)

// listCap bounds directory listing results.
const listCap = 500

// sensitiveNames are file names the tool refuses to touch regardless of
// location.
var sensitiveNames = []string{
	".env", ".envrc", "credentials", "id_rsa", "id_ed25519",
	".netrc", ".htpasswd", "secrets.yaml", "secrets.yml", "secrets.json",
}

var sensitiveSuffixes = []string{".pem", ".key", ".p12", ".pfx", ".keystore"}

// Tool performs file operations inside an allow-list of roots.
type Tool struct {
	roots []string
}

// New creates the file tool. The first root is where relative paths
// resolve.
func New(roots []string) *Tool {
	cleaned := make([]string, 0, len(roots))
	for _, r := range roots {
		if abs, err := filepath.Abs(r); err == nil {
			cleaned = append(cleaned, filepath.Clean(abs))
		}
	}
	return &Tool{roots: cleaned}
}

func (t *Tool) Name() string { return "file" }

func (t *Tool) Description() string {
	return "Read, write, append, list, delete, stat, or send files inside the agent workspace."
}

type input struct {
	Action  string `json:"action" jsonschema:"description=One of: read write append list delete exists stat send"`
	Path    string `json:"path" jsonschema:"description=File or directory path inside the workspace"`
	Content string `json:"content,omitempty" jsonschema:"description=Content for write and append"`
}

func (t *Tool) Schema() json.RawMessage {
	return agent.SchemaFor(&input{})
}

func (t *Tool) Execute(_ context.Context, args json.RawMessage) (*models.ToolResult, error) {
	var in input
	if err := json.Unmarshal(args, &in); err != nil {
		return agent.FailureResult("invalid arguments: %v", err), nil
	}
	action := strings.ToLower(strings.TrimSpace(in.Action))
	if action == "" {
		return agent.FailureResult("action is required"), nil
	}
	if strings.TrimSpace(in.Path) == "" {
		return agent.FailureResult("path is required"), nil
	}

	path, err := t.resolve(in.Path)
	if err != nil {
		return agent.FailureResult("%v", err), nil
	}

	switch action {
	case "read":
		return t.read(path)
	case "write":
		return t.write(path, in.Content, false)
	case "append":
		return t.write(path, in.Content, true)
	case "list":
		return t.list(path)
	case "delete":
		return t.delete(path)
	case "exists":
		return t.exists(path)
	case "stat":
		return t.stat(path)
	case "send":
		return t.send(path)
	default:
		return agent.FailureResult("unknown action %q", action), nil
	}
}

// resolve validates the path: no traversal, no home expansion, inside a
// root, and not a sensitive name.
func (t *Tool) resolve(raw string) (string, error) {
	if len(t.roots) == 0 {
		return "", fmt.Errorf("no workspace roots configured")
	}
	raw = strings.TrimSpace(raw)
	if strings.Contains(raw, "..") {
		return "", fmt.Errorf("path traversal is not allowed")
	}
	if strings.HasPrefix(raw, "~") {
		return "", fmt.Errorf("home-relative paths are not allowed")
	}

	path := raw
	if !filepath.IsAbs(path) {
		path = filepath.Join(t.roots[0], path)
	}
	path = filepath.Clean(path)

	inside := false
	for _, root := range t.roots {
		if path == root || strings.HasPrefix(path, root+string(filepath.Separator)) {
			inside = true
			break
		}
	}
	if !inside {
		return "", fmt.Errorf("path %s is outside the allowed workspace", path)
	}

	base := strings.ToLower(filepath.Base(path))
	for _, name := range sensitiveNames {
		if base == name {
			return "", fmt.Errorf("access to %s is not allowed", base)
		}
	}
	for _, suffix := range sensitiveSuffixes {
		if strings.HasSuffix(base, suffix) {
			return "", fmt.Errorf("access to %s files is not allowed", suffix)
		}
	}
	return path, nil
}

func (t *Tool) read(path string) (*models.ToolResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return agent.FailureResult("read %s: %v", path, err), nil
	}
	return agent.SuccessResult(string(data)), nil
}

func (t *Tool) write(path, content string, appendMode bool) (*models.ToolResult, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return agent.FailureResult("create parent directory: %v", err), nil
	}
	var err error
	if appendMode {
		var f *os.File
		f, err = os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err == nil {
			_, err = f.WriteString(content)
			if cErr := f.Close(); err == nil {
				err = cErr
			}
		}
	} else {
		err = os.WriteFile(path, []byte(content), 0o644)
	}
	if err != nil {
		return agent.FailureResult("write %s: %v", path, err), nil
	}
	verb := "wrote"
	if appendMode {
		verb = "appended"
	}
	return agent.SuccessResult(fmt.Sprintf("%s %d bytes to %s", verb, len(content), path)), nil
}

func (t *Tool) list(path string) (*models.ToolResult, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return agent.FailureResult("list %s: %v", path, err), nil
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	capped := false
	if len(entries) > listCap {
		entries = entries[:listCap]
		capped = true
	}

	var sb strings.Builder
	for _, e := range entries {
		if e.IsDir() {
			fmt.Fprintf(&sb, "%s/\n", e.Name())
		} else {
			sb.WriteString(e.Name())
			sb.WriteString("\n")
		}
	}
	if capped {
		fmt.Fprintf(&sb, "… listing capped at %d entries\n", listCap)
	}
	return agent.SuccessResult(sb.String()), nil
}

func (t *Tool) delete(path string) (*models.ToolResult, error) {
	info, err := os.Stat(path)
	if err != nil {
		return agent.FailureResult("delete %s: %v", path, err), nil
	}
	if info.IsDir() {
		return agent.FailureResult("delete targets files, not directories"), nil
	}
	if err := os.Remove(path); err != nil {
		return agent.FailureResult("delete %s: %v", path, err), nil
	}
	return agent.SuccessResult("deleted " + path), nil
}

func (t *Tool) exists(path string) (*models.ToolResult, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return agent.SuccessResult("false"), nil
		}
		return agent.FailureResult("stat %s: %v", path, err), nil
	}
	return agent.SuccessResult("true"), nil
}

func (t *Tool) stat(path string) (*models.ToolResult, error) {
	info, err := os.Stat(path)
	if err != nil {
		return agent.FailureResult("stat %s: %v", path, err), nil
	}
	payload, _ := json.MarshalIndent(map[string]any{
		"name":     info.Name(),
		"size":     info.Size(),
		"mode":     info.Mode().String(),
		"modified": info.ModTime().UTC(),
		"is_dir":   info.IsDir(),
	}, "", "  ")
	return agent.SuccessResult(string(payload)), nil
}

// send marks a file for delivery to the user. The core produces only the
// descriptor; a downstream surface decides how to deliver it.
func (t *Tool) send(path string) (*models.ToolResult, error) {
	info, err := os.Stat(path)
	if err != nil {
		return agent.FailureResult("send %s: %v", path, err), nil
	}
	if info.IsDir() {
		return agent.FailureResult("send targets files, not directories"), nil
	}
	return &models.ToolResult{
		Success: true,
		Output:  fmt.Sprintf("queued %s for delivery", path),
		Files:   []models.FileRef{{Path: path, MIME: mimeByExt(path)}},
	}, nil
}

func mimeByExt(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md", ".log":
		return "text/plain"
	case ".json":
		return "application/json"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".pdf":
		return "application/pdf"
	case ".csv":
		return "text/csv"
	default:
		return "application/octet-stream"
	}
}
