package browser

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Wick-Lim/helper/internal/agent"
	"github.com/Wick-Lim/helper/pkg/models"
	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"
)

// Tool drives the shared headless browser.
type Tool struct {
	manager *Manager
}

// New creates the browser tool over a session manager.
func New(manager *Manager) *Tool {
	return &Tool{manager: manager}
}

func (t *Tool) Name() string { return "browser" }

func (t *Tool) Description() string {
	return "Control a headless browser: navigate, screenshot, click, type, evaluate JavaScript, or read page content."
}

type input struct {
	Action   string `json:"action" jsonschema:"description=One of: navigate screenshot click type evaluate content"`
	URL      string `json:"url,omitempty" jsonschema:"description=URL for navigate"`
	Selector string `json:"selector,omitempty" jsonschema:"description=CSS selector for click and type"`
	Text     string `json:"text,omitempty" jsonschema:"description=Text for type"`
	Script   string `json:"script,omitempty" jsonschema:"description=JavaScript for evaluate"`
	FullPage bool   `json:"full_page,omitempty" jsonschema:"description=Capture the full page on screenshot"`
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

	var result *models.ToolResult
	err := t.manager.withPage(func(page playwright.Page) error {
		var actionErr error
		switch action {
		case "navigate":
			result, actionErr = t.navigate(page, in.URL)
		case "screenshot":
			result, actionErr = t.screenshot(page, in.FullPage)
		case "click":
			result, actionErr = t.click(page, in.Selector)
		case "type":
			result, actionErr = t.typeText(page, in.Selector, in.Text)
		case "evaluate":
			result, actionErr = t.evaluate(page, in.Script)
		case "content":
			result, actionErr = t.content(page)
		default:
			result = agent.FailureResult("unknown action %q", in.Action)
		}
		return actionErr
	})
	if err != nil {
		return agent.FailureResult("browser unavailable: %v", err), nil
	}
	return result, nil
}

func (t *Tool) navigate(page playwright.Page, url string) (*models.ToolResult, error) {
	if strings.TrimSpace(url) == "" {
		return agent.FailureResult("url is required for navigate"), nil
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "https://" + url
	}
	if _, err := page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	}); err != nil {
		return agent.FailureResult("navigation failed: %v", err), nil
	}
	title, _ := page.Title()
	return agent.SuccessResult(fmt.Sprintf("navigated to %s (title: %s)", url, title)), nil
}

func (t *Tool) screenshot(page playwright.Page, fullPage bool) (*models.ToolResult, error) {
	data, err := page.Screenshot(playwright.PageScreenshotOptions{
		Type:     playwright.ScreenshotTypeJpeg,
		FullPage: playwright.Bool(fullPage),
	})
	if err != nil {
		return agent.FailureResult("screenshot failed: %v", err), nil
	}

	id := uuid.New().String()
	dir := t.manager.ScreenshotDir()
	var saved string
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err == nil {
			path := filepath.Join(dir, id+".jpg")
			if err := os.WriteFile(path, data, 0o644); err == nil {
				saved = path
			}
		}
	}

	out := fmt.Sprintf("captured screenshot %s", id)
	if saved != "" {
		out += " saved to " + saved
	}
	return &models.ToolResult{
		Success: true,
		Output:  out,
		Images: []models.Image{{
			MIME: "image/jpeg",
			Data: base64.StdEncoding.EncodeToString(data),
			ID:   id,
		}},
	}, nil
}

func (t *Tool) click(page playwright.Page, selector string) (*models.ToolResult, error) {
	if selector == "" {
		return agent.FailureResult("selector is required for click"), nil
	}
	if err := page.Click(selector); err != nil {
		return agent.FailureResult("click failed: %v", err), nil
	}
	return agent.SuccessResult("clicked " + selector), nil
}

func (t *Tool) typeText(page playwright.Page, selector, text string) (*models.ToolResult, error) {
	if selector == "" {
		return agent.FailureResult("selector is required for type"), nil
	}
	if err := page.Fill(selector, text); err != nil {
		return agent.FailureResult("type failed: %v", err), nil
	}
	return agent.SuccessResult(fmt.Sprintf("typed %d chars into %s", len(text), selector)), nil
}

func (t *Tool) evaluate(page playwright.Page, script string) (*models.ToolResult, error) {
	if strings.TrimSpace(script) == "" {
		return agent.FailureResult("script is required for evaluate"), nil
	}
	value, err := page.Evaluate(script)
	if err != nil {
		return agent.FailureResult("evaluate failed: %v", err), nil
	}
	return agent.SuccessResult(fmt.Sprintf("%v", value)), nil
}

func (t *Tool) content(page playwright.Page) (*models.ToolResult, error) {
	html, err := page.Content()
	if err != nil {
		return agent.FailureResult("content failed: %v", err), nil
	}
	return agent.SuccessResult(html), nil
}
