// Package web implements the web tool: validated outbound HTTP requests
// with SSRF protection, header stripping, body caps, and readable output
// for HTML pages.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/Wick-Lim/helper/internal/agent"
	"github.com/Wick-Lim/helper/internal/net/ssrf"
	"github.com/Wick-Lim/helper/pkg/models"
)

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 2 << 20 // 2MB

const defaultTimeout = 30 * time.Second

var allowedMethods = map[string]bool{
	http.MethodGet: true, http.MethodPost: true, http.MethodPut: true,
	http.MethodDelete: true, http.MethodHead: true, http.MethodPatch: true,
}

// Tool performs HTTP requests.
type Tool struct {
	client *http.Client
}

// New creates the web tool with its own HTTP client. Redirect targets are
// re-validated so a public host cannot bounce the request into a private
// range.
func New() *Tool {
	client := &http.Client{
		Timeout: defaultTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return fmt.Errorf("too many redirects")
			}
			_, err := ssrf.ValidateURL(req.URL.String())
			return err
		},
	}
	return &Tool{client: client}
}

func (t *Tool) Name() string { return "web" }

func (t *Tool) Description() string {
	return "Make an HTTP request to a public URL and return the response. HTML pages are converted to markdown."
}

type input struct {
	URL     string            `json:"url" jsonschema:"description=Target URL (http or https, public hosts only)"`
	Method  string            `json:"method,omitempty" jsonschema:"description=HTTP method, default GET"`
	Headers map[string]string `json:"headers,omitempty" jsonschema:"description=Request headers (authorization headers are stripped)"`
	Body    string            `json:"body,omitempty" jsonschema:"description=Request body for POST/PUT/PATCH"`
}

func (t *Tool) Schema() json.RawMessage {
	return agent.SchemaFor(&input{})
}

func (t *Tool) Execute(ctx context.Context, args json.RawMessage) (*models.ToolResult, error) {
	var in input
	if err := json.Unmarshal(args, &in); err != nil {
		return agent.FailureResult("invalid arguments: %v", err), nil
	}
	if strings.TrimSpace(in.URL) == "" {
		return agent.FailureResult("url is required"), nil
	}

	u, err := ssrf.ValidateURL(in.URL)
	if err != nil {
		return agent.FailureResult("url rejected: %v", err), nil
	}

	method := strings.ToUpper(strings.TrimSpace(in.Method))
	if method == "" {
		method = http.MethodGet
	}
	if !allowedMethods[method] {
		return agent.FailureResult("method %s is not allowed", method), nil
	}

	var body io.Reader
	if in.Body != "" {
		body = strings.NewReader(in.Body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return agent.FailureResult("build request: %v", err), nil
	}

	stripped := make(map[string]bool)
	for _, h := range ssrf.StrippedHeaders() {
		stripped[strings.ToLower(h)] = true
	}
	for name, value := range in.Headers {
		if stripped[strings.ToLower(name)] {
			continue
		}
		req.Header.Set(name, value)
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", "helper-agent/1.0")
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return agent.FailureResult("request failed: %v", err), nil
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return agent.FailureResult("read response: %v", err), nil
	}

	text := string(data)
	contentType := resp.Header.Get("Content-Type")
	if strings.Contains(contentType, "text/html") {
		if markdown, err := htmltomarkdown.ConvertString(text); err == nil {
			text = markdown
		}
	}

	output := fmt.Sprintf("HTTP %d %s\nContent-Type: %s\n\n%s",
		resp.StatusCode, http.StatusText(resp.StatusCode), contentType, text)

	if resp.StatusCode >= 400 {
		return &models.ToolResult{
			Success: false,
			Output:  output,
			Error:   fmt.Sprintf("HTTP %d", resp.StatusCode),
		}, nil
	}
	return agent.SuccessResult(output), nil
}
