// Package redact scrubs secrets and PII from tool environments, tool
// output, and user-visible messages.
package redact

import (
	"os"
	"regexp"
	"strings"
)

// sensitiveEnvPatterns match environment variable names whose values must
// never reach a child process the agent spawns or the model's context.
var sensitiveEnvPatterns = []string{
	"API_KEY", "APIKEY", "SECRET", "TOKEN", "PASSWORD", "PASSWD",
	"CREDENTIAL", "PRIVATE_KEY", "ACCESS_KEY", "AUTH",
}

// Placeholder replaces redacted values.
const Placeholder = "[redacted]"

// IsSensitiveEnvName reports whether an environment variable name looks
// secret-bearing.
func IsSensitiveEnvName(name string) bool {
	upper := strings.ToUpper(name)
	for _, pattern := range sensitiveEnvPatterns {
		if strings.Contains(upper, pattern) {
			return true
		}
	}
	return false
}

// SafeEnviron returns the current environment with sensitive variables
// removed, suitable for child processes spawned by tools.
func SafeEnviron() []string {
	var out []string
	for _, kv := range os.Environ() {
		name, _, ok := strings.Cut(kv, "=")
		if ok && IsSensitiveEnvName(name) {
			continue
		}
		out = append(out, kv)
	}
	return out
}

// secretValueRes match secret-shaped values inline in text.
var secretValueRes = []*regexp.Regexp{
	regexp.MustCompile(`sk-[A-Za-z0-9_-]{16,}`),                        // API keys
	regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._~+/-]{16,}=*`),        // bearer tokens
	regexp.MustCompile(`ghp_[A-Za-z0-9]{20,}`),                         // github tokens
	regexp.MustCompile(`eyJ[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}\.?[A-Za-z0-9_-]*`), // JWTs
	regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----[\s\S]*?-----END [A-Z ]*PRIVATE KEY-----`),
}

// piiRes match personally identifying values scrubbed from user-visible
// messages at the logging layer.
var piiRes = []*regexp.Regexp{
	regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`), // emails
	regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),                          // SSN-shaped
	regexp.MustCompile(`\b(?:\d[ -]?){13,16}\b`),                         // card-shaped digit runs
}

// Secrets replaces secret-shaped values in text with the placeholder.
func Secrets(text string) string {
	for _, re := range secretValueRes {
		text = re.ReplaceAllString(text, Placeholder)
	}
	// Values of current sensitive env vars, wherever they leaked.
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !IsSensitiveEnvName(name) || len(value) < 8 {
			continue
		}
		text = strings.ReplaceAll(text, value, Placeholder)
	}
	return text
}

// PII replaces personally identifying values in text with the
// placeholder.
func PII(text string) string {
	for _, re := range piiRes {
		text = re.ReplaceAllString(text, Placeholder)
	}
	return text
}

// Message scrubs both secrets and PII; applied to user-visible error
// messages before they leave the process.
func Message(text string) string {
	return PII(Secrets(text))
}
