package store

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ValueKind is the validation family of a config key.
type ValueKind int

const (
	// KindInt values must parse as integers within [Min, Max].
	KindInt ValueKind = iota
	// KindFloat values must parse as reals within [Min, Max].
	KindFloat
	// KindBool values must be the literal "true" or "false".
	KindBool
	// KindPattern values must match Pattern.
	KindPattern
)

// Rule validates one config key's values.
type Rule struct {
	Kind      ValueKind
	Min, Max  float64
	Pattern   *regexp.Regexp
	Default   string
	Protected bool // protected keys cannot be deleted
}

// Validate reports whether raw is acceptable for this rule.
func (r Rule) Validate(raw string) error {
	switch r.Kind {
	case KindInt:
		v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return fmt.Errorf("not an integer: %q", raw)
		}
		if float64(v) < r.Min || float64(v) > r.Max {
			return fmt.Errorf("out of range [%d, %d]: %d", int64(r.Min), int64(r.Max), v)
		}
	case KindFloat:
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return fmt.Errorf("not a number: %q", raw)
		}
		if v < r.Min || v > r.Max {
			return fmt.Errorf("out of range [%g, %g]: %g", r.Min, r.Max, v)
		}
	case KindBool:
		if raw != "true" && raw != "false" {
			return fmt.Errorf("not a boolean literal: %q", raw)
		}
	case KindPattern:
		if r.Pattern == nil || !r.Pattern.MatchString(raw) {
			return fmt.Errorf("does not match expected format: %q", raw)
		}
	}
	return nil
}

// clamp coerces an invalid persisted value to the nearest bound, or the
// default when it cannot be parsed at all.
func (r Rule) clamp(raw string) string {
	switch r.Kind {
	case KindInt:
		v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return r.Default
		}
		if float64(v) < r.Min {
			return strconv.FormatInt(int64(r.Min), 10)
		}
		if float64(v) > r.Max {
			return strconv.FormatInt(int64(r.Max), 10)
		}
		return raw
	case KindFloat:
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return r.Default
		}
		if v < r.Min {
			return strconv.FormatFloat(r.Min, 'g', -1, 64)
		}
		if v > r.Max {
			return strconv.FormatFloat(r.Max, 'g', -1, 64)
		}
		return raw
	default:
		if err := r.Validate(raw); err != nil {
			return r.Default
		}
		return raw
	}
}

// modelNameRe matches the model identifiers this deployment accepts.
var modelNameRe = regexp.MustCompile(`^(claude-[a-z0-9.-]+|gemini-[a-z0-9.-]+|gpt-[a-z0-9.-]+)$`)

// configRules is the built-in key table. Unknown keys are rejected on
// write and absent on read.
var configRules = map[string]Rule{
	"max_iterations":   {Kind: KindInt, Min: 1, Max: 1000, Default: "100", Protected: true},
	"thinking_budget":  {Kind: KindInt, Min: 0, Max: 100000, Default: "10000"},
	"tool_timeout_ms":  {Kind: KindInt, Min: 1000, Max: 600000, Default: "30000", Protected: true},
	"code_timeout_ms":  {Kind: KindInt, Min: 1000, Max: 600000, Default: "60000"},
	"max_output_chars": {Kind: KindInt, Min: 1000, Max: 100000, Default: "10000"},
	"verbose":          {Kind: KindBool, Default: "false"},
	"temperature":      {Kind: KindFloat, Min: 0, Max: 2, Default: "0.7"},
	"model":            {Kind: KindPattern, Pattern: modelNameRe, Default: "claude-sonnet-4-20250514"},
}

// ConfigKeys returns the known config keys in unspecified order.
func ConfigKeys() []string {
	keys := make([]string, 0, len(configRules))
	for k := range configRules {
		keys = append(keys, k)
	}
	return keys
}

// GetConfig returns the effective value for key: the persisted value when
// valid, the nearest bound when the persisted value is out of range, and
// the built-in default otherwise.
func (s *Store) GetConfig(ctx context.Context, key string) (string, error) {
	rule, ok := configRules[key]
	if !ok {
		return "", fmt.Errorf("unknown config key %q", key)
	}

	var raw string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", key).Scan(&raw)
	if err == sql.ErrNoRows {
		return rule.Default, nil
	}
	if err != nil {
		return "", fmt.Errorf("get config: %w", err)
	}

	if vErr := rule.Validate(raw); vErr != nil {
		coerced := rule.clamp(raw)
		s.logger.Warn("invalid persisted config value, coercing",
			"key", key, "value", raw, "coerced", coerced, "reason", vErr)
		return coerced, nil
	}
	return raw, nil
}

// SetConfig persists a value after validating it. Invalid values are
// rejected; a successful write guarantees a subsequent GetConfig returns
// exactly this value.
func (s *Store) SetConfig(ctx context.Context, key, value string) error {
	rule, ok := configRules[key]
	if !ok {
		return fmt.Errorf("unknown config key %q", key)
	}
	if err := rule.Validate(value); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}

	_, err := s.exec(ctx, `
		INSERT INTO config (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, key, value)
	if err != nil {
		return fmt.Errorf("set config: %w", err)
	}
	return nil
}

// DeleteConfig removes a persisted override, restoring the default.
// Protected keys cannot be deleted.
func (s *Store) DeleteConfig(ctx context.Context, key string) error {
	rule, ok := configRules[key]
	if !ok {
		return fmt.Errorf("unknown config key %q", key)
	}
	if rule.Protected {
		return fmt.Errorf("config key %q cannot be deleted", key)
	}
	if _, err := s.exec(ctx, "DELETE FROM config WHERE key = ?", key); err != nil {
		return fmt.Errorf("delete config: %w", err)
	}
	return nil
}

// ConfigInt returns the effective integer value for key.
func (s *Store) ConfigInt(ctx context.Context, key string) (int, error) {
	raw, err := s.GetConfig(ctx, key)
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("config %s is not an integer: %w", key, err)
	}
	return v, nil
}

// ConfigFloat returns the effective float value for key.
func (s *Store) ConfigFloat(ctx context.Context, key string) (float64, error) {
	raw, err := s.GetConfig(ctx, key)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("config %s is not a number: %w", key, err)
	}
	return v, nil
}

// ConfigBool returns the effective boolean value for key.
func (s *Store) ConfigBool(ctx context.Context, key string) (bool, error) {
	raw, err := s.GetConfig(ctx, key)
	if err != nil {
		return false, err
	}
	return raw == "true", nil
}
