package agent

import "errors"

// Sentinel errors for agent runs.
var (
	// ErrStuck indicates the stuck detector terminated the run.
	ErrStuck = errors.New("agent run stuck")

	// ErrNoProvider indicates no LLM provider is configured.
	ErrNoProvider = errors.New("no provider configured")

	// ErrShutdown indicates the run stopped because global shutdown is
	// underway.
	ErrShutdown = errors.New("shutdown in progress")
)
