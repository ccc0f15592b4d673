package agent

import (
	"fmt"
	"hash/fnv"
	"sync"
)

// Stuck detection thresholds.
const (
	// sameInputThreshold fires when the tail of the history repeats the
	// same tool with identical arguments.
	sameInputThreshold = 3

	// sameToolThreshold fires when the tail repeats the same tool with
	// any arguments.
	sameToolThreshold = 10

	// stuckHistorySize bounds the call history.
	stuckHistorySize = 50
)

// Verdict is the stuck detector's decision.
type Verdict struct {
	IsStuck         bool
	ShouldTerminate bool
	Message         string
}

type stuckRecord struct {
	tool        string
	fingerprint uint64
}

// StuckDetector observes the tool call stream of one agent run and
// decides when the run is spinning: same call repeated, one tool leaned
// on too long, or the iteration budget exhausted.
type StuckDetector struct {
	mu            sync.Mutex
	history       []stuckRecord
	iteration     int
	maxIterations int
}

// NewStuckDetector creates a detector. maxIterations is clamped to
// [1, 1000].
func NewStuckDetector(maxIterations int) *StuckDetector {
	if maxIterations < 1 {
		maxIterations = 1
	}
	if maxIterations > 1000 {
		maxIterations = 1000
	}
	return &StuckDetector{maxIterations: maxIterations}
}

// Record appends one tool call to the history and advances the iteration
// counter. The input string is reduced to a stable fingerprint used only
// for equality.
func (d *StuckDetector) Record(tool, input string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.iteration++
	d.history = append(d.history, stuckRecord{tool: tool, fingerprint: fingerprint(input)})
	if len(d.history) > stuckHistorySize {
		d.history = d.history[len(d.history)-stuckHistorySize:]
	}
}

// Iteration returns the number of recorded calls.
func (d *StuckDetector) Iteration() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.iteration
}

// Check evaluates the rules in order: iteration budget, identical-call
// repetition, single-tool repetition.
func (d *StuckDetector) Check() Verdict {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.iteration >= d.maxIterations {
		return Verdict{
			IsStuck:         true,
			ShouldTerminate: true,
			Message:         fmt.Sprintf("reached max %d iterations", d.maxIterations),
		}
	}

	if tail := d.tail(sameInputThreshold); len(tail) == sameInputThreshold {
		same := true
		for _, rec := range tail[1:] {
			if rec.tool != tail[0].tool || rec.fingerprint != tail[0].fingerprint {
				same = false
				break
			}
		}
		if same {
			return Verdict{
				IsStuck: true,
				Message: fmt.Sprintf("called %s with the same input %d times in a row, change approach", tail[0].tool, sameInputThreshold),
			}
		}
	}

	if tail := d.tail(sameToolThreshold); len(tail) == sameToolThreshold {
		same := true
		for _, rec := range tail[1:] {
			if rec.tool != tail[0].tool {
				same = false
				break
			}
		}
		if same {
			return Verdict{
				IsStuck: true,
				Message: fmt.Sprintf("used %s %d times in a row, try another tool", tail[0].tool, sameToolThreshold),
			}
		}
	}

	return Verdict{}
}

// tail returns the last n records, or fewer when the history is shorter.
// Must be called with the lock held.
func (d *StuckDetector) tail(n int) []stuckRecord {
	if len(d.history) < n {
		return nil
	}
	return d.history[len(d.history)-n:]
}

func fingerprint(input string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(input))
	return h.Sum64()
}
