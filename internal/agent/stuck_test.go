package agent

import (
	"fmt"
	"testing"
)

func TestStuckSameInputThreeTimes(t *testing.T) {
	d := NewStuckDetector(100)
	for i := 0; i < 3; i++ {
		d.Record("shell", `{"command":"ls"}`)
	}
	v := d.Check()
	if !v.IsStuck {
		t.Error("3 identical calls should be stuck")
	}
	if v.ShouldTerminate {
		t.Error("identical-call repetition warns, it does not terminate")
	}
	if v.Message == "" {
		t.Error("verdict should carry a message")
	}
}

func TestNotStuckWithVariedCalls(t *testing.T) {
	d := NewStuckDetector(100)
	d.Record("shell", `{"command":"ls"}`)
	d.Record("file", `{"action":"read"}`)
	d.Record("shell", `{"command":"ls"}`)
	if v := d.Check(); v.IsStuck {
		t.Errorf("varied calls should not be stuck: %+v", v)
	}
}

func TestStuckSameInputRequiresSameFingerprint(t *testing.T) {
	d := NewStuckDetector(100)
	d.Record("shell", `{"command":"ls /a"}`)
	d.Record("shell", `{"command":"ls /b"}`)
	d.Record("shell", `{"command":"ls /c"}`)
	if v := d.Check(); v.IsStuck {
		t.Errorf("3 same-tool different-input calls should not be stuck: %+v", v)
	}
}

func TestStuckSameToolTenTimes(t *testing.T) {
	d := NewStuckDetector(100)
	for i := 0; i < 10; i++ {
		d.Record("web", fmt.Sprintf(`{"url":"https://example.com/%d"}`, i))
	}
	v := d.Check()
	if !v.IsStuck || v.ShouldTerminate {
		t.Errorf("10 same-tool calls should warn without terminating: %+v", v)
	}
}

func TestStuckMaxIterationsTerminates(t *testing.T) {
	d := NewStuckDetector(5)
	for i := 0; i < 5; i++ {
		d.Record("shell", fmt.Sprintf(`{"i":%d}`, i))
	}
	v := d.Check()
	if !v.IsStuck || !v.ShouldTerminate {
		t.Errorf("iteration budget should terminate: %+v", v)
	}
}

func TestMaxIterationsClamped(t *testing.T) {
	d := NewStuckDetector(0)
	d.Record("shell", "x")
	if v := d.Check(); !v.ShouldTerminate {
		t.Error("max clamped to 1: one record should exhaust the budget")
	}

	d = NewStuckDetector(99999)
	if d.maxIterations != 1000 {
		t.Errorf("max should clamp to 1000, got %d", d.maxIterations)
	}
}

func TestHistoryBounded(t *testing.T) {
	d := NewStuckDetector(1000)
	for i := 0; i < stuckHistorySize*2; i++ {
		d.Record("shell", fmt.Sprintf("%d", i))
	}
	if len(d.history) != stuckHistorySize {
		t.Errorf("history should be bounded at %d, got %d", stuckHistorySize, len(d.history))
	}
}

func TestIterationCounterSurvivesHistoryTrim(t *testing.T) {
	d := NewStuckDetector(1000)
	for i := 0; i < stuckHistorySize+20; i++ {
		d.Record("shell", fmt.Sprintf("%d", i))
	}
	if d.Iteration() != stuckHistorySize+20 {
		t.Errorf("iteration = %d, want %d", d.Iteration(), stuckHistorySize+20)
	}
}
