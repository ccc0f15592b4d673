package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Wick-Lim/helper/internal/config"
	"github.com/Wick-Lim/helper/internal/runtime"
)

func serverFixture(t *testing.T) (*Server, *runtime.Runtime) {
	t.Helper()
	base := t.TempDir()
	cfg := config.Default()
	cfg.APIKey = "sk-test-key"
	cfg.DataDir = filepath.Join(base, "data")
	cfg.WorkspaceDir = filepath.Join(base, "workspace")

	rt, err := runtime.New(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		rt.Close(ctx)
	})
	return NewServer(rt, nil), rt
}

func TestConfigEndpoints(t *testing.T) {
	s, _ := serverFixture(t)

	// GET returns every known key with its effective value.
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest("GET", "/api/config", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/config = %d", rec.Code)
	}
	var got map[string]string
	json.NewDecoder(rec.Body).Decode(&got)
	if got["max_iterations"] != "100" {
		t.Errorf("default max_iterations = %q", got["max_iterations"])
	}

	// PUT validates.
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest("PUT", "/api/config/temperature",
		strings.NewReader(`{"value":"0.1"}`)))
	if rec.Code != http.StatusOK {
		t.Errorf("valid PUT = %d: %s", rec.Code, rec.Body)
	}

	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest("PUT", "/api/config/temperature",
		strings.NewReader(`{"value":"2.5"}`)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid PUT = %d", rec.Code)
	}

	// Protected keys cannot be deleted.
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest("DELETE", "/api/config/max_iterations", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("protected DELETE = %d", rec.Code)
	}
}

func TestStatusEndpoint(t *testing.T) {
	s, _ := serverFixture(t)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest("GET", "/api/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got map[string]any
	json.NewDecoder(rec.Body).Decode(&got)
	if _, ok := got["active_runs"]; !ok {
		t.Error("status should report active_runs")
	}
}

func TestScreenshotEndpoint(t *testing.T) {
	s, rt := serverFixture(t)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest("GET", "/api/screenshots/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing screenshot = %d", rec.Code)
	}

	dir := rt.Config.ScreenshotDir()
	os.MkdirAll(dir, 0o755)
	os.WriteFile(filepath.Join(dir, "abc.jpg"), []byte("jpegdata"), 0o644)

	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest("GET", "/api/screenshots/abc", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("existing screenshot = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("content type = %q", ct)
	}
}

func TestUnknownEventStream(t *testing.T) {
	s, _ := serverFixture(t)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest("GET", "/api/events/everything", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown stream = %d", rec.Code)
	}
}

func TestChatValidation(t *testing.T) {
	s, _ := serverFixture(t)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest("POST", "/api/chat", strings.NewReader(`{}`)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty message = %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := serverFixture(t)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "helper_active_runs") {
		t.Error("active-runs gauge missing from /metrics")
	}
}
