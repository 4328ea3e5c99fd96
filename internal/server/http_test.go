package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"sm8extract/internal/config"
	"sm8extract/internal/state"
)

func testServer(t *testing.T, trigger func() bool) (*HTTPServer, *state.State) {
	t.Helper()
	cfg, err := config.Load("nonexistent.yaml")
	if err != nil {
		t.Fatal(err)
	}
	cfg.ResultPath = filepath.Join(t.TempDir(), "result.json")
	st := state.New()
	if trigger == nil {
		trigger = func() bool { return true }
	}
	return NewHTTPServer(cfg, st, trigger, slog.Default()), st
}

func TestHealth(t *testing.T) {
	s, _ := testServer(t, nil)
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["ok"] != true {
		t.Errorf("ok = %v", body["ok"])
	}
}

func TestStatusReflectsState(t *testing.T) {
	s, st := testServer(t, nil)
	st.SetStage(state.StageLogin, 2)

	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	var snap state.Snapshot
	if err := json.Unmarshal(rr.Body.Bytes(), &snap); err != nil {
		t.Fatal(err)
	}
	if snap.Stage != state.StageLogin || snap.Attempt != 2 {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestResultMissingFileServesEmptyArray(t *testing.T) {
	s, _ := testServer(t, nil)
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/result", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if got := strings.TrimSpace(rr.Body.String()); got != "[]" {
		t.Errorf("body = %q, want []", got)
	}
}

func TestResultServesFileBytes(t *testing.T) {
	s, _ := testServer(t, nil)
	content := `{"cookie":"a=1","api_endpoints":[]}`
	if err := os.WriteFile(s.cfg.ResultPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/result", nil))
	if got := strings.TrimSpace(rr.Body.String()); got != content {
		t.Errorf("body = %q", got)
	}
}

func TestRunRequiresPost(t *testing.T) {
	s, _ := testServer(t, nil)
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/run", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rr.Code)
	}
}

func TestRunConflictWhileRunning(t *testing.T) {
	s, _ := testServer(t, func() bool { return false })
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/run", nil))
	if rr.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rr.Code)
	}
}

func TestRunTriggers(t *testing.T) {
	triggered := false
	s, _ := testServer(t, func() bool { triggered = true; return true })
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/run", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if !triggered {
		t.Error("trigger was not called")
	}
}
