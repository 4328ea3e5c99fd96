package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"sm8extract/internal/config"
	"sm8extract/internal/result"
	"sm8extract/internal/state"
)

// HTTPServer exposes the extractor over HTTP in serve mode: the last result,
// run status, a run trigger, and a WebSocket feed of run progress.
type HTTPServer struct {
	cfg     config.Config
	st      *state.State
	trigger func() bool
	hub     *hub
	log     *slog.Logger
	mux     *http.ServeMux
}

// NewHTTPServer wires the routes. trigger starts an extraction run in the
// background and returns false when one is already in flight.
func NewHTTPServer(cfg config.Config, st *state.State, trigger func() bool, logger *slog.Logger) *HTTPServer {
	s := &HTTPServer{
		cfg:     cfg,
		st:      st,
		trigger: trigger,
		hub:     newHub(logger),
		log:     logger,
		mux:     http.NewServeMux(),
	}
	s.routes()
	go s.hub.run()
	return s
}

func (s *HTTPServer) Router() http.Handler { return s.mux }

func (s *HTTPServer) Addr() string { return fmt.Sprintf(":%d", s.cfg.Port) }

// --------- WS broadcasts ----------

// BroadcastStage pushes a pipeline stage transition to every /ws client.
// The hub retains the latest stage and replays it to new connections.
func (s *HTTPServer) BroadcastStage(stage string, attempt int) {
	s.hub.retained <- marshalWS("stage", map[string]any{
		"stage":   stage,
		"attempt": attempt,
	})
}

func (s *HTTPServer) BroadcastDone(endpoints int) {
	s.hub.broadcast <- marshalWS("done", map[string]any{
		"endpoints": endpoints,
		"timeISO":   time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (s *HTTPServer) BroadcastError(msg string) {
	s.hub.broadcast <- marshalWS("error", map[string]string{"message": msg})
}

// --------- Routes ----------

func (s *HTTPServer) routes() {
	// WS
	s.mux.HandleFunc("/ws", s.hub.serveWS)

	// API
	s.mux.HandleFunc("/api/health", s.apiHealth)
	s.mux.HandleFunc("/api/status", s.apiStatus)
	s.mux.HandleFunc("/api/result", s.apiResult)
	s.mux.HandleFunc("/api/run", s.apiRun)
}

func (s *HTTPServer) apiHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"ok":      true,
		"running": s.st.Running(),
	})
}

func (s *HTTPServer) apiStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.st.Snapshot())
}

// apiResult replays result.json as-is, so consumers get the same bytes
// whether they read the file or poll the server.
func (s *HTTPServer) apiResult(w http.ResponseWriter, r *http.Request) {
	b, err := result.Read(s.cfg.ResultPath)
	if err != nil {
		http.Error(w, "result unreadable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_, _ = w.Write(b)
}

func (s *HTTPServer) apiRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	if !s.trigger() {
		http.Error(w, "a run is already in progress", http.StatusConflict)
		return
	}
	s.log.Info("extraction run triggered over http")
	writeJSON(w, map[string]any{"ok": true, "started": true})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
