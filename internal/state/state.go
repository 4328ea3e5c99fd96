package state

import (
	"sync"
	"sync/atomic"
	"time"
)

// Stage names, in pipeline order.
const (
	StageIdle       = "idle"
	StageBrowser    = "browser_setup"
	StageLogin      = "login"
	StageNavigation = "navigation"
	StageExtraction = "extraction"
	StageDelivery   = "delivery"
	StageDone       = "done"
	StageFailed     = "failed"
)

// State tracks where the current run is, for logging and the status server.
type State struct {
	mu      sync.RWMutex
	stage   string
	attempt int

	running atomic.Bool

	lastFinished  time.Time
	lastError     string
	lastEndpoints int
	runs          atomic.Int64
}

type Snapshot struct {
	Stage         string    `json:"stage"`
	Attempt       int       `json:"attempt,omitempty"`
	Running       bool      `json:"running"`
	Runs          int64     `json:"runs"`
	LastFinished  time.Time `json:"last_finished,omitzero"`
	LastError     string    `json:"last_error,omitempty"`
	LastEndpoints int       `json:"last_endpoints"`
}

func New() *State {
	return &State{stage: StageIdle}
}

func (s *State) SetStage(stage string, attempt int) {
	s.mu.Lock()
	s.stage = stage
	s.attempt = attempt
	s.mu.Unlock()
}

// TryStart flips the running flag; false means a run is already in flight.
func (s *State) TryStart() bool {
	return s.running.CompareAndSwap(false, true)
}

// FinishRun records the outcome and releases the running flag.
func (s *State) FinishRun(endpoints int, err error) {
	s.mu.Lock()
	s.lastFinished = time.Now()
	s.lastEndpoints = endpoints
	if err != nil {
		s.lastError = err.Error()
		s.stage = StageFailed
	} else {
		s.lastError = ""
		s.stage = StageDone
	}
	s.attempt = 0
	s.mu.Unlock()
	s.runs.Add(1)
	s.running.Store(false)
}

func (s *State) Running() bool { return s.running.Load() }

func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Stage:         s.stage,
		Attempt:       s.attempt,
		Running:       s.running.Load(),
		Runs:          s.runs.Load(),
		LastFinished:  s.lastFinished,
		LastError:     s.lastError,
		LastEndpoints: s.lastEndpoints,
	}
}
