package state

import (
	"errors"
	"testing"
)

func TestTryStartExcludesConcurrentRuns(t *testing.T) {
	s := New()
	if !s.TryStart() {
		t.Fatal("first TryStart should succeed")
	}
	if s.TryStart() {
		t.Fatal("second TryStart should fail while running")
	}
	s.FinishRun(0, nil)
	if !s.TryStart() {
		t.Fatal("TryStart should succeed again after FinishRun")
	}
}

func TestFinishRunSuccess(t *testing.T) {
	s := New()
	s.TryStart()
	s.SetStage(StageExtraction, 2)
	s.FinishRun(3, nil)

	snap := s.Snapshot()
	if snap.Stage != StageDone {
		t.Errorf("stage = %q, want %q", snap.Stage, StageDone)
	}
	if snap.Running {
		t.Error("running should be false after FinishRun")
	}
	if snap.LastEndpoints != 3 {
		t.Errorf("last endpoints = %d, want 3", snap.LastEndpoints)
	}
	if snap.LastError != "" {
		t.Errorf("last error = %q, want empty", snap.LastError)
	}
	if snap.Runs != 1 {
		t.Errorf("runs = %d, want 1", snap.Runs)
	}
	if snap.LastFinished.IsZero() {
		t.Error("last finished should be set")
	}
}

func TestFinishRunFailure(t *testing.T) {
	s := New()
	s.TryStart()
	s.FinishRun(0, errors.New("login failed"))

	snap := s.Snapshot()
	if snap.Stage != StageFailed {
		t.Errorf("stage = %q, want %q", snap.Stage, StageFailed)
	}
	if snap.LastError != "login failed" {
		t.Errorf("last error = %q", snap.LastError)
	}
}

func TestSnapshotReflectsStage(t *testing.T) {
	s := New()
	snap := s.Snapshot()
	if snap.Stage != StageIdle {
		t.Errorf("initial stage = %q, want %q", snap.Stage, StageIdle)
	}
	s.SetStage(StageLogin, 1)
	snap = s.Snapshot()
	if snap.Stage != StageLogin || snap.Attempt != 1 {
		t.Errorf("snapshot = %+v", snap)
	}
}
