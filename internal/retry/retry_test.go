package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDoSucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := Do(context.Background(), 3, time.Millisecond, func(attempt int) error {
		calls++
		if attempt != calls {
			t.Fatalf("attempt %d != calls %d", attempt, calls)
		}
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls got %d want 3", calls)
	}
}

func TestDoReturnsLastError(t *testing.T) {
	want := errors.New("boom")
	err := Do(context.Background(), 2, time.Millisecond, func(int) error { return want })
	if !errors.Is(err, want) {
		t.Fatalf("expected wrapped last error, got %v", err)
	}
}

func TestDoAbortStopsRetrying(t *testing.T) {
	want := errors.New("not going to work")
	calls := 0
	err := Do(context.Background(), 5, time.Millisecond, func(int) error {
		calls++
		return Abort(want)
	})
	if !errors.Is(err, want) {
		t.Fatalf("expected the aborted error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("abort must stop the loop, calls=%d", calls)
	}
}

func TestDoAbortUnwrapsMarker(t *testing.T) {
	want := errors.New("denied")
	err := Do(context.Background(), 3, time.Millisecond, func(int) error {
		return Abort(want)
	})
	if err == nil || err.Error() != "denied" {
		t.Fatalf("marker should not leak into the message, got %v", err)
	}
}

func TestDoStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := Do(ctx, 100, time.Hour, func(int) error {
		calls++
		return errors.New("fail")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancel, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("should not retry after cancel, calls=%d", calls)
	}
}
