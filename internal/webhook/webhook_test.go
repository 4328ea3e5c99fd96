package webhook

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"sm8extract/internal/result"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSendPayloadShape(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type got %s", ct)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("bad json: %v", err)
		}
	}))
	defer srv.Close()

	r := &result.Result{
		Cookie:       "a=1",
		APIEndpoints: []result.Endpoint{{URL: "https://go.servicem8.com/x?s_auth=ff", SAuth: "ff"}},
	}
	if err := NewSender(srv.URL, discardLogger()).Send(context.Background(), r); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, ok := got["servicem8_data"]; !ok {
		t.Fatalf("payload missing servicem8_data: %v", got)
	}
	if got["total_endpoints"] != float64(1) {
		t.Fatalf("total_endpoints got %v", got["total_endpoints"])
	}
	if got["timestamp"] == "" {
		t.Fatal("timestamp missing")
	}
}

func TestSendNon200IsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted) // even 2xx other than 200 fails
	}))
	defer srv.Close()
	err := NewSender(srv.URL, discardLogger()).Send(context.Background(), &result.Result{})
	if err == nil {
		t.Fatal("expected error on non-200")
	}
}

func TestSendEmptyURLIsNoop(t *testing.T) {
	if err := NewSender("", discardLogger()).Send(context.Background(), nil); err != nil {
		t.Fatalf("no webhook configured should be a no-op: %v", err)
	}
}

func TestSendUnreachable(t *testing.T) {
	err := NewSender("http://127.0.0.1:1/hook", discardLogger()).Send(context.Background(), &result.Result{})
	if err == nil {
		t.Fatal("expected connection error")
	}
}
