package result

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteNilProducesEmptyArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "result.json")
	if err := Write(path, nil); err != nil {
		t.Fatalf("write: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var v []any
	if err := json.Unmarshal(b, &v); err != nil {
		t.Fatalf("nil result must serialize as a JSON array: %s", b)
	}
	if len(v) != 0 {
		t.Fatalf("expected empty array, got %s", b)
	}
}

func TestWriteEmptyEndpointsProducesEmptyArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "result.json")
	if err := Write(path, &Result{Cookie: "a=1"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	b, _ := os.ReadFile(path)
	var v []any
	if err := json.Unmarshal(b, &v); err != nil {
		t.Fatalf("no-endpoint result must serialize as a JSON array: %s", b)
	}
}

func TestWritePopulated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "result.json")
	in := &Result{
		Cookie: "s_session=abc",
		APIEndpoints: []Endpoint{
			{URL: "https://go.servicem8.com/CalendarStoreRequest?s_auth=ff00", SAuth: "ff00"},
			{URL: "https://go.servicem8.com/CalendarStoreRequest?s_auth=11aa", SAuth: "11aa", Type: "fallback_calendar"},
		},
	}
	if err := Write(path, in); err != nil {
		t.Fatalf("write: %v", err)
	}
	b, _ := os.ReadFile(path)
	var out Result
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("invalid JSON written: %v", err)
	}
	if out.Cookie != in.Cookie || len(out.APIEndpoints) != 2 {
		t.Fatalf("roundtrip mismatch: %+v", out)
	}
	if out.APIEndpoints[0].Type != "" || out.APIEndpoints[1].Type != "fallback_calendar" {
		t.Fatalf("type field mishandled: %+v", out.APIEndpoints)
	}
}

func TestReadMissingYieldsEmptyArray(t *testing.T) {
	b, err := Read(filepath.Join(t.TempDir(), "none.json"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(b) != "[]" {
		t.Fatalf("got %q", b)
	}
}

func TestReadRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "result.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Read(path); err == nil {
		t.Fatal("expected error for corrupt file")
	}
}
