package cookies

import (
	"path/filepath"
	"reflect"
	"testing"
)

func TestDomainVariantsOrder(t *testing.T) {
	got := DomainVariants(".ap-southeast-2.go.servicem8.com")
	want := []string{
		".ap-southeast-2.go.servicem8.com",
		"ap-southeast-2.go.servicem8.com",
		"go.servicem8.com",
		"servicem8.com",
		"",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("variants\n got %v\nwant %v", got, want)
	}
}

func TestDomainVariantsNoDuplicates(t *testing.T) {
	got := DomainVariants("go.servicem8.com")
	want := []string{"go.servicem8.com", "servicem8.com", ""}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("variants got %v want %v", got, want)
	}

	got = DomainVariants(".servicem8.com")
	want = []string{".servicem8.com", "servicem8.com", "go.servicem8.com", ""}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("dotted bare domain got %v want %v", got, want)
	}
}

func TestSaveLoadRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookies.json")
	in := []Cookie{
		{Name: "s_session", Value: "abc123", Domain: ".servicem8.com", Path: "/", Secure: true, HTTPOnly: true, Expiry: 1800000000},
		{Name: "lang", Value: "en-AU", Domain: "go.servicem8.com"},
	}
	if err := Save(path, in); err != nil {
		t.Fatalf("save: %v", err)
	}
	out, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("roundtrip mismatch\n in %+v\nout %+v", in, out)
	}
}

func TestLoadMissing(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "none.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestHeaderString(t *testing.T) {
	cs := []Cookie{
		{Name: "a", Value: "1"},
		{Name: "b", Value: "2"},
	}
	if got := HeaderString(cs); got != "a=1; b=2" {
		t.Fatalf("header got %q", got)
	}
	if got := HeaderString(nil); got != "" {
		t.Fatalf("empty header got %q", got)
	}
}
