// Package result defines the output record and the writer that guarantees
// result.json is always valid JSON, even on total failure.
package result

import (
	"encoding/json"
	"fmt"
	"os"
)

type Endpoint struct {
	URL   string `json:"url"`
	SAuth string `json:"s_auth"`
	Type  string `json:"type,omitempty"` // set on fallback endpoints only
}

type Result struct {
	Cookie       string     `json:"cookie"`
	APIEndpoints []Endpoint `json:"api_endpoints"`
}

// Write persists the result. A nil result or one with no endpoints writes an
// empty JSON array instead: downstream webhook consumers choke on a missing
// or null file.
func Write(path string, r *Result) error {
	var v any = r
	if r == nil || len(r.APIEndpoints) == 0 {
		v = []any{}
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	return os.WriteFile(path, b, 0o644)
}

// Read loads a previously written result file as raw JSON for the status
// server. Missing file yields the empty array.
func Read(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []byte("[]"), nil
		}
		return nil, err
	}
	if !json.Valid(b) {
		return nil, fmt.Errorf("%s holds invalid JSON", path)
	}
	return b, nil
}
