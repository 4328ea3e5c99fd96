// Package webhook delivers the extraction result to the downstream n8n hook.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"sm8extract/internal/result"
)

type payload struct {
	ServiceM8Data  *result.Result `json:"servicem8_data"`
	Timestamp      string         `json:"timestamp"`
	TotalEndpoints int            `json:"total_endpoints"`
}

type Sender struct {
	url    string
	httpc  *http.Client
	logger *slog.Logger
}

func NewSender(url string, logger *slog.Logger) *Sender {
	return &Sender{
		url:    url,
		httpc:  &http.Client{Timeout: 30 * time.Second},
		logger: logger,
	}
}

// Send POSTs the result wrapped with a timestamp and endpoint count. Success
// is HTTP 200, nothing else.
func (s *Sender) Send(ctx context.Context, r *result.Result) error {
	if s.url == "" {
		return nil
	}
	count := 0
	if r != nil {
		count = len(r.APIEndpoints)
	}
	body, err := json.Marshal(payload{
		ServiceM8Data:  r,
		Timestamp:      time.Now().Format(time.RFC3339),
		TotalEndpoints: count,
	})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("webhook post: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("webhook status %d", resp.StatusCode)
	}
	s.logger.Info("webhook delivered", slog.Int("endpoints", count))
	return nil
}
