// Package webhook forwards digest text to a Slack-compatible incoming webhook.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/blackmichael/social-engage/internal/httpx"
)

// Header is prepended to every message.
const Header = "*Social Monitor*"

// Sink posts {"text": ...} JSON to a webhook URL.
type Sink struct {
	url  string
	http *httpx.Client
}

// New returns a sink for url. Deliveries are attempted once; a nil hc uses a
// client without retries.
func New(url string, hc *httpx.Client) *Sink {
	if hc == nil {
		cfg := httpx.DefaultConfig()
		cfg.MaxRetries = 0
		hc = httpx.New(cfg)
	}
	return &Sink{url: url, http: hc}
}

type payload struct {
	Text string `json:"text"`
}

// Notify sends text once. Non-2xx responses are errors.
func (s *Sink) Notify(ctx context.Context, text string) error {
	body, err := json.Marshal(payload{Text: Header + "\n" + text})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	resp, err := s.http.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	if !resp.OK() {
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, httpx.Snippet(resp.Body))
	}
	return nil
}
