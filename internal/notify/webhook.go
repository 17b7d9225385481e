package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ashita-ai/kanshi/internal/model"
)

// Webhook posts the alert as a JSON object to an arbitrary HTTP endpoint.
// The body is the model.Alert wire form, so receivers get the same schema
// the JSON-lines sink uses for events: self-describing, additive-only.
type Webhook struct {
	url    string
	client *http.Client
}

// NewWebhook creates a generic webhook notifier.
func NewWebhook(url string, client *http.Client) *Webhook {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Webhook{url: url, client: client}
}

func (w *Webhook) Name() string { return "webhook" }

func (w *Webhook) Send(ctx context.Context, alert model.Alert) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return &Error{Channel: w.Name(), Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return &Error{Channel: w.Name(), Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return &Error{Channel: w.Name(), Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Error{Channel: w.Name(), Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}
	return nil
}
