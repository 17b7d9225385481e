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

// Slack posts alerts to a Slack incoming-webhook URL.
type Slack struct {
	webhookURL string
	client     *http.Client
}

// NewSlack creates a Slack notifier. A nil client gets a default with a
// 10 second timeout; the engine additionally bounds each Send via context.
func NewSlack(webhookURL string, client *http.Client) *Slack {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Slack{webhookURL: webhookURL, client: client}
}

func (s *Slack) Name() string { return "slack" }

// slackPayload is the incoming-webhook body. Attachments carry the severity
// color bar and the structured fields.
type slackPayload struct {
	Text        string            `json:"text"`
	Attachments []slackAttachment `json:"attachments,omitempty"`
}

type slackAttachment struct {
	Color  string       `json:"color"`
	Fields []slackField `json:"fields"`
	Ts     int64        `json:"ts"`
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

func severityColor(s model.Severity) string {
	switch s {
	case model.SeverityCritical, model.SeverityError:
		return "danger"
	case model.SeverityWarning:
		return "warning"
	default:
		return "good"
	}
}

func (s *Slack) Send(ctx context.Context, alert model.Alert) error {
	payload := slackPayload{
		Text: fmt.Sprintf(":rotating_light: *%s* — %s", alert.RuleName, alert.Message),
		Attachments: []slackAttachment{{
			Color: severityColor(alert.Severity),
			Ts:    alert.FiredAt.Unix(),
			Fields: []slackField{
				{Title: "Metric", Value: alert.MetricName, Short: true},
				{Title: "Severity", Value: string(alert.Severity), Short: true},
				{Title: "Value", Value: fmt.Sprintf("%g", alert.Value), Short: true},
				{Title: "Threshold", Value: fmt.Sprintf("%s %g", alert.Condition, alert.Threshold), Short: true},
			},
		}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return &Error{Channel: s.Name(), Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return &Error{Channel: s.Name(), Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return &Error{Channel: s.Name(), Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Error{Channel: s.Name(), Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}
	return nil
}
