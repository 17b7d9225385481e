package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/kanshi/internal/model"
	"github.com/ashita-ai/kanshi/internal/notify"
)

func testAlert() model.Alert {
	return model.Alert{
		ID:         uuid.New(),
		RuleName:   "high-cpu",
		MetricName: "cpu_percent",
		Value:      92.5,
		Threshold:  80,
		Condition:  model.ConditionGreaterThan,
		Severity:   model.SeverityWarning,
		Message:    "cpu_percent is 92.5 (greater_than 80)",
		FiredAt:    time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC),
	}
}

func TestSlackPostsWebhookPayload(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &got))
	}))
	defer srv.Close()

	n := notify.NewSlack(srv.URL, srv.Client())
	require.NoError(t, n.Send(context.Background(), testAlert()))

	assert.Contains(t, got["text"], "high-cpu")
	attachments, ok := got["attachments"].([]any)
	require.True(t, ok)
	require.Len(t, attachments, 1)
	assert.Equal(t, "warning", attachments[0].(map[string]any)["color"])
}

func TestSlackNon2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := notify.NewSlack(srv.URL, srv.Client())
	err := n.Send(context.Background(), testAlert())
	require.Error(t, err)

	var nerr *notify.Error
	require.ErrorAs(t, err, &nerr)
	assert.Equal(t, "slack", nerr.Channel)
}

func TestWebhookPostsAlertSchema(t *testing.T) {
	var got model.Alert
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &got))
	}))
	defer srv.Close()

	alert := testAlert()
	n := notify.NewWebhook(srv.URL, srv.Client())
	require.NoError(t, n.Send(context.Background(), alert))

	assert.Equal(t, alert.ID, got.ID)
	assert.Equal(t, alert.RuleName, got.RuleName)
	assert.Equal(t, alert.Value, got.Value)
}

func TestWebhookHonorsContextCancellation(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	n := notify.NewWebhook(srv.URL, srv.Client())
	err := n.Send(ctx, testAlert())
	require.Error(t, err, "a hung endpoint must not stall past the deadline")
}

func TestEmailFormatsMessage(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte

	n := notify.NewEmail(notify.EmailConfig{
		Host: "smtp.example.com",
		Port: 587,
		From: "kanshi@example.com",
		To:   []string{"ops@example.com"},
	})
	n.SetSendMail(func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	})

	require.NoError(t, n.Send(context.Background(), testAlert()))
	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Equal(t, "kanshi@example.com", gotFrom)
	assert.Equal(t, []string{"ops@example.com"}, gotTo)
	assert.Contains(t, string(gotMsg), "Subject: [kanshi] WARNING alert: high-cpu")
	assert.Contains(t, string(gotMsg), "cpu_percent")
}

func TestEmailSendFailureIsNotifyError(t *testing.T) {
	n := notify.NewEmail(notify.EmailConfig{Host: "smtp.example.com", Port: 587, From: "a@b", To: []string{"c@d"}})
	n.SetSendMail(func(string, smtp.Auth, string, []string, []byte) error {
		return errors.New("connection refused")
	})

	err := n.Send(context.Background(), testAlert())
	var nerr *notify.Error
	require.ErrorAs(t, err, &nerr)
	assert.Equal(t, "email", nerr.Channel)
}
