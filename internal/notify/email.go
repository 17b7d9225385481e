package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/ashita-ai/kanshi/internal/model"
)

// Email sends alerts over SMTP. STARTTLS is negotiated automatically when
// the server offers it; plain auth is used only when a username is set.
type Email struct {
	host string
	port int
	user string
	pass string
	from string
	to   []string

	// sendMail is a seam for tests; defaults to smtp.SendMail.
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// EmailConfig holds SMTP settings for the email notifier.
type EmailConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	To       []string
}

// NewEmail creates an email notifier.
func NewEmail(cfg EmailConfig) *Email {
	return &Email{
		host:     cfg.Host,
		port:     cfg.Port,
		user:     cfg.User,
		pass:     cfg.Password,
		from:     cfg.From,
		to:       cfg.To,
		sendMail: smtp.SendMail,
	}
}

func (e *Email) Name() string { return "email" }

// SetSendMail overrides the SMTP transport. Tests only.
func (e *Email) SetSendMail(fn func(addr string, a smtp.Auth, from string, to []string, msg []byte) error) {
	e.sendMail = fn
}

func (e *Email) Send(ctx context.Context, alert model.Alert) error {
	subject := fmt.Sprintf("[kanshi] %s alert: %s", strings.ToUpper(string(alert.Severity)), alert.RuleName)
	body := fmt.Sprintf(
		"Alert rule %q fired at %s.\r\n\r\nMetric: %s\r\nValue: %g\r\nCondition: %s %g\r\n\r\n%s",
		alert.RuleName, alert.FiredAt.Format("2006-01-02T15:04:05Z07:00"),
		alert.MetricName, alert.Value, alert.Condition, alert.Threshold, alert.Message,
	)

	msg := fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s",
		e.from, strings.Join(e.to, ", "), subject, body,
	)

	addr := fmt.Sprintf("%s:%d", e.host, e.port)
	var auth smtp.Auth
	if e.user != "" {
		auth = smtp.PlainAuth("", e.user, e.pass, e.host)
	}

	// net/smtp has no context support; run the dial in a goroutine and race
	// it against ctx so a hung server cannot stall the dispatch fan-out.
	errCh := make(chan error, 1)
	go func() {
		errCh <- e.sendMail(addr, auth, e.from, e.to, []byte(msg))
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return &Error{Channel: e.Name(), Err: err}
		}
		return nil
	case <-ctx.Done():
		return &Error{Channel: e.Name(), Err: ctx.Err()}
	}
}
