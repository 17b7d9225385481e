// Package notify delivers alerts to external channels.
//
// Every notifier implements the one-method Send contract. Delivery failures
// are returned as errors for the alert engine to log and count; they are
// never fatal to rule evaluation.
package notify

import (
	"context"
	"fmt"

	"github.com/ashita-ai/kanshi/internal/model"
)

// Notifier is an adapter that delivers one alert to one external channel.
type Notifier interface {
	// Name identifies the channel in rule configuration and diagnostics.
	Name() string

	// Send delivers the alert. Implementations must honor ctx cancellation
	// so a hung endpoint cannot stall the caller past its deadline.
	Send(ctx context.Context, alert model.Alert) error
}

// Error wraps a delivery failure with its channel name.
type Error struct {
	Channel string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("notify: %s: %v", e.Channel, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
