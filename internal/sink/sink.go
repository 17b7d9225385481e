// Package sink provides event output targets for the telemetry logger.
//
// A sink renders one event to one destination. Sinks report I/O failures
// through their error return; the logger absorbs those errors and counts
// them so a broken destination can never crash instrumented agent code.
package sink

import (
	"fmt"
	"strings"

	"github.com/ashita-ai/kanshi/internal/model"
)

// Sink is a destination that renders events for human or machine consumption.
type Sink interface {
	// Name identifies the sink in diagnostics and error counters.
	Name() string

	// MinSeverity is the least severe event this sink accepts.
	MinSeverity() model.Severity

	// Write renders one event. Implementations must be safe for
	// concurrent use and must keep each event on a single line.
	Write(ev model.Event) error

	// Close flushes and releases the underlying resource.
	Close() error
}

// formatLine renders the human-readable one-line representation shared by
// the console and file sinks.
func formatLine(ev model.Event) string {
	var b strings.Builder
	b.WriteString(ev.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"))
	fmt.Fprintf(&b, " [%s] %s agent=%s", strings.ToUpper(string(ev.Severity)), ev.EventType, ev.AgentID)
	if ev.SessionID != "" {
		fmt.Fprintf(&b, " session=%s", ev.SessionID)
	}
	if ev.DurationMs != nil {
		fmt.Fprintf(&b, " duration_ms=%g", *ev.DurationMs)
	}
	b.WriteString(" ")
	b.WriteString(ev.Message)
	if len(ev.Metadata) > 0 {
		fmt.Fprintf(&b, " metadata=%v", ev.Metadata)
	}
	return b.String()
}
