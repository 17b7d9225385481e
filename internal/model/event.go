package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType represents the category of an agent telemetry event.
// The string values are the wire values written by the JSON-lines sink
// and must stay stable across versions (additive-only schema).
type EventType string

const (
	// Agent lifecycle events.
	EventAgentStart EventType = "agent_start"
	EventAgentStop  EventType = "agent_stop"

	// Task lifecycle events.
	EventTaskStart    EventType = "task_start"
	EventTaskComplete EventType = "task_complete"
	EventTaskError    EventType = "task_error"

	// Activity events.
	EventLLMCall            EventType = "llm_call"
	EventToolUse            EventType = "tool_use"
	EventAgentCommunication EventType = "agent_communication"
	EventPerformanceMetric  EventType = "performance_metric"
)

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	switch t {
	case EventAgentStart, EventAgentStop, EventTaskStart, EventTaskComplete,
		EventTaskError, EventLLMCall, EventToolUse, EventAgentCommunication,
		EventPerformanceMetric:
		return true
	}
	return false
}

// Severity is the importance level of an event.
type Severity string

const (
	SeverityDebug    Severity = "debug"
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// SeverityRank returns the numeric rank of a severity (higher = more severe).
// Only relative ordering matters — SeverityAtLeast uses >= comparison.
func SeverityRank(s Severity) int {
	switch s {
	case SeverityCritical:
		return 5
	case SeverityError:
		return 4
	case SeverityWarning:
		return 3
	case SeverityInfo:
		return 2
	case SeverityDebug:
		return 1
	default:
		return 0
	}
}

// SeverityAtLeast returns true if severity s is at least as severe as min.
func SeverityAtLeast(s, min Severity) bool {
	return SeverityRank(s) >= SeverityRank(min)
}

// ParseSeverity validates and normalizes a severity string.
func ParseSeverity(s string) (Severity, error) {
	sev := Severity(s)
	if SeverityRank(sev) == 0 {
		return "", fmt.Errorf("model: unknown severity %q", s)
	}
	return sev, nil
}

// DefaultSeverity returns the severity applied to an event type when the
// caller does not override it.
func DefaultSeverity(t EventType) Severity {
	if t == EventTaskError {
		return SeverityError
	}
	return SeverityInfo
}

// Event is one immutable record of something an agent did.
// Construct with NewEvent; never mutate after construction — sinks receive
// the record by value and the metadata map is cloned on creation.
//
// The JSON field names are the stable JSON-lines schema consumed by log
// aggregators. New fields may be added; existing ones never change.
type Event struct {
	ID         uuid.UUID      `json:"id"`
	Timestamp  time.Time      `json:"timestamp"`
	EventType  EventType      `json:"event_type"`
	AgentID    string         `json:"agent_id"`
	SessionID  string         `json:"session_id,omitempty"`
	Message    string         `json:"message"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	DurationMs *float64       `json:"duration_ms,omitempty"`
	Severity   Severity       `json:"severity"`
}

// NewEvent builds an Event with a fresh ID and the current UTC timestamp.
// The metadata map is shallow-cloned so later caller mutations cannot leak
// into already-emitted records. An empty severity gets the type's default.
func NewEvent(t EventType, agentID, message string, metadata map[string]any, sessionID string, durationMs *float64, severity Severity) Event {
	if severity == "" {
		severity = DefaultSeverity(t)
	}
	var md map[string]any
	if len(metadata) > 0 {
		md = make(map[string]any, len(metadata))
		for k, v := range metadata {
			md[k] = v
		}
	}
	return Event{
		ID:         uuid.New(),
		Timestamp:  time.Now().UTC(),
		EventType:  t,
		AgentID:    agentID,
		SessionID:  sessionID,
		Message:    message,
		Metadata:   md,
		DurationMs: durationMs,
		Severity:   severity,
	}
}
