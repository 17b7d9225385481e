package kanshi

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventType is the category of a telemetry event. The string values are the
// stable wire values of the JSON-lines schema.
type EventType string

const (
	EventAgentStart         EventType = "agent_start"
	EventAgentStop          EventType = "agent_stop"
	EventTaskStart          EventType = "task_start"
	EventTaskComplete       EventType = "task_complete"
	EventTaskError          EventType = "task_error"
	EventLLMCall            EventType = "llm_call"
	EventToolUse            EventType = "tool_use"
	EventAgentCommunication EventType = "agent_communication"
	EventPerformanceMetric  EventType = "performance_metric"
)

// Severity is an event or alert importance level.
type Severity string

const (
	SeverityDebug    Severity = "debug"
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Condition is the comparison an alert rule applies to a metric value.
type Condition string

const (
	GreaterThan Condition = "greater_than"
	LessThan    Condition = "less_than"
	Equals      Condition = "equals"
)

// Event is the public representation of one recorded telemetry event.
// It is a curated view of the internal record for use in extension
// interfaces. No internal package imports — safe to use from outside the
// module.
type Event struct {
	ID         uuid.UUID
	Timestamp  time.Time
	EventType  EventType
	AgentID    string
	SessionID  string
	Message    string
	Metadata   map[string]any
	DurationMs *float64
	Severity   Severity
}

// Rule binds a threshold condition over a metric series to notification
// channels, subject to a cooldown between firings.
type Rule struct {
	Name           string
	MetricName     string
	Tags           map[string]string
	Condition      Condition
	Threshold      float64
	DurationWindow time.Duration
	Severity       Severity
	CooldownPeriod time.Duration
	// Channels names the notifiers this rule dispatches to.
	// Empty means every registered notifier.
	Channels []string
}

// Alert is one firing of a rule.
type Alert struct {
	ID         uuid.UUID
	RuleName   string
	MetricName string
	Tags       map[string]string
	Value      float64
	Threshold  float64
	Condition  Condition
	Severity   Severity
	Message    string
	FiredAt    time.Time
}

// Stat is a point-in-time view of one metric series. Value holds the
// counter sum, last gauge value, or histogram mean; the percentile fields
// are populated for histograms only.
type Stat struct {
	Value float64
	Count int
	Mean  float64
	P50   float64
	P95   float64
	P99   float64
	Min   float64
	Max   float64
}

// MetricSnapshot pairs a series identity with its stats.
type MetricSnapshot struct {
	Name string
	Tags map[string]string
	Kind string
	Stat Stat
}

// Sink is a custom event destination plugged in via WithSink.
// Write must be safe for concurrent use and must not block for long; errors
// are absorbed and counted by the core, never surfaced to agent code.
type Sink interface {
	Name() string
	MinSeverity() Severity
	Write(ev Event) error
	Close() error
}

// Notifier is a custom alert channel plugged in via WithNotifier.
// Send must honor ctx cancellation; failures are logged and counted by the
// alert engine, never propagated to rule evaluation.
type Notifier interface {
	Name() string
	Send(ctx context.Context, alert Alert) error
}
