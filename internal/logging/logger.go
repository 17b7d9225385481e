// Package logging implements the event logger façade: the single entry
// point agents call to record telemetry events.
//
// The logger owns the sink set for its lifetime. Fan-out happens under one
// mutex, so events from a single caller reach every sink in the order they
// were logged and no sink ever sees interleaved writes from the façade.
// Sink failures are strictly best-effort: counted into the registry's
// "sink_errors" series and reported on the diagnostic logger, never
// surfaced to the instrumented caller.
package logging

import (
	"log/slog"
	"sync"

	"github.com/ashita-ai/kanshi/internal/metrics"
	"github.com/ashita-ai/kanshi/internal/model"
	"github.com/ashita-ai/kanshi/internal/sink"
)

// Options configures a Logger.
type Options struct {
	// MinSeverity is the least severe event recorded at all.
	MinSeverity model.Severity

	// Sinks receive every record at or above their own minimum severity.
	Sinks []sink.Sink

	// Registry receives the sink_errors counter and, when AgentMetrics is
	// set, per-event activity metrics. Optional.
	Registry *metrics.Registry

	// Diag is the internal diagnostic logger. Nil falls back to slog.Default.
	Diag *slog.Logger

	// AgentMetrics mirrors events into registry counters and histograms so
	// alert rules can bind to agent activity without explicit instrumentation.
	AgentMetrics bool
}

// Logger fans event records out to the configured sinks.
type Logger struct {
	min          model.Severity
	sinks        []sink.Sink
	reg          *metrics.Registry
	diag         *slog.Logger
	agentMetrics bool

	mu sync.Mutex // serializes fan-out; preserves per-caller ordering
}

// New creates a Logger. The sink set is fixed for the logger's lifetime;
// reconfiguration means building a new Logger (and closing the old one).
func New(opts Options) *Logger {
	min := opts.MinSeverity
	if min == "" {
		min = model.SeverityInfo
	}
	diag := opts.Diag
	if diag == nil {
		diag = slog.Default()
	}
	return &Logger{
		min:          min,
		sinks:        opts.Sinks,
		reg:          opts.Registry,
		diag:         diag,
		agentMetrics: opts.AgentMetrics,
	}
}

// EventOpts carries the optional fields of a record.
type EventOpts struct {
	Metadata   map[string]any
	SessionID  string
	DurationMs *float64
	Severity   model.Severity // empty = event type's default
}

// LogEvent constructs an immutable record and pushes it to every sink whose
// minimum severity admits it. The returned Event is the record as written.
// Sink failures never propagate to the caller.
func (l *Logger) LogEvent(t model.EventType, agentID, message string, opts EventOpts) model.Event {
	ev := model.NewEvent(t, agentID, message, opts.Metadata, opts.SessionID, opts.DurationMs, opts.Severity)
	if !model.SeverityAtLeast(ev.Severity, l.min) {
		return ev
	}

	l.mu.Lock()
	for _, s := range l.sinks {
		if !model.SeverityAtLeast(ev.Severity, s.MinSeverity()) {
			continue
		}
		if err := s.Write(ev); err != nil {
			l.diag.Warn("logging: sink write failed", "sink", s.Name(), "error", err)
			if l.reg != nil {
				l.reg.Increment("sink_errors", 1, map[string]string{"sink": s.Name()})
			}
		}
	}
	l.mu.Unlock()

	if l.agentMetrics && l.reg != nil {
		l.mirrorMetrics(ev)
	}
	return ev
}

// mirrorMetrics translates one event into registry activity series.
func (l *Logger) mirrorMetrics(ev model.Event) {
	l.reg.Increment("events_total", 1, map[string]string{
		"event_type": string(ev.EventType),
		"agent_id":   ev.AgentID,
	})
	switch ev.EventType {
	case model.EventTaskComplete, model.EventTaskError:
		if ev.DurationMs != nil {
			l.reg.RecordHistogram("task_duration_ms", *ev.DurationMs, map[string]string{"agent_id": ev.AgentID})
		}
		if ev.EventType == model.EventTaskError {
			l.reg.Increment("task_errors_total", 1, map[string]string{"agent_id": ev.AgentID})
		}
	case model.EventLLMCall:
		if ev.DurationMs != nil {
			l.reg.RecordHistogram("llm_duration_ms", *ev.DurationMs, map[string]string{"agent_id": ev.AgentID})
		}
	}
}

// AgentStarted records an agent_start event.
func (l *Logger) AgentStarted(agentID, message string, metadata map[string]any) model.Event {
	return l.LogEvent(model.EventAgentStart, agentID, message, EventOpts{Metadata: metadata})
}

// AgentStopped records an agent_stop event.
func (l *Logger) AgentStopped(agentID, message string, metadata map[string]any) model.Event {
	return l.LogEvent(model.EventAgentStop, agentID, message, EventOpts{Metadata: metadata})
}

// TaskStarted records a task_start event.
func (l *Logger) TaskStarted(agentID, message string, metadata map[string]any) model.Event {
	return l.LogEvent(model.EventTaskStart, agentID, message, EventOpts{Metadata: metadata})
}

// TaskCompleted records a task_complete event with its duration.
func (l *Logger) TaskCompleted(agentID, message string, durationMs float64, metadata map[string]any) model.Event {
	return l.LogEvent(model.EventTaskComplete, agentID, message, EventOpts{Metadata: metadata, DurationMs: &durationMs})
}

// TaskError records a task_error event at error severity.
func (l *Logger) TaskError(agentID, message string, metadata map[string]any) model.Event {
	return l.LogEvent(model.EventTaskError, agentID, message, EventOpts{Metadata: metadata})
}

// LLMCall records an llm_call event with its duration.
func (l *Logger) LLMCall(agentID, message string, durationMs float64, metadata map[string]any) model.Event {
	return l.LogEvent(model.EventLLMCall, agentID, message, EventOpts{Metadata: metadata, DurationMs: &durationMs})
}

// ToolUse records a tool_use event; the tool name lands in metadata.
func (l *Logger) ToolUse(agentID, toolName, message string, metadata map[string]any) model.Event {
	md := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		md[k] = v
	}
	md["tool_name"] = toolName
	return l.LogEvent(model.EventToolUse, agentID, message, EventOpts{Metadata: md})
}

// AgentCommunication records a message from one agent to another.
func (l *Logger) AgentCommunication(fromAgentID, toAgentID, message string, metadata map[string]any) model.Event {
	md := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		md[k] = v
	}
	md["to_agent"] = toAgentID
	return l.LogEvent(model.EventAgentCommunication, fromAgentID, message, EventOpts{Metadata: md})
}

// PerformanceMetric records a performance_metric event and, when a registry
// is attached, mirrors the value into a histogram series of the same name.
func (l *Logger) PerformanceMetric(agentID, metricName string, value float64, metadata map[string]any) model.Event {
	md := make(map[string]any, len(metadata)+2)
	for k, v := range metadata {
		md[k] = v
	}
	md["metric_name"] = metricName
	md["value"] = value
	if l.reg != nil {
		l.reg.RecordHistogram(metricName, value, map[string]string{"agent_id": agentID})
	}
	return l.LogEvent(model.EventPerformanceMetric, agentID, metricName, EventOpts{Metadata: md})
}

// Close closes every sink, returning the first failure after attempting all.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var firstErr error
	for _, s := range l.sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
