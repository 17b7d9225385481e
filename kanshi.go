// Package kanshi is the public API for embedding the Kanshi agent telemetry
// core: structured event logging, in-process metrics, and threshold alerting.
//
// Host applications construct one App per process and hand it to the
// components that emit telemetry:
//
//	app, err := kanshi.New(
//	    kanshi.WithLogger(logger),
//	    kanshi.WithJSONFile("events.jsonl"),
//	    kanshi.WithRule(kanshi.Rule{
//	        Name: "high-cpu", MetricName: "cpu_percent",
//	        Condition: kanshi.GreaterThan, Threshold: 80,
//	        CooldownPeriod: time.Minute,
//	    }),
//	)
//	if err != nil { ... }
//	app.Start(ctx)
//	defer app.Stop(ctx)
//
//	app.TaskStarted("agent-1", "crawling", nil)
//	app.Increment("pages_crawled", 1, map[string]string{"agent": "agent-1"})
//
// The import graph enforces a strict no-cycle rule: kanshi (root) imports
// internal/*, but internal/* never imports kanshi (root). Public types
// (Event, Rule, Alert, etc.) are standalone structs with no internal
// imports; conversion helpers live here because this is the only file that
// sees both sides of the boundary.
package kanshi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"log/slog"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ashita-ai/kanshi/internal/alert"
	"github.com/ashita-ai/kanshi/internal/config"
	"github.com/ashita-ai/kanshi/internal/logging"
	"github.com/ashita-ai/kanshi/internal/metrics"
	"github.com/ashita-ai/kanshi/internal/model"
	"github.com/ashita-ai/kanshi/internal/notify"
	"github.com/ashita-ai/kanshi/internal/sink"
	"github.com/ashita-ai/kanshi/internal/sysmetrics"
	"github.com/ashita-ai/kanshi/internal/telemetry"
)

// ErrNoMetric is returned by QueryMetric when the requested series has no
// data yet. Absence is an expected state, not a failure.
var ErrNoMetric = errors.New("kanshi: no such metric series")

// App is the telemetry core lifecycle. Construct with New(), start the
// background loops with Start(), and tear down with Stop(). App has no
// public fields — use New() options to configure it.
type App struct {
	cfg          config.Config
	reg          *metrics.Registry
	logger       *logging.Logger
	engine       *alert.Engine
	collector    *sysmetrics.Collector // nil unless system metrics enabled
	otelShutdown telemetry.Shutdown
	diag         *slog.Logger
	version      string
}

// New initialises the telemetry core. It opens every configured sink,
// registers rules and notifiers, and returns a ready-to-start App. It does
// NOT start any goroutines — call Start(). Configuration problems
// (unwritable paths, invalid levels, malformed rules) fail here, and only
// here: after New succeeds, nothing the core does can fail the host.
func New(opts ...Option) (*App, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	diag := o.logger
	if diag == nil {
		diag = slog.Default()
	}

	// Load .env file if present (non-fatal; production won't have one).
	if !o.skipDotenv {
		_ = godotenv.Load()
	}

	// Load configuration (env vars), then apply option overrides.
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	if o.console != nil {
		cfg.EnableConsole = *o.console
	}
	if o.logFile != "" {
		cfg.LogFilePath = o.logFile
	}
	if o.jsonFile != "" {
		cfg.JSONLogPath = o.jsonFile
	}
	if o.sqliteFile != "" {
		cfg.SQLitePath = o.sqliteFile
	}
	if o.collectionInterval != 0 {
		cfg.CollectionInterval = o.collectionInterval
	}
	if o.systemMetrics != nil {
		cfg.EnableSystemMetrics = *o.systemMetrics
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	diag.Info("kanshi starting", "version", version, "level", cfg.LogLevel)

	reg := metrics.NewRegistry(cfg.HistogramCapacity)

	// Initialize OpenTelemetry export (no-op when no endpoint configured).
	otelShutdown, err := telemetry.Init(context.Background(), cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	if cfg.OTELEndpoint != "" {
		if err := telemetry.BridgeRegistry(reg); err != nil {
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("telemetry: %w", err)
		}
		diag.Info("otel export: enabled", "endpoint", cfg.OTELEndpoint)
	}

	// Assemble sinks. Any unopenable destination is fatal here.
	min := cfg.MinSeverity()
	var sinks []sink.Sink
	if cfg.EnableConsole {
		sinks = append(sinks, sink.NewConsole(min, os.Stdout, os.Stderr))
	}
	if cfg.LogFilePath != "" {
		fs, err := sink.NewFile(cfg.LogFilePath, min, cfg.MaxFileSize, cfg.BackupCount)
		if err != nil {
			_ = otelShutdown(context.Background())
			return nil, err
		}
		sinks = append(sinks, fs)
	}
	if cfg.JSONLogPath != "" {
		js, err := sink.NewJSONL(cfg.JSONLogPath, min)
		if err != nil {
			closeSinks(sinks)
			_ = otelShutdown(context.Background())
			return nil, err
		}
		sinks = append(sinks, js)
	}
	if cfg.SQLitePath != "" {
		ss, err := sink.NewSQLite(cfg.SQLitePath, min)
		if err != nil {
			closeSinks(sinks)
			_ = otelShutdown(context.Background())
			return nil, err
		}
		sinks = append(sinks, ss)
	}
	for _, s := range o.extraSinks {
		sinks = append(sinks, &sinkAdapter{s: s})
	}

	logger := logging.New(logging.Options{
		MinSeverity:  min,
		Sinks:        sinks,
		Registry:     reg,
		Diag:         diag,
		AgentMetrics: cfg.EnableAgentMetrics,
	})

	// Assemble the alert engine: config-driven notifiers first, then
	// caller-provided ones.
	engine := alert.NewEngine(reg, diag, cfg.CollectionInterval, cfg.DispatchTimeout)
	if cfg.SlackWebhookURL != "" {
		engine.RegisterNotifier(notify.NewSlack(cfg.SlackWebhookURL, nil))
		diag.Info("notifier: slack enabled")
	}
	if cfg.WebhookURL != "" {
		engine.RegisterNotifier(notify.NewWebhook(cfg.WebhookURL, nil))
		diag.Info("notifier: webhook enabled")
	}
	if cfg.SMTPHost != "" {
		engine.RegisterNotifier(notify.NewEmail(notify.EmailConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			User:     cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			To:       cfg.SMTPTo,
		}))
		diag.Info("notifier: email enabled", "host", cfg.SMTPHost)
	}
	for _, n := range o.extraNotifiers {
		engine.RegisterNotifier(&notifierAdapter{n: n})
	}

	// Every firing also lands in the event stream, so sinks capture alert
	// history alongside agent activity.
	engine.SetFireHook(func(a model.Alert) {
		logger.LogEvent(model.EventPerformanceMetric, "kanshi.alerts", a.Message, logging.EventOpts{
			Severity: a.Severity,
			Metadata: map[string]any{
				"alert_id":   a.ID.String(),
				"alert_rule": a.RuleName,
				"metric":     a.MetricName,
				"value":      a.Value,
				"threshold":  a.Threshold,
			},
		})
	})

	// Register rules: file first, then options.
	if cfg.AlertRulesFile != "" {
		rules, err := loadRulesFile(cfg.AlertRulesFile)
		if err != nil {
			logger.Close()
			_ = otelShutdown(context.Background())
			return nil, err
		}
		for _, r := range rules {
			if err := engine.AddRule(ruleToInternal(r)); err != nil {
				logger.Close()
				_ = otelShutdown(context.Background())
				return nil, err
			}
		}
		diag.Info("alert rules loaded", "file", cfg.AlertRulesFile, "count", len(rules))
	}
	for _, r := range o.rules {
		if err := engine.AddRule(ruleToInternal(r)); err != nil {
			logger.Close()
			_ = otelShutdown(context.Background())
			return nil, err
		}
	}

	app := &App{
		cfg:          cfg,
		reg:          reg,
		logger:       logger,
		engine:       engine,
		otelShutdown: otelShutdown,
		diag:         diag,
		version:      version,
	}
	if cfg.EnableSystemMetrics {
		app.collector = sysmetrics.NewCollector(reg, diag, cfg.CollectionInterval)
	}
	return app, nil
}

func closeSinks(sinks []sink.Sink) {
	for _, s := range sinks {
		_ = s.Close()
	}
}

// Start launches the background loops: alert evaluation and, when enabled,
// system metric sampling. Event logging and metric writes work before
// Start; only the periodic machinery needs it.
func (a *App) Start(ctx context.Context) {
	a.engine.Start(ctx)
	if a.collector != nil {
		a.collector.Start(ctx)
	}
	a.diag.Info("kanshi started", "interval", a.cfg.CollectionInterval)
}

// Stop gracefully halts the background loops (letting an in-flight
// evaluation tick finish), flushes the OTEL exporter, and closes every
// sink. Bounded by ctx.
func (a *App) Stop(ctx context.Context) error {
	var firstErr error
	if err := a.engine.Stop(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	if a.collector != nil {
		if err := a.collector.Stop(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := a.otelShutdown(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := a.logger.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	a.diag.Info("kanshi stopped")
	return firstErr
}

// --- Event logging ---

// LogEvent records one event. Metadata, session, duration, and severity are
// optional; an empty severity takes the event type's default. Sink failures
// never propagate — this method cannot fail the caller.
func (a *App) LogEvent(t EventType, agentID, message string, metadata map[string]any, sessionID string, durationMs *float64, severity Severity) Event {
	ev := a.logger.LogEvent(model.EventType(t), agentID, message, logging.EventOpts{
		Metadata:   metadata,
		SessionID:  sessionID,
		DurationMs: durationMs,
		Severity:   model.Severity(severity),
	})
	return eventToPublic(ev)
}

// AgentStarted records an agent_start event.
func (a *App) AgentStarted(agentID, message string, metadata map[string]any) Event {
	return eventToPublic(a.logger.AgentStarted(agentID, message, metadata))
}

// AgentStopped records an agent_stop event.
func (a *App) AgentStopped(agentID, message string, metadata map[string]any) Event {
	return eventToPublic(a.logger.AgentStopped(agentID, message, metadata))
}

// TaskStarted records a task_start event.
func (a *App) TaskStarted(agentID, message string, metadata map[string]any) Event {
	return eventToPublic(a.logger.TaskStarted(agentID, message, metadata))
}

// TaskCompleted records a task_complete event with its duration.
func (a *App) TaskCompleted(agentID, message string, durationMs float64, metadata map[string]any) Event {
	return eventToPublic(a.logger.TaskCompleted(agentID, message, durationMs, metadata))
}

// TaskError records a task_error event at error severity.
func (a *App) TaskError(agentID, message string, metadata map[string]any) Event {
	return eventToPublic(a.logger.TaskError(agentID, message, metadata))
}

// LLMCall records an llm_call event with its duration.
func (a *App) LLMCall(agentID, message string, durationMs float64, metadata map[string]any) Event {
	return eventToPublic(a.logger.LLMCall(agentID, message, durationMs, metadata))
}

// ToolUse records a tool_use event.
func (a *App) ToolUse(agentID, toolName, message string, metadata map[string]any) Event {
	return eventToPublic(a.logger.ToolUse(agentID, toolName, message, metadata))
}

// AgentCommunication records a message from one agent to another.
func (a *App) AgentCommunication(fromAgentID, toAgentID, message string, metadata map[string]any) Event {
	return eventToPublic(a.logger.AgentCommunication(fromAgentID, toAgentID, message, metadata))
}

// PerformanceMetric records a performance_metric event and feeds the value
// into a histogram series of the same name.
func (a *App) PerformanceMetric(agentID, metricName string, value float64, metadata map[string]any) Event {
	return eventToPublic(a.logger.PerformanceMetric(agentID, metricName, value, metadata))
}

// --- Metrics ---

// Increment adds amount to a counter series, creating it on first write.
func (a *App) Increment(name string, amount float64, tags map[string]string) {
	a.reg.Increment(name, amount, tags)
}

// SetGauge overwrites the last-set value of a gauge series.
func (a *App) SetGauge(name string, value float64, tags map[string]string) {
	a.reg.SetGauge(name, value, tags)
}

// RecordHistogram appends a sample to a bounded histogram series.
func (a *App) RecordHistogram(name string, value float64, tags map[string]string) {
	a.reg.RecordHistogram(name, value, tags)
}

// QueryMetric returns the current stats of one series. window narrows
// histogram aggregation; zero means all retained samples. A series with no
// data yields ErrNoMetric.
func (a *App) QueryMetric(name string, tags map[string]string, window time.Duration) (Stat, error) {
	st, err := a.reg.Query(name, tags, window)
	if err != nil {
		if errors.Is(err, metrics.ErrNoSeries) {
			return Stat{}, ErrNoMetric
		}
		return Stat{}, err
	}
	return statToPublic(st), nil
}

// MetricsSnapshot returns an immutable copy of every series, sorted by name.
func (a *App) MetricsSnapshot() []MetricSnapshot {
	snap := a.reg.Snapshot()
	out := make([]MetricSnapshot, len(snap))
	for i, s := range snap {
		out[i] = MetricSnapshot{
			Name: s.Name,
			Tags: s.Tags,
			Kind: string(s.Stat.Kind),
			Stat: statToPublic(s.Stat),
		}
	}
	return out
}

// ResetMetrics drops every metric series. Intended for test isolation.
func (a *App) ResetMetrics() { a.reg.Reset() }

// PrometheusCollector returns a collector over the metric registry for
// hosts that already expose a scrape endpoint.
func (a *App) PrometheusCollector() prometheus.Collector {
	return metrics.NewCollector(a.reg, "kanshi")
}

// --- Alerting ---

// AddRule validates and registers an alert rule at runtime.
func (a *App) AddRule(r Rule) error {
	return a.engine.AddRule(ruleToInternal(r))
}

// ActiveAlerts returns the most recent firing of each rule that has fired.
func (a *App) ActiveAlerts() []Alert {
	internal := a.engine.ActiveAlerts()
	out := make([]Alert, len(internal))
	for i, al := range internal {
		out[i] = alertToPublic(al)
	}
	return out
}

// EvaluateAlerts runs a single evaluation tick synchronously. The periodic
// loop does this automatically after Start; explicit ticks are for tests
// and for hosts that drive evaluation themselves.
func (a *App) EvaluateAlerts(ctx context.Context) {
	a.engine.EvaluateOnce(ctx)
}

// --- Conversions and adapters (the only code that sees both sides) ---

func eventToPublic(ev model.Event) Event {
	return Event{
		ID:         ev.ID,
		Timestamp:  ev.Timestamp,
		EventType:  EventType(ev.EventType),
		AgentID:    ev.AgentID,
		SessionID:  ev.SessionID,
		Message:    ev.Message,
		Metadata:   ev.Metadata,
		DurationMs: ev.DurationMs,
		Severity:   Severity(ev.Severity),
	}
}

func statToPublic(st metrics.Stat) Stat {
	return Stat{
		Value: st.Value,
		Count: st.Count,
		Mean:  st.Mean,
		P50:   st.P50,
		P95:   st.P95,
		P99:   st.P99,
		Min:   st.Min,
		Max:   st.Max,
	}
}

func ruleToInternal(r Rule) model.AlertRule {
	return model.AlertRule{
		Name:           r.Name,
		MetricName:     r.MetricName,
		Tags:           r.Tags,
		Condition:      model.Condition(r.Condition),
		Threshold:      r.Threshold,
		DurationWindow: r.DurationWindow,
		Severity:       model.Severity(r.Severity),
		CooldownPeriod: r.CooldownPeriod,
		Channels:       r.Channels,
	}
}

func alertToPublic(al model.Alert) Alert {
	return Alert{
		ID:         al.ID,
		RuleName:   al.RuleName,
		MetricName: al.MetricName,
		Tags:       al.Tags,
		Value:      al.Value,
		Threshold:  al.Threshold,
		Condition:  Condition(al.Condition),
		Severity:   Severity(al.Severity),
		Message:    al.Message,
		FiredAt:    al.FiredAt,
	}
}

// sinkAdapter bridges a caller-provided Sink into the internal interface.
type sinkAdapter struct {
	s Sink
}

func (a *sinkAdapter) Name() string { return a.s.Name() }

func (a *sinkAdapter) MinSeverity() model.Severity {
	return model.Severity(a.s.MinSeverity())
}

func (a *sinkAdapter) Write(ev model.Event) error {
	return a.s.Write(eventToPublic(ev))
}

func (a *sinkAdapter) Close() error { return a.s.Close() }

// notifierAdapter bridges a caller-provided Notifier into the internal
// interface.
type notifierAdapter struct {
	n Notifier
}

func (a *notifierAdapter) Name() string { return a.n.Name() }

func (a *notifierAdapter) Send(ctx context.Context, al model.Alert) error {
	return a.n.Send(ctx, alertToPublic(al))
}

// --- Alert rules file ---

// ruleFileEntry is the JSON shape of one rule in KANSHI_ALERT_RULES_FILE.
// Durations are Go duration strings ("60s", "5m").
type ruleFileEntry struct {
	Name           string            `json:"name"`
	MetricName     string            `json:"metric_name"`
	Tags           map[string]string `json:"tags,omitempty"`
	Condition      string            `json:"condition"`
	Threshold      float64           `json:"threshold"`
	DurationWindow string            `json:"duration_window,omitempty"`
	Severity       string            `json:"severity,omitempty"`
	CooldownPeriod string            `json:"cooldown_period,omitempty"`
	Channels       []string          `json:"channels,omitempty"`
}

func loadRulesFile(path string) ([]Rule, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("alert rules file: %w", err)
	}
	var entries []ruleFileEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("alert rules file %s: %w", path, err)
	}

	rules := make([]Rule, 0, len(entries))
	for i, e := range entries {
		r := Rule{
			Name:       e.Name,
			MetricName: e.MetricName,
			Tags:       e.Tags,
			Condition:  Condition(e.Condition),
			Threshold:  e.Threshold,
			Severity:   Severity(e.Severity),
			Channels:   e.Channels,
		}
		if e.DurationWindow != "" {
			d, err := time.ParseDuration(e.DurationWindow)
			if err != nil {
				return nil, fmt.Errorf("alert rules file %s: rule %d: duration_window: %w", path, i, err)
			}
			r.DurationWindow = d
		}
		if e.CooldownPeriod != "" {
			d, err := time.ParseDuration(e.CooldownPeriod)
			if err != nil {
				return nil, fmt.Errorf("alert rules file %s: rule %d: cooldown_period: %w", path, i, err)
			}
			r.CooldownPeriod = d
		}
		rules = append(rules, r)
	}
	return rules, nil
}
