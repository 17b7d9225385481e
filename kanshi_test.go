package kanshi_test

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"log/slog"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/kanshi"
)

func newApp(t *testing.T, opts ...kanshi.Option) *kanshi.App {
	t.Helper()
	base := []kanshi.Option{
		kanshi.WithoutDotenv(),
		kanshi.WithConsole(false),
		kanshi.WithLogger(slog.New(slog.DiscardHandler)),
	}
	app, err := kanshi.New(append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = app.Stop(ctx)
	})
	return app
}

func readJSONLines(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var out []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m))
		out = append(out, m)
	}
	require.NoError(t, sc.Err())
	return out
}

func TestTaskLifecycleWritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	app := newApp(t, kanshi.WithJSONFile(path))

	app.TaskStarted("agent-1", "crawl started", map[string]any{"url": "https://example.com"})
	app.TaskCompleted("agent-1", "crawl finished", 120, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, app.Stop(ctx))

	lines := readJSONLines(t, path)
	require.Len(t, lines, 2)

	assert.Equal(t, "task_start", lines[0]["event_type"])
	assert.Equal(t, "agent-1", lines[0]["agent_id"])
	assert.Equal(t, "https://example.com", lines[0]["metadata"].(map[string]any)["url"])
	assert.NotContains(t, lines[0], "duration_ms")

	assert.Equal(t, "task_complete", lines[1]["event_type"])
	assert.Equal(t, 120.0, lines[1]["duration_ms"])
	assert.Equal(t, "info", lines[1]["severity"])
}

func TestLogEventReturnsRecordAsWritten(t *testing.T) {
	app := newApp(t)

	dur := 42.5
	ev := app.LogEvent(kanshi.EventLLMCall, "agent-1", "completion", map[string]any{"model": "gpt-4"}, "sess-9", &dur, "")

	assert.NotEqual(t, "00000000-0000-0000-0000-000000000000", ev.ID.String())
	assert.Equal(t, kanshi.EventLLMCall, ev.EventType)
	assert.Equal(t, "sess-9", ev.SessionID)
	assert.Equal(t, kanshi.SeverityInfo, ev.Severity)
	require.NotNil(t, ev.DurationMs)
	assert.Equal(t, 42.5, *ev.DurationMs)
	assert.False(t, ev.Timestamp.IsZero())
}

func TestMetricsRoundTrip(t *testing.T) {
	app := newApp(t)

	for i := 0; i < 5; i++ {
		app.Increment("pages_crawled", 2, map[string]string{"agent": "a1"})
	}
	st, err := app.QueryMetric("pages_crawled", map[string]string{"agent": "a1"}, 0)
	require.NoError(t, err)
	assert.Equal(t, 10.0, st.Value)

	_, err = app.QueryMetric("never_written", nil, 0)
	assert.ErrorIs(t, err, kanshi.ErrNoMetric)

	app.RecordHistogram("latency_ms", 100, nil)
	app.RecordHistogram("latency_ms", 300, nil)
	st, err = app.QueryMetric("latency_ms", nil, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Count)
	assert.Equal(t, 200.0, st.Mean)

	snap := app.MetricsSnapshot()
	names := make([]string, 0, len(snap))
	for _, s := range snap {
		names = append(names, s.Name)
	}
	assert.Contains(t, names, "pages_crawled")
	assert.Contains(t, names, "latency_ms")

	app.ResetMetrics()
	_, err = app.QueryMetric("pages_crawled", map[string]string{"agent": "a1"}, 0)
	assert.ErrorIs(t, err, kanshi.ErrNoMetric)
}

func TestAgentActivityMirroredIntoMetrics(t *testing.T) {
	app := newApp(t)

	app.TaskCompleted("agent-1", "done", 250, nil)
	app.TaskError("agent-1", "boom", nil)

	st, err := app.QueryMetric("events_total", map[string]string{"event_type": "task_complete", "agent_id": "agent-1"}, 0)
	require.NoError(t, err)
	assert.Equal(t, 1.0, st.Value)

	st, err = app.QueryMetric("task_errors_total", map[string]string{"agent_id": "agent-1"}, 0)
	require.NoError(t, err)
	assert.Equal(t, 1.0, st.Value)

	st, err = app.QueryMetric("task_duration_ms", map[string]string{"agent_id": "agent-1"}, 0)
	require.NoError(t, err)
	assert.Equal(t, 250.0, st.Mean)
}

// memoryNotifier collects alerts for assertions.
type memoryNotifier struct {
	mu     sync.Mutex
	alerts []kanshi.Alert
}

func (m *memoryNotifier) Name() string { return "memory" }

func (m *memoryNotifier) Send(_ context.Context, a kanshi.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, a)
	return nil
}

func (m *memoryNotifier) all() []kanshi.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]kanshi.Alert(nil), m.alerts...)
}

func TestRuleFiresThroughCustomNotifier(t *testing.T) {
	n := &memoryNotifier{}
	app := newApp(t,
		kanshi.WithNotifier(n),
		kanshi.WithRule(kanshi.Rule{
			Name:           "queue-backlog",
			MetricName:     "queue_depth",
			Condition:      kanshi.GreaterThan,
			Threshold:      100,
			Severity:       kanshi.SeverityWarning,
			CooldownPeriod: time.Hour,
		}),
	)

	app.SetGauge("queue_depth", 50, nil)
	app.EvaluateAlerts(context.Background())
	assert.Empty(t, n.all())

	app.SetGauge("queue_depth", 150, nil)
	app.EvaluateAlerts(context.Background())

	fired := n.all()
	require.Len(t, fired, 1)
	assert.Equal(t, "queue-backlog", fired[0].RuleName)
	assert.Equal(t, 150.0, fired[0].Value)
	assert.Equal(t, kanshi.SeverityWarning, fired[0].Severity)

	active := app.ActiveAlerts()
	require.Len(t, active, 1)
	assert.Equal(t, fired[0].ID, active[0].ID)

	// Within cooldown the rule stays quiet even while still breached.
	app.EvaluateAlerts(context.Background())
	assert.Len(t, n.all(), 1)
}

func TestAlertFiringLandsInEventStream(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	app := newApp(t,
		kanshi.WithJSONFile(path),
		kanshi.WithRule(kanshi.Rule{
			Name:       "hot-loop",
			MetricName: "cpu_percent",
			Condition:  kanshi.GreaterThan,
			Threshold:  90,
			Severity:   kanshi.SeverityCritical,
		}),
	)

	app.SetGauge("cpu_percent", 99, nil)
	app.EvaluateAlerts(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, app.Stop(ctx))

	lines := readJSONLines(t, path)
	require.Len(t, lines, 1)
	assert.Equal(t, "performance_metric", lines[0]["event_type"])
	assert.Equal(t, "kanshi.alerts", lines[0]["agent_id"])
	assert.Equal(t, "critical", lines[0]["severity"])
	assert.Equal(t, "hot-loop", lines[0]["metadata"].(map[string]any)["alert_rule"])
}

// memorySink collects events for assertions.
type memorySink struct {
	mu     sync.Mutex
	events []kanshi.Event
}

func (m *memorySink) Name() string                 { return "memory" }
func (m *memorySink) MinSeverity() kanshi.Severity { return kanshi.SeverityDebug }
func (m *memorySink) Close() error                 { return nil }

func (m *memorySink) Write(ev kanshi.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func TestCustomSinkReceivesEvents(t *testing.T) {
	s := &memorySink{}
	app := newApp(t, kanshi.WithSink(s))

	app.ToolUse("agent-1", "web_search", "searching", nil)

	s.mu.Lock()
	defer s.mu.Unlock()
	require.Len(t, s.events, 1)
	assert.Equal(t, kanshi.EventToolUse, s.events[0].EventType)
	assert.Equal(t, "web_search", s.events[0].Metadata["tool_name"])
}

func TestRulesFileLoaded(t *testing.T) {
	dir := t.TempDir()
	rulesPath := filepath.Join(dir, "rules.json")
	require.NoError(t, os.WriteFile(rulesPath, []byte(`[
		{
			"name": "slow-llm",
			"metric_name": "llm_duration_ms",
			"condition": "greater_than",
			"threshold": 5000,
			"duration_window": "60s",
			"severity": "warning",
			"cooldown_period": "5m",
			"channels": ["memory"]
		}
	]`), 0o644))
	t.Setenv("KANSHI_ALERT_RULES_FILE", rulesPath)

	n := &memoryNotifier{}
	app := newApp(t, kanshi.WithNotifier(n))

	app.RecordHistogram("llm_duration_ms", 9000, nil)
	app.EvaluateAlerts(context.Background())

	fired := n.all()
	require.Len(t, fired, 1)
	assert.Equal(t, "slow-llm", fired[0].RuleName)
}

func TestRulesFileInvalid(t *testing.T) {
	dir := t.TempDir()
	rulesPath := filepath.Join(dir, "rules.json")
	require.NoError(t, os.WriteFile(rulesPath, []byte(`[{"name": "broken", "cooldown_period": "soon"}]`), 0o644))
	t.Setenv("KANSHI_ALERT_RULES_FILE", rulesPath)

	_, err := kanshi.New(
		kanshi.WithoutDotenv(),
		kanshi.WithConsole(false),
		kanshi.WithLogger(slog.New(slog.DiscardHandler)),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cooldown_period")
}

func TestInvalidRuleOptionRejected(t *testing.T) {
	_, err := kanshi.New(
		kanshi.WithoutDotenv(),
		kanshi.WithConsole(false),
		kanshi.WithLogger(slog.New(slog.DiscardHandler)),
		kanshi.WithRule(kanshi.Rule{Name: "no-metric"}),
	)
	require.Error(t, err)
}

func TestStartStop(t *testing.T) {
	app := newApp(t, kanshi.WithCollectionInterval(10*time.Millisecond), kanshi.WithSystemMetrics(true))

	app.Start(context.Background())

	require.Eventually(t, func() bool {
		_, err := app.QueryMetric("process_goroutines", nil, 0)
		return err == nil
	}, time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, app.Stop(ctx))
}
