package model_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/kanshi/internal/model"
)

func TestSeverityRank(t *testing.T) {
	// Verify strict ordering: critical > error > warning > info > debug.
	// Unknown severities must rank below debug.
	tests := []struct {
		sev  model.Severity
		rank int
	}{
		{model.SeverityCritical, 5},
		{model.SeverityError, 4},
		{model.SeverityWarning, 3},
		{model.SeverityInfo, 2},
		{model.SeverityDebug, 1},
		{model.Severity("unknown"), 0},
		{model.Severity(""), 0},
	}
	for _, tt := range tests {
		t.Run(string(tt.sev), func(t *testing.T) {
			assert.Equal(t, tt.rank, model.SeverityRank(tt.sev), "SeverityRank(%q)", tt.sev)
		})
	}

	assert.True(t, model.SeverityAtLeast(model.SeverityError, model.SeverityWarning))
	assert.True(t, model.SeverityAtLeast(model.SeverityInfo, model.SeverityInfo))
	assert.False(t, model.SeverityAtLeast(model.SeverityDebug, model.SeverityInfo))
}

func TestParseSeverity(t *testing.T) {
	sev, err := model.ParseSeverity("warning")
	require.NoError(t, err)
	assert.Equal(t, model.SeverityWarning, sev)

	_, err = model.ParseSeverity("loud")
	require.Error(t, err)
}

func TestDefaultSeverity(t *testing.T) {
	assert.Equal(t, model.SeverityError, model.DefaultSeverity(model.EventTaskError))
	assert.Equal(t, model.SeverityInfo, model.DefaultSeverity(model.EventTaskStart))
	assert.Equal(t, model.SeverityInfo, model.DefaultSeverity(model.EventPerformanceMetric))
}

func TestEventTypeValid(t *testing.T) {
	for _, et := range []model.EventType{
		model.EventAgentStart, model.EventAgentStop, model.EventTaskStart,
		model.EventTaskComplete, model.EventTaskError, model.EventLLMCall,
		model.EventToolUse, model.EventAgentCommunication, model.EventPerformanceMetric,
	} {
		assert.True(t, et.Valid(), "expected valid: %q", et)
	}
	assert.False(t, model.EventType("agent_reboot").Valid())
}

func TestNewEventClonesMetadata(t *testing.T) {
	md := map[string]any{"tool": "search"}
	ev := model.NewEvent(model.EventToolUse, "a1", "used search", md, "s1", nil, "")

	// Mutating the caller's map after creation must not affect the record.
	md["tool"] = "overwritten"
	assert.Equal(t, "search", ev.Metadata["tool"])

	assert.NotEqual(t, ev.ID.String(), "00000000-0000-0000-0000-000000000000")
	assert.Equal(t, model.SeverityInfo, ev.Severity)
	assert.Equal(t, "s1", ev.SessionID)
	assert.WithinDuration(t, time.Now().UTC(), ev.Timestamp, 5*time.Second)
}

func TestEventJSONRoundTrip(t *testing.T) {
	dur := 120.0
	ev := model.NewEvent(model.EventTaskComplete, "a1", "done",
		map[string]any{"tokens": 42.0}, "s1", &dur, "")

	raw, err := json.Marshal(ev)
	require.NoError(t, err)

	// Wire field names are part of the stable JSON-lines schema.
	var wire map[string]any
	require.NoError(t, json.Unmarshal(raw, &wire))
	assert.Equal(t, "task_complete", wire["event_type"])
	assert.Equal(t, "a1", wire["agent_id"])
	assert.Equal(t, "s1", wire["session_id"])
	assert.Equal(t, 120.0, wire["duration_ms"])
	assert.Equal(t, "info", wire["severity"])
	assert.Contains(t, wire, "timestamp")
	assert.Contains(t, wire, "message")

	var back model.Event
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, ev.ID, back.ID)
	assert.Equal(t, ev.EventType, back.EventType)
	assert.Equal(t, ev.Metadata, back.Metadata)
	require.NotNil(t, back.DurationMs)
	assert.Equal(t, 120.0, *back.DurationMs)
}

func TestEventOmitsOptionalFields(t *testing.T) {
	ev := model.NewEvent(model.EventAgentStart, "a1", "up", nil, "", nil, "")
	raw, err := json.Marshal(ev)
	require.NoError(t, err)

	var wire map[string]any
	require.NoError(t, json.Unmarshal(raw, &wire))
	assert.NotContains(t, wire, "session_id")
	assert.NotContains(t, wire, "metadata")
	assert.NotContains(t, wire, "duration_ms")
}
