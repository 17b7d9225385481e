package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Condition is the comparison an alert rule applies to a metric value.
type Condition string

const (
	ConditionGreaterThan Condition = "greater_than"
	ConditionLessThan    Condition = "less_than"
	ConditionEquals      Condition = "equals"
)

// Evaluate applies the condition to a metric value and threshold.
// Unknown conditions never match.
func (c Condition) Evaluate(value, threshold float64) bool {
	switch c {
	case ConditionGreaterThan:
		return value > threshold
	case ConditionLessThan:
		return value < threshold
	case ConditionEquals:
		return value == threshold
	}
	return false
}

// AlertRule binds a condition over a metric series to notification channels.
// Rule state (armed/cooldown, last fired) lives in the alert engine, not here.
type AlertRule struct {
	Name           string            `json:"name"`
	MetricName     string            `json:"metric_name"`
	Tags           map[string]string `json:"tags,omitempty"`
	Condition      Condition         `json:"condition"`
	Threshold      float64           `json:"threshold"`
	DurationWindow time.Duration     `json:"duration_window,omitempty"`
	Severity       Severity          `json:"severity"`
	CooldownPeriod time.Duration     `json:"cooldown_period"`
	// Channels names the notifiers this rule dispatches to.
	// Empty means every registered notifier.
	Channels []string `json:"channels,omitempty"`
}

// Validate checks that the rule is well-formed.
func (r AlertRule) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("model: alert rule name is required")
	}
	if r.MetricName == "" {
		return fmt.Errorf("model: alert rule %q: metric_name is required", r.Name)
	}
	switch r.Condition {
	case ConditionGreaterThan, ConditionLessThan, ConditionEquals:
	default:
		return fmt.Errorf("model: alert rule %q: unknown condition %q", r.Name, r.Condition)
	}
	if r.Severity != "" && SeverityRank(r.Severity) == 0 {
		return fmt.Errorf("model: alert rule %q: unknown severity %q", r.Name, r.Severity)
	}
	if r.CooldownPeriod < 0 {
		return fmt.Errorf("model: alert rule %q: cooldown_period must not be negative", r.Name)
	}
	if r.DurationWindow < 0 {
		return fmt.Errorf("model: alert rule %q: duration_window must not be negative", r.Name)
	}
	return nil
}

// Alert is one firing of an alert rule.
type Alert struct {
	ID         uuid.UUID         `json:"id"`
	RuleName   string            `json:"rule_name"`
	MetricName string            `json:"metric_name"`
	Tags       map[string]string `json:"tags,omitempty"`
	Value      float64           `json:"value"`
	Threshold  float64           `json:"threshold"`
	Condition  Condition         `json:"condition"`
	Severity   Severity          `json:"severity"`
	Message    string            `json:"message"`
	FiredAt    time.Time         `json:"fired_at"`
}
