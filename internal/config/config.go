// Package config loads and validates telemetry configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ashita-ai/kanshi/internal/model"
)

// Config holds all telemetry core configuration.
type Config struct {
	// Logging settings.
	LogLevel      string // Minimum severity recorded: debug|info|warning|error|critical.
	EnableConsole bool
	LogFilePath   string // Human-readable log file. Empty = disabled.
	JSONLogPath   string // JSON-lines log file. Empty = disabled.
	SQLitePath    string // SQLite archive database. Empty = disabled.
	MaxFileSize   int64  // Bytes before the text log rotates.
	BackupCount   int    // Rotated files retained; oldest dropped.

	// Metrics settings.
	CollectionInterval  time.Duration // Alert evaluation / system sampling tick.
	HistogramCapacity   int           // Samples retained per histogram series.
	EnableSystemMetrics bool
	EnableAgentMetrics  bool

	// Alerting settings.
	AlertRulesFile  string        // JSON file with an array of alert rules.
	DispatchTimeout time.Duration // Per-notifier send timeout.

	// Notification channels.
	SlackWebhookURL string
	WebhookURL      string
	SMTPHost        string
	SMTPPort        int
	SMTPUser        string
	SMTPPassword    string
	SMTPFrom        string
	SMTPTo          []string

	// OTEL settings.
	OTELEndpoint string
	ServiceName  string
	OTELInsecure bool
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (Config, error) {
	var errs []error

	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	maxFileSize, err := envInt("KANSHI_MAX_FILE_SIZE", 10*1024*1024)
	collect(err)
	backupCount, err := envInt("KANSHI_BACKUP_COUNT", 5)
	collect(err)
	histCap, err := envInt("KANSHI_HISTOGRAM_CAPACITY", 1000)
	collect(err)
	smtpPort, err := envInt("KANSHI_SMTP_PORT", 587)
	collect(err)
	interval, err := envDuration("KANSHI_COLLECTION_INTERVAL", 30*time.Second)
	collect(err)
	dispatchTimeout, err := envDuration("KANSHI_DISPATCH_TIMEOUT", 10*time.Second)
	collect(err)
	console, err := envBool("KANSHI_ENABLE_CONSOLE", true)
	collect(err)
	sysMetrics, err := envBool("KANSHI_ENABLE_SYSTEM_METRICS", false)
	collect(err)
	agentMetrics, err := envBool("KANSHI_ENABLE_AGENT_METRICS", true)
	collect(err)
	otelInsecure, err := envBool("OTEL_EXPORTER_INSECURE", false)
	collect(err)

	if len(errs) > 0 {
		return Config{}, fmt.Errorf("config: %w", errs[0])
	}

	cfg := Config{
		LogLevel:            envStr("KANSHI_LOG_LEVEL", "info"),
		EnableConsole:       console,
		LogFilePath:         envStr("KANSHI_LOG_FILE", ""),
		JSONLogPath:         envStr("KANSHI_JSON_LOG_FILE", ""),
		SQLitePath:          envStr("KANSHI_SQLITE_PATH", ""),
		MaxFileSize:         int64(maxFileSize),
		BackupCount:         backupCount,
		CollectionInterval:  interval,
		HistogramCapacity:   histCap,
		EnableSystemMetrics: sysMetrics,
		EnableAgentMetrics:  agentMetrics,
		AlertRulesFile:      envStr("KANSHI_ALERT_RULES_FILE", ""),
		DispatchTimeout:     dispatchTimeout,
		SlackWebhookURL:     envStr("KANSHI_SLACK_WEBHOOK_URL", ""),
		WebhookURL:          envStr("KANSHI_WEBHOOK_URL", ""),
		SMTPHost:            envStr("KANSHI_SMTP_HOST", ""),
		SMTPPort:            smtpPort,
		SMTPUser:            envStr("KANSHI_SMTP_USER", ""),
		SMTPPassword:        envStr("KANSHI_SMTP_PASSWORD", ""),
		SMTPFrom:            envStr("KANSHI_SMTP_FROM", "kanshi@localhost"),
		SMTPTo:              envList("KANSHI_SMTP_TO"),
		OTELEndpoint:        envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		ServiceName:         envStr("OTEL_SERVICE_NAME", "kanshi"),
		OTELInsecure:        otelInsecure,
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the configuration is internally consistent.
func (c Config) Validate() error {
	if _, err := model.ParseSeverity(c.LogLevel); err != nil {
		return fmt.Errorf("config: KANSHI_LOG_LEVEL: %w", err)
	}
	if c.MaxFileSize <= 0 {
		return fmt.Errorf("config: KANSHI_MAX_FILE_SIZE must be positive")
	}
	if c.BackupCount < 0 {
		return fmt.Errorf("config: KANSHI_BACKUP_COUNT must not be negative")
	}
	if c.HistogramCapacity <= 0 {
		return fmt.Errorf("config: KANSHI_HISTOGRAM_CAPACITY must be positive")
	}
	if c.CollectionInterval <= 0 {
		return fmt.Errorf("config: KANSHI_COLLECTION_INTERVAL must be positive")
	}
	if c.DispatchTimeout <= 0 {
		return fmt.Errorf("config: KANSHI_DISPATCH_TIMEOUT must be positive")
	}
	if c.SMTPHost != "" && len(c.SMTPTo) == 0 {
		return fmt.Errorf("config: KANSHI_SMTP_TO is required when KANSHI_SMTP_HOST is set")
	}
	return nil
}

// MinSeverity returns the configured log level as a model.Severity.
// Call Validate first; an invalid level falls back to info here.
func (c Config) MinSeverity() model.Severity {
	sev, err := model.ParseSeverity(c.LogLevel)
	if err != nil {
		return model.SeverityInfo
	}
	return sev
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid integer", key, v)
	}
	return n, nil
}

func envBool(key string, defaultVal bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s=%q is not a valid boolean", key, v)
	}
	return b, nil
}

func envDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid duration", key, v)
	}
	return d, nil
}
