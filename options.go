package kanshi

import (
	"log/slog"
	"time"
)

// Option configures an App.
type Option func(*resolvedOptions)

// resolvedOptions holds all extension points after applying defaults.
// Unexported — callers use the With* functions.
type resolvedOptions struct {
	logger             *slog.Logger
	version            string
	logLevel           string
	console            *bool
	logFile            string
	jsonFile           string
	sqliteFile         string
	collectionInterval time.Duration
	systemMetrics      *bool
	extraSinks         []Sink
	extraNotifiers     []Notifier
	rules              []Rule
	skipDotenv         bool
}

// WithLogger sets the structured diagnostic logger for the App.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported in logs and OTEL resources.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithLogLevel overrides the minimum recorded severity from config
// (KANSHI_LOG_LEVEL env var).
func WithLogLevel(level string) Option {
	return func(o *resolvedOptions) { o.logLevel = level }
}

// WithConsole overrides console sink enablement from config
// (KANSHI_ENABLE_CONSOLE env var).
func WithConsole(enabled bool) Option {
	return func(o *resolvedOptions) { o.console = &enabled }
}

// WithLogFile overrides the rotating text log path from config
// (KANSHI_LOG_FILE env var). Empty disables the sink.
func WithLogFile(path string) Option {
	return func(o *resolvedOptions) { o.logFile = path }
}

// WithJSONFile overrides the JSON-lines log path from config
// (KANSHI_JSON_LOG_FILE env var). Empty disables the sink.
func WithJSONFile(path string) Option {
	return func(o *resolvedOptions) { o.jsonFile = path }
}

// WithSQLiteFile overrides the SQLite archive path from config
// (KANSHI_SQLITE_PATH env var). Empty disables the sink.
func WithSQLiteFile(path string) Option {
	return func(o *resolvedOptions) { o.sqliteFile = path }
}

// WithCollectionInterval overrides the alert evaluation and system metric
// sampling interval from config (KANSHI_COLLECTION_INTERVAL env var).
func WithCollectionInterval(d time.Duration) Option {
	return func(o *resolvedOptions) { o.collectionInterval = d }
}

// WithSystemMetrics overrides system metric sampling enablement from config
// (KANSHI_ENABLE_SYSTEM_METRICS env var).
func WithSystemMetrics(enabled bool) Option {
	return func(o *resolvedOptions) { o.systemMetrics = &enabled }
}

// WithSink registers an additional custom event destination alongside the
// config-driven sinks. May be repeated.
func WithSink(s Sink) Option {
	return func(o *resolvedOptions) { o.extraSinks = append(o.extraSinks, s) }
}

// WithNotifier registers an additional alert channel alongside the
// config-driven ones. May be repeated. Rules address it by its Name.
func WithNotifier(n Notifier) Option {
	return func(o *resolvedOptions) { o.extraNotifiers = append(o.extraNotifiers, n) }
}

// WithRule registers an alert rule in addition to any loaded from
// KANSHI_ALERT_RULES_FILE. May be repeated.
func WithRule(r Rule) Option {
	return func(o *resolvedOptions) { o.rules = append(o.rules, r) }
}

// WithoutDotenv skips loading a .env file during New. Tests use this to
// keep the environment hermetic.
func WithoutDotenv() Option {
	return func(o *resolvedOptions) { o.skipDotenv = true }
}
