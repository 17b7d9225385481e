package config

import (
	"testing"
	"time"
)

func TestEnvIntValid(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	v, err := envInt("TEST_INT", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 42 {
		t.Fatalf("expected 42, got %d", v)
	}
}

func TestEnvIntFallback(t *testing.T) {
	// TEST_INT_MISSING is not set.
	v, err := envInt("TEST_INT_MISSING", 99)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 99 {
		t.Fatalf("expected fallback 99, got %d", v)
	}
}

func TestEnvIntInvalid(t *testing.T) {
	t.Setenv("TEST_INT_BAD", "abc")
	_, err := envInt("TEST_INT_BAD", 0)
	if err == nil {
		t.Fatal("expected error for non-integer value, got nil")
	}
	if got := err.Error(); got != `TEST_INT_BAD="abc" is not a valid integer` {
		t.Fatalf("unexpected error message: %s", got)
	}
}

func TestEnvBoolInvalid(t *testing.T) {
	t.Setenv("TEST_BOOL_BAD", "maybe")
	_, err := envBool("TEST_BOOL_BAD", false)
	if err == nil {
		t.Fatal("expected error for non-boolean value, got nil")
	}
	if got := err.Error(); got != `TEST_BOOL_BAD="maybe" is not a valid boolean` {
		t.Fatalf("unexpected error message: %s", got)
	}
}

func TestEnvDuration(t *testing.T) {
	t.Setenv("TEST_DUR", "90s")
	d, err := envDuration("TEST_DUR", time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d != 90*time.Second {
		t.Fatalf("expected 90s, got %v", d)
	}

	t.Setenv("TEST_DUR_BAD", "soon")
	if _, err := envDuration("TEST_DUR_BAD", time.Second); err == nil {
		t.Fatal("expected error for non-duration value, got nil")
	}
}

func TestEnvList(t *testing.T) {
	t.Setenv("TEST_LIST", "ops@example.com, oncall@example.com ,")
	got := envList("TEST_LIST")
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %v", got)
	}
	if got[0] != "ops@example.com" || got[1] != "oncall@example.com" {
		t.Fatalf("unexpected entries: %v", got)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("expected default log level info, got %q", cfg.LogLevel)
	}
	if cfg.HistogramCapacity != 1000 {
		t.Fatalf("expected default histogram capacity 1000, got %d", cfg.HistogramCapacity)
	}
	if cfg.CollectionInterval != 30*time.Second {
		t.Fatalf("expected default collection interval 30s, got %v", cfg.CollectionInterval)
	}
}

func TestLoadRejectsBadLevel(t *testing.T) {
	t.Setenv("KANSHI_LOG_LEVEL", "loud")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid log level, got nil")
	}
}

func TestValidateSMTPRequiresRecipients(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg.SMTPHost = "smtp.example.com"
	cfg.SMTPTo = nil
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when SMTP host set without recipients, got nil")
	}
}
