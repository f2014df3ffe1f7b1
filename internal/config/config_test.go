package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PROBE_BIND_ADDRESS", "PROBE_PORT", "PROBE_METRICS_ADDR", "SCHEDULER_POLL_INTERVAL", "SCHEDULER_MAX_ATTEMPTS"} {
		t.Setenv(key, "")
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.BindAddress != "0.0.0.0" || cfg.Port != 7001 {
		t.Fatalf("unexpected bind %s:%d", cfg.BindAddress, cfg.Port)
	}
	if cfg.MetricsAddr != "" {
		t.Fatalf("expected metrics disabled by default, got %q", cfg.MetricsAddr)
	}
	if cfg.SchedulerMaxAttempts != 5 {
		t.Fatalf("expected 5 attempts, got %d", cfg.SchedulerMaxAttempts)
	}
}

func TestLoadEnvFile(t *testing.T) {
	t.Setenv("PROBE_PORT", "")
	// godotenv never overrides variables that are already set, so clear it
	// through os.Unsetenv after t.Setenv has registered the restore.
	os.Unsetenv("PROBE_PORT")

	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("PROBE_PORT=9191\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Port != 9191 {
		t.Fatalf("expected port from env file, got %d", cfg.Port)
	}
}

func TestLoadMissingEnvFile(t *testing.T) {
	t.Setenv("PROBE_PORT", "")
	if _, err := Load(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("expected missing env file to be ignored, got %v", err)
	}
}

func TestLoadRejectsPortOutOfRange(t *testing.T) {
	t.Setenv("PROBE_PORT", "70000")
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error for out of range port")
	}
}
