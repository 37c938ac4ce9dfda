package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, `
logging:
  level: debug
  console: true
storage:
  path: ./taskpulse.db
  busy_timeout: 5s
scheduler:
  enabled: true
  spec: "0 */12 * * *"
  timezone: UTC
  run_timeout: 10m
notify:
  workers: 4
  base_url: https://app.example.com
email:
  base_url: https://mail.example.com
  api_key: secret
  from: compliance@example.com
`)

	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.Console {
		t.Fatalf("logging = %+v", cfg.Logging)
	}
	if cfg.Scheduler.Spec != "0 */12 * * *" {
		t.Fatalf("scheduler spec = %q", cfg.Scheduler.Spec)
	}
	if d := cfg.Scheduler.RunTimeoutDuration(); d != 10*time.Minute {
		t.Fatalf("run_timeout = %v", d)
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, `
scheduler:
  run_timeout: soon
`)
	if _, err := NewManager(path).Load(); err == nil {
		t.Fatal("expected error for invalid duration")
	}
}

func TestDurationFields(t *testing.T) {
	t.Parallel()
	if d, err := parseDuration("x", ""); err != nil || d != 0 {
		t.Fatalf("empty = %v, %v", d, err)
	}
	if d, err := parseDuration("x", " 90s "); err != nil || d != 90*time.Second {
		t.Fatalf("90s = %v, %v", d, err)
	}
	if _, err := parseDuration("x", "-1s"); err == nil {
		t.Fatal("negative must be rejected")
	}
	// Unset fields parse to zero so service defaults apply downstream.
	if d := (SchedulerConfig{}).RunTimeoutDuration(); d != 0 {
		t.Fatalf("unset run_timeout = %v, want 0", d)
	}
	if d := (EmailConfig{Timeout: "15s"}).TimeoutDuration(); d != 15*time.Second {
		t.Fatalf("timeout = %v", d)
	}
}
