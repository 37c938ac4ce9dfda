package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the on-disk YAML configuration.
//
// All duration-valued fields are Go duration strings (e.g. "30s", "10m")
// and are validated by Validate(); services receive parsed values through
// the typed accessors below.
type Config struct {
	Logging   LoggingConfig   `yaml:"logging"`
	Storage   StorageConfig   `yaml:"storage"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Notify    NotifyConfig    `yaml:"notify"`
	Email     EmailConfig     `yaml:"email"`
	InApp     InAppConfig     `yaml:"inapp"`
	Prefs     PrefsConfig     `yaml:"prefs"`
}

type LoggingConfig struct {
	Level   string      `yaml:"level"`
	Console bool        `yaml:"console"`
	File    LoggingFile `yaml:"file"`
}

type LoggingFile struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type StorageConfig struct {
	Path        string `yaml:"path"`
	BusyTimeout string `yaml:"busy_timeout,omitempty"`
}

// SchedulerConfig controls the trigger. Spec accepts a cron expression
// ("0 */12 * * *") or an interval ("12h").
type SchedulerConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Spec       string `yaml:"spec"`
	Timezone   string `yaml:"timezone,omitempty"`
	RunTimeout string `yaml:"run_timeout,omitempty"` // default 10m
}

type NotifyConfig struct {
	Workers  int    `yaml:"workers,omitempty"`  // concurrent email sends
	BaseURL  string `yaml:"base_url"`           // app base URL for deep links
	Category string `yaml:"category,omitempty"` // unsubscribe category
}

type EmailConfig struct {
	BaseURL    string `yaml:"base_url"`
	APIKey     string `yaml:"api_key"`
	From       string `yaml:"from"`
	RatePerSec int    `yaml:"rate_per_sec,omitempty"`
	Timeout    string `yaml:"timeout,omitempty"`
}

type InAppConfig struct {
	BaseURL  string `yaml:"base_url"`
	APIKey   string `yaml:"api_key"`
	Workflow string `yaml:"workflow,omitempty"`
	Timeout  string `yaml:"timeout,omitempty"`
}

type PrefsConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Timeout string `yaml:"timeout,omitempty"`
}

// Validate checks everything that can be checked without touching the
// network: duration fields parse, required endpoints are present when
// their feature is on.
func (c *Config) Validate() error {
	fields := []struct {
		path string
		raw  string
	}{
		{"storage.busy_timeout", c.Storage.BusyTimeout},
		{"scheduler.run_timeout", c.Scheduler.RunTimeout},
		{"email.timeout", c.Email.Timeout},
		{"inapp.timeout", c.InApp.Timeout},
		{"prefs.timeout", c.Prefs.Timeout},
	}
	for _, f := range fields {
		if _, err := parseDuration(f.path, f.raw); err != nil {
			return err
		}
	}
	return nil
}

// Typed duration accessors. They assume the config already passed Validate;
// an empty (or, post-Validate impossible, unparseable) value yields zero so
// the consuming service's own default applies.
func (c StorageConfig) BusyTimeoutDuration() time.Duration  { return durationOrZero(c.BusyTimeout) }
func (c SchedulerConfig) RunTimeoutDuration() time.Duration { return durationOrZero(c.RunTimeout) }
func (c EmailConfig) TimeoutDuration() time.Duration        { return durationOrZero(c.Timeout) }
func (c InAppConfig) TimeoutDuration() time.Duration        { return durationOrZero(c.Timeout) }
func (c PrefsConfig) TimeoutDuration() time.Duration        { return durationOrZero(c.Timeout) }

func parseDuration(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	switch {
	case err != nil:
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	case d < 0:
		return 0, fmt.Errorf("%s: duration %q must not be negative", path, raw)
	}
	return d, nil
}

func durationOrZero(raw string) time.Duration {
	d, err := parseDuration("", raw)
	if err != nil {
		return 0
	}
	return d
}
