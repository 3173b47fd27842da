package config

import (
	"fmt"
	"strings"
	"time"

	logx "jokeline/pkg/logx"
)

// Validate checks the config for values that would fail at runtime.
// Schedule expressions are checked by the scheduler package.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	durations := map[string]string{
		"http.read_timeout":       cfg.HTTP.ReadTimeout,
		"http.write_timeout":      cfg.HTTP.WriteTimeout,
		"http.shutdown_timeout":   cfg.HTTP.ShutdownTimeout,
		"logging.file.max_age":    cfg.Logging.File.MaxAge,
		"logging.file.rotation":   cfg.Logging.File.RotationTime,
		"storage.connect_timeout": cfg.Storage.ConnectTimeout,
		"storage.busy_timeout":    cfg.Storage.BusyTimeout,
		"messaging.send_timeout":  cfg.Messaging.SendTimeout,
		"content.fetch_timeout":   cfg.Content.FetchTimeout,
		"schedule.timeout":        cfg.Schedule.Timeout,
	}
	for k, v := range durations {
		if _, err := ParseDurationField(k, v); err != nil {
			return err
		}
	}

	if !logx.ValidLevel(cfg.Logging.Level) {
		return fmt.Errorf("logging.level: unknown level %q", cfg.Logging.Level)
	}
	if !strings.HasPrefix(strings.TrimSpace(cfg.HTTP.WebhookPath), "/") {
		return fmt.Errorf("http.webhook_path must start with '/'")
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "sqlite", "sqlite3", "postgres", "file":
		if strings.TrimSpace(cfg.Storage.DSN) == "" {
			return fmt.Errorf("storage.dsn is required for driver %q", cfg.Storage.Driver)
		}
	case "memory":
	default:
		return fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver)
	}
	if cfg.Storage.MaxOpenConns < 0 {
		return fmt.Errorf("storage.max_open_conns must be >= 0")
	}

	if !cfg.Messaging.DryRun {
		if strings.TrimSpace(cfg.Messaging.AccountSID) == "" || strings.TrimSpace(cfg.Messaging.AuthToken) == "" {
			return fmt.Errorf("messaging.account_sid and messaging.auth_token are required unless dry_run is set")
		}
		if strings.TrimSpace(cfg.Messaging.From) == "" {
			return fmt.Errorf("messaging.from is required unless dry_run is set")
		}
	}
	if cfg.Messaging.Workers < 0 || cfg.Messaging.RatePerSec < 0 {
		return fmt.Errorf("messaging.workers and messaging.rate_per_sec must be >= 0")
	}
	if cfg.Messaging.AddressLength <= len(cfg.Messaging.CountryPrefix) {
		return fmt.Errorf("messaging.address_length must be longer than country_prefix")
	}

	if cfg.Content.RetryMax <= 0 {
		return fmt.Errorf("content.retry_max must be > 0")
	}
	if strings.TrimSpace(cfg.Content.SourceURL) == "" {
		return fmt.Errorf("content.source_url is required")
	}

	if tz := strings.TrimSpace(cfg.Schedule.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("schedule.timezone: invalid %q: %w", tz, err)
		}
	}

	if strings.TrimSpace(cfg.Keywords.Subscribe) == "" {
		return fmt.Errorf("keywords.subscribe is required")
	}
	if cfg.Tracing.Enabled && strings.TrimSpace(cfg.Tracing.Endpoint) == "" {
		return fmt.Errorf("tracing.endpoint is required when tracing is enabled")
	}
	return nil
}

// Location resolves the schedule time zone (UTC when unset).
func (c ScheduleConfig) Location() *time.Location {
	tz := strings.TrimSpace(c.Timezone)
	if tz == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}
