package app

import (
	"fmt"
	"time"

	"jokeline/internal/broadcast"
	"jokeline/internal/config"
	"jokeline/internal/storage"
	"jokeline/internal/subscription"
	"jokeline/internal/task/scheduler"
	"jokeline/internal/transport/webhook"
	logx "jokeline/pkg/logx"
)

// broadcastJob is the scheduler entry name for the daily cycle.
const broadcastJob = "broadcast"

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled:      cfg.Logging.File.Enabled,
			Path:         cfg.Logging.File.Path,
			MaxAge:       config.MustDuration(cfg.Logging.File.MaxAge, 0),
			RotationTime: config.MustDuration(cfg.Logging.File.RotationTime, 0),
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	connect, err := config.ParseDurationOrDefault("storage.connect_timeout", sc.ConnectTimeout, 5*time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, 5*time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:           sc.Driver,
		DSN:              sc.DSN,
		SubscribersTable: sc.SubscribersTable,
		LedgerTable:      sc.LedgerTable,
		ConnectTimeout:   connect,
		BusyTimeout:      busy,
		MaxOpenConns:     sc.MaxOpenConns,
	}, nil
}

func mapBroadcastConfig(cfg *config.Config) (broadcast.Config, error) {
	mc := cfg.Messaging
	sendTimeout, err := config.ParseDurationOrDefault("messaging.send_timeout", mc.SendTimeout, 15*time.Second)
	if err != nil {
		return broadcast.Config{}, err
	}
	return broadcast.Config{
		Header:      mc.Header,
		Workers:     mc.Workers,
		RatePerSec:  mc.RatePerSec,
		SendTimeout: sendTimeout,
		Location:    cfg.Schedule.Location(),
	}, nil
}

func mapKeywords(cfg *config.Config) subscription.Keywords {
	kw := subscription.DefaultKeywords()
	if cfg.Keywords.Subscribe != "" {
		kw.Subscribe = cfg.Keywords.Subscribe
	}
	if len(cfg.Keywords.OptOut) > 0 {
		kw.OptOut = cfg.Keywords.OptOut
	}
	if len(cfg.Keywords.Help) > 0 {
		kw.Help = cfg.Keywords.Help
	}
	return kw
}

func mapWebhookOptions(cfg *config.Config) webhook.Options {
	return webhook.Options{
		WebhookPath:  cfg.HTTP.WebhookPath,
		PprofEnabled: cfg.Pprof.Enabled,
		PprofPrefix:  cfg.Pprof.Prefix,
		PprofToken:   cfg.Pprof.Token,
	}
}

func mapServerConfig(cfg *config.Config) (webhook.ServerConfig, error) {
	read, err := config.ParseDurationOrDefault("http.read_timeout", cfg.HTTP.ReadTimeout, 10*time.Second)
	if err != nil {
		return webhook.ServerConfig{}, err
	}
	write, err := config.ParseDurationOrDefault("http.write_timeout", cfg.HTTP.WriteTimeout, 10*time.Second)
	if err != nil {
		return webhook.ServerConfig{}, err
	}
	return webhook.ServerConfig{Addr: cfg.HTTP.Addr, ReadTimeout: read, WriteTimeout: write}, nil
}

// ScheduleSpec resolves the broadcast schedule and its per-cycle timeout.
func ScheduleSpec(cfg *config.Config) (string, time.Duration, error) {
	parsed, err := scheduler.BuildSpec(cfg.Schedule.Spec, cfg.Schedule.TimeOfDay, cfg.Schedule.DaysOfWeek)
	if err != nil {
		return "", 0, fmt.Errorf("schedule: %w", err)
	}
	timeout, err := config.ParseDurationOrDefault("schedule.timeout", cfg.Schedule.Timeout, 10*time.Minute)
	if err != nil {
		return "", 0, err
	}
	return parsed.CronSpec(), timeout, nil
}

// ValidateConfig runs the static config checks plus schedule parsing.
func ValidateConfig(cfg *config.Config) error {
	if err := config.Validate(cfg); err != nil {
		return err
	}
	spec, _, err := ScheduleSpec(cfg)
	if err != nil {
		return err
	}
	sched := scheduler.New(scheduler.Config{Timezone: cfg.Schedule.Timezone}, logx.Nop())
	if err := sched.Validate(spec); err != nil {
		return fmt.Errorf("schedule: %w", err)
	}
	return nil
}
