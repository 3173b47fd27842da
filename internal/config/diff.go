package config

import (
	"reflect"

	logx "jokeline/pkg/logx"
)

// SummarizeChange returns the changed top-level sections and safe structured
// fields describing the new values. Secrets (auth token, DSN) are never included.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 4)
	attrs := make([]logx.Field, 0, 12)

	if !reflect.DeepEqual(oldCfg.HTTP, newCfg.HTTP) {
		changed = append(changed, "http")
		attrs = append(attrs, logx.String("http.addr", newCfg.HTTP.Addr))
	}
	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}
	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
		attrs = append(attrs, logx.String("storage.driver", newCfg.Storage.Driver))
	}
	if !reflect.DeepEqual(oldCfg.Messaging, newCfg.Messaging) {
		changed = append(changed, "messaging")
		attrs = append(attrs,
			logx.Bool("messaging.dry_run", newCfg.Messaging.DryRun),
			logx.Int("messaging.workers", newCfg.Messaging.Workers),
			logx.Bool("messaging.token_set", newCfg.Messaging.AuthToken != ""),
		)
		if providerFields(oldCfg.Messaging) != providerFields(newCfg.Messaging) {
			changed = append(changed, "messaging.provider")
		}
	}
	if !reflect.DeepEqual(oldCfg.Content, newCfg.Content) {
		changed = append(changed, "content")
		attrs = append(attrs, logx.Int("content.retry_max", newCfg.Content.RetryMax))
	}
	if !reflect.DeepEqual(oldCfg.Schedule, newCfg.Schedule) {
		changed = append(changed, "schedule")
		attrs = append(attrs,
			logx.Bool("schedule.enabled", newCfg.Schedule.Enabled),
			logx.String("schedule.timezone", newCfg.Schedule.Timezone),
		)
	}
	if !reflect.DeepEqual(oldCfg.Keywords, newCfg.Keywords) {
		changed = append(changed, "keywords")
	}
	if !reflect.DeepEqual(oldCfg.Tracing, newCfg.Tracing) {
		changed = append(changed, "tracing")
	}
	if !reflect.DeepEqual(oldCfg.Pprof, newCfg.Pprof) {
		changed = append(changed, "pprof")
	}
	return changed, attrs
}

// RestartRequired lists sections that only take effect on restart.
func RestartRequired(sections []string) []string {
	var out []string
	for _, s := range sections {
		switch s {
		case "http", "storage", "messaging.provider", "tracing", "pprof":
			out = append(out, s)
		}
	}
	return out
}

// providerFields keeps the messaging fields bound when the sender and router
// are built. Header, workers, rate and send timeout are applied live.
func providerFields(m MessagingConfig) MessagingConfig {
	return MessagingConfig{
		AccountSID:    m.AccountSID,
		AuthToken:     m.AuthToken,
		From:          m.From,
		BaseURL:       m.BaseURL,
		DryRun:        m.DryRun,
		CountryPrefix: m.CountryPrefix,
		AddressLength: m.AddressLength,
	}
}
