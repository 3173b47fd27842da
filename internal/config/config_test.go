package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Content.RetryMax != 25 {
		t.Fatalf("retry_max = %d, want 25", cfg.Content.RetryMax)
	}
	if cfg.Messaging.CountryPrefix != "+1" || cfg.Messaging.AddressLength != 12 {
		t.Fatalf("unexpected address format: %q/%d", cfg.Messaging.CountryPrefix, cfg.Messaging.AddressLength)
	}
	if cfg.Schedule.Timezone != "US/Pacific" {
		t.Fatalf("timezone = %q", cfg.Schedule.Timezone)
	}
}

func TestLoadYAMLThenEnvOverride(t *testing.T) {
	p := writeFile(t, "jokeline.yaml", `
storage:
  driver: file
  dsn: /tmp/jokeline-store
content:
  retry_max: 7
keywords:
  subscribe: joke
`)
	t.Setenv("JOKELINE_CONTENT_RETRY_MAX", "9")
	t.Setenv("JOKELINE_SMS_FROM", "+15550001111")
	t.Setenv("JOKELINE_KEYWORD_OPT_OUT", "stop,halt")

	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.Driver != "file" || cfg.Storage.DSN != "/tmp/jokeline-store" {
		t.Fatalf("storage from file not applied: %+v", cfg.Storage)
	}
	if cfg.Content.RetryMax != 9 {
		t.Fatalf("retry_max = %d, want env override 9", cfg.Content.RetryMax)
	}
	if cfg.Keywords.Subscribe != "joke" {
		t.Fatalf("subscribe keyword = %q, want joke", cfg.Keywords.Subscribe)
	}
	if got := strings.Join(cfg.Keywords.OptOut, "|"); got != "stop|halt" {
		t.Fatalf("opt_out = %q", got)
	}
	if cfg.Messaging.From != "+15550001111" {
		t.Fatalf("from = %q", cfg.Messaging.From)
	}
	// untouched defaults survive the file overlay
	if cfg.HTTP.WebhookPath != "/sms" {
		t.Fatalf("webhook_path = %q", cfg.HTTP.WebhookPath)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	p := writeFile(t, "jokeline.json", `{"storage": {"driver": "file", "collection": "x"}}`)
	if _, err := Load(p); err == nil {
		t.Fatal("expected unknown field error")
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		c := Default()
		c.Messaging.DryRun = true
		return c
	}
	if err := Validate(valid()); err != nil {
		t.Fatalf("default dry-run config should validate: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"bad duration", func(c *Config) { c.Messaging.SendTimeout = "soon" }},
		{"bad tz", func(c *Config) { c.Schedule.Timezone = "Mars/Olympus" }},
		{"bad driver", func(c *Config) { c.Storage.Driver = "mongo" }},
		{"zero retry", func(c *Config) { c.Content.RetryMax = 0 }},
		{"missing credentials", func(c *Config) { c.Messaging.DryRun = false }},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }},
		{"short address", func(c *Config) { c.Messaging.AddressLength = 2 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			if err := Validate(c); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestSummarizeChangeHidesSecrets(t *testing.T) {
	a := Default()
	b := Default()
	b.Messaging.AuthToken = "secret"
	b.Content.RetryMax = 3

	sections, _ := SummarizeChange(a, b)
	if strings.Join(sections, ",") != "messaging,messaging.provider,content" {
		t.Fatalf("sections = %v", sections)
	}
	if got := RestartRequired(sections); len(got) != 1 || got[0] != "messaging.provider" {
		t.Fatalf("RestartRequired = %v", got)
	}
}

func TestRestartRequiredSkipsLiveMessagingFields(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(m *MessagingConfig)
		wantRestart bool
	}{
		{"header", func(m *MessagingConfig) { m.Header = "Pun of the day" }, false},
		{"workers", func(m *MessagingConfig) { m.Workers = 16 }, false},
		{"rate", func(m *MessagingConfig) { m.RatePerSec = 5 }, false},
		{"send timeout", func(m *MessagingConfig) { m.SendTimeout = "30s" }, false},
		{"account sid", func(m *MessagingConfig) { m.AccountSID = "AC123" }, true},
		{"from", func(m *MessagingConfig) { m.From = "+15550001111" }, true},
		{"base url", func(m *MessagingConfig) { m.BaseURL = "http://127.0.0.1:9" }, true},
		{"dry run", func(m *MessagingConfig) { m.DryRun = !m.DryRun }, true},
		{"country prefix", func(m *MessagingConfig) { m.CountryPrefix = "+44" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := Default()
			b := Default()
			tt.mutate(&b.Messaging)

			sections, _ := SummarizeChange(a, b)
			if len(sections) == 0 || sections[0] != "messaging" {
				t.Fatalf("sections = %v", sections)
			}
			got := RestartRequired(sections)
			if (len(got) > 0) != tt.wantRestart {
				t.Fatalf("RestartRequired = %v, want restart %v", got, tt.wantRestart)
			}
		})
	}
}
