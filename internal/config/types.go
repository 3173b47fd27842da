package config

// Config is the full runtime configuration.
//
// Every field can come from the optional config file (JSON or YAML, keyed by the
// json tags) and be overridden by environment variables (env tags, prefixed with
// JOKELINE_). Durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	HTTP      HTTPConfig      `json:"http" envPrefix:"HTTP_"`
	Logging   LoggingConfig   `json:"logging" envPrefix:"LOG_"`
	Storage   StorageConfig   `json:"storage" envPrefix:"STORE_"`
	Messaging MessagingConfig `json:"messaging" envPrefix:"SMS_"`
	Content   ContentConfig   `json:"content" envPrefix:"CONTENT_"`
	Schedule  ScheduleConfig  `json:"schedule" envPrefix:"SCHEDULE_"`
	Keywords  KeywordsConfig  `json:"keywords" envPrefix:"KEYWORD_"`
	Tracing   TracingConfig   `json:"tracing" envPrefix:"OTEL_"`
	Pprof     PprofConfig     `json:"pprof" envPrefix:"PPROF_"`
}

type HTTPConfig struct {
	Addr string `json:"addr" env:"ADDR"`
	// WebhookPath receives inbound messages (Twilio "A message comes in" URL).
	WebhookPath     string `json:"webhook_path" env:"WEBHOOK_PATH"`
	ReadTimeout     string `json:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    string `json:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout string `json:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

type LoggingConfig struct {
	Level   string      `json:"level" env:"LEVEL"`
	Console bool        `json:"console" env:"CONSOLE"`
	File    LoggingFile `json:"file" envPrefix:"FILE_"`
}

type LoggingFile struct {
	Enabled      bool   `json:"enabled" env:"ENABLED"`
	Path         string `json:"path" env:"PATH"`
	MaxAge       string `json:"max_age,omitempty" env:"MAX_AGE"`
	RotationTime string `json:"rotation_time,omitempty" env:"ROTATION_TIME"`
}

// StorageConfig selects and configures the subscriber store and content ledger.
//
// Driver values: "sqlite" (default), "postgres", "file", "memory".
// For sqlite and file, DSN is a filesystem path; for postgres, a connection URL.
type StorageConfig struct {
	Driver           string `json:"driver" env:"DRIVER"`
	DSN              string `json:"dsn" env:"DSN"`
	SubscribersTable string `json:"subscribers_table" env:"SUBSCRIBERS_TABLE"`
	LedgerTable      string `json:"ledger_table" env:"LEDGER_TABLE"`
	ConnectTimeout   string `json:"connect_timeout,omitempty" env:"CONNECT_TIMEOUT"`
	BusyTimeout      string `json:"busy_timeout,omitempty" env:"BUSY_TIMEOUT"` // sqlite only
	MaxOpenConns     int    `json:"max_open_conns,omitempty" env:"MAX_OPEN_CONNS"`
}

// MessagingConfig configures the outbound SMS provider and the inbound address format.
type MessagingConfig struct {
	AccountSID string `json:"account_sid" env:"ACCOUNT_SID"`
	// AuthToken is a secret; it is never logged.
	AuthToken string `json:"auth_token" env:"AUTH_TOKEN"`
	From      string `json:"from" env:"FROM"`
	BaseURL   string `json:"base_url,omitempty" env:"BASE_URL"`
	// DryRun logs outbound messages instead of calling the provider.
	DryRun bool `json:"dry_run" env:"DRY_RUN"`

	Workers     int    `json:"workers,omitempty" env:"WORKERS"`
	RatePerSec  int    `json:"rate_per_sec,omitempty" env:"RATE_PER_SEC"`
	SendTimeout string `json:"send_timeout,omitempty" env:"SEND_TIMEOUT"`

	CountryPrefix string `json:"country_prefix,omitempty" env:"COUNTRY_PREFIX"`
	AddressLength int    `json:"address_length,omitempty" env:"ADDRESS_LENGTH"`
	// Header prefixes every broadcast body, followed by the month/day.
	Header string `json:"header,omitempty" env:"HEADER"`
}

type ContentConfig struct {
	SourceURL    string `json:"source_url" env:"SOURCE_URL"`
	UserAgent    string `json:"user_agent,omitempty" env:"USER_AGENT"`
	RetryMax     int    `json:"retry_max" env:"RETRY_MAX"`
	FetchTimeout string `json:"fetch_timeout,omitempty" env:"FETCH_TIMEOUT"`
}

// ScheduleConfig controls when broadcast cycles fire.
//
// Either Spec (cron / "@every 1h" / "55m" / HH:MM interval) or TimeOfDay+DaysOfWeek
// may be set; Spec wins when both are present.
type ScheduleConfig struct {
	Enabled    bool   `json:"enabled" env:"ENABLED"`
	Spec       string `json:"spec,omitempty" env:"SPEC"`
	TimeOfDay  string `json:"time_of_day,omitempty" env:"TIME_OF_DAY"`
	DaysOfWeek string `json:"days_of_week,omitempty" env:"DAYS_OF_WEEK"`
	Timezone   string `json:"timezone,omitempty" env:"TIMEZONE"`
	// Timeout bounds one whole cycle (select + dispatch). "0s" disables it.
	Timeout string `json:"timeout,omitempty" env:"TIMEOUT"`
}

type KeywordsConfig struct {
	Subscribe string   `json:"subscribe,omitempty" env:"SUBSCRIBE"`
	OptOut    []string `json:"opt_out,omitempty" env:"OPT_OUT" envSeparator:","`
	Help      []string `json:"help,omitempty" env:"HELP" envSeparator:","`
}

type TracingConfig struct {
	Enabled     bool   `json:"enabled" env:"ENABLED"`
	Endpoint    string `json:"endpoint,omitempty" env:"ENDPOINT"`
	ServiceName string `json:"service_name,omitempty" env:"SERVICE_NAME"`
}

// PprofConfig mounts net/http/pprof on the webhook server.
//
// Prefer leaving this disabled on a publicly reachable listener, or set Token.
type PprofConfig struct {
	Enabled bool   `json:"enabled" env:"ENABLED"`
	Prefix  string `json:"prefix,omitempty" env:"PREFIX"`
	// Token, when set, is required as "Authorization: Bearer <token>" or ?token=.
	Token string `json:"token,omitempty" env:"TOKEN"`
}
