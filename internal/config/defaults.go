package config

// Default returns a config populated with production defaults.
//
// The broadcast fires on weekdays at 18:00 US/Pacific.
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Addr:            ":8000",
			WebhookPath:     "/sms",
			ReadTimeout:     "10s",
			WriteTimeout:    "10s",
			ShutdownTimeout: "5s",
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
			File:    LoggingFile{Path: "./logs/jokeline.log"},
		},
		Storage: StorageConfig{
			Driver:           "sqlite",
			DSN:              "./data/jokeline.db",
			SubscribersTable: "subscribers",
			LedgerTable:      "content_ledger",
			ConnectTimeout:   "5s",
			BusyTimeout:      "5s",
		},
		Messaging: MessagingConfig{
			BaseURL:       "https://api.twilio.com",
			Workers:       4,
			RatePerSec:    10,
			SendTimeout:   "15s",
			CountryPrefix: "+1",
			AddressLength: 12,
			Header:        "Dad joke for",
		},
		Content: ContentConfig{
			SourceURL:    "https://icanhazdadjoke.com/",
			UserAgent:    "jokeline (https://github.com/jokeline/jokeline)",
			RetryMax:     25,
			FetchTimeout: "10s",
		},
		Schedule: ScheduleConfig{
			Enabled:    true,
			TimeOfDay:  "18:00",
			DaysOfWeek: "1-5",
			Timezone:   "US/Pacific",
			Timeout:    "10m",
		},
		Keywords: KeywordsConfig{
			Subscribe: "dad",
			OptOut:    []string{"stop", "stopall", "unsubscribe", "cancel", "end", "quit"},
			Help:      []string{"help", "info"},
		},
		Tracing: TracingConfig{ServiceName: "jokeline"},
		Pprof:   PprofConfig{Prefix: "/debug/pprof"},
	}
}
