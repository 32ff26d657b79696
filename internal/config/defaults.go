package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel:              "info",
			LogFormat:             "text",
			MaxConcurrentMessages: 5,
			BusBufferSize:         100,
		},
		Telegram: TelegramConfig{
			Mode:               "webhook",
			PollTimeout:        30,
			RateLimitPerMinute: 20,
			RateBurst:          5,
		},
		Relay: RelayConfig{
			SignalVariant: "extended",
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			WebhookPath:     "/telegram",
			RegisterWebhook: true,
		},
		KeepAlive: KeepAliveConfig{
			Enabled:         true,
			IntervalSeconds: 30,
		},
		Dedup: DedupConfig{
			Enabled:    true,
			Backend:    "memory",
			TTLSeconds: 600,
			RedisAddr:  "localhost:6379",
		},
		Store: StoreConfig{
			Enabled:       true,
			DBPath:        "~/.signalrelay/relay.db",
			RetentionDays: 90,
		},
		Metrics: MetricsConfig{
			Enabled:  true,
			Endpoint: "/metrics",
		},
	}
}
