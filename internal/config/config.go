package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("config validation errors")

// Config is the root configuration for the relay.
type Config struct {
	General   GeneralConfig   `json:"general"`
	Telegram  TelegramConfig  `json:"telegram"`
	Relay     RelayConfig     `json:"relay"`
	Server    ServerConfig    `json:"server"`
	KeepAlive KeepAliveConfig `json:"keepAlive"`
	Dedup     DedupConfig     `json:"dedup"`
	Store     StoreConfig     `json:"store"`
	Metrics   MetricsConfig   `json:"metrics"`
}

type GeneralConfig struct {
	LogLevel              string `json:"logLevel"`
	LogFormat             string `json:"logFormat"`         // "text" | "json"
	LogFile               string `json:"logFile,omitempty"` // optional log file path
	MaxConcurrentMessages int    `json:"maxConcurrentMessages"`
	BusBufferSize         int    `json:"busBufferSize"`
}

type TelegramConfig struct {
	Token              string `json:"token"`
	Mode               string `json:"mode"`        // "webhook" | "polling"
	PollTimeout        int    `json:"pollTimeout"` // seconds, polling mode only
	RateLimitPerMinute int    `json:"rateLimitPerMinute"`
	RateBurst          int    `json:"rateBurst"`
	APIEndpoint        string `json:"apiEndpoint,omitempty"` // Bot API URL format, for self-hosted servers
}

type RelayConfig struct {
	SourceChannelID ChatID `json:"sourceChannelId"`
	TargetChannelID ChatID `json:"targetChannelId"`
	SignalVariant   string `json:"signalVariant"`           // "classic" | "extended"
	TemplatesFile   string `json:"templatesFile,omitempty"` // YAML overriding the built-in templates
}

type ServerConfig struct {
	Host            string `json:"host"`
	Port            int    `json:"port"`
	WebhookPath     string `json:"webhookPath"`
	PublicURL       string `json:"publicUrl,omitempty"`
	SecretToken     string `json:"secretToken,omitempty"`
	RegisterWebhook bool   `json:"registerWebhook"` // call setWebhook on startup
}

type KeepAliveConfig struct {
	Enabled         bool   `json:"enabled"`
	IntervalSeconds int    `json:"intervalSeconds"`
	URL             string `json:"url,omitempty"` // defaults to server.publicUrl
}

type DedupConfig struct {
	Enabled       bool   `json:"enabled"`
	Backend       string `json:"backend"` // "memory" | "redis"
	TTLSeconds    int    `json:"ttlSeconds"`
	RedisAddr     string `json:"redisAddr,omitempty"`
	RedisPassword string `json:"redisPassword,omitempty"`
	RedisDB       int    `json:"redisDb,omitempty"`
}

type StoreConfig struct {
	Enabled       bool   `json:"enabled"`
	DBPath        string `json:"dbPath"`
	RetentionDays int    `json:"retentionDays"`
}

type MetricsConfig struct {
	Enabled  bool   `json:"enabled"`
	Endpoint string `json:"endpoint"`
}

// ChatID is a Telegram chat id that unmarshals from a JSON number or a
// string ("-1001234567890"), since channel ids are often pasted quoted.
type ChatID int64

func (c *ChatID) UnmarshalJSON(data []byte) error {
	var n int64
	if err := json.Unmarshal(data, &n); err == nil {
		*c = ChatID(n)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		*c = ChatID(int64(f))
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("chat id: %w", err)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		*c = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("chat id %q: %w", s, err)
	}
	*c = ChatID(n)
	return nil
}

func (c ChatID) Int64() int64 { return int64(c) }

// WebhookURL is the address Telegram delivers updates to.
func (s ServerConfig) WebhookURL() string {
	if s.PublicURL == "" {
		return ""
	}
	return strings.TrimRight(s.PublicURL, "/") + s.WebhookPath
}

// TargetURL is the address the keep-alive pings.
func (k KeepAliveConfig) TargetURL(server ServerConfig) string {
	if k.URL != "" {
		return k.URL
	}
	return server.PublicURL
}

// DefaultConfigDir returns the default config directory (~/.signalrelay).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".signalrelay"
	}
	return filepath.Join(home, ".signalrelay")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// LoadDotEnv loads KEY=VALUE files into the process environment. Missing
// files are skipped and variables already set are never overwritten.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		p = ExpandPath(p)
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}
	return finish(cfg)
}

// LoadOrDefaults is Load, except that a missing file yields the defaults
// with environment overrides applied. This is how a container deployment
// configured only through env vars runs.
func LoadOrDefaults(path string) (*Config, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	return finish(Defaults())
}

func finish(cfg *Config) (*Config, error) {
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}

	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
	cfg.Store.DBPath = ExpandPath(cfg.Store.DBPath)
	cfg.Relay.TemplatesFile = ExpandPath(cfg.Relay.TemplatesFile)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides config values from the deployment environment variables.
func ApplyEnv(cfg *Config) error {
	var errs []string

	if v := os.Getenv("BOT_TOKEN"); v != "" {
		cfg.Telegram.Token = v
	}
	for name, dst := range map[string]*ChatID{
		"SOURCE_CHANNEL_ID": &cfg.Relay.SourceChannelID,
		"TARGET_CHANNEL_ID": &cfg.Relay.TargetChannelID,
	} {
		v := strings.TrimSpace(os.Getenv(name))
		if v == "" {
			continue
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: not an integer chat id: %q", name, v))
			continue
		}
		*dst = ChatID(n)
	}
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("PORT: not a number: %q", v))
		} else {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("RENDER_EXTERNAL_URL"); v != "" {
		cfg.Server.PublicURL = v
	}
	if v := os.Getenv("WEBHOOK_PATH"); v != "" {
		cfg.Server.WebhookPath = v
	}
	if v := os.Getenv("WEBHOOK_SECRET"); v != "" {
		cfg.Server.SecretToken = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Dedup.RedisAddr = v
	}

	if len(errs) > 0 {
		return fmt.Errorf("environment overrides:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match // Keep original if no env var and no default
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	return writeConfigFile(path, data)
}

func writeConfigFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}
	// The file may hold the bot token.
	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has valid values. It does not require
// credentials or channel ids; see RequireRelay.
func Validate(cfg *Config) error {
	var errs []string

	switch cfg.General.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}
	switch cfg.General.LogFormat {
	case "", "text", "json":
	default:
		errs = append(errs, "general.logFormat must be one of: text, json")
	}
	if cfg.General.MaxConcurrentMessages < 1 || cfg.General.MaxConcurrentMessages > 100 {
		errs = append(errs, "general.maxConcurrentMessages must be between 1 and 100")
	}
	if cfg.General.BusBufferSize < 1 {
		errs = append(errs, "general.busBufferSize must be >= 1")
	}

	switch cfg.Telegram.Mode {
	case "webhook", "polling":
	default:
		errs = append(errs, "telegram.mode must be one of: webhook, polling")
	}
	if cfg.Telegram.PollTimeout < 1 || cfg.Telegram.PollTimeout > 60 {
		errs = append(errs, "telegram.pollTimeout must be between 1 and 60")
	}
	if cfg.Telegram.RateLimitPerMinute < 1 {
		errs = append(errs, "telegram.rateLimitPerMinute must be >= 1")
	}
	if cfg.Telegram.RateBurst < 1 {
		errs = append(errs, "telegram.rateBurst must be >= 1")
	}

	switch cfg.Relay.SignalVariant {
	case "classic", "extended":
	default:
		errs = append(errs, "relay.signalVariant must be one of: classic, extended")
	}

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 0 and 65535")
	}
	if !strings.HasPrefix(cfg.Server.WebhookPath, "/") {
		errs = append(errs, "server.webhookPath must start with /")
	}
	if cfg.Server.PublicURL != "" && !strings.HasPrefix(cfg.Server.PublicURL, "http://") && !strings.HasPrefix(cfg.Server.PublicURL, "https://") {
		errs = append(errs, "server.publicUrl must be an http(s) URL")
	}

	if cfg.KeepAlive.Enabled && cfg.KeepAlive.IntervalSeconds < 5 {
		errs = append(errs, "keepAlive.intervalSeconds must be >= 5")
	}

	if cfg.Dedup.Enabled {
		switch cfg.Dedup.Backend {
		case "memory":
		case "redis":
			if cfg.Dedup.RedisAddr == "" {
				errs = append(errs, "dedup.redisAddr is required for the redis backend")
			}
		default:
			errs = append(errs, "dedup.backend must be one of: memory, redis")
		}
		if cfg.Dedup.TTLSeconds < 1 {
			errs = append(errs, "dedup.ttlSeconds must be >= 1")
		}
	}

	if cfg.Store.Enabled {
		if cfg.Store.DBPath == "" {
			errs = append(errs, "store.dbPath is required when the store is enabled")
		}
		if cfg.Store.RetentionDays < 1 {
			errs = append(errs, "store.retentionDays must be >= 1")
		}
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Endpoint, "/") {
		errs = append(errs, "metrics.endpoint must start with /")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w:\n  - %s", ErrInvalid, strings.Join(errs, "\n  - "))
	}
	return nil
}

// RequireRelay checks what the gateway needs beyond Validate: a token, both
// channel ids and, in webhook mode, a public URL.
func RequireRelay(cfg *Config) error {
	var errs []string

	if cfg.Telegram.Token == "" {
		errs = append(errs, "telegram.token is required (or BOT_TOKEN)")
	}
	if cfg.Relay.SourceChannelID == 0 {
		errs = append(errs, "relay.sourceChannelId is required (or SOURCE_CHANNEL_ID)")
	}
	if cfg.Relay.TargetChannelID == 0 {
		errs = append(errs, "relay.targetChannelId is required (or TARGET_CHANNEL_ID)")
	}
	// Rendered posts would be read back as source posts.
	if cfg.Relay.SourceChannelID != 0 && cfg.Relay.SourceChannelID == cfg.Relay.TargetChannelID {
		errs = append(errs, "relay.sourceChannelId and relay.targetChannelId must differ")
	}
	if cfg.Telegram.Mode == "webhook" && cfg.Server.RegisterWebhook && cfg.Server.PublicURL == "" {
		errs = append(errs, "server.publicUrl is required to register the webhook (or RENDER_EXTERNAL_URL)")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w:\n  - %s", ErrInvalid, strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
