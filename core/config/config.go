package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	coredatabase "github.com/m3rciful/chatstats/core/database"
)

// ErrConfigMissing marks a required setting that was not provided.
var ErrConfigMissing = errors.New("required configuration missing")

// TelegramConfig holds Telegram bot related settings.
type TelegramConfig struct {
	Token string `yaml:"token" envconfig:"BOT_TOKEN"`
	// AdminID is compared verbatim against the sender id rendered in base 10.
	AdminID      string `yaml:"admin_id" envconfig:"ADMIN_ID"`
	AdminContact string `yaml:"admin_contact" envconfig:"ADMIN_CONTACT"`
	RunMode      string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// WebhookConfig specifies the HTTP front door used in webhook mode.
type WebhookConfig struct {
	URL         string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen      string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port        int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
	Path        string `yaml:"path" envconfig:"WEBHOOK_PATH"`
	SecretToken string `yaml:"secret_token" envconfig:"WEBHOOK_SECRET_TOKEN"`
	QueueSize   int    `yaml:"queue_size" envconfig:"WEBHOOK_QUEUE_SIZE"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format      string `yaml:"format" envconfig:"LOG_FORMAT"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Dir         string `yaml:"dir" envconfig:"LOG_DIR"`
	File        string `yaml:"file" envconfig:"LOG_FILE"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile" envconfig:"APP_ENV"`
}

// SentryConfig enables error reporting when DSN is set.
type SentryConfig struct {
	DSN         string  `yaml:"dsn" envconfig:"SENTRY_DSN"`
	Environment string  `yaml:"environment" envconfig:"SENTRY_ENVIRONMENT"`
	SampleRate  float64 `yaml:"sample_rate" envconfig:"SENTRY_SAMPLE_RATE"`
}

// SenderConfig tunes the outbound Telegram queue.
type SenderConfig struct {
	QueueSize      int `yaml:"queue_size" envconfig:"SENDER_QUEUE_SIZE"`
	Workers        int `yaml:"workers" envconfig:"SENDER_WORKERS"`
	MaxRetries     int `yaml:"max_retries" envconfig:"SENDER_MAX_RETRIES"`
	RetryBackoffMS int `yaml:"retry_backoff_ms" envconfig:"SENDER_RETRY_BACKOFF_MS"`
	// PerSecond caps outbound API calls; 0 -> default.
	PerSecond int `yaml:"per_second" envconfig:"SENDER_PER_SECOND"`
}

// StatsConfig holds bot behaviour knobs.
type StatsConfig struct {
	TopLimit          int    `yaml:"top_limit" envconfig:"STATS_TOP_LIMIT"`
	WelcomeTTLSeconds int    `yaml:"welcome_ttl_seconds" envconfig:"STATS_WELCOME_TTL_SECONDS"`
	DefaultLanguage   string `yaml:"default_language" envconfig:"STATS_DEFAULT_LANGUAGE"`
}

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

const (
	defaultWebhookPath      = "/telegram/webhook"
	defaultWebhookQueue     = 256
	defaultTopLimit         = 10
	defaultWelcomeTTL       = 30
	defaultLanguage         = "ru"
	defaultSenderPerSecond  = 25
	defaultSenderQueueSize  = 256
	defaultSenderWorkers    = 4
	defaultSenderBackoffMS  = 2000
	defaultSQLitePath       = "chat_stats.db"
	defaultSQLiteMaxConns   = 1
	defaultPostgresMaxConns = 10
)

// Config aggregates the whole application configuration.
type Config struct {
	Telegram TelegramConfig      `yaml:"telegram"`
	Webhook  WebhookConfig       `yaml:"webhook"`
	Logging  LoggingConfig       `yaml:"logging"`
	Sentry   SentryConfig        `yaml:"sentry"`
	Sender   SenderConfig        `yaml:"sender"`
	Stats    StatsConfig         `yaml:"stats"`
	Database coredatabase.Config `yaml:"database"`
}

// Load reads configuration from an optional YAML file, an optional .env file
// and environment variables, in that order of precedence (env wins).
func Load(path string) (*Config, error) {
	var cfg Config

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env file: %w", err)
	}

	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse YAML config: %w", err)
			}
		case errors.Is(err, os.ErrNotExist):
			// env-only deployment
		default:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize performs validation of required configuration fields and adjusts defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	cfg.Telegram.Token = strings.TrimSpace(cfg.Telegram.Token)
	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram token (BOT_TOKEN): %w", ErrConfigMissing)
	}
	cfg.Telegram.AdminID = strings.TrimSpace(cfg.Telegram.AdminID)
	cfg.Telegram.AdminContact = strings.TrimPrefix(strings.TrimSpace(cfg.Telegram.AdminContact), "@")

	rm := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))
	if rm == "" || rm == "polling" {
		rm = RunModeLongpoll
	}
	switch rm {
	case RunModeWebhook:
		if strings.TrimSpace(cfg.Webhook.URL) == "" {
			return fmt.Errorf("webhook.url (WEBHOOK_URL) in webhook mode: %w", ErrConfigMissing)
		}
		if strings.TrimSpace(cfg.Webhook.Listen) == "" {
			return fmt.Errorf("webhook.listen (WEBHOOK_LISTEN) in webhook mode: %w", ErrConfigMissing)
		}
		if cfg.Webhook.Port <= 0 {
			return fmt.Errorf("webhook.port must be > 0 when telegram.run_mode is 'webhook'")
		}
		cfg.Webhook.URL = strings.TrimRight(strings.TrimSpace(cfg.Webhook.URL), "/")
		path := strings.TrimSpace(cfg.Webhook.Path)
		if path == "" {
			path = defaultWebhookPath
		}
		if !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		cfg.Webhook.Path = path
		if cfg.Webhook.QueueSize <= 0 {
			cfg.Webhook.QueueSize = defaultWebhookQueue
		}
	case RunModeLongpoll:
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
		}
	default:
		return fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", cfg.Telegram.RunMode)
	}
	cfg.Telegram.RunMode = rm

	if err := normalizeDatabase(&cfg.Database); err != nil {
		return err
	}

	if cfg.Sender.QueueSize <= 0 {
		cfg.Sender.QueueSize = defaultSenderQueueSize
	}
	if cfg.Sender.Workers <= 0 {
		cfg.Sender.Workers = defaultSenderWorkers
	}
	if cfg.Sender.MaxRetries < 0 {
		return fmt.Errorf("sender.max_retries must be >= 0")
	}
	if cfg.Sender.RetryBackoffMS <= 0 {
		cfg.Sender.RetryBackoffMS = defaultSenderBackoffMS
	}
	if cfg.Sender.PerSecond <= 0 {
		cfg.Sender.PerSecond = defaultSenderPerSecond
	}

	if cfg.Stats.TopLimit <= 0 {
		cfg.Stats.TopLimit = defaultTopLimit
	}
	if cfg.Stats.WelcomeTTLSeconds <= 0 {
		cfg.Stats.WelcomeTTLSeconds = defaultWelcomeTTL
	}
	lang := strings.ToLower(strings.TrimSpace(cfg.Stats.DefaultLanguage))
	if lang == "" {
		lang = defaultLanguage
	}
	cfg.Stats.DefaultLanguage = lang

	if cfg.Sentry.SampleRate <= 0 || cfg.Sentry.SampleRate > 1 {
		cfg.Sentry.SampleRate = 1
	}
	return nil
}

func normalizeDatabase(db *coredatabase.Config) error {
	driver := strings.ToLower(strings.TrimSpace(db.Driver))
	switch driver {
	case "", "sqlite", coredatabase.DriverSQLite:
		db.Driver = coredatabase.DriverSQLite
		if strings.TrimSpace(db.Path) == "" {
			db.Path = defaultSQLitePath
		}
		if db.MaxConnections <= 0 {
			db.MaxConnections = defaultSQLiteMaxConns
		}
	case "postgresql", coredatabase.DriverPostgres:
		db.Driver = coredatabase.DriverPostgres
		if strings.TrimSpace(db.Host) == "" || strings.TrimSpace(db.Name) == "" {
			return fmt.Errorf("database.host and database.name for postgres: %w", ErrConfigMissing)
		}
		if db.Port == "" {
			db.Port = "5432"
		}
		if db.SSLMode == "" {
			db.SSLMode = "disable"
		}
		if db.MaxConnections <= 0 {
			db.MaxConnections = defaultPostgresMaxConns
		}
	default:
		return fmt.Errorf("invalid database.driver %q; allowed: sqlite3, postgres", db.Driver)
	}
	return nil
}
