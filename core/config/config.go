package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// TelegramConfig holds Telegram bot related settings.
type TelegramConfig struct {
	Token string `yaml:"token" envconfig:"BOT_TOKEN"`
	// TokenSSMParam names an SSM parameter holding the token when Token is empty.
	TokenSSMParam string `yaml:"token_ssm_param" envconfig:"BOT_TOKEN_SSM_PARAM"`
	AdminID       int64  `yaml:"admin_id" envconfig:"TELEGRAM_ADMIN_ID"`
	RunMode       string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// WebhookConfig specifies webhook settings. Listen and Port also bind the
// status endpoints in long-poll mode.
type WebhookConfig struct {
	URL         string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen      string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port        int    `yaml:"port" envconfig:"PORT"`
	Path        string `yaml:"path" envconfig:"WEBHOOK_PATH"`
	SecretToken string `yaml:"secret_token" envconfig:"WEBHOOK_SECRET_TOKEN"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format      string `yaml:"format" envconfig:"LOG_FORMAT"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Dir         string `yaml:"dir"`
	BotFile     string `yaml:"bot_file"`
	ErrorsFile  string `yaml:"errors_file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile" envconfig:"LOG_PROFILE"`
}

// DatabaseConfig holds postgres connection settings.
type DatabaseConfig struct {
	Host           string `yaml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
}

// RedisConfig points at the redis server used for sessions and locks.
type RedisConfig struct {
	Addr     string `yaml:"addr" envconfig:"REDIS_ADDR"`
	Password string `yaml:"password" envconfig:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" envconfig:"REDIS_DB"`
	Prefix   string `yaml:"prefix" envconfig:"REDIS_PREFIX"`
}

// BoltConfig locates the embedded database file.
type BoltConfig struct {
	Path string `yaml:"path" envconfig:"BOLT_PATH"`
}

// AWSConfig configures the SDK for DynamoDB and SSM. Endpoint overrides the
// service URL for local emulators.
type AWSConfig struct {
	Region   string `yaml:"region" envconfig:"AWS_REGION"`
	Endpoint string `yaml:"endpoint" envconfig:"AWS_ENDPOINT_URL"`
}

// DynamoDBConfig names the record table.
type DynamoDBConfig struct {
	Table string `yaml:"table" envconfig:"DYNAMODB_TABLE"`
}

// DriverConfig selects a storage backend.
type DriverConfig struct {
	Driver string `yaml:"driver"`
}

// FormConfig tunes the question script and the session lifecycle.
type FormConfig struct {
	DefaultLanguage string        `yaml:"default_language" envconfig:"FORM_DEFAULT_LANGUAGE"`
	PromptLanguage  bool          `yaml:"prompt_language" envconfig:"FORM_PROMPT_LANGUAGE"`
	PhotoStep       bool          `yaml:"photo_step" envconfig:"FORM_PHOTO_STEP"`
	MinPhoneDigits  int           `yaml:"min_phone_digits" envconfig:"FORM_MIN_PHONE_DIGITS"`
	SessionTTL      time.Duration `yaml:"session_ttl" envconfig:"FORM_SESSION_TTL"`
	SweepInterval   time.Duration `yaml:"sweep_interval" envconfig:"FORM_SWEEP_INTERVAL"`
}

// NotifyConfig describes delivery of completed applications to the group chat.
type NotifyConfig struct {
	ChatID     int64         `yaml:"chat_id" envconfig:"GROUP_CHAT_ID"`
	Timeout    time.Duration `yaml:"timeout" envconfig:"NOTIFY_TIMEOUT"`
	QueueSize  int           `yaml:"queue_size"`
	Workers    int           `yaml:"workers"`
	MaxRetries int           `yaml:"max_retries"`
}

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

const (
	DriverMemory   = "memory"
	DriverBolt     = "bolt"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
	DriverDynamoDB = "dynamodb"
)

const (
	// UpdateCallback identifies callback updates for rate limit exclusions.
	UpdateCallback = "callback"
	// UpdateMessage identifies message updates for rate limit exclusions.
	UpdateMessage = "message"
	// UpdateInlineQuery identifies inline query updates for rate limit exclusions.
	UpdateInlineQuery = "inline_query"
)

// RateLimitConfig holds settings for rate limiting.
// ExcludeUpdates accepts update types to bypass limiting:
// - "callback": Telegram callback button presses
// - "message": standard text messages
// - "inline_query": inline query updates
//
// Messages carry form answers and always bypass the limit unless
// LimitMessages is set.
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
	LimitMessages  bool     `yaml:"limit_messages" envconfig:"RATE_LIMIT_MESSAGES"`
}

// Config aggregates the process configuration.
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Bolt      BoltConfig      `yaml:"bolt"`
	AWS       AWSConfig       `yaml:"aws"`
	DynamoDB  DynamoDBConfig  `yaml:"dynamodb"`
	Sessions  DriverConfig    `yaml:"sessions" envconfig:"SESSIONS"`
	Records   DriverConfig    `yaml:"records" envconfig:"RECORDS"`
	Form      FormConfig      `yaml:"form"`
	Notify    NotifyConfig    `yaml:"notify"`
}

// Path returns the config file location from CONFIG_PATH or the default.
func Path() string {
	if p := strings.TrimSpace(os.Getenv("CONFIG_PATH")); p != "" {
		return p
	}
	return "config.yaml"
}

// Load reads configuration from a YAML file and environment variables.
// A missing file is tolerated so the process can run on environment only.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize performs basic validation of required configuration fields and adjusts defaults.
// The bot token may still be empty when an SSM parameter is named; Resolve fills it.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if cfg.Telegram.Token == "" && strings.TrimSpace(cfg.Telegram.TokenSSMParam) == "" {
		return fmt.Errorf("telegram token is required")
	}

	rm := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))
	if rm == "" {
		rm = RunModeWebhook
	}
	if rm == "polling" { // accept alias
		rm = RunModeLongpoll
	}
	if strings.TrimSpace(cfg.Webhook.Listen) == "" {
		cfg.Webhook.Listen = "0.0.0.0"
	}
	if cfg.Webhook.Port == 0 {
		cfg.Webhook.Port = 10000
	}
	if cfg.Webhook.Port < 0 {
		return fmt.Errorf("webhook.port must be > 0")
	}
	if p := strings.TrimSpace(cfg.Webhook.Path); p == "" {
		cfg.Webhook.Path = "/webhook"
	} else if !strings.HasPrefix(p, "/") {
		cfg.Webhook.Path = "/" + p
	}
	switch rm {
	case RunModeWebhook:
		if strings.TrimSpace(cfg.Webhook.URL) == "" {
			return fmt.Errorf("webhook.url is required when telegram.run_mode is 'webhook'")
		}
	case RunModeLongpoll:
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
		}
	default:
		return fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", cfg.Telegram.RunMode)
	}
	cfg.Telegram.RunMode = rm

	allowed := map[string]struct{}{
		UpdateCallback:    {},
		UpdateMessage:     {},
		UpdateInlineQuery: {},
	}
	for i, v := range cfg.RateLimit.ExcludeUpdates {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" {
			continue
		}
		if _, ok := allowed[key]; !ok {
			return fmt.Errorf("invalid rate_limit.exclude_updates value %q; allowed: callback, message, inline_query", v)
		}
		cfg.RateLimit.ExcludeUpdates[i] = key
	}

	if err := normalizeStorage(cfg); err != nil {
		return err
	}
	normalizeForm(&cfg.Form)
	return normalizeNotify(&cfg.Notify)
}

func normalizeStorage(cfg *Config) error {
	sessions, err := driver("sessions.driver", cfg.Sessions.Driver, DriverMemory, DriverBolt, DriverRedis, DriverPostgres)
	if err != nil {
		return err
	}
	records, err := driver("records.driver", cfg.Records.Driver, DriverMemory, DriverBolt, DriverPostgres, DriverDynamoDB)
	if err != nil {
		return err
	}
	cfg.Sessions.Driver, cfg.Records.Driver = sessions, records

	uses := func(d string) bool { return sessions == d || records == d }
	if uses(DriverBolt) && strings.TrimSpace(cfg.Bolt.Path) == "" {
		cfg.Bolt.Path = "formbot.db"
	}
	if uses(DriverPostgres) {
		db := &cfg.Database
		if strings.TrimSpace(db.Host) == "" || strings.TrimSpace(db.Name) == "" {
			return fmt.Errorf("database.host and database.name are required for the postgres driver")
		}
		if db.Port == "" {
			db.Port = "5432"
		}
		if db.SSLMode == "" {
			db.SSLMode = "disable"
		}
		if db.MaxConnections <= 0 {
			db.MaxConnections = 5
		}
	}
	if sessions == DriverRedis && strings.TrimSpace(cfg.Redis.Addr) == "" {
		return fmt.Errorf("redis.addr is required for the redis sessions driver")
	}
	if records == DriverDynamoDB && strings.TrimSpace(cfg.DynamoDB.Table) == "" {
		return fmt.Errorf("dynamodb.table is required for the dynamodb records driver")
	}
	return nil
}

func driver(field, raw string, allowed ...string) (string, error) {
	v := strings.ToLower(strings.TrimSpace(raw))
	if v == "" {
		return allowed[0], nil
	}
	for _, a := range allowed {
		if v == a {
			return v, nil
		}
	}
	return "", fmt.Errorf("invalid %s %q; allowed: %s", field, raw, strings.Join(allowed, ", "))
}

func normalizeForm(f *FormConfig) {
	f.DefaultLanguage = strings.ToLower(strings.TrimSpace(f.DefaultLanguage))
	if f.DefaultLanguage == "" {
		f.DefaultLanguage = "ru"
	}
	if f.MinPhoneDigits <= 0 {
		f.MinPhoneDigits = 7
	}
	if f.SessionTTL < 0 {
		f.SessionTTL = 0
	}
	if f.SweepInterval <= 0 && f.SessionTTL > 0 {
		f.SweepInterval = f.SessionTTL / 4
		if f.SweepInterval < time.Minute {
			f.SweepInterval = time.Minute
		}
	}
}

func normalizeNotify(n *NotifyConfig) error {
	if n.ChatID == 0 {
		return fmt.Errorf("notify.chat_id (GROUP_CHAT_ID) is required")
	}
	if n.Timeout <= 0 {
		n.Timeout = 10 * time.Second
	}
	if n.QueueSize <= 0 {
		n.QueueSize = 256
	}
	if n.Workers <= 0 {
		n.Workers = 2
	}
	if n.MaxRetries <= 0 {
		n.MaxRetries = 3
	}
	return nil
}

// SecretGetter reads a named secret such as an SSM parameter.
type SecretGetter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// NeedsSecrets reports whether Resolve has work to do.
func NeedsSecrets(cfg *Config) bool {
	return cfg != nil && strings.TrimSpace(cfg.Telegram.Token) == "" && strings.TrimSpace(cfg.Telegram.TokenSSMParam) != ""
}

// Resolve fills the bot token from the secret store when only the parameter
// name is configured.
func Resolve(ctx context.Context, cfg *Config, secrets SecretGetter) error {
	if !NeedsSecrets(cfg) {
		return nil
	}
	if secrets == nil {
		return fmt.Errorf("telegram.token_ssm_param is set but no secret store is available")
	}
	token, err := secrets.GetParameter(ctx, cfg.Telegram.TokenSSMParam)
	if err != nil {
		return fmt.Errorf("resolve telegram token: %w", err)
	}
	if token == "" {
		return fmt.Errorf("resolve telegram token: parameter %q is empty", cfg.Telegram.TokenSSMParam)
	}
	cfg.Telegram.Token = token
	return nil
}
