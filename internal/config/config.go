package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const DefaultPath = "config/config.yaml"

type EmailConfig struct {
	SMTPHost     string `yaml:"smtp_host"`
	SMTPPort     int    `yaml:"smtp_port"`
	SMTPUser     string `yaml:"smtp_user"`
	SMTPPassword string `yaml:"smtp_password"`
	FromEmail    string `yaml:"from_email"`
	ReplyTo      string `yaml:"reply_to"`
}

type GeminiConfig struct {
	APIKey         string  `yaml:"api_key"`
	Model          string  `yaml:"model"`
	EmbeddingModel string  `yaml:"embedding_model"`
	Temperature    float32 `yaml:"temperature"`
}

type IndexConfig struct {
	// Path of the SQLite file holding task embeddings. Empty disables
	// semantic search and the semantic delete tool.
	Path       string `yaml:"path"`
	Workers    int    `yaml:"workers"`
	QueueSize  int    `yaml:"queue_size"`
	TopK       int    `yaml:"top_k"`
	MaxRetries int    `yaml:"max_retries"`
}

type RateLimitConfig struct {
	Backend   string `yaml:"backend"` // memory | redis
	RedisAddr string `yaml:"redis_addr"`
	RedisDB   int    `yaml:"redis_db"`
	KeyPrefix string `yaml:"key_prefix"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

type TelegramConfig struct {
	BotToken   string `yaml:"bot_token"`
	WebhookURL string `yaml:"webhook_url"`
	// WebhookSecret is registered with setWebhook and must come back in
	// the X-Telegram-Bot-Api-Secret-Token header of every update.
	WebhookSecret string `yaml:"webhook_secret"`
}

type AgentConfig struct {
	MaxToolRounds int           `yaml:"max_tool_rounds"`
	HistoryLimit  int           `yaml:"history_limit"`
	TurnTimeout   time.Duration `yaml:"turn_timeout"`
}

type NotificationsConfig struct {
	DeadlineWindow time.Duration `yaml:"deadline_window"`
	Concurrency    int           `yaml:"concurrency"`
}

type ReportConfig struct {
	// FontPath points at a TTF with Unicode coverage. Empty falls back to
	// the core Helvetica font.
	FontPath string `yaml:"font_path"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

type Config struct {
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`
	Database struct {
		DSN string `yaml:"url"`
	} `yaml:"database"`
	Email         EmailConfig         `yaml:"email"`
	Gemini        GeminiConfig        `yaml:"gemini"`
	Index         IndexConfig         `yaml:"index"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit"`
	Auth          AuthConfig          `yaml:"auth"`
	Telegram      TelegramConfig      `yaml:"telegram"`
	Agent         AgentConfig         `yaml:"agent"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Report        ReportConfig        `yaml:"report"`
	Log           LogConfig           `yaml:"log"`
}

// LoadConfig reads the YAML file at path, applies environment overrides for
// secrets and fills defaults.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var cfg Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.applyEnv(os.Getenv)
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&c.Database.DSN, "TASKAGENT_DATABASE_URL")
	set(&c.Gemini.APIKey, "GEMINI_API_KEY")
	set(&c.Auth.JWTSecret, "TASKAGENT_JWT_SECRET")
	set(&c.Telegram.BotToken, "TELEGRAM_BOT_TOKEN")
	set(&c.Telegram.WebhookSecret, "TELEGRAM_WEBHOOK_SECRET")
	set(&c.Email.SMTPPassword, "TASKAGENT_SMTP_PASSWORD")
	set(&c.RateLimit.RedisAddr, "TASKAGENT_REDIS_ADDR")
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Gemini.Model == "" {
		c.Gemini.Model = "gemini-2.5-flash"
	}
	if c.Gemini.EmbeddingModel == "" {
		c.Gemini.EmbeddingModel = "gemini-embedding-001"
	}
	if c.Index.Workers <= 0 {
		c.Index.Workers = 2
	}
	if c.Index.QueueSize <= 0 {
		c.Index.QueueSize = 256
	}
	if c.Index.TopK <= 0 {
		c.Index.TopK = 3
	}
	if c.Index.MaxRetries <= 0 {
		c.Index.MaxRetries = 3
	}
	if c.RateLimit.Backend == "" {
		c.RateLimit.Backend = "memory"
	}
	if c.RateLimit.KeyPrefix == "" {
		c.RateLimit.KeyPrefix = "ratelimit:"
	}
	if c.Agent.MaxToolRounds <= 0 {
		c.Agent.MaxToolRounds = 6
	}
	if c.Agent.HistoryLimit <= 0 {
		c.Agent.HistoryLimit = 50
	}
	if c.Agent.TurnTimeout <= 0 {
		c.Agent.TurnTimeout = 60 * time.Second
	}
	if c.Notifications.DeadlineWindow <= 0 {
		c.Notifications.DeadlineWindow = 24 * time.Hour
	}
	if c.Notifications.Concurrency <= 0 {
		c.Notifications.Concurrency = 4
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate reports every required value that is missing.
func (c *Config) Validate() error {
	var errs []error
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database.url is required"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required"))
	}
	if c.Gemini.APIKey == "" {
		errs = append(errs, errors.New("gemini.api_key is required"))
	}
	if c.Telegram.BotToken != "" && !validWebhookSecret(c.Telegram.WebhookSecret) {
		errs = append(errs, errors.New("telegram.webhook_secret is required with a bot token (1-256 chars of A-Z a-z 0-9 _ -)"))
	}
	switch c.RateLimit.Backend {
	case "memory":
	case "redis":
		if c.RateLimit.RedisAddr == "" {
			errs = append(errs, errors.New("rate_limit.redis_addr is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("rate_limit.backend %q is not supported", c.RateLimit.Backend))
	}
	return errors.Join(errs...)
}

// validWebhookSecret applies the Bot API rules for secret_token.
func validWebhookSecret(s string) bool {
	if len(s) == 0 || len(s) > 256 {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
		default:
			return false
		}
	}
	return true
}
