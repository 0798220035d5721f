package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ListenAddr string         `yaml:"listen_addr"`
	LogLevel   string         `yaml:"log_level"`
	DB         DBConfig       `yaml:"db"`
	Storage    StorageConfig  `yaml:"storage"`
	Verifier   VerifierConfig `yaml:"verifier"`
	Workers    WorkersConfig  `yaml:"workers"`
	Expiry     ExpiryConfig   `yaml:"expiry"`
	Notify     NotifyConfig   `yaml:"notify"`
	Auth       AuthConfig     `yaml:"auth"`
	SeedPath   string         `yaml:"seed_path"`
}

type DBConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type StorageConfig struct {
	Driver         string `yaml:"driver"`
	Dir            string `yaml:"dir"`
	Bucket         string `yaml:"bucket"`
	Prefix         string `yaml:"prefix"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
}

type VerifierConfig struct {
	Driver    string        `yaml:"driver"`
	MockDelay time.Duration `yaml:"mock_delay"`
	ProjectID string        `yaml:"project_id"`
	Region    string        `yaml:"region"`
	Model     string        `yaml:"model"`
}

type WorkersConfig struct {
	VerifyConcurrency int           `yaml:"verify_concurrency"`
	QueueSize         int           `yaml:"queue_size"`
	VerifyTimeout     time.Duration `yaml:"verify_timeout"`
}

type ExpiryConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Interval   time.Duration `yaml:"interval"`
	WindowDays int           `yaml:"window_days"`
}

type NotifyConfig struct {
	Enabled        bool     `yaml:"enabled"`
	WebhookURL     string   `yaml:"webhook_url"`
	SlackWebhook   string   `yaml:"slack_webhook_url"`
	Source         string   `yaml:"source"`
	SigningKeyPath string   `yaml:"signing_key_path"`
	MaxRetries     uint64   `yaml:"max_retries"`
	QueueSize      int      `yaml:"queue_size"`
	Events         []string `yaml:"events"`
}

// AuthConfig maps bearer tokens to reviewer names.
type AuthConfig struct {
	DevToken string            `yaml:"dev_token"`
	Tokens   map[string]string `yaml:"tokens"`
}

const (
	DefaultListenAddr     = ":8080"
	DefaultMaxUploadBytes = 20 << 20
	DefaultMockDelay      = 2500 * time.Millisecond
	DefaultVerifyTimeout  = 2 * time.Minute
)

func Load(path string) (Config, error) {
	// #nosec G304 -- path is operator-provided config path.
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	expanded := os.ExpandEnv(string(raw))
	expanded = strings.ReplaceAll(expanded, "\r\n", "\n")

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, err
	}
	cfg.ApplyDefaults()
	return cfg, cfg.Validate()
}

// Default is the configuration used when no file is given: in-memory
// store, local file storage and the mock verifier.
func Default() Config {
	var cfg Config
	cfg.ApplyDefaults()
	return cfg
}

func (c *Config) ApplyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.DB.Driver == "" {
		c.DB.Driver = "memory"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "local"
	}
	if c.Storage.Driver == "local" && c.Storage.Dir == "" {
		c.Storage.Dir = "data/files"
	}
	if c.Storage.MaxUploadBytes == 0 {
		c.Storage.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if c.Verifier.Driver == "" {
		c.Verifier.Driver = "mock"
	}
	if c.Verifier.Driver == "mock" && c.Verifier.MockDelay == 0 {
		c.Verifier.MockDelay = DefaultMockDelay
	}
	if c.Workers.VerifyConcurrency == 0 {
		c.Workers.VerifyConcurrency = 4
	}
	if c.Workers.QueueSize == 0 {
		c.Workers.QueueSize = 64
	}
	if c.Workers.VerifyTimeout == 0 {
		c.Workers.VerifyTimeout = DefaultVerifyTimeout
	}
	if c.Expiry.Interval == 0 {
		c.Expiry.Interval = time.Hour
	}
	if c.Expiry.WindowDays == 0 {
		c.Expiry.WindowDays = 30
	}
}

func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required")
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}

	switch c.DB.Driver {
	case "", "memory":
	case "sqlite", "postgres":
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn is required when db.driver is %s", c.DB.Driver)
		}
	default:
		return fmt.Errorf("unsupported db.driver %q", c.DB.Driver)
	}

	switch c.Storage.Driver {
	case "", "local":
	case "gcs":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket is required when storage.driver=gcs")
		}
	default:
		return fmt.Errorf("unsupported storage.driver %q", c.Storage.Driver)
	}
	if c.Storage.MaxUploadBytes < 0 {
		return fmt.Errorf("storage.max_upload_bytes must not be negative")
	}

	switch c.Verifier.Driver {
	case "", "mock":
	case "vertex":
		if c.Verifier.ProjectID == "" || c.Verifier.Region == "" {
			return fmt.Errorf("verifier.project_id and verifier.region are required when verifier.driver=vertex")
		}
	default:
		return fmt.Errorf("unsupported verifier.driver %q", c.Verifier.Driver)
	}

	if c.Workers.VerifyConcurrency < 0 || c.Workers.QueueSize < 0 {
		return fmt.Errorf("workers settings must not be negative")
	}
	if c.Expiry.WindowDays < 0 {
		return fmt.Errorf("expiry.window_days must not be negative")
	}

	if c.Notify.Enabled && c.Notify.WebhookURL == "" && c.Notify.SlackWebhook == "" {
		return fmt.Errorf("notify.webhook_url or notify.slack_webhook_url is required when notify.enabled=true")
	}

	for token, reviewer := range c.Auth.Tokens {
		if strings.TrimSpace(token) == "" || strings.TrimSpace(reviewer) == "" {
			return fmt.Errorf("auth.tokens entries need a token and a reviewer name")
		}
	}
	return nil
}

// SlogLevel parses log_level; empty means info.
func (c Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}
