package config

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophblog/internal/logging"
)

// S3Config points the image uploader at S3-compatible storage. Uploads are
// disabled while Bucket is empty.
type S3Config struct {
	Bucket        string
	Region        string
	BaseEndpoint  string
	AccessKey     string
	SecretKey     string
	PublicBaseURL string
}

func (c S3Config) Enabled() bool { return c.Bucket != "" }

// Config holds runtime settings for the gophblog CLI.
type Config struct {
	BaseURL             string
	OnlineCheckInterval time.Duration
	RequestTimeout      time.Duration
	DatabasePath        string
	StaleTime           time.Duration
	PostsRetries        int
	SessionTTL          time.Duration
	LogLevel            string
	LogFormat           string
	S3                  S3Config
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.BaseURL = "http://localhost:3002"
	c.OnlineCheckInterval = 3 * time.Second
	c.RequestTimeout = 10 * time.Second
	c.DatabasePath = "blog.db"
	c.StaleTime = time.Minute
	c.PostsRetries = 2
	c.SessionTTL = 7 * 24 * time.Hour
	c.LogLevel = "warn"
	c.LogFormat = logging.FormatText
	c.S3.Region = "us-east-1"
}

// Validate rejects settings the client cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.BaseURL == "":
		return fmt.Errorf("base url is empty")
	case c.OnlineCheckInterval <= 0:
		return fmt.Errorf("online check interval must be positive, got %s", c.OnlineCheckInterval)
	case c.RequestTimeout < 0:
		return fmt.Errorf("request timeout must not be negative, got %s", c.RequestTimeout)
	case c.StaleTime < 0:
		return fmt.Errorf("stale time must not be negative, got %s", c.StaleTime)
	case c.PostsRetries < 0:
		return fmt.Errorf("posts retries must not be negative, got %d", c.PostsRetries)
	case c.SessionTTL <= 0:
		return fmt.Errorf("session ttl must be positive, got %s", c.SessionTTL)
	}
	return nil
}

// LoadConfig constructs a Config from defaults, then the environment
// (including an optional .env file), then a JSON file, then command-line
// flags. Later sources take precedence over earlier ones.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	if err := parseEnv(cfg); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}
	if err := parseJSON(cfg); err != nil {
		return nil, fmt.Errorf("json config: %w", err)
	}
	if err := parseFlags(cfg); err != nil {
		return nil, fmt.Errorf("flags: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
