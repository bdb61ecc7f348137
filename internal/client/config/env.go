package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/dmitrijs2005/gophblog/internal/flagx"
	"github.com/joho/godotenv"
)

// Environment variables read by parseEnv.
const (
	EnvBaseURL             = "BLOG_API_URL"
	EnvOnlineCheckInterval = "BLOG_ONLINE_CHECK_INTERVAL"
	EnvRequestTimeout      = "BLOG_REQUEST_TIMEOUT"
	EnvDatabasePath        = "BLOG_DB_PATH"
	EnvStaleTime           = "BLOG_STALE_TIME"
	EnvPostsRetries        = "BLOG_POSTS_RETRIES"
	EnvSessionTTL          = "BLOG_SESSION_TTL"
	EnvLogLevel            = "BLOG_LOG_LEVEL"
	EnvLogFormat           = "BLOG_LOG_FORMAT"
	EnvS3Bucket            = "BLOG_S3_BUCKET"
	EnvS3Region            = "BLOG_S3_REGION"
	EnvS3Endpoint          = "BLOG_S3_ENDPOINT"
	EnvS3AccessKey         = "BLOG_S3_ACCESS_KEY"
	EnvS3SecretKey         = "BLOG_S3_SECRET_KEY"
	EnvS3PublicBaseURL     = "BLOG_S3_PUBLIC_URL"
)

// loadDotEnv loads the file given with -e/-env, or ./.env when present.
// Variables already set in the process environment win.
func loadDotEnv() error {
	if path := flagx.EnvFileFlag(); path != "" {
		return godotenv.Load(path)
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// parseEnv overlays cfg with the BLOG_* environment variables.
func parseEnv(cfg *Config) error {
	if err := loadDotEnv(); err != nil {
		return err
	}

	setString(&cfg.BaseURL, EnvBaseURL)
	setString(&cfg.DatabasePath, EnvDatabasePath)
	setString(&cfg.LogLevel, EnvLogLevel)
	setString(&cfg.LogFormat, EnvLogFormat)
	setString(&cfg.S3.Bucket, EnvS3Bucket)
	setString(&cfg.S3.Region, EnvS3Region)
	setString(&cfg.S3.BaseEndpoint, EnvS3Endpoint)
	setString(&cfg.S3.AccessKey, EnvS3AccessKey)
	setString(&cfg.S3.SecretKey, EnvS3SecretKey)
	setString(&cfg.S3.PublicBaseURL, EnvS3PublicBaseURL)

	for name, dst := range map[string]*time.Duration{
		EnvOnlineCheckInterval: &cfg.OnlineCheckInterval,
		EnvRequestTimeout:      &cfg.RequestTimeout,
		EnvStaleTime:           &cfg.StaleTime,
		EnvSessionTTL:          &cfg.SessionTTL,
	} {
		if err := setDuration(dst, name); err != nil {
			return err
		}
	}

	if v, ok := os.LookupEnv(EnvPostsRetries); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvPostsRetries, err)
		}
		cfg.PostsRetries = n
	}
	return nil
}

func setString(dst *string, name string) {
	if v, ok := os.LookupEnv(name); ok {
		*dst = v
	}
}

func setDuration(dst *time.Duration, name string) error {
	v, ok := os.LookupEnv(name)
	if !ok {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = d
	return nil
}
