package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/gophblog/internal/flagx"
	"github.com/dmitrijs2005/gophblog/internal/timex"
)

// JSONConfig is a DTO used exclusively for JSON unmarshalling. Pointer and
// zero-able fields distinguish "absent" from "set", so only keys present in
// the file override earlier sources.
type JSONConfig struct {
	BaseURL             *string         `json:"base_url"`
	OnlineCheckInterval *timex.Duration `json:"online_check_interval"`
	RequestTimeout      *timex.Duration `json:"request_timeout"`
	DatabasePath        *string         `json:"database_path"`
	StaleTime           *timex.Duration `json:"stale_time"`
	PostsRetries        *int            `json:"posts_retries"`
	SessionTTL          *timex.Duration `json:"session_ttl"`
	LogLevel            *string         `json:"log_level"`
	LogFormat           *string         `json:"log_format"`
	S3                  *struct {
		Bucket        *string `json:"bucket"`
		Region        *string `json:"region"`
		BaseEndpoint  *string `json:"endpoint"`
		AccessKey     *string `json:"access_key"`
		SecretKey     *string `json:"secret_key"`
		PublicBaseURL *string `json:"public_base_url"`
	} `json:"s3"`
}

// parseJSON overlays cfg with the JSON file named by -c/-config, if any.
func parseJSON(cfg *Config) error {
	path := flagx.ConfigFileFlag()
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var jc JSONConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		return err
	}

	copyString(&cfg.BaseURL, jc.BaseURL)
	copyDuration(&cfg.OnlineCheckInterval, jc.OnlineCheckInterval)
	copyDuration(&cfg.RequestTimeout, jc.RequestTimeout)
	copyString(&cfg.DatabasePath, jc.DatabasePath)
	copyDuration(&cfg.StaleTime, jc.StaleTime)
	if jc.PostsRetries != nil {
		cfg.PostsRetries = *jc.PostsRetries
	}
	copyDuration(&cfg.SessionTTL, jc.SessionTTL)
	copyString(&cfg.LogLevel, jc.LogLevel)
	copyString(&cfg.LogFormat, jc.LogFormat)

	if s3 := jc.S3; s3 != nil {
		copyString(&cfg.S3.Bucket, s3.Bucket)
		copyString(&cfg.S3.Region, s3.Region)
		copyString(&cfg.S3.BaseEndpoint, s3.BaseEndpoint)
		copyString(&cfg.S3.AccessKey, s3.AccessKey)
		copyString(&cfg.S3.SecretKey, s3.SecretKey)
		copyString(&cfg.S3.PublicBaseURL, s3.PublicBaseURL)
	}
	return nil
}

func copyString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func copyDuration(dst *time.Duration, src *timex.Duration) {
	if src != nil {
		*dst = src.Duration
	}
}
