// Package config loads runtime configuration for the gophblog CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. BLOG_* environment variables, after loading a .env file: the one named
//     by -e/-env, or ./.env when it exists. Process variables win over the
//     file.
//  3. Optional JSON file selected with -c or -config.
//  4. Command-line flags, which override everything else.
//
// Supported flags
//
//	-a string          base URL of the blog store (default http://localhost:3002)
//	-i int             online status check interval (seconds)
//	-t int             request timeout (seconds)
//	-d string          local SQLite database path
//	-log-level string  debug, info, warn or error
//	-log-format string text, json or zap
//
// # JSON schema
//
// Durations use timex.Duration, so they may be strings like "3s" or integer
// nanoseconds. Keys that are absent keep the value from earlier sources:
//
//	{
//	  "base_url": "http://localhost:3002",
//	  "online_check_interval": "3s",
//	  "request_timeout": "10s",
//	  "database_path": "blog.db",
//	  "stale_time": "1m",
//	  "posts_retries": 2,
//	  "session_ttl": "168h",
//	  "log_level": "info",
//	  "log_format": "json",
//	  "s3": {"bucket": "blog-images", "region": "us-east-1"}
//	}
package config
