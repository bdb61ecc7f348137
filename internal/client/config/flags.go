package config

import (
	"flag"
	"io"
	"os"
	"time"

	"github.com/dmitrijs2005/gophblog/internal/flagx"
)

// parseFlags populates Config fields from command-line flags.
//
//	-a string          base URL of the blog store
//	-i int             online check interval (seconds)
//	-t int             request timeout (seconds, 0 disables)
//	-d string          local database path
//	-log-level string  debug, info, warn or error
//	-log-format string text, json or zap
//
// os.Args is filtered with flagx.FilterArgs so flags owned by other loaders
// (-c, -e) do not trip the parser.
func parseFlags(cfg *Config) error {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-i", "-t", "-d", "-log-level", "-log-format"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.BaseURL, "a", cfg.BaseURL, "base URL of the blog store")
	onlineCheckInterval := fs.Int("i", int(cfg.OnlineCheckInterval.Seconds()), "online check interval (in seconds)")
	requestTimeout := fs.Int("t", int(cfg.RequestTimeout.Seconds()), "request timeout (in seconds)")
	fs.StringVar(&cfg.DatabasePath, "d", cfg.DatabasePath, "local database path")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format")

	if err := fs.Parse(args); err != nil {
		return err
	}

	// Second-granularity flags only override when given explicitly.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "i":
			cfg.OnlineCheckInterval = time.Duration(*onlineCheckInterval) * time.Second
		case "t":
			cfg.RequestTimeout = time.Duration(*requestTimeout) * time.Second
		}
	})
	return nil
}
