// Package flagx contains helpers for sharing os.Args between several
// independent flag sets (config file path, .env path, main flags).
package flagx

import (
	"flag"
	"os"
	"strings"
)

// FilterArgs returns the subset of args made of allowedFlags and their values.
//
// Supported formats:
//  1. Flag and value as separate arguments:  -c conf.json
//  2. Flag and value combined with '=':      --config=conf.json
//
// A token following an allowed flag is taken as its value unless it starts
// with '-'. The result is never nil.
func FilterArgs(args []string, allowedFlags []string) []string {
	allowed := make(map[string]struct{}, len(allowedFlags))
	for _, f := range allowedFlags {
		allowed[f] = struct{}{}
	}

	filtered := make([]string, 0, len(args))

	for i := 0; i < len(args); i++ {
		arg := args[i]

		if strings.HasPrefix(arg, "-") && strings.Contains(arg, "=") {
			name, _, _ := strings.Cut(arg, "=")
			if _, ok := allowed[name]; ok {
				filtered = append(filtered, arg)
			}
			continue
		}

		if _, ok := allowed[arg]; ok {
			filtered = append(filtered, arg)
			if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
				filtered = append(filtered, args[i+1])
				i++
			}
		}
	}

	return filtered
}

// lookupString parses only the given flag names (all aliases of one string
// flag) out of os.Args and returns the last value seen, or "".
func lookupString(names ...string) string {
	var value string

	dashed := make([]string, 0, len(names))
	fs := flag.NewFlagSet(names[0], flag.ContinueOnError)
	fs.SetOutput(discard{})
	for _, n := range names {
		fs.StringVar(&value, n, "", "")
		dashed = append(dashed, "-"+n)
	}

	_ = fs.Parse(FilterArgs(os.Args[1:], dashed))
	return value
}

// ConfigFileFlag returns the JSON config path given with -c or -config.
func ConfigFileFlag() string {
	return lookupString("config", "c")
}

// EnvFileFlag returns the .env path given with -e or -env.
func EnvFileFlag() string {
	return lookupString("env", "e")
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
