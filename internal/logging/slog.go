package logging

import (
	"context"
	"log/slog"
)

type ctxArgsKey struct{}

// ContextWith returns a copy of ctx carrying key-value pairs. Every Logger
// appends them to the entries it writes for that ctx, so a request id set
// once shows up in the log lines of every layer the request passes.
func ContextWith(ctx context.Context, args ...any) context.Context {
	prev := contextArgs(ctx)
	merged := make([]any, 0, len(prev)+len(args))
	merged = append(append(merged, prev...), args...)
	return context.WithValue(ctx, ctxArgsKey{}, merged)
}

func contextArgs(ctx context.Context) []any {
	if ctx == nil {
		return nil
	}
	args, _ := ctx.Value(ctxArgsKey{}).([]any)
	return args
}

// withContextArgs returns args followed by the pairs stored in ctx.
func withContextArgs(ctx context.Context, args []any) []any {
	extra := contextArgs(ctx)
	if len(extra) == 0 {
		return args
	}
	out := make([]any, 0, len(args)+len(extra))
	return append(append(out, args...), extra...)
}

// SlogLogger adapts a slog.Logger to Logger.
type SlogLogger struct {
	l *slog.Logger
}

func NewSlogLogger(l *slog.Logger) *SlogLogger {
	return &SlogLogger{l: l}
}

func (s *SlogLogger) Debug(ctx context.Context, msg string, args ...any) {
	s.log(ctx, slog.LevelDebug, msg, args)
}

func (s *SlogLogger) Info(ctx context.Context, msg string, args ...any) {
	s.log(ctx, slog.LevelInfo, msg, args)
}

func (s *SlogLogger) Warn(ctx context.Context, msg string, args ...any) {
	s.log(ctx, slog.LevelWarn, msg, args)
}

func (s *SlogLogger) Error(ctx context.Context, msg string, args ...any) {
	s.log(ctx, slog.LevelError, msg, args)
}

func (s *SlogLogger) With(args ...any) Logger {
	return &SlogLogger{l: s.l.With(args...)}
}

func (s *SlogLogger) log(ctx context.Context, level slog.Level, msg string, args []any) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !s.l.Enabled(ctx, level) {
		return
	}
	s.l.Log(ctx, level, msg, withContextArgs(ctx, args)...)
}
