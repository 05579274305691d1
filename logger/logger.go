// Package logger provides the structured logger shared by every package.
//
// It wraps log/slog with a package-level DefaultLogger, a level taken from
// LOG_LEVEL, and redaction of API keys so Gemini credentials never reach the
// log output.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"sync/atomic"
)

var defaultLogger atomic.Pointer[slog.Logger]

func init() {
	SetLevel(ParseLevel(os.Getenv("LOG_LEVEL")))
}

// ParseLevel maps a LOG_LEVEL string to a slog level. Unknown values map to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetLevel replaces the default logger with a text handler on stderr at level.
func SetLevel(level slog.Level) {
	SetOutput(os.Stderr, level)
}

// SetOutput replaces the default logger with a text handler writing to w.
func SetOutput(w io.Writer, level slog.Level) {
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Value.Kind() == slog.KindString {
				a.Value = slog.StringValue(RedactSensitiveData(a.Value.String()))
			}
			return a
		},
	})
	defaultLogger.Store(slog.New(handler))
}

// SetVerbose switches between debug and info level.
func SetVerbose(verbose bool) {
	if verbose {
		SetLevel(slog.LevelDebug)
		return
	}
	SetLevel(slog.LevelInfo)
}

// Default returns the current default logger.
func Default() *slog.Logger {
	return defaultLogger.Load()
}

// With returns a child of the default logger carrying args on every record.
func With(args ...any) *slog.Logger {
	return Default().With(args...)
}

func Info(msg string, args ...any)  { Default().Info(msg, args...) }
func Debug(msg string, args ...any) { Default().Debug(msg, args...) }
func Warn(msg string, args ...any)  { Default().Warn(msg, args...) }
func Error(msg string, args ...any) { Default().Error(msg, args...) }

func InfoContext(ctx context.Context, msg string, args ...any) {
	Default().InfoContext(ctx, msg, args...)
}

func WarnContext(ctx context.Context, msg string, args ...any) {
	Default().WarnContext(ctx, msg, args...)
}

func ErrorContext(ctx context.Context, msg string, args ...any) {
	Default().ErrorContext(ctx, msg, args...)
}

// ShortID truncates ids to 8 characters for log lines.
func ShortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

var apiKeyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`AIza[a-zA-Z0-9_-]{35}`),    // Google API keys
	regexp.MustCompile(`sk-[a-zA-Z0-9]{32,}`),      // OpenAI-style keys
	regexp.MustCompile(`Bearer\s+[a-zA-Z0-9_.-]+`), // Bearer tokens
}

// RedactSensitiveData replaces API keys and bearer tokens in s, keeping the
// first four characters of each match.
func RedactSensitiveData(s string) string {
	for _, re := range apiKeyPatterns {
		s = re.ReplaceAllStringFunc(s, func(m string) string {
			if strings.HasPrefix(m, "Bearer") {
				return "Bearer [REDACTED]"
			}
			if len(m) <= 4 {
				return "[REDACTED]"
			}
			return m[:4] + "...[REDACTED]"
		})
	}
	return s
}
