package log

import (
	"io"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
)

// Redacted replaces the value of any header that may carry a signature,
// token or credential.
const Redacted = "[REDACTED]"

var (
	once   sync.Once
	logger *slog.Logger
)

// Setup initializes the global logger.
// logic: default to INFO and JSON. Unknown values fall back to the defaults.
func Setup(level, format string) {
	SetupTo(os.Stdout, level, format)
}

// SetupTo is Setup with an explicit writer. Admin commands log to stderr
// so stdout stays machine readable.
func SetupTo(w io.Writer, level, format string) {
	once.Do(func() {
		logger = New(w, level, format)
		slog.SetDefault(logger)
	})
}

// New builds a logger writing to w without touching the global one.
func New(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: parseLevel(level),
	}
	var handler slog.Handler
	if strings.EqualFold(strings.TrimSpace(format), "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Get returns the configured logger, or a default one if Setup hasn't been called.
func Get() *slog.Logger {
	if logger == nil {
		Setup("INFO", "json")
	}
	return logger
}

// Discard returns a logger that drops everything. Handy in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// WithComponent returns a logger with the component field set.
func WithComponent(name string) *slog.Logger {
	return Get().With(slog.String("component", name))
}

// WithJob returns a logger with the job_id field set.
func WithJob(id string) *slog.Logger {
	return Get().With(slog.String("job_id", id))
}

// WithAccount returns a logger with the account_id field set.
func WithAccount(base *slog.Logger, accountID string) *slog.Logger {
	if base == nil {
		base = Get()
	}
	return base.With(slog.String("account_id", accountID))
}

var sensitiveHeaderMarkers = []string{
	"signature",
	"hmac",
	"token",
	"secret",
	"authorization",
	"api-key",
	"apikey",
	"cookie",
}

// IsSensitiveHeader reports whether a header name is likely to carry a credential.
func IsSensitiveHeader(name string) bool {
	lower := strings.ToLower(name)
	for _, marker := range sensitiveHeaderMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// RedactHeaders flattens headers into a log-safe map. Credential-bearing values
// are replaced with Redacted.
func RedactHeaders(headers http.Header) map[string]string {
	out := make(map[string]string, len(headers))
	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		key := strings.ToLower(name)
		if IsSensitiveHeader(key) {
			out[key] = Redacted
			continue
		}
		out[key] = strings.Join(headers[name], ",")
	}
	return out
}

// Info logs at INFO level.
func Info(msg string, args ...any) {
	Get().Info(msg, args...)
}

// Debug logs at DEBUG level.
func Debug(msg string, args ...any) {
	Get().Debug(msg, args...)
}

// Warn logs at WARN level.
func Warn(msg string, args ...any) {
	Get().Warn(msg, args...)
}

// Error logs at ERROR level.
func Error(msg string, args ...any) {
	Get().Error(msg, args...)
}
