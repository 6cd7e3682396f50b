package logger

import (
	"context"
	"io"
	"log/slog"
	"os"

	charmlog "github.com/charmbracelet/log"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey ContextKey = "request_id"
	// TenantKey is the context key for tenant
	TenantKey ContextKey = "tenant"
	// UsernameKey is the context key for username
	UsernameKey ContextKey = "username"
	// ContractIDKey is the context key for the contract being processed
	ContractIDKey ContextKey = "contract_id"
)

// Config holds logger configuration
type Config struct {
	Level  string    // debug, info, warn, error
	Format string    // json, text, pretty
	Output io.Writer // defaults to stdout
}

// ParseLevel maps a level name to a slog level, defaulting to info.
func ParseLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewHandler builds the slog handler described by cfg.
func NewHandler(cfg *Config) slog.Handler {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	level := ParseLevel(cfg.Level)

	switch cfg.Format {
	case "json":
		return slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})
	case "pretty":
		// charm levels share slog's numeric values
		return charmlog.NewWithOptions(out, charmlog.Options{
			Level:           charmlog.Level(level),
			ReportTimestamp: true,
		})
	default:
		return slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})
	}
}

// Init initializes the global slog logger with the given configuration
func Init(cfg *Config) {
	slog.SetDefault(slog.New(NewHandler(cfg)))
}

// WithContext returns a logger with context values extracted
func WithContext(ctx context.Context) *slog.Logger {
	logger := slog.Default()

	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		logger = logger.With("request_id", requestID)
	}
	if tenant, ok := ctx.Value(TenantKey).(string); ok && tenant != "" {
		logger = logger.With("tenant", tenant)
	}
	if username, ok := ctx.Value(UsernameKey).(string); ok && username != "" {
		logger = logger.With("username", username)
	}
	if contractID, ok := ctx.Value(ContractIDKey).(string); ok && contractID != "" {
		logger = logger.With("contract_id", contractID)
	}

	return logger
}

// WithContract returns ctx carrying the contract id for log enrichment.
func WithContract(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ContractIDKey, id)
}

// Info logs at info level with context
func Info(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).Info(msg, args...)
}

// Debug logs at debug level with context
func Debug(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).Debug(msg, args...)
}

// Warn logs at warn level with context
func Warn(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).Warn(msg, args...)
}

// Error logs at error level with context
func Error(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).Error(msg, args...)
}
