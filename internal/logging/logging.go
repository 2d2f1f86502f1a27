// Package logging provides structured logging using Go's slog package.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// ContextKey is a type for context keys to avoid collisions.
type ContextKey string

const (
	// RunIDKey is the context key for corpus run IDs.
	RunIDKey ContextKey = "run_id"
)

var (
	// defaultLogger is the global logger instance.
	defaultLogger *slog.Logger
)

func init() {
	// CLI output owns stdout, so logs default to stderr at warn level.
	InitLogger(LevelWarn, FormatText)
}

// Level represents a log level.
type Level int

const (
	// LevelDebug is for debug messages.
	LevelDebug Level = iota
	// LevelInfo is for informational messages.
	LevelInfo
	// LevelWarn is for warning messages.
	LevelWarn
	// LevelError is for error messages.
	LevelError
)

// Format represents a log output format.
type Format int

const (
	// FormatJSON outputs logs in JSON format.
	FormatJSON Format = iota
	// FormatText outputs logs in human-readable text format.
	FormatText
)

// ParseLevel maps a config/flag string to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// ParseFormat maps a config/flag string to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON, nil
	case "text", "":
		return FormatText, nil
	}
	return FormatText, fmt.Errorf("unknown log format %q", s)
}

// InitLogger initializes the global logger on stderr with the specified level and format.
func InitLogger(level Level, format Format) {
	InitLoggerTo(os.Stderr, level, format)
}

// InitLoggerTo initializes the global logger writing to w.
func InitLoggerTo(w io.Writer, level Level, format Format) {
	var slogLevel slog.Level
	switch level {
	case LevelDebug:
		slogLevel = slog.LevelDebug
	case LevelInfo:
		slogLevel = slog.LevelInfo
	case LevelWarn:
		slogLevel = slog.LevelWarn
	case LevelError:
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: slogLevel,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Customize timestamp format
			if a.Key == slog.TimeKey {
				return slog.String(slog.TimeKey, a.Value.Time().Format(time.RFC3339))
			}
			return a
		},
	}

	var handler slog.Handler
	if format == FormatJSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	defaultLogger = slog.New(handler)
	slog.SetDefault(defaultLogger)
}

// WithRunID adds a corpus run ID to the context.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, RunIDKey, runID)
}

// GetRunID retrieves the run ID from the context.
func GetRunID(ctx context.Context) string {
	if runID, ok := ctx.Value(RunIDKey).(string); ok {
		return runID
	}
	return ""
}

// LoggerFromContext returns a logger with context values attached.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	logger := defaultLogger
	if runID := GetRunID(ctx); runID != "" {
		logger = logger.With("run_id", runID)
	}
	return logger
}

// Debug logs a debug message with optional key-value pairs.
func Debug(msg string, args ...any) {
	defaultLogger.Debug(msg, args...)
}

// Info logs an info message with optional key-value pairs.
func Info(msg string, args ...any) {
	defaultLogger.Info(msg, args...)
}

// Warn logs a warning message with optional key-value pairs.
func Warn(msg string, args ...any) {
	defaultLogger.Warn(msg, args...)
}

// Error logs an error message with optional key-value pairs.
func Error(msg string, args ...any) {
	defaultLogger.Error(msg, args...)
}

// InfoContext logs an info message with context.
func InfoContext(ctx context.Context, msg string, args ...any) {
	LoggerFromContext(ctx).Info(msg, args...)
}

// WarnContext logs a warning message with context.
func WarnContext(ctx context.Context, msg string, args ...any) {
	LoggerFromContext(ctx).Warn(msg, args...)
}

// WorkaroundApplied logs a repair pass that changed a bundle.
func WorkaroundApplied(pass string, changes int, args ...any) {
	allArgs := []any{
		"pass", pass,
		"changes", changes,
	}
	allArgs = append(allArgs, args...)
	defaultLogger.Info("workaround_applied", allArgs...)
}

// WorkaroundFault logs a repair pass that failed internally and was skipped.
func WorkaroundFault(pass string, fault any) {
	defaultLogger.Debug("workaround_fault", "pass", pass, "fault", fmt.Sprint(fault))
}

// ConversionFailed logs a bundle the schema converter rejected.
func ConversionFailed(phase string, err error, args ...any) {
	allArgs := []any{
		"phase", phase,
		"error", err.Error(),
	}
	allArgs = append(allArgs, args...)
	defaultLogger.Debug("conversion_failed", allArgs...)
}

// MemberFailed logs an archive member that produced no output.
func MemberFailed(member string, err error) {
	defaultLogger.Warn("member_failed", "member", member, "error", err.Error())
}

// AttachmentExtracted logs one attachment written to disk.
func AttachmentExtracted(name, path string, size int) {
	defaultLogger.Debug("attachment_extracted", "name", name, "path", path, "size_bytes", size)
}

// FileProcessed logs the outcome of processing one input file.
func FileProcessed(path string, success bool, duration time.Duration, args ...any) {
	allArgs := []any{
		"path", path,
		"success", success,
		"duration_ms", duration.Milliseconds(),
	}
	allArgs = append(allArgs, args...)
	defaultLogger.Info("file_processed", allArgs...)
}
