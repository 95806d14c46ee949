package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/habsync/internal/infrastructure/config"
)

// ServiceName is attached to every log entry.
const ServiceName = "habsync"

// Logger wraps slog.Logger with habsync defaults.
//
// It satisfies the small Logger interfaces declared by the coordinator,
// event stream, entity and API packages.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Logger struct {
	*slog.Logger
	level  *slog.LevelVar
	closer io.Closer
}

// New creates a Logger from configuration.
//
// Parameters:
//   - cfg: Logging configuration (level, format, output, file)
//   - version: Application version for the default "version" field
//
// Returns:
//   - *Logger: Configured logger
//   - error: If file output was requested and the file cannot be opened
func New(cfg config.LoggingConfig, version string) (*Logger, error) {
	var (
		output io.Writer
		closer io.Closer
	)
	switch strings.ToLower(cfg.Output) {
	case "stderr":
		output = os.Stderr
	case "file":
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		output, closer = f, f
	default:
		output = os.Stdout
	}

	l := NewWithWriter(output, cfg.Format, cfg.Level, version)
	l.closer = closer
	return l, nil
}

// NewWithWriter creates a Logger writing to w. Tests use it to capture output.
func NewWithWriter(w io.Writer, format, level, version string) *Logger {
	lv := new(slog.LevelVar)
	lv.Set(parseLevel(level))
	opts := &slog.HandlerOptions{Level: lv}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", ServiceName),
		slog.String("version", version),
	})

	return &Logger{Logger: slog.New(handler), level: lv}
}

// parseLevel converts a string log level to slog.Level.
//
// Supported levels: debug, info, warn, error
// Defaults to info if unrecognised.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// SetLevel changes the minimum level of this logger and every logger
// derived from it with With or Component.
func (l *Logger) SetLevel(level string) {
	l.level.Set(parseLevel(level))
}

// With returns a new Logger with additional default attributes.
//
// Example:
//
//	streamLogger := logger.With("component", "eventstream")
//	streamLogger.Info("connected") // Includes component=eventstream
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...), level: l.level}
}

// Component is shorthand for With("component", name).
func (l *Logger) Component(name string) *Logger {
	return l.With("component", name)
}

// Close releases the log file, if any.
func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

// Default creates a logger for use before configuration is loaded.
// It writes JSON to stdout at info level.
func Default() *Logger {
	return NewWithWriter(os.Stdout, "json", "info", "dev")
}
