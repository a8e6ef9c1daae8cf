package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/home-gateway/internal/infrastructure/config"
)

// serviceName is attached to every record as the "service" field.
const serviceName = "homegw"

// Logger wraps slog.Logger with the gateway's default fields.
// It is safe for concurrent use.
type Logger struct {
	*slog.Logger
}

// New creates a Logger writing to the configured output ("stdout", or
// stderr for anything else).
func New(cfg config.LoggingConfig, version string) *Logger {
	var output io.Writer = os.Stderr
	if strings.EqualFold(cfg.Output, "stdout") {
		output = os.Stdout
	}
	return NewWithWriter(cfg, version, output)
}

// NewWithWriter creates a Logger that writes to output instead of the
// configured destination. Tests use it to capture log lines.
//
// Format "json" selects the JSON handler; anything else is text. Every
// record carries service=homegw and the given version.
func NewWithWriter(cfg config.LoggingConfig, version string, output io.Writer) *Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = slog.NewTextHandler(output, opts)
	}

	return &Logger{
		Logger: slog.New(handler).With("service", serviceName, "version", version),
	}
}

// parseLevel maps debug, info, warn (or warning) and error to slog levels,
// ignoring case. Anything else is info.
func parseLevel(level string) slog.Level {
	if strings.EqualFold(level, "warning") {
		return slog.LevelWarn
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// With returns a Logger that adds args to every record.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Component returns a Logger tagged with component=name.
//
//	log.Component("expiry").Info("devices expired", "count", 2)
func (l *Logger) Component(name string) *Logger {
	return l.With("component", name)
}

// Default returns a text logger on stderr at info level, for use before
// configuration is loaded.
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "text", Output: "stderr"}, "dev")
}
