package telemetry

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// ParseLevel maps a configured level name onto a slog.Level; unknown names mean info
func ParseLevel(level string) slog.Level {
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

// defaultLevel backs the process logger so the level can change while running
var defaultLevel = new(slog.LevelVar)

// NewLogger builds a logger writing to w.
//
// format: "json" → JSONHandler (production), anything else → TextHandler.
// Debug level adds file:line to every record.
func NewLogger(w io.Writer, format, level string) *slog.Logger {
	lvl := ParseLevel(level)
	return newLogger(w, format, lvl, lvl == slog.LevelDebug)
}

func newLogger(w io.Writer, format string, level slog.Leveler, addSource bool) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: addSource,
	}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// SetupLogger installs a stdout logger as the slog default so package-level slog calls
// elsewhere pick it up without carrying a *slog.Logger around.
func SetupLogger(format, level string) *slog.Logger {
	defaultLevel.Set(ParseLevel(level))
	logger := newLogger(os.Stdout, format, defaultLevel, defaultLevel.Level() == slog.LevelDebug)
	slog.SetDefault(logger)
	logger.Info("logger initialised", "format", format, "level", defaultLevel.Level().String())
	return logger
}

// SetLogLevel changes the level of the logger installed by SetupLogger
func SetLogLevel(level string) {
	lvl := ParseLevel(level)
	if defaultLevel.Level() == lvl {
		return
	}
	defaultLevel.Set(lvl)
	slog.Info("log level changed", "level", lvl.String())
}
