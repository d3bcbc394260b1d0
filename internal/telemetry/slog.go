package telemetry

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// logLevel is shared by every logger built here so config.Watch can change the
// level without replacing handlers.
var logLevel = new(slog.LevelVar)

// ParseLevel maps debug, info, warn (or warning) and error to a slog.Level,
// ignoring case. Anything else is info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

// NewLogger builds a logger writing to w. Format "json" selects the JSON handler,
// anything else the text handler. Source locations are added at debug level.
func NewLogger(w io.Writer, format, level string) *slog.Logger {
	lvl := ParseLevel(level)
	logLevel.Set(lvl)

	opts := &slog.HandlerOptions{Level: logLevel, AddSource: lvl == slog.LevelDebug}
	var h slog.Handler
	if strings.EqualFold(format, "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h).With("service", "hookrelay")
}

// SetupLogger installs a stdout logger as the slog default.
func SetupLogger(format, level string) {
	slog.SetDefault(NewLogger(os.Stdout, format, level))
	slog.Info("logger initialised", "format", format, "level", logLevel.Level().String())
}

// SetLogLevel changes the level of every logger built by NewLogger.
func SetLogLevel(level string) {
	lvl := ParseLevel(level)
	if logLevel.Level() == lvl {
		return
	}
	logLevel.Set(lvl)
	slog.Info("log level changed", "level", lvl.String())
}

// LogLevel reports the current level.
func LogLevel() slog.Level {
	return logLevel.Level()
}
