package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// Config contains logging configuration.
type Config struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string
	// FilePath optionally tees logs to a rotating file. Empty disables it.
	FilePath string
	// MaxSizeMB is the maximum size in MB before rotation (default: 10).
	MaxSizeMB int
	// MaxFiles is the maximum number of rotated files to keep (default: 5).
	MaxFiles int
}

// DefaultConfig returns stderr-only logging at info level.
func DefaultConfig() Config {
	return Config{Level: "info"}
}

// Setup builds the process logger. Output always includes stderr; if
// cfg.FilePath is set, logs are also written there with rotation.
// Returns the logger and a cleanup function that closes the file sink.
func Setup(cfg Config) (*slog.Logger, func(), error) {
	var output io.Writer = os.Stderr
	cleanup := func() {}

	if cfg.FilePath != "" {
		writer, err := NewRotatingWriter(cfg.FilePath, orDefault(cfg.MaxSizeMB, 10), orDefault(cfg.MaxFiles, 5))
		if err != nil {
			return nil, nil, err
		}
		output = io.MultiWriter(os.Stderr, writer)
		cleanup = func() {
			_ = writer.Sync()
			_ = writer.Close()
		}
	}

	handler := newHandler(output, parseLevel(cfg.Level))
	return slog.New(handler), cleanup, nil
}

// SetupStdio builds the logger used when serving over the stdio JSON-RPC
// transport: stderr only (stdout is reserved for protocol frames), with
// the handler format chosen by whether stderr is a terminal.
func SetupStdio(level string) *slog.Logger {
	return slog.New(newHandler(os.Stderr, parseLevel(level)))
}

// newHandler picks a text handler when w is an interactive terminal and a
// JSON handler otherwise (piped output, log aggregation, CI).
func newHandler(w io.Writer, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// parseLevel converts a string level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LevelFromString converts a string level to slog.Level (exported for the viewer).
func LevelFromString(level string) slog.Level {
	return parseLevel(level)
}
