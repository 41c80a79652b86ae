// Package logging builds the process logger.
package logging

import (
	"io"
	"log/slog"
	"os"

	"github.com/bissquit/inspection-sync/internal/config"
	slogmulti "github.com/samber/slog-multi"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Setup creates the logger described by cfg: text or JSON on stdout and,
// when cfg.File is set, JSON to a size-rotated file as well. The returned
// func closes the file.
func Setup(cfg config.LogConfig) (*slog.Logger, func() error) {
	if cfg.File == "" {
		return slog.New(consoleHandler(os.Stdout, cfg)), func() error { return nil }
	}

	file := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}
	return New(os.Stdout, file, cfg), file.Close
}

// New fans out to console and, if non-nil, a JSON handler on file.
func New(console, file io.Writer, cfg config.LogConfig) *slog.Logger {
	if file == nil {
		return slog.New(consoleHandler(console, cfg))
	}
	fileHandler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: ParseLevel(cfg.Level)})
	return slog.New(slogmulti.Fanout(consoleHandler(console, cfg), fileHandler))
}

func consoleHandler(w io.Writer, cfg config.LogConfig) slog.Handler {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}
	if cfg.Format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// ParseLevel maps a level name to slog.Level. Unknown names mean info.
func ParseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
