package config

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// InitLogger initializes the application logger based on configuration.
// The returned LevelVar lets a config reload change the level in place.
func InitLogger(cfg *LoggingConfig) (*slog.Logger, *slog.LevelVar, error) {
	level := new(slog.LevelVar)
	level.Set(ParseLogLevel(cfg.Level))

	var writer io.Writer
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		writer = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSize, // megabytes
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge, // days
			Compress:   cfg.Compress,
		}
	} else {
		writer = os.Stderr
	}

	logger := slog.New(newHandler(writer, cfg, level, cfg.File == ""))
	slog.SetDefault(logger)

	return logger, level, nil
}

func newHandler(w io.Writer, cfg *LoggingConfig, level slog.Leveler, console bool) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}

	if strings.ToLower(cfg.Format) == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	// Colors only make sense on a terminal, never in the rotated file.
	if cfg.Color && console {
		w = &colorWriter{w: w}
	}
	return slog.NewTextHandler(w, opts)
}

// colorWriter colors the level=... field of text handler lines.
type colorWriter struct {
	mu sync.Mutex
	w  io.Writer
}

var levelColors = map[string]string{
	"level=DEBUG": "\033[90m", // gray
	"level=INFO":  "\033[32m", // green
	"level=WARN":  "\033[33m", // yellow
	"level=ERROR": "\033[31m", // red
}

func (c *colorWriter) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := p
	for token, color := range levelColors {
		if i := bytes.Index(p, []byte(token)); i >= 0 {
			var buf bytes.Buffer
			buf.Grow(len(p) + 10)
			buf.Write(p[:i])
			buf.WriteString(color)
			buf.WriteString(token)
			buf.WriteString("\033[0m")
			buf.Write(p[i+len(token):])
			out = buf.Bytes()
			break
		}
	}

	if _, err := c.w.Write(out); err != nil {
		return 0, err
	}
	return len(p), nil
}

// ParseLogLevel parses a log level string, defaulting to info
func ParseLogLevel(levelStr string) slog.Level {
	switch strings.ToLower(levelStr) {
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
