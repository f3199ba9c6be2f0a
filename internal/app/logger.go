package app

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/Martian-dev/ai-brain-ledger/internal/config"
)

// ServiceName tags every log line.
const ServiceName = "ai-brain-ledger"

// secretKeys are attribute keys whose values never reach the log.
var secretKeys = map[string]bool{
	"authorization": true,
	"token":         true,
	"hmac_secret":   true,
	"password":      true,
}

// NewLogger builds the process logger from cfg, writing to stderr, and
// installs it as the slog default.
func NewLogger(cfg config.LogConfig) *slog.Logger {
	logger := newLogger(os.Stderr, cfg)
	slog.SetDefault(logger)
	return logger
}

func newLogger(w io.Writer, cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:       parseLevel(cfg.Level),
		AddSource:   strings.EqualFold(cfg.Format, "text"),
		ReplaceAttr: redact,
	}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler).With("service", ServiceName)
}

func redact(_ []string, a slog.Attr) slog.Attr {
	if secretKeys[strings.ToLower(a.Key)] {
		return slog.String(a.Key, "[redacted]")
	}
	return a
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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
