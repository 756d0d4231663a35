package logger

import (
	"io"
	"log/slog"
	"strings"

	"github.com/mnehpets/rpcserve/internal/config"
)

// ParseLevel maps DEBUG, INFO, WARN and ERROR to slog levels. Anything
// else is INFO.
func ParseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func New(cfg *config.AppConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.LogLevel)}

	var handler slog.Handler = slog.NewTextHandler(w, opts)
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler).With(
		slog.String("app", cfg.Name),
		slog.String("env", cfg.Env),
	)
}
