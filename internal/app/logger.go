package app

import (
	"io"
	"log/slog"
	"strings"

	"github.com/totegamma/nostrconnect/internal/config"
)

// SetupLogger installs the default slog logger described by conf.
func SetupLogger(w io.Writer, conf config.Log) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(conf.Level)); err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch strings.ToLower(conf.Format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}

	slog.SetDefault(slog.New(handler))
}
