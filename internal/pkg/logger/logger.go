// Package logger builds the application's zap logger and bridges it to slog.
package logger

import (
	"fmt"
	"log/slog"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"
)

// New constructs a production zap logger at the given level ("debug", "info",
// "warn", "error"; anything else falls back to info) and installs it as the
// slog default via zapslog, so stdlib slog users share the same sink.
func New(levelStr string) (*zap.Logger, error) {
	level := parseLevel(levelStr)

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)

	log, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build zap logger: %w", err)
	}

	slogHandler := zapslog.NewHandler(log.Core())
	slog.SetDefault(slog.New(slogHandler))

	return log, nil
}

func parseLevel(levelStr string) zapcore.Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
