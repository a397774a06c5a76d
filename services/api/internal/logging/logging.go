// Package logging builds the service's zap logger.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a logger writing JSON ("json") or human-readable ("console")
// lines at the given level.
func New(level, format string) (*zap.Logger, error) {
	var parsed zapcore.Level
	if strings.TrimSpace(level) != "" {
		if err := parsed.Set(level); err != nil {
			return nil, fmt.Errorf("invalid level %q: %w", level, err)
		}
	}

	cfg, err := configFor(format)
	if err != nil {
		return nil, err
	}
	cfg.Level = zap.NewAtomicLevelAt(parsed)
	cfg.DisableStacktrace = true

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}

func configFor(format string) (zap.Config, error) {
	switch format {
	case "", "json":
		cfg := zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		return cfg, nil
	case "console":
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return cfg, nil
	default:
		return zap.Config{}, fmt.Errorf("invalid log format %q", format)
	}
}
