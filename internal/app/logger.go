package app

import (
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"go.uber.org/zap"

	"github.com/Ramsey-B/fern/config"
)

// NewLogger builds the zap backed logger. PrettyLogs switches to the console encoder.
func NewLogger(cfg *config.Config) (ectologger.Logger, *zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}

	zapConfig := zap.NewProductionConfig()
	if cfg.PrettyLogs {
		zapConfig = zap.NewDevelopmentConfig()
	}
	zapConfig.Level = level
	zapConfig.InitialFields = map[string]any{
		"service": cfg.AppName,
		"version": cfg.Version,
	}

	zapLogger, err := zapConfig.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return zapadapter.NewZapEctoLogger(zapLogger, nil), zapLogger, nil
}
