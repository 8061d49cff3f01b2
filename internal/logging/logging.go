package logging

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/sentinai/netguard/internal/config"
)

// New constructs a slog.Logger configured according to the provided settings.
// The service name is attached to every record so the API server, the
// generator, and the collector can share one log pipeline.
func New(cfg config.LoggingConfig, service string) (*slog.Logger, error) {
	handler, err := buildHandler(cfg)
	if err != nil {
		return nil, err
	}

	logger := slog.New(handler)
	if service != "" {
		logger = logger.With("service", service)
	}
	slog.SetDefault(logger)

	return logger, nil
}

func buildHandler(cfg config.LoggingConfig) (slog.Handler, error) {
	opts := &slog.HandlerOptions{Level: cfg.Level}

	switch cfg.Format {
	case "json":
		return slog.NewJSONHandler(os.Stdout, opts), nil
	case "text":
		return slog.NewTextHandler(os.Stdout, opts), nil
	default:
		return nil, fmt.Errorf("unsupported log format: %s", cfg.Format)
	}
}
