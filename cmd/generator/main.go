package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sentinai/netguard/internal/config"
	"github.com/sentinai/netguard/internal/logging"
	"github.com/sentinai/netguard/internal/telemetry"
	"log/slog"
)

const (
	pushTimeout = 5 * time.Second
	maxRetries  = 3
)

// main runs the standalone synthetic telemetry pusher: it synthesizes bursts
// of events from the fabric and posts them to the ingest endpoint.
func main() {
	var (
		target   = flag.String("target", "http://localhost:8000/api/telemetry", "ingest endpoint URL")
		burst    = flag.Int("burst", 50, "events per burst")
		interval = flag.Duration("interval", 2*time.Second, "delay between bursts")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging, "netguard-generator")
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to init logger", "error", err)
		os.Exit(1)
	}

	logger.Info("starting telemetry generator", "target", *target, "burst", *burst, "interval", interval.String())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fabric := telemetry.NewFabric()
	client := &http.Client{Timeout: pushTimeout}

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	for {
		events := fabric.Batch(*burst)
		if err := push(ctx, client, *target, events, logger); err != nil {
			logger.Error("burst push failed", "error", err)
		} else {
			logger.Info("burst pushed", "count", len(events))
		}

		select {
		case <-ctx.Done():
			logger.Info("generator stopped")
			return
		case <-ticker.C:
		}
	}
}

// push posts one burst, retrying with a linear backoff so a briefly
// unavailable API does not drop the burst.
func push(ctx context.Context, client *http.Client, target string, events any, logger *slog.Logger) error {
	payload, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("failed to encode burst: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("failed to build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
			lastErr = fmt.Errorf("ingest endpoint returned %d", resp.StatusCode)
		} else {
			lastErr = err
		}

		logger.Warn("push attempt failed", "attempt", attempt, "error", lastErr)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * time.Second):
		}
	}
	return lastErr
}
