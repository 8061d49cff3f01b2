package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sentinai/netguard/internal/models"
)

// Mode identifies which backend is currently authoritative.
type Mode string

const (
	ModeRemote Mode = "REMOTE_ACTIVE"
	ModeLocal  Mode = "LOCAL_ACTIVE"
)

// Monitor receives gateway state-change notifications. Implementations must
// be fast and non-blocking; the metrics package provides the production one.
type Monitor interface {
	ModeChanged(mode Mode)
	FallbackTriggered()
	SyncApplied(pushed, pulled int)
}

// GatewayConfig bounds the gateway's probes and windows.
type GatewayConfig struct {
	ProbeTimeout     time.Duration // startup probe
	ReconnectTimeout time.Duration // CheckConnection / SetMode("cloud") probe
}

// Gateway routes every read and write to the backend matching its current
// mode, falling back from remote to local when the remote store becomes
// unreachable. It is the sole owner of the mode state; consumers receive it
// by injection and never observe a half-applied transition.
type Gateway struct {
	local   *LocalStore
	remote  RemoteStore
	cfg     GatewayConfig
	logger  *slog.Logger
	monitor Monitor

	// modeMu guards the mode value. opMu serializes reconciliation (write
	// side) against regular reads and writes (read side).
	modeMu sync.Mutex
	mode   Mode
	opMu   sync.RWMutex
}

// NewGateway constructs a gateway and determines the initial mode with a
// bounded probe against the remote store. A nil remote means the gateway
// starts and stays in local mode.
func NewGateway(local *LocalStore, remote RemoteStore, cfg GatewayConfig, logger *slog.Logger, monitor Monitor) *Gateway {
	g := &Gateway{
		local:   local,
		remote:  remote,
		cfg:     cfg,
		logger:  logger,
		monitor: monitor,
		mode:    ModeLocal,
	}

	if remote == nil {
		logger.Warn("no remote store configured, running in local mode")
		g.notifyMode(ModeLocal)
		return g
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ProbeTimeout)
	defer cancel()

	if err := remote.Ping(ctx); err != nil {
		logger.Warn("remote store unreachable at startup, enabling resiliency mode", "error", err)
		g.notifyMode(ModeLocal)
		return g
	}

	g.mode = ModeRemote
	g.notifyMode(ModeRemote)
	logger.Info("remote store connected, gateway in remote mode")
	return g
}

// Mode reports the currently authoritative backend.
func (g *Gateway) Mode() Mode {
	g.modeMu.Lock()
	defer g.modeMu.Unlock()
	return g.mode
}

// SaveEvent upserts the event into the active backend. A remote failure
// degrades the gateway to local mode and lands the write there so the caller
// never loses data over an unreachable primary.
func (g *Gateway) SaveEvent(ctx context.Context, event models.Event) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("rejecting event: %w", err)
	}

	g.opMu.RLock()
	defer g.opMu.RUnlock()

	if g.Mode() == ModeRemote {
		err := g.remote.Upsert(ctx, event)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrUnreachable) {
			return fmt.Errorf("failed to save event %s: %w", event.ID, err)
		}
		g.fallback("save event", err)
	}

	g.local.Upsert(event)
	return nil
}

// QueryRecent returns up to limit events, newest first, from the active
// backend. limit <= 0 means unbounded.
func (g *Gateway) QueryRecent(ctx context.Context, limit int) ([]models.Event, error) {
	g.opMu.RLock()
	defer g.opMu.RUnlock()

	if g.Mode() == ModeRemote {
		events, err := g.remote.QueryRecent(ctx, limit)
		if err == nil {
			return events, nil
		}
		if !errors.Is(err, ErrUnreachable) {
			return nil, fmt.Errorf("failed to query recent events: %w", err)
		}
		g.fallback("query recent", err)
	}

	return g.local.QueryRecent(limit), nil
}

// QueryRange returns events with start <= timestamp < end, newest first,
// from the active backend.
func (g *Gateway) QueryRange(ctx context.Context, start, end string) ([]models.Event, error) {
	g.opMu.RLock()
	defer g.opMu.RUnlock()

	if g.Mode() == ModeRemote {
		events, err := g.remote.QueryRange(ctx, start, end)
		if err == nil {
			return events, nil
		}
		if !errors.Is(err, ErrUnreachable) {
			return nil, fmt.Errorf("failed to query event range: %w", err)
		}
		g.fallback("query range", err)
	}

	return g.local.QueryRange(start, end), nil
}

// Resolve transitions the event with the given id to Resolved and returns
// the updated record. In remote mode this is a targeted keyed update; the
// local path preserves the reference full read-modify-write over the cache
// file. An absent id is ErrNotFound.
func (g *Gateway) Resolve(ctx context.Context, id string) (models.Event, error) {
	g.opMu.RLock()
	defer g.opMu.RUnlock()

	if g.Mode() == ModeRemote {
		event, err := g.remote.UpdateStatus(ctx, id, models.StatusResolved)
		if err == nil {
			return event, nil
		}
		if !errors.Is(err, ErrUnreachable) {
			return models.Event{}, err
		}
		g.fallback("resolve event", err)
	}

	return g.resolveLocal(id)
}

func (g *Gateway) resolveLocal(id string) (models.Event, error) {
	data := g.local.ReadAll()
	for i := range data {
		if data[i].ID == id {
			data[i].Status = models.StatusResolved
			g.local.WriteAll(data)
			return data[i], nil
		}
	}
	return models.Event{}, fmt.Errorf("event %q: %w", id, ErrNotFound)
}

// AggregateByField passes through to the remote store's native grouping.
// It is remote-only: local mode reports ErrUnreachable so the caller can
// select its in-process fold strategy.
func (g *Gateway) AggregateByField(ctx context.Context, field string) (map[string]int, error) {
	g.opMu.RLock()
	defer g.opMu.RUnlock()

	if g.Mode() != ModeRemote {
		return nil, fmt.Errorf("native aggregation requires remote mode: %w", ErrUnreachable)
	}

	counts, err := g.remote.AggregateByField(ctx, field)
	if err != nil {
		if errors.Is(err, ErrUnreachable) {
			g.fallback("aggregate by "+field, err)
		}
		return nil, err
	}
	return counts, nil
}

// AggregateSeverityBuckets passes through to the remote store's server-side
// severity bucketing, with the same remote-only contract as AggregateByField.
func (g *Gateway) AggregateSeverityBuckets(ctx context.Context) (map[string]int, error) {
	g.opMu.RLock()
	defer g.opMu.RUnlock()

	if g.Mode() != ModeRemote {
		return nil, fmt.Errorf("native aggregation requires remote mode: %w", ErrUnreachable)
	}

	counts, err := g.remote.AggregateSeverityBuckets(ctx)
	if err != nil {
		if errors.Is(err, ErrUnreachable) {
			g.fallback("aggregate severity", err)
		}
		return nil, err
	}
	return counts, nil
}

// CheckConnection attempts to restore remote mode with a bounded probe.
// This is the only path from local back to remote; it is never run on a
// background timer so the mode cannot flap mid-request.
func (g *Gateway) CheckConnection(ctx context.Context) bool {
	if g.remote == nil {
		return false
	}
	if g.Mode() == ModeRemote {
		return true
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.ReconnectTimeout)
	defer cancel()

	if err := g.remote.Ping(ctx); err != nil {
		g.logger.Debug("reconnect probe failed", "error", err)
		return false
	}

	g.setMode(ModeRemote)
	g.logger.Info("remote store connection restored")
	return true
}

// SetMode is the manual operator override: "local" forces local mode
// unconditionally, "cloud" probes the remote synchronously and fails when it
// is unreachable. Unknown modes are rejected.
func (g *Gateway) SetMode(ctx context.Context, mode string) error {
	switch mode {
	case "local":
		g.setMode(ModeLocal)
		g.logger.Info("switched to local mode (manual override)")
		return nil
	case "cloud":
		if !g.CheckConnection(ctx) {
			return fmt.Errorf("cloud mode probe failed: %w", ErrUnreachable)
		}
		return nil
	default:
		return fmt.Errorf("unknown mode %q: must be 'local' or 'cloud'", mode)
	}
}

// fallback records an unreachability failure of the preferred backend and
// degrades the gateway to local mode. The triggering operation re-issues
// itself against the local store.
func (g *Gateway) fallback(op string, err error) {
	g.setMode(ModeLocal)
	if g.monitor != nil {
		g.monitor.FallbackTriggered()
	}
	g.logger.Warn("remote store unreachable, falling back to local", "op", op, "error", err)
}

func (g *Gateway) setMode(mode Mode) {
	g.modeMu.Lock()
	changed := g.mode != mode
	g.mode = mode
	g.modeMu.Unlock()

	if changed {
		g.notifyMode(mode)
	}
}

func (g *Gateway) notifyMode(mode Mode) {
	if g.monitor != nil {
		g.monitor.ModeChanged(mode)
	}
}
