package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sentinai/netguard/internal/models"
)

// SyncReport summarizes one reconciliation run for the operator endpoint.
type SyncReport struct {
	Pushed  int `json:"pushed"`
	Pulled  int `json:"pulled"`
	Skipped int `json:"skipped"`
}

// Reconciler computes and applies the bidirectional delta between the local
// cache and the remote store. It is the only component that touches both
// backends in one operation, and it runs exclusively with respect to gateway
// reads and writes.
type Reconciler struct {
	gateway *Gateway
	window  int // most-recent remote records considered per run
	logger  *slog.Logger
}

// NewReconciler constructs a reconciler over the gateway's two backends.
// window bounds how many of the newest remote records are fetched per run;
// remote-only records older than the window are never pulled (accepted
// limitation, configurable via SYNC_WINDOW).
func NewReconciler(gateway *Gateway, window int, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		gateway: gateway,
		window:  window,
		logger:  logger,
	}
}

// Run performs one bidirectional sync. It is a logged no-op unless the
// gateway is in remote mode. Push failures are at-least-once: records
// already applied when a partial failure occurs are kept, failed ones are
// reported as skipped. A failed remote fetch aborts the run and degrades the
// gateway to local mode.
func (r *Reconciler) Run(ctx context.Context) (SyncReport, error) {
	r.gateway.opMu.Lock()
	defer r.gateway.opMu.Unlock()

	if r.gateway.Mode() != ModeRemote {
		r.logger.Info("skipping reconciliation, remote store not active")
		return SyncReport{}, fmt.Errorf("reconciliation requires remote mode: %w", ErrUnreachable)
	}

	r.logger.Info("starting bidirectional sync", "window", r.window)

	localData := r.gateway.local.ReadAll()
	localByID := make(map[string]int, len(localData))
	for i, event := range localData {
		if event.ID != "" {
			localByID[event.ID] = i
		}
	}

	remoteData, err := r.gateway.remote.QueryRecent(ctx, r.window)
	if err != nil {
		r.gateway.fallback("reconciliation fetch", err)
		return SyncReport{}, fmt.Errorf("failed to fetch remote state: %w", err)
	}
	remoteByID := make(map[string]struct{}, len(remoteData))
	for _, event := range remoteData {
		if event.ID != "" {
			remoteByID[event.ID] = struct{}{}
		}
	}

	var report SyncReport

	// Push: local records the remote has never seen.
	var toPush []int
	for id, idx := range localByID {
		if _, ok := remoteByID[id]; !ok {
			toPush = append(toPush, idx)
		}
	}
	if len(toPush) > 0 {
		batch := make([]models.Event, 0, len(toPush))
		for _, idx := range toPush {
			batch = append(batch, localData[idx])
		}
		pushed, err := r.gateway.remote.InsertMany(ctx, batch)
		report.Pushed = pushed
		report.Skipped = len(batch) - pushed
		if err != nil {
			if errors.Is(err, ErrPartialWrite) {
				r.logger.Warn("partial bulk push, continuing", "applied", pushed, "skipped", report.Skipped, "error", err)
			} else {
				r.gateway.fallback("reconciliation push", err)
				return report, fmt.Errorf("failed to push offline records: %w", err)
			}
		} else {
			r.logger.Info("pushed offline records to remote", "count", pushed)
		}
	}

	// Pull: remote records missing from the local cache.
	merged := localData
	for _, event := range remoteData {
		if _, ok := localByID[event.ID]; !ok {
			merged = append(merged, event)
			report.Pulled++
		}
	}
	if report.Pulled > 0 {
		sortByTimestampDesc(merged)
		if limit := r.gateway.local.retention; limit > 0 && len(merged) > limit {
			merged = merged[:limit]
		}
		r.gateway.local.WriteAll(merged)
		r.logger.Info("pulled remote records into local cache", "count", report.Pulled)
	}

	if r.gateway.monitor != nil {
		r.gateway.monitor.SyncApplied(report.Pushed, report.Pulled)
	}
	r.logger.Info("sync complete", "pushed", report.Pushed, "pulled", report.Pulled, "skipped", report.Skipped)
	return report, nil
}
