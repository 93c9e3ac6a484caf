package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/shelfline/shelfline/internal/connectivity"
	"github.com/shelfline/shelfline/internal/reconciler"
)

// Flusher pushes locally pending changes to the remote catalog.
// Implemented by reconciler.Reconciler.
type Flusher interface {
	FlushPending(ctx context.Context) (reconciler.SyncStats, error)
}

// SyncCoordinator periodically flushes pending local changes, and
// additionally flushes immediately whenever connectivity is regained.
type SyncCoordinator struct {
	flusher  Flusher
	net      connectivity.Source
	interval time.Duration
}

// NewSyncCoordinator creates a sync coordinator.
func NewSyncCoordinator(flusher Flusher, net connectivity.Source, interval time.Duration) *SyncCoordinator {
	return &SyncCoordinator{
		flusher:  flusher,
		net:      net,
		interval: interval,
	}
}

// Run starts the coordinator loop. Blocks until ctx is cancelled.
//
// The first flush waits for the initial ticker interval; anything pending
// at startup is usually the result of a previous offline session, and the
// connectivity prober needs a moment to establish whether we are online.
// A reconnect event triggers a flush without waiting for the ticker.
func (c *SyncCoordinator) Run(ctx context.Context) {
	slog.Info("sync coordinator started",
		"component", "worker",
		"worker", "sync-coordinator",
		"interval", c.interval.String(),
	)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	transitions := c.net.Subscribe()

	for {
		select {
		case <-ctx.Done():
			slog.Info("sync coordinator stopped",
				"component", "worker",
				"worker", "sync-coordinator",
				"reason", "context_cancelled",
			)
			return
		case online := <-transitions:
			if !online {
				continue
			}
			slog.Info("connectivity regained, flushing pending changes",
				"component", "worker",
				"worker", "sync-coordinator",
			)
			c.flush(ctx)
		case <-ticker.C:
			if !c.net.Online() {
				continue
			}
			c.flush(ctx)
		}
	}
}

// flush runs a single flush pass and logs the outcome.
func (c *SyncCoordinator) flush(ctx context.Context) {
	start := time.Now()
	stats, err := c.flusher.FlushPending(ctx)
	if err != nil {
		slog.Error("sync flush failed",
			"component", "worker",
			"worker", "sync-coordinator",
			"failed", stats.Failed,
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err,
		)
		return
	}

	if stats.Created+stats.Updated+stats.Deleted == 0 {
		return
	}

	slog.Info("sync flush completed",
		"component", "worker",
		"worker", "sync-coordinator",
		"created", stats.Created,
		"updated", stats.Updated,
		"deleted", stats.Deleted,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
