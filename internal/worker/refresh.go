package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/points-economy/internal/config"
	"github.com/points-economy/internal/domain"
	"github.com/points-economy/internal/service"
	"github.com/points-economy/internal/websocket"
)

// RefreshWorker periodically recomputes the global leaderboard snapshots
// so cached rankings stay warm and rank-change baselines keep advancing
// even on quiet instances. Scoped leaderboards refresh lazily on read.
type RefreshWorker struct {
	aggregator *service.Aggregator
	hub        *websocket.Hub
	config     *config.RefreshConfig
	logger     *slog.Logger
	stopCh     chan struct{}
	doneCh     chan struct{}
	mu         sync.Mutex
	running    bool
}

// NewRefreshWorker creates a new refresh worker
func NewRefreshWorker(
	aggregator *service.Aggregator,
	hub *websocket.Hub,
	cfg *config.RefreshConfig,
	logger *slog.Logger,
) *RefreshWorker {
	return &RefreshWorker{
		aggregator: aggregator,
		hub:        hub,
		config:     cfg,
		logger:     logger,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// Start begins the background refresh process
func (w *RefreshWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info("refresh worker started",
		"interval", w.config.Interval,
		"periods", w.config.Periods,
	)

	go w.run(ctx)
	return nil
}

// Stop stops the background refresh process
func (w *RefreshWorker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("refresh worker stopped")
	return nil
}

// run is the main worker loop
func (w *RefreshWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.refreshAll(ctx)
		}
	}
}

// refreshAll recomputes the global snapshot for every configured period
// and pushes the fresh snapshots to leaderboard subscribers.
func (w *RefreshWorker) refreshAll(ctx context.Context) {
	w.logger.Debug("starting refresh cycle")
	startTime := time.Now()

	scope := domain.Scope{Type: domain.ScopeGlobal}
	refreshed := 0
	errorCount := 0

	for _, p := range w.config.Periods {
		period := domain.Period(p)
		if !period.Valid() {
			w.logger.Warn("skipping unknown refresh period", "period", p)
			continue
		}

		if err := w.aggregator.Refresh(ctx, scope, period); err != nil {
			w.logger.Error("failed to refresh snapshot",
				"period", p,
				"error", err,
			)
			errorCount++
			continue
		}
		refreshed++

		if w.hub != nil {
			snapshot, err := w.aggregator.ComputeRanking(ctx, scope, period, 0)
			if err != nil {
				w.logger.Warn("failed to load snapshot for broadcast", "period", p, "error", err)
				continue
			}
			w.hub.BroadcastLeaderboard(snapshot)
		}
	}

	w.logger.Info("refresh cycle completed",
		"duration", time.Since(startTime),
		"refreshed", refreshed,
		"errors", errorCount,
	)
}

// IsRunning returns whether the worker is currently running
func (w *RefreshWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// RunOnce runs a single refresh cycle (useful for manual triggers)
func (w *RefreshWorker) RunOnce(ctx context.Context) {
	w.refreshAll(ctx)
}
