package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/points-economy/internal/config"
	"github.com/points-economy/internal/domain"
	"github.com/points-economy/internal/store"
)

// Aggregator computes leaderboard rankings over the ledger. Rankings are
// always computed over the full qualifying set so positions outside the
// top-N are exact, and cached with a bounded TTL. Reads here never take
// locks and never join the heist critical section.
type Aggregator struct {
	ranking store.RankingStore
	cache   store.SnapshotCache
	config  *config.RankingConfig
	logger  *slog.Logger
}

// NewAggregator creates a new aggregator
func NewAggregator(ranking store.RankingStore, cache store.SnapshotCache, cfg *config.RankingConfig, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		ranking: ranking,
		cache:   cache,
		config:  cfg,
		logger:  logger,
	}
}

// orderRows sorts aggregation rows into the snapshot's total order:
// points descending, then earliest qualifying event ascending, then user
// id ascending. Equal inputs always produce identical ordering.
func orderRows(rows []domain.RankingRow) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].TotalPoints != rows[j].TotalPoints {
			return rows[i].TotalPoints > rows[j].TotalPoints
		}
		if !rows[i].FirstEventAt.Equal(rows[j].FirstEventAt) {
			return rows[i].FirstEventAt.Before(rows[j].FirstEventAt)
		}
		return rows[i].UserID < rows[j].UserID
	})
}

// ComputeRanking returns the ranked snapshot for a scope and period,
// truncated to limit. A cached snapshot within its TTL is served as-is;
// otherwise the full set is recomputed from the ledger.
func (a *Aggregator) ComputeRanking(ctx context.Context, scope domain.Scope, period domain.Period, limit int) (*domain.LeaderboardSnapshot, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if !period.Valid() {
		return nil, &domain.ValidationError{Field: "period", Message: "unknown period: " + string(period)}
	}
	if limit <= 0 {
		limit = a.config.DefaultLimit
	}
	if limit > a.config.MaxLimit {
		limit = a.config.MaxLimit
	}

	snapshot, err := a.fullSnapshot(ctx, scope, period)
	if err != nil {
		return nil, err
	}

	if len(snapshot.Entries) > limit {
		truncated := *snapshot
		truncated.Entries = snapshot.Entries[:limit]
		return &truncated, nil
	}
	return snapshot, nil
}

// PositionOf returns the user's exact rank and window total, whether or
// not the user appears in the served top-N. A user with no qualifying
// events gets rank zero.
func (a *Aggregator) PositionOf(ctx context.Context, userID string, scope domain.Scope, period domain.Period) (*domain.Position, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if !period.Valid() {
		return nil, &domain.ValidationError{Field: "period", Message: "unknown period: " + string(period)}
	}

	snapshot, err := a.fullSnapshot(ctx, scope, period)
	if err != nil {
		return nil, err
	}

	for _, entry := range snapshot.Entries {
		if entry.UserID == userID {
			return &domain.Position{
				UserID:      userID,
				Rank:        entry.Rank,
				TotalPoints: entry.TotalPoints,
				InTop:       entry.Rank <= int64(a.config.DefaultLimit),
			}, nil
		}
	}
	return &domain.Position{UserID: userID}, nil
}

// Refresh recomputes a snapshot from the ledger, bypassing the cache.
// Used by the background refresh worker.
func (a *Aggregator) Refresh(ctx context.Context, scope domain.Scope, period domain.Period) error {
	_, err := a.compute(ctx, scope, period)
	return err
}

// fullSnapshot serves the untruncated snapshot, from cache when fresh.
func (a *Aggregator) fullSnapshot(ctx context.Context, scope domain.Scope, period domain.Period) (*domain.LeaderboardSnapshot, error) {
	cached, err := a.cache.GetSnapshot(ctx, scope, period)
	if err != nil {
		// A broken cache degrades to direct computation.
		a.logger.Warn("snapshot cache read failed", "scope", scope.Key(), "period", period, "error", err)
	}
	if cached != nil {
		return cached, nil
	}
	return a.compute(ctx, scope, period)
}

// compute ranks the full qualifying set and caches the result. The rank
// change on each entry is the deterministic delta against the previous
// computation: previous rank minus current rank, zero for new entrants.
func (a *Aggregator) compute(ctx context.Context, scope domain.Scope, period domain.Period) (*domain.LeaderboardSnapshot, error) {
	now := time.Now().UTC()
	window := period.WindowAt(now)

	rows, err := a.ranking.RankingRows(ctx, scope, window)
	if err != nil {
		return nil, fmt.Errorf("computing ranking: %w", err)
	}
	orderRows(rows)

	previousRanks := make(map[string]int64)
	if previous, err := a.cache.PreviousSnapshot(ctx, scope, period); err != nil {
		a.logger.Warn("previous snapshot read failed", "scope", scope.Key(), "period", period, "error", err)
	} else if previous != nil {
		for _, entry := range previous.Entries {
			previousRanks[entry.UserID] = entry.Rank
		}
	}

	entries := make([]domain.SnapshotEntry, len(rows))
	for i, row := range rows {
		rank := int64(i + 1)
		var change int64
		if prev, ok := previousRanks[row.UserID]; ok {
			change = prev - rank
		}
		entries[i] = domain.SnapshotEntry{
			Rank:         rank,
			UserID:       row.UserID,
			TotalPoints:  row.TotalPoints,
			FirstEventAt: row.FirstEventAt,
			RankChange:   change,
		}
	}

	snapshot := &domain.LeaderboardSnapshot{
		Scope:      scope,
		Period:     period,
		Window:     window,
		Entries:    entries,
		TotalUsers: int64(len(entries)),
		ComputedAt: now,
	}

	if err := a.cache.SetSnapshot(ctx, snapshot, a.config.CacheTTL); err != nil {
		a.logger.Warn("snapshot cache write failed", "scope", scope.Key(), "period", period, "error", err)
	}
	return snapshot, nil
}
