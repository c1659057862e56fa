package service

import (
	"context"
	"testing"
	"time"

	"github.com/points-economy/internal/config"
	"github.com/points-economy/internal/domain"
	"github.com/stretchr/testify/require"
)

// fakeRanking serves fixed aggregation rows and counts computations.
type fakeRanking struct {
	rows  []domain.RankingRow
	calls int
}

func (f *fakeRanking) RankingRows(_ context.Context, _ domain.Scope, _ domain.Window) ([]domain.RankingRow, error) {
	f.calls++
	out := make([]domain.RankingRow, len(f.rows))
	copy(out, f.rows)
	return out, nil
}

// fakeCache is an in-memory store.SnapshotCache.
type fakeCache struct {
	current  map[string]*domain.LeaderboardSnapshot
	previous map[string]*domain.LeaderboardSnapshot
	names    map[string]string
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		current:  make(map[string]*domain.LeaderboardSnapshot),
		previous: make(map[string]*domain.LeaderboardSnapshot),
		names:    make(map[string]string),
	}
}

func cacheKey(scope domain.Scope, period domain.Period) string {
	return scope.Key() + ":" + string(period)
}

func (f *fakeCache) GetSnapshot(_ context.Context, scope domain.Scope, period domain.Period) (*domain.LeaderboardSnapshot, error) {
	return f.current[cacheKey(scope, period)], nil
}

func (f *fakeCache) SetSnapshot(_ context.Context, snapshot *domain.LeaderboardSnapshot, _ time.Duration) error {
	key := cacheKey(snapshot.Scope, snapshot.Period)
	f.current[key] = snapshot
	f.previous[key] = snapshot
	return nil
}

func (f *fakeCache) PreviousSnapshot(_ context.Context, scope domain.Scope, period domain.Period) (*domain.LeaderboardSnapshot, error) {
	return f.previous[cacheKey(scope, period)], nil
}

func (f *fakeCache) UserNames(_ context.Context, userIDs []string) (map[string]string, error) {
	out := make(map[string]string)
	for _, id := range userIDs {
		if name, ok := f.names[id]; ok {
			out[id] = name
		}
	}
	return out, nil
}

func (f *fakeCache) SetUserName(_ context.Context, userID, name string) error {
	f.names[userID] = name
	return nil
}

func testRankingConfig() *config.RankingConfig {
	return &config.RankingConfig{
		CacheTTL:     time.Minute,
		DefaultLimit: 2,
		MaxLimit:     10,
	}
}

var globalScope = domain.Scope{Type: domain.ScopeGlobal}

func TestComputeRankingTieBreak(t *testing.T) {
	early := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	late := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	ranking := &fakeRanking{rows: []domain.RankingRow{
		{UserID: "carol", TotalPoints: 50, FirstEventAt: early},
		{UserID: "bob", TotalPoints: 80, FirstEventAt: late},
		{UserID: "alice", TotalPoints: 80, FirstEventAt: early},
		{UserID: "dave", TotalPoints: 50, FirstEventAt: early},
	}}
	aggregator := NewAggregator(ranking, newFakeCache(), testRankingConfig(), testLogger())

	snapshot, err := aggregator.ComputeRanking(context.Background(), globalScope, domain.PeriodAllTime, 10)
	require.NoError(t, err)
	require.Len(t, snapshot.Entries, 4)

	// Points descending, then earliest event, then user id.
	require.Equal(t, "alice", snapshot.Entries[0].UserID)
	require.Equal(t, "bob", snapshot.Entries[1].UserID)
	require.Equal(t, "carol", snapshot.Entries[2].UserID)
	require.Equal(t, "dave", snapshot.Entries[3].UserID)
	for i, entry := range snapshot.Entries {
		require.Equal(t, int64(i+1), entry.Rank)
	}
}

func TestComputeRankingDeterministic(t *testing.T) {
	ts := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	rows := []domain.RankingRow{
		{UserID: "u3", TotalPoints: 10, FirstEventAt: ts},
		{UserID: "u1", TotalPoints: 10, FirstEventAt: ts},
		{UserID: "u2", TotalPoints: 10, FirstEventAt: ts},
	}

	first, err := NewAggregator(&fakeRanking{rows: rows}, newFakeCache(), testRankingConfig(), testLogger()).
		ComputeRanking(context.Background(), globalScope, domain.PeriodAllTime, 10)
	require.NoError(t, err)

	second, err := NewAggregator(&fakeRanking{rows: rows}, newFakeCache(), testRankingConfig(), testLogger()).
		ComputeRanking(context.Background(), globalScope, domain.PeriodAllTime, 10)
	require.NoError(t, err)

	for i := range first.Entries {
		require.Equal(t, first.Entries[i].UserID, second.Entries[i].UserID)
	}
	require.Equal(t, "u1", first.Entries[0].UserID)
}

func TestComputeRankingTruncates(t *testing.T) {
	ts := time.Now().UTC()
	ranking := &fakeRanking{rows: []domain.RankingRow{
		{UserID: "a", TotalPoints: 30, FirstEventAt: ts},
		{UserID: "b", TotalPoints: 20, FirstEventAt: ts},
		{UserID: "c", TotalPoints: 10, FirstEventAt: ts},
	}}
	aggregator := NewAggregator(ranking, newFakeCache(), testRankingConfig(), testLogger())

	snapshot, err := aggregator.ComputeRanking(context.Background(), globalScope, domain.PeriodAllTime, 2)
	require.NoError(t, err)
	require.Len(t, snapshot.Entries, 2)
	require.Equal(t, int64(3), snapshot.TotalUsers, "total covers the full set, not the page")
}

func TestComputeRankingRejectsBadInput(t *testing.T) {
	aggregator := NewAggregator(&fakeRanking{}, newFakeCache(), testRankingConfig(), testLogger())

	_, err := aggregator.ComputeRanking(context.Background(), domain.Scope{Type: "planet"}, domain.PeriodAllTime, 10)
	require.Error(t, err)

	_, err = aggregator.ComputeRanking(context.Background(), globalScope, "fortnight", 10)
	require.Error(t, err)
}

func TestComputeRankingServedFromCache(t *testing.T) {
	ts := time.Now().UTC()
	ranking := &fakeRanking{rows: []domain.RankingRow{
		{UserID: "a", TotalPoints: 30, FirstEventAt: ts},
	}}
	cache := newFakeCache()
	aggregator := NewAggregator(ranking, cache, testRankingConfig(), testLogger())

	_, err := aggregator.ComputeRanking(context.Background(), globalScope, domain.PeriodAllTime, 10)
	require.NoError(t, err)
	require.Equal(t, 1, ranking.calls)

	_, err = aggregator.ComputeRanking(context.Background(), globalScope, domain.PeriodAllTime, 10)
	require.NoError(t, err)
	require.Equal(t, 1, ranking.calls, "second read hits the cache")
}

func TestPositionOfOutsideTopN(t *testing.T) {
	ts := time.Now().UTC()
	ranking := &fakeRanking{rows: []domain.RankingRow{
		{UserID: "a", TotalPoints: 30, FirstEventAt: ts},
		{UserID: "b", TotalPoints: 20, FirstEventAt: ts},
		{UserID: "c", TotalPoints: 10, FirstEventAt: ts},
	}}
	aggregator := NewAggregator(ranking, newFakeCache(), testRankingConfig(), testLogger())

	// DefaultLimit is 2, so rank 3 is exact but outside the served top.
	position, err := aggregator.PositionOf(context.Background(), "c", globalScope, domain.PeriodAllTime)
	require.NoError(t, err)
	require.Equal(t, int64(3), position.Rank)
	require.Equal(t, int64(10), position.TotalPoints)
	require.False(t, position.InTop)

	top, err := aggregator.PositionOf(context.Background(), "a", globalScope, domain.PeriodAllTime)
	require.NoError(t, err)
	require.True(t, top.InTop)
}

func TestPositionOfUnknownUser(t *testing.T) {
	aggregator := NewAggregator(&fakeRanking{}, newFakeCache(), testRankingConfig(), testLogger())

	position, err := aggregator.PositionOf(context.Background(), "ghost", globalScope, domain.PeriodAllTime)
	require.NoError(t, err)
	require.Equal(t, int64(0), position.Rank)
	require.False(t, position.InTop)
}

func TestRankChangeAgainstPreviousSnapshot(t *testing.T) {
	ts := time.Now().UTC()
	cache := newFakeCache()
	cache.previous[cacheKey(globalScope, domain.PeriodAllTime)] = &domain.LeaderboardSnapshot{
		Scope:  globalScope,
		Period: domain.PeriodAllTime,
		Entries: []domain.SnapshotEntry{
			{Rank: 1, UserID: "b"},
			{Rank: 2, UserID: "a"},
		},
	}

	ranking := &fakeRanking{rows: []domain.RankingRow{
		{UserID: "a", TotalPoints: 30, FirstEventAt: ts},
		{UserID: "b", TotalPoints: 20, FirstEventAt: ts},
		{UserID: "new", TotalPoints: 10, FirstEventAt: ts},
	}}
	aggregator := NewAggregator(ranking, cache, testRankingConfig(), testLogger())

	snapshot, err := aggregator.ComputeRanking(context.Background(), globalScope, domain.PeriodAllTime, 10)
	require.NoError(t, err)

	require.Equal(t, "a", snapshot.Entries[0].UserID)
	require.Equal(t, int64(1), snapshot.Entries[0].RankChange, "climbed from 2 to 1")
	require.Equal(t, "b", snapshot.Entries[1].UserID)
	require.Equal(t, int64(-1), snapshot.Entries[1].RankChange, "dropped from 1 to 2")
	require.Equal(t, "new", snapshot.Entries[2].UserID)
	require.Equal(t, int64(0), snapshot.Entries[2].RankChange, "new entrants start at zero")
}

func TestRefreshBypassesCache(t *testing.T) {
	ts := time.Now().UTC()
	ranking := &fakeRanking{rows: []domain.RankingRow{
		{UserID: "a", TotalPoints: 30, FirstEventAt: ts},
	}}
	cache := newFakeCache()
	aggregator := NewAggregator(ranking, cache, testRankingConfig(), testLogger())

	require.NoError(t, aggregator.Refresh(context.Background(), globalScope, domain.PeriodAllTime))
	require.NoError(t, aggregator.Refresh(context.Background(), globalScope, domain.PeriodAllTime))
	require.Equal(t, 2, ranking.calls, "refresh always recomputes")
	require.NotNil(t, cache.current[cacheKey(globalScope, domain.PeriodAllTime)])
}
