package domain

import "time"

// SnapshotEntry is one ranked row of a leaderboard snapshot. FirstEventAt
// is the timestamp of the user's earliest qualifying event in the window
// and participates in the tie-break.
type SnapshotEntry struct {
	Rank         int64     `json:"rank"`
	UserID       string    `json:"user_id"`
	TotalPoints  int64     `json:"total_points"`
	FirstEventAt time.Time `json:"first_event_at"`
	RankChange   int64     `json:"rank_change"`
}

// LeaderboardSnapshot is a derived, non-authoritative ranking over the
// ledger for one scope and period. Ordering is a total order: points
// descending, then earliest qualifying event ascending, then user id
// ascending.
type LeaderboardSnapshot struct {
	Scope      Scope           `json:"scope"`
	Period     Period          `json:"period"`
	Window     Window          `json:"window"`
	Entries    []SnapshotEntry `json:"entries"`
	TotalUsers int64           `json:"total_users"`
	ComputedAt time.Time       `json:"computed_at"`
}

// Position is a single user's standing within a scope and period,
// correct even when the user is outside the returned top-N.
type Position struct {
	UserID      string `json:"user_id"`
	Rank        int64  `json:"rank"`
	TotalPoints int64  `json:"total_points"`
	InTop       bool   `json:"in_top"`
}

// RankingRow is the ungrouped aggregation input to snapshot ordering:
// one user's summed points and earliest event inside a window.
type RankingRow struct {
	UserID       string
	TotalPoints  int64
	FirstEventAt time.Time
}
