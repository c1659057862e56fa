package domain

import (
	"time"
)

// EventKind identifies how the points on an event were earned or moved.
type EventKind string

const (
	EventKindCheckIn     EventKind = "CHECK_IN"
	EventKindReferral    EventKind = "REFERRAL"
	EventKindShare       EventKind = "SHARE"
	EventKindBoost       EventKind = "BOOST"
	EventKindStealCredit EventKind = "STEAL_CREDIT"
	EventKindStealDebit  EventKind = "STEAL_DEBIT"
)

// knownKinds is the closed set of accepted event kinds.
var knownKinds = map[EventKind]bool{
	EventKindCheckIn:     true,
	EventKindReferral:    true,
	EventKindShare:       true,
	EventKindBoost:       true,
	EventKindStealCredit: true,
	EventKindStealDebit:  true,
}

// PointEvent is one immutable entry in the append-only ledger. A user's
// balance at time T is the sum of Points over events with Timestamp <= T.
type PointEvent struct {
	ID         string    `json:"id,omitempty"`
	UserID     string    `json:"user_id"`
	Kind       EventKind `json:"kind"`
	Points     int64     `json:"points"`
	MerchantID string    `json:"merchant_id,omitempty"`
	CityID     string    `json:"city_id,omitempty"`
	CategoryID string    `json:"category_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Validate enforces the per-kind sign convention: STEAL_DEBIT strictly
// negative, STEAL_CREDIT strictly positive, all other kinds non-negative.
func (e *PointEvent) Validate() error {
	if e.UserID == "" {
		return &ValidationError{Field: "user_id", Message: "user_id is required"}
	}
	if !knownKinds[e.Kind] {
		return &ValidationError{Field: "kind", Message: "unknown event kind: " + string(e.Kind)}
	}
	switch e.Kind {
	case EventKindStealDebit:
		if e.Points >= 0 {
			return &ValidationError{Field: "points", Message: "STEAL_DEBIT points must be negative"}
		}
	case EventKindStealCredit:
		if e.Points <= 0 {
			return &ValidationError{Field: "points", Message: "STEAL_CREDIT points must be positive"}
		}
	default:
		if e.Points < 0 {
			return &ValidationError{Field: "points", Message: string(e.Kind) + " points must not be negative"}
		}
	}
	return nil
}

// ScopeType selects the aggregation dimension for a leaderboard.
type ScopeType string

const (
	ScopeGlobal   ScopeType = "global"
	ScopeCity     ScopeType = "city"
	ScopeCategory ScopeType = "category"
	ScopeMerchant ScopeType = "merchant"
)

// Scope is the aggregation key a leaderboard is computed over. ID is empty
// for the global scope.
type Scope struct {
	Type ScopeType `json:"type"`
	ID   string    `json:"id,omitempty"`
}

// Validate checks that the scope type is known and carries an ID when one
// is required.
func (s Scope) Validate() error {
	switch s.Type {
	case ScopeGlobal:
		return nil
	case ScopeCity, ScopeCategory, ScopeMerchant:
		if s.ID == "" {
			return &ValidationError{Field: "scope_id", Message: "scope_id is required for scope " + string(s.Type)}
		}
		return nil
	default:
		return &ValidationError{Field: "scope", Message: "unknown scope type: " + string(s.Type)}
	}
}

// Key returns a stable cache key component for the scope.
func (s Scope) Key() string {
	if s.Type == ScopeGlobal {
		return string(ScopeGlobal)
	}
	return string(s.Type) + ":" + s.ID
}

// Period is the time range points are summed over for ranking.
type Period string

const (
	PeriodDay     Period = "day"
	PeriodWeek    Period = "week"
	PeriodMonth   Period = "month"
	PeriodAllTime Period = "all"
)

// Valid reports whether the period is one of the known values.
func (p Period) Valid() bool {
	switch p {
	case PeriodDay, PeriodWeek, PeriodMonth, PeriodAllTime:
		return true
	}
	return false
}

// Window is a time range with inclusive To. A zero From means unbounded.
type Window struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// WindowAt returns the window the period covers at the given instant.
// Boundaries are computed in UTC; weeks start on Monday.
func (p Period) WindowAt(now time.Time) Window {
	now = now.UTC()
	switch p {
	case PeriodDay:
		from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		return Window{From: from, To: now}
	case PeriodWeek:
		weekday := int(now.Weekday())
		if weekday == 0 {
			weekday = 7 // Sunday
		}
		day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		return Window{From: day.AddDate(0, 0, -(weekday - 1)), To: now}
	case PeriodMonth:
		from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		return Window{From: from, To: now}
	default:
		return Window{To: now}
	}
}

// Contains reports whether the timestamp falls inside the window.
func (w Window) Contains(ts time.Time) bool {
	if !w.From.IsZero() && ts.Before(w.From) {
		return false
	}
	return ts.Before(w.To) || ts.Equal(w.To)
}
