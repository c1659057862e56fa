package domain

import "time"

// IneligibilityReason explains why a heist attempt was refused.
type IneligibilityReason string

const (
	ReasonSelf     IneligibilityReason = "SELF"
	ReasonNoPoints IneligibilityReason = "NO_POINTS"
	ReasonCooldown IneligibilityReason = "COOLDOWN"
	ReasonLocked   IneligibilityReason = "LOCKED"
)

// Eligibility is the outcome of evaluating whether a thief may steal from
// a victim. Friend is evaluation-internal: it tells the heist engine
// whether a hammer or token must be consumed, and is not part of the wire
// contract.
type Eligibility struct {
	Eligible         bool                `json:"eligible"`
	Reason           IneligibilityReason `json:"reason,omitempty"`
	HoursRemaining   int                 `json:"-"`
	PointsWouldSteal int64               `json:"points_would_steal,omitempty"`
	Friend           bool                `json:"-"`
}

// HeistLink holds the mutable per-ordered-pair cooldown state. A nil
// RevengeWindowUntil means no revenge window is open for this pair.
type HeistLink struct {
	ThiefID            string     `json:"thief_id"`
	VictimID           string     `json:"victim_id"`
	CooldownUntil      time.Time  `json:"cooldown_until"`
	RevengeWindowUntil *time.Time `json:"revenge_window_until,omitempty"`
}

// RevengeOpen reports whether the revenge window is open at the instant.
func (l *HeistLink) RevengeOpen(now time.Time) bool {
	return l != nil && l.RevengeWindowUntil != nil && now.Before(*l.RevengeWindowUntil)
}

// OnCooldown reports whether the normal pair cooldown blocks at the instant.
func (l *HeistLink) OnCooldown(now time.Time) bool {
	return l != nil && now.Before(l.CooldownUntil)
}

// HammerItem is a consumable owned by a user. UsesRemaining is nil until
// the item is consumed for the first time; nil never means unlimited. An
// item that reaches zero uses is removed from the active set.
type HammerItem struct {
	ID            string `json:"id"`
	UserID        string `json:"user_id"`
	UsesRemaining *int   `json:"uses_remaining"`
}

// Usable reports whether the item can still be consumed.
func (h *HammerItem) Usable() bool {
	return h.UsesRemaining == nil || *h.UsesRemaining > 0
}

// HeistOutcome classifies a recorded heist attempt.
type HeistOutcome string

const (
	OutcomeSuccess    HeistOutcome = "SUCCESS"
	OutcomeIneligible HeistOutcome = "INELIGIBLE"
	OutcomeConflict   HeistOutcome = "CONFLICT"
)

// HeistAttempt is the immutable audit record of one heist attempt.
type HeistAttempt struct {
	ID             string       `json:"id"`
	ThiefID        string       `json:"thief_id"`
	VictimID       string       `json:"victim_id"`
	Timestamp      time.Time    `json:"timestamp"`
	Outcome        HeistOutcome `json:"outcome"`
	PointsStolen   int64        `json:"points_stolen"`
	HammerConsumed bool         `json:"hammer_consumed"`
}

// HeistResult is returned to the caller after a committed heist.
type HeistResult struct {
	PointsStolen   int64 `json:"points_stolen"`
	HammerConsumed bool  `json:"hammer_consumed"`
}
