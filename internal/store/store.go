// Package store declares the persistence and collaborator contracts the
// service layer is written against. PostgreSQL implements the stores,
// Redis the snapshot cache, and the WebSocket hub the notifier.
package store

import (
	"context"
	"time"

	"github.com/points-economy/internal/domain"
)

// StateView is a read view over one consistent snapshot of user state.
// The pool-backed implementation serves advisory pre-flight eligibility
// checks; the transaction-backed one serves the locked re-check inside a
// heist.
type StateView interface {
	BalanceOf(ctx context.Context, userID string, asOf time.Time) (int64, error)
	PairLink(ctx context.Context, thiefID, victimID string) (*domain.HeistLink, error)
	UsableHammerCount(ctx context.Context, userID string) (int, error)
	TokenBalance(ctx context.Context, userID string) (int64, error)
}

// HeistTx is the mutation surface available while both users' aggregate
// state is exclusively locked. Every write either commits with the
// enclosing transaction or not at all.
type HeistTx interface {
	StateView

	// AppendTransfer appends the debit/credit event pair in one commit.
	AppendTransfer(ctx context.Context, debit, credit domain.PointEvent) error

	// ConsumeHammer picks one usable hammer, decrements it and removes it
	// at zero uses. A nil uses counter is initialized to initialUses-1 on
	// this first consumption. Returns domain.ErrNoUsableItem when the user
	// has no usable hammer.
	ConsumeHammer(ctx context.Context, userID string, initialUses int) (string, error)

	// DebitToken spends one steal token. Returns domain.ErrNoTokens when
	// the balance is zero.
	DebitToken(ctx context.Context, userID string) error

	// SetCooldown stamps the thief->victim link and clears any revenge
	// window the thief held against the victim.
	SetCooldown(ctx context.Context, thiefID, victimID string, until time.Time) error

	// OpenRevengeWindow opens the window on the thief->victim link without
	// touching its cooldown.
	OpenRevengeWindow(ctx context.Context, thiefID, victimID string, until time.Time) error

	RecordAttempt(ctx context.Context, attempt domain.HeistAttempt) error
}

// HeistStore runs the heist critical section. WithPairLock acquires
// exclusive row locks on both users' aggregate state in ascending user-id
// order, runs fn, and commits only if fn returns nil. Lock and
// serialization failures surface as domain.ErrConcurrencyConflict.
type HeistStore interface {
	WithPairLock(ctx context.Context, userA, userB string, fn func(tx HeistTx) error) error

	// RecordAttempt audits attempts that never reached a commit
	// (INELIGIBLE, CONFLICT). Best-effort, outside any transaction.
	RecordAttempt(ctx context.Context, attempt domain.HeistAttempt) error
}

// EventStore is the append-only ledger. There is no update or delete.
type EventStore interface {
	InsertEvent(ctx context.Context, event domain.PointEvent) (string, error)
	BalanceOf(ctx context.Context, userID string, asOf time.Time) (int64, error)
	BalancesOf(ctx context.Context, userIDs []string) (map[string]int64, error)

	// EventsInWindow streams the user's events matching scope and window
	// in timestamp order. Restartable by calling again.
	EventsInWindow(ctx context.Context, userID string, scope domain.Scope, window domain.Window, fn func(domain.PointEvent) error) error
}

// RankingStore produces the ungrouped aggregation rows a snapshot is
// ordered from: per-user sums and earliest event over the full set
// matching scope and window.
type RankingStore interface {
	RankingRows(ctx context.Context, scope domain.Scope, window domain.Window) ([]domain.RankingRow, error)
}

// InventoryStore reads and provisions consumables outside the heist
// critical section. Consumption happens only through HeistTx.
type InventoryStore interface {
	HammersOf(ctx context.Context, userID string) ([]domain.HammerItem, error)
	TokenBalance(ctx context.Context, userID string) (int64, error)
	GrantHammer(ctx context.Context, userID string) (string, error)
	CreditTokens(ctx context.Context, userID string, n int64) (int64, error)
}

// AttemptStore reads the heist audit trail.
type AttemptStore interface {
	AttemptsOf(ctx context.Context, userID string, limit int) ([]domain.HeistAttempt, error)
}

// FriendOracle answers the external social-graph membership question.
type FriendOracle interface {
	IsFriend(ctx context.Context, userID, otherID string) (bool, error)
}

// Notifier delivers best-effort pushes after a heist commit. It must
// never block and its failures never affect the committed transfer.
type Notifier interface {
	NotifyHeist(attempt domain.HeistAttempt)
}

// SnapshotCache caches derived leaderboard snapshots with a bounded TTL.
// Reads through it are eventually consistent by design.
type SnapshotCache interface {
	GetSnapshot(ctx context.Context, scope domain.Scope, period domain.Period) (*domain.LeaderboardSnapshot, error)
	SetSnapshot(ctx context.Context, snapshot *domain.LeaderboardSnapshot, ttl time.Duration) error
	PreviousSnapshot(ctx context.Context, scope domain.Scope, period domain.Period) (*domain.LeaderboardSnapshot, error)
	UserNames(ctx context.Context, userIDs []string) (map[string]string, error)
	SetUserName(ctx context.Context, userID, name string) error
}
