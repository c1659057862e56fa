package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/points-economy/internal/domain"
	"github.com/points-economy/internal/store"
)

// PairLink returns the cooldown state for the ordered thief->victim pair,
// or nil when the pair has never interacted.
func (r *Repository) PairLink(ctx context.Context, thiefID, victimID string) (*domain.HeistLink, error) {
	return pairLink(ctx, r.pool, thiefID, victimID)
}

func pairLink(ctx context.Context, q querier, thiefID, victimID string) (*domain.HeistLink, error) {
	query := `
		SELECT thief_id, victim_id, cooldown_until, revenge_window_until
		FROM heist_links
		WHERE thief_id = $1 AND victim_id = $2
	`
	var link domain.HeistLink
	err := q.QueryRow(ctx, query, thiefID, victimID).Scan(
		&link.ThiefID, &link.VictimID, &link.CooldownUntil, &link.RevengeWindowUntil,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("reading heist link: %w", err)
	}
	return &link, nil
}

func setCooldown(ctx context.Context, q querier, thiefID, victimID string, until time.Time) error {
	query := `
		INSERT INTO heist_links (thief_id, victim_id, cooldown_until, revenge_window_until, updated_at)
		VALUES ($1, $2, $3, NULL, CURRENT_TIMESTAMP)
		ON CONFLICT (thief_id, victim_id)
		DO UPDATE SET cooldown_until = $3, revenge_window_until = NULL, updated_at = CURRENT_TIMESTAMP
	`
	if _, err := q.Exec(ctx, query, thiefID, victimID, until); err != nil {
		return fmt.Errorf("setting cooldown: %w", err)
	}
	return nil
}

func openRevengeWindow(ctx context.Context, q querier, thiefID, victimID string, until time.Time) error {
	query := `
		INSERT INTO heist_links (thief_id, victim_id, cooldown_until, revenge_window_until, updated_at)
		VALUES ($1, $2, to_timestamp(0), $3, CURRENT_TIMESTAMP)
		ON CONFLICT (thief_id, victim_id)
		DO UPDATE SET revenge_window_until = $3, updated_at = CURRENT_TIMESTAMP
	`
	if _, err := q.Exec(ctx, query, thiefID, victimID, until); err != nil {
		return fmt.Errorf("opening revenge window: %w", err)
	}
	return nil
}

// RecordAttempt writes an audit row outside any heist transaction, used
// for INELIGIBLE and CONFLICT outcomes.
func (r *Repository) RecordAttempt(ctx context.Context, attempt domain.HeistAttempt) error {
	return insertAttempt(ctx, r.pool, attempt)
}

func insertAttempt(ctx context.Context, q querier, attempt domain.HeistAttempt) error {
	if attempt.ID == "" {
		attempt.ID = uuid.New().String()
	}
	query := `
		INSERT INTO heist_attempts (id, thief_id, victim_id, outcome, points_stolen, hammer_consumed, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := q.Exec(ctx, query,
		attempt.ID, attempt.ThiefID, attempt.VictimID,
		string(attempt.Outcome), attempt.PointsStolen, attempt.HammerConsumed,
		attempt.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("recording heist attempt: %w", err)
	}
	return nil
}

// AttemptsOf returns the newest heist attempts involving the user as
// thief or victim.
func (r *Repository) AttemptsOf(ctx context.Context, userID string, limit int) ([]domain.HeistAttempt, error) {
	query := `
		SELECT id, thief_id, victim_id, outcome, points_stolen, hammer_consumed, created_at
		FROM heist_attempts
		WHERE thief_id = $1 OR victim_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying heist attempts: %w", err)
	}
	defer rows.Close()

	var attempts []domain.HeistAttempt
	for rows.Next() {
		var a domain.HeistAttempt
		var outcome string
		if err := rows.Scan(&a.ID, &a.ThiefID, &a.VictimID, &outcome, &a.PointsStolen, &a.HammerConsumed, &a.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning heist attempt: %w", err)
		}
		a.Outcome = domain.HeistOutcome(outcome)
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// WithPairLock runs fn inside a transaction holding exclusive row locks
// on both users' aggregate state. Locks are taken in ascending user-id
// order so two opposite-direction heists can never deadlock each other.
// fn returning an error rolls everything back; transient lock failures
// come back as domain.ErrConcurrencyConflict.
func (r *Repository) WithPairLock(ctx context.Context, userA, userB string, fn func(tx store.HeistTx) error) error {
	first, second := userA, userB
	if second < first {
		first, second = second, first
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return mapConflict(fmt.Errorf("beginning heist transaction: %w", err))
	}
	defer tx.Rollback(ctx)

	// Account rows must exist before they can be locked; insertion also
	// follows the fixed order.
	if err := ensureAccount(ctx, tx, first); err != nil {
		return mapConflict(err)
	}
	if err := ensureAccount(ctx, tx, second); err != nil {
		return mapConflict(err)
	}

	rows, err := tx.Query(ctx,
		`SELECT user_id FROM ledger_accounts WHERE user_id IN ($1, $2) ORDER BY user_id FOR UPDATE`,
		first, second,
	)
	if err != nil {
		return mapConflict(fmt.Errorf("locking accounts: %w", err))
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return mapConflict(fmt.Errorf("locking accounts: %w", err))
	}

	if err := fn(&heistTx{tx: tx}); err != nil {
		return mapConflict(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return mapConflict(fmt.Errorf("committing heist: %w", err))
	}
	return nil
}

// heistTx exposes the locked-state reads and writes of one heist
// transaction.
type heistTx struct {
	tx pgx.Tx
}

func (t *heistTx) BalanceOf(ctx context.Context, userID string, asOf time.Time) (int64, error) {
	return balanceOf(ctx, t.tx, userID, asOf)
}

func (t *heistTx) PairLink(ctx context.Context, thiefID, victimID string) (*domain.HeistLink, error) {
	return pairLink(ctx, t.tx, thiefID, victimID)
}

func (t *heistTx) UsableHammerCount(ctx context.Context, userID string) (int, error) {
	return usableHammerCount(ctx, t.tx, userID)
}

func (t *heistTx) TokenBalance(ctx context.Context, userID string) (int64, error) {
	return tokenBalance(ctx, t.tx, userID)
}

func (t *heistTx) AppendTransfer(ctx context.Context, debit, credit domain.PointEvent) error {
	if _, err := insertEvent(ctx, t.tx, debit); err != nil {
		return err
	}
	_, err := insertEvent(ctx, t.tx, credit)
	return err
}

func (t *heistTx) ConsumeHammer(ctx context.Context, userID string, initialUses int) (string, error) {
	return consumeHammer(ctx, t.tx, userID, initialUses)
}

func (t *heistTx) DebitToken(ctx context.Context, userID string) error {
	return debitToken(ctx, t.tx, userID)
}

func (t *heistTx) SetCooldown(ctx context.Context, thiefID, victimID string, until time.Time) error {
	return setCooldown(ctx, t.tx, thiefID, victimID, until)
}

func (t *heistTx) OpenRevengeWindow(ctx context.Context, thiefID, victimID string, until time.Time) error {
	return openRevengeWindow(ctx, t.tx, thiefID, victimID, until)
}

func (t *heistTx) RecordAttempt(ctx context.Context, attempt domain.HeistAttempt) error {
	return insertAttempt(ctx, t.tx, attempt)
}
