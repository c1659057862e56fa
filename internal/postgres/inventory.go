package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/points-economy/internal/domain"
)

// HammersOf returns the user's hammer items, oldest first.
func (r *Repository) HammersOf(ctx context.Context, userID string) ([]domain.HammerItem, error) {
	query := `
		SELECT id, user_id, uses_remaining
		FROM hammer_items
		WHERE user_id = $1
		ORDER BY created_at, id
	`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("querying hammers: %w", err)
	}
	defer rows.Close()

	var items []domain.HammerItem
	for rows.Next() {
		var item domain.HammerItem
		if err := rows.Scan(&item.ID, &item.UserID, &item.UsesRemaining); err != nil {
			return nil, fmt.Errorf("scanning hammer: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// UsableHammerCount counts hammers that can still be consumed. A NULL
// uses counter means the item was never consumed and is usable.
func (r *Repository) UsableHammerCount(ctx context.Context, userID string) (int, error) {
	return usableHammerCount(ctx, r.pool, userID)
}

func usableHammerCount(ctx context.Context, q querier, userID string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM hammer_items
		WHERE user_id = $1 AND (uses_remaining IS NULL OR uses_remaining > 0)
	`
	var count int
	if err := q.QueryRow(ctx, query, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting hammers: %w", err)
	}
	return count, nil
}

// consumeHammer spends one use of the oldest usable hammer. Safe only
// under the heist pair lock, which serializes all consumption for the
// owning user.
func consumeHammer(ctx context.Context, q querier, userID string, initialUses int) (string, error) {
	query := `
		SELECT id, uses_remaining
		FROM hammer_items
		WHERE user_id = $1 AND (uses_remaining IS NULL OR uses_remaining > 0)
		ORDER BY created_at, id
		LIMIT 1
	`
	var itemID string
	var uses *int
	err := q.QueryRow(ctx, query, userID).Scan(&itemID, &uses)
	if err != nil {
		if err == pgx.ErrNoRows {
			return "", domain.ErrNoUsableItem
		}
		return "", fmt.Errorf("selecting hammer: %w", err)
	}

	remaining := initialUses - 1
	if uses != nil {
		remaining = *uses - 1
	}

	if remaining <= 0 {
		if _, err := q.Exec(ctx, `DELETE FROM hammer_items WHERE id = $1`, itemID); err != nil {
			return "", fmt.Errorf("removing spent hammer: %w", err)
		}
		return itemID, nil
	}
	if _, err := q.Exec(ctx, `UPDATE hammer_items SET uses_remaining = $2 WHERE id = $1`, itemID, remaining); err != nil {
		return "", fmt.Errorf("decrementing hammer: %w", err)
	}
	return itemID, nil
}

// TokenBalance returns the user's steal-token balance.
func (r *Repository) TokenBalance(ctx context.Context, userID string) (int64, error) {
	return tokenBalance(ctx, r.pool, userID)
}

func tokenBalance(ctx context.Context, q querier, userID string) (int64, error) {
	query := `SELECT COALESCE((SELECT balance FROM steal_tokens WHERE user_id = $1), 0)`
	var balance int64
	if err := q.QueryRow(ctx, query, userID).Scan(&balance); err != nil {
		return 0, fmt.Errorf("reading token balance: %w", err)
	}
	return balance, nil
}

// debitToken spends one token; the balance check constraint backs up the
// guard here.
func debitToken(ctx context.Context, q querier, userID string) error {
	tag, err := q.Exec(ctx,
		`UPDATE steal_tokens SET balance = balance - 1 WHERE user_id = $1 AND balance > 0`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("debiting token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNoTokens
	}
	return nil
}

// GrantHammer provisions a fresh hammer item (uses counter unset until
// first consumption).
func (r *Repository) GrantHammer(ctx context.Context, userID string) (string, error) {
	id := uuid.New().String()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO hammer_items (id, user_id, uses_remaining) VALUES ($1, $2, NULL)`,
		id, userID,
	)
	if err != nil {
		return "", fmt.Errorf("granting hammer: %w", err)
	}
	return id, nil
}

// CreditTokens adds n steal tokens and returns the new balance.
func (r *Repository) CreditTokens(ctx context.Context, userID string, n int64) (int64, error) {
	query := `
		INSERT INTO steal_tokens (user_id, balance) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET balance = steal_tokens.balance + $2
		RETURNING balance
	`
	var balance int64
	if err := r.pool.QueryRow(ctx, query, userID, n).Scan(&balance); err != nil {
		return 0, fmt.Errorf("crediting tokens: %w", err)
	}
	return balance, nil
}
