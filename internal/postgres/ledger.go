package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/points-economy/internal/domain"
)

// InsertEvent appends a validated event to the ledger. Append is the only
// mutation the events table ever sees.
func (r *Repository) InsertEvent(ctx context.Context, event domain.PointEvent) (string, error) {
	return insertEvent(ctx, r.pool, event)
}

func insertEvent(ctx context.Context, q querier, event domain.PointEvent) (string, error) {
	if err := ensureAccount(ctx, q, event.UserID); err != nil {
		return "", err
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	query := `
		INSERT INTO point_events (id, user_id, kind, points, merchant_id, city_id, category_id, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), $8)
	`
	_, err := q.Exec(ctx, query,
		event.ID,
		event.UserID,
		string(event.Kind),
		event.Points,
		event.MerchantID,
		event.CityID,
		event.CategoryID,
		event.Timestamp,
	)
	if err != nil {
		return "", fmt.Errorf("inserting point event: %w", err)
	}
	return event.ID, nil
}

// BalanceOf sums the user's deltas up to asOf. Reading through the pool
// this is a point-in-time value; inside a heist transaction the same
// query runs against the locked state and is never stale.
func (r *Repository) BalanceOf(ctx context.Context, userID string, asOf time.Time) (int64, error) {
	return balanceOf(ctx, r.pool, userID, asOf)
}

func balanceOf(ctx context.Context, q querier, userID string, asOf time.Time) (int64, error) {
	query := `
		SELECT COALESCE(SUM(points), 0)
		FROM point_events
		WHERE user_id = $1 AND created_at <= $2
	`
	var balance int64
	if err := q.QueryRow(ctx, query, userID, asOf).Scan(&balance); err != nil {
		return 0, fmt.Errorf("summing balance: %w", err)
	}
	return balance, nil
}

// BalancesOf returns current balances for a set of users in one pass.
func (r *Repository) BalancesOf(ctx context.Context, userIDs []string) (map[string]int64, error) {
	query := `
		SELECT user_id, COALESCE(SUM(points), 0)
		FROM point_events
		WHERE user_id = ANY($1)
		GROUP BY user_id
	`
	rows, err := r.pool.Query(ctx, query, userIDs)
	if err != nil {
		return nil, fmt.Errorf("summing balances: %w", err)
	}
	defer rows.Close()

	balances := make(map[string]int64, len(userIDs))
	for rows.Next() {
		var userID string
		var balance int64
		if err := rows.Scan(&userID, &balance); err != nil {
			return nil, fmt.Errorf("scanning balance: %w", err)
		}
		balances[userID] = balance
	}
	return balances, rows.Err()
}

// scopeClause appends the scope filter for a query whose next placeholder
// index is argIndex, returning the extended clause and args.
func scopeClause(scope domain.Scope, clause string, args []any) (string, []any) {
	switch scope.Type {
	case domain.ScopeCity:
		args = append(args, scope.ID)
		clause += fmt.Sprintf(" AND city_id = $%d", len(args))
	case domain.ScopeCategory:
		args = append(args, scope.ID)
		clause += fmt.Sprintf(" AND category_id = $%d", len(args))
	case domain.ScopeMerchant:
		args = append(args, scope.ID)
		clause += fmt.Sprintf(" AND merchant_id = $%d", len(args))
	}
	return clause, args
}

// EventsInWindow streams a user's events matching scope and window in
// timestamp order, invoking fn per event. The stream is finite and can be
// restarted by calling again.
func (r *Repository) EventsInWindow(ctx context.Context, userID string, scope domain.Scope, window domain.Window, fn func(domain.PointEvent) error) error {
	clause := `WHERE user_id = $1 AND created_at <= $2`
	args := []any{userID, window.To}
	if !window.From.IsZero() {
		args = append(args, window.From)
		clause += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	clause, args = scopeClause(scope, clause, args)

	query := `
		SELECT id, user_id, kind, points,
		       COALESCE(merchant_id, ''), COALESCE(city_id, ''), COALESCE(category_id, ''),
		       created_at
		FROM point_events ` + clause + `
		ORDER BY created_at, id
	`
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var event domain.PointEvent
		var kind string
		if err := rows.Scan(
			&event.ID, &event.UserID, &kind, &event.Points,
			&event.MerchantID, &event.CityID, &event.CategoryID,
			&event.Timestamp,
		); err != nil {
			return fmt.Errorf("scanning event: %w", err)
		}
		event.Kind = domain.EventKind(kind)
		if err := fn(event); err != nil {
			return err
		}
	}
	return rows.Err()
}

// RankingRows aggregates the full set of users with qualifying events in
// the scope and window: summed points plus the earliest event timestamp
// used by the deterministic tie-break.
func (r *Repository) RankingRows(ctx context.Context, scope domain.Scope, window domain.Window) ([]domain.RankingRow, error) {
	clause := `WHERE created_at <= $1`
	args := []any{window.To}
	if !window.From.IsZero() {
		args = append(args, window.From)
		clause += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	clause, args = scopeClause(scope, clause, args)

	query := `
		SELECT user_id, SUM(points), MIN(created_at)
		FROM point_events ` + clause + `
		GROUP BY user_id
	`
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying ranking rows: %w", err)
	}
	defer rows.Close()

	var result []domain.RankingRow
	for rows.Next() {
		var row domain.RankingRow
		if err := rows.Scan(&row.UserID, &row.TotalPoints, &row.FirstEventAt); err != nil {
			return nil, fmt.Errorf("scanning ranking row: %w", err)
		}
		result = append(result, row)
	}
	return result, rows.Err()
}
