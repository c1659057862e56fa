package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/points-economy/internal/config"
	"github.com/points-economy/internal/domain"
)

// querier is the query surface shared by the pool and a transaction, so
// the same SQL helpers serve both pool-backed reads and the locked heist
// transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository provides PostgreSQL-based data access
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRepository creates a new PostgreSQL repository
func NewRepository(cfg *config.PostgresConfig, logger *slog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Repository{
		pool:   pool,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (r *Repository) Close() {
	r.pool.Close()
}

// Pool returns the underlying connection pool
func (r *Repository) Pool() *pgxpool.Pool {
	return r.pool
}

// RunMigrations executes database migrations
func (r *Repository) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS point_events (
			id UUID PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			kind VARCHAR(20) NOT NULL,
			points BIGINT NOT NULL,
			merchant_id VARCHAR(64),
			city_id VARCHAR(64),
			category_id VARCHAR(64),
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS ledger_accounts (
			user_id VARCHAR(64) PRIMARY KEY,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS hammer_items (
			id UUID PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			uses_remaining INT,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS steal_tokens (
			user_id VARCHAR(64) PRIMARY KEY,
			balance BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0)
		)`,
		`CREATE TABLE IF NOT EXISTS heist_links (
			thief_id VARCHAR(64) NOT NULL,
			victim_id VARCHAR(64) NOT NULL,
			cooldown_until TIMESTAMPTZ NOT NULL,
			revenge_window_until TIMESTAMPTZ,
			updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (thief_id, victim_id)
		)`,
		`CREATE TABLE IF NOT EXISTS heist_attempts (
			id UUID PRIMARY KEY,
			thief_id VARCHAR(64) NOT NULL,
			victim_id VARCHAR(64) NOT NULL,
			outcome VARCHAR(16) NOT NULL,
			points_stolen BIGINT NOT NULL DEFAULT 0,
			hammer_consumed BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_point_events_user ON point_events(user_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_point_events_window ON point_events(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_hammer_items_user ON hammer_items(user_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_heist_attempts_thief ON heist_attempts(thief_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_heist_attempts_victim ON heist_attempts(victim_id, created_at DESC)`,
	}

	for _, migration := range migrations {
		_, err := r.pool.Exec(ctx, migration)
		if err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	r.logger.Info("database migrations completed")
	return nil
}

// conflictCodes are the SQLSTATEs pgx reports for serialization failures
// and deadlocks between concurrent heists.
var conflictCodes = map[string]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
}

// mapConflict translates transient lock failures into the retryable
// domain conflict error; everything else passes through.
func mapConflict(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && conflictCodes[pgErr.Code] {
		return fmt.Errorf("%w: %s", domain.ErrConcurrencyConflict, pgErr.Code)
	}
	return err
}

// ensureAccount lazily creates the lockable per-user aggregate row.
func ensureAccount(ctx context.Context, q querier, userID string) error {
	_, err := q.Exec(ctx,
		`INSERT INTO ledger_accounts (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("ensuring ledger account: %w", err)
	}
	return nil
}
