package service

import (
	"context"
	"log/slog"

	"github.com/points-economy/internal/domain"
	"github.com/points-economy/internal/store"
)

// InventoryService serves consumable reads and provisioning outside the
// heist critical section. Hammers and tokens are only ever spent inside
// a heist transaction, never here.
type InventoryService struct {
	inventory store.InventoryStore
	attempts  store.AttemptStore
	logger    *slog.Logger
}

// NewInventoryService creates a new inventory service
func NewInventoryService(inventory store.InventoryStore, attempts store.AttemptStore, logger *slog.Logger) *InventoryService {
	return &InventoryService{
		inventory: inventory,
		attempts:  attempts,
		logger:    logger,
	}
}

// Hammers returns the user's hammer items.
func (s *InventoryService) Hammers(ctx context.Context, userID string) ([]domain.HammerItem, error) {
	return s.inventory.HammersOf(ctx, userID)
}

// Tokens returns the user's steal-token balance.
func (s *InventoryService) Tokens(ctx context.Context, userID string) (int64, error) {
	return s.inventory.TokenBalance(ctx, userID)
}

// GrantHammer provisions a hammer, e.g. after a purchase settles.
func (s *InventoryService) GrantHammer(ctx context.Context, userID string) (string, error) {
	return s.inventory.GrantHammer(ctx, userID)
}

// CreditTokens adds steal tokens and returns the new balance.
func (s *InventoryService) CreditTokens(ctx context.Context, userID string, n int64) (int64, error) {
	if n <= 0 {
		return 0, &domain.ValidationError{Field: "amount", Message: "token credit must be positive"}
	}
	return s.inventory.CreditTokens(ctx, userID, n)
}

// Attempts returns the user's newest heist audit records.
func (s *InventoryService) Attempts(ctx context.Context, userID string, limit int) ([]domain.HeistAttempt, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.attempts.AttemptsOf(ctx, userID, limit)
}
