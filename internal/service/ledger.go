package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/points-economy/internal/domain"
	"github.com/points-economy/internal/store"
)

// LedgerService records point-earning events and answers balance reads.
// Events come in from the HTTP layer and the Kafka feed; STEAL events are
// appended only by the heist engine.
type LedgerService struct {
	events store.EventStore
	logger *slog.Logger
}

// NewLedgerService creates a new ledger service
func NewLedgerService(events store.EventStore, logger *slog.Logger) *LedgerService {
	return &LedgerService{
		events: events,
		logger: logger,
	}
}

// Record validates the event's sign convention and appends it. Steal
// kinds are reserved for the heist engine and rejected here.
func (s *LedgerService) Record(ctx context.Context, event domain.PointEvent) (string, error) {
	if event.Kind == domain.EventKindStealCredit || event.Kind == domain.EventKindStealDebit {
		return "", &domain.ValidationError{Field: "kind", Message: "steal events are created by the heist engine only"}
	}
	if err := event.Validate(); err != nil {
		return "", err
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	id, err := s.events.InsertEvent(ctx, event)
	if err != nil {
		return "", fmt.Errorf("recording event: %w", err)
	}
	return id, nil
}

// Balance returns the user's current balance.
func (s *LedgerService) Balance(ctx context.Context, userID string) (int64, error) {
	return s.events.BalanceOf(ctx, userID, time.Now().UTC())
}

// BalanceAt returns the user's balance as of a point in time.
func (s *LedgerService) BalanceAt(ctx context.Context, userID string, asOf time.Time) (int64, error) {
	return s.events.BalanceOf(ctx, userID, asOf)
}

// EventsInWindow streams the user's events matching scope and window.
func (s *LedgerService) EventsInWindow(ctx context.Context, userID string, scope domain.Scope, window domain.Window, fn func(domain.PointEvent) error) error {
	return s.events.EventsInWindow(ctx, userID, scope, window, fn)
}
