package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/points-economy/internal/config"
	"github.com/points-economy/internal/domain"
	"github.com/points-economy/internal/store"
)

// Engine executes heists: the only operation that touches two users'
// state at once. Each attempt runs as one atomic unit of work under the
// pair lock; either the full transfer (both ledger events, consumable
// spend, cooldown update, audit row) commits or nothing is written.
type Engine struct {
	heists    store.HeistStore
	view      store.StateView
	evaluator *Evaluator
	policy    *config.HeistConfig
	notifier  store.Notifier
	logger    *slog.Logger
}

// NewEngine creates a new heist engine
func NewEngine(
	heists store.HeistStore,
	view store.StateView,
	evaluator *Evaluator,
	policy *config.HeistConfig,
	notifier store.Notifier,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		heists:    heists,
		view:      view,
		evaluator: evaluator,
		policy:    policy,
		notifier:  notifier,
		logger:    logger,
	}
}

// CheckEligibility runs the advisory pre-flight evaluation over the pool
// state, e.g. for a confirmation dialog. It carries no guarantee by the
// time Execute runs: eligibility is re-evaluated under the pair lock.
func (e *Engine) CheckEligibility(ctx context.Context, thiefID, victimID string) (*domain.Eligibility, error) {
	if thiefID == "" || victimID == "" {
		return nil, &domain.ValidationError{Field: "user_id", Message: "thief and victim ids are required"}
	}
	return e.evaluator.Evaluate(ctx, e.view, thiefID, victimID, time.Now().UTC())
}

// Execute performs the heist. Ineligibility is returned as-is and never
// retried; transient lock conflicts are retried internally with backoff
// up to the configured bound, then surfaced as a retryable error.
func (e *Engine) Execute(ctx context.Context, thiefID, victimID string) (*domain.HeistResult, error) {
	if thiefID == "" || victimID == "" {
		return nil, &domain.ValidationError{Field: "user_id", Message: "thief and victim ids are required"}
	}

	var lastErr error
	for try := 0; try <= e.policy.MaxRetries; try++ {
		if try > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(e.policy.RetryBackoff * time.Duration(try)):
			}
		}

		result, attempt, err := e.attempt(ctx, thiefID, victimID)
		if err == nil {
			// Notification is decoupled from the transaction boundary:
			// it can neither block nor roll back the commit.
			if e.notifier != nil {
				e.notifier.NotifyHeist(attempt)
			}
			e.logger.Info("heist committed",
				"thief_id", thiefID,
				"victim_id", victimID,
				"points_stolen", result.PointsStolen,
				"hammer_consumed", result.HammerConsumed,
			)
			return result, nil
		}

		var ineligible *domain.IneligibleHeistError
		if errors.As(err, &ineligible) {
			e.audit(thiefID, victimID, domain.OutcomeIneligible)
			return nil, err
		}
		if !domain.IsConflict(err) {
			return nil, err
		}
		lastErr = err
		e.logger.Warn("heist conflict, retrying",
			"thief_id", thiefID,
			"victim_id", victimID,
			"try", try+1,
		)
	}

	e.audit(thiefID, victimID, domain.OutcomeConflict)
	return nil, lastErr
}

// attempt runs one locked transaction: re-evaluate, transfer, consume,
// stamp cooldowns, audit.
func (e *Engine) attempt(ctx context.Context, thiefID, victimID string) (*domain.HeistResult, domain.HeistAttempt, error) {
	var result domain.HeistResult
	var attempt domain.HeistAttempt

	err := e.heists.WithPairLock(ctx, thiefID, victimID, func(tx store.HeistTx) error {
		now := time.Now().UTC()

		// TOCTOU guard: the pre-flight snapshot may be stale, so the
		// decision that counts is made against the locked state.
		eligibility, err := e.evaluator.Evaluate(ctx, tx, thiefID, victimID, now)
		if err != nil {
			return err
		}
		if !eligibility.Eligible {
			return &domain.IneligibleHeistError{
				Reason:         eligibility.Reason,
				HoursRemaining: eligibility.HoursRemaining,
			}
		}

		amount := eligibility.PointsWouldSteal
		debit := domain.PointEvent{
			UserID:    victimID,
			Kind:      domain.EventKindStealDebit,
			Points:    -amount,
			Timestamp: now,
		}
		credit := domain.PointEvent{
			UserID:    thiefID,
			Kind:      domain.EventKindStealCredit,
			Points:    amount,
			Timestamp: now,
		}
		if err := tx.AppendTransfer(ctx, debit, credit); err != nil {
			return err
		}

		hammerConsumed := false
		if !eligibility.Friend {
			_, err := tx.ConsumeHammer(ctx, thiefID, e.policy.HammerUses)
			switch {
			case err == nil:
				hammerConsumed = true
			case errors.Is(err, domain.ErrNoUsableItem):
				// The hammer seen at evaluation vanished; fall back to a
				// token or abort with nothing written.
				if err := tx.DebitToken(ctx, thiefID); err != nil {
					if errors.Is(err, domain.ErrNoTokens) {
						return &domain.IneligibleHeistError{Reason: domain.ReasonLocked}
					}
					return err
				}
			default:
				return err
			}
		}

		if err := tx.SetCooldown(ctx, thiefID, victimID, now.Add(e.policy.Cooldown)); err != nil {
			return err
		}
		if err := tx.OpenRevengeWindow(ctx, victimID, thiefID, now.Add(e.policy.RevengeWindow)); err != nil {
			return err
		}

		attempt = domain.HeistAttempt{
			ID:             uuid.New().String(),
			ThiefID:        thiefID,
			VictimID:       victimID,
			Timestamp:      now,
			Outcome:        domain.OutcomeSuccess,
			PointsStolen:   amount,
			HammerConsumed: hammerConsumed,
		}
		if err := tx.RecordAttempt(ctx, attempt); err != nil {
			return err
		}

		result = domain.HeistResult{PointsStolen: amount, HammerConsumed: hammerConsumed}
		return nil
	})
	if err != nil {
		return nil, domain.HeistAttempt{}, err
	}
	return &result, attempt, nil
}

// audit best-effort records attempts that never reached a commit. A
// failure here is logged and dropped; the caller's error is unaffected.
func (e *Engine) audit(thiefID, victimID string, outcome domain.HeistOutcome) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	attempt := domain.HeistAttempt{
		ID:        uuid.New().String(),
		ThiefID:   thiefID,
		VictimID:  victimID,
		Timestamp: time.Now().UTC(),
		Outcome:   outcome,
	}
	if err := e.heists.RecordAttempt(ctx, attempt); err != nil {
		e.logger.Warn("failed to record heist attempt",
			"thief_id", thiefID,
			"victim_id", victimID,
			"outcome", string(outcome),
			"error", err,
		)
	}
}
