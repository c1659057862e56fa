package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/points-economy/internal/config"
	"github.com/points-economy/internal/domain"
	"github.com/points-economy/internal/store"
)

// Evaluator decides whether a thief may steal from a victim. It is pure
// given a state view and an instant: the same view and clock always yield
// the same answer. A pre-flight evaluation over the pool is advisory
// only; the heist engine re-runs it against the locked state before any
// write.
type Evaluator struct {
	oracle store.FriendOracle
	policy *config.HeistConfig
	logger *slog.Logger
}

// NewEvaluator creates a new eligibility evaluator
func NewEvaluator(oracle store.FriendOracle, policy *config.HeistConfig, logger *slog.Logger) *Evaluator {
	return &Evaluator{
		oracle: oracle,
		policy: policy,
		logger: logger,
	}
}

// stealAmount applies the configured steal fraction to the balance,
// capped at the balance. Integer math keeps the result deterministic.
func (e *Evaluator) stealAmount(balance int64) int64 {
	amount := balance * int64(e.policy.StealPercent) / 100
	if amount > balance {
		amount = balance
	}
	return amount
}

// Evaluate applies the decision rules in order; the first matching rule
// wins:
//
//  1. thief == victim            -> SELF
//  2. victim balance <= 0        -> NO_POINTS
//  3. pair cooldown active and
//     no open revenge window     -> COOLDOWN
//  4. not friends, no usable
//     hammer, no tokens          -> LOCKED
//  5. otherwise eligible; the steal amount must round to a positive
//     integer or the attempt degrades to NO_POINTS.
func (e *Evaluator) Evaluate(ctx context.Context, view store.StateView, thiefID, victimID string, now time.Time) (*domain.Eligibility, error) {
	if thiefID == victimID {
		return &domain.Eligibility{Reason: domain.ReasonSelf}, nil
	}

	victimBalance, err := view.BalanceOf(ctx, victimID, now)
	if err != nil {
		return nil, fmt.Errorf("reading victim balance: %w", err)
	}
	if victimBalance <= 0 {
		return &domain.Eligibility{Reason: domain.ReasonNoPoints}, nil
	}

	link, err := view.PairLink(ctx, thiefID, victimID)
	if err != nil {
		return nil, fmt.Errorf("reading pair link: %w", err)
	}
	if link.OnCooldown(now) && !link.RevengeOpen(now) {
		remaining := int(link.CooldownUntil.Sub(now).Hours())
		if link.CooldownUntil.Sub(now)%time.Hour > 0 {
			remaining++
		}
		return &domain.Eligibility{
			Reason:         domain.ReasonCooldown,
			HoursRemaining: remaining,
		}, nil
	}

	friend, err := e.oracle.IsFriend(ctx, thiefID, victimID)
	if err != nil {
		// Fail closed: without a friendship answer no heist proceeds.
		e.logger.Warn("friendship oracle unavailable",
			"thief_id", thiefID,
			"victim_id", victimID,
			"error", err,
		)
		return nil, fmt.Errorf("querying friendship oracle: %w", err)
	}
	if !friend {
		hammers, err := view.UsableHammerCount(ctx, thiefID)
		if err != nil {
			return nil, fmt.Errorf("counting hammers: %w", err)
		}
		if hammers == 0 {
			tokens, err := view.TokenBalance(ctx, thiefID)
			if err != nil {
				return nil, fmt.Errorf("reading token balance: %w", err)
			}
			if tokens <= 0 {
				return &domain.Eligibility{Reason: domain.ReasonLocked}, nil
			}
		}
	}

	amount := e.stealAmount(victimBalance)
	if amount <= 0 {
		return &domain.Eligibility{Reason: domain.ReasonNoPoints}, nil
	}

	return &domain.Eligibility{
		Eligible:         true,
		PointsWouldSteal: amount,
		Friend:           friend,
	}, nil
}
