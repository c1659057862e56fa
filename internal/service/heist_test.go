package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/points-economy/internal/domain"
	"github.com/points-economy/internal/social"
	"github.com/points-economy/internal/store"
	"github.com/stretchr/testify/require"
)

// fakeState is the in-memory world a heist runs against.
type fakeState struct {
	balances map[string]int64
	links    map[string]*domain.HeistLink
	hammers  map[string]int
	tokens   map[string]int64
	events   []domain.PointEvent
	attempts []domain.HeistAttempt
}

func newFakeState() *fakeState {
	return &fakeState{
		balances: make(map[string]int64),
		links:    make(map[string]*domain.HeistLink),
		hammers:  make(map[string]int),
		tokens:   make(map[string]int64),
	}
}

func (s *fakeState) clone() *fakeState {
	c := newFakeState()
	for k, v := range s.balances {
		c.balances[k] = v
	}
	for k, v := range s.links {
		link := *v
		c.links[k] = &link
	}
	for k, v := range s.hammers {
		c.hammers[k] = v
	}
	for k, v := range s.tokens {
		c.tokens[k] = v
	}
	c.events = append(c.events, s.events...)
	c.attempts = append(c.attempts, s.attempts...)
	return c
}

// fakeHeistTx implements store.HeistTx over a fakeState.
type fakeHeistTx struct {
	state *fakeState
}

func (t *fakeHeistTx) BalanceOf(_ context.Context, userID string, _ time.Time) (int64, error) {
	return t.state.balances[userID], nil
}

func (t *fakeHeistTx) PairLink(_ context.Context, thiefID, victimID string) (*domain.HeistLink, error) {
	return t.state.links[thiefID+"|"+victimID], nil
}

func (t *fakeHeistTx) UsableHammerCount(_ context.Context, userID string) (int, error) {
	return t.state.hammers[userID], nil
}

func (t *fakeHeistTx) TokenBalance(_ context.Context, userID string) (int64, error) {
	return t.state.tokens[userID], nil
}

func (t *fakeHeistTx) AppendTransfer(_ context.Context, debit, credit domain.PointEvent) error {
	t.state.events = append(t.state.events, debit, credit)
	t.state.balances[debit.UserID] += debit.Points
	t.state.balances[credit.UserID] += credit.Points
	return nil
}

func (t *fakeHeistTx) ConsumeHammer(_ context.Context, userID string, _ int) (string, error) {
	if t.state.hammers[userID] <= 0 {
		return "", domain.ErrNoUsableItem
	}
	t.state.hammers[userID]--
	return "hammer-1", nil
}

func (t *fakeHeistTx) DebitToken(_ context.Context, userID string) error {
	if t.state.tokens[userID] <= 0 {
		return domain.ErrNoTokens
	}
	t.state.tokens[userID]--
	return nil
}

func (t *fakeHeistTx) SetCooldown(_ context.Context, thiefID, victimID string, until time.Time) error {
	t.state.links[thiefID+"|"+victimID] = &domain.HeistLink{
		ThiefID:       thiefID,
		VictimID:      victimID,
		CooldownUntil: until,
	}
	return nil
}

func (t *fakeHeistTx) OpenRevengeWindow(_ context.Context, thiefID, victimID string, until time.Time) error {
	key := thiefID + "|" + victimID
	link := t.state.links[key]
	if link == nil {
		link = &domain.HeistLink{ThiefID: thiefID, VictimID: victimID}
		t.state.links[key] = link
	}
	u := until
	link.RevengeWindowUntil = &u
	return nil
}

func (t *fakeHeistTx) RecordAttempt(_ context.Context, attempt domain.HeistAttempt) error {
	t.state.attempts = append(t.state.attempts, attempt)
	return nil
}

// fakeHeistStore runs fn against a staged copy and commits it only when
// fn succeeds, mirroring transaction semantics. conflictsLeft injects
// transient lock failures before any attempt runs.
type fakeHeistStore struct {
	state         *fakeState
	conflictsLeft int
	lockCalls     int
}

func (s *fakeHeistStore) WithPairLock(_ context.Context, _, _ string, fn func(tx store.HeistTx) error) error {
	s.lockCalls++
	if s.conflictsLeft > 0 {
		s.conflictsLeft--
		return domain.ErrConcurrencyConflict
	}

	staged := s.state.clone()
	if err := fn(&fakeHeistTx{state: staged}); err != nil {
		return err
	}
	*s.state = *staged
	return nil
}

func (s *fakeHeistStore) RecordAttempt(_ context.Context, attempt domain.HeistAttempt) error {
	s.state.attempts = append(s.state.attempts, attempt)
	return nil
}

func newTestEngine(state *fakeState, heists *fakeHeistStore, friends ...[2]string) *Engine {
	policy := testPolicy()
	evaluator := NewEvaluator(social.NewStaticOracle(friends...), policy, testLogger())
	return NewEngine(heists, &fakeHeistTx{state: state}, evaluator, policy, nil, testLogger())
}

func TestHeistBetweenFriends(t *testing.T) {
	state := newFakeState()
	state.balances["victim"] = 100
	heists := &fakeHeistStore{state: state}
	engine := newTestEngine(state, heists, [2]string{"thief", "victim"})

	result, err := engine.Execute(context.Background(), "thief", "victim")
	require.NoError(t, err)
	require.Equal(t, int64(20), result.PointsStolen)
	require.False(t, result.HammerConsumed, "friends never spend a hammer")

	// Conservation: the transfer nets to zero across the pair.
	var sum int64
	for _, event := range state.events {
		sum += event.Points
	}
	require.Len(t, state.events, 2)
	require.Equal(t, int64(0), sum)
	require.Equal(t, int64(80), state.balances["victim"])
	require.Equal(t, int64(20), state.balances["thief"])

	// Cooldown stamped on the thief, revenge window opened for the victim.
	cooldown := state.links["thief|victim"]
	require.NotNil(t, cooldown)
	require.True(t, cooldown.CooldownUntil.After(time.Now()))
	require.Nil(t, cooldown.RevengeWindowUntil)

	revenge := state.links["victim|thief"]
	require.NotNil(t, revenge)
	require.NotNil(t, revenge.RevengeWindowUntil)

	require.Len(t, state.attempts, 1)
	require.Equal(t, domain.OutcomeSuccess, state.attempts[0].Outcome)
	require.Equal(t, int64(20), state.attempts[0].PointsStolen)
}

func TestHeistStrangerConsumesHammer(t *testing.T) {
	state := newFakeState()
	state.balances["victim"] = 100
	state.hammers["thief"] = 1
	heists := &fakeHeistStore{state: state}
	engine := newTestEngine(state, heists)

	result, err := engine.Execute(context.Background(), "thief", "victim")
	require.NoError(t, err)
	require.True(t, result.HammerConsumed)
	require.Equal(t, 0, state.hammers["thief"])
	require.Equal(t, int64(0), state.tokens["thief"], "tokens untouched while a hammer is available")
}

func TestHeistStrangerFallsBackToToken(t *testing.T) {
	state := newFakeState()
	state.balances["victim"] = 100
	state.tokens["thief"] = 2
	heists := &fakeHeistStore{state: state}
	engine := newTestEngine(state, heists)

	result, err := engine.Execute(context.Background(), "thief", "victim")
	require.NoError(t, err)
	require.False(t, result.HammerConsumed)
	require.Equal(t, int64(1), state.tokens["thief"])
}

func TestHeistLockedStrangerWritesNothing(t *testing.T) {
	state := newFakeState()
	state.balances["victim"] = 100
	heists := &fakeHeistStore{state: state}
	engine := newTestEngine(state, heists)

	_, err := engine.Execute(context.Background(), "thief", "victim")
	var ineligible *domain.IneligibleHeistError
	require.ErrorAs(t, err, &ineligible)
	require.Equal(t, domain.ReasonLocked, ineligible.Reason)

	require.Empty(t, state.events)
	require.Equal(t, int64(100), state.balances["victim"])
	require.Nil(t, state.links["thief|victim"])

	// The refusal still leaves an audit record.
	require.Len(t, state.attempts, 1)
	require.Equal(t, domain.OutcomeIneligible, state.attempts[0].Outcome)
}

func TestHeistCooldownRejectedWithoutRetry(t *testing.T) {
	state := newFakeState()
	state.balances["victim"] = 100
	state.links["thief|victim"] = &domain.HeistLink{
		ThiefID:       "thief",
		VictimID:      "victim",
		CooldownUntil: time.Now().UTC().Add(5 * time.Hour),
	}
	heists := &fakeHeistStore{state: state}
	engine := newTestEngine(state, heists, [2]string{"thief", "victim"})

	_, err := engine.Execute(context.Background(), "thief", "victim")
	var ineligible *domain.IneligibleHeistError
	require.ErrorAs(t, err, &ineligible)
	require.Equal(t, domain.ReasonCooldown, ineligible.Reason)
	require.Equal(t, 5, ineligible.HoursRemaining)
	require.Equal(t, 1, heists.lockCalls, "ineligibility is never retried")
	require.Empty(t, state.events)
}

func TestHeistRevengeBypassesCooldown(t *testing.T) {
	now := time.Now().UTC()
	revengeUntil := now.Add(time.Hour)

	state := newFakeState()
	state.balances["victim"] = 100
	state.links["thief|victim"] = &domain.HeistLink{
		ThiefID:            "thief",
		VictimID:           "victim",
		CooldownUntil:      now.Add(20 * time.Hour),
		RevengeWindowUntil: &revengeUntil,
	}
	heists := &fakeHeistStore{state: state}
	engine := newTestEngine(state, heists, [2]string{"thief", "victim"})

	result, err := engine.Execute(context.Background(), "thief", "victim")
	require.NoError(t, err)
	require.Equal(t, int64(20), result.PointsStolen)

	// The revenge strike burns the window and restarts the cooldown.
	link := state.links["thief|victim"]
	require.Nil(t, link.RevengeWindowUntil)
	require.True(t, link.CooldownUntil.After(now.Add(20*time.Hour)))
}

func TestHeistRetriesOnConflict(t *testing.T) {
	state := newFakeState()
	state.balances["victim"] = 100
	heists := &fakeHeistStore{state: state, conflictsLeft: 1}
	engine := newTestEngine(state, heists, [2]string{"thief", "victim"})

	result, err := engine.Execute(context.Background(), "thief", "victim")
	require.NoError(t, err)
	require.Equal(t, int64(20), result.PointsStolen)
	require.Equal(t, 2, heists.lockCalls)
}

func TestHeistConflictExhaustsRetries(t *testing.T) {
	state := newFakeState()
	state.balances["victim"] = 100
	heists := &fakeHeistStore{state: state, conflictsLeft: 10}
	engine := newTestEngine(state, heists, [2]string{"thief", "victim"})

	_, err := engine.Execute(context.Background(), "thief", "victim")
	require.True(t, domain.IsConflict(err))
	require.Equal(t, 3, heists.lockCalls, "initial try plus max_retries")

	require.Len(t, state.attempts, 1)
	require.Equal(t, domain.OutcomeConflict, state.attempts[0].Outcome)
	require.Empty(t, state.events)
}

func TestHeistsOnSameVictimUseReducedBalance(t *testing.T) {
	state := newFakeState()
	state.balances["victim"] = 100
	heists := &fakeHeistStore{state: state}
	engine := newTestEngine(state, heists,
		[2]string{"t1", "victim"},
		[2]string{"t2", "victim"},
	)

	first, err := engine.Execute(context.Background(), "t1", "victim")
	require.NoError(t, err)
	require.Equal(t, int64(20), first.PointsStolen)

	// The second heist evaluates against the balance the first one left,
	// not the balance it may have seen pre-flight.
	second, err := engine.Execute(context.Background(), "t2", "victim")
	require.NoError(t, err)
	require.Equal(t, int64(16), second.PointsStolen, "20% of the remaining 80")
	require.Equal(t, int64(64), state.balances["victim"])
}

func TestHeistsDrainVictimWithoutGoingNegative(t *testing.T) {
	state := newFakeState()
	state.balances["victim"] = 100
	heists := &fakeHeistStore{state: state}
	engine := newTestEngine(state, heists)

	// Fresh strangers with hammers keep stealing until nothing worth
	// taking remains.
	for i := 0; i < 100; i++ {
		thief := fmt.Sprintf("t%d", i)
		state.hammers[thief] = 1

		_, err := engine.Execute(context.Background(), thief, "victim")
		if err != nil {
			var ineligible *domain.IneligibleHeistError
			require.ErrorAs(t, err, &ineligible)
			require.Equal(t, domain.ReasonNoPoints, ineligible.Reason)
			break
		}
		require.GreaterOrEqual(t, state.balances["victim"], int64(0), "balance must never go negative")
	}

	// Drained to the point where the steal fraction rounds to zero.
	require.GreaterOrEqual(t, state.balances["victim"], int64(0))
	require.LessOrEqual(t, state.balances["victim"], int64(4))
}

func TestHeistSelfRejected(t *testing.T) {
	state := newFakeState()
	state.balances["u1"] = 100
	heists := &fakeHeistStore{state: state}
	engine := newTestEngine(state, heists)

	_, err := engine.Execute(context.Background(), "u1", "u1")
	var ineligible *domain.IneligibleHeistError
	require.ErrorAs(t, err, &ineligible)
	require.Equal(t, domain.ReasonSelf, ineligible.Reason)
}

func TestCheckEligibilityAdvisory(t *testing.T) {
	state := newFakeState()
	state.balances["victim"] = 100
	heists := &fakeHeistStore{state: state}
	engine := newTestEngine(state, heists, [2]string{"thief", "victim"})

	eligibility, err := engine.CheckEligibility(context.Background(), "thief", "victim")
	require.NoError(t, err)
	require.True(t, eligibility.Eligible)
	require.Equal(t, int64(20), eligibility.PointsWouldSteal)
	require.Equal(t, 0, heists.lockCalls, "pre-flight check takes no locks")

	_, err = engine.CheckEligibility(context.Background(), "", "victim")
	require.Error(t, err)
}
