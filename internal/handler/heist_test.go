package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/points-economy/internal/config"
	"github.com/points-economy/internal/domain"
	"github.com/points-economy/internal/service"
	"github.com/points-economy/internal/social"
	"github.com/points-economy/internal/store"
	"github.com/stretchr/testify/require"
)

// stubHeistState serves a fixed victim balance and pair link; no heist
// through it ever reaches a write.
type stubHeistState struct {
	balance int64
	link    *domain.HeistLink
}

func (s *stubHeistState) BalanceOf(context.Context, string, time.Time) (int64, error) {
	return s.balance, nil
}

func (s *stubHeistState) PairLink(context.Context, string, string) (*domain.HeistLink, error) {
	return s.link, nil
}

func (s *stubHeistState) UsableHammerCount(context.Context, string) (int, error) { return 0, nil }
func (s *stubHeistState) TokenBalance(context.Context, string) (int64, error)    { return 0, nil }

func (s *stubHeistState) AppendTransfer(context.Context, domain.PointEvent, domain.PointEvent) error {
	return nil
}

func (s *stubHeistState) ConsumeHammer(context.Context, string, int) (string, error) {
	return "", domain.ErrNoUsableItem
}

func (s *stubHeistState) DebitToken(context.Context, string) error { return domain.ErrNoTokens }

func (s *stubHeistState) SetCooldown(context.Context, string, string, time.Time) error { return nil }

func (s *stubHeistState) OpenRevengeWindow(context.Context, string, string, time.Time) error {
	return nil
}

func (s *stubHeistState) RecordAttempt(context.Context, domain.HeistAttempt) error { return nil }

type stubHeistStore struct {
	state *stubHeistState
}

func (s *stubHeistStore) WithPairLock(_ context.Context, _, _ string, fn func(tx store.HeistTx) error) error {
	return fn(s.state)
}

func (s *stubHeistStore) RecordAttempt(context.Context, domain.HeistAttempt) error { return nil }

func newHeistHandler(state *stubHeistState, friends ...[2]string) *Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	policy := &config.HeistConfig{
		StealPercent:  20,
		Cooldown:      24 * time.Hour,
		RevengeWindow: 2 * time.Hour,
		HammerUses:    1,
		MaxRetries:    1,
		RetryBackoff:  time.Millisecond,
	}
	evaluator := service.NewEvaluator(social.NewStaticOracle(friends...), policy, logger)
	engine := service.NewEngine(&stubHeistStore{state: state}, state, evaluator, policy, nil, logger)
	return NewHandler(nil, nil, engine, nil, nil, nil, nil, logger)
}

type heistRefusalBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Data    struct {
		Eligible bool                   `json:"eligible"`
		Reason   string                 `json:"reason"`
		Details  map[string]interface{} `json:"details"`
	} `json:"data"`
}

func TestExecuteHeistCooldownCarriesHoursRemaining(t *testing.T) {
	state := &stubHeistState{
		balance: 100,
		link: &domain.HeistLink{
			ThiefID:       "thief",
			VictimID:      "victim",
			CooldownUntil: time.Now().UTC().Add(5 * time.Hour),
		},
	}
	h := newHeistHandler(state, [2]string{"thief", "victim"})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/heists",
		bytes.NewBufferString(`{"thief_id":"thief","victim_id":"victim"}`))
	rec := httptest.NewRecorder()
	h.ExecuteHeist(rec, req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var body heistRefusalBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.False(t, body.Success)
	require.False(t, body.Data.Eligible)
	require.Equal(t, string(domain.ReasonCooldown), body.Data.Reason)
	require.Equal(t, float64(5), body.Data.Details["hours_remaining"])
}

func TestExecuteHeistLockedOmitsDetails(t *testing.T) {
	// Stranger with no hammer and no tokens: refused without a countdown.
	state := &stubHeistState{balance: 100}
	h := newHeistHandler(state)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/heists",
		bytes.NewBufferString(`{"thief_id":"thief","victim_id":"victim"}`))
	rec := httptest.NewRecorder()
	h.ExecuteHeist(rec, req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var body heistRefusalBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, string(domain.ReasonLocked), body.Data.Reason)
	require.Nil(t, body.Data.Details)
}
