package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPointEventValidate(t *testing.T) {
	tests := []struct {
		name   string
		event  PointEvent
		wantOK bool
	}{
		{"check-in positive", PointEvent{UserID: "u1", Kind: EventKindCheckIn, Points: 10}, true},
		{"check-in zero", PointEvent{UserID: "u1", Kind: EventKindCheckIn, Points: 0}, true},
		{"check-in negative", PointEvent{UserID: "u1", Kind: EventKindCheckIn, Points: -5}, false},
		{"referral negative", PointEvent{UserID: "u1", Kind: EventKindReferral, Points: -1}, false},
		{"steal debit negative", PointEvent{UserID: "u1", Kind: EventKindStealDebit, Points: -20}, true},
		{"steal debit zero", PointEvent{UserID: "u1", Kind: EventKindStealDebit, Points: 0}, false},
		{"steal debit positive", PointEvent{UserID: "u1", Kind: EventKindStealDebit, Points: 20}, false},
		{"steal credit positive", PointEvent{UserID: "u1", Kind: EventKindStealCredit, Points: 20}, true},
		{"steal credit zero", PointEvent{UserID: "u1", Kind: EventKindStealCredit, Points: 0}, false},
		{"steal credit negative", PointEvent{UserID: "u1", Kind: EventKindStealCredit, Points: -20}, false},
		{"unknown kind", PointEvent{UserID: "u1", Kind: "BONUS", Points: 10}, false},
		{"missing user", PointEvent{Kind: EventKindCheckIn, Points: 10}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.event.Validate()
			if tt.wantOK {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
				var validation *ValidationError
				require.ErrorAs(t, err, &validation)
			}
		})
	}
}

func TestScopeValidate(t *testing.T) {
	require.NoError(t, Scope{Type: ScopeGlobal}.Validate())
	require.NoError(t, Scope{Type: ScopeCity, ID: "istanbul"}.Validate())
	require.Error(t, Scope{Type: ScopeCity}.Validate())
	require.Error(t, Scope{Type: "planet", ID: "earth"}.Validate())
}

func TestScopeKey(t *testing.T) {
	require.Equal(t, "global", Scope{Type: ScopeGlobal}.Key())
	require.Equal(t, "city:istanbul", Scope{Type: ScopeCity, ID: "istanbul"}.Key())
}

func TestPeriodWindowAt(t *testing.T) {
	// Wednesday, mid-day UTC
	now := time.Date(2024, 5, 15, 10, 30, 0, 0, time.UTC)

	day := PeriodDay.WindowAt(now)
	require.Equal(t, time.Date(2024, 5, 15, 0, 0, 0, 0, time.UTC), day.From)
	require.Equal(t, now, day.To)

	week := PeriodWeek.WindowAt(now)
	require.Equal(t, time.Date(2024, 5, 13, 0, 0, 0, 0, time.UTC), week.From, "weeks start on Monday")

	month := PeriodMonth.WindowAt(now)
	require.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), month.From)

	all := PeriodAllTime.WindowAt(now)
	require.True(t, all.From.IsZero())
	require.Equal(t, now, all.To)
}

func TestPeriodWindowAtSunday(t *testing.T) {
	// Sunday belongs to the week that started the previous Monday.
	now := time.Date(2024, 5, 19, 23, 0, 0, 0, time.UTC)
	week := PeriodWeek.WindowAt(now)
	require.Equal(t, time.Date(2024, 5, 13, 0, 0, 0, 0, time.UTC), week.From)
}

func TestWindowContains(t *testing.T) {
	w := Window{
		From: time.Date(2024, 5, 13, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2024, 5, 15, 10, 0, 0, 0, time.UTC),
	}

	require.True(t, w.Contains(w.From))
	require.True(t, w.Contains(w.To))
	require.True(t, w.Contains(w.From.Add(time.Hour)))
	require.False(t, w.Contains(w.From.Add(-time.Second)))
	require.False(t, w.Contains(w.To.Add(time.Second)))

	unbounded := Window{To: w.To}
	require.True(t, unbounded.Contains(time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestHeistLinkNilSafe(t *testing.T) {
	var link *HeistLink
	now := time.Now()
	require.False(t, link.OnCooldown(now))
	require.False(t, link.RevengeOpen(now))
}

func TestHammerItemUsable(t *testing.T) {
	fresh := HammerItem{ID: "h1", UserID: "u1"}
	require.True(t, fresh.Usable(), "never-consumed hammer is usable")

	one := 1
	partial := HammerItem{ID: "h2", UserID: "u1", UsesRemaining: &one}
	require.True(t, partial.Usable())

	zero := 0
	spent := HammerItem{ID: "h3", UserID: "u1", UsesRemaining: &zero}
	require.False(t, spent.Usable())
}
