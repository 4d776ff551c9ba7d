package links

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var statusNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func ptrTime(t time.Time) *time.Time { return &t }

func TestDeriveTerminalPassthrough(t *testing.T) {
	// Terminal statuses survive even absurd timestamps.
	longAgo := statusNow.Add(-365 * 24 * time.Hour)
	for _, status := range []Status{StatusApproved, StatusPaidCash, StatusCanceled, StatusDenied} {
		tx := &Transaction{
			Status:          status,
			ExpirationDate:  longAgo,
			KueskiCreatedAt: ptrTime(longAgo),
		}
		assert.Equal(t, status, Derive(tx, statusNow), "status %s", status)
	}
}

func TestDeriveGeneralExpiry(t *testing.T) {
	tx := &Transaction{
		Status:         StatusPending,
		ExpirationDate: statusNow.Add(-time.Second),
	}
	assert.Equal(t, StatusExpired, Derive(tx, statusNow))

	// At exactly the deadline the link is still valid.
	tx.ExpirationDate = statusNow
	assert.Equal(t, StatusPending, Derive(tx, statusNow))
}

func TestDeriveExpiryPrecedesProviderWindow(t *testing.T) {
	// Both deadlines lapsed: the general expiry wins.
	tx := &Transaction{
		Status:          StatusPending,
		ExpirationDate:  statusNow.Add(-time.Hour),
		KueskiCreatedAt: ptrTime(statusNow.Add(-4 * time.Hour)),
	}
	assert.Equal(t, StatusExpired, Derive(tx, statusNow))
}

func TestDeriveProviderWindow(t *testing.T) {
	future := statusNow.Add(LinkTTL)

	tx := &Transaction{
		Status:          StatusPending,
		ExpirationDate:  future,
		KueskiCreatedAt: ptrTime(statusNow.Add(-ProviderWindow - time.Second)),
	}
	assert.Equal(t, StatusKueskiExpired, Derive(tx, statusNow))

	// At exactly the window edge the link is still inside it.
	tx.KueskiCreatedAt = ptrTime(statusNow.Add(-ProviderWindow))
	assert.Equal(t, StatusPending, Derive(tx, statusNow))

	// No handoff stamp means no window to lapse.
	tx.KueskiCreatedAt = nil
	assert.Equal(t, StatusPending, Derive(tx, statusNow))
}

func TestDerivePendingCashUnderProviderWindow(t *testing.T) {
	// The window applies to any non-terminal status that carries a
	// handoff stamp; without the stamp a cash intent only ages out via
	// the general expiry.
	tx := &Transaction{
		Status:          StatusPendingCash,
		ExpirationDate:  statusNow.Add(24 * time.Hour),
		KueskiCreatedAt: ptrTime(statusNow.Add(-4 * time.Hour)),
	}
	assert.Equal(t, StatusKueskiExpired, Derive(tx, statusNow))

	tx.KueskiCreatedAt = nil
	assert.Equal(t, StatusPendingCash, Derive(tx, statusNow))
}

func TestRemainingProviderMinutes(t *testing.T) {
	assert.Nil(t, RemainingProviderMinutes(nil, statusNow))

	cases := []struct {
		name    string
		started time.Time
		want    int
	}{
		{"just handed off", statusNow, 150},
		{"half a minute in", statusNow.Add(-30 * time.Second), 149},
		{"one hour in", statusNow.Add(-time.Hour), 90},
		{"at the edge", statusNow.Add(-ProviderWindow), 0},
		{"one second past", statusNow.Add(-ProviderWindow - time.Second), -1},
		{"long lapsed", statusNow.Add(-ProviderWindow - 90*time.Minute), -90},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := RemainingProviderMinutes(&tc.started, statusNow)
			require.NotNil(t, got)
			assert.Equal(t, tc.want, *got)
		})
	}
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StatusPending, StatusPendingCash))
	assert.True(t, CanTransition(StatusPending, StatusApproved))
	assert.True(t, CanTransition(StatusPending, StatusDenied))
	assert.True(t, CanTransition(StatusPending, StatusCanceled))
	assert.True(t, CanTransition(StatusPendingCash, StatusPaidCash))
	assert.True(t, CanTransition(StatusPendingCash, StatusCanceled))

	// Terminal statuses are dead ends.
	for _, from := range []Status{StatusApproved, StatusPaidCash, StatusCanceled, StatusDenied} {
		assert.False(t, CanTransition(from, StatusCanceled), "from %s", from)
	}

	assert.False(t, CanTransition(StatusPending, StatusPaidCash))
	assert.False(t, CanTransition(StatusPendingCash, StatusApproved))
	assert.False(t, CanTransition(StatusExpired, StatusCanceled))
}

func TestTransitionSources(t *testing.T) {
	assert.ElementsMatch(t, []Status{StatusPending, StatusPendingCash}, TransitionSources(StatusCanceled))
	assert.ElementsMatch(t, []Status{StatusPending}, TransitionSources(StatusApproved))
	assert.ElementsMatch(t, []Status{StatusPendingCash}, TransitionSources(StatusPaidCash))
	assert.Empty(t, TransitionSources(StatusExpired))
}

func TestStatusValid(t *testing.T) {
	for _, s := range []Status{
		StatusPending, StatusPendingCash, StatusApproved, StatusPaidCash,
		StatusCanceled, StatusDenied, StatusExpired, StatusKueskiExpired,
	} {
		assert.True(t, s.Valid(), "status %s", s)
	}
	assert.False(t, Status("paid").Valid())
	assert.False(t, Status("").Valid())
}
