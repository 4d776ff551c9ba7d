package links

import (
	"math"
	"time"
)

// ProviderWindow is how long a link stays payable after being handed to
// Kueski. The computation has always used 150 minutes; stray help-text
// mentions of 90 minutes were a documentation error.
const ProviderWindow = 150 * time.Minute

// LinkTTL is the general validity window applied at creation.
const LinkTTL = 7 * 24 * time.Hour

// Derive computes the effective status of a transaction as observed at now.
// It is pure and total: terminal statuses pass through untouched regardless
// of timestamps, the general expiration takes precedence over the provider
// window, and otherwise the raw status is returned.
func Derive(tx *Transaction, now time.Time) Status {
	if tx.Status.Terminal() {
		return tx.Status
	}
	if now.After(tx.ExpirationDate) {
		return StatusExpired
	}
	if tx.KueskiCreatedAt != nil && now.After(tx.KueskiCreatedAt.Add(ProviderWindow)) {
		return StatusKueskiExpired
	}
	return tx.Status
}

// RemainingProviderMinutes returns the floor of the minutes left in the
// provider window, nil when the transaction was never handed to the
// provider. Negative values mean the window has lapsed; callers must not
// clamp them to zero.
func RemainingProviderMinutes(kueskiCreatedAt *time.Time, now time.Time) *int {
	if kueskiCreatedAt == nil {
		return nil
	}
	remaining := kueskiCreatedAt.Add(ProviderWindow).Sub(now)
	mins := int(math.Floor(remaining.Minutes()))
	return &mins
}
