// Package gate enforces the minimum interval between full syncs per user.
package gate

import "time"

// Window is the minimum interval between two syncs of the same user.
const Window = 12 * time.Hour

// Allow reports whether a sync may run now and, when denied, the remaining
// wait. A nil lastSyncedAt means the user has never synced. Bypass is for
// administrative and bulk contexts.
//
// The cooldown state is the user's lastSyncedAt column, advanced inside the
// reconciliation transaction, so the gate stays correct across concurrent
// processes.
func Allow(lastSyncedAt *time.Time, now time.Time, bypass bool) (bool, time.Duration) {
	if bypass || lastSyncedAt == nil {
		return true, 0
	}
	next := lastSyncedAt.Add(Window)
	if now.Before(next) {
		return false, next.Sub(now)
	}
	return true, 0
}
