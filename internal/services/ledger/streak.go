package ledger

import "time"

// streakGraceWindow lets an activity shortly after UTC midnight still count
// toward the previous calendar day's streak, per §4.6.
const streakGraceWindow = 2 * time.Hour

// NextStreak computes current_streak for an activity at activityAt given the
// user's previousActivityAt and the streak value behind it. A second
// activity on the same grace-adjusted calendar day leaves the streak
// unchanged; the next calendar day extends it; any gap resets it to 1.
func NextStreak(activityAt, previousActivityAt time.Time, previousStreak int64) int64 {
	if previousActivityAt.IsZero() {
		return 1
	}
	switch streakDay(activityAt) - streakDay(previousActivityAt) {
	case 0:
		return previousStreak
	case 1:
		return previousStreak + 1
	default:
		return 1
	}
}

// streakDay buckets t into a calendar-day index, shifted back by the grace
// window so the first streakGraceWindow of a UTC day still belongs to the
// previous day's bucket.
func streakDay(t time.Time) int64 {
	adjusted := t.UTC().Add(-streakGraceWindow)
	return adjusted.Unix() / int64((24 * time.Hour).Seconds())
}
