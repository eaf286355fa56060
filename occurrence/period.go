/*
period.go - Reset boundary math

PURPOSE:
  Decides when a tracker's counting period has rolled over. A tracker
  resets when the current date has crossed the start of a new period
  (month/quarter/year) since its LastResetAt; NEVER-period trackers only
  reset by explicit administrative action.

  All boundaries are computed in UTC on day granularity.
*/
package occurrence

import "time"

// periodStart returns the first instant of the period containing t.
func periodStart(p ResetPeriod, t time.Time) time.Time {
	t = t.UTC()
	switch p {
	case ResetMonthly:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	case ResetQuarterly:
		quarterMonth := time.Month((int(t.Month())-1)/3*3 + 1)
		return time.Date(t.Year(), quarterMonth, 1, 0, 0, 0, 0, time.UTC)
	case ResetYearly:
		return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Time{}
	}
}

// boundaryCrossed reports whether now is in a later period than lastResetAt.
func boundaryCrossed(p ResetPeriod, lastResetAt, now time.Time) bool {
	if p == ResetNever || lastResetAt.IsZero() {
		return false
	}
	return lastResetAt.UTC().Before(periodStart(p, now))
}
