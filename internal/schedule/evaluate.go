package schedule

import "time"

// NextRun returns the smallest boundary at or after now (seconds zero, minute
// aligned to the interval) whose weekday and hour are both eligible. NextRun
// is pure: the same inputs always give the same result.
func NextRun(spec Spec, now time.Time) time.Time {
	if spec.sched == nil {
		return time.Time{}
	}
	start := now.Truncate(time.Minute)
	if start.Before(now) {
		start = start.Add(time.Minute)
	}
	// cron.Schedule.Next is strictly-after and works at second granularity.
	return spec.sched.Next(start.Add(-time.Second))
}

// IsDue reports whether a run anchored at lastRun should fire at now: now has
// reached the next boundary after lastRun and itself lies inside the window.
func IsDue(spec Spec, now, lastRun time.Time) bool {
	if !spec.Contains(now) {
		return false
	}
	return !now.Before(NextRun(spec, lastRun))
}

// Upcoming lists the next n boundaries at or after from.
func Upcoming(spec Spec, from time.Time, n int) []time.Time {
	if n <= 0 || spec.sched == nil {
		return nil
	}
	out := make([]time.Time, 0, n)
	next := NextRun(spec, from)
	for len(out) < n && !next.IsZero() {
		out = append(out, next)
		next = spec.Next(next)
	}
	return out
}
