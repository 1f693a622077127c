package cron

import (
	"log/slog"
	"time"
)

// maxWalkMinutes bounds the next-run search to roughly one year so a
// cron spec that can never match (e.g. Feb 30) doesn't spin forever.
const maxWalkMinutes = 525600

// NextRun finds the first whole-minute instant strictly after now that
// satisfies s, walking forward minute by minute in loc from the minute
// following now. If no match is found within
// maxWalkMinutes, it falls back to now+1h and logs the failure.
func NextRun(s Spec, now time.Time, loc *time.Location) time.Time {
	now = now.In(loc)
	t := now.Truncate(time.Minute).Add(time.Minute)

	for i := 0; i < maxWalkMinutes; i++ {
		if s.matches(t) {
			return t
		}
		t = t.Add(time.Minute)
	}

	slog.Warn("cron: no matching instant found within search window, falling back", "spec", s.raw)
	return now.Add(time.Hour)
}

func (s Spec) matches(t time.Time) bool {
	return s.minute.matches(t.Minute()) &&
		s.hour.matches(t.Hour()) &&
		s.dayOfMonth.matches(t.Day()) &&
		s.month.matches(int(t.Month())) &&
		s.dayOfWeek.matches(int(t.Weekday()))
}
