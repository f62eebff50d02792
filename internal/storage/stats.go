package storage

import "time"

// ConsecutiveDays returns the length of the unbroken run of calendar days
// with activity, counted backwards from now. A run that ended yesterday
// still counts; a gap before that ends it. Timestamps are bucketed by UTC
// calendar day.
func ConsecutiveDays(activity []time.Time, now time.Time) int {
	if len(activity) == 0 {
		return 0
	}

	days := make(map[int64]struct{}, len(activity))
	for _, t := range activity {
		days[dayOrdinal(t.UTC())] = struct{}{}
	}

	today := dayOrdinal(now.UTC())
	start := today
	if _, ok := days[start]; !ok {
		// No activity today: the run may have ended yesterday.
		start = today - 1
		if _, ok := days[start]; !ok {
			return 0
		}
	}

	count := 0
	for day := start; ; day-- {
		if _, ok := days[day]; !ok {
			break
		}
		count++
	}
	return count
}

func dayOrdinal(t time.Time) int64 {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC).Unix() / 86400
}
