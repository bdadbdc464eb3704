package core

import (
	"math"
	"time"
)

// CoordinatorDays is the default coordinator duration for a session: the
// number of calendar days from start to end, counting both endpoints.
// Missing or inverted dates give one day.
func CoordinatorDays(start, end time.Time) int {
	if start.IsZero() || end.IsZero() || end.Before(start) {
		return 1
	}
	days := math.Ceil(end.Sub(start).Hours() / 24)
	return int(days) + 1
}

// DefaultCoordinatorFee builds the fee proposed for a session that has a
// coordinator but no saved fee yet.
func DefaultCoordinatorFee(start, end time.Time) CoordinatorFee {
	return CoordinatorFee{
		NumDays:   CoordinatorDays(start, end),
		DailyRate: DefaultDailyRate,
	}
}

// ParseSessionDate parses a YYYY-MM-DD or RFC 3339 session date; it returns
// the zero time when the value is blank or malformed.
func ParseSessionDate(s string) time.Time {
	for _, layout := range []string{dateLayout, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
