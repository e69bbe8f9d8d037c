// Package timeslot holds the clock arithmetic every scheduling decision is
// built on: "HH:mm" times on a day of week, compared as minutes of day.
package timeslot

import (
	"fmt"
	"time"
)

// MinutesPerDay is the clock range upper bound.
const MinutesPerDay = 24 * 60

// ParseClock converts a strict "HH:mm" string to a minute of day.
func ParseClock(s string) (int, error) {
	if len(s) != 5 || s[2] != ':' {
		return 0, fmt.Errorf("invalid clock value %q: expected HH:mm", s)
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid clock value %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Compare orders two minutes of day: -1 when a is earlier, 1 when later, 0 on equal.
func Compare(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Overlaps reports whether two half-open intervals intersect. Back-to-back
// slots (one ending exactly when the other starts) do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd int) bool {
	return aStart < bEnd && bStart < aEnd
}

// FitsWithin reports whether [start, end] lies inside [lo, hi], bounds inclusive.
func FitsWithin(start, end, lo, hi int) bool {
	return lo <= start && end <= hi
}

// ValidRange parses both clock strings and checks start < end.
// Midnight wraparound is not a valid window.
func ValidRange(start, end string) (startMin, endMin int, err error) {
	startMin, err = ParseClock(start)
	if err != nil {
		return 0, 0, err
	}
	endMin, err = ParseClock(end)
	if err != nil {
		return 0, 0, err
	}
	if startMin >= endMin {
		return 0, 0, fmt.Errorf("invalid range %s-%s: start must precede end", start, end)
	}
	return startMin, endMin, nil
}

// IsValid reports whether start/end form a well-formed same-day interval.
func IsValid(start, end string) bool {
	_, _, err := ValidRange(start, end)
	return err == nil
}

// MinutesUntilClock returns the gap in minutes between now's time of day and
// the given "HH:mm" start. Only the clock component of now participates; the
// date is deliberately ignored, so a window earlier in the day yields a
// negative gap. The cancellation notice policy reads this single function, so
// a date-aware policy can later be swapped in here.
func MinutesUntilClock(start string, now time.Time) (int, error) {
	startMin, err := ParseClock(start)
	if err != nil {
		return 0, err
	}
	nowMin := now.Hour()*60 + now.Minute()
	return startMin - nowMin, nil
}
