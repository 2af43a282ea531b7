package utils

import "time"

// DurationMinutes converts a pair of timestamps into minute duration.
func DurationMinutes(start, end time.Time) float64 {
	if end.Before(start) {
		start, end = end, start
	}
	return end.Sub(start).Minutes()
}

// MinutesSince returns the elapsed minutes from start to ts, negative when
// ts precedes start.
func MinutesSince(start, ts time.Time) float64 {
	return ts.Sub(start).Minutes()
}
