// Package timeutil provides utilities for working with time in a consistent
// manner. All time-related functions ensure the time is represented
// in UTC, helping to avoid issues related to time zone discrepancies.
package timeutil

import "time"

// Clock returns the current time. It allows callers to inject a controlled
// time source.
type Clock func() time.Time

func TimestampNow() int {
	return int(time.Now().Unix())
}

func Timestamp(t time.Time) int {
	return int(t.Unix())
}

func Now() time.Time {
	return time.Now().UTC()
}

// Time converts a unix timestamp back to a UTC time.
func Time(timestamp int) time.Time {
	return time.Unix(int64(timestamp), 0).UTC()
}
