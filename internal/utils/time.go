package utils

import (
	"time"
)

// NowUTC returns current time in UTC.
func NowUTC() time.Time {
	return time.Now().UTC()
}

// BookingDay is the yyyymmdd counter key used for booking numbers.
func BookingDay(t time.Time) string {
	return t.UTC().Format("20060102")
}
