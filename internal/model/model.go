package model

import (
	"time"

	"epochcal/internal/timeconv"
)

// Sample is a single reading from a clock source, decoded into the
// configured timezone.
type Sample struct {
	// Source is the name of the clock source (e.g. "system", "rtc").
	Source string

	// UnixMillis is the raw reading in milliseconds since the Unix epoch.
	UnixMillis uint64

	// Local is UnixMillis decoded for the display timezone.
	Local timeconv.DateTime

	// TakenAt is the host wall-clock time when the sample was taken. It is
	// only used for cache expiry and may differ from UnixMillis when the
	// source is an external RTC.
	TakenAt time.Time
}
