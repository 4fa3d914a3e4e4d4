package timeconv

// Duration is an elapsed time expressed as an int64 nanosecond count,
// which limits it to roughly 290 years.
type Duration int64

// Common durations. There is no Day or larger unit: with fixed offsets a
// day is always 24h, but keeping the set identical to the standard time
// package avoids surprises for readers.
const (
	Nanosecond  Duration = 1
	Microsecond          = 1000 * Nanosecond
	Millisecond          = 1000 * Microsecond
	Second               = 1000 * Millisecond
	Minute               = 60 * Second
	Hour                 = 60 * Minute
)

// Calendar unit counts used by the epoch decomposer.
const (
	MillisecondsPerSecond = 1000
	SecondsPerMinute      = 60
	MinutesPerHour        = 60
	HoursPerDay           = 24
	SecondsPerHour        = SecondsPerMinute * MinutesPerHour
	SecondsPerDay         = SecondsPerHour * HoursPerDay

	DaysPerYear     = 365
	DaysPerLeapYear = 366

	// A Gregorian 400-year cycle always holds exactly 97 leap days.
	daysPer400Years = DaysPerYear*400 + 97
)
