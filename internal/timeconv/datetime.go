// Package timeconv decodes Unix epoch timestamps into civil calendar
// date-times for a closed set of fixed-offset timezones.
//
// The decoder is pure and allocation free so it can be used from logging
// and protocol paths on small devices:
//
//	dt := timeconv.FromUnixMillis(1704067199998, timeconv.AsiaShanghai)
//	// dt.Year == 2024, dt.Month == 1, dt.Day == 1, dt.Hour == 7
package timeconv

// DateTime is a civil date-time in the proleptic Gregorian calendar,
// already shifted into Timezone.
//
// Year is normally >= 1970. The only exception is a negative-offset zone
// during the first hours of the epoch, where the local date is
// 1969-12-31.
type DateTime struct {
	Year        uint32
	Month       uint8 // 1-12
	Day         uint8 // 1-31
	Hour        uint8 // 0-23
	Minute      uint8 // 0-59
	Second      uint8 // 0-59
	Millisecond uint16

	// Timezone is the zone the value was decoded for. It is carried for
	// display only.
	Timezone Timezone
}

var monthDays = [2][12]uint8{
	{31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31},
	{31, 29, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31},
}

// FromUnixSecs decodes a count of seconds since 1970-01-01T00:00:00Z.
//
// The value is scaled to milliseconds in uint64 arithmetic. Inputs above
// MaxUnixSecs wrap around; callers must keep the value in range.
func FromUnixSecs(timestamp uint64, tz Timezone) DateTime {
	return FromUnixMillis(timestamp*MillisecondsPerSecond, tz)
}

// MaxUnixSecs is the largest seconds value FromUnixSecs accepts without
// wrapping.
const MaxUnixSecs = ^uint64(0) / MillisecondsPerSecond

// FromUnixMillis decodes a count of milliseconds since
// 1970-01-01T00:00:00Z into a DateTime for tz.
//
// The full offset of tz, including any sub-hour part, is applied to the
// time of day before the calendar date is resolved.
func FromUnixMillis(timestamp uint64, tz Timezone) DateTime {
	millis := timestamp % MillisecondsPerSecond
	secs := timestamp / MillisecondsPerSecond

	days := int64(secs / SecondsPerDay)
	secOfDay := int64(secs%SecondsPerDay) + int64(tz.Offset())
	for secOfDay < 0 {
		secOfDay += SecondsPerDay
		days--
	}
	for secOfDay >= SecondsPerDay {
		secOfDay -= SecondsPerDay
		days++
	}

	year, dayOfYear := resolveYear(days)
	month, day := resolveMonth(year, dayOfYear)

	return DateTime{
		Year:        year,
		Month:       month,
		Day:         day,
		Hour:        uint8(secOfDay / SecondsPerHour),
		Minute:      uint8(secOfDay % SecondsPerHour / SecondsPerMinute),
		Second:      uint8(secOfDay % SecondsPerMinute),
		Millisecond: uint16(millis),
		Timezone:    tz,
	}
}

// resolveYear turns a day count relative to 1970-01-01 into a year and the
// zero-based day within that year.
func resolveYear(days int64) (uint32, int64) {
	year := uint32(1970)
	for days < 0 {
		year--
		days += daysInYear(year)
	}

	if days >= daysPer400Years {
		cycles := days / daysPer400Years
		year += uint32(cycles * 400)
		days -= cycles * daysPer400Years
	}

	for days >= daysInYear(year) {
		days -= daysInYear(year)
		year++
	}
	return year, days
}

// resolveMonth turns a zero-based day of year into a 1-based month and day.
func resolveMonth(year uint32, dayOfYear int64) (uint8, uint8) {
	table := &monthDays[0]
	if IsLeapYear(year) {
		table = &monthDays[1]
	}

	month := 0
	for month < len(table)-1 && dayOfYear >= int64(table[month]) {
		dayOfYear -= int64(table[month])
		month++
	}
	return uint8(month + 1), uint8(dayOfYear + 1)
}

// IsLeapYear reports whether year has 366 days in the Gregorian calendar.
func IsLeapYear(year uint32) bool {
	return (year%4 == 0 && year%100 != 0) || year%400 == 0
}

// DaysInMonth returns the length of month (1-12) in year, or 0 for an
// invalid month.
func DaysInMonth(year uint32, month uint8) uint8 {
	if month < 1 || month > 12 {
		return 0
	}
	if IsLeapYear(year) {
		return monthDays[1][month-1]
	}
	return monthDays[0][month-1]
}

func daysInYear(year uint32) int64 {
	if IsLeapYear(year) {
		return DaysPerLeapYear
	}
	return DaysPerYear
}
