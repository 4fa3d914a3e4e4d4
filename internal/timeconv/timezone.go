package timeconv

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnknownTimezone is returned by ParseTimezone for names outside the
// supported set.
var ErrUnknownTimezone = errors.New("timeconv: unknown timezone")

// Timezone selects one of the supported fixed-offset zones. The zero value
// is UTC. Daylight saving is never applied.
type Timezone uint8

const (
	// UTC is the default zone (offset 0).
	UTC Timezone = iota
	// AsiaShanghai is China Standard Time (+08:00).
	AsiaShanghai
	// AsiaSeoul is Korea Standard Time (+09:00).
	AsiaSeoul
	// AsiaKolkata is India Standard Time (+05:30).
	AsiaKolkata
	// EST is Eastern Standard Time without DST (-05:00).
	EST

	numTimezones
)

// Offset returns the zone's fixed offset from UTC in seconds, positive east
// of Greenwich.
func (tz Timezone) Offset() int32 {
	switch tz {
	case AsiaShanghai:
		return 8 * SecondsPerHour
	case AsiaSeoul:
		return 9 * SecondsPerHour
	case AsiaKolkata:
		return 5*SecondsPerHour + 30*SecondsPerMinute
	case EST:
		return -5 * SecondsPerHour
	default:
		return 0
	}
}

// String returns the IANA-style name of the zone.
func (tz Timezone) String() string {
	switch tz {
	case UTC:
		return "UTC"
	case AsiaShanghai:
		return "Asia/Shanghai"
	case AsiaSeoul:
		return "Asia/Seoul"
	case AsiaKolkata:
		return "Asia/Kolkata"
	case EST:
		return "EST"
	default:
		return "Timezone(" + strconv.Itoa(int(tz)) + ")"
	}
}

// Timezones lists every supported zone in declaration order.
func Timezones() []Timezone {
	out := make([]Timezone, 0, numTimezones)
	for tz := UTC; tz < numTimezones; tz++ {
		out = append(out, tz)
	}
	return out
}

// ParseTimezone resolves a zone by name, case-insensitively. An empty name
// yields UTC.
func ParseTimezone(name string) (Timezone, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return UTC, nil
	}
	for tz := UTC; tz < numTimezones; tz++ {
		if strings.EqualFold(tz.String(), name) {
			return tz, nil
		}
	}
	return UTC, fmt.Errorf("%w: %q", ErrUnknownTimezone, name)
}
