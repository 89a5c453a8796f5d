package era5

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// TimeUnits is a parsed CF time unit such as "hours since 1900-01-01 00:00:00.0".
type TimeUnits struct {
	Unit      time.Duration
	Reference time.Time
}

var unitNames = map[string]time.Duration{
	"seconds": time.Second,
	"second":  time.Second,
	"minutes": time.Minute,
	"minute":  time.Minute,
	"hours":   time.Hour,
	"hour":    time.Hour,
	"days":    24 * time.Hour,
	"day":     24 * time.Hour,
}

var referenceLayouts = []string{
	"2006-01-02 15:04:05.0",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05Z",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTimeUnits parses a "<unit> since <reference>" string. The reference
// time is taken as UTC.
func ParseTimeUnits(s string) (TimeUnits, error) {
	unit, ref, ok := strings.Cut(strings.TrimSpace(s), " since ")
	if !ok {
		return TimeUnits{}, fmt.Errorf("time units %q: want \"<unit> since <time>\"", s)
	}
	d, ok := unitNames[strings.ToLower(strings.TrimSpace(unit))]
	if !ok {
		return TimeUnits{}, fmt.Errorf("time units %q: unknown unit %q", s, unit)
	}
	ref = strings.TrimSuffix(strings.TrimSpace(ref), " UTC")
	for _, layout := range referenceLayouts {
		if t, err := time.ParseInLocation(layout, ref, time.UTC); err == nil {
			return TimeUnits{Unit: d, Reference: t}, nil
		}
	}
	return TimeUnits{}, fmt.Errorf("time units %q: cannot parse reference time %q", s, ref)
}

// Time converts an offset expressed in u into an absolute time, rounded to
// the second.
func (u TimeUnits) Time(offset float64) time.Time {
	secs := math.Round(offset * u.Unit.Seconds())
	return u.Reference.Add(time.Duration(secs) * time.Second)
}
