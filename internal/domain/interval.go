package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Overlaps reports whether [aStart,aEnd) and [bStart,bEnd) share any instant.
// Intervals that only touch (aEnd == bStart) do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// Contains reports whether [start,end) lies entirely inside [windowStart,windowEnd).
func Contains(windowStart, windowEnd, start, end time.Time) bool {
	return !start.Before(windowStart) && !end.After(windowEnd)
}

// ClockTime is a wall-clock time of day in minutes after midnight. 24:00 is
// allowed as an exclusive end of day.
type ClockTime int

const EndOfDay ClockTime = 24 * 60

func NewClockTime(hour, minute int) ClockTime {
	return ClockTime(hour*60 + minute)
}

func ParseClockTime(s string) (ClockTime, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("clock time %q: want HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil {
		return 0, fmt.Errorf("clock time %q: invalid hour", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("clock time %q: invalid minute", s)
	}
	c := NewClockTime(h, m)
	if h < 0 || !c.Valid() {
		return 0, fmt.Errorf("clock time %q: out of range", s)
	}
	return c, nil
}

func (c ClockTime) Valid() bool {
	return c >= 0 && c <= EndOfDay
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// On returns the instant at which the clock time falls on the calendar day
// of date, evaluated in loc.
func (c ClockTime) On(date time.Time, loc *time.Location) time.Time {
	d := date.In(loc)
	return time.Date(d.Year(), d.Month(), d.Day(), int(c)/60, int(c)%60, 0, 0, loc)
}

func ClockOverlaps(aStart, aEnd, bStart, bEnd ClockTime) bool {
	return aStart < bEnd && bStart < aEnd
}

func ClockContains(windowStart, windowEnd, start, end ClockTime) bool {
	return windowStart <= start && end <= windowEnd
}
