package domain

import (
	"errors"
	"fmt"
	"iter"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/teambition/rrule-go"
)

type RecurrenceFrequency string

const (
	FrequencyDaily   RecurrenceFrequency = "daily"
	FrequencyWeekly  RecurrenceFrequency = "weekly"
	FrequencyMonthly RecurrenceFrequency = "monthly"
	FrequencyCustom  RecurrenceFrequency = "custom"
)

// RecurrenceRule describes how a booking repeats. Custom carries an RFC 5545
// RRULE body (for example "FREQ=WEEKLY;BYDAY=MO,TH;COUNT=8") that is handed
// to the rrule evaluator as is. Count and Until, when set, override the
// bounds found in Custom.
type RecurrenceRule struct {
	Frequency RecurrenceFrequency `json:"frequency"`
	Interval  int                 `json:"interval,omitempty"`
	Count     *int                `json:"count,omitempty"`
	Until     *time.Time          `json:"until,omitempty"`
	Custom    string              `json:"custom,omitempty"`
}

func (r RecurrenceRule) option(dtstart time.Time) (rrule.ROption, error) {
	var opt rrule.ROption
	switch r.Frequency {
	case FrequencyDaily:
		opt.Freq = rrule.DAILY
	case FrequencyWeekly:
		opt.Freq = rrule.WEEKLY
	case FrequencyMonthly:
		opt.Freq = rrule.MONTHLY
	case FrequencyCustom:
		body := strings.TrimPrefix(strings.TrimSpace(r.Custom), "RRULE:")
		if body == "" {
			return opt, errors.New("custom recurrence requires an RRULE")
		}
		parsed, err := rrule.StrToROption(body)
		if err != nil {
			return opt, err
		}
		opt = *parsed
	default:
		return opt, fmt.Errorf("unsupported recurrence frequency %q", r.Frequency)
	}

	if r.Interval != 0 {
		opt.Interval = r.Interval
	}
	if opt.Interval < 0 {
		return opt, errors.New("interval must be positive")
	}
	if r.Count != nil {
		opt.Count = *r.Count
	}
	if opt.Count < 0 {
		return opt, errors.New("count must be positive")
	}
	if r.Until != nil {
		opt.Until = *r.Until
	}
	opt.Dtstart = dtstart
	return opt, nil
}

type Occurrence struct {
	// Index is 1-based within the series.
	Index int
	Start time.Time
	End   time.Time
}

// Expansion is a lazy, finite and restartable sequence of occurrences.
type Expansion struct {
	rule     *rrule.RRule
	start    time.Time
	duration time.Duration
	// frac is the sub-second part of start, which the rrule evaluator drops.
	frac time.Duration

	// Degraded is set when the rule could not be evaluated and the expansion
	// falls back to the template occurrence alone. Err holds the cause.
	Degraded bool
	Err      error
}

// ExpandRecurrence expands rule from the template [start,end). The rule is
// evaluated in loc so occurrences keep their local wall-clock time across
// DST changes. A nil rule, or one with neither count nor until, yields the
// template alone.
func ExpandRecurrence(rule *RecurrenceRule, start, end time.Time, loc *time.Location) Expansion {
	exp := Expansion{
		start:    start.UTC(),
		duration: end.Sub(start),
		frac:     time.Duration(start.Nanosecond()),
	}
	if rule == nil {
		return exp
	}
	if loc == nil {
		loc = time.UTC
	}

	opt, err := rule.option(start.In(loc).Add(-exp.frac))
	if err != nil {
		exp.Degraded = true
		exp.Err = err
		return exp
	}
	if opt.Count == 0 && opt.Until.IsZero() {
		return exp
	}

	r, err := rrule.NewRRule(opt)
	if err != nil {
		exp.Degraded = true
		exp.Err = err
		return exp
	}
	exp.rule = r
	return exp
}

// Recurring reports whether the expansion may yield more than the template.
func (e Expansion) Recurring() bool {
	return e.rule != nil
}

func (e Expansion) All() iter.Seq[Occurrence] {
	return func(yield func(Occurrence) bool) {
		if e.rule == nil {
			yield(Occurrence{Index: 1, Start: e.start, End: e.start.Add(e.duration)})
			return
		}
		next := e.rule.Iterator()
		for i := 1; ; i++ {
			t, ok := next()
			if !ok {
				return
			}
			start := t.UTC().Add(e.frac)
			if !yield(Occurrence{Index: i, Start: start, End: start.Add(e.duration)}) {
				return
			}
		}
	}
}

// Collect materializes at most limit occurrences. truncated reports that the
// sequence holds more than limit. A limit <= 0 means no ceiling.
func (e Expansion) Collect(limit int) (occs []Occurrence, truncated bool) {
	for o := range e.All() {
		if limit > 0 && len(occs) == limit {
			return occs, true
		}
		occs = append(occs, o)
	}
	return occs, false
}

// OccurrenceRef addresses either a materialized appointment row or a virtual
// occurrence of a series identified by its start instant.
type OccurrenceRef struct {
	AppointmentID uuid.UUID
	SeriesID      uuid.UUID
	Start         time.Time
}

func (r OccurrenceRef) Virtual() bool {
	return r.AppointmentID == uuid.Nil
}

func VirtualOccurrenceID(seriesID uuid.UUID, start time.Time) string {
	return "series:" + seriesID.String() + "@" + strconv.FormatInt(start.UTC().UnixNano(), 10)
}

// ParseOccurrenceRef accepts an appointment UUID or a virtual occurrence id
// produced by VirtualOccurrenceID.
func ParseOccurrenceRef(s string) (OccurrenceRef, error) {
	s = strings.TrimSpace(s)
	if id, err := uuid.Parse(s); err == nil {
		return OccurrenceRef{AppointmentID: id}, nil
	}
	rest, ok := strings.CutPrefix(s, "series:")
	if !ok {
		return OccurrenceRef{}, Invalidf(ErrInvalidRequest, "malformed occurrence id %q", s)
	}
	seriesPart, nanosPart, ok := strings.Cut(rest, "@")
	if !ok {
		return OccurrenceRef{}, Invalidf(ErrInvalidRequest, "malformed occurrence id %q", s)
	}
	seriesID, err := uuid.Parse(seriesPart)
	if err != nil {
		return OccurrenceRef{}, Invalidf(ErrInvalidRequest, "malformed occurrence id %q", s)
	}
	nanos, err := strconv.ParseInt(nanosPart, 10, 64)
	if err != nil {
		return OccurrenceRef{}, Invalidf(ErrInvalidRequest, "malformed occurrence id %q", s)
	}
	return OccurrenceRef{SeriesID: seriesID, Start: time.Unix(0, nanos).UTC()}, nil
}
