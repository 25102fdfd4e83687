package domain

import (
	"testing"
	"time"
)

func at(hour, minute int) time.Time {
	return time.Date(2026, 1, 5, hour, minute, 0, 0, time.UTC)
}

func TestOverlaps_HalfOpen(t *testing.T) {
	tests := []struct {
		name                       string
		aStart, aEnd, bStart, bEnd time.Time
		want                       bool
	}{
		{"disjoint", at(9, 0), at(10, 0), at(11, 0), at(12, 0), false},
		{"touching end to start", at(10, 0), at(11, 0), at(11, 0), at(12, 0), false},
		{"touching start to end", at(11, 0), at(12, 0), at(10, 0), at(11, 0), false},
		{"partial", at(10, 0), at(11, 0), at(10, 30), at(11, 30), true},
		{"nested", at(10, 0), at(11, 0), at(10, 30), at(10, 45), true},
		{"identical", at(10, 0), at(11, 0), at(10, 0), at(11, 0), true},
		{"one minute shared", at(10, 0), at(11, 0), at(10, 59), at(12, 0), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Overlaps(tt.aStart, tt.aEnd, tt.bStart, tt.bEnd); got != tt.want {
				t.Fatalf("Overlaps = %v, want %v", got, tt.want)
			}
			if got := Overlaps(tt.bStart, tt.bEnd, tt.aStart, tt.aEnd); got != tt.want {
				t.Fatalf("Overlaps (swapped) = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestContains_MatchesBoundsDefinition(t *testing.T) {
	wStart, wEnd := at(9, 0), at(12, 0)
	for startMin := 8 * 60; startMin <= 13*60; startMin += 15 {
		for endMin := startMin + 15; endMin <= 13*60; endMin += 15 {
			start := at(0, 0).Add(time.Duration(startMin) * time.Minute)
			end := at(0, 0).Add(time.Duration(endMin) * time.Minute)
			want := !wStart.After(start) && !end.After(wEnd)
			if got := Contains(wStart, wEnd, start, end); got != want {
				t.Fatalf("Contains(%v,%v) = %v, want %v", start, end, got, want)
			}
		}
	}
}

func TestParseClockTime(t *testing.T) {
	tests := []struct {
		in      string
		want    ClockTime
		wantErr bool
	}{
		{in: "09:00", want: NewClockTime(9, 0)},
		{in: " 7:05 ", want: NewClockTime(7, 5)},
		{in: "24:00", want: EndOfDay},
		{in: "24:01", wantErr: true},
		{in: "12:60", wantErr: true},
		{in: "-1:00", wantErr: true},
		{in: "0900", wantErr: true},
		{in: "ab:cd", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseClockTime(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("ParseClockTime(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseClockTime(%q) error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("ParseClockTime(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if s := NewClockTime(9, 5).String(); s != "09:05" {
		t.Fatalf("String = %q, want %q", s, "09:05")
	}
}

func TestAvailabilityWindow_Admits(t *testing.T) {
	w := AvailabilityWindow{
		ProviderID: "p1",
		DayOfWeek:  time.Monday,
		StartTime:  NewClockTime(9, 0),
		EndTime:    NewClockTime(12, 0),
	}

	if !w.Admits(at(9, 0), at(9, 30), time.UTC) {
		t.Fatalf("expected 09:00-09:30 to fit")
	}
	if !w.Admits(at(11, 30), at(12, 0), time.UTC) {
		t.Fatalf("expected 11:30-12:00 to fit")
	}
	if w.Admits(at(11, 30), at(12, 30), time.UTC) {
		t.Fatalf("expected 11:30-12:30 to extend past window end")
	}
	tuesday := at(9, 0).AddDate(0, 0, 1)
	if w.Admits(tuesday, tuesday.Add(30*time.Minute), time.UTC) {
		t.Fatalf("expected Tuesday booking to be rejected by Monday window")
	}
}

func TestAvailabilityWindow_AdmitsUsesClinicZone(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Fatalf("LoadLocation error: %v", err)
	}
	w := AvailabilityWindow{DayOfWeek: time.Monday, StartTime: NewClockTime(9, 0), EndTime: NewClockTime(12, 0)}

	// 08:00 UTC is 09:00 in Berlin during winter.
	start := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)
	if !w.Admits(start, start.Add(time.Hour), loc) {
		t.Fatalf("expected booking to fit in Berlin local window")
	}
	if w.Admits(start, start.Add(time.Hour), time.UTC) {
		t.Fatalf("expected booking to start before the UTC window")
	}
}

func TestAvailabilityWindow_Covers(t *testing.T) {
	base := AvailabilityWindow{StartTime: NewClockTime(9, 0), EndTime: NewClockTime(12, 0)}
	inner := AvailabilityWindow{StartTime: NewClockTime(10, 0), EndTime: NewClockTime(11, 0)}
	partial := AvailabilityWindow{StartTime: NewClockTime(11, 0), EndTime: NewClockTime(13, 0)}

	if !base.Covers(inner) {
		t.Fatalf("expected base to cover inner")
	}
	if !base.Covers(base) {
		t.Fatalf("expected identical windows to cover each other")
	}
	if base.Covers(partial) {
		t.Fatalf("partial overlap must not count as covered")
	}
}
