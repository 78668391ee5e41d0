package schedule

import (
	"errors"
	"math/rand"
	"reflect"
	"testing"
	"time"
)

func mustParse(t *testing.T, days, hours string, interval int) Spec {
	t.Helper()
	s, err := Parse(days, hours, interval)
	if err != nil {
		t.Fatalf("Parse(%q, %q, %d): %v", days, hours, interval, err)
	}
	return s
}

func at(year int, month time.Month, day, hour, min, sec, nsec int) time.Time {
	return time.Date(year, month, day, hour, min, sec, nsec, time.UTC)
}

// randomTimes returns n reproducible instants spread over roughly two years.
func randomTimes(n int) []time.Time {
	rng := rand.New(rand.NewSource(42))
	base := at(2025, time.January, 1, 0, 0, 0, 0)
	out := make([]time.Time, n)
	for i := range out {
		out[i] = base.Add(time.Duration(rng.Int63n(int64(2 * 365 * 24 * time.Hour))))
	}
	return out
}

func TestNextRun_Interval15AlwaysOnQuarterHour(t *testing.T) {
	spec := mustParse(t, "daily", "", 15)
	for _, now := range randomTimes(2000) {
		got := NextRun(spec, now)
		if got.Before(now) {
			t.Fatalf("NextRun(%v) = %v, before now", now, got)
		}
		if got.Second() != 0 || got.Nanosecond() != 0 {
			t.Fatalf("NextRun(%v) = %v, want seconds=0", now, got)
		}
		switch got.Minute() {
		case 0, 15, 30, 45:
		default:
			t.Fatalf("NextRun(%v) = %v, minute not on a quarter hour", now, got)
		}
		if got.Sub(now) >= 15*time.Minute {
			t.Fatalf("NextRun(%v) = %v, skipped a boundary", now, got)
		}
	}
}

func TestIsDue_AtOwnNextRun(t *testing.T) {
	specs := []Spec{
		mustParse(t, "daily", "", 1),
		mustParse(t, "weekdays", "9-17", 60),
		mustParse(t, "mon,wed,fri", "22-6", 15),
		mustParse(t, "sat", "0-1", 5),
		mustParse(t, "weekends", "23-0", 15),
	}
	for _, spec := range specs {
		for _, now := range randomTimes(500) {
			next := NextRun(spec, now)
			if !IsDue(spec, next, now) {
				t.Fatalf("%s: IsDue(NextRun(%v)=%v, %v) = false", spec, now, next, now)
			}
			if !spec.Contains(next) {
				t.Fatalf("%s: NextRun(%v) = %v outside the window", spec, now, next)
			}
		}
	}
}

func TestNextRun_Pure(t *testing.T) {
	spec := mustParse(t, "weekdays", "22-6", 15)
	for _, now := range randomTimes(200) {
		a := NextRun(spec, now)
		b := NextRun(spec, now)
		if !a.Equal(b) {
			t.Fatalf("NextRun(%v) not stable: %v vs %v", now, a, b)
		}
	}
}

func TestNextRun_Boundaries(t *testing.T) {
	spec := mustParse(t, "daily", "", 15)
	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"exact boundary", at(2026, 10, 14, 10, 15, 0, 0), at(2026, 10, 14, 10, 15, 0, 0)},
		{"just after boundary", at(2026, 10, 14, 10, 15, 0, 1), at(2026, 10, 14, 10, 30, 0, 0)},
		{"mid interval", at(2026, 10, 14, 10, 22, 31, 0), at(2026, 10, 14, 10, 30, 0, 0)},
		{"rolls over midnight", at(2026, 10, 14, 23, 50, 0, 0), at(2026, 10, 15, 0, 0, 0, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NextRun(spec, tt.now); !got.Equal(tt.want) {
				t.Fatalf("NextRun(%v) = %v, want %v", tt.now, got, tt.want)
			}
		})
	}
}

func TestNextRun_FridayAfternoonSkipsToMonday(t *testing.T) {
	spec := mustParse(t, "weekdays", "9-17", 60)
	friday := at(2026, 10, 16, 16, 30, 0, 0)
	if friday.Weekday() != time.Friday {
		t.Fatalf("fixture is %v, want Friday", friday.Weekday())
	}

	got := NextRun(spec, friday)
	want := at(2026, 10, 19, 9, 0, 0, 0)
	if !got.Equal(want) {
		t.Fatalf("NextRun = %v (%v), want Monday 09:00 %v", got, got.Weekday(), want)
	}
}

func TestIsDue_WrapAroundWindow(t *testing.T) {
	spec := mustParse(t, "daily", "22-6", 15)

	tests := []struct {
		name    string
		now     time.Time
		lastRun time.Time
		want    bool
	}{
		{"23:00 after 22:45 run", at(2026, 10, 14, 23, 0, 0, 0), at(2026, 10, 14, 22, 45, 0, 1), true},
		{"05:45 after 05:30 run", at(2026, 10, 15, 5, 45, 0, 0), at(2026, 10, 15, 5, 30, 0, 1), true},
		{"05:44 not yet", at(2026, 10, 15, 5, 44, 0, 0), at(2026, 10, 15, 5, 30, 0, 1), false},
		{"06:00 excluded", at(2026, 10, 15, 6, 0, 0, 0), at(2026, 10, 15, 5, 45, 0, 1), false},
		{"noon after old run", at(2026, 10, 15, 12, 0, 0, 0), at(2026, 10, 10, 0, 0, 0, 0), false},
		{"noon at noon", at(2026, 10, 15, 12, 0, 0, 0), at(2026, 10, 15, 12, 0, 0, 0), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsDue(spec, tt.now, tt.lastRun); got != tt.want {
				t.Fatalf("IsDue(%v, %v) = %v, want %v", tt.now, tt.lastRun, got, tt.want)
			}
		})
	}

	noon := at(2026, 10, 15, 12, 0, 0, 0)
	if got, want := NextRun(spec, noon), at(2026, 10, 15, 22, 0, 0, 0); !got.Equal(want) {
		t.Fatalf("NextRun(noon) = %v, want %v", got, want)
	}
}

func TestIsDue_NoDoubleFireAfterRun(t *testing.T) {
	spec := mustParse(t, "daily", "", 15)
	started := at(2026, 10, 14, 10, 15, 0, 300)
	for _, offset := range []time.Duration{0, time.Second, 5 * time.Minute, 14*time.Minute + 59*time.Second} {
		if IsDue(spec, started.Add(offset), started) {
			t.Fatalf("IsDue %v after a run started at %v should be false", offset, started)
		}
	}
	if !IsDue(spec, at(2026, 10, 14, 10, 30, 0, 0), started) {
		t.Fatal("expected the following boundary to be due")
	}
}

func TestNew_Errors(t *testing.T) {
	tests := []struct {
		name     string
		days     []time.Weekday
		hours    *HourRange
		interval int
		field    string
	}{
		{"empty days", nil, nil, 15, "days"},
		{"bad weekday", []time.Weekday{9}, nil, 15, "days"},
		{"unsupported interval", AllDays, nil, 10, "interval"},
		{"zero interval", AllDays, nil, 0, "interval"},
		{"start equals end", AllDays, &HourRange{Start: 9, End: 9}, 15, "hours"},
		{"start out of range", AllDays, &HourRange{Start: 24, End: 2}, 15, "hours"},
		{"end out of range", AllDays, &HourRange{Start: 2, End: 25}, 15, "hours"},
		{"negative start", AllDays, &HourRange{Start: -1, End: 5}, 15, "hours"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.days, tt.hours, tt.interval)
			var specErr *SpecError
			if !errors.As(err, &specErr) {
				t.Fatalf("New() error = %v, want *SpecError", err)
			}
			if specErr.Field != tt.field {
				t.Fatalf("SpecError.Field = %q, want %q", specErr.Field, tt.field)
			}
		})
	}
}

func TestNew_FullDayRangeNormalized(t *testing.T) {
	s, err := New(AllDays, &HourRange{Start: 0, End: 24}, 60)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s.Hours() != nil {
		t.Fatalf("Hours() = %v, want nil for 0-24", s.Hours())
	}
}

func TestParseDays(t *testing.T) {
	tests := []struct {
		in   string
		want []time.Weekday
	}{
		{"weekdays", Weekdays},
		{"mon-fri", Weekdays},
		{"Mon, Tue ,wed,thu,FRI", Weekdays},
		{"1-5", Weekdays},
		{"weekends", []time.Weekday{time.Sunday, time.Saturday}},
		{"fri-mon", []time.Weekday{time.Sunday, time.Monday, time.Friday, time.Saturday}},
		{"7", []time.Weekday{time.Sunday}},
		{"daily", AllDays},
	}
	for _, tt := range tests {
		got, err := ParseDays(tt.in)
		if err != nil {
			t.Fatalf("ParseDays(%q): %v", tt.in, err)
		}
		want := append([]time.Weekday(nil), tt.want...)
		sortWeekdays(want)
		if !reflect.DeepEqual(got, want) {
			t.Errorf("ParseDays(%q) = %v, want %v", tt.in, got, want)
		}
	}

	for _, bad := range []string{"", "funday", "mon-xyz", "8"} {
		if _, err := ParseDays(bad); err == nil {
			t.Errorf("ParseDays(%q) expected error", bad)
		}
	}
}

func sortWeekdays(days []time.Weekday) {
	for i := 1; i < len(days); i++ {
		for j := i; j > 0 && days[j] < days[j-1]; j-- {
			days[j], days[j-1] = days[j-1], days[j]
		}
	}
}

func TestParseHours(t *testing.T) {
	tests := []struct {
		in   string
		want *HourRange
	}{
		{"", nil},
		{"all", nil},
		{"9-17", &HourRange{Start: 9, End: 17}},
		{"22-6", &HourRange{Start: 22, End: 6}},
		{"09:00-17:00", &HourRange{Start: 9, End: 17}},
	}
	for _, tt := range tests {
		got, err := ParseHours(tt.in)
		if err != nil {
			t.Fatalf("ParseHours(%q): %v", tt.in, err)
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ParseHours(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	for _, bad := range []string{"9", "9-x", "09:30-17:00"} {
		if _, err := ParseHours(bad); err == nil {
			t.Errorf("ParseHours(%q) expected error", bad)
		}
	}
}

func TestCronExpr(t *testing.T) {
	tests := []struct {
		days, hours string
		interval    int
		want        string
	}{
		{"daily", "", 1, "* * * * *"},
		{"weekdays", "9-17", 15, "*/15 9,10,11,12,13,14,15,16 * * 1,2,3,4,5"},
		{"sun", "22-2", 60, "0 0,1,22,23 * * 0"},
		{"daily", "0-24", 5, "*/5 * * * *"},
	}
	for _, tt := range tests {
		s := mustParse(t, tt.days, tt.hours, tt.interval)
		if got := s.CronExpr(); got != tt.want {
			t.Errorf("CronExpr(%s) = %q, want %q", s, got, tt.want)
		}
	}
}

func TestUpcoming(t *testing.T) {
	spec := mustParse(t, "weekdays", "9-17", 60)
	got := Upcoming(spec, at(2026, 10, 16, 15, 10, 0, 0), 3)
	want := []time.Time{
		at(2026, 10, 16, 16, 0, 0, 0),
		at(2026, 10, 19, 9, 0, 0, 0),
		at(2026, 10, 19, 10, 0, 0, 0),
	}
	if len(got) != len(want) {
		t.Fatalf("Upcoming len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Fatalf("Upcoming[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestString(t *testing.T) {
	if got := mustParse(t, "weekdays", "9-17", 15).String(); got != "weekdays 09:00-17:00 every 15m" {
		t.Fatalf("String() = %q", got)
	}
	if got := mustParse(t, "sat,sun", "", 60).String(); got != "weekends all day hourly" {
		t.Fatalf("String() = %q", got)
	}
}
