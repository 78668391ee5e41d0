package schedule

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/gg/gslice"
	"github.com/robfig/cron/v3"
)

// SupportedIntervals lists the accepted minute intervals.
var SupportedIntervals = []int{1, 5, 15, 60}

// cronParser is a standard 5-field cron expression parser (minute hour dom month dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// HourRange is a half-open window [Start, End) over the 24 hours of a day.
// Start > End wraps past midnight.
type HourRange struct {
	Start int
	End   int
}

// Contains reports whether hour h falls inside the window.
func (r HourRange) Contains(h int) bool {
	if r.Start < r.End {
		return h >= r.Start && h < r.End
	}
	return h >= r.Start || h < r.End
}

func (r HourRange) Wraps() bool {
	return r.Start > r.End
}

func (r HourRange) String() string {
	return fmt.Sprintf("%d-%d", r.Start, r.End)
}

// Spec is an immutable recurring window: weekdays, an optional hour range and
// a minute interval. Build it with New or Parse.
type Spec struct {
	days     [7]bool
	hours    *HourRange
	interval int

	expr  string
	sched cron.Schedule
}

// New validates the inputs and compiles them into a Spec.
func New(days []time.Weekday, hours *HourRange, interval int) (Spec, error) {
	var s Spec

	if len(days) == 0 {
		return Spec{}, specErr("days", "", "at least one weekday is required")
	}
	for _, d := range days {
		if d < time.Sunday || d > time.Saturday {
			return Spec{}, specErr("days", strconv.Itoa(int(d)), "not a weekday")
		}
		s.days[d] = true
	}

	if hours != nil {
		h := *hours
		if h.Start < 0 || h.Start > 23 {
			return Spec{}, specErr("hours", h.String(), "start must be within 0-23")
		}
		if h.End < 0 || h.End > 24 {
			return Spec{}, specErr("hours", h.String(), "end must be within 0-24")
		}
		if h.Start == h.End {
			return Spec{}, specErr("hours", h.String(), "start and end must differ")
		}
		// [0,24) is the whole day and needs no window.
		if h.Start != 0 || h.End != 24 {
			s.hours = &h
		}
	}

	if !isSupportedInterval(interval) {
		return Spec{}, specErr("interval", strconv.Itoa(interval), "must be one of 1, 5, 15, 60")
	}
	s.interval = interval

	s.expr = s.cronExpr()
	sched, err := cronParser.Parse(s.expr)
	if err != nil {
		return Spec{}, specErr("expression", s.expr, err.Error())
	}
	s.sched = sched
	return s, nil
}

func isSupportedInterval(n int) bool {
	return gslice.Contains(SupportedIntervals, n)
}

// Days returns the selected weekdays in calendar order starting on Sunday.
func (s Spec) Days() []time.Weekday {
	out := make([]time.Weekday, 0, 7)
	for d, ok := range s.days {
		if ok {
			out = append(out, time.Weekday(d))
		}
	}
	return out
}

// Hours returns the hour window, or nil when every hour is eligible.
func (s Spec) Hours() *HourRange {
	if s.hours == nil {
		return nil
	}
	h := *s.hours
	return &h
}

func (s Spec) Interval() int { return s.interval }

// IsZero reports whether s was not built through New.
func (s Spec) IsZero() bool { return s.sched == nil }

// CronExpr returns the equivalent 5-field cron expression.
func (s Spec) CronExpr() string { return s.expr }

// Contains reports whether t satisfies weekday and hour membership. The minute
// boundary is not part of membership.
func (s Spec) Contains(t time.Time) bool {
	if !s.days[t.Weekday()] {
		return false
	}
	return s.hours == nil || s.hours.Contains(t.Hour())
}

// Next returns the first boundary strictly after t, so a Spec can be used
// wherever a cron.Schedule is expected.
func (s Spec) Next(t time.Time) time.Time {
	return s.sched.Next(t)
}

var _ cron.Schedule = Spec{}

func (s Spec) String() string {
	var b strings.Builder
	b.WriteString(FormatDays(s.Days()))
	if s.hours != nil {
		fmt.Fprintf(&b, " %02d:00-%02d:00", s.hours.Start, s.hours.End)
	} else {
		b.WriteString(" all day")
	}
	if s.interval == 60 {
		b.WriteString(" hourly")
	} else {
		fmt.Fprintf(&b, " every %dm", s.interval)
	}
	return b.String()
}

func (s Spec) cronExpr() string {
	minute := "0"
	switch s.interval {
	case 1:
		minute = "*"
	case 5, 15:
		minute = "*/" + strconv.Itoa(s.interval)
	}

	hour := "*"
	if s.hours != nil {
		hours := make([]int, 0, 24)
		for h := 0; h < 24; h++ {
			if s.hours.Contains(h) {
				hours = append(hours, h)
			}
		}
		hour = joinInts(hours)
	}

	dow := "*"
	if days := s.Days(); len(days) < 7 {
		nums := make([]int, 0, len(days))
		for _, d := range days {
			nums = append(nums, int(d))
		}
		dow = joinInts(nums)
	}

	return fmt.Sprintf("%s %s * * %s", minute, hour, dow)
}

func joinInts(nums []int) string {
	sort.Ints(nums)
	parts := make([]string, len(nums))
	for i, n := range nums {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ",")
}
