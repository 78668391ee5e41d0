package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

var dayNames = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tues": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thur": time.Thursday, "thurs": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

var (
	Weekdays = []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}
	Weekends = []time.Weekday{time.Saturday, time.Sunday}
	AllDays  = []time.Weekday{time.Sunday, time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday}
)

// Parse builds a Spec from its textual form, e.g. Parse("mon-fri", "9-17", 15).
func Parse(days, hours string, interval int) (Spec, error) {
	d, err := ParseDays(days)
	if err != nil {
		return Spec{}, err
	}
	h, err := ParseHours(hours)
	if err != nil {
		return Spec{}, err
	}
	return New(d, h, interval)
}

// ParseDays accepts a comma separated list of day names, numbers (0=Sunday)
// or ranges like "mon-fri", plus the keywords weekdays, weekends, daily.
func ParseDays(s string) ([]time.Weekday, error) {
	return ParseDayList(strings.Split(s, ","))
}

// ParseDayList is ParseDays over pre-split tokens, as they come from YAML lists.
func ParseDayList(tokens []string) ([]time.Weekday, error) {
	var seen [7]bool
	for _, raw := range tokens {
		tok := strings.ToLower(strings.TrimSpace(raw))
		if tok == "" {
			continue
		}
		switch tok {
		case "weekdays", "workdays":
			markDays(&seen, Weekdays)
			continue
		case "weekends", "weekend":
			markDays(&seen, Weekends)
			continue
		case "daily", "all", "everyday", "*":
			markDays(&seen, AllDays)
			continue
		}

		if from, to, ok := strings.Cut(tok, "-"); ok {
			start, err := parseDay(from)
			if err != nil {
				return nil, err
			}
			end, err := parseDay(to)
			if err != nil {
				return nil, err
			}
			for d := start; ; d = (d + 1) % 7 {
				seen[d] = true
				if d == end {
					break
				}
			}
			continue
		}

		d, err := parseDay(tok)
		if err != nil {
			return nil, err
		}
		seen[d] = true
	}

	out := make([]time.Weekday, 0, 7)
	for d, ok := range seen {
		if ok {
			out = append(out, time.Weekday(d))
		}
	}
	if len(out) == 0 {
		return nil, specErr("days", strings.Join(tokens, ","), "at least one weekday is required")
	}
	return out, nil
}

func markDays(seen *[7]bool, days []time.Weekday) {
	for _, d := range days {
		seen[d] = true
	}
}

func parseDay(tok string) (time.Weekday, error) {
	tok = strings.TrimSpace(tok)
	if d, ok := dayNames[tok]; ok {
		return d, nil
	}
	if n, err := strconv.Atoi(tok); err == nil && n >= 0 && n <= 7 {
		// cron allows 7 for Sunday.
		return time.Weekday(n % 7), nil
	}
	return 0, specErr("days", tok, "unknown weekday")
}

// ParseHours parses "9-17", "22-6" or "09:00-17:00". An empty string, "all" or
// "*" means every hour and yields nil.
func ParseHours(s string) (*HourRange, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "", "all", "*":
		return nil, nil
	}

	from, to, ok := strings.Cut(s, "-")
	if !ok {
		return nil, specErr("hours", s, "expected START-END")
	}
	start, err := parseHour(from)
	if err != nil {
		return nil, specErr("hours", s, err.Error())
	}
	end, err := parseHour(to)
	if err != nil {
		return nil, specErr("hours", s, err.Error())
	}
	return &HourRange{Start: start, End: end}, nil
}

func parseHour(tok string) (int, error) {
	tok = strings.TrimSpace(tok)
	if h, m, ok := strings.Cut(tok, ":"); ok {
		if m != "00" && m != "0" {
			return 0, fmt.Errorf("hour bounds must be whole hours, got %q", tok)
		}
		tok = h
	}
	n, err := strconv.Atoi(tok)
	if err != nil {
		return 0, fmt.Errorf("bad hour %q", tok)
	}
	return n, nil
}

var shortDayNames = [7]string{"sun", "mon", "tue", "wed", "thu", "fri", "sat"}

// FormatDays renders days compactly: "daily", "weekdays", "weekends" or a
// comma separated list.
func FormatDays(days []time.Weekday) string {
	var set [7]bool
	markDays(&set, days)
	switch set {
	case [7]bool{true, true, true, true, true, true, true}:
		return "daily"
	case [7]bool{false, true, true, true, true, true, false}:
		return "weekdays"
	case [7]bool{true, false, false, false, false, false, true}:
		return "weekends"
	}
	names := make([]string, 0, len(days))
	for d, ok := range set {
		if ok {
			names = append(names, shortDayNames[d])
		}
	}
	return strings.Join(names, ",")
}
