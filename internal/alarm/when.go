package alarm

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// wall-clock formats without a zone are interpreted in now's location.
var dateTimeFormats = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

var timeOfDayFormats = []string{
	"15:04",
	"15:04:05",
	"3:04pm",
	"3:04 pm",
	"3pm",
	"3 pm",
}

// ParseWhen resolves an alarm time expression relative to now. Accepted
// forms: RFC 3339 timestamps, local date-times ("2026-10-19T07:30"),
// Go durations ("90s", "1h30m"), "in N units" and times of day
// ("07:30", "7:30pm"). A time of day already past today rolls to
// tomorrow. Absolute times in the past are returned as-is; rejecting
// them is the scheduler's job.
func ParseWhen(s string, now time.Time) (time.Time, error) {
	when := strings.TrimSpace(s)
	if when == "" {
		return time.Time{}, fmt.Errorf("time is required")
	}
	loc := now.Location()

	if t, err := time.Parse(time.RFC3339, when); err == nil {
		return t, nil
	}
	for _, f := range dateTimeFormats {
		if t, err := time.ParseInLocation(f, when, loc); err == nil {
			return t, nil
		}
	}

	if d, err := time.ParseDuration(when); err == nil {
		return now.Add(d), nil
	}
	lower := strings.ToLower(when)
	if rest, ok := strings.CutPrefix(lower, "in "); ok {
		d, err := parseHumanDuration(rest)
		if err != nil {
			return time.Time{}, fmt.Errorf("could not parse %q: %w", s, err)
		}
		return now.Add(d), nil
	}

	for _, f := range timeOfDayFormats {
		t, err := time.ParseInLocation(f, lower, loc)
		if err != nil {
			continue
		}
		at := time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), t.Second(), 0, loc)
		if !at.After(now) {
			at = at.AddDate(0, 0, 1)
		}
		return at, nil
	}

	return time.Time{}, fmt.Errorf("could not parse time %q", s)
}

// parseHumanDuration handles "<n> <unit>" with an optional trailing
// "and <n> <unit>", e.g. "5 minutes", "1 hour and 30 minutes".
func parseHumanDuration(s string) (time.Duration, error) {
	var total time.Duration
	for _, part := range strings.Split(s, " and ") {
		fields := strings.Fields(part)
		if len(fields) != 2 {
			return 0, fmt.Errorf("expected '<number> <unit>', got %q", part)
		}
		n, err := strconv.Atoi(fields[0])
		if err != nil {
			return 0, fmt.Errorf("bad number %q", fields[0])
		}

		var unit time.Duration
		switch u := fields[1]; {
		case strings.HasPrefix(u, "sec"):
			unit = time.Second
		case strings.HasPrefix(u, "min"):
			unit = time.Minute
		case strings.HasPrefix(u, "hour"), u == "hr", u == "hrs":
			unit = time.Hour
		case strings.HasPrefix(u, "day"):
			unit = 24 * time.Hour
		default:
			return 0, fmt.Errorf("unknown unit %q", u)
		}
		total += time.Duration(n) * unit
	}
	return total, nil
}

// FormatUntil renders d as "N minutes and M seconds", or "M seconds"
// under a minute.
func FormatUntil(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	minutes := int(d / time.Minute)
	seconds := int((d % time.Minute) / time.Second)
	if minutes > 0 {
		return plural(minutes, "minute") + " and " + plural(seconds, "second")
	}
	return plural(seconds, "second")
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return strconv.Itoa(n) + " " + unit + "s"
}
