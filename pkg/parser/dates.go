package parser

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// shortDateLayout is month/day/2-digit-year; month and day may be unpadded.
const shortDateLayout = "1/2/06"

var shortDateRegex = regexp.MustCompile(`^\d{1,2}/\d{1,2}/\d{2}`)

// maxHoursAgo is the largest hour count a time.Duration can hold.
const maxHoursAgo = math.MaxInt64 / int64(time.Hour)

var weekdays = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

// dateRule tries to resolve a time reference. matched reports whether the
// rule claims the line; a claimed line that fails resolution returns err and
// the cascade stops at the default date.
type dateRule struct {
	name    string
	resolve func(line string, ref time.Time) (t time.Time, matched bool, err error)
}

// dateRules are evaluated in order, first match wins.
var dateRules = []dateRule{
	{name: "short date", resolve: resolveShortDate},
	{name: "relative", resolve: resolveRelative},
	{name: "yesterday", resolve: resolveYesterday},
	{name: "weekday", resolve: resolveWeekday},
}

// resolveDate runs the cascade. The returned reason is empty unless the
// reference date was used as a fallback.
func resolveDate(line string, ref time.Time) (time.Time, string) {
	ref = wallClock(ref)
	for _, rule := range dateRules {
		t, matched, err := rule.resolve(line, ref)
		if !matched {
			continue
		}
		if err != nil {
			return ref, fmt.Sprintf("%s: %v", rule.name, err)
		}
		return t, ""
	}
	return ref, "unrecognized time reference"
}

func resolveShortDate(line string, _ time.Time) (time.Time, bool, error) {
	if !shortDateRegex.MatchString(line) {
		return time.Time{}, false, nil
	}
	t, err := time.Parse(shortDateLayout, line)
	if err != nil {
		return time.Time{}, true, err
	}
	return t, true, nil
}

// resolveRelative handles "N hours ago". "minutes ago" resolves to the
// reference instant itself; minutes are not subtracted.
func resolveRelative(line string, ref time.Time) (time.Time, bool, error) {
	hoursAgo := strings.Contains(line, "hours ago")
	if !hoursAgo && !strings.Contains(line, "minutes ago") {
		return time.Time{}, false, nil
	}
	if !hoursAgo {
		return ref, true, nil
	}
	token := strings.Fields(line)[0]
	hours, err := strconv.Atoi(token)
	if err != nil {
		return time.Time{}, true, fmt.Errorf("invalid hour count %q", token)
	}
	if int64(hours) > maxHoursAgo || int64(hours) < -maxHoursAgo {
		return time.Time{}, true, fmt.Errorf("hour count %d out of range", hours)
	}
	return ref.Add(-time.Duration(hours) * time.Hour), true, nil
}

func resolveYesterday(line string, ref time.Time) (time.Time, bool, error) {
	if !strings.Contains(line, "Yesterday") {
		return time.Time{}, false, nil
	}
	return ref.AddDate(0, 0, -1), true, nil
}

// resolveWeekday maps a weekday name to its most recent occurrence, today
// included.
func resolveWeekday(line string, ref time.Time) (time.Time, bool, error) {
	for idx, day := range weekdays {
		if !strings.Contains(line, day) {
			continue
		}
		diff := ((mondayIndex(ref.Weekday())-idx)%7 + 7) % 7
		return ref.AddDate(0, 0, -diff), true, nil
	}
	return time.Time{}, false, nil
}

// mondayIndex converts a time.Weekday to Monday=0..Sunday=6.
func mondayIndex(d time.Weekday) int {
	return (int(d) + 6) % 7
}

// wallClock reinterprets t's local wall clock as UTC so that hour and day
// arithmetic follows the calendar and ignores DST transitions.
func wallClock(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}
