package timeline

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Category labels the kind of time expression that matched.
type Category string

const (
	CategorySpecificTime Category = "specific_time"
	CategoryHours        Category = "hours"
	CategoryMinutes      Category = "minutes"
	CategoryDays         Category = "days"
	CategoryWeeks        Category = "weeks"
	CategoryMonths       Category = "months"
	CategoryNextWeek     Category = "next_week"
	CategoryNextMonth    Category = "next_month"
	CategoryNextYear     Category = "next_year"
	CategoryTomorrow     Category = "tomorrow"
	CategoryToday        Category = "today"
	CategoryThisWeek     Category = "this_week"
	CategoryThisMonth    Category = "this_month"
	CategoryThisYear     Category = "this_year"
	CategoryFewHours     Category = "few_hours"
	CategoryFewDays      Category = "few_days"
	CategoryFewWeeks     Category = "few_weeks"
	CategoryFewMonths    Category = "few_months"
	CategoryLater        Category = "later"
	CategorySoon         Category = "soon"
	CategoryUnspecified  Category = "unspecified"
)

// Match is the result of extracting one time expression from a message.
// At is nil when no concrete instant could be resolved.
type Match struct {
	MatchedText string
	At          *time.Time
	Confidence  float64
	Category    Category
}

type entry struct {
	re       *regexp.Regexp
	priority int
	category Category
	resolve  func(groups []string, now time.Time) *time.Time
}

// The table is scanned in full; the highest priority wins, with ties broken
// by declaration order. Priorities: specific clock times 100/95, counted
// hours/minutes 90, counted days/weeks/months 80, named relative periods
// 70/60, vague quantities 50, vague adverbs 40.
var entries = []entry{
	{regexp.MustCompile(`at\s+(\d{1,2}):(\d{2})\s*(am|pm)?`), 100, CategorySpecificTime, resolveClockHM},
	{regexp.MustCompile(`at\s+(\d{1,2})\s*(am|pm)`), 100, CategorySpecificTime, resolveClockH},
	{regexp.MustCompile(`at\s+(noon|midnight)`), 100, CategorySpecificTime, resolveNamedTime},
	{regexp.MustCompile(`(\d{1,2}):(\d{2})\s*(am|pm)?`), 95, CategorySpecificTime, resolveClockHM},
	{regexp.MustCompile(`(\d{1,2})\s*(am|pm)`), 95, CategorySpecificTime, resolveClockH},

	{regexp.MustCompile(`in\s+(\d+)\s+hours?`), 90, CategoryHours, resolveCount(time.Hour)},
	{regexp.MustCompile(`in\s+(\d+)\s+minutes?`), 90, CategoryMinutes, resolveCount(time.Minute)},
	{regexp.MustCompile(`in\s+(\d+)\s+days?`), 80, CategoryDays, resolveCount(24 * time.Hour)},
	{regexp.MustCompile(`in\s+(\d+)\s+weeks?`), 80, CategoryWeeks, resolveCount(7 * 24 * time.Hour)},
	// Numeric months are approximated as 30-day blocks.
	{regexp.MustCompile(`in\s+(\d+)\s+months?`), 80, CategoryMonths, resolveCount(30 * 24 * time.Hour)},

	{regexp.MustCompile(`next\s+week`), 70, CategoryNextWeek, resolveNextWeek},
	{regexp.MustCompile(`next\s+month`), 70, CategoryNextMonth, resolveNextMonth},
	{regexp.MustCompile(`next\s+year`), 70, CategoryNextYear, resolveNextYear},
	{regexp.MustCompile(`tomorrow`), 60, CategoryTomorrow, resolveTomorrow},
	{regexp.MustCompile(`today`), 60, CategoryToday, resolveToday},
	{regexp.MustCompile(`this\s+week`), 60, CategoryThisWeek, resolveThisWeek},
	{regexp.MustCompile(`this\s+month`), 60, CategoryThisMonth, resolveThisMonth},
	{regexp.MustCompile(`this\s+year`), 60, CategoryThisYear, resolveThisYear},

	{regexp.MustCompile(`in\s+a\s+few\s+hours?`), 50, CategoryFewHours, resolveOffset(2 * time.Hour)},
	{regexp.MustCompile(`in\s+a\s+couple\s+hours?`), 50, CategoryFewHours, resolveOffset(2 * time.Hour)},
	{regexp.MustCompile(`in\s+a\s+few\s+days?`), 50, CategoryFewDays, resolveOffset(3 * 24 * time.Hour)},
	{regexp.MustCompile(`in\s+a\s+couple\s+days?`), 50, CategoryFewDays, resolveOffset(3 * 24 * time.Hour)},
	{regexp.MustCompile(`in\s+a\s+few\s+weeks?`), 50, CategoryFewWeeks, resolveOffset(14 * 24 * time.Hour)},
	{regexp.MustCompile(`in\s+a\s+couple\s+weeks?`), 50, CategoryFewWeeks, resolveOffset(14 * 24 * time.Hour)},
	{regexp.MustCompile(`in\s+a\s+few\s+months?`), 50, CategoryFewMonths, resolveOffset(60 * 24 * time.Hour)},
	{regexp.MustCompile(`in\s+a\s+couple\s+months?`), 50, CategoryFewMonths, resolveOffset(60 * 24 * time.Hour)},
	{regexp.MustCompile(`later`), 40, CategoryLater, resolveOffset(time.Hour)},
	{regexp.MustCompile(`soon`), 40, CategorySoon, resolveOffset(time.Hour)},
}

// Extract scans message for time expressions and resolves the best one
// against the reference instant now. Deterministic for a fixed now.
func Extract(message string, now time.Time) Match {
	lower := strings.ToLower(strings.TrimSpace(message))

	var best *entry
	var bestGroups []string
	bestPriority := -1
	for i := range entries {
		e := &entries[i]
		groups := e.re.FindStringSubmatch(lower)
		if groups == nil || e.priority <= bestPriority {
			continue
		}
		best = e
		bestGroups = groups
		bestPriority = e.priority
	}

	if best != nil {
		conf := float64(best.priority) / 100.0
		if conf > 1 {
			conf = 1
		}
		return Match{
			MatchedText: bestGroups[0],
			At:          best.resolve(bestGroups, now),
			Confidence:  conf,
			Category:    best.category,
		}
	}

	return defaultMatch(lower, now)
}

// Messages that ask for a reminder but name no time default to tomorrow at
// noon; anything else resolves to nothing.
func defaultMatch(lower string, now time.Time) Match {
	if strings.Contains(lower, "remind") {
		at := atNoon(now.AddDate(0, 0, 1))
		return Match{
			MatchedText: "tomorrow",
			At:          &at,
			Confidence:  0.5,
			Category:    CategoryTomorrow,
		}
	}
	return Match{MatchedText: "unspecified", Category: CategoryUnspecified}
}

func atNoon(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 12, 0, 0, 0, t.Location())
}

func resolveClockHM(groups []string, now time.Time) *time.Time {
	hour, err := strconv.Atoi(groups[1])
	if err != nil {
		return nil
	}
	minute, err := strconv.Atoi(groups[2])
	if err != nil {
		return nil
	}
	if len(groups) > 3 && groups[3] != "" {
		hour = to24Hour(hour, groups[3])
	}
	if hour > 23 || minute > 59 {
		return nil
	}
	day := now
	if hour < now.Hour() || (hour == now.Hour() && minute <= now.Minute()) {
		day = now.AddDate(0, 0, 1)
	}
	at := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, now.Location())
	return &at
}

func resolveClockH(groups []string, now time.Time) *time.Time {
	hour, err := strconv.Atoi(groups[1])
	if err != nil {
		return nil
	}
	hour = to24Hour(hour, groups[2])
	if hour > 23 {
		return nil
	}
	day := now
	if hour < now.Hour() {
		day = now.AddDate(0, 0, 1)
	}
	at := time.Date(day.Year(), day.Month(), day.Day(), hour, 0, 0, 0, now.Location())
	return &at
}

func resolveNamedTime(groups []string, now time.Time) *time.Time {
	hour := 0
	if groups[1] == "noon" {
		hour = 12
	}
	day := now
	if hour < now.Hour() {
		day = now.AddDate(0, 0, 1)
	}
	at := time.Date(day.Year(), day.Month(), day.Day(), hour, 0, 0, 0, now.Location())
	return &at
}

func to24Hour(hour int, ampm string) int {
	switch ampm {
	case "pm":
		if hour != 12 {
			hour += 12
		}
	case "am":
		if hour == 12 {
			hour = 0
		}
	}
	return hour
}

func resolveCount(unit time.Duration) func([]string, time.Time) *time.Time {
	return func(groups []string, now time.Time) *time.Time {
		n, err := strconv.Atoi(groups[1])
		if err != nil {
			return nil
		}
		at := now.Add(time.Duration(n) * unit)
		return &at
	}
}

func resolveOffset(d time.Duration) func([]string, time.Time) *time.Time {
	return func(_ []string, now time.Time) *time.Time {
		at := now.Add(d)
		return &at
	}
}

// Next Monday at noon.
func resolveNextWeek(_ []string, now time.Time) *time.Time {
	daysAhead := 7 - mondayIndexed(now.Weekday())
	if daysAhead == 0 {
		daysAhead = 7
	}
	at := atNoon(now.AddDate(0, 0, daysAhead))
	return &at
}

// First day of next month at noon, with calendar rollover across December.
func resolveNextMonth(_ []string, now time.Time) *time.Time {
	at := time.Date(now.Year(), now.Month()+1, 1, 12, 0, 0, 0, now.Location())
	return &at
}

func resolveNextYear(_ []string, now time.Time) *time.Time {
	at := time.Date(now.Year()+1, time.January, 1, 12, 0, 0, 0, now.Location())
	return &at
}

func resolveTomorrow(_ []string, now time.Time) *time.Time {
	at := atNoon(now.AddDate(0, 0, 1))
	return &at
}

func resolveToday(_ []string, now time.Time) *time.Time {
	at := atNoon(now)
	return &at
}

// This Friday at noon; past Friday rolls to the next one.
func resolveThisWeek(_ []string, now time.Time) *time.Time {
	daysAhead := 4 - mondayIndexed(now.Weekday())
	if daysAhead < 0 {
		daysAhead += 7
	}
	at := atNoon(now.AddDate(0, 0, daysAhead))
	return &at
}

// The 15th of the current month at noon.
func resolveThisMonth(_ []string, now time.Time) *time.Time {
	at := time.Date(now.Year(), now.Month(), 15, 12, 0, 0, 0, now.Location())
	return &at
}

// June 15th of the current year at noon.
func resolveThisYear(_ []string, now time.Time) *time.Time {
	at := time.Date(now.Year(), time.June, 15, 12, 0, 0, 0, now.Location())
	return &at
}

func mondayIndexed(d time.Weekday) int {
	return (int(d) + 6) % 7
}

// Format renders a resolved match for a user-facing reply.
func Format(m Match, now time.Time) string {
	if m.At == nil {
		return m.MatchedText
	}
	at := *m.At
	sameDay := at.Year() == now.Year() && at.YearDay() == now.YearDay()
	next := now.AddDate(0, 0, 1)
	nextDay := at.Year() == next.Year() && at.YearDay() == next.YearDay()

	clock := strings.ToLower(at.Format("3:04 pm"))
	switch {
	case sameDay && at.Hour() == now.Hour() && at.Minute() == now.Minute():
		return "now"
	case sameDay && at.Hour() == 12 && at.Minute() == 0:
		return "today at noon"
	case sameDay:
		return "today at " + clock
	case nextDay && at.Hour() == 12 && at.Minute() == 0:
		return "tomorrow at noon"
	case nextDay:
		return "tomorrow at " + clock
	default:
		return strings.ToLower(at.Format("Monday, January 2 at 3:04 pm"))
	}
}
