// Package checkin composes monthly check-in messages and decides who is
// due to receive one.
package checkin

import (
	"fmt"
	"strings"
	"time"

	"github.com/thebrunchguy/sms-controller/people"
)

const snapshotFieldWidth = 40

var snapshotFields = []string{"Company", "Role", "City", "Tags"}

// Snapshot renders a person's current profile as bullet lines. Empty fields
// show an em dash so the recipient sees what is missing.
func Snapshot(p people.Person) string {
	values := map[string]string{
		"Company": p.Company,
		"Role":    p.Role,
		"City":    p.City,
		"Tags":    strings.Join(p.Tags, ", "),
	}
	lines := make([]string, 0, len(snapshotFields))
	for _, field := range snapshotFields {
		lines = append(lines, fmt.Sprintf("• %s: %s", field, formatValue(values[field])))
	}
	return strings.Join(lines, "\n")
}

func formatValue(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "—"
	}
	runes := []rune(value)
	if len(runes) > snapshotFieldWidth {
		return string(runes[:snapshotFieldWidth]) + "…"
	}
	return value
}

// Outbound builds the monthly check-in prompt for one person.
func Outbound(p people.Person) string {
	last := strings.TrimSpace(p.LastConfirmed)
	if last == "" {
		last = "last month"
	}
	return fmt.Sprintf(
		"Hi %s! Monthly check-in. Here’s what I have:\n%s\nAnything changed since %s?\nReply with updates or 'No change'. Reply STOP to opt out.",
		p.Name, Snapshot(p), last)
}

// IsDue reports whether a person should receive a check-in today. Opted-out
// or non-consenting people are never due; a person who has never confirmed
// is always due.
func IsDue(p people.Person, today time.Time) bool {
	if p.OptOut || !p.Consent {
		return false
	}

	frequency := p.Frequency
	if frequency == "" {
		frequency = people.FrequencyMonthly
	}
	var interval int
	switch frequency {
	case people.FrequencyMonthly:
		interval = 30
	case people.FrequencyQuarterly:
		interval = 90
	default:
		return false
	}

	if strings.TrimSpace(p.LastConfirmed) == "" {
		return true
	}
	lastConfirmed, err := time.Parse("2006-01-02", p.LastConfirmed)
	if err != nil {
		return true
	}
	due := lastConfirmed.AddDate(0, 0, interval)
	return !today.Before(due)
}

// Due filters the roster down to the people who should be messaged today.
func Due(roster []people.Person, today time.Time) []people.Person {
	var due []people.Person
	for _, p := range roster {
		if IsDue(p, today) {
			due = append(due, p)
		}
	}
	return due
}

// Month is the check-in bucket key for a given day.
func Month(t time.Time) string {
	return t.Format("2006-01")
}
